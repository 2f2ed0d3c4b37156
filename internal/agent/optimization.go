package agent

import (
	"fmt"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"go.uber.org/zap"
)

// Optimization decisions.
const (
	DecisionScaleBudget      = "scale_budget"
	DecisionOptimizeCreative = "optimize_creative"
	DecisionPause            = "pause"
	DecisionMaintain         = "maintain"
)

// CampaignInput carries the raw numbers of one campaign.
type CampaignInput struct {
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name,omitempty"`
	Type        string  `json:"type,omitempty"`
	Channel     string  `json:"channel,omitempty"`
	Budget      float64 `json:"budget,omitempty"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Conversions int     `json:"conversions"`
}

// Metrics are the rates derived from a CampaignInput.
type Metrics struct {
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
	ROI            float64 `json:"roi"`
}

// OptimizationResult is the decision for one campaign.
type OptimizationResult struct {
	CampaignID string   `json:"campaign_id"`
	Metrics    Metrics  `json:"metrics"`
	Decision   string   `json:"decision"`
	Reasons    []string `json:"reasons"`
	// HistoricalConfidence is the learned confidence of this decision, or -1.
	HistoricalConfidence float64 `json:"historical_confidence"`
	Trace                *Trace  `json:"trace"`
}

// ComputeMetrics derives CTR, conversion rate and ROI. Zero denominators
// yield zero.
func ComputeMetrics(in CampaignInput) Metrics {
	var m Metrics
	if in.Impressions > 0 {
		m.CTR = float64(in.Clicks) / float64(in.Impressions)
	}
	if in.Clicks > 0 {
		m.ConversionRate = float64(in.Conversions) / float64(in.Clicks)
	}
	if in.Spend > 0 {
		m.ROI = (in.Revenue - in.Spend) / in.Spend
	}
	return m
}

// Decide maps metrics onto an optimization decision.
func Decide(m Metrics) (string, []string) {
	switch {
	case m.ROI >= 1.0 && m.ConversionRate >= 0.05:
		return DecisionScaleBudget, []string{
			fmt.Sprintf("ROI %.2f at or above 1.0", m.ROI),
			fmt.Sprintf("conversion rate %.3f at or above 0.05", m.ConversionRate),
		}
	case m.ROI < 0 && m.CTR < 0.005:
		return DecisionPause, []string{
			fmt.Sprintf("negative ROI %.2f", m.ROI),
			fmt.Sprintf("CTR %.4f below 0.005", m.CTR),
		}
	case m.CTR < 0.01:
		return DecisionOptimizeCreative, []string{fmt.Sprintf("CTR %.4f below 0.01", m.CTR)}
	default:
		return DecisionMaintain, []string{"metrics within expected range"}
	}
}

// Optimize evaluates a campaign and records the campaign, its metrics and
// the decision. Strong performers also yield a contextual learning.
func (a *Agent) Optimize(in CampaignInput) (*OptimizationResult, error) {
	if in.CampaignID == "" {
		return nil, fmt.Errorf("optimize: campaign_id is required: %w", ErrInvalidInput)
	}
	done, err := a.begin(KindOptimization)
	if err != nil {
		return nil, err
	}
	defer done()

	tr := newTrace(a.ID)
	metrics := ComputeMetrics(in)
	decision, reasons := Decide(metrics)
	tr.add(StepRule, "evaluated campaign metrics", metrics)

	hist := a.decisionHistory(tr, decision)
	if hist >= 0 && hist < 0.3 {
		reasons = append(reasons, fmt.Sprintf("past %s decisions succeeded %.0f%% of the time", decision, hist*100))
	}
	tr.add(StepDecision, decision, reasons)

	a.remember(tr, memory.TierLongTerm, "campaign", &memory.Campaign{
		CampaignID: in.CampaignID,
		Name:       in.Name,
		Type:       in.Type,
		Channel:    in.Channel,
		Status:     decision,
		Budget:     in.Budget,
	})
	for _, pm := range []memory.PerformanceMetric{
		{CampaignID: in.CampaignID, Metric: "ctr", Value: metrics.CTR},
		{CampaignID: in.CampaignID, Metric: "conversion_rate", Value: metrics.ConversionRate},
		{CampaignID: in.CampaignID, Metric: "roi", Value: metrics.ROI},
	} {
		a.remember(tr, memory.TierLongTerm, "performance_metric", &pm)
	}
	a.remember(tr, memory.TierEpisodic, "decision_outcome", &memory.DecisionOutcome{
		Decision:   decision,
		ActionType: in.Channel,
		Success:    metrics.ROI > 0,
		Impact:     metrics.ROI,
	})
	if decision == DecisionScaleBudget && in.Channel != "" {
		a.remember(tr, memory.TierEpisodic, "contextual_learning", &memory.ContextualLearning{
			Pattern:     in.Channel + "_high_roi",
			Concept:     in.Channel + " campaigns",
			Description: fmt.Sprintf("%s campaigns return %.1fx spend", in.Channel, metrics.ROI+1),
			Confidence:  min(metrics.ROI/5, 1),
		})
	}
	a.remember(tr, memory.TierShortTerm, "action", &memory.Action{
		Action: "campaign_optimized", Target: in.CampaignID, Detail: decision,
	})

	a.logger.Info("campaign optimized",
		zap.String("campaign", in.CampaignID),
		zap.String("decision", decision),
		zap.Float64("roi", metrics.ROI))
	return &OptimizationResult{
		CampaignID:           in.CampaignID,
		Metrics:              metrics,
		Decision:             decision,
		Reasons:              reasons,
		HistoricalConfidence: hist,
		Trace:                tr.finish(),
	}, nil
}

// decisionHistory returns the learned confidence of decision, or -1.
func (a *Agent) decisionHistory(tr *Trace, decision string) float64 {
	name := "decision_" + decision
	recs, err := a.mem.Retrieve(memory.TierLongTerm, memory.Query{"pattern": name})
	if err != nil {
		return -1
	}
	for _, rec := range recs {
		if p, ok := rec.Payload.(*memory.LearningPattern); ok && p.Pattern == name {
			tr.add(StepMemoryRecall, "found pattern "+name, p.Confidence)
			return p.Confidence
		}
	}
	return -1
}
