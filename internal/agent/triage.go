package agent

import (
	"fmt"
	"strings"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"go.uber.org/zap"
)

// Lead categories.
const (
	CategoryHot  = "hot"
	CategoryWarm = "warm"
	CategoryCold = "cold"
)

// LeadInput is an inbound lead to score.
type LeadInput struct {
	LeadID      string  `json:"lead_id"`
	Name        string  `json:"name,omitempty"`
	Email       string  `json:"email,omitempty"`
	Company     string  `json:"company,omitempty"`
	CompanySize int     `json:"company_size,omitempty"`
	Budget      float64 `json:"budget,omitempty"`
	Engagement  float64 `json:"engagement,omitempty"` // 0-100 activity score
	Source      string  `json:"source,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// TriageResult is the scored lead and how the score was reached.
type TriageResult struct {
	Lead          memory.Lead `json:"lead"`
	KnownCustomer bool        `json:"known_customer"`
	Trace         *Trace      `json:"trace"`
}

var sourceWeights = map[string]float64{
	"referral":      20,
	"demo_request":  20,
	"webinar":       12,
	"organic":       8,
	"paid_ads":      5,
	"cold_outreach": 0,
}

// ScoreLead applies the triage rules, capped at 100. known adds the
// returning-customer bonus.
func ScoreLead(in LeadInput, known bool) float64 {
	var score float64
	switch {
	case in.Budget >= 50000:
		score += 30
	case in.Budget >= 10000:
		score += 20
	case in.Budget > 0:
		score += 10
	}
	switch {
	case in.CompanySize >= 1000:
		score += 25
	case in.CompanySize >= 100:
		score += 15
	case in.CompanySize >= 10:
		score += 5
	}
	score += max(0, min(in.Engagement, 100)) * 0.25
	score += sourceWeights[strings.ToLower(in.Source)]
	if known {
		score += 10
	}
	return min(score, 100)
}

// Categorize buckets a lead score.
func Categorize(score float64) string {
	switch {
	case score >= 70:
		return CategoryHot
	case score >= 40:
		return CategoryWarm
	default:
		return CategoryCold
	}
}

// Triage scores and categorizes a lead, then records it in short-term
// memory. Hot leads also open a high-priority conversation context so the
// next consolidation promotes them to a customer profile.
func (a *Agent) Triage(in LeadInput) (*TriageResult, error) {
	if in.LeadID == "" {
		return nil, fmt.Errorf("triage: lead_id is required: %w", ErrInvalidInput)
	}
	done, err := a.begin(KindTriage)
	if err != nil {
		return nil, err
	}
	defer done()

	tr := newTrace(a.ID)
	known := a.knownCustomer(tr, in.Email)

	score := ScoreLead(in, known)
	lead := memory.Lead{
		LeadID:   in.LeadID,
		Name:     in.Name,
		Email:    in.Email,
		Company:  in.Company,
		Source:   in.Source,
		Score:    score,
		Category: Categorize(score),
	}
	tr.add(StepRule, fmt.Sprintf("scored %.1f (%s)", score, lead.Category), map[string]any{
		"budget": in.Budget, "company_size": in.CompanySize,
		"engagement": in.Engagement, "source": in.Source, "known_customer": known,
	})

	stored := lead
	a.remember(tr, memory.TierShortTerm, "lead", &stored)
	a.remember(tr, memory.TierShortTerm, "action", &memory.Action{
		Action: "lead_triaged", Target: in.LeadID, Detail: lead.Category,
	})
	if lead.Category == CategoryHot {
		ctx := &memory.ConversationContext{
			SessionID:  "triage-" + in.LeadID,
			CustomerID: in.LeadID,
			Email:      in.Email,
			Channel:    in.Source,
			Priority:   9,
		}
		if in.Message != "" {
			ctx.Messages = []memory.Message{{Role: "lead", Content: in.Message}}
		}
		a.remember(tr, memory.TierShortTerm, "conversation_context", ctx)
	}

	a.logger.Info("lead triaged",
		zap.String("lead", in.LeadID),
		zap.Float64("score", score),
		zap.String("category", lead.Category))
	return &TriageResult{Lead: lead, KnownCustomer: known, Trace: tr.finish()}, nil
}

// knownCustomer looks for a long-term profile with the same email.
func (a *Agent) knownCustomer(tr *Trace, email string) bool {
	if email == "" {
		return false
	}
	recs, err := a.mem.Retrieve(memory.TierLongTerm, memory.Query{"type": "customer_profile", "email": email})
	if err != nil {
		a.logger.Warn("customer lookup failed", zap.Error(err))
		return false
	}
	for _, rec := range recs {
		if p, ok := rec.Payload.(*memory.CustomerProfile); ok && strings.EqualFold(p.Email, email) {
			tr.add(StepMemoryRecall, "matched customer profile "+rec.ID, nil)
			return true
		}
	}
	tr.add(StepMemoryRecall, fmt.Sprintf("no profile among %d candidates", len(recs)), nil)
	return false
}
