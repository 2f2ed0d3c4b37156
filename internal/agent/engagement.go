package agent

import (
	"fmt"
	"strings"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"go.uber.org/zap"
)

// DefaultChannel is recommended until a pattern has been learned.
const DefaultChannel = "email"

// InteractionInput is one customer touchpoint.
type InteractionInput struct {
	CustomerID string  `json:"customer_id"`
	Email      string  `json:"email,omitempty"`
	Channel    string  `json:"channel"`
	Type       string  `json:"type,omitempty"` // defaults to the channel
	Outcome    string  `json:"outcome"`
	Sentiment  float64 `json:"sentiment,omitempty"`
	Message    string  `json:"message,omitempty"`
	Problem    string  `json:"problem,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
}

// EngagementResult reports what was recorded and the next-best channel.
type EngagementResult struct {
	RecommendedChannel string  `json:"recommended_channel"`
	Confidence         float64 `json:"confidence"`
	Pattern            string  `json:"pattern,omitempty"`
	Trace              *Trace  `json:"trace"`
}

// Engage records an interaction and recommends a channel for the next one.
func (a *Agent) Engage(in InteractionInput) (*EngagementResult, error) {
	if in.CustomerID == "" || in.Channel == "" {
		return nil, fmt.Errorf("engage: customer_id and channel are required: %w", ErrInvalidInput)
	}
	done, err := a.begin(KindEngagement)
	if err != nil {
		return nil, err
	}
	defer done()

	tr := newTrace(a.ID)
	kind := in.Type
	if kind == "" {
		kind = in.Channel
	}

	priority := 5
	if isSuccess(in.Outcome) {
		priority = 8
	}
	ctx := &memory.ConversationContext{
		SessionID:  in.CustomerID + "-" + in.Channel,
		CustomerID: in.CustomerID,
		Email:      in.Email,
		Channel:    in.Channel,
		Priority:   priority,
	}
	if in.Message != "" {
		ctx.Messages = []memory.Message{{Role: "customer", Content: in.Message}}
	}
	a.remember(tr, memory.TierShortTerm, "conversation_context", ctx)

	if in.Problem != "" {
		a.remember(tr, memory.TierEpisodic, "problem_resolution", &memory.ProblemResolution{
			Problem:    in.Problem,
			Resolution: in.Resolution,
			Resolved:   in.Resolution != "",
		})
	} else {
		a.remember(tr, memory.TierEpisodic, "interaction", &memory.Interaction{
			Type:       kind,
			Outcome:    in.Outcome,
			CustomerID: in.CustomerID,
			Channel:    in.Channel,
			Sentiment:  in.Sentiment,
		})
	}
	a.remember(tr, memory.TierShortTerm, "action", &memory.Action{
		Action: "interaction_recorded", Target: in.CustomerID, Detail: kind + ":" + in.Outcome,
	})

	channel, conf, pattern := a.RecommendChannel()
	tr.add(StepDecision, fmt.Sprintf("recommend %s (%.2f)", channel, conf), pattern)

	a.logger.Info("interaction recorded",
		zap.String("customer", in.CustomerID),
		zap.String("channel", in.Channel),
		zap.String("outcome", in.Outcome),
		zap.String("recommended", channel))
	return &EngagementResult{
		RecommendedChannel: channel,
		Confidence:         conf,
		Pattern:            pattern,
		Trace:              tr.finish(),
	}, nil
}

// RecommendChannel picks the interaction type of the most confident
// successful learning pattern, falling back to DefaultChannel.
func (a *Agent) RecommendChannel() (channel string, confidence float64, pattern string) {
	channel = DefaultChannel
	recs, err := a.mem.Retrieve(memory.TierLongTerm, memory.Query{"type": "learning_pattern"})
	if err != nil {
		return channel, 0, ""
	}
	var best *memory.LearningPattern
	for _, rec := range recs {
		p, ok := rec.Payload.(*memory.LearningPattern)
		if !ok || p.Type != "interaction" {
			continue
		}
		i := strings.LastIndex(p.Pattern, "_")
		if i <= 0 || !isSuccess(p.Pattern[i+1:]) {
			continue
		}
		if best == nil || p.Confidence > best.Confidence ||
			(p.Confidence == best.Confidence && p.Applications > best.Applications) {
			best = p
		}
	}
	if best == nil {
		return channel, 0, ""
	}
	return best.Pattern[:strings.LastIndex(best.Pattern, "_")], best.Confidence, best.Pattern
}

func isSuccess(outcome string) bool {
	o := strings.ToLower(outcome)
	return o == "positive" || o == "conversion"
}
