package memory

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// payloadFactories builds the typed payload for each sub-collection.
var payloadFactories = map[Collection]func() Payload{
	CollCurrentContext:        func() Payload { return &ConversationContext{} },
	CollActiveLeads:           func() Payload { return &Lead{} },
	CollRecentActions:         func() Payload { return &Action{} },
	CollCustomerProfiles:      func() Payload { return &CustomerProfile{} },
	CollCampaignHistory:       func() Payload { return &Campaign{} },
	CollPerformanceMetrics:    func() Payload { return &PerformanceMetric{} },
	CollLearningPatterns:      func() Payload { return &LearningPattern{} },
	CollSuccessfulInteraction: func() Payload { return &Interaction{} },
	CollProblemResolutions:    func() Payload { return &ProblemResolution{} },
	CollDecisionOutcomes:      func() Payload { return &DecisionOutcome{} },
	CollContextualLearnings:   func() Payload { return &ContextualLearning{} },
	CollDomainKnowledge:       func() Payload { return &KnowledgeNode{} },
	CollRelationships:         func() Payload { return &Relationship{} },
	CollConcepts:              func() Payload { return &Concept{} },
	CollRules:                 func() Payload { return &Rule{} },
}

// DecodePayload converts a decoded JSON object into the payload type the
// router uses for (tier, tag). Tags without a sub-collection yield
// Attributes unchanged.
func DecodePayload(tier Tier, tag string, raw map[string]any) (Payload, error) {
	if raw == nil {
		return nil, ErrNilPayload
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return nil, err
	}
	r, ok := routeFor(tier, tag)
	if !ok {
		return Attributes(raw), nil
	}
	out := payloadFactories[r.coll]()
	if err := decodeInto(raw, out, false); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", tag, err)
	}
	return out, nil
}

func decodeInto(raw map[string]any, out any, strict bool) error {
	return decodeWith(raw, out, strict, nil)
}

func decodeWith(raw map[string]any, out any, strict bool, md *mapstructure.Metadata) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		Metadata:         md,
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// typed returns rec's payload as *T. A free-form payload whose keys all map
// onto T is upgraded in place; the caller must hold the tier's write lock.
func typed[T any, PT interface {
	*T
	Payload
}](rec *MemoryRecord) (PT, bool) {
	if p, ok := rec.Payload.(PT); ok {
		return p, true
	}
	attrs, ok := rec.Payload.(Attributes)
	if !ok {
		return nil, false
	}
	out := PT(new(T))
	if err := decodeInto(attrs, out, true); err != nil {
		return nil, false
	}
	rec.Payload = out
	return out, true
}

// graphEntry is typed for knowledge nodes and relationships. These decode
// leniently so that no graph entry escapes integrity checks: keys without a
// field move to Extra. The caller must hold the semantic write lock.
func graphEntry[T any, PT interface {
	*T
	Payload
	setExtra(Attributes)
}](rec *MemoryRecord) (PT, bool) {
	if p, ok := rec.Payload.(PT); ok {
		return p, true
	}
	attrs, ok := rec.Payload.(Attributes)
	if !ok {
		return nil, false
	}
	out := PT(new(T))
	var md mapstructure.Metadata
	if err := decodeWith(attrs, out, false, &md); err != nil {
		return nil, false
	}
	if len(md.Unused) > 0 {
		extra := make(Attributes, len(md.Unused))
		for _, k := range md.Unused {
			extra[k] = attrs[k]
		}
		out.setExtra(extra)
	}
	rec.Payload = out
	return out, true
}
