package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StepError records a consolidation or compression step that failed.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// ConsolidationReport summarizes one consolidation pass.
type ConsolidationReport struct {
	AgentID             string        `json:"agent_id"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration_ns"`
	Promoted            int           `json:"promoted"`
	PatternsExtracted   int           `json:"patterns_extracted"`
	KnowledgeCreated    int           `json:"knowledge_created"`
	KnowledgeUpdated    int           `json:"knowledge_updated"`
	RelationshipsLinked int           `json:"relationships_linked"`
	RelationshipsPruned int           `json:"relationships_pruned"`
	PatternsDecayed     int           `json:"patterns_decayed"`
	PatternsRemoved     int           `json:"patterns_removed"`
	NodesDecayed        int           `json:"nodes_decayed"`
	Errors              []StepError   `json:"errors,omitempty"`
}

// Consolidate runs promotion, pattern extraction, knowledge update, concept
// linking and decay in order. A failing step is recorded and skipped.
func (m *Manager) Consolidate() ConsolidationReport {
	m.maint.Lock()
	defer m.maint.Unlock()
	return m.consolidate()
}

func (m *Manager) consolidate() ConsolidationReport {
	r := ConsolidationReport{AgentID: m.agentID, StartedAt: m.now()}
	steps := []struct {
		name string
		fn   func(*ConsolidationReport) error
	}{
		{"promote", m.promoteContexts},
		{"extract_patterns", m.extractPatterns},
		{"update_knowledge", m.updateKnowledge},
		{"link_concepts", m.linkConcepts},
		{"decay", m.applyDecay},
	}
	for _, s := range steps {
		if err := runStep(s.name, func() error { return s.fn(&r) }); err != nil {
			r.Errors = append(r.Errors, StepError{Step: s.name, Error: err.Error()})
			m.logger.Warn("consolidation step failed",
				zap.String("step", s.name), zap.Error(err))
		}
	}
	r.Duration = m.now().Sub(r.StartedAt)

	m.logger.Info("memory consolidated",
		zap.Int("promoted", r.Promoted),
		zap.Int("patterns", r.PatternsExtracted),
		zap.Int("knowledge_created", r.KnowledgeCreated),
		zap.Int("knowledge_updated", r.KnowledgeUpdated),
		zap.Int("linked", r.RelationshipsLinked),
		zap.Int("patterns_removed", r.PatternsRemoved))
	return r
}

// runStep converts a panic inside fn into an error.
func runStep(name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", name, p)
		}
	}()
	return fn()
}

// promoteContexts moves significant conversation contexts into long-term
// customer profiles.
func (m *Manager) promoteContexts(r *ConsolidationReport) error {
	unlock := m.lock(TierShortTerm, TierLongTerm)
	defer unlock()

	st, lt := m.tiers[TierShortTerm], m.tiers[TierLongTerm]
	list := st.lists[CollCurrentContext]
	for i, rec := range list {
		c, ok := typed[ConversationContext](rec)
		if !ok || (c.Priority <= m.cfg.PromotePriority && len(c.Messages) <= m.cfg.PromoteMessages) {
			continue
		}
		profile := &CustomerProfile{
			CustomerID:   c.CustomerID,
			Email:        c.Email,
			Channel:      c.Channel,
			Priority:     c.Priority,
			PromotedFrom: rec.ID,
		}
		for _, msg := range c.Messages {
			ts := msg.Timestamp
			if ts.IsZero() {
				ts = rec.Timestamp
			}
			profile.Interactions = append(profile.Interactions, InteractionRecord{
				Role: msg.Role, Content: msg.Content, Timestamp: ts,
			})
		}
		lt.lists[CollCustomerProfiles] = append(lt.lists[CollCustomerProfiles], &MemoryRecord{
			ID:           uuid.New().String(),
			OwnerAgentID: rec.OwnerAgentID,
			RecordType:   "customer_profile",
			Timestamp:    m.now(),
			Payload:      profile,
		})
		list[i] = nil
		r.Promoted++
	}
	st.lists[CollCurrentContext] = removeNil(list)
	return nil
}

type outcomeGroup struct {
	key     string
	count   int
	success int
}

// groupOrdered buckets records by key, keeping first-seen order.
func groupOrdered(keys []string, success []bool) []*outcomeGroup {
	idx := make(map[string]*outcomeGroup)
	var out []*outcomeGroup
	for i, k := range keys {
		g, ok := idx[k]
		if !ok {
			g = &outcomeGroup{key: k}
			idx[k] = g
			out = append(out, g)
		}
		g.count++
		if success[i] {
			g.success++
		}
	}
	return out
}

func interactionKey(i *Interaction) string {
	return i.Type + "_" + i.Outcome
}

func interactionSucceeded(i *Interaction) bool {
	o := strings.ToLower(i.Outcome)
	return o == "positive" || o == "conversion"
}

// extractPatterns derives learning patterns from repeated episodic outcomes.
func (m *Manager) extractPatterns(r *ConsolidationReport) error {
	unlock := m.lock(TierLongTerm, TierEpisodic)
	defer unlock()

	lt, ep := m.tiers[TierLongTerm], m.tiers[TierEpisodic]

	var keys []string
	var wins []bool
	for _, rec := range ep.lists[CollSuccessfulInteraction] {
		if i, ok := typed[Interaction](rec); ok {
			keys = append(keys, interactionKey(i))
			wins = append(wins, interactionSucceeded(i))
		}
	}
	for _, g := range groupOrdered(keys, wins) {
		if g.count < m.cfg.InteractionGroupMin {
			continue
		}
		m.upsertPattern(lt, g, "interaction", "successfulInteractions", g.key)
		r.PatternsExtracted++
	}

	keys, wins = nil, nil
	for _, rec := range ep.lists[CollDecisionOutcomes] {
		d, ok := typed[DecisionOutcome](rec)
		if !ok || d.key() == "" {
			continue
		}
		keys = append(keys, d.key())
		wins = append(wins, d.Success || d.Impact > 0)
	}
	for _, g := range groupOrdered(keys, wins) {
		if g.count < m.cfg.DecisionGroupMin {
			continue
		}
		m.upsertPattern(lt, g, "decision", "decisionOutcomes", "decision_"+g.key)
		r.PatternsExtracted++
	}
	return nil
}

// upsertPattern refreshes the pattern named name, or appends it.
func (m *Manager) upsertPattern(lt *tierStore, g *outcomeGroup, kind, source, name string) {
	rate := float64(g.success) / float64(g.count)
	now := m.now()
	for _, rec := range lt.lists[CollLearningPatterns] {
		p, ok := typed[LearningPattern](rec)
		if !ok || p.Pattern != name {
			continue
		}
		p.Confidence = clamp01(rate)
		p.SuccessRate = rate
		p.Applications = g.count
		p.LastUsed = now
		return
	}
	lt.lists[CollLearningPatterns] = append(lt.lists[CollLearningPatterns], &MemoryRecord{
		ID:           uuid.New().String(),
		OwnerAgentID: m.agentID,
		RecordType:   "learning_pattern",
		Timestamp:    now,
		Payload: &LearningPattern{
			Pattern:      name,
			Type:         kind,
			Confidence:   clamp01(rate),
			SuccessRate:  rate,
			Applications: g.count,
			LastUsed:     now,
			Source:       source,
		},
	})
}

// updateKnowledge feeds recent contextual learnings into domain knowledge.
func (m *Manager) updateKnowledge(r *ConsolidationReport) error {
	unlock := m.lock(TierEpisodic, TierSemantic)
	defer unlock()

	ep, sem := m.tiers[TierEpisodic], m.tiers[TierSemantic]
	now := m.now()
	for _, rec := range ep.lists[CollContextualLearnings] {
		if now.Sub(rec.Timestamp) > m.cfg.LearningWindow {
			continue
		}
		l, ok := typed[ContextualLearning](rec)
		if !ok || l.concept() == "" {
			continue
		}
		if n := findNode(sem, l.concept()); n != nil {
			n.Confidence = min(n.Confidence+0.1, 1.0)
			n.LastUpdated = now
			r.KnowledgeUpdated++
			continue
		}
		desc := l.Description
		if desc == "" {
			desc = l.Pattern
		}
		id := uuid.New().String()
		sem.lists[CollDomainKnowledge] = append(sem.lists[CollDomainKnowledge], &MemoryRecord{
			ID:           id,
			OwnerAgentID: rec.OwnerAgentID,
			RecordType:   "domain_knowledge",
			Timestamp:    now,
			Payload: &KnowledgeNode{
				ID:          id,
				Concept:     l.concept(),
				Description: desc,
				Confidence:  clamp01(l.Confidence),
				LastUpdated: now,
			},
		})
		r.KnowledgeCreated++
	}
	return nil
}

func findNode(sem *tierStore, concept string) *KnowledgeNode {
	for _, rec := range sem.lists[CollDomainKnowledge] {
		if n, ok := graphEntry[KnowledgeNode](rec); ok && strings.EqualFold(n.Concept, concept) {
			return n
		}
	}
	return nil
}

// nodes returns the typed knowledge nodes of sem with their records. Nodes
// without an id take the record id.
func nodes(sem *tierStore) ([]*MemoryRecord, []*KnowledgeNode) {
	var recs []*MemoryRecord
	var out []*KnowledgeNode
	for _, rec := range sem.lists[CollDomainKnowledge] {
		n, ok := graphEntry[KnowledgeNode](rec)
		if !ok {
			continue
		}
		if n.ID == "" {
			n.ID = rec.ID
		}
		recs = append(recs, rec)
		out = append(out, n)
	}
	return recs, out
}

// pruneRelationships drops relationships whose endpoints are not in ids,
// along with entries that do not decode as a relationship.
func pruneRelationships(sem *tierStore, ids map[string]bool) int {
	list := sem.lists[CollRelationships]
	var pruned int
	for i, rec := range list {
		rel, ok := graphEntry[Relationship](rec)
		if !ok || !ids[rel.Source] || !ids[rel.Target] {
			list[i] = nil
			pruned++
		}
	}
	sem.lists[CollRelationships] = removeNil(list)
	return pruned
}

// linkConcepts prunes dangling relationships, then relates similar nodes.
func (m *Manager) linkConcepts(r *ConsolidationReport) error {
	unlock := m.lock(TierSemantic)
	defer unlock()

	sem := m.tiers[TierSemantic]
	_, ns := nodes(sem)
	ids := make(map[string]bool, len(ns))
	sets := make([]wordSet, len(ns))
	for i, n := range ns {
		ids[n.ID] = true
		sets[i] = nodeWords(n)
	}
	r.RelationshipsPruned = pruneRelationships(sem, ids)

	var rels []*Relationship
	for _, rec := range sem.lists[CollRelationships] {
		if rel, ok := graphEntry[Relationship](rec); ok {
			rels = append(rels, rel)
		}
	}
	connected := func(a, b string) bool {
		for _, rel := range rels {
			if rel.connects(a, b) {
				return true
			}
		}
		return false
	}

	now := m.now()
	for i := 0; i < len(ns); i++ {
		for j := i + 1; j < len(ns); j++ {
			a, b := ns[i], ns[j]
			if a.ID == b.ID || connected(a.ID, b.ID) {
				continue
			}
			sim := jaccard(sets[i], sets[j])
			if sim <= m.cfg.LinkSimilarity {
				continue
			}
			rel := &Relationship{Source: a.ID, Target: b.ID, Type: RelationRelatedTo, Strength: sim}
			sem.lists[CollRelationships] = append(sem.lists[CollRelationships], &MemoryRecord{
				ID:           uuid.New().String(),
				OwnerAgentID: m.agentID,
				RecordType:   "relationship",
				Timestamp:    now,
				Payload:      rel,
			})
			rels = append(rels, rel)
			a.Relationships = appendUnique(a.Relationships, b.ID)
			b.Relationships = appendUnique(b.Relationships, a.ID)
			r.RelationshipsLinked++
		}
	}
	return nil
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
