package memory

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Collection names a sub-collection inside a tier.
type Collection string

const (
	CollCurrentContext        Collection = "currentContext"
	CollActiveLeads           Collection = "activeLeads"
	CollRecentActions         Collection = "recentActions"
	CollWorkingMemory         Collection = "workingMemory"
	CollCustomerProfiles      Collection = "customerProfiles"
	CollCampaignHistory       Collection = "campaignHistory"
	CollPerformanceMetrics    Collection = "performanceMetrics"
	CollLearningPatterns      Collection = "learningPatterns"
	CollSuccessfulInteraction Collection = "successfulInteractions"
	CollProblemResolutions    Collection = "problemResolutions"
	CollDecisionOutcomes      Collection = "decisionOutcomes"
	CollContextualLearnings   Collection = "contextualLearnings"
	CollDomainKnowledge       Collection = "domainKnowledge"
	CollRelationships         Collection = "relationships"
	CollConcepts              Collection = "concepts"
	CollRules                 Collection = "rules"
)

// route binds record tags to a sub-collection. The first tag is canonical.
// keys are the query fields that select the collection for reads.
type route struct {
	tier Tier
	coll Collection
	tags []string
	keys []string
}

var routes = []route{
	{TierShortTerm, CollCurrentContext, []string{"conversation_context", "context"}, []string{"customer_id", "session_id", "priority"}},
	{TierShortTerm, CollActiveLeads, []string{"lead", "active_lead"}, []string{"lead_id", "email", "score", "category"}},
	{TierShortTerm, CollRecentActions, []string{"action", "recent_action"}, []string{"action", "target"}},

	{TierLongTerm, CollCustomerProfiles, []string{"customer_profile"}, []string{"customer_id", "email"}},
	{TierLongTerm, CollCampaignHistory, []string{"campaign", "campaign_history"}, []string{"type", "campaign_id", "channel"}},
	{TierLongTerm, CollPerformanceMetrics, []string{"performance_metric", "metric"}, []string{"metric", "campaign_id"}},
	{TierLongTerm, CollLearningPatterns, []string{"learning_pattern", "pattern"}, []string{"pattern"}},

	{TierEpisodic, CollSuccessfulInteraction, []string{"successful_interaction", "interaction"}, []string{"outcome", "customer_id", "channel"}},
	{TierEpisodic, CollProblemResolutions, []string{"problem_resolution"}, []string{"problem"}},
	{TierEpisodic, CollDecisionOutcomes, []string{"decision_outcome", "decision"}, []string{"decision", "action_type"}},
	{TierEpisodic, CollContextualLearnings, []string{"contextual_learning", "learning"}, []string{"pattern", "concept"}},

	{TierSemantic, CollDomainKnowledge, []string{"domain_knowledge", "knowledge"}, []string{"concept"}},
	{TierSemantic, CollRelationships, []string{"relationship"}, []string{"source", "target"}},
	{TierSemantic, CollConcepts, []string{"concept"}, []string{"name"}},
	{TierSemantic, CollRules, []string{"rule"}, []string{"condition"}},
}

func routeFor(tier Tier, tag string) (route, bool) {
	for _, r := range routes {
		if r.tier != tier {
			continue
		}
		for _, t := range r.tags {
			if t == tag {
				return r, true
			}
		}
	}
	return route{}, false
}

// Query is a set of attribute constraints. The "type" key names a record
// type; every other key is matched against payload fields.
type Query map[string]any

// Type returns the query's record type, if any.
func (q Query) Type() string {
	s, _ := q["type"].(string)
	return s
}

func (q Query) has(key string) bool {
	_, ok := q[key]
	return ok
}

// selects reports whether r holds candidates for q.
func (r route) selects(q Query) bool {
	if t := q.Type(); t != "" {
		for _, tag := range r.tags {
			if tag == t {
				return true
			}
		}
	}
	for _, k := range r.keys {
		if q.has(k) {
			return true
		}
	}
	return false
}

// Store writes payload under tier, dispatching on recordType. A record whose
// tag has no sub-collection is kept in short-term working memory and dropped
// for the other tiers; in that case Store returns nil and no error.
func (m *Manager) Store(tier Tier, recordType string, payload Payload) (*MemoryRecord, error) {
	return m.StoreRecord(tier, MemoryRecord{RecordType: recordType, Payload: payload})
}

// StoreRecord writes a prepared record. Missing ids, owners and timestamps are
// filled in; an existing owner is preserved.
func (m *Manager) StoreRecord(tier Tier, rec MemoryRecord) (*MemoryRecord, error) {
	ts, ok := m.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("store %q: %w", tier, ErrUnknownTier)
	}
	if rec.Payload == nil {
		return nil, fmt.Errorf("store %s/%s: %w", tier, rec.RecordType, ErrNilPayload)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.OwnerAgentID == "" {
		rec.OwnerAgentID = m.agentID
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}
	stored := rec.clone()

	// The caller's copy is taken under the lock; consolidation may rewrite the
	// stored record as soon as it is released.
	var out *MemoryRecord
	ts.mu.Lock()
	r, routed := routeFor(tier, rec.RecordType)
	switch {
	case routed:
		ts.lists[r.coll] = append(ts.lists[r.coll], &stored)
		if tier == TierShortTerm {
			m.enforceCapacity(ts, r.coll)
		}
	case tier == TierShortTerm:
		ts.slots[rec.RecordType] = &stored
	}
	if routed || tier == TierShortTerm {
		cp := stored.clone()
		out = &cp
	}
	ts.mu.Unlock()

	m.maybeConsolidate()

	if out == nil {
		m.logger.Debug("memory record dropped",
			zap.String("tier", string(tier)),
			zap.String("type", rec.RecordType))
	}
	return out, nil
}

// maybeConsolidate runs a pass when short-term occupancy is over threshold
// and no other pass is in progress.
func (m *Manager) maybeConsolidate() {
	if m.shortTermOccupancy() <= m.cfg.ConsolidationThreshold {
		return
	}
	if !m.maint.TryLock() {
		return
	}
	defer m.maint.Unlock()
	m.consolidate()
}

// Retrieve returns records from tier matching q, best first, capped at the
// configured result limit. Predicates are OR-combined.
func (m *Manager) Retrieve(tier Tier, q Query) ([]MemoryRecord, error) {
	ts, ok := m.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("retrieve %q: %w", tier, ErrUnknownTier)
	}

	ts.mu.RLock()
	var cands []candidate
	for _, r := range routes {
		if r.tier != tier || !r.selects(q) {
			continue
		}
		for _, rec := range ts.lists[r.coll] {
			cands = append(cands, newCandidate(rec))
		}
	}
	if tier == TierShortTerm {
		// The type slot goes before the key slot so equal scores rank the same
		// way on every call.
		key, _ := q["key"].(string)
		if rec, ok := ts.slots[q.Type()]; ok && q.Type() != "" {
			cands = append(cands, newCandidate(rec))
		}
		if rec, ok := ts.slots[key]; ok && key != "" && key != q.Type() {
			cands = append(cands, newCandidate(rec))
		}
	}
	ts.mu.RUnlock()

	requester := m.agentID
	if id, ok := q["agent_id"].(string); ok && id != "" {
		requester = id
	}
	return rank(cands, q, requester, m.now(), m.cfg), nil
}
