package memory

import (
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tierStore holds the sub-collections of one tier behind one lock.
type tierStore struct {
	mu    sync.RWMutex
	lists map[Collection][]*MemoryRecord
	slots map[string]*MemoryRecord // workingMemory, short-term only
}

func newTierStore(tier Tier) *tierStore {
	ts := &tierStore{lists: make(map[Collection][]*MemoryRecord)}
	for _, r := range routes {
		if r.tier == tier {
			ts.lists[r.coll] = nil
		}
	}
	if tier == TierShortTerm {
		ts.slots = make(map[string]*MemoryRecord)
	}
	return ts
}

func (ts *tierStore) count() int {
	n := len(ts.slots)
	for _, l := range ts.lists {
		n += len(l)
	}
	return n
}

// Manager is the four-tier adaptive memory of one agent identity.
// All methods are safe for concurrent use.
type Manager struct {
	agentID string
	cfg     Config
	now     func() time.Time
	tiers   map[Tier]*tierStore
	maint   sync.Mutex // serializes Consolidate and Compress
	logger  *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests of age-based behavior.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager allocates empty tiers for agentID.
func NewManager(agentID string, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		agentID: agentID,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		tiers:   make(map[Tier]*tierStore, len(Tiers)),
		logger:  logger.With(zap.String("agent", agentID)),
	}
	for _, t := range Tiers {
		m.tiers[t] = newTierStore(t)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Owner returns the agent identity this manager belongs to.
func (m *Manager) Owner() string { return m.agentID }

// Config returns the effective settings.
func (m *Manager) Config() Config { return m.cfg }

// lock write-locks the given tiers in the fixed tier order and returns the
// matching unlock.
func (m *Manager) lock(tiers ...Tier) func() {
	ordered := make([]Tier, 0, len(tiers))
	for _, t := range Tiers {
		if slices.Contains(tiers, t) {
			ordered = append(ordered, t)
		}
	}
	for _, t := range ordered {
		m.tiers[t].mu.Lock()
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			m.tiers[ordered[i]].mu.Unlock()
		}
	}
}

// Stats counts the items held in every tier.
func (m *Manager) Stats() Stats {
	count := func(t Tier) int {
		ts := m.tiers[t]
		ts.mu.RLock()
		defer ts.mu.RUnlock()
		return ts.count()
	}
	return Stats{
		ShortTermItems: count(TierShortTerm),
		LongTermItems:  count(TierLongTerm),
		EpisodicItems:  count(TierEpisodic),
		SemanticItems:  count(TierSemantic),
	}
}

// Contents returns a copy of every sub-collection of tier, keyed by
// collection name. Working memory slots are listed in tag order.
func (m *Manager) Contents(tier Tier) (map[Collection][]MemoryRecord, error) {
	ts, ok := m.tiers[tier]
	if !ok {
		return nil, ErrUnknownTier
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make(map[Collection][]MemoryRecord, len(ts.lists)+1)
	for coll, list := range ts.lists {
		recs := make([]MemoryRecord, len(list))
		for i, r := range list {
			recs[i] = r.clone()
		}
		out[coll] = recs
	}
	if ts.slots != nil {
		tags := make([]string, 0, len(ts.slots))
		for tag := range ts.slots {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		recs := make([]MemoryRecord, len(tags))
		for i, tag := range tags {
			recs[i] = ts.slots[tag].clone()
		}
		out[CollWorkingMemory] = recs
	}
	return out, nil
}

// KnowledgeGraph returns copies of the semantic nodes and relationships.
func (m *Manager) KnowledgeGraph() ([]KnowledgeNode, []Relationship) {
	ts := m.tiers[TierSemantic]
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var nodes []KnowledgeNode
	for _, rec := range ts.lists[CollDomainKnowledge] {
		if n, ok := rec.Payload.(*KnowledgeNode); ok {
			nodes = append(nodes, *n.clonePayload().(*KnowledgeNode))
		}
	}
	var rels []Relationship
	for _, rec := range ts.lists[CollRelationships] {
		if r, ok := rec.Payload.(*Relationship); ok {
			rels = append(rels, *r)
		}
	}
	return nodes, rels
}

func (m *Manager) shortTermOccupancy() int {
	ts := m.tiers[TierShortTerm]
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.lists[CollCurrentContext]) +
		len(ts.lists[CollActiveLeads]) +
		len(ts.lists[CollRecentActions])
}

// removeNil drops nil entries in place, keeping order.
func removeNil(list []*MemoryRecord) []*MemoryRecord {
	kept := list[:0]
	for _, r := range list {
		if r != nil {
			kept = append(kept, r)
		}
	}
	clear(list[len(kept):])
	return kept
}
