package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CompressionReport summarizes one compression pass.
type CompressionReport struct {
	AgentID                string        `json:"agent_id"`
	StartedAt              time.Time     `json:"started_at"`
	Duration               time.Duration `json:"duration_ns"`
	InteractionsCompressed int           `json:"interactions_compressed"`
	SummariesCreated       int           `json:"summaries_created"`
	NodesMerged            int           `json:"nodes_merged"`
	RelationshipsRemoved   int           `json:"relationships_removed"`
	Errors                 []StepError   `json:"errors,omitempty"`
}

// Compress folds repetitive interactions into contextual learnings, merges
// near-duplicate knowledge nodes and cleans up the relationship list. It is
// never triggered automatically.
func (m *Manager) Compress() CompressionReport {
	m.maint.Lock()
	defer m.maint.Unlock()

	r := CompressionReport{AgentID: m.agentID, StartedAt: m.now()}
	steps := []struct {
		name string
		fn   func(*CompressionReport) error
	}{
		{"summarize_interactions", m.summarizeInteractions},
		{"merge_knowledge", m.mergeKnowledge},
	}
	for _, s := range steps {
		if err := runStep(s.name, func() error { return s.fn(&r) }); err != nil {
			r.Errors = append(r.Errors, StepError{Step: s.name, Error: err.Error()})
			m.logger.Warn("compression step failed",
				zap.String("step", s.name), zap.Error(err))
		}
	}
	r.Duration = m.now().Sub(r.StartedAt)

	m.logger.Info("memory compressed",
		zap.Int("interactions", r.InteractionsCompressed),
		zap.Int("summaries", r.SummariesCreated),
		zap.Int("merged", r.NodesMerged),
		zap.Int("relationships_removed", r.RelationshipsRemoved))
	return r
}

type interactionGroup struct {
	key       string
	kind      string
	outcome   string
	idx       []int
	sentiment float64
	span      TimeSpan
}

func (m *Manager) summarizeInteractions(r *CompressionReport) error {
	unlock := m.lock(TierEpisodic)
	defer unlock()

	ep := m.tiers[TierEpisodic]
	list := ep.lists[CollSuccessfulInteraction]

	byKey := make(map[string]*interactionGroup)
	var order []*interactionGroup
	for i, rec := range list {
		in, ok := typed[Interaction](rec)
		if !ok {
			continue
		}
		key := interactionKey(in)
		g, ok := byKey[key]
		if !ok {
			g = &interactionGroup{key: key, kind: in.Type, outcome: in.Outcome,
				span: TimeSpan{Start: rec.Timestamp, End: rec.Timestamp}}
			byKey[key] = g
			order = append(order, g)
		}
		g.idx = append(g.idx, i)
		g.sentiment += in.Sentiment
		if rec.Timestamp.Before(g.span.Start) {
			g.span.Start = rec.Timestamp
		}
		if rec.Timestamp.After(g.span.End) {
			g.span.End = rec.Timestamp
		}
	}

	now := m.now()
	for _, g := range order {
		n := len(g.idx)
		if n <= m.cfg.CompressGroupMin {
			continue
		}
		span := g.span
		summary := &ContextualLearning{
			Pattern:          g.key,
			Description:      fmt.Sprintf("%d %s interactions with outcome %s", n, g.kind, g.outcome),
			Confidence:       min(float64(n)/10, 0.9),
			Frequency:        n,
			AverageSentiment: g.sentiment / float64(n),
			TimeSpan:         &span,
		}
		ep.lists[CollContextualLearnings] = append(ep.lists[CollContextualLearnings], &MemoryRecord{
			ID:           uuid.New().String(),
			OwnerAgentID: m.agentID,
			RecordType:   "contextual_learning",
			Timestamp:    now,
			Payload:      summary,
		})
		for _, i := range g.idx {
			list[i] = nil
		}
		r.InteractionsCompressed += n
		r.SummariesCreated++
	}
	ep.lists[CollSuccessfulInteraction] = removeNil(list)
	return nil
}

// mergeKnowledge folds near-duplicate nodes into the more confident one and
// drops dangling or duplicate relationships.
func (m *Manager) mergeKnowledge(r *CompressionReport) error {
	unlock := m.lock(TierSemantic)
	defer unlock()

	sem := m.tiers[TierSemantic]
	recs, ns := nodes(sem)
	sets := make([]wordSet, len(ns))
	for i, n := range ns {
		sets[i] = nodeWords(n)
	}
	dead := make([]bool, len(ns))

outer:
	for i := range ns {
		for j := i + 1; j < len(ns); j++ {
			if dead[i] {
				continue outer
			}
			if dead[j] || jaccard(sets[i], sets[j]) <= m.cfg.MergeSimilarity {
				continue
			}
			win, lose := i, j
			if ns[j].Confidence > ns[i].Confidence {
				win, lose = j, i
			}
			w, l := ns[win], ns[lose]
			w.Description = strings.TrimSpace(w.Description + " " + l.Description)
			for _, id := range l.Relationships {
				if id != w.ID {
					w.Relationships = appendUnique(w.Relationships, id)
				}
			}
			w.LastUpdated = m.now()
			sets[win] = nodeWords(w)
			dead[lose] = true
			r.NodesMerged++
		}
	}

	ids := make(map[string]bool, len(ns))
	for i, n := range ns {
		if dead[i] {
			for k, rec := range sem.lists[CollDomainKnowledge] {
				if rec == recs[i] {
					sem.lists[CollDomainKnowledge][k] = nil
				}
			}
			continue
		}
		ids[n.ID] = true
	}
	sem.lists[CollDomainKnowledge] = removeNil(sem.lists[CollDomainKnowledge])

	for i, n := range ns {
		if dead[i] {
			continue
		}
		kept := n.Relationships[:0]
		for _, id := range n.Relationships {
			if ids[id] {
				kept = append(kept, id)
			}
		}
		n.Relationships = kept
	}

	r.RelationshipsRemoved = pruneRelationships(sem, ids) + dedupeRelationships(sem)
	return nil
}

// dedupeRelationships keeps the first relationship per unordered pair and type.
func dedupeRelationships(sem *tierStore) int {
	type edge struct {
		a, b string
		t    RelationType
	}
	seen := make(map[edge]bool)
	list := sem.lists[CollRelationships]
	var removed int
	for i, rec := range list {
		rel, ok := graphEntry[Relationship](rec)
		if !ok {
			continue
		}
		e := edge{rel.Source, rel.Target, rel.Type}
		if e.b < e.a {
			e.a, e.b = e.b, e.a
		}
		if seen[e] {
			list[i] = nil
			removed++
			continue
		}
		seen[e] = true
	}
	sem.lists[CollRelationships] = removeNil(list)
	return removed
}
