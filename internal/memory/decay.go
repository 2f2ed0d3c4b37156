package memory

import "time"

// applyDecay ages stale learning patterns and knowledge nodes. Patterns at or
// below the floor are removed; nodes only lose confidence.
func (m *Manager) applyDecay(r *ConsolidationReport) error {
	unlock := m.lock(TierLongTerm, TierSemantic)
	defer unlock()

	lt, sem := m.tiers[TierLongTerm], m.tiers[TierSemantic]
	now := m.now()

	list := lt.lists[CollLearningPatterns]
	for i, rec := range list {
		p, ok := typed[LearningPattern](rec)
		if !ok {
			continue
		}
		if stale(now, p.LastUsed, rec.Timestamp, m.cfg.PatternDecayAge) {
			p.Confidence *= m.cfg.DecayFactor
			r.PatternsDecayed++
		}
		if p.Confidence <= m.cfg.PatternFloor {
			list[i] = nil
			r.PatternsRemoved++
		}
	}
	lt.lists[CollLearningPatterns] = removeNil(list)

	for _, rec := range sem.lists[CollDomainKnowledge] {
		n, ok := graphEntry[KnowledgeNode](rec)
		if !ok {
			continue
		}
		if stale(now, n.LastUpdated, rec.Timestamp, m.cfg.NodeDecayAge) {
			n.Confidence = clamp01(n.Confidence * m.cfg.DecayFactor)
			r.NodesDecayed++
		}
	}
	return nil
}

// stale reports whether last (or fallback, when last is unset) is older
// than age.
func stale(now, last, fallback time.Time, age time.Duration) bool {
	if last.IsZero() {
		last = fallback
	}
	return now.Sub(last) > age
}
