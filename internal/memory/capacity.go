package memory

import (
	"encoding/json"
	"slices"
)

// eviction decides which short-term entry goes first when a list overflows.
type eviction struct {
	value func(*MemoryRecord) float64
	// newestOnTie evicts the later-inserted entry among equal values.
	newestOnTie bool
}

var evictions = map[Collection]eviction{
	CollCurrentContext: {value: contextPriority, newestOnTie: true},
	CollActiveLeads:    {value: leadScore, newestOnTie: true},
	CollRecentActions: {value: func(r *MemoryRecord) float64 {
		return float64(r.Timestamp.UnixNano())
	}},
}

// enforceCapacity trims coll back to MaxShortTermItems. The caller holds the
// short-term write lock.
func (m *Manager) enforceCapacity(ts *tierStore, coll Collection) {
	ev, ok := evictions[coll]
	if !ok {
		return
	}
	list := ts.lists[coll]
	for len(list) > m.cfg.MaxShortTermItems {
		worst := 0
		for i := 1; i < len(list); i++ {
			vi, vw := ev.value(list[i]), ev.value(list[worst])
			if vi < vw || (vi == vw && ev.newestOnTie) {
				worst = i
			}
		}
		list = slices.Delete(list, worst, worst+1)
	}
	ts.lists[coll] = list
}

func contextPriority(r *MemoryRecord) float64 {
	switch p := r.Payload.(type) {
	case *ConversationContext:
		return float64(p.Priority)
	case Attributes:
		return p.number("priority")
	}
	return 0
}

func leadScore(r *MemoryRecord) float64 {
	switch p := r.Payload.(type) {
	case *Lead:
		return p.Score
	case Attributes:
		return p.number("score")
	}
	return 0
}

// number reads a numeric attribute, or 0 when absent or not a number.
func (a Attributes) number(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
