package memory

import (
	"cmp"
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"time"
)

// MaxRankedResults bounds every ranked result set.
const MaxRankedResults = 50

// candidate is a record snapshot plus its flattened payload fields.
type candidate struct {
	rec    MemoryRecord
	fields map[string]any
}

func newCandidate(rec *MemoryRecord) candidate {
	c := rec.clone()
	return candidate{rec: c, fields: payloadFields(c.Payload)}
}

// payloadFields flattens a payload into its JSON field map so typed and
// free-form payloads compare the same way.
func payloadFields(p Payload) map[string]any {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

// normalize maps a query value onto the JSON value space.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Rank orders candidates by relevance to q for the requesting agent. The
// sort is stable and the result holds at most MaxRankedResults records.
func Rank(records []MemoryRecord, q Query, requesterID string, now time.Time) []MemoryRecord {
	cands := make([]candidate, len(records))
	for i := range records {
		cands[i] = newCandidate(&records[i])
	}
	return rank(cands, q, requesterID, now, DefaultConfig())
}

func rank(cands []candidate, q Query, requesterID string, now time.Time, cfg Config) []MemoryRecord {
	type scored struct {
		rec   MemoryRecord
		score float64
	}
	norm := make(map[string]any, len(q))
	for k, v := range q {
		norm[k] = normalize(v)
	}

	all := make([]scored, len(cands))
	for i, c := range cands {
		all[i] = scored{rec: c.rec, score: relevance(c, q.Type(), norm, requesterID, now, cfg.RecencyHalfLife)}
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	limit := min(cfg.MaxResults, MaxRankedResults)
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]MemoryRecord, len(all))
	for i, s := range all {
		out[i] = s.rec
	}
	return out
}

// relevance scores one candidate in [0,1].
func relevance(c candidate, qType string, q map[string]any, requesterID string, now time.Time, recency time.Duration) float64 {
	score := 0.5
	if qType != "" && (c.rec.RecordType == qType || c.fields["type"] == qType) {
		score += 0.3
	}
	if !c.rec.Timestamp.IsZero() {
		age := now.Sub(c.rec.Timestamp).Hours() / recency.Hours()
		score += 0.2 * math.Exp(-age)
	}
	if requesterID != "" && c.rec.OwnerAgentID == requesterID {
		score += 0.1
	}
	for k, v := range q {
		if fv, ok := c.fields[k]; ok && reflect.DeepEqual(fv, v) {
			score += 0.1
		}
	}
	return math.Min(score, 1.0)
}
