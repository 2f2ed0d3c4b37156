package memory

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func TestRelevanceComponents(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := MemoryRecord{
		ID:           "r1",
		OwnerAgentID: "triage",
		RecordType:   "lead",
		Payload:      &Lead{LeadID: "l1", Score: 70, Category: "hot"},
	}

	cases := []struct {
		name  string
		ts    time.Time
		q     Query
		agent string
		want  float64
	}{
		{"base", time.Time{}, Query{}, "", 0.5},
		{"type match", time.Time{}, Query{"type": "lead"}, "", 0.8},
		{"fresh timestamp", now, Query{}, "", 0.7},
		{"30 day old timestamp", now.Add(-30 * 24 * time.Hour), Query{}, "", 0.5 + 0.2*math.Exp(-1)},
		{"owner", time.Time{}, Query{}, "triage", 0.6},
		{"field match", time.Time{}, Query{"category": "hot"}, "", 0.6},
		{"numeric field match", time.Time{}, Query{"score": 70}, "", 0.6},
		{"field mismatch", time.Time{}, Query{"category": "cold"}, "", 0.5},
		{"clamped", now, Query{"type": "lead", "category": "hot", "lead_id": "l1"}, "triage", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := rec
			r.Timestamp = tc.ts
			norm := make(map[string]any, len(tc.q))
			for k, v := range tc.q {
				norm[k] = normalize(v)
			}
			got := relevance(newCandidate(&r), tc.q.Type(), norm, tc.agent, now, 30*24*time.Hour)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("relevance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRankOrderAndStability(t *testing.T) {
	now := time.Now()
	records := []MemoryRecord{
		{ID: "a", RecordType: "action", Payload: &Action{Action: "call"}},
		{ID: "b", RecordType: "lead", Payload: &Lead{LeadID: "x"}},
		{ID: "c", RecordType: "action", Payload: &Action{Action: "call"}},
		{ID: "d", RecordType: "lead", Payload: &Lead{LeadID: "y"}},
	}
	got := Rank(records, Query{"type": "lead"}, "", now)
	order := ""
	for _, r := range got {
		order += r.ID
	}
	if order != "bdac" {
		t.Errorf("order = %q, want bdac", order)
	}

	again := Rank(records, Query{"type": "lead"}, "", now)
	for i := range got {
		if got[i].ID != again[i].ID {
			t.Fatalf("rank not deterministic at %d", i)
		}
	}
}

func TestRankCapsResults(t *testing.T) {
	now := time.Now()
	var records []MemoryRecord
	for i := 0; i < 120; i++ {
		records = append(records, MemoryRecord{
			ID:         fmt.Sprint(i),
			RecordType: "action",
			Timestamp:  now.Add(-time.Duration(i) * time.Hour),
			Payload:    &Action{Action: "email"},
		})
	}
	got := Rank(records, Query{"type": "action"}, "", now)
	if len(got) != MaxRankedResults {
		t.Fatalf("len = %d, want %d", len(got), MaxRankedResults)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Fatalf("results not in non-increasing score order at %d", i)
		}
	}
}

func TestRetrievePrefersOwnRecords(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, WithClock(clock.Now))
	if _, err := m.StoreRecord(TierSemantic, MemoryRecord{
		OwnerAgentID: "engagement", RecordType: "concept", Payload: &Concept{Name: "nurture"},
	}); err != nil {
		t.Fatal(err)
	}
	mustStore(t, m, TierSemantic, "concept", &Concept{Name: "nurture"})

	got, err := m.Retrieve(TierSemantic, Query{"name": "nurture"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].OwnerAgentID != "agent-test" {
		t.Fatalf("got %+v, want own record first", got)
	}

	got, _ = m.Retrieve(TierSemantic, Query{"name": "nurture", "agent_id": "engagement"})
	if got[0].OwnerAgentID != "engagement" {
		t.Errorf("agent_id in query should select the requester, got %q first", got[0].OwnerAgentID)
	}
}
