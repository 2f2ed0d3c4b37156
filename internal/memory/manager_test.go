package memory

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	return NewManager("agent-test", DefaultConfig(), zap.NewNop(), opts...)
}

func mustStore(t *testing.T, m *Manager, tier Tier, tag string, p Payload) *MemoryRecord {
	t.Helper()
	rec, err := m.Store(tier, tag, p)
	if err != nil {
		t.Fatalf("store %s/%s: %v", tier, tag, err)
	}
	return rec
}

func contents(t *testing.T, m *Manager, tier Tier, coll Collection) []MemoryRecord {
	t.Helper()
	all, err := m.Contents(tier)
	if err != nil {
		t.Fatalf("contents %s: %v", tier, err)
	}
	return all[coll]
}

func TestNewManagerEmpty(t *testing.T) {
	m := newTestManager(t)
	if m.Owner() != "agent-test" {
		t.Errorf("owner = %q", m.Owner())
	}
	if got := m.Stats(); got.Total() != 0 {
		t.Errorf("new manager stats = %+v, want all zero", got)
	}
	for _, tier := range Tiers {
		all, err := m.Contents(tier)
		if err != nil {
			t.Fatalf("contents %s: %v", tier, err)
		}
		for coll, recs := range all {
			if len(recs) != 0 {
				t.Errorf("%s/%s has %d records", tier, coll, len(recs))
			}
		}
	}
}

func TestStoreCustomerProfileRouting(t *testing.T) {
	m := newTestManager(t)
	payloads := []Payload{
		&CustomerProfile{CustomerID: "c1", Email: "a@example.com"},
		Attributes{"customer_id": "c2"},
		Attributes{"anything": []any{1, 2, 3}},
		&Lead{LeadID: "l1"},
	}
	for _, p := range payloads {
		rec := mustStore(t, m, TierLongTerm, "customer_profile", p)
		if rec == nil {
			t.Fatal("customer_profile record was dropped")
		}
	}

	all, _ := m.Contents(TierLongTerm)
	for coll, recs := range all {
		want := 0
		if coll == CollCustomerProfiles {
			want = len(payloads)
		}
		if len(recs) != want {
			t.Errorf("%s has %d records, want %d", coll, len(recs), want)
		}
	}
}

func TestStoreFillsRecordFields(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, WithClock(clock.Now))

	rec := mustStore(t, m, TierEpisodic, "interaction", &Interaction{Type: "email", Outcome: "positive"})
	if rec.ID == "" {
		t.Error("expected generated id")
	}
	if rec.OwnerAgentID != "agent-test" {
		t.Errorf("owner = %q", rec.OwnerAgentID)
	}
	if !rec.Timestamp.Equal(clock.Now()) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, clock.Now())
	}

	shared, err := m.StoreRecord(TierSemantic, MemoryRecord{
		ID: "k1", OwnerAgentID: "other-agent", RecordType: "knowledge",
		Payload: &KnowledgeNode{ID: "k1", Concept: "churn"},
	})
	if err != nil {
		t.Fatalf("store record: %v", err)
	}
	if shared.OwnerAgentID != "other-agent" {
		t.Errorf("owner overwritten: %q", shared.OwnerAgentID)
	}
}

func TestWorkingMemoryOverwrite(t *testing.T) {
	m := newTestManager(t)
	mustStore(t, m, TierShortTerm, "scratch", Attributes{"note": "first"})
	mustStore(t, m, TierShortTerm, "scratch", Attributes{"note": "second"})
	mustStore(t, m, TierShortTerm, "draft", Attributes{"note": "other"})

	wm := contents(t, m, TierShortTerm, CollWorkingMemory)
	if len(wm) != 2 {
		t.Fatalf("working memory has %d slots, want 2", len(wm))
	}
	if wm[1].RecordType != "scratch" || wm[1].Payload.(Attributes)["note"] != "second" {
		t.Errorf("scratch slot = %+v, want last write", wm[1])
	}

	got, err := m.Retrieve(TierShortTerm, Query{"key": "scratch"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("retrieve by key returned %d, want 1", len(got))
	}
}

func TestWorkingMemoryRetrieveOrder(t *testing.T) {
	m := newTestManager(t)
	fields := Attributes{"channel": "email", "region": "emea", "segment": "smb", "stage": "trial", "tier": "gold"}
	mustStore(t, m, TierShortTerm, "draft", maps.Clone(fields))
	mustStore(t, m, TierShortTerm, "scratch", maps.Clone(fields))

	q := Query{"type": "scratch", "key": "draft"}
	for k, v := range fields {
		q[k] = v
	}
	for i := 0; i < 20; i++ {
		got, err := m.Retrieve(TierShortTerm, q)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(got) != 2 || got[0].RecordType != "scratch" || got[1].RecordType != "draft" {
			t.Fatalf("call %d order = %v, want scratch then draft", i, recordTypes(got))
		}
	}
}

func recordTypes(recs []MemoryRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.RecordType
	}
	return out
}

func TestStoreUnknownTagDropped(t *testing.T) {
	m := newTestManager(t)
	for _, tier := range []Tier{TierLongTerm, TierEpisodic, TierSemantic} {
		rec, err := m.Store(tier, "mystery", Attributes{"x": 1})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tier, err)
		}
		if rec != nil {
			t.Errorf("%s: expected dropped record, got %+v", tier, rec)
		}
	}
	if s := m.Stats(); s.Total() != 0 {
		t.Errorf("stats after dropped writes = %+v", s)
	}
}

func TestStoreErrors(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Store("mid_term", "lead", &Lead{}); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("unknown tier err = %v", err)
	}
	if _, err := m.Store(TierShortTerm, "lead", nil); !errors.Is(err, ErrNilPayload) {
		t.Errorf("nil payload err = %v", err)
	}
	if _, err := m.Retrieve("mid_term", Query{}); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("retrieve unknown tier err = %v", err)
	}
	if _, err := ParseTier("semantic"); err != nil {
		t.Errorf("parse semantic: %v", err)
	}
}

func TestRetrieveCombinesCollections(t *testing.T) {
	m := newTestManager(t)
	mustStore(t, m, TierLongTerm, "customer_profile", &CustomerProfile{CustomerID: "c1", Email: "ana@example.com"})
	mustStore(t, m, TierLongTerm, "campaign", &Campaign{CampaignID: "cmp-1", Type: "newsletter"})
	mustStore(t, m, TierLongTerm, "metric", &PerformanceMetric{Metric: "ctr", Value: 0.2})

	got, err := m.Retrieve(TierLongTerm, Query{"type": "newsletter", "email": "ana@example.com"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want profile and campaign", len(got))
	}
	types := map[string]bool{}
	for _, r := range got {
		types[r.RecordType] = true
	}
	if !types["customer_profile"] || !types["campaign"] {
		t.Errorf("record types = %v", types)
	}

	none, err := m.Retrieve(TierLongTerm, Query{"unrelated": true})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}

func TestRetrieveByCanonicalType(t *testing.T) {
	m := newTestManager(t)
	mustStore(t, m, TierSemantic, "rule", &Rule{Condition: "score > 80", Action: "route_to_sales"})
	mustStore(t, m, TierSemantic, "concept", &Concept{Name: "churn"})

	got, err := m.Retrieve(TierSemantic, Query{"type": "rule"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || got[0].RecordType != "rule" {
		t.Fatalf("got %+v, want the rule", got)
	}
}

func TestRetrieveReturnsCopies(t *testing.T) {
	m := newTestManager(t)
	mustStore(t, m, TierShortTerm, "lead", &Lead{LeadID: "l1", Score: 40})

	got, _ := m.Retrieve(TierShortTerm, Query{"lead_id": "l1"})
	if len(got) != 1 {
		t.Fatalf("got %d", len(got))
	}
	got[0].Payload.(*Lead).Score = 99

	again, _ := m.Retrieve(TierShortTerm, Query{"lead_id": "l1"})
	if s := again[0].Payload.(*Lead).Score; s != 40 {
		t.Errorf("stored score mutated through result: %v", s)
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(t)
	mustStore(t, m, TierShortTerm, "lead", &Lead{LeadID: "l1"})
	mustStore(t, m, TierShortTerm, "action", &Action{Action: "email_sent"})
	mustStore(t, m, TierShortTerm, "note", Attributes{"n": 1})
	mustStore(t, m, TierLongTerm, "campaign", &Campaign{CampaignID: "c"})
	mustStore(t, m, TierEpisodic, "problem_resolution", &ProblemResolution{Problem: "bounce"})
	mustStore(t, m, TierSemantic, "concept", &Concept{Name: "ltv"})
	mustStore(t, m, TierSemantic, "rule", &Rule{Condition: "x"})

	want := Stats{ShortTermItems: 3, LongTermItems: 1, EpisodicItems: 1, SemanticItems: 2}
	if got := m.Stats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestAutoConsolidationOnThreshold(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 4; i++ {
		mustStore(t, m, TierEpisodic, "interaction", &Interaction{Type: "email", Outcome: "positive"})
	}
	for i := 0; i < 51; i++ {
		mustStore(t, m, TierShortTerm, "action", &Action{Action: fmt.Sprintf("a%d", i)})
	}
	if got := contents(t, m, TierLongTerm, CollLearningPatterns); len(got) != 1 {
		t.Fatalf("expected automatic consolidation to extract a pattern, got %d", len(got))
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := newTestManager(t)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = m.Store(TierShortTerm, "lead", &Lead{LeadID: fmt.Sprintf("%d-%d", w, i), Score: float64(i)})
				_, _ = m.Store(TierEpisodic, "interaction", &Interaction{Type: "call", Outcome: "positive"})
				_, _ = m.Store(TierSemantic, "knowledge", &KnowledgeNode{Concept: fmt.Sprintf("c%d", i%5)})
				if _, err := m.Retrieve(TierShortTerm, Query{"type": "lead"}); err != nil {
					t.Errorf("retrieve: %v", err)
				}
				if i%25 == 0 {
					m.Consolidate()
				}
				if i%50 == 0 {
					m.Compress()
				}
				_ = m.Stats()
			}
		}(w)
	}
	wg.Wait()

	if n := len(contents(t, m, TierShortTerm, CollActiveLeads)); n > 100 {
		t.Errorf("active leads = %d, exceeds capacity", n)
	}
}
