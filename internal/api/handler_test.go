package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/store"
	"go.uber.org/zap"
)

type testEnv struct {
	registry  *agent.Registry
	scheduler *orchestrator.Scheduler
	hub       *Hub
	handler   *Handler
	ts        *httptest.Server
}

// newTestEnv wires a Handler with in-memory deps only (no Postgres/Redis/Neo4j).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	reg := agent.NewRegistry(memory.DefaultConfig(), logger)
	for _, c := range []struct {
		id   string
		kind agent.Kind
	}{
		{"lead-triage", agent.KindTriage},
		{"engagement", agent.KindEngagement},
		{"campaign-optimizer", agent.KindOptimization},
	} {
		if _, err := reg.Register(c.id, c.kind); err != nil {
			t.Fatalf("register %s: %v", c.id, err)
		}
	}

	sched := orchestrator.NewScheduler(reg, orchestrator.SchedulerOpts{}, logger)
	hub := NewHub(reg, logger)
	sched.AddSink(hub)
	rep := orchestrator.NewReplicator(reg, 0, logger)

	h := NewHandler(reg, sched, rep, hub, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return &testEnv{registry: reg, scheduler: sched, hub: hub, handler: h, ts: ts}
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d (%v)", want, resp.StatusCode, body)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.ts, "/api/health")
	expectStatus(t, resp, 200)
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" || body["agents"] != float64(3) {
		t.Errorf("health = %v", body)
	}
}

func TestAgentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts, "/api/agents", map[string]string{"id": "nurture", "kind": "engagement"})
	expectStatus(t, resp, 201)
	var info agent.Info
	decodeJSON(t, resp, &info)
	if info.ID != "nurture" || info.Kind != agent.KindEngagement || info.Status != agent.StatusIdle {
		t.Errorf("created = %+v", info)
	}

	resp = postJSON(t, env.ts, "/api/agents", map[string]string{"id": "nurture", "kind": "engagement"})
	expectStatus(t, resp, 409)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/agents", map[string]string{"kind": "astrologer"})
	expectStatus(t, resp, 400)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/agents")
	var agents []agent.Info
	decodeJSON(t, resp, &agents)
	if len(agents) != 4 || agents[0].ID != "campaign-optimizer" {
		t.Errorf("agents = %+v", agents)
	}

	resp = getJSON(t, env.ts, "/api/agents/ghost")
	expectStatus(t, resp, 404)
	resp.Body.Close()
}

func TestStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	eng, _ := env.registry.Get("engagement")
	eng.Memory().Store(memory.TierEpisodic, "interaction", &memory.Interaction{Type: "email", Outcome: "positive"})

	resp := getJSON(t, env.ts, "/api/agents/engagement/stats")
	expectStatus(t, resp, 200)
	var stats memory.Stats
	decodeJSON(t, resp, &stats)
	if stats.EpisodicItems != 1 {
		t.Errorf("stats = %+v", stats)
	}

	resp = getJSON(t, env.ts, "/api/agents/ghost/stats")
	expectStatus(t, resp, 404)
	var errBody map[string]string
	decodeJSON(t, resp, &errBody)
	if errBody["error"] != StatsErrorMessage {
		t.Errorf("error body = %v", errBody)
	}

	resp = getJSON(t, env.ts, "/api/dashboard/stats")
	expectStatus(t, resp, 200)
	var dash map[string]map[string]interface{}
	decodeJSON(t, resp, &dash)
	if len(dash) != 3 || dash["engagement"]["episodicItems"] != float64(1) {
		t.Errorf("dashboard = %v", dash)
	}
}

func TestMemoryStoreQueryContents(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts, "/api/agents/engagement/memory/long_term", map[string]interface{}{
		"type":    "customer_profile",
		"payload": map[string]interface{}{"customer_id": "c-1", "email": "ana@example.com", "priority": "8"},
	})
	expectStatus(t, resp, 201)
	var rec struct {
		ID           string                 `json:"id"`
		OwnerAgentID string                 `json:"owner_agent_id"`
		Payload      map[string]interface{} `json:"payload"`
	}
	decodeJSON(t, resp, &rec)
	if rec.ID == "" || rec.OwnerAgentID != "engagement" || rec.Payload["priority"] != float64(8) {
		t.Errorf("record = %+v", rec)
	}

	// Unrouted tags outside short-term are dropped, not errors.
	resp = postJSON(t, env.ts, "/api/agents/engagement/memory/long_term", map[string]interface{}{
		"type": "horoscope", "payload": map[string]interface{}{"sign": "leo"},
	})
	expectStatus(t, resp, 202)
	resp.Body.Close()

	// ...but land in working memory on short-term.
	resp = postJSON(t, env.ts, "/api/agents/engagement/memory/short_term", map[string]interface{}{
		"type": "scratchpad", "payload": map[string]interface{}{"note": "call back friday"},
	})
	expectStatus(t, resp, 201)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/agents/engagement/memory/long_term/query", map[string]interface{}{"email": "ana@example.com"})
	expectStatus(t, resp, 200)
	var recs []map[string]interface{}
	decodeJSON(t, resp, &recs)
	if len(recs) != 1 {
		t.Errorf("query results = %v", recs)
	}

	resp = postJSON(t, env.ts, "/api/agents/engagement/memory/long_term/query", map[string]interface{}{"nothing": "matches"})
	expectStatus(t, resp, 200)
	decodeJSON(t, resp, &recs)
	if len(recs) != 0 {
		t.Errorf("expected empty list, got %v", recs)
	}

	resp = getJSON(t, env.ts, "/api/agents/engagement/memory/short_term")
	expectStatus(t, resp, 200)
	var contents map[string][]map[string]interface{}
	decodeJSON(t, resp, &contents)
	if len(contents["workingMemory"]) != 1 {
		t.Errorf("short-term contents = %v", contents)
	}

	resp = getJSON(t, env.ts, "/api/agents/engagement/memory/forever")
	expectStatus(t, resp, 400)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/agents/engagement/memory/semantic", map[string]interface{}{"type": "concept"})
	expectStatus(t, resp, 400)
	resp.Body.Close()
}

func TestConsolidateThroughAPI(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		resp := postJSON(t, env.ts, "/api/agents/engagement/engage", map[string]interface{}{
			"customer_id": "c-1", "channel": "email", "outcome": "positive",
		})
		expectStatus(t, resp, 200)
		resp.Body.Close()
	}

	resp := postJSON(t, env.ts, "/api/agents/engagement/consolidate", nil)
	expectStatus(t, resp, 200)
	var res orchestrator.PassResult
	decodeJSON(t, resp, &res)
	if res.Status != orchestrator.PassDone || res.Consolidation == nil || res.Consolidation.PatternsExtracted != 1 {
		t.Errorf("pass = %+v", res)
	}

	resp = postJSON(t, env.ts, "/api/agents/engagement/engage", map[string]interface{}{
		"customer_id": "c-2", "channel": "sms", "outcome": "negative",
	})
	var eng agent.EngagementResult
	decodeJSON(t, resp, &eng)
	if eng.RecommendedChannel != "email" || eng.Pattern == "" {
		t.Errorf("engagement = %+v", eng)
	}

	resp = postJSON(t, env.ts, "/api/agents/engagement/compress", nil)
	expectStatus(t, resp, 200)
	decodeJSON(t, resp, &res)
	if res.Kind != orchestrator.PassCompression || res.Compression == nil {
		t.Errorf("compress = %+v", res)
	}

	resp = postJSON(t, env.ts, "/api/agents/ghost/consolidate", nil)
	expectStatus(t, resp, 404)
	resp.Body.Close()
}

func TestAgentLogicRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts, "/api/agents/lead-triage/triage", map[string]interface{}{
		"lead_id": "L-1", "email": "cto@bigco.com", "budget": 60000,
		"company_size": 1200, "engagement": 80, "source": "referral",
	})
	expectStatus(t, resp, 200)
	var tri agent.TriageResult
	decodeJSON(t, resp, &tri)
	if tri.Lead.Category != agent.CategoryHot || tri.Lead.Score != 95 {
		t.Errorf("triage = %+v", tri.Lead)
	}

	resp = postJSON(t, env.ts, "/api/agents/lead-triage/triage", map[string]interface{}{"email": "x@y.z"})
	expectStatus(t, resp, 400)
	resp.Body.Close()

	// Wrong agent kind.
	resp = postJSON(t, env.ts, "/api/agents/engagement/triage", map[string]interface{}{"lead_id": "L-2"})
	expectStatus(t, resp, 400)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/agents/campaign-optimizer/optimize", map[string]interface{}{
		"campaign_id": "spring", "channel": "email", "spend": 1000, "revenue": 3000,
		"impressions": 10000, "clicks": 400, "conversions": 40,
	})
	expectStatus(t, resp, 200)
	var opt agent.OptimizationResult
	decodeJSON(t, resp, &opt)
	if opt.Decision != agent.DecisionScaleBudget {
		t.Errorf("optimize = %+v", opt)
	}
}

func TestOrchestratorRoutes(t *testing.T) {
	env := newTestEnv(t)
	src, _ := env.registry.Get("campaign-optimizer")
	src.Memory().Store(memory.TierSemantic, "domain_knowledge", &memory.KnowledgeNode{
		ID: "k1", Concept: "email campaigns", Confidence: 0.8,
	})

	resp := postJSON(t, env.ts, "/api/orchestrator/consolidate", nil)
	expectStatus(t, resp, 200)
	var results []orchestrator.PassResult
	decodeJSON(t, resp, &results)
	if len(results) != 3 {
		t.Errorf("results = %d", len(results))
	}

	resp = postJSON(t, env.ts, "/api/orchestrator/share/campaign-optimizer", nil)
	expectStatus(t, resp, 200)
	var share orchestrator.ShareResult
	decodeJSON(t, resp, &share)
	if share.Offered != 1 || share.Copied["engagement"] != 1 || share.Copied["lead-triage"] != 1 {
		t.Errorf("share = %+v", share)
	}

	resp = getJSON(t, env.ts, "/api/agents/engagement/knowledge")
	var graph struct {
		Nodes []memory.KnowledgeNode `json:"nodes"`
	}
	decodeJSON(t, resp, &graph)
	if len(graph.Nodes) != 1 || graph.Nodes[0].Concept != "email campaigns" {
		t.Errorf("knowledge = %+v", graph)
	}

	resp = postJSON(t, env.ts, "/api/orchestrator/share/ghost", nil)
	expectStatus(t, resp, 404)
	resp.Body.Close()
}

type fakeReports struct {
	entries []store.Entry
	err     error
}

func (f *fakeReports) ListReports(_ context.Context, agentID string, limit int) ([]store.Entry, error) {
	var out []store.Entry
	for _, e := range f.entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out, f.err
}

type fakeGraph struct{}

func (fakeGraph) Graph(_ context.Context, agentID string) ([]memory.KnowledgeNode, []memory.Relationship, error) {
	return []memory.KnowledgeNode{{ID: "n", Concept: agentID}}, nil, nil
}

func TestPersistenceRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp := getJSON(t, env.ts, "/api/agents/engagement/reports")
	expectStatus(t, resp, 503)
	resp.Body.Close()
	resp = getJSON(t, env.ts, "/api/agents/engagement/graph")
	expectStatus(t, resp, 503)
	resp.Body.Close()

	reports := &fakeReports{entries: []store.Entry{{ID: 1, AgentID: "engagement", Kind: "consolidation"}}}
	env.handler.SetReports(reports)
	env.handler.SetGraph(fakeGraph{})

	resp = getJSON(t, env.ts, "/api/agents/engagement/reports?limit=5")
	expectStatus(t, resp, 200)
	var entries []store.Entry
	decodeJSON(t, resp, &entries)
	if len(entries) != 1 || entries[0].Kind != "consolidation" {
		t.Errorf("entries = %+v", entries)
	}

	resp = getJSON(t, env.ts, "/api/agents/engagement/graph")
	expectStatus(t, resp, 200)
	var graph map[string][]map[string]interface{}
	decodeJSON(t, resp, &graph)
	if len(graph["nodes"]) != 1 || graph["relationships"] == nil {
		t.Errorf("graph = %v", graph)
	}

	reports.err = errors.New("db down")
	resp = getJSON(t, env.ts, "/api/agents/engagement/reports")
	expectStatus(t, resp, 500)
	resp.Body.Close()
}
