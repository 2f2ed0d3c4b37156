package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/coder/websocket"
)

func dialHub(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readStats(t *testing.T, conn *websocket.Conn) StatsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg StatsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestHubSnapshotAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	conn := dialHub(t, env)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		msg := readStats(t, conn)
		if msg.Type != "stats" || msg.Stats == nil {
			t.Errorf("snapshot message = %+v", msg)
		}
		seen[msg.AgentID] = true
	}
	if len(seen) != 3 {
		t.Errorf("snapshot covered %v", seen)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"refresh"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readStats(t, conn); msg.AgentID != "campaign-optimizer" {
		t.Errorf("refresh starts with %q", msg.AgentID)
	}
}

func TestHubBroadcastsPasses(t *testing.T) {
	env := newTestEnv(t)
	conn := dialHub(t, env)
	for i := 0; i < 3; i++ {
		readStats(t, conn)
	}
	deadline := time.Now().Add(5 * time.Second)
	for env.hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	eng, _ := env.registry.Get("engagement")
	eng.Memory().Store(memory.TierEpisodic, "interaction", &memory.Interaction{Type: "sms", Outcome: "positive"})

	resp := postJSON(t, env.ts, "/api/agents/engagement/consolidate", nil)
	expectStatus(t, resp, 200)
	resp.Body.Close()

	msg := readStats(t, conn)
	if msg.AgentID != "engagement" || msg.Kind != "consolidation" || msg.Stats == nil || msg.Stats.EpisodicItems != 1 {
		t.Errorf("pass message = %+v", msg)
	}
}
