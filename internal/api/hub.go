package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// StatsMessage is pushed to dashboard clients.
type StatsMessage struct {
	Type    string                `json:"type"`
	AgentID string                `json:"agent_id"`
	Kind    orchestrator.PassKind `json:"kind,omitempty"`
	Stats   *memory.Stats         `json:"stats,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// Hub relays memory stats to WebSocket dashboards. It sends a snapshot of
// every agent on connect and on {"type":"refresh"}, and one message per
// finished maintenance pass.
type Hub struct {
	registry *agent.Registry
	clients  sync.Map
	nextID   atomic.Int64
	count    atomic.Int64
	logger   *zap.Logger
}

// NewHub creates a stats relay.
func NewHub(registry *agent.Registry, logger *zap.Logger) *Hub {
	return &Hub{registry: registry, logger: logger}
}

// ServeHTTP upgrades the request and serves one dashboard client.
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		hub.logger.Warn("websocket accept", zap.Error(err))
		return
	}

	clientID := fmt.Sprintf("dash-%d", hub.nextID.Add(1))
	client := &wsClient{conn: conn, id: clientID}
	hub.clients.Store(clientID, client)
	hub.count.Add(1)
	hub.logger.Debug("dashboard connected", zap.String("client", clientID))

	defer func() {
		hub.clients.Delete(clientID)
		hub.count.Add(-1)
		conn.CloseNow()
		hub.logger.Debug("dashboard disconnected", zap.String("client", clientID))
	}()

	ctx := r.Context()
	hub.snapshot(ctx, client)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Type == "refresh" {
			hub.snapshot(ctx, client)
		}
	}
}

// Clients returns the number of connected dashboards.
func (hub *Hub) Clients() int { return int(hub.count.Load()) }

// HandlePass broadcasts the post-pass stats of one agent.
func (hub *Hub) HandlePass(ctx context.Context, res *orchestrator.PassResult) error {
	stats := res.Stats
	hub.Broadcast(ctx, StatsMessage{
		Type:    "stats",
		AgentID: res.AgentID,
		Kind:    res.Kind,
		Stats:   &stats,
		Error:   res.Error,
	})
	return nil
}

// Broadcast writes msg to every client. Slow or dead clients are dropped.
func (hub *Hub) Broadcast(ctx context.Context, msg StatsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	hub.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		if err := hub.write(ctx, c, data); err != nil {
			hub.logger.Debug("dashboard write failed", zap.String("client", c.id), zap.Error(err))
			c.conn.CloseNow()
		}
		return true
	})
}

// Close disconnects every client.
func (hub *Hub) Close() {
	hub.clients.Range(func(key, value any) bool {
		value.(*wsClient).conn.CloseNow()
		return true
	})
}

func (hub *Hub) snapshot(ctx context.Context, c *wsClient) {
	for _, a := range hub.registry.List() {
		msg := StatsMessage{Type: "stats", AgentID: a.ID}
		if stats, err := hub.registry.Stats(a.ID); err != nil {
			msg.Error = StatsErrorMessage
		} else {
			msg.Stats = &stats
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := hub.write(ctx, c, data); err != nil {
			return
		}
	}
}

func (hub *Hub) write(ctx context.Context, c *wsClient, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}
