package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event types carried on the bus.
const (
	EventConsolidated    = "consolidated"
	EventCompressed      = "compressed"
	EventKnowledgeShared = "knowledge_shared"
)

// MemoryEvent announces a change to one agent's memory.
type MemoryEvent struct {
	ID        string                `json:"id"`
	Type      string                `json:"type"`
	AgentID   string                `json:"agent_id"` // agent whose memory the event concerns
	From      string                `json:"from,omitempty"`
	Stats     *memory.Stats         `json:"stats,omitempty"`
	Node      *memory.KnowledgeNode `json:"node,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

const streamPrefix = "marketing:memory:"

// MessageBus carries memory events between processes via Redis Streams.
type MessageBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewMessageBus creates a Redis-backed message bus.
func NewMessageBus(redisURL string, logger *zap.Logger) (*MessageBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &MessageBus{rdb: rdb, logger: logger}, nil
}

// Publish appends ev to the stream of ev.AgentID.
func (mb *MessageBus) Publish(ctx context.Context, ev *MemoryEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + ev.AgentID
	_, err = mb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"type": ev.Type,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	mb.logger.Debug("published memory event",
		zap.String("agent", ev.AgentID),
		zap.String("type", ev.Type))
	return nil
}

// HandlePass publishes a finished maintenance pass.
func (mb *MessageBus) HandlePass(ctx context.Context, res *PassResult) error {
	typ := EventConsolidated
	if res.Kind == PassCompression {
		typ = EventCompressed
	}
	stats := res.Stats
	return mb.Publish(ctx, &MemoryEvent{
		Type:      typ,
		AgentID:   res.AgentID,
		Stats:     &stats,
		Detail:    res.Error,
		Timestamp: res.FinishedAt,
	})
}

// Subscribe listens for new events on an agent's stream.
// Returns a channel that emits events. Cancel the context to stop.
func (mb *MessageBus) Subscribe(ctx context.Context, agentID string) <-chan *MemoryEvent {
	ch := make(chan *MemoryEvent, 16)
	stream := streamPrefix + agentID

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := mb.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				mb.logger.Warn("read memory stream", zap.String("stream", stream), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev MemoryEvent
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (mb *MessageBus) Close() error {
	return mb.rdb.Close()
}
