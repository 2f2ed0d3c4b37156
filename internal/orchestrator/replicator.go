package orchestrator

import (
	"context"
	"strings"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"go.uber.org/zap"
)

// DefaultShareMinConfidence is the lowest node confidence worth sharing.
const DefaultShareMinConfidence = 0.5

// Publisher is the part of MessageBus the replicator uses.
type Publisher interface {
	Publish(ctx context.Context, ev *MemoryEvent) error
}

// Replicator copies confident semantic knowledge between agents. Copies keep
// the source agent as owner.
type Replicator struct {
	registry      *agent.Registry
	minConfidence float64
	publisher     Publisher
	logger        *zap.Logger
}

// NewReplicator creates a replicator. minConfidence <= 0 uses the default.
func NewReplicator(registry *agent.Registry, minConfidence float64, logger *zap.Logger) *Replicator {
	if minConfidence <= 0 {
		minConfidence = DefaultShareMinConfidence
	}
	return &Replicator{registry: registry, minConfidence: minConfidence, logger: logger}
}

// SetPublisher announces every copied node on the bus.
func (r *Replicator) SetPublisher(p Publisher) { r.publisher = p }

// ShareResult counts what one Share call copied.
type ShareResult struct {
	From    string         `json:"from"`
	Offered int            `json:"offered"`
	Copied  map[string]int `json:"copied"`
	Skipped int            `json:"skipped"`
}

// Share copies fromID's domain-knowledge nodes at or above the confidence
// threshold into every other agent, skipping concepts a target already has.
func (r *Replicator) Share(ctx context.Context, fromID string) (*ShareResult, error) {
	src, err := r.registry.Get(fromID)
	if err != nil {
		return nil, err
	}
	nodes, _ := src.Memory().KnowledgeGraph()
	var offer []memory.KnowledgeNode
	for _, n := range nodes {
		if n.Confidence >= r.minConfidence {
			offer = append(offer, n)
		}
	}

	res := &ShareResult{From: fromID, Offered: len(offer), Copied: make(map[string]int)}
	for _, target := range r.registry.List() {
		if target.ID == fromID {
			continue
		}
		for _, n := range offer {
			if r.apply(target, fromID, n) {
				res.Copied[target.ID]++
				r.announce(ctx, target.ID, fromID, n)
			} else {
				res.Skipped++
			}
		}
	}

	r.logger.Info("knowledge shared",
		zap.String("from", fromID),
		zap.Int("offered", res.Offered),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// Apply stores a knowledge_shared event into its target agent. Other event
// types and unknown agents are ignored.
func (r *Replicator) Apply(ev *MemoryEvent) bool {
	if ev == nil || ev.Type != EventKnowledgeShared || ev.Node == nil {
		return false
	}
	target, err := r.registry.Get(ev.AgentID)
	if err != nil {
		return false
	}
	return r.apply(target, ev.From, *ev.Node)
}

// Consume applies events from ch until it closes.
func (r *Replicator) Consume(ch <-chan *MemoryEvent) {
	for ev := range ch {
		if r.Apply(ev) {
			r.logger.Debug("applied shared knowledge",
				zap.String("agent", ev.AgentID),
				zap.String("concept", ev.Node.Concept))
		}
	}
}

func (r *Replicator) apply(target *agent.Agent, fromID string, n memory.KnowledgeNode) bool {
	known, _ := target.Memory().KnowledgeGraph()
	for _, k := range known {
		if strings.EqualFold(k.Concept, n.Concept) {
			return false
		}
	}
	// Relationship ids point into the source agent's graph.
	n.Relationships = nil
	if _, err := target.Memory().StoreRecord(memory.TierSemantic, memory.MemoryRecord{
		OwnerAgentID: fromID,
		RecordType:   "domain_knowledge",
		Payload:      &n,
	}); err != nil {
		r.logger.Warn("replicate knowledge", zap.String("target", target.ID), zap.Error(err))
		return false
	}
	return true
}

func (r *Replicator) announce(ctx context.Context, targetID, fromID string, n memory.KnowledgeNode) {
	if r.publisher == nil {
		return
	}
	node := n
	node.Relationships = nil
	if err := r.publisher.Publish(ctx, &MemoryEvent{
		Type:    EventKnowledgeShared,
		AgentID: targetID,
		From:    fromID,
		Node:    &node,
	}); err != nil {
		r.logger.Warn("announce shared knowledge", zap.String("target", targetID), zap.Error(err))
	}
}
