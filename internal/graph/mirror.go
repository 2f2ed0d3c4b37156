package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Mirror copies each agent's semantic tier into Neo4j as (:Knowledge) nodes
// joined by [:RELATED] edges. Memory stays authoritative; the mirror is only
// for graph visualization.
type Mirror struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewMirror creates a Neo4j mirror. An empty user connects without auth.
func NewMirror(uri, user, password string, logger *zap.Logger) (*Mirror, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Mirror{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// SyncResult counts what one Sync changed.
type SyncResult struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
	Removed       int `json:"removed"`
}

// Sync makes the agent's mirrored graph equal to nodes and rels in a single
// write transaction. Nodes missing from the input are detached and deleted.
func (m *Mirror) Sync(ctx context.Context, agentID string, nodes []memory.KnowledgeNode, rels []memory.Relationship) (*SyncResult, error) {
	ids := make([]string, 0, len(nodes))
	nodeParams := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
		nodeParams = append(nodeParams, map[string]interface{}{
			"id":          n.ID,
			"concept":     n.Concept,
			"description": n.Description,
			"confidence":  n.Confidence,
			"lastUpdated": n.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	relParams := make([]map[string]interface{}, 0, len(rels))
	for _, r := range rels {
		relParams = append(relParams, map[string]interface{}{
			"source":   r.Source,
			"target":   r.Target,
			"type":     string(r.Type),
			"strength": r.Strength,
		})
	}

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res := &SyncResult{Nodes: len(nodes)}

		if _, err := tx.Run(ctx,
			`UNWIND $nodes AS n
			 MERGE (k:Knowledge {agent_id: $agentId, id: n.id})
			 SET k.concept = n.concept, k.description = n.description,
			     k.confidence = n.confidence, k.last_updated = n.lastUpdated`,
			map[string]interface{}{"agentId": agentID, "nodes": nodeParams}); err != nil {
			return nil, fmt.Errorf("merge nodes: %w", err)
		}

		removed, err := tx.Run(ctx,
			`MATCH (k:Knowledge {agent_id: $agentId})
			 WHERE NOT k.id IN $ids
			 DETACH DELETE k
			 RETURN count(k) AS removed`,
			map[string]interface{}{"agentId": agentID, "ids": ids})
		if err != nil {
			return nil, fmt.Errorf("remove stale nodes: %w", err)
		}
		if rec, err := removed.Single(ctx); err == nil {
			if v, ok := rec.Get("removed"); ok {
				res.Removed = int(v.(int64))
			}
		}

		if _, err := tx.Run(ctx,
			`MATCH (:Knowledge {agent_id: $agentId})-[e:RELATED]->(:Knowledge {agent_id: $agentId})
			 DELETE e`,
			map[string]interface{}{"agentId": agentID}); err != nil {
			return nil, fmt.Errorf("clear edges: %w", err)
		}

		linked, err := tx.Run(ctx,
			`UNWIND $rels AS r
			 MATCH (a:Knowledge {agent_id: $agentId, id: r.source}),
			       (b:Knowledge {agent_id: $agentId, id: r.target})
			 MERGE (a)-[e:RELATED {type: r.type}]->(b)
			 SET e.strength = r.strength
			 RETURN count(e) AS linked`,
			map[string]interface{}{"agentId": agentID, "rels": relParams})
		if err != nil {
			return nil, fmt.Errorf("merge edges: %w", err)
		}
		if rec, err := linked.Single(ctx); err == nil {
			if v, ok := rec.Get("linked"); ok {
				res.Relationships = int(v.(int64))
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync graph for %s: %w", agentID, err)
	}

	res := out.(*SyncResult)
	m.logger.Debug("knowledge graph mirrored",
		zap.String("agent", agentID),
		zap.Int("nodes", res.Nodes),
		zap.Int("relationships", res.Relationships),
		zap.Int("removed", res.Removed))
	return res, nil
}

// Graph reads back the mirrored graph of one agent.
func (m *Mirror) Graph(ctx context.Context, agentID string) ([]memory.KnowledgeNode, []memory.Relationship, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (k:Knowledge {agent_id: $agentId})
		 RETURN k.id, k.concept, k.description, k.confidence, k.last_updated
		 ORDER BY k.concept`,
		map[string]interface{}{"agentId": agentID})
	if err != nil {
		return nil, nil, fmt.Errorf("read nodes: %w", err)
	}
	var nodes []memory.KnowledgeNode
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("k.id")
		concept, _ := rec.Get("k.concept")
		desc, _ := rec.Get("k.description")
		conf, _ := rec.Get("k.confidence")
		updated, _ := rec.Get("k.last_updated")

		n := memory.KnowledgeNode{ID: id.(string), Concept: str(concept), Description: str(desc)}
		if f, ok := conf.(float64); ok {
			n.Confidence = f
		}
		if t, err := time.Parse(time.RFC3339, str(updated)); err == nil {
			n.LastUpdated = t
		}
		nodes = append(nodes, n)
	}
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	result, err = session.Run(ctx,
		`MATCH (a:Knowledge {agent_id: $agentId})-[e:RELATED]->(b:Knowledge {agent_id: $agentId})
		 RETURN a.id, b.id, e.type, e.strength
		 ORDER BY a.id, b.id`,
		map[string]interface{}{"agentId": agentID})
	if err != nil {
		return nil, nil, fmt.Errorf("read edges: %w", err)
	}
	var rels []memory.Relationship
	for result.Next(ctx) {
		rec := result.Record()
		src, _ := rec.Get("a.id")
		dst, _ := rec.Get("b.id")
		typ, _ := rec.Get("e.type")
		strength, _ := rec.Get("e.strength")
		r := memory.Relationship{Source: str(src), Target: str(dst), Type: memory.RelationType(str(typ))}
		if f, ok := strength.(float64); ok {
			r.Strength = f
		}
		rels = append(rels, r)
	}
	return nodes, rels, result.Err()
}

// Sink mirrors an agent's semantic tier after each consolidation or
// compression pass.
func (m *Mirror) Sink(registry *agent.Registry) orchestrator.Sink {
	return orchestrator.SinkFunc(func(ctx context.Context, res *orchestrator.PassResult) error {
		if res.Status == orchestrator.PassSkipped {
			return nil
		}
		a, err := registry.Get(res.AgentID)
		if err != nil {
			return err
		}
		nodes, rels := a.Memory().KnowledgeGraph()
		_, err = m.Sync(ctx, res.AgentID, nodes, rels)
		return err
	})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
