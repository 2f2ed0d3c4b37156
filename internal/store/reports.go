package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
)

const defaultListLimit = 50

// Entry is one persisted maintenance pass.
type Entry struct {
	ID         int64           `json:"id"`
	AgentID    string          `json:"agent_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Report     json.RawMessage `json:"report"`
	Stats      memory.Stats    `json:"stats"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SaveReport records a consolidation or compression report for agentID.
func (s *Store) SaveReport(ctx context.Context, agentID, kind string, report any) error {
	return s.insert(ctx, agentID, kind, string(orchestrator.PassDone), report, memory.Stats{}, "", 0)
}

// HandlePass persists a finished scheduler pass.
func (s *Store) HandlePass(ctx context.Context, res *orchestrator.PassResult) error {
	if res.Status == orchestrator.PassSkipped {
		return nil
	}
	return s.insert(ctx, res.AgentID, string(res.Kind), string(res.Status),
		res.Report(), res.Stats, res.Error, res.Duration.Milliseconds())
}

func (s *Store) insert(ctx context.Context, agentID, kind, status string, report any, stats memory.Stats, errMsg string, durMs int64) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO maintenance_reports (agent_id, kind, status, report, stats, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agentID, kind, status, reportJSON, statsJSON, errMsg, durMs,
	)
	if err != nil {
		return fmt.Errorf("save report for %s: %w", agentID, err)
	}
	return nil
}

// ListReports returns the newest reports for agentID. An empty agentID lists
// every agent.
func (s *Store) ListReports(ctx context.Context, agentID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, agent_id, kind, status, report, stats, error, duration_ms, created_at
		FROM maintenance_reports
		WHERE $1 = '' OR agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var report, stats []byte
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Kind, &e.Status, &report, &stats,
			&e.Error, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.Report = json.RawMessage(report)
		if len(stats) > 0 {
			json.Unmarshal(stats, &e.Stats)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
