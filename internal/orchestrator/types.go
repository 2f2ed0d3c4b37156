package orchestrator

import (
	"context"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
)

// PassKind names a maintenance operation.
type PassKind string

const (
	PassConsolidation PassKind = "consolidation"
	PassCompression   PassKind = "compression"
)

// PassStatus tracks the outcome of one agent's pass.
type PassStatus string

const (
	PassDone    PassStatus = "done"
	PassPartial PassStatus = "partial" // some steps failed
	PassSkipped PassStatus = "skipped" // context ended before the pass started
)

// PassResult is the outcome of one maintenance pass on one agent.
type PassResult struct {
	AgentID       string                      `json:"agent_id"`
	Kind          PassKind                    `json:"kind"`
	Status        PassStatus                  `json:"status"`
	Consolidation *memory.ConsolidationReport `json:"consolidation,omitempty"`
	Compression   *memory.CompressionReport   `json:"compression,omitempty"`
	Stats         memory.Stats                `json:"stats"`
	Error         string                      `json:"error,omitempty"`
	FinishedAt    time.Time                   `json:"finished_at"`
	Duration      time.Duration               `json:"duration"`
}

// Report returns whichever report the pass produced.
func (r *PassResult) Report() any {
	if r.Consolidation != nil {
		return r.Consolidation
	}
	if r.Compression != nil {
		return r.Compression
	}
	return nil
}

// Sink receives every finished pass. Errors are logged and never fail the pass.
type Sink interface {
	HandlePass(ctx context.Context, res *PassResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res *PassResult) error

// HandlePass calls f.
func (f SinkFunc) HandlePass(ctx context.Context, res *PassResult) error { return f(ctx, res) }
