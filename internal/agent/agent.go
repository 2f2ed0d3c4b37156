package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"go.uber.org/zap"
)

// Kind selects the rule set an agent evaluates.
type Kind string

const (
	KindTriage       Kind = "lead_triage"
	KindEngagement   Kind = "engagement"
	KindOptimization Kind = "campaign_optimization"
)

// ParseKind validates an agent kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTriage, KindEngagement, KindOptimization:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Status represents an agent's current state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// Agent is one marketing agent and the memory it owns.
type Agent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	mu     sync.Mutex
	mem    *memory.Manager
	logger *zap.Logger
}

// Memory returns the agent's memory manager.
func (a *Agent) Memory() *memory.Manager { return a.mem }

// Snapshot returns a copy of the agent's public fields.
func (a *Agent) Snapshot() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{ID: a.ID, Kind: a.Kind, Status: a.Status, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

// Info is the serializable view of an Agent.
type Info struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// begin marks the agent busy and checks it runs the wanted rule set. The
// returned func restores idle.
func (a *Agent) begin(want Kind) (func(), error) {
	if a.Kind != want {
		return nil, fmt.Errorf("agent %s is %s, not %s: %w", a.ID, a.Kind, want, ErrWrongKind)
	}
	a.setStatus(StatusWorking)
	return func() { a.setStatus(StatusIdle) }, nil
}

func (a *Agent) setStatus(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Status = s
	a.UpdatedAt = time.Now()
}

// remember stores a record and notes it on the trace. Store failures are
// logged; agent logic keeps going with what it has.
func (a *Agent) remember(tr *Trace, tier memory.Tier, tag string, p memory.Payload) {
	if _, err := a.mem.Store(tier, tag, p); err != nil {
		a.logger.Warn("memory store failed",
			zap.String("tier", string(tier)),
			zap.String("type", tag),
			zap.Error(err))
		return
	}
	tr.add(StepMemoryStore, fmt.Sprintf("%s/%s", tier, tag), nil)
}
