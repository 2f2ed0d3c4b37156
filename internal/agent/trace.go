package agent

import (
	"time"

	"github.com/google/uuid"
)

// StepType identifies the kind of trace step.
type StepType string

const (
	StepMemoryRecall StepType = "memory_recall"
	StepRule         StepType = "rule"
	StepMemoryStore  StepType = "memory_store"
	StepDecision     StepType = "decision"
)

// Trace records what an agent looked up, evaluated and stored during one
// operation.
type Trace struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	Steps     []TraceStep   `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TraceStep is a single step in a trace.
type TraceStep struct {
	Type      StepType  `json:"type"`
	Content   string    `json:"content"`
	Detail    any       `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newTrace(agentID string) *Trace {
	return &Trace{ID: uuid.New().String(), AgentID: agentID, StartedAt: time.Now()}
}

func (t *Trace) add(kind StepType, content string, detail any) {
	t.Steps = append(t.Steps, TraceStep{Type: kind, Content: content, Detail: detail, Timestamp: time.Now()})
}

func (t *Trace) finish() *Trace {
	t.Duration = time.Since(t.StartedAt)
	return t
}
