package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAgentNotFound is returned when an agent ID doesn't exist.
	ErrAgentNotFound = fmt.Errorf("agent not found")
	// ErrUnknownKind is returned for an unsupported agent kind.
	ErrUnknownKind = fmt.Errorf("unknown agent kind")
	// ErrAgentExists is returned when registering a duplicate ID.
	ErrAgentExists = fmt.Errorf("agent already exists")
	// ErrWrongKind is returned when an operation targets an agent of another kind.
	ErrWrongKind = fmt.Errorf("operation not supported by agent kind")
	// ErrInvalidInput is returned when a request lacks required fields.
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Registry owns every agent and, through it, one memory manager per agent.
type Registry struct {
	agents  map[string]*Agent
	memCfg  memory.Config
	memOpts []memory.Option
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. Managers it creates use cfg and opts.
func NewRegistry(cfg memory.Config, logger *zap.Logger, opts ...memory.Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:  make(map[string]*Agent),
		memCfg:  cfg,
		memOpts: opts,
		logger:  logger,
	}
}

// Register creates an agent with a fresh memory manager. An empty id gets a
// generated one.
func (r *Registry) Register(id string, kind Kind) (*Agent, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; ok {
		return nil, fmt.Errorf("register %s: %w", id, ErrAgentExists)
	}
	now := time.Now()
	a := &Agent{
		ID:        id,
		Kind:      kind,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
		mem:       memory.NewManager(id, r.memCfg, r.logger, r.memOpts...),
		logger:    r.logger.With(zap.String("agent", id), zap.String("kind", string(kind))),
	}
	r.agents[id] = a
	r.logger.Info("registered agent",
		zap.String("id", id),
		zap.String("kind", string(kind)))
	return a, nil
}

// Get returns an agent by ID.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// List returns all registered agents ordered by ID.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	result := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		result = append(result, a)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Stats returns the memory stats of one agent. It never panics; a missing
// agent or a failing manager is reported as an error.
func (r *Registry) Stats(id string) (stats memory.Stats, err error) {
	a, err := r.Get(id)
	if err != nil {
		return memory.Stats{}, err
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("memory stats panicked", zap.String("agent", id), zap.Any("panic", p))
			err = errors.New("memory stats unavailable")
		}
	}()
	return a.mem.Stats(), nil
}
