package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerOpts configures periodic maintenance.
type SchedulerOpts struct {
	ConsolidationSchedule string        // cron spec, default "@every 5m"
	CompressionSchedule   string        // cron spec, default "@daily"; empty disables
	PoolSize              int           // concurrent agent passes, default 4
	SinkTimeout           time.Duration // per sink call, default 10s
}

// DefaultSchedulerOpts returns the stock maintenance schedule.
func DefaultSchedulerOpts() SchedulerOpts {
	return SchedulerOpts{
		ConsolidationSchedule: "@every 5m",
		CompressionSchedule:   "@daily",
		PoolSize:              4,
		SinkTimeout:           10 * time.Second,
	}
}

// Scheduler runs consolidation and compression over every registered agent
// on cron schedules, through a bounded goroutine pool.
type Scheduler struct {
	registry *agent.Registry
	opts     SchedulerOpts
	pool     chan struct{} // semaphore-based pool
	mu       sync.RWMutex
	sinks    []Sink
	running  map[string]PassKind
	cron     *rcron.Cron
	logger   *zap.Logger
}

// NewScheduler creates a scheduler. Zero option fields take defaults.
func NewScheduler(registry *agent.Registry, opts SchedulerOpts, logger *zap.Logger) *Scheduler {
	d := DefaultSchedulerOpts()
	if opts.ConsolidationSchedule == "" {
		opts.ConsolidationSchedule = d.ConsolidationSchedule
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = d.PoolSize
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = d.SinkTimeout
	}
	return &Scheduler{
		registry: registry,
		opts:     opts,
		pool:     make(chan struct{}, opts.PoolSize),
		running:  make(map[string]PassKind),
		logger:   logger,
	}
}

// AddSink registers a receiver for finished passes.
func (s *Scheduler) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Start registers the cron jobs and starts the cron runner. The runner stops
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	c := rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)))
	if _, err := c.AddFunc(s.opts.ConsolidationSchedule, func() { s.RunConsolidation(ctx) }); err != nil {
		return fmt.Errorf("schedule consolidation %q: %w", s.opts.ConsolidationSchedule, err)
	}
	if s.opts.CompressionSchedule != "" {
		if _, err := c.AddFunc(s.opts.CompressionSchedule, func() { s.RunCompression(ctx) }); err != nil {
			return fmt.Errorf("schedule compression %q: %w", s.opts.CompressionSchedule, err)
		}
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()

	s.logger.Info("maintenance scheduler started",
		zap.String("consolidation", s.opts.ConsolidationSchedule),
		zap.String("compression", s.opts.CompressionSchedule),
		zap.Int("pool", s.opts.PoolSize))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("maintenance scheduler stopped")
}

// RunConsolidation consolidates every agent's memory.
func (s *Scheduler) RunConsolidation(ctx context.Context) []*PassResult {
	return s.runAll(ctx, PassConsolidation)
}

// RunCompression compresses every agent's memory.
func (s *Scheduler) RunCompression(ctx context.Context) []*PassResult {
	return s.runAll(ctx, PassCompression)
}

// RunAgent runs one pass on a single agent and notifies the sinks.
func (s *Scheduler) RunAgent(ctx context.Context, agentID string, kind PassKind) (*PassResult, error) {
	a, err := s.registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	return s.runOne(ctx, kind, a), nil
}

func (s *Scheduler) runAll(ctx context.Context, kind PassKind) []*PassResult {
	start := time.Now()
	agents := s.registry.List()
	results := make([]*PassResult, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a *agent.Agent) {
			defer wg.Done()
			s.pool <- struct{}{}        // acquire slot
			defer func() { <-s.pool }() // release slot
			results[i] = s.runOne(ctx, kind, a)
		}(i, a)
	}
	wg.Wait()

	var partial int
	for _, r := range results {
		if r.Status != PassDone {
			partial++
		}
	}
	s.logger.Info("maintenance pass complete",
		zap.String("kind", string(kind)),
		zap.Int("agents", len(results)),
		zap.Int("not_done", partial),
		zap.Duration("took", time.Since(start)))
	return results
}

func (s *Scheduler) runOne(ctx context.Context, kind PassKind, a *agent.Agent) *PassResult {
	res := &PassResult{AgentID: a.ID, Kind: kind}
	if err := ctx.Err(); err != nil {
		res.Status = PassSkipped
		res.Error = err.Error()
		res.FinishedAt = time.Now()
		return res
	}

	s.mu.Lock()
	s.running[a.ID] = kind
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, a.ID)
		s.mu.Unlock()
	}()

	start := time.Now()
	mem := a.Memory()
	var stepErrs []memory.StepError
	switch kind {
	case PassCompression:
		rep := mem.Compress()
		res.Compression = &rep
		stepErrs = rep.Errors
	default:
		rep := mem.Consolidate()
		res.Consolidation = &rep
		stepErrs = rep.Errors
	}

	res.Status = PassDone
	if len(stepErrs) > 0 {
		res.Status = PassPartial
		msgs := make([]string, len(stepErrs))
		for i, e := range stepErrs {
			msgs[i] = e.Step + ": " + e.Error
		}
		res.Error = strings.Join(msgs, "; ")
	}
	res.Stats = mem.Stats()
	res.FinishedAt = time.Now()
	res.Duration = time.Since(start)

	s.notify(ctx, res)
	return res
}

func (s *Scheduler) notify(ctx context.Context, res *PassResult) {
	s.mu.RLock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.RUnlock()

	for _, sink := range sinks {
		sctx, cancel := context.WithTimeout(ctx, s.opts.SinkTimeout)
		err := sink.HandlePass(sctx, res)
		cancel()
		if err != nil {
			s.logger.Warn("maintenance sink failed",
				zap.String("agent", res.AgentID),
				zap.String("kind", string(res.Kind)),
				zap.Error(err))
		}
	}
}

// Running returns the agents currently under maintenance, sorted.
func (s *Scheduler) Running() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
