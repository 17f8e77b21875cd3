package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/ports"
)

// Task is one unit of work, typically a single node invocation.
type Task func(ctx context.Context)

// Pool manages a fixed set of worker goroutines dispatching node
// invocations for the executor. Submission is bounded; a saturated pool
// rejects rather than blocks, letting the caller fall back to inline
// execution.
type Pool struct {
	size    int
	tasks   chan submission
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	busy    atomic.Int64
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
}

type submission struct {
	ctx  context.Context
	task Task
}

// NewPool creates a worker pool. metrics may be nil.
func NewPool(size int, metrics ports.MetricsCollector, logger *zap.Logger, healthCheckInterval time.Duration) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		size:    size,
		tasks:   make(chan submission, size*2),
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	p.health = NewHealthMonitor(p, healthCheckInterval, logger)
	return p
}

// Start launches the workers and the health monitor.
func (p *Pool) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pool already started")
	}
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(fmt.Sprintf("worker-%d", i))
	}
	p.health.Start()

	return nil
}

// Submit hands a task to the pool. It returns an error when the pool is
// saturated or shut down; callers run the task inline in that case.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if !p.started.Load() {
		return fmt.Errorf("pool not started")
	}
	select {
	case p.tasks <- submission{ctx: ctx, task: task}:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("pool shut down")
	default:
		return fmt.Errorf("pool saturated")
	}
}

// Status returns the current idle and busy worker counts.
func (p *Pool) Status() (idle, busy int) {
	b := int(p.busy.Load())
	return p.size - b, b
}

// Shutdown stops the workers, waiting up to ctx's deadline for in-flight
// tasks to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

func (p *Pool) run(id string) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.String("worker_id", id))
	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("worker stopped", zap.String("worker_id", id))
			return
		case s := <-p.tasks:
			p.busy.Add(1)
			s.task(s.ctx)
			p.busy.Add(-1)
		}
	}
}
