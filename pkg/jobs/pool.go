package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned when submitting to a pool that is not running.
var ErrPoolStopped = errors.New("pool not running")

// Job represents a unit of blocking work executed by a pool worker.
type Job struct {
	ID       string
	Type     string
	Run      func(context.Context) error
	Enqueued time.Time
}

// PoolConfig configures worker pool behaviour.
type PoolConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
	// Observe, when set, receives the outcome of every executed job.
	Observe func(jobType string, err error, duration time.Duration)
}

type queued struct {
	ctx context.Context
	job Job
}

// Pool is a bounded set of goroutines draining a buffered job channel.
// Failed jobs are logged and never retried; callers decide what a failure means.
type Pool struct {
	name string

	workers    int
	bufferSize int
	logger     *zap.Logger
	observe    func(string, error, time.Duration)

	jobs    chan queued
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewPool builds a pool that is idle until Start is called.
func NewPool(name string, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Pool{
		name:       name,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		observe:    cfg.Observe,
		jobs:       make(chan queued, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	p.started = true
	p.logger.Sugar().Infow("pool started", "pool", p.name, "workers", p.workers)
}

// Stop cancels workers and waits for them to exit. Jobs still buffered are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Sugar().Infow("pool stopped", "pool", p.name)
}

// Submit hands a job to the pool, blocking while the buffer is full.
// The job runs with ctx; cancelling ctx before a worker picks it up skips it.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	poolCtx := p.ctx
	started := p.started
	p.mu.Unlock()

	if !started {
		return fmt.Errorf("pool %s: %w", p.name, ErrPoolStopped)
	}
	if job.Run == nil {
		return fmt.Errorf("pool %s: job %s has no run function", p.name, job.Type)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-poolCtx.Done():
		return fmt.Errorf("pool %s stopped: %w", p.name, poolCtx.Err())
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- queued{ctx: ctx, job: job}:
		return nil
	}
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case item := <-p.jobs:
			if item.ctx.Err() != nil {
				continue
			}
			p.execute(workerID, item)
		}
	}
}

func (p *Pool) execute(workerID int, item queued) {
	start := time.Now()
	err := p.safeRun(item)
	duration := time.Since(start)
	if p.observe != nil {
		p.observe(item.job.Type, err, duration)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Sugar().Warnw("job failed", "pool", p.name, "worker", workerID, "job_id", item.job.ID, "type", item.job.Type, "error", err)
	}
}

func (p *Pool) safeRun(item queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", item.job.Type, r)
		}
	}()
	return item.job.Run(item.ctx)
}
