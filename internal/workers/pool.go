// Package workers provides bounded parallel execution for independent jobs
// such as parsing a batch of result files.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolStopped     = errors.New("pool is stopped")
	ErrQueueFull       = errors.New("job queue is full")
	ErrShutdownTimeout = errors.New("pool shutdown timed out")
)

// PanicError wraps a panic recovered from a job
type PanicError struct {
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Recovered)
}

// Job is one unit of work
type Job func() error

// PoolConfig configures the worker pool
type PoolConfig struct {
	Name            string
	NumWorkers      int
	QueueSize       int
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig sizes the pool to the machine
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:            name,
		NumWorkers:      runtime.NumCPU(),
		QueueSize:       256,
		ShutdownTimeout: 10 * time.Second,
	}
}

// PoolStats holds the job counters
type PoolStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Queued    int   `json:"queued"`
}

// Pool runs jobs on a fixed set of goroutines
type Pool struct {
	logger *zap.Logger
	config PoolConfig

	jobs    chan Job
	quit    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

// NewPool creates a pool. It accepts work only after Start.
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	cfg := *config
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.NumWorkers
	}

	return &Pool{
		logger: logger,
		config: cfg,
		jobs:   make(chan Job, cfg.QueueSize),
		quit:   make(chan struct{}),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.logger.Info("Starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			p.exec(job)
		}
	}
}

// exec runs a job and records its outcome
func (p *Pool) exec(job Job) {
	if err := p.guard(job); err != nil {
		p.failed.Add(1)
		return
	}
	p.completed.Add(1)
}

// guard turns a panicking job into a PanicError
func (p *Pool) guard(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("Job panicked", zap.String("pool", p.config.Name), zap.Any("panic", r))
			err = &PanicError{Recovered: r}
		}
	}()
	return job()
}

// Submit queues a job without waiting for it
func (p *Pool) Submit(job Job) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// RunAll executes every function and waits for all of them. The returned
// slice holds each function's error at its input position. Functions that
// cannot be queued run on the caller's goroutine; functions not yet started
// when ctx is done report ctx.Err().
func (p *Pool) RunAll(ctx context.Context, fns []func() error) []error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup

	for i, fn := range fns {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		i, fn := i, fn
		wg.Add(1)
		job := func() error {
			defer wg.Done()
			errs[i] = p.guard(fn)
			return errs[i]
		}

		if err := p.Submit(job); err != nil {
			p.submitted.Add(1)
			p.exec(job)
		}
	}

	wg.Wait()
	return errs
}

// Stop waits for running jobs and shuts the workers down. Queued jobs that
// have not started are abandoned.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	close(p.quit)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped", zap.String("name", p.config.Name))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool shutdown timed out",
			zap.String("name", p.config.Name),
			zap.Duration("timeout", p.config.ShutdownTimeout),
		)
		return ErrShutdownTimeout
	}
}

// IsRunning reports whether the pool accepts jobs
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats returns the current counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
		Queued:    len(p.jobs),
	}
}
