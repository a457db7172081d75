// Package worker provides a fixed-size worker pool whose tasks report through futures.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/smartsave/gateway/internal/domain"
)

var (
	// ErrDrainTimeout is returned by Shutdown when running tasks had to be cancelled
	ErrDrainTimeout = errors.New("worker pool drain timeout exceeded")
	// ErrQueueFull is returned when a task is submitted while every queue slot is taken
	ErrQueueFull = errors.New("worker pool queue full")
)

// PoolState represents the current state of the pool
type PoolState int32

const (
	// PoolStateRunning means the pool accepts and executes tasks.
	PoolStateRunning PoolState = iota
	// PoolStateDraining means the pool finishes queued tasks and rejects new ones.
	PoolStateDraining
	// PoolStateStopped means every worker has exited or was abandoned after a forced stop.
	PoolStateStopped
)

// String returns the string representation of a pool state
func (s PoolState) String() string {
	switch s {
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	case PoolStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds worker pool configuration
type Config struct {
	Workers int
	// QueueSize bounds the tasks waiting for a worker. Submitting to a full
	// queue never blocks; the task is rejected with ErrQueueFull.
	QueueSize    int
	DrainTimeout time.Duration
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		QueueSize:    64,
		DrainTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size cannot be negative, got %d", c.QueueSize)
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive, got %s", c.DrainTimeout)
	}
	return nil
}

// Pool runs submitted tasks on a fixed number of goroutines.
// Tasks receive a context that is cancelled only on a forced shutdown.
type Pool struct {
	config Config
	logger *zap.Logger
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a worker pool and starts its workers
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: cfg,
		logger: logger.With(zap.String("component", "worker_pool")),
		tasks:  make(chan func(context.Context), cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.state.Store(int32(PoolStateRunning))

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run()
	}

	p.logger.Debug("worker pool started", zap.Int("workers", cfg.Workers))
	return p, nil
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		task(p.ctx)
	}
}

// State returns the current pool state
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return p.config.Workers
}

func (p *Pool) submit(task func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return domain.ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit schedules fn on the pool without blocking the caller. The returned
// future resolves to fn's result, or to fallback if the task is rejected or fn panics.
func Submit[T any](p *Pool, fallback T, fn func(ctx context.Context) T) *Future[T] {
	f, _ := TrySubmit(p, fallback, fn)
	return f
}

// TrySubmit is Submit that also reports why a task was rejected
// (domain.ErrPoolClosed or ErrQueueFull). A rejected task's future is
// already resolved to fallback.
func TrySubmit[T any](p *Pool, fallback T, fn func(ctx context.Context) T) (*Future[T], error) {
	f := newFuture[T]()

	err := p.submit(func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("task panicked", zap.Any("panic", r))
				f.resolve(fallback)
			}
		}()
		f.resolve(fn(ctx))
	})
	if err != nil {
		p.logger.Debug("task rejected", zap.Error(err))
		f.resolve(fallback)
	}

	return f, err
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish. If that takes longer than the drain timeout, or ctx is done first,
// the task context is cancelled and ErrDrainTimeout is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.state.Store(int32(PoolStateDraining))
	p.logger.Debug("worker pool draining")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.config.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		p.state.Store(int32(PoolStateStopped))
		p.logger.Debug("worker pool stopped gracefully")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.cancel()
	p.state.Store(int32(PoolStateStopped))
	p.logger.Warn("worker pool drain timeout exceeded, cancelling running tasks",
		zap.Duration("drain_timeout", p.config.DrainTimeout))
	return ErrDrainTimeout
}
