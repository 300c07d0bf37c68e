// Package pool provides bounded worker offload and object pooling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrTaskPanic  = errors.New("task panicked")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on their own goroutines with at most MaxWorkers
// in flight. A task keeps its slot until it returns, even when the caller
// stopped waiting, so a stuck task cannot be overcommitted.
type WorkerPool struct {
	sem          *semaphore.Weighted
	maxWorkers   int64
	closed       atomic.Bool
	panicHandler func(any)

	active    atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
	rejected  atomic.Int64
}

// WorkerPoolConfig configures the pool.
type WorkerPoolConfig struct {
	MaxWorkers   int       `json:"max_workers"`
	PanicHandler func(any) `json:"-"`
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{MaxWorkers: 8}
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config WorkerPoolConfig) *WorkerPool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultWorkerPoolConfig().MaxWorkers
	}
	return &WorkerPool{
		sem:          semaphore.NewWeighted(int64(config.MaxWorkers)),
		maxWorkers:   int64(config.MaxWorkers),
		panicHandler: config.PanicHandler,
	}
}

// SubmitWait runs task on a worker and waits for it or for ctx.
// When ctx ends first, ctx.Err() is returned and the task is left to
// observe the same ctx and finish on its own.
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.rejected.Add(1)
		return err
	}

	result := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		p.active.Add(1)
		err := p.execute(ctx, task)
		p.active.Add(-1)
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		result <- err
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		p.abandoned.Add(1)
		return ctx.Err()
	}
}

func (p *WorkerPool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task(ctx)
}

// Close stops accepting tasks and waits for in-flight tasks to release
// their slots or for ctx to end.
func (p *WorkerPool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.sem.Acquire(ctx, p.maxWorkers); err != nil {
		return err
	}
	p.sem.Release(p.maxWorkers)
	return nil
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		MaxWorkers: int(p.maxWorkers),
		Active:     int(p.active.Load()),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Abandoned:  p.abandoned.Load(),
		Rejected:   p.rejected.Load(),
	}
}

// WorkerPoolStats contains pool statistics.
type WorkerPoolStats struct {
	MaxWorkers int   `json:"max_workers"`
	Active     int   `json:"active"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Abandoned  int64 `json:"abandoned"`
	Rejected   int64 `json:"rejected"`
}
