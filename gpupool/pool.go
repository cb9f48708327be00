// Package gpupool provides a bounded-concurrency admission primitive for
// GPU-using detectors (spec.md §4.2). Only gpu_heavy and gpu_light class
// detectors acquire a permit; CPU and io-class detectors bypass the pool
// entirely.
package gpupool

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pool admits up to Capacity concurrent GPU-class detector invocations.
// Acquisition is FIFO (semaphore.Weighted's internal waiter queue),
// supports cancellation without leaking permits, and permits are always
// released via defer at the call site so panics can't leak them either.
type Pool struct {
	sem      *semaphore.Weighted
	capacity int64
	logger   *zap.Logger

	inFlight atomic.Int64
	waiting  atomic.Int64
	admitted atomic.Int64
	rejected atomic.Int64
}

// New creates a Pool with the given capacity (the configured
// gpu_semaphore value). Capacity must be >= 1.
func New(capacity int, logger *zap.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		logger:   logger.With(zap.String("component", "gpu_pool")),
	}
}

// Capacity returns the configured permit count G.
func (p *Pool) Capacity() int {
	return int(p.capacity)
}

// Available returns the number of currently unheld permits.
func (p *Pool) Available() int {
	return int(p.capacity - p.inFlight.Load())
}

// InFlight returns the number of permits currently held.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Release is returned by Acquire; callers must defer it immediately after
// a successful acquisition so every exit path — including panics — frees
// the permit.
type Release func()

// Acquire blocks (FIFO, via the underlying weighted semaphore's internal
// queue) until a permit is available or ctx is canceled. On success it
// returns a Release function that must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (Release, error) {
	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.rejected.Add(1)
		return nil, err
	}

	p.inFlight.Add(1)
	p.admitted.Add(1)

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}
	}, nil
}

// Do runs fn while holding a single permit, guaranteeing release on every
// exit path including a panic inside fn.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	release, acquireErr := p.Acquire(ctx)
	if acquireErr != nil {
		return acquireErr
	}
	defer release()

	return fn(ctx)
}

// Stats is a snapshot of pool counters, useful for tests asserting the
// "no permit leaks" law (spec.md §8): after a job terminates, the pool
// must report InFlight == 0 regardless of how many detectors faulted.
type Stats struct {
	Capacity int
	InFlight int
	Waiting  int
	Admitted int64
	Rejected int64
}

// Snapshot returns the current counters.
func (p *Pool) Snapshot() Stats {
	return Stats{
		Capacity: int(p.capacity),
		InFlight: int(p.inFlight.Load()),
		Waiting:  int(p.waiting.Load()),
		Admitted: p.admitted.Load(),
		Rejected: p.rejected.Load(),
	}
}

// AtFullCapacity reports whether every permit is currently free — the
// property the "no permit leaks" law checks after a job has run to
// completion or been faulted out.
func (p *Pool) AtFullCapacity() bool {
	return p.inFlight.Load() == 0
}
