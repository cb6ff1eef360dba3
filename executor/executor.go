// Package executor provides the scheduling substrate the core runtime is
// written against (the Executor collaborator):
// Spawn for actor goroutines, SpawnBlocking for a bounded worker pool that
// absorbs CPU-bound or blocking-syscall work so it never stalls an actor's
// own suspension points.
package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultBlockingPoolSize bounds how many SpawnBlocking calls may run
// concurrently before additional callers queue.
const DefaultBlockingPoolSize = 64

// Pool is the default Executor: every Spawn gets its own goroutine (actors
// are cheap and long-lived, one goroutine per actor for its whole life);
// SpawnBlocking work is admitted through a weighted semaphore so a burst of
// blocking calls can't unboundedly grow the OS thread count.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a Pool whose blocking-pool concurrency is capped at size.
func New(size int64) *Pool {
	if size <= 0 {
		size = DefaultBlockingPoolSize
	}
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Spawn launches fn on a new goroutine immediately.
func (p *Pool) Spawn(fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(context.Background())
	}()
}

// SpawnBlocking runs fn on a new goroutine once the blocking-pool semaphore
// admits it, blocking the caller until a slot is free.
func (p *Pool) SpawnBlocking(fn func()) {
	_ = p.sem.Acquire(context.Background(), 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn()
	}()
}

// Run drives fn on the caller's own goroutine, for a caller that wants to
// donate its thread until fn returns (typically a main blocking until
// shutdown) rather than spawn and join.
func (p *Pool) Run(ctx context.Context, fn func(context.Context)) {
	fn(ctx)
}

// Wait blocks until every goroutine started by Spawn/SpawnBlocking has
// returned; used by tests to confirm a clean shutdown with no leaked work.
func (p *Pool) Wait() {
	p.wg.Wait()
}
