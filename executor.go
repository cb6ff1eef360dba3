package bastion

import (
	"context"

	bexec "github.com/lguibr/bastion-go/executor"
)

// Executor is the scheduling substrate the runtime is written against
// (the Executor collaborator): every actor goroutine and every
// one-off blocking call passes through it, so a test can swap in a
// deterministic implementation without touching the core.
type Executor interface {
	// Spawn launches fn on a new logical task immediately.
	Spawn(fn func(context.Context))
	// SpawnBlocking runs fn against a bounded blocking-work pool, for user
	// code that must block a real OS thread.
	SpawnBlocking(fn func())
}

// DefaultExecutor returns the goroutine-per-actor executor backed by a
// bounded blocking pool, used whenever Config.Executor is left nil.
func DefaultExecutor() Executor {
	return bexec.New(bexec.DefaultBlockingPoolSize)
}
