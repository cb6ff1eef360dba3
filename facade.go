package bastion

import (
	"context"
	"sync"
)

// The process-wide façade is a thin
// singleton over a System. Multiple Init calls are coalesced; calling Init
// again after Stop() constructs a fresh System.
var (
	facadeMu      sync.Mutex
	facadeSys     *System
	facadeDefault *SupervisorBuilder
	facadePending []*SupervisorBuilder
	facadeStarted bool
)

// Init constructs the process-wide System if one does not already exist
// (or has fully stopped), and returns it. It is idempotent.
func Init(opts ...Option) *System {
	facadeMu.Lock()
	defer facadeMu.Unlock()
	return initLocked(opts...)
}

func initLocked(opts ...Option) *System {
	if facadeSys != nil {
		select {
		case <-facadeSys.stopped:
			// previous instance fully stopped; fall through to rebuild.
		default:
			return facadeSys
		}
	}
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	facadeSys = NewSystem(cfg)
	facadeDefault = NewSupervisorBuilder("default")
	facadePending = nil
	facadeStarted = false
	return facadeSys
}

// Supervisor submits a Supervisor builder. Before Start() it is held and
// launched in submission order when Start() runs; afterwards it is
// submitted immediately to the live system intake.
func Supervisor(builder *SupervisorBuilder) {
	facadeMu.Lock()
	sys := initLocked()
	if !facadeStarted {
		facadePending = append(facadePending, builder)
		facadeMu.Unlock()
		return
	}
	facadeMu.Unlock()
	sys.Submit(builder)
}

// Children is a shortcut that attaches a ChildrenGroup builder to a
// default supervisor, for callers who don't need custom restart policy.
// It must be called before Start(): groups attached afterward are not
// retroactively added to the already-launched default supervisor.
func Children(builder *GroupBuilder) {
	facadeMu.Lock()
	defer facadeMu.Unlock()
	initLocked()
	facadeDefault.WithChildren(builder)
}

// Start begins executing the system loop: every Supervisor and Children
// group attached so far is submitted, in attachment order (default
// supervisor first if it has any children), and the loop starts consuming
// further live submissions.
func Start() {
	facadeMu.Lock()
	sys := initLocked()
	if facadeStarted {
		facadeMu.Unlock()
		return
	}
	facadeStarted = true
	def := facadeDefault
	pending := facadePending
	facadePending = nil
	facadeMu.Unlock()

	if len(def.attachments) > 0 {
		sys.Submit(def)
	}
	for _, b := range pending {
		sys.Submit(b)
	}
	sys.Start(context.Background())
}

// Stop requests an orderly shutdown of the process-wide System. It is
// idempotent and safe to call even if Start was never called.
func Stop() {
	facadeMu.Lock()
	sys := facadeSys
	facadeMu.Unlock()
	if sys == nil {
		return
	}
	sys.Stop()
}

// BlockUntilStopped blocks until the process-wide System has stopped.
func BlockUntilStopped() {
	facadeMu.Lock()
	sys := facadeSys
	facadeMu.Unlock()
	if sys == nil {
		return
	}
	sys.BlockUntilStopped()
}
