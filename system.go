package bastion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// rootEntry is a System's view of one submitted top-level Supervisor,
// tracked the same way a Supervisor tracks its own entries: slotID is
// stable across relaunches, currentID is the live incarnation.
type rootEntry struct {
	slotID    ActorId
	builder   *SupervisorBuilder
	sup       *supervisor
	currentID ActorId
}

// System is the root of the supervision tree: it owns the top-level
// supervisor set, reaps dead children, and reboots faulted ones.
type System struct {
	ID       ActorId
	nodeName string
	bcast    *BroadcastNode
	dir      *directory
	executor Executor
	config   Config

	intake chan *SupervisorBuilder

	mu      sync.Mutex
	entries []*rootEntry
	dead    map[ActorId]struct{}

	restartsMu sync.Mutex
	restarts   map[ActorId][]time.Time

	started  bool
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewSystem constructs an Initialized System. Call Start to begin running
// its intake loop.
func NewSystem(cfg Config) *System {
	cfg = cfg.withDefaults()
	return &System{
		ID:       NewActorId(),
		nodeName: cfg.NodeName,
		bcast:    NewBroadcastNode(0),
		dir:      newDirectory(),
		executor: cfg.Executor,
		config:   cfg,
		intake:   make(chan *SupervisorBuilder, 64),
		dead:     make(map[ActorId]struct{}),
		restarts: make(map[ActorId][]time.Time),
		stopped:  make(chan struct{}),
	}
}

func (s *System) rootPath() ActorPath {
	return DefaultPath().WithNodeName(s.nodeName).WithScope(ScopeSystem).WithName("root")
}

// Submit enqueues a newly-built Supervisor for launch on the next intake
// turn.
func (s *System) Submit(builder *SupervisorBuilder) {
	s.intake <- builder
}

// Start begins executing the system loop in the background. Starting an
// already-started or already-stopped System is a no-op.
func (s *System) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopped:
		s.mu.Unlock()
		return
	default:
	}
	s.started = true
	s.mu.Unlock()

	s.executor.Spawn(func(_ context.Context) {
		s.run(ctx)
	})
}

// run is the root system loop: on each turn it observes broadcast
// inbound traffic and intake submissions, in that order: an inbound
// message already waiting is handled before intake is looked at, and only
// when none is waiting does the loop block on both at once. It is
// implemented with selects rather than the source's poll-and-yield loop,
// so an idle loop blocks instead of busy-polling.
func (s *System) run(ctx context.Context) {
	// However the loop exits, the System counts as Stopped: anyone parked
	// in BlockUntilStopped is released.
	defer s.stopOnce.Do(func() { close(s.stopped) })

	// pumpCtx is derived from the caller's ctx but also canceled by this
	// method returning for any reason, so pumpInbound's goroutine is never
	// left blocked on a caller ctx that outlives an orderly shutdown (the
	// façade, for instance, always starts the system with
	// context.Background()).
	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()

	inbound := s.pumpInbound(pumpCtx)
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if s.handleInbound(msg) {
				return
			}
			continue
		default:
		}
		select {
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if s.handleInbound(msg) {
				return
			}
		case builder, ok := <-s.intake:
			if !ok {
				// closed supervisor intake: exit the loop.
				return
			}
			s.launchSupervisor(builder)
		case <-ctx.Done():
			return
		}
	}
}

// pumpInbound adapts BroadcastNode.Next's blocking-call shape into a
// single long-lived channel, so the loop can wait on bcast traffic and
// intake submissions simultaneously (via select) without spawning a new
// goroutine per turn.
func (s *System) pumpInbound(ctx context.Context) <-chan ControlMessage {
	out := make(chan ControlMessage)
	go func() {
		defer close(out)
		for {
			msg, err := s.bcast.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// handleInbound applies one ControlMessage and reports whether the system
// loop should now exit: after an orderly PoisonPill shutdown, or after the
// root's own restart budget is exhausted.
func (s *System) handleInbound(msg ControlMessage) bool {
	switch msg.Kind {
	case KindDead:
		s.handleDead(msg.ID)
	case KindFaulted:
		return s.handleFault(msg.ID, msg.Reason)
	case KindDeliver:
		s.bcast.SendChildren(msg)
	case KindPoisonPill:
		s.shutdown()
		return true
	}
	return false
}

func (s *System) findEntry(id ActorId) *rootEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.currentID == id {
			return e
		}
	}
	return nil
}

func (s *System) handleDead(id ActorId) {
	s.bcast.RemoveChild(id)
	s.mu.Lock()
	s.dead[id] = struct{}{}
	for i, e := range s.entries {
		if e.currentID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// handleFault relaunches the faulted top-level supervisor, or shuts the
// whole system down when the root's own restart budget is exhausted; the
// returned bool reports the latter.
func (s *System) handleFault(id ActorId, reason error) bool {
	s.bcast.RemoveChild(id)
	entry := s.findEntry(id)
	if entry == nil {
		return false
	}

	if !s.recordRestart(entry.slotID) {
		log.Error().Str("path", s.rootPath().String()).Msg("root restart budget exceeded, stopping system")
		s.shutdown()
		return true
	}

	log.Warn().Str("supervisor", entry.builder.name).Err(reason).Msg("supervisor faulted, relaunching")
	s.relaunchEntry(entry)
	return false
}

func (s *System) recordRestart(slotID ActorId) bool {
	now := time.Now()
	s.restartsMu.Lock()
	defer s.restartsMu.Unlock()

	cutoff := now.Add(-s.config.RestartWindow)
	kept := s.restarts[slotID][:0]
	for _, t := range s.restarts[slotID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.restarts[slotID] = kept
	return len(kept) <= s.config.MaxRestarts
}

func (s *System) launchSupervisor(builder *SupervisorBuilder) {
	sup := newSupervisor(s, builder, s.rootPath())
	sup.bcast.SetParent(s.bcast)
	s.bcast.AddChild(sup.ID, sup.bcast)
	sup.launchChildren()

	entry := &rootEntry{slotID: sup.ID, builder: builder, sup: sup, currentID: sup.ID}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	s.executor.Spawn(func(ctx context.Context) {
		sup.run(ctx)
	})
}

func (s *System) relaunchEntry(entry *rootEntry) {
	sup := newSupervisor(s, entry.builder, s.rootPath())
	sup.bcast.SetParent(s.bcast)
	s.bcast.AddChild(sup.ID, sup.bcast)
	sup.launchChildren()

	s.mu.Lock()
	entry.sup = sup
	entry.currentID = sup.ID
	s.mu.Unlock()

	s.executor.Spawn(func(ctx context.Context) {
		sup.run(ctx)
	})
}

// shutdown broadcasts Stop downward and waits for every top-level
// supervisor to terminate before marking the system Stopped.
func (s *System) shutdown() {
	s.bcast.SendChildren(StopMessage())

	s.mu.Lock()
	entries := append([]*rootEntry(nil), s.entries...)
	s.mu.Unlock()

	for _, e := range entries {
		<-e.sup.done
	}

	s.stopOnce.Do(func() { close(s.stopped) })
}

// Stop requests an orderly shutdown. It is idempotent, and it completes
// even when the loop was never started: a System with no running loop has
// nothing to drain, so it transitions straight to Stopped.
func (s *System) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		s.stopOnce.Do(func() { close(s.stopped) })
		return
	}
	_ = s.bcast.Deliver(PoisonPillMessage())
}

// BlockUntilStopped blocks until the system has fully stopped, whether via
// Stop() or an unrecoverable root-level fault.
func (s *System) BlockUntilStopped() {
	<-s.stopped
}

// Tell enqueues body at target from outside the actor tree (no sender id).
func (s *System) Tell(target ActorPath, body Payload) error {
	return s.tell(target, body, ActorId{})
}

// Ask enqueues body at target with a one-shot reply channel and waits for
// the reply or for ctx to be done, from outside the actor tree.
func (s *System) Ask(ctx context.Context, target ActorPath, body Payload) (Payload, error) {
	return s.ask(ctx, target, body, ActorId{})
}

// Broadcast routes body to target (All, a named group, or a single path)
// from outside the actor tree.
func (s *System) Broadcast(target BroadcastTarget, body Payload) error {
	return s.dispatch(target, body, ActorId{})
}

// --- tell / ask / dispatch: resolve a target and deliver through the
// directory, used by both Context and the façade's top-level helpers.

func (s *System) tell(target ActorPath, body Payload, sender ActorId) error {
	if target.Scope() == ScopeDeadLetter {
		return ErrNoSuchPath
	}
	mb, ok := s.dir.lookupPath(target)
	if !ok {
		return ErrNoSuchPath
	}
	return mb.Send(DeliverMessage(Envelope{Sender: sender, Body: body}))
}

func (s *System) ask(ctx context.Context, target ActorPath, body Payload, sender ActorId) (Payload, error) {
	if target.Scope() == ScopeDeadLetter {
		return nil, ErrNoSuchPath
	}
	mb, ok := s.dir.lookupPath(target)
	if !ok {
		return nil, ErrNoSuchPath
	}
	reply := newReplyHandle()
	if err := mb.Send(DeliverMessage(Envelope{Sender: sender, Body: body, Reply: reply})); err != nil {
		return nil, err
	}
	future := newFuture(reply.ch)
	return future.Await(ctx.Done())
}

func (s *System) dispatch(target BroadcastTarget, body Payload, sender ActorId) error {
	env := Envelope{Sender: sender, Body: body}
	switch target.Kind {
	case TargetAll:
		s.bcast.SendChildren(DeliverMessage(env))
		return nil
	case TargetGroup:
		group, ok := s.dir.lookupGroup(target.Name)
		if !ok {
			return ErrNoSuchPath
		}
		return group.dispatch(env)
	case TargetChildren:
		if target.Path.Scope() == ScopeDeadLetter {
			return ErrNoSuchPath
		}
		mb, ok := s.dir.lookupPath(target.Path)
		if !ok {
			return ErrNoSuchPath
		}
		return mb.Send(DeliverMessage(env))
	default:
		return fmt.Errorf("bastion: unknown broadcast target kind %d", target.Kind)
	}
}

// PendingMailboxes reports the number of currently registered actor paths
// whose mailbox still holds undelivered messages, used by tests and
// operational introspection to confirm quiescence after a join.
func (s *System) PendingMailboxes() int {
	s.dir.mu.RLock()
	defer s.dir.mu.RUnlock()
	count := 0
	for _, mb := range s.dir.paths {
		if mb.Len() > 0 {
			count++
		}
	}
	return count
}
