package bastion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Strategy is a Supervisor's restart policy.
type Strategy int

const (
	// OneForOne restarts only the faulted child.
	OneForOne Strategy = iota
	// OneForAll stops and restarts every child when any one faults.
	OneForAll
	// RestForOne stops and restarts the faulted child and every child
	// created after it, in insertion order.
	RestForOne
)

// attachment is either a *GroupBuilder or a *SupervisorBuilder, kept in a
// single slice so insertion order across groups and nested supervisors is
// preserved; RestForOne depends on that order.
type attachment struct {
	group  *GroupBuilder
	nested *SupervisorBuilder
}

// SupervisorBuilder configures a Supervisor before it is submitted to a
// System.
type SupervisorBuilder struct {
	name        string
	strategy    Strategy
	maxRestarts int
	within      time.Duration
	attachments []attachment
}

// NewSupervisorBuilder starts a builder with the OneForOne strategy and a
// restart budget of 5 within 1s, a conservative default throttle every
// supervisor gets unless overridden.
func NewSupervisorBuilder(name string) *SupervisorBuilder {
	return &SupervisorBuilder{
		name:        name,
		strategy:    OneForOne,
		maxRestarts: 5,
		within:      time.Second,
	}
}

// WithStrategy sets the restart strategy.
func (b *SupervisorBuilder) WithStrategy(s Strategy) *SupervisorBuilder {
	b.strategy = s
	return b
}

// WithRestartPolicy sets the sliding-window restart budget: more than
// maxRestarts restarts for the same logical child within `within` escalates.
func (b *SupervisorBuilder) WithRestartPolicy(maxRestarts int, within time.Duration) *SupervisorBuilder {
	b.maxRestarts = maxRestarts
	b.within = within
	return b
}

// WithChildren attaches a ChildrenGroup builder.
func (b *SupervisorBuilder) WithChildren(g *GroupBuilder) *SupervisorBuilder {
	b.attachments = append(b.attachments, attachment{group: g})
	return b
}

// WithSupervisor attaches a nested supervisor builder.
func (b *SupervisorBuilder) WithSupervisor(s *SupervisorBuilder) *SupervisorBuilder {
	b.attachments = append(b.attachments, attachment{nested: s})
	return b
}

// entryKind distinguishes a flattened Supervisor child entry.
type entryKind int

const (
	entryChild entryKind = iota
	entrySupervisor
)

// supervisorEntry is one position in a Supervisor's flattened, ordered
// child list. slotID is the stable logical identity of the position
// (constant across restarts); currentID is the live incarnation's id,
// which changes every time the entry is restarted.
type supervisorEntry struct {
	kind      entryKind
	slotID    ActorId
	group     *ChildrenGroup // set when kind == entryChild
	child     *Child         // current incarnation, kind == entryChild
	supBuild  *SupervisorBuilder
	sup       *supervisor // current incarnation, kind == entrySupervisor
	currentID ActorId
}

// supervisor is the running instance of a SupervisorBuilder: a restart
// policy, a flattened ordered child set, and fault escalation. Only the
// builder is public API; the running form is owned by its System.
type supervisor struct {
	ID      ActorId
	Path    ActorPath
	builder *SupervisorBuilder
	bcast   *BroadcastNode
	sys     *System
	dir     *directory

	mu      sync.Mutex
	entries []*supervisorEntry

	restartsMu sync.Mutex
	restarts   map[ActorId][]time.Time

	done    chan struct{}
	faulted bool
}

func newSupervisor(sys *System, builder *SupervisorBuilder, parentPath ActorPath) *supervisor {
	path := parentPath.WithScope(ScopeSystem).WithName(builder.name)
	return &supervisor{
		ID:       NewActorId(),
		Path:     path,
		builder:  builder,
		bcast:    NewBroadcastNode(0),
		sys:      sys,
		dir:      sys.dir,
		restarts: make(map[ActorId][]time.Time),
		done:     make(chan struct{}),
	}
}

// launchChildren spawns every attachment in order, populating s.entries.
func (s *supervisor) launchChildren() {
	for _, att := range s.builder.attachments {
		if att.group != nil {
			s.launchGroupAttachment(att.group)
			continue
		}
		s.launchNestedAttachment(att.nested)
	}
}

func (s *supervisor) launchGroupAttachment(gb *GroupBuilder) {
	group := newChildrenGroup(gb)
	group.launch(s.sys, s.Path, s.bcast, s.dir)
	for _, child := range group.Members() {
		s.mu.Lock()
		s.entries = append(s.entries, &supervisorEntry{
			kind:      entryChild,
			slotID:    child.ID,
			group:     group,
			child:     child,
			currentID: child.ID,
		})
		s.mu.Unlock()
	}
}

func (s *supervisor) launchNestedAttachment(sb *SupervisorBuilder) {
	nested := newSupervisor(s.sys, sb, s.Path)
	nested.bcast.SetParent(s.bcast)
	s.bcast.AddChild(nested.ID, nested.bcast)
	nested.launchChildren()
	s.sys.executor.Spawn(func(ctx context.Context) { nested.run(ctx) })

	s.mu.Lock()
	s.entries = append(s.entries, &supervisorEntry{
		kind:      entrySupervisor,
		slotID:    nested.ID,
		supBuild:  sb,
		sup:       nested,
		currentID: nested.ID,
	})
	s.mu.Unlock()
}

// run is the supervisor's own event loop: observe Faulted/Dead from direct
// entries, apply the restart strategy, forward Deliver/Stop downward.
func (s *supervisor) run(ctx context.Context) {
	defer close(s.done)
	for {
		msg, err := s.bcast.Next(ctx)
		if err != nil {
			return
		}
		switch msg.Kind {
		case KindFaulted:
			s.handleFault(msg.ID, msg.Reason)
			if s.Faulted() {
				// Escalated: children are already stopped and the fault
				// has been reported upward; this incarnation is done.
				return
			}
		case KindDead:
			s.handleDead(msg.ID)
		case KindStop:
			s.bcast.SendChildren(StopMessage())
			s.awaitAllEntries()
			return
		case KindDeliver:
			s.bcast.SendChildren(msg)
		}
	}
}

func (s *supervisor) findEntry(id ActorId) (*supervisorEntry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.currentID == id {
			return e, i
		}
	}
	return nil, -1
}

func (s *supervisor) handleDead(id ActorId) {
	s.bcast.RemoveChild(id)
	if e, _ := s.findEntry(id); e != nil && e.kind == entryChild {
		e.group.remove(id)
	}
}

func (s *supervisor) handleFault(id ActorId, reason error) {
	s.bcast.RemoveChild(id)

	entry, idx := s.findEntry(id)
	if entry == nil {
		return // stale fault from an already-replaced incarnation
	}

	if !s.recordRestart(entry.slotID) {
		s.escalate(reason)
		return
	}

	switch s.builder.strategy {
	case OneForOne:
		s.restartEntry(entry)
	case OneForAll:
		s.restartAll()
	case RestForOne:
		s.restartFrom(idx)
	}
}

// recordRestart prunes the sliding window for slotID and reports whether
// this restart is still within budget.
func (s *supervisor) recordRestart(slotID ActorId) bool {
	now := time.Now()
	s.restartsMu.Lock()
	defer s.restartsMu.Unlock()

	cutoff := now.Add(-s.builder.within)
	kept := s.restarts[slotID][:0]
	for _, t := range s.restarts[slotID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.restarts[slotID] = kept

	return len(kept) <= s.builder.maxRestarts
}

// escalate turns a restart-budget overrun into this supervisor's own
// fault, reported to its parent as a RestartBudgetExceeded cause.
func (s *supervisor) escalate(cause error) {
	s.mu.Lock()
	s.faulted = true
	s.mu.Unlock()

	log.Error().Str("path", s.Path.String()).Err(cause).Msg("restart budget exceeded, escalating")

	s.bcast.SendChildren(StopMessage())
	s.awaitAllEntries()

	reason := &FaultReason{Panicked: false, Cause: fmt.Errorf("%w: %v", ErrRestartBudgetExceeded, cause)}
	s.bcast.SendParent(FaultedMessage(s.ID, reason))
}

func (s *supervisor) restartEntry(entry *supervisorEntry) {
	if entry.kind == entryChild {
		s.restartChildEntry(entry)
		return
	}
	s.restartSupervisorEntry(entry)
}

func (s *supervisor) restartChildEntry(entry *supervisorEntry) {
	oldID := entry.currentID
	oldPath := entry.child.Path
	s.bcast.RemoveChild(oldID)
	child := spawnChild(s.sys, oldPath, entry.group.builder.recipe, entry.group, s.bcast)

	s.mu.Lock()
	entry.child = child
	entry.currentID = child.ID
	s.mu.Unlock()

	entry.group.replace(oldID, child)
	log.Info().Str("path", oldPath.String()).Str("new_id", child.ID.String()).Msg("child restarted")
}

func (s *supervisor) restartSupervisorEntry(entry *supervisorEntry) {
	s.bcast.RemoveChild(entry.currentID)
	nested := newSupervisor(s.sys, entry.supBuild, s.Path)
	nested.bcast.SetParent(s.bcast)
	s.bcast.AddChild(nested.ID, nested.bcast)
	nested.launchChildren()
	s.sys.executor.Spawn(func(ctx context.Context) { nested.run(ctx) })

	s.mu.Lock()
	entry.sup = nested
	entry.currentID = nested.ID
	s.mu.Unlock()
}

// restartAll stops every live entry, waits for them to terminate, and
// restarts them all fresh (OneForAll).
func (s *supervisor) restartAll() {
	s.mu.Lock()
	entries := append([]*supervisorEntry(nil), s.entries...)
	s.mu.Unlock()
	for _, e := range entries {
		s.stopEntry(e)
	}
	for _, e := range entries {
		s.restartEntry(e)
	}
}

// restartFrom stops and restarts every entry from position idx onward, in
// order (RestForOne).
func (s *supervisor) restartFrom(idx int) {
	s.mu.Lock()
	entries := append([]*supervisorEntry(nil), s.entries[idx:]...)
	s.mu.Unlock()
	for _, e := range entries {
		s.stopEntry(e)
	}
	for _, e := range entries {
		s.restartEntry(e)
	}
}

// stopEntry asks an entry to stop and waits for it. It is safe to call on
// an entry whose actor already exited (e.g. the one that just faulted):
// Send on its terminal mailbox is a no-op error we ignore, and Wait
// returns immediately since its done channel is already closed.
func (s *supervisor) stopEntry(e *supervisorEntry) {
	if e.kind == entryChild {
		_ = e.child.mailbox.Send(StopMessage())
		e.child.Wait()
		return
	}
	_ = e.sup.bcast.Deliver(StopMessage())
	<-e.sup.done
}

func (s *supervisor) awaitAllEntries() {
	s.mu.Lock()
	entries := append([]*supervisorEntry(nil), s.entries...)
	s.mu.Unlock()
	for _, e := range entries {
		if e.kind == entryChild {
			e.child.Wait()
		} else {
			<-e.sup.done
		}
	}
}

// Faulted reports whether the supervisor itself has escalated.
func (s *supervisor) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}
