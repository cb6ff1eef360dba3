package bastion

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// GroupBuilder configures a ChildrenGroup before it is attached to a
// Supervisor, mirroring an Erlang-style children spec builder.
type GroupBuilder struct {
	name       string
	recipe     Recipe
	redundancy int
	dispatcher Dispatcher
	userData   Payload
}

// NewGroupBuilder starts a ChildrenGroup builder with redundancy defaulted
// to 1 and the Default (broadcast-to-all) dispatcher.
func NewGroupBuilder(name string) *GroupBuilder {
	return &GroupBuilder{
		name:       name,
		redundancy: 1,
		dispatcher: DefaultDispatcher(),
	}
}

// WithExec sets the spawn recipe every member of the group runs.
func (b *GroupBuilder) WithExec(recipe Recipe) *GroupBuilder {
	b.recipe = recipe
	return b
}

// WithRedundancy sets how many identical members the group maintains.
func (b *GroupBuilder) WithRedundancy(n int) *GroupBuilder {
	if n < 1 {
		n = 1
	}
	b.redundancy = n
	return b
}

// WithDispatcher attaches a routing policy to the group.
func (b *GroupBuilder) WithDispatcher(d Dispatcher) *GroupBuilder {
	b.dispatcher = d
	return b
}

// WithContext attaches arbitrary user data, reachable from every member's
// Context.UserData().
func (b *GroupBuilder) WithContext(data Payload) *GroupBuilder {
	b.userData = data
	return b
}

// ChildrenGroup is a set of identical actors sharing a spawn recipe and an
// optional dispatcher.
type ChildrenGroup struct {
	ID      ActorId
	builder *GroupBuilder

	mu      sync.Mutex
	members []*Child // ordered by insertion; position is preserved across restarts

	rrCounter uint64
}

func newChildrenGroup(b *GroupBuilder) *ChildrenGroup {
	return &ChildrenGroup{
		ID:      NewActorId(),
		builder: b,
	}
}

// launch spawns builder.redundancy fresh members under parentPath/parentBcast
// and registers the group's dispatcher name, if any, in dir. The member
// list stays locked until every member has been appended, so a member that
// asks for its peers while the group is launching sees the whole group.
func (g *ChildrenGroup) launch(sys *System, parentPath ActorPath, parentBcast *BroadcastNode, dir *directory) {
	if g.builder.dispatcher.Name != "" {
		dir.registerGroup(g.builder.dispatcher.Name, g)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < g.builder.redundancy; i++ {
		path := parentPath.WithScope(ScopeUser).WithName(fmt.Sprintf("%s/%d", g.builder.name, i))
		child := spawnChild(sys, path, g.builder.recipe, g, parentBcast)
		g.members = append(g.members, child)
	}
}

// Members returns a snapshot of the group's current Child entries in
// insertion order.
func (g *ChildrenGroup) Members() []*Child {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Child, len(g.members))
	copy(out, g.members)
	return out
}

// MemberIDs returns a snapshot of the current member ids.
func (g *ChildrenGroup) MemberIDs() []ActorId {
	members := g.Members()
	ids := make([]ActorId, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

// replace swaps the member at the position held by oldID for newChild,
// preserving index order; used by a supervisor restarting a faulted
// member. It is a no-op if oldID is no longer a member (already replaced).
func (g *ChildrenGroup) replace(oldID ActorId, newChild *Child) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.members {
		if m.ID == oldID {
			g.members[i] = newChild
			return
		}
	}
}

// remove drops id from the member set entirely; used when a member exits
// cleanly (Dead), which the supervisor does not replace.
func (g *ChildrenGroup) remove(id ActorId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.members {
		if m.ID == id {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return
		}
	}
}

// dispatch routes body to this group according to its Dispatcher policy,
// wrapping it as a Deliver control message. DispatcherDefault and
// DispatcherNamed fan out to every live member; DispatcherRoundRobin
// selects exactly one, advancing the group's monotonic counter. An empty
// member set always yields ErrNoSuchPath.
func (g *ChildrenGroup) dispatch(env Envelope) error {
	g.mu.Lock()
	members := make([]*Child, len(g.members))
	copy(members, g.members)
	g.mu.Unlock()

	if len(members) == 0 {
		return ErrNoSuchPath
	}

	msg := DeliverMessage(env)

	switch g.builder.dispatcher.Kind {
	case DispatcherRoundRobin:
		idx := atomic.AddUint64(&g.rrCounter, 1) - 1
		target := members[idx%uint64(len(members))]
		return target.mailbox.Send(msg)
	default: // DispatcherDefault, DispatcherNamed
		var firstErr error
		for _, m := range members {
			if err := m.mailbox.Send(msg); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
