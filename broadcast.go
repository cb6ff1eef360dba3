package bastion

import (
	"context"
	"sync"
)

// BroadcastNode is the fan-out/fan-in unit of the broadcast fabric.
// Every actor (Child, Supervisor, System) owns one. Its inbound queue *is*
// the Mailbox a Child exposes to user code via Recv; the structural layer
// on top (parent/children edges, SendChildren/SendParent/RemoveChild) is
// what lets control messages flow down the supervision tree and fault
// reports flow back up it, without the tree ever needing an owning
// back-pointer (upward edges are weak references used only to emit
// events).
type BroadcastNode struct {
	inbox *Mailbox

	mu       sync.RWMutex
	childIDs []ActorId
	children map[ActorId]*BroadcastNode
	parent   *BroadcastNode
}

// NewBroadcastNode creates a node with its own inbound Mailbox of the given
// capacity (0 = unbounded, the default for control-fabric traffic, which
// is never dropped).
func NewBroadcastNode(capacity int) *BroadcastNode {
	return &BroadcastNode{
		inbox:    NewMailbox(capacity),
		children: make(map[ActorId]*BroadcastNode),
	}
}

// SetParent wires the upward edge used by SendParent. It does not register
// a reciprocal downward edge; callers pair SetParent with AddChild on the
// parent so both directions of the tree agree.
func (b *BroadcastNode) SetParent(parent *BroadcastNode) {
	b.mu.Lock()
	b.parent = parent
	b.mu.Unlock()
}

// AddChild registers id's broadcast node as a child, appended to the tail
// of the fan-out order.
func (b *BroadcastNode) AddChild(id ActorId, child *BroadcastNode) {
	b.mu.Lock()
	if _, exists := b.children[id]; !exists {
		b.childIDs = append(b.childIDs, id)
	}
	b.children[id] = child
	b.mu.Unlock()
}

// RemoveChild detaches the edge to id without touching the child actor
// itself. It is idempotent: removing an id that is not present, or
// removing it twice, is a no-op.
func (b *BroadcastNode) RemoveChild(id ActorId) {
	b.mu.Lock()
	if _, exists := b.children[id]; exists {
		delete(b.children, id)
		for i, cid := range b.childIDs {
			if cid == id {
				b.childIDs = append(b.childIDs[:i], b.childIDs[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()
}

// Child returns the currently registered broadcast node for id, if any.
func (b *BroadcastNode) Child(id ActorId) (*BroadcastNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.children[id]
	return c, ok
}

// ChildIDs returns a snapshot of currently registered child ids in
// insertion order.
func (b *BroadcastNode) ChildIDs() []ActorId {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ActorId, len(b.childIDs))
	copy(out, b.childIDs)
	return out
}

// SendChildren clones msg to every currently registered child. Fan-out is
// attempted in insertion order, but that order is not observable:
// children may interleave their own processing freely.
func (b *BroadcastNode) SendChildren(msg ControlMessage) {
	b.mu.RLock()
	targets := make([]*BroadcastNode, 0, len(b.childIDs))
	for _, id := range b.childIDs {
		targets = append(targets, b.children[id])
	}
	b.mu.RUnlock()

	for _, child := range targets {
		_ = child.inbox.Send(msg)
	}
}

// SendParent is a non-blocking upward report. If there is no parent (the
// node is the system root), the message is simply dropped; the root has no
// further escalation target.
func (b *BroadcastNode) SendParent(msg ControlMessage) {
	b.mu.RLock()
	parent := b.parent
	b.mu.RUnlock()
	if parent != nil {
		_ = parent.inbox.Send(msg)
	}
}

// Deliver injects msg directly into this node's own inbound queue, used to
// target a specific child rather than broadcasting to all of them.
func (b *BroadcastNode) Deliver(msg ControlMessage) error {
	return b.inbox.Send(msg)
}

// Next receives the next inbound ControlMessage, suspending when empty.
func (b *BroadcastNode) Next(ctx context.Context) (ControlMessage, error) {
	return b.inbox.Recv(ctx)
}

// Mailbox exposes the underlying Mailbox, e.g. so a Child can offer it as
// its public Recv surface.
func (b *BroadcastNode) Mailbox() *Mailbox {
	return b.inbox
}
