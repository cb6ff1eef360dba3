package bastion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastNode_SendChildrenFansOutToAll(t *testing.T) {
	root := NewBroadcastNode(0)
	a := NewBroadcastNode(0)
	b := NewBroadcastNode(0)
	root.AddChild(NewActorId(), a)
	root.AddChild(NewActorId(), b)

	root.SendChildren(DeliverMessage(Envelope{Body: "ping"}))

	ctx := context.Background()
	ma, err := a.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", ma.Envelope.Body)

	mb, err := b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", mb.Envelope.Body)
}

func TestBroadcastNode_SendParentReachesParentOnly(t *testing.T) {
	parent := NewBroadcastNode(0)
	child := NewBroadcastNode(0)
	child.SetParent(parent)

	id := NewActorId()
	child.SendParent(DeadMessage(id))

	msg, err := parent.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindDead, msg.Kind)
	assert.Equal(t, id, msg.ID)
}

func TestBroadcastNode_SendParentWithNoParentIsDropped(t *testing.T) {
	root := NewBroadcastNode(0)
	assert.NotPanics(t, func() {
		root.SendParent(DeadMessage(NewActorId()))
	})
}

func TestBroadcastNode_RemoveChildIsIdempotent(t *testing.T) {
	root := NewBroadcastNode(0)
	id := NewActorId()
	child := NewBroadcastNode(0)
	root.AddChild(id, child)
	assert.Len(t, root.ChildIDs(), 1)

	root.RemoveChild(id)
	assert.Empty(t, root.ChildIDs())

	// removing again, or removing an id never added, must not panic.
	assert.NotPanics(t, func() {
		root.RemoveChild(id)
		root.RemoveChild(NewActorId())
	})
}

func TestBroadcastNode_DeliverTargetsThisNodeOnly(t *testing.T) {
	root := NewBroadcastNode(0)
	child := NewBroadcastNode(0)
	root.AddChild(NewActorId(), child)

	require.NoError(t, root.Deliver(DeliverMessage(Envelope{Body: "direct"})))

	msg, err := root.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "direct", msg.Envelope.Body)
}
