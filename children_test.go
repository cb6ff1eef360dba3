package bastion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRecipe relays every delivered body onto out, tagged with the
// receiving actor's own id, until it observes Stop.
func echoRecipe(out chan<- echoMsg) Recipe {
	return func(ctx Context) error {
		for {
			env, err := ctx.Recv(context.Background())
			if err != nil {
				return nil
			}
			out <- echoMsg{id: ctx.Current(), body: env.Body}
		}
	}
}

type echoMsg struct {
	id   ActorId
	body Payload
}

func TestChildrenGroup_DefaultDispatcherBroadcastsToAllMembers(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	root := NewBroadcastNode(0)

	out := make(chan echoMsg, 16)
	gb := NewGroupBuilder("workers").WithExec(echoRecipe(out)).WithRedundancy(3)
	group := newChildrenGroup(gb)
	group.launch(sys, DefaultPath(), root, sys.dir)

	require.NoError(t, group.dispatch(Envelope{Body: "all"}))

	seen := map[ActorId]bool{}
	for i := 0; i < 3; i++ {
		select {
		case m := <-out:
			assert.Equal(t, "all", m.body)
			seen[m.id] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast fan-out")
		}
	}
	assert.Len(t, seen, 3)
}

func TestChildrenGroup_RoundRobinDispatchesToEachMemberInTurn(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	root := NewBroadcastNode(0)

	out := make(chan echoMsg, 16)
	gb := NewGroupBuilder("workers").WithExec(echoRecipe(out)).WithRedundancy(3).
		WithDispatcher(RoundRobinDispatcher("rr"))
	group := newChildrenGroup(gb)
	group.launch(sys, DefaultPath(), root, sys.dir)

	members := group.MemberIDs()

	// Six dispatches over three members should land exactly twice per
	// member.
	for i := 0; i < 6; i++ {
		require.NoError(t, group.dispatch(Envelope{Body: i}))
	}

	counts := map[ActorId]int{}
	for i := 0; i < 6; i++ {
		select {
		case m := <-out:
			counts[m.id]++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for round-robin delivery")
		}
	}
	for _, id := range members {
		assert.Equal(t, 2, counts[id], "member %s should receive exactly 2 of 6 dispatches", id)
	}
}

func TestChildrenGroup_DispatchToEmptyGroupIsNoSuchPath(t *testing.T) {
	gb := NewGroupBuilder("empty").WithExec(func(ctx Context) error { return nil })
	group := newChildrenGroup(gb)
	err := group.dispatch(Envelope{Body: "x"})
	assert.ErrorIs(t, err, ErrNoSuchPath)
}

func TestChildrenGroup_ReplaceSwapsMemberPreservingOrder(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	root := NewBroadcastNode(0)
	group := newChildrenGroup(NewGroupBuilder("workers").WithExec(func(ctx Context) error {
		_, err := ctx.Recv(context.Background())
		return err
	}))
	group.launch(sys, DefaultPath(), root, sys.dir)

	members := group.Members()
	require.Len(t, members, 1)
	oldID := members[0].ID

	newChild := &Child{ID: NewActorId()}
	group.replace(oldID, newChild)

	got := group.MemberIDs()
	require.Len(t, got, 1)
	assert.Equal(t, newChild.ID, got[0])
}
