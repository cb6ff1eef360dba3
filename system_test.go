package bastion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystem_AskReplyEcho(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys.Start(ctx)

	var actorPath ActorPath
	ready := make(chan struct{})

	echo := NewGroupBuilder("echo").WithExec(func(c Context) error {
		actorPath = c.Self()
		close(ready)
		for {
			env, err := c.Recv(context.Background())
			if err != nil {
				return nil
			}
			if env.Reply != nil {
				env.Reply.Reply(env.Body)
			}
		}
	})
	sys.Submit(NewSupervisorBuilder("root").WithChildren(echo))

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("echo actor never started")
	}

	askCtx, askCancel := context.WithTimeout(context.Background(), time.Second)
	defer askCancel()
	reply, err := sys.ask(askCtx, actorPath, "ping", ActorId{})
	require.NoError(t, err)
	assert.Equal(t, "ping", reply)

	sys.Stop()
	done := make(chan struct{})
	go func() { sys.BlockUntilStopped(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("system never reported stopped")
	}
}

func TestSystem_TellToUnregisteredPathIsNoSuchPath(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	target := DefaultPath().WithNodeName(sys.nodeName).WithScope(ScopeUser).WithName("ghost")
	err := sys.tell(target, "x", ActorId{})
	assert.ErrorIs(t, err, ErrNoSuchPath)
}

func TestSystem_TellToDeadLetterScopeIsNoSuchPath(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	target := DefaultPath().WithScope(ScopeDeadLetter)
	err := sys.tell(target, "x", ActorId{})
	assert.ErrorIs(t, err, ErrNoSuchPath)
}

func TestSystem_DispatchToUnknownGroupIsNoSuchPath(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	err := sys.dispatch(GroupTarget("nope"), "x", ActorId{})
	assert.ErrorIs(t, err, ErrNoSuchPath)
}

func TestSystem_StopIsIdempotent(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys.Start(ctx)

	sys.Stop()
	sys.Stop()
	sys.Stop()

	done := make(chan struct{})
	go func() { sys.BlockUntilStopped(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("system never reported stopped after repeated Stop")
	}
}

func TestSystem_PendingMailboxesIsZeroWhenQuiescent(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	assert.Equal(t, 0, sys.PendingMailboxes())
}

func TestSystem_AskToActorThatExitsWithoutReplyIsCanceled(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	root := NewBroadcastNode(0)

	// The actor receives the question, never fires the reply handle, and
	// exits; the asker must observe cancellation, not hang.
	mute := NewGroupBuilder("mute").WithExec(func(c Context) error {
		_, _ = c.Recv(context.Background())
		return nil
	})
	group := newChildrenGroup(mute)
	group.launch(sys, DefaultPath(), root, sys.dir)
	path := group.Members()[0].Path

	askCtx, askCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer askCancel()
	_, err := sys.Ask(askCtx, path, "anyone?")
	assert.ErrorIs(t, err, ErrAskCanceled)
}

func TestSystem_StopBeforeStartCompletesImmediately(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	sys.Stop()

	done := make(chan struct{})
	go func() { sys.BlockUntilStopped(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("never-started system did not stop")
	}
}

func TestSystem_RootRestartBudgetExceededStopsSystem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRestarts = 1
	cfg.RestartWindow = time.Minute
	sys := NewSystem(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys.Start(ctx)

	// A child that faults on sight under a tiny supervisor budget: the
	// supervisor escalates almost immediately, the root relaunches it
	// once, and the second escalation blows the root's own budget.
	failing := NewGroupBuilder("failing").WithExec(func(c Context) error {
		return errors.New("boom")
	})
	sys.Submit(
		NewSupervisorBuilder("doomed").
			WithRestartPolicy(1, time.Minute).
			WithChildren(failing),
	)

	done := make(chan struct{})
	go func() { sys.BlockUntilStopped(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("system never stopped after the root budget was exceeded")
	}
}
