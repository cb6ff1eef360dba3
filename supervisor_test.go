package bastion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_OneForOneRestartsOnlyFaultedChild(t *testing.T) {
	sys := NewSystem(DefaultConfig())

	type start struct {
		name string
		id   ActorId
	}
	started := make(chan start, 8)

	var faulted int32
	failing := NewGroupBuilder("failing").WithExec(func(ctx Context) error {
		started <- start{"failing", ctx.Current()}
		if atomic.CompareAndSwapInt32(&faulted, 0, 1) {
			return errors.New("boom")
		}
		_, err := ctx.Recv(context.Background())
		return err
	})
	stable := NewGroupBuilder("stable").WithExec(func(ctx Context) error {
		started <- start{"stable", ctx.Current()}
		_, err := ctx.Recv(context.Background())
		return err
	})

	builder := NewSupervisorBuilder("root").
		WithStrategy(OneForOne).
		WithRestartPolicy(5, time.Second).
		WithChildren(failing).
		WithChildren(stable)

	sup := newSupervisor(sys, builder, DefaultPath())
	sup.bcast.SetParent(NewBroadcastNode(0))
	sup.launchChildren()

	// The supervisor loop starts only after both initial starts are in, so
	// the restart cannot be observed ahead of the stable child's first start.
	first := map[string]ActorId{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-started:
			first[s.name] = s.id
		case <-time.After(time.Second):
			t.Fatalf("expected 2 initial starts, saw %d", i)
		}
	}
	go sup.run(context.Background())

	// The failing child faults once and is restarted under a new id; the
	// stable one is left untouched.
	select {
	case s := <-started:
		assert.Equal(t, "failing", s.name)
		assert.NotEqual(t, first["failing"], s.id)
	case <-time.After(time.Second):
		t.Fatal("failing child was never restarted")
	}

	select {
	case s := <-started:
		t.Fatalf("no further restarts expected, got one for %q", s.name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSupervisor_RestartBudgetExceededEscalates(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	started := make(chan struct{}, 16)

	failing := NewGroupBuilder("failing").WithExec(func(ctx Context) error {
		started <- struct{}{}
		return errors.New("boom")
	})

	builder := NewSupervisorBuilder("root").
		WithStrategy(OneForOne).
		WithRestartPolicy(2, time.Minute).
		WithChildren(failing)

	sup := newSupervisor(sys, builder, DefaultPath())
	parent := NewBroadcastNode(0)
	sup.bcast.SetParent(parent)
	sup.launchChildren()
	go sup.run(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatalf("expected %d starts, only saw %d", 3, i)
		}
	}

	msg, err := parent.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindFaulted, msg.Kind)
	assert.True(t, sup.Faulted())
}

func TestSupervisor_OneForAllRestartsEverySibling(t *testing.T) {
	sys := NewSystem(DefaultConfig())

	type start struct {
		name string
		id   ActorId
	}
	started := make(chan start, 16)

	var aFaulted int32
	groupA := NewGroupBuilder("a").WithExec(func(ctx Context) error {
		started <- start{"a", ctx.Current()}
		if atomic.CompareAndSwapInt32(&aFaulted, 0, 1) {
			return errors.New("boom")
		}
		_, err := ctx.Recv(context.Background())
		return err
	})
	groupB := NewGroupBuilder("b").WithExec(func(ctx Context) error {
		started <- start{"b", ctx.Current()}
		_, err := ctx.Recv(context.Background())
		return err
	})
	groupC := NewGroupBuilder("c").WithExec(func(ctx Context) error {
		started <- start{"c", ctx.Current()}
		_, err := ctx.Recv(context.Background())
		return err
	})

	builder := NewSupervisorBuilder("root").
		WithStrategy(OneForAll).
		WithRestartPolicy(5, time.Second).
		WithChildren(groupA).
		WithChildren(groupB).
		WithChildren(groupC)

	sup := newSupervisor(sys, builder, DefaultPath())
	sup.bcast.SetParent(NewBroadcastNode(0))
	sup.launchChildren()
	go sup.run(context.Background())

	first := map[string]ActorId{}
	for i := 0; i < 3; i++ {
		select {
		case s := <-started:
			first[s.name] = s.id
		case <-time.After(time.Second):
			t.Fatalf("expected 3 initial starts, saw %d", i)
		}
	}

	// "a" faults on its first message; under OneForAll every sibling is
	// stopped and restarted, not just "a".
	restarted := map[string]ActorId{}
	for i := 0; i < 3; i++ {
		select {
		case s := <-started:
			restarted[s.name] = s.id
		case <-time.After(time.Second):
			t.Fatalf("expected all 3 siblings to restart under OneForAll, saw %d", i)
		}
	}

	for _, name := range []string{"a", "b", "c"} {
		assert.NotEqual(t, first[name], restarted[name], "sibling %q should have been restarted", name)
	}

	require.NoError(t, sup.bcast.Deliver(StopMessage()))
	select {
	case <-sup.done:
	case <-time.After(time.Second):
		t.Fatal("supervisor never signaled done after Stop")
	}
}

func TestSupervisor_RestForOneRestartsFromFaultedPositionOnward(t *testing.T) {
	sys := NewSystem(DefaultConfig())

	type start struct {
		name string
		id   ActorId
	}
	started := make(chan start, 16)

	var bFaulted int32
	groupA := NewGroupBuilder("a").WithExec(func(ctx Context) error {
		started <- start{"a", ctx.Current()}
		_, err := ctx.Recv(context.Background())
		return err
	})
	groupB := NewGroupBuilder("b").WithExec(func(ctx Context) error {
		started <- start{"b", ctx.Current()}
		if atomic.CompareAndSwapInt32(&bFaulted, 0, 1) {
			return errors.New("boom")
		}
		_, err := ctx.Recv(context.Background())
		return err
	})
	groupC := NewGroupBuilder("c").WithExec(func(ctx Context) error {
		started <- start{"c", ctx.Current()}
		_, err := ctx.Recv(context.Background())
		return err
	})

	builder := NewSupervisorBuilder("root").
		WithStrategy(RestForOne).
		WithRestartPolicy(5, time.Second).
		WithChildren(groupA).
		WithChildren(groupB).
		WithChildren(groupC)

	sup := newSupervisor(sys, builder, DefaultPath())
	sup.bcast.SetParent(NewBroadcastNode(0))
	sup.launchChildren()

	// The supervisor loop starts only after all three initial starts are in,
	// so no restart can be observed ahead of "a"'s first start.
	first := map[string]ActorId{}
	for i := 0; i < 3; i++ {
		select {
		case s := <-started:
			first[s.name] = s.id
		case <-time.After(time.Second):
			t.Fatalf("expected 3 initial starts, saw %d", i)
		}
	}
	go sup.run(context.Background())

	// "b" (position 1) faults; RestForOne restarts "b" and every entry
	// created after it ("c"), leaving "a" (created before "b") untouched.
	restarted := map[string]ActorId{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-started:
			restarted[s.name] = s.id
		case <-time.After(time.Second):
			t.Fatalf("expected b and c to restart, saw %d", i)
		}
	}

	assert.Contains(t, restarted, "b")
	assert.Contains(t, restarted, "c")
	assert.NotEqual(t, first["b"], restarted["b"])
	assert.NotEqual(t, first["c"], restarted["c"])

	select {
	case s := <-started:
		t.Fatalf("sibling %q created before the fault point should not have restarted", s.name)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, sup.bcast.Deliver(StopMessage()))
	select {
	case <-sup.done:
	case <-time.After(time.Second):
		t.Fatal("supervisor never signaled done after Stop")
	}
}

func TestSupervisor_StopPropagatesToChildrenAndSignalsDone(t *testing.T) {
	sys := NewSystem(DefaultConfig())
	exited := make(chan struct{})

	worker := NewGroupBuilder("worker").WithExec(func(ctx Context) error {
		defer close(exited)
		_, err := ctx.Recv(context.Background())
		return err
	})

	builder := NewSupervisorBuilder("root").WithChildren(worker)
	sup := newSupervisor(sys, builder, DefaultPath())
	sup.bcast.SetParent(NewBroadcastNode(0))
	sup.launchChildren()
	go sup.run(context.Background())

	require.NoError(t, sup.bcast.Deliver(StopMessage()))

	select {
	case <-sup.done:
	case <-time.After(time.Second):
		t.Fatal("supervisor never signaled done after Stop")
	}
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("child never observed Stop")
	}
}
