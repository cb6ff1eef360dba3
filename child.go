package bastion

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Child is a single running actor incarnation: its identity, its address,
// its mailbox, and the handle the owning supervisor awaits to learn how it
// terminated.
type Child struct {
	ID     ActorId
	Path   ActorPath
	recipe Recipe

	bcast   *BroadcastNode
	mailbox *Mailbox
	group   *ChildrenGroup
	sys     *System

	repliesMu sync.Mutex
	replies   []*ReplyHandle

	done chan struct{}
}

// trackReply remembers a reply handle handed to the recipe so that an
// incarnation exiting without ever firing it cancels the asker instead of
// leaving it suspended forever. Fired handles are pruned opportunistically
// to keep the slice from growing across a long-lived actor's life.
func (c *Child) trackReply(r *ReplyHandle) {
	c.repliesMu.Lock()
	if len(c.replies) >= 32 {
		kept := c.replies[:0]
		for _, h := range c.replies {
			if !h.fired() {
				kept = append(kept, h)
			}
		}
		c.replies = kept
	}
	c.replies = append(c.replies, r)
	c.repliesMu.Unlock()
}

func (c *Child) cancelPendingReplies() {
	c.repliesMu.Lock()
	pending := c.replies
	c.replies = nil
	c.repliesMu.Unlock()
	for _, h := range pending {
		h.Cancel()
	}
}

// spawnChild starts a fresh incarnation of recipe at path, wired under
// parentBcast, registered in sys's path directory, and returns immediately;
// the actor's goroutine is already running.
func spawnChild(sys *System, path ActorPath, recipe Recipe, group *ChildrenGroup, parentBcast *BroadcastNode) *Child {
	c := &Child{
		ID:     NewActorId(),
		Path:   path,
		recipe: recipe,
		bcast:  NewBroadcastNode(0),
		group:  group,
		sys:    sys,
		done:   make(chan struct{}),
	}
	c.mailbox = c.bcast.Mailbox()
	c.bcast.SetParent(parentBcast)
	parentBcast.AddChild(c.ID, c.bcast)
	sys.dir.registerPath(path, c.mailbox)

	sys.executor.Spawn(func(_ context.Context) {
		c.run()
	})
	return c
}

// run drives the recipe to completion, installing the panic/catch boundary
// and emitting the terminal lifecycle event.
func (c *Child) run() {
	defer close(c.done)

	var faultReason error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("path", c.Path.String()).
					Interface("panic", r).
					Msg("actor panicked")
				faultReason = &FaultReason{Panicked: true, Cause: fmt.Errorf("%v", r)}
			}
		}()

		ctx := &childContext{self: c, sys: c.sys}
		if c.group != nil {
			ctx.userData = c.group.builder.userData
		}
		err := c.recipe(ctx)
		if err != nil && err != ErrStopped {
			faultReason = &FaultReason{Panicked: false, Cause: err}
		}
	}()

	c.sys.dir.unregisterPath(c.Path)
	c.mailbox.Terminate(ErrStopped)
	c.cancelPendingReplies()

	if faultReason != nil {
		c.bcast.SendParent(FaultedMessage(c.ID, faultReason))
		return
	}
	c.bcast.SendParent(DeadMessage(c.ID))
}

// Wait blocks until the actor's goroutine has exited.
func (c *Child) Wait() {
	<-c.done
}
