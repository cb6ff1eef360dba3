package bastion

import "context"

// Recipe is the async behavior a ChildrenGroup spawns: given a Context, run
// to completion and return nil (clean stop) or an error (faulted). A
// panic inside Recipe is caught by the child runtime frame, never by the
// recipe itself.
type Recipe func(ctx Context) error

// Context is what a running Child sees of the runtime. It is the only
// surface user recipes are expected to call.
type Context interface {
	// Recv returns the next user Envelope for this actor, suspending when
	// the mailbox is empty. It returns ErrStopped once the actor's final
	// Stop has been delivered; no further Envelope is ever produced after
	// that.
	Recv(ctx context.Context) (Envelope, error)
	// Tell enqueues body at target and returns immediately; never blocks
	// beyond local mailbox admission.
	Tell(target ActorPath, body Payload) error
	// Ask enqueues body at target with a one-shot reply channel and waits
	// for the reply or for ctx to be done.
	Ask(ctx context.Context, target ActorPath, body Payload) (Payload, error)
	// BroadcastMessage fans body out to target (All / a named group /
	// a single path) through the broadcast fabric.
	BroadcastMessage(target BroadcastTarget, body Payload) error
	// Current returns this actor's own incarnation id.
	Current() ActorId
	// Self returns this actor's path.
	Self() ActorPath
	// Members returns a snapshot of the ids of peers sharing this actor's
	// ChildrenGroup, including itself. A restarted incarnation that calls
	// it before its supervisor has swapped it into the group sees its
	// predecessor's id in its place.
	Members() []ActorId
	// UserData returns whatever value was attached via WithContext on the
	// owning group's builder, or nil.
	UserData() Payload
}

// childContext is the concrete Context handed to a running Child's Recipe.
type childContext struct {
	self     *Child
	sys      *System
	userData Payload
}

func (c *childContext) Recv(ctx context.Context) (Envelope, error) {
	for {
		msg, err := c.self.mailbox.Recv(ctx)
		if err != nil {
			return Envelope{}, err
		}
		switch msg.Kind {
		case KindStop:
			return Envelope{}, ErrStopped
		case KindDeliver:
			if msg.Envelope.Reply != nil {
				c.self.trackReply(msg.Envelope.Reply)
			}
			return msg.Envelope, nil
		default:
			// Lifecycle traffic is the runtime frame's concern, not the
			// recipe's; skip to the next user-visible message.
			continue
		}
	}
}

func (c *childContext) Tell(target ActorPath, body Payload) error {
	return c.sys.tell(target, body, c.self.ID)
}

func (c *childContext) Ask(ctx context.Context, target ActorPath, body Payload) (Payload, error) {
	return c.sys.ask(ctx, target, body, c.self.ID)
}

func (c *childContext) BroadcastMessage(target BroadcastTarget, body Payload) error {
	return c.sys.dispatch(target, body, c.self.ID)
}

func (c *childContext) Current() ActorId { return c.self.ID }

func (c *childContext) Self() ActorPath { return c.self.Path }

func (c *childContext) Members() []ActorId {
	if c.self.group == nil {
		return []ActorId{c.self.ID}
	}
	return c.self.group.MemberIDs()
}

func (c *childContext) UserData() Payload { return c.userData }
