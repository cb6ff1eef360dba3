package bastion

import (
	"sync"
	"sync/atomic"
)

// Payload is an opaque, typed message body. The runtime never inspects a
// payload; pattern matching on its dynamic type is the receiving actor's
// concern, not the core's.
type Payload = interface{}

// ReplyHandle is a single-use one-shot channel carrying a single Payload
// back to an asker. It fires at most once. A handle that is never fired is
// canceled by the runtime, so the awaiting Future observes ErrAskCanceled,
// when the mailbox holding it is terminated or when the incarnation that
// received it exits; discarding it in user code cancels nothing before then.
type ReplyHandle struct {
	once sync.Once
	done uint32
	ch   chan replyResult
}

type replyResult struct {
	value Payload
	err   error
}

func newReplyHandle() *ReplyHandle {
	return &ReplyHandle{ch: make(chan replyResult, 1)}
}

// Reply fires the handle with a value. Only the first call has effect;
// subsequent calls are no-ops.
func (r *ReplyHandle) Reply(value Payload) {
	r.once.Do(func() {
		atomic.StoreUint32(&r.done, 1)
		r.ch <- replyResult{value: value}
	})
}

// Cancel fires the handle with ErrAskCanceled, used when the handle is
// discarded without a reply ever being produced.
func (r *ReplyHandle) Cancel() {
	r.once.Do(func() {
		atomic.StoreUint32(&r.done, 1)
		r.ch <- replyResult{err: ErrAskCanceled}
	})
}

// fired reports whether the handle has already produced its one result.
func (r *ReplyHandle) fired() bool {
	return atomic.LoadUint32(&r.done) == 1
}

// Future is the receiver side of a ReplyHandle, returned by Ask.
type Future struct {
	ch   <-chan replyResult
	done chan struct{}
	once sync.Once
}

func newFuture(ch <-chan replyResult) *Future {
	return &Future{ch: ch, done: make(chan struct{})}
}

// Await blocks until the reply arrives, the handle is canceled, or the
// supplied stop channel closes (e.g. from a context.Context.Done()).
// Dropping the Future (never calling Await) silently discards a late
// reply, matching Ask's own cancellation semantics.
func (f *Future) Await(stop <-chan struct{}) (Payload, error) {
	select {
	case res := <-f.ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.value, nil
	case <-stop:
		return nil, ErrAskCanceled
	}
}

// Envelope is the unit the broadcast fabric and mailboxes carry: an
// optional sender, an opaque body, and an optional reply handle for ask
// semantics.
type Envelope struct {
	Sender ActorId
	Body   Payload
	Reply  *ReplyHandle
}

// ControlKind tags which variant of the ControlMessage sum type (flowing
// through the broadcast fabric and mailboxes) a message is. Exactly one of
// ControlMessage's payload fields is meaningful per Kind.
type ControlKind int

const (
	// KindDeliver wraps a user/control Envelope destined for the mailbox.
	KindDeliver ControlKind = iota
	// KindDead reports that the actor with ID has terminated cleanly.
	KindDead
	// KindFaulted reports that the actor with ID panicked or returned an
	// error.
	KindFaulted
	// KindStop asks the receiving actor/subtree to terminate.
	KindStop
	// KindPoisonPill requests an orderly system-wide shutdown.
	KindPoisonPill
)

// ControlMessage is an immutable value; construct one with the constructors
// below (DeliverMessage, DeadMessage, FaultedMessage, StopMessage,
// PoisonPillMessage) rather than building the struct literal directly, so
// that only one field-combination per Kind is ever populated.
type ControlMessage struct {
	Kind     ControlKind
	Envelope Envelope
	ID       ActorId
	Reason   error
}

func DeliverMessage(env Envelope) ControlMessage {
	return ControlMessage{Kind: KindDeliver, Envelope: env}
}

func DeadMessage(id ActorId) ControlMessage {
	return ControlMessage{Kind: KindDead, ID: id}
}

func FaultedMessage(id ActorId, reason error) ControlMessage {
	return ControlMessage{Kind: KindFaulted, ID: id, Reason: reason}
}

func StopMessage() ControlMessage {
	return ControlMessage{Kind: KindStop}
}

func PoisonPillMessage() ControlMessage {
	return ControlMessage{Kind: KindPoisonPill}
}
