package bastion

import (
	"context"
	"sync"
)

// Mailbox is a per-actor FIFO of ControlMessages. A capacity of zero means
// unbounded; a positive capacity makes Send fail with ErrMailboxFull once
// the queue is saturated rather than blocking or dropping silently.
// Send appends under a single mutex, so the subsequence of messages from
// any one sender is observed by Recv in the order they were sent.
type Mailbox struct {
	mu          sync.Mutex
	queue       []ControlMessage
	capacity    int
	notify      chan struct{}
	terminal    bool
	terminalErr error
}

// NewMailbox creates a Mailbox with the given capacity (0 = unbounded).
func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Send enqueues a ControlMessage. It never blocks beyond acquiring the
// local mutex: a full bounded mailbox fails fast with ErrMailboxFull, and a
// mailbox that has already delivered its final Stop fails with ErrStopped.
func (m *Mailbox) Send(msg ControlMessage) error {
	m.mu.Lock()
	if m.terminal {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.capacity > 0 && len(m.queue) >= m.capacity {
		m.mu.Unlock()
		return ErrMailboxFull
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Recv returns the next ControlMessage in FIFO order, suspending the
// caller when the mailbox is empty. Once a KindStop message has been
// delivered, every subsequent call returns ErrStopped immediately rather
// than suspending. Canceling ctx while suspended returns ctx.Err().
func (m *Mailbox) Recv(ctx context.Context) (ControlMessage, error) {
	for {
		m.mu.Lock()
		if m.terminal {
			err := m.terminalErr
			m.mu.Unlock()
			return ControlMessage{}, err
		}
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			if msg.Kind == KindStop {
				m.terminal = true
				m.terminalErr = ErrStopped
			}
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
			continue
		case <-ctx.Done():
			return ControlMessage{}, ctx.Err()
		}
	}
}

// Terminate forces the mailbox into its terminal state immediately, used
// when an actor's incarnation is retired out-of-band (e.g. on exit, or a
// restarted child's stale mailbox) so further Sends observe ErrStopped
// instead of queuing behind a dead incarnation. Any already-queued
// KindDeliver entries carrying an ask's Reply handle are drained and
// canceled here, so an asker whose target dies mid-ask observes
// ErrAskCanceled instead of hanging forever.
func (m *Mailbox) Terminate(err error) {
	m.mu.Lock()
	if !m.terminal {
		m.terminal = true
		m.terminalErr = err
	}
	// Drain even when Recv already turned the mailbox terminal via Stop:
	// deliveries queued behind the Stop still carry reply handles that
	// must not be left waiting.
	pending := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, msg := range pending {
		if msg.Kind == KindDeliver && msg.Envelope.Reply != nil {
			msg.Envelope.Reply.Cancel()
		}
	}

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of currently queued messages, used by system
// introspection (e.g. "zero pending mailboxes" checks in tests).
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
