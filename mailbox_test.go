package bastion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFOOrder(t *testing.T) {
	mb := NewMailbox(0)
	for i := 0; i < 3; i++ {
		require.NoError(t, mb.Send(DeliverMessage(Envelope{Body: i})))
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg, err := mb.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, msg.Envelope.Body)
	}
}

func TestMailbox_BoundedCapacityFull(t *testing.T) {
	mb := NewMailbox(1)
	require.NoError(t, mb.Send(DeliverMessage(Envelope{Body: 1})))
	err := mb.Send(DeliverMessage(Envelope{Body: 2}))
	assert.ErrorIs(t, err, ErrMailboxFull)
}

func TestMailbox_RecvAfterStopReturnsStopped(t *testing.T) {
	mb := NewMailbox(0)
	require.NoError(t, mb.Send(StopMessage()))

	ctx := context.Background()
	// The Stop itself is delivered once; every Recv after it is ErrStopped.
	msg, err := mb.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindStop, msg.Kind)

	_, err = mb.Recv(ctx)
	assert.ErrorIs(t, err, ErrStopped)

	err = mb.Send(DeliverMessage(Envelope{Body: "late"}))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestMailbox_RecvSuspendsUntilSend(t *testing.T) {
	mb := NewMailbox(0)
	ctx := context.Background()
	result := make(chan ControlMessage, 1)
	go func() {
		msg, err := mb.Recv(ctx)
		require.NoError(t, err)
		result <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-result:
		t.Fatal("Recv returned before any Send")
	default:
	}

	require.NoError(t, mb.Send(DeliverMessage(Envelope{Body: "hi"})))
	select {
	case msg := <-result:
		assert.Equal(t, "hi", msg.Envelope.Body)
	case <-time.After(time.Second):
		t.Fatal("Recv never woke up after Send")
	}
}

func TestMailbox_RecvCancelsOnContext(t *testing.T) {
	mb := NewMailbox(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mb.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMailbox_TerminateForcesStopped(t *testing.T) {
	mb := NewMailbox(0)
	mb.Terminate(ErrStopped)
	err := mb.Send(DeliverMessage(Envelope{Body: 1}))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestMailbox_TerminateCancelsQueuedAsks(t *testing.T) {
	mb := NewMailbox(0)

	reply := newReplyHandle()
	future := newFuture(reply.ch)
	require.NoError(t, mb.Send(DeliverMessage(Envelope{Body: "question", Reply: reply})))

	// a plain tell queued alongside the ask must not trip on the drain.
	require.NoError(t, mb.Send(DeliverMessage(Envelope{Body: "fyi"})))

	mb.Terminate(ErrStopped)

	_, err := future.Await(nil)
	assert.ErrorIs(t, err, ErrAskCanceled)
}
