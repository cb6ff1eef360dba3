package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPTransport_SendReachesReceiver(t *testing.T) {
	recv, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer recv.Close()

	send, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer send.Close()

	require.NoError(t, send.Send(recv.LocalAddr().String(), []byte("hello")))

	select {
	case pkt := <-recv.Recv():
		assert.Equal(t, []byte("hello"), pkt.Data)
		assert.Equal(t, send.LocalAddr().Port, pkt.From.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived on loopback")
	}
}

func TestUDPTransport_CloseEndsRecvChannel(t *testing.T) {
	tr, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	select {
	case _, ok := <-tr.Recv():
		assert.False(t, ok, "recv channel should be closed after Close")
	case <-time.After(2 * time.Second):
		t.Fatal("recv channel never closed")
	}
}
