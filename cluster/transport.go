package cluster

import (
	"fmt"
	"net"
)

// maxPacketSize bounds a single UDP datagram the transport will read; a
// larger remote envelope must be fragmented by the caller, which this
// package does not attempt.
const maxPacketSize = 65507

// Packet is one received datagram, with the address it arrived from so a
// caller can reply.
type Packet struct {
	From *net.UDPAddr
	Data []byte
}

// UDPTransport is a best-effort envelope transport for remote tell
// traffic: it makes no delivery, ordering, or dedup guarantee beyond
// whatever the UDP socket itself provides. Consumers must tolerate
// duplicates and loss.
type UDPTransport struct {
	conn *net.UDPConn
	recv chan Packet
	done chan struct{}
}

// NewUDPTransport binds a UDP socket at addr (host:port, or ":0" for an
// ephemeral port) and starts a background reader.
func NewUDPTransport(addr string) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolving transport addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("cluster: binding transport socket: %w", err)
	}
	t := &UDPTransport{conn: conn, recv: make(chan Packet, 256), done: make(chan struct{})}
	go t.readLoop()
	return t, nil
}

// LocalAddr reports the bound address, useful when addr was ":0".
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			close(t.recv)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case t.recv <- Packet{From: from, Data: data}:
		case <-t.done:
			close(t.recv)
			return
		}
	}
}

// Send fires a single best-effort datagram at addr; a dropped packet is
// never retried.
func (t *UDPTransport) Send(addr string, payload []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("cluster: resolving remote addr: %w", err)
	}
	_, err = t.conn.WriteToUDP(payload, udpAddr)
	return err
}

// Recv returns the channel of inbound packets.
func (t *UDPTransport) Recv() <-chan Packet { return t.recv }

// Close shuts down the socket and its reader goroutine.
func (t *UDPTransport) Close() error {
	close(t.done)
	return t.conn.Close()
}
