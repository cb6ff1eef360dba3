// Package cluster is the opaque membership-oracle collaborator: the core
// runtime only ever holds an Oracle interface, never hashicorp/memberlist
// itself.
package cluster

import "net"

// Member is one node the oracle currently believes is alive.
type Member struct {
	Name string
	Addr net.IP
	Port uint16
	Tags map[string]string
}

// EventType classifies a membership change.
type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventUpdate
)

// Event is delivered on an Oracle's Events channel whenever the membership
// view changes; delivery is best-effort, same as the underlying gossip
// protocol, so a consumer must treat a missed event as eventually corrected
// by the next full Members() snapshot rather than fatal.
type Event struct {
	Type   EventType
	Member Member
}

// Oracle is the narrow membership-tracking surface the core runtime's
// DistributedContext is written against. A swappable in-memory
// implementation can stand in for tests; NewMemberlistOracle is the
// production one.
type Oracle interface {
	// LocalNode reports this process's own advertised Member.
	LocalNode() Member
	// Members returns a snapshot of every node currently believed alive,
	// including the local node.
	Members() []Member
	// Join attempts to contact the given existing-cluster addresses and
	// merge into their view; it succeeds if at least one contact responds.
	Join(addrs []string) (int, error)
	// Events returns a channel of membership changes observed from this
	// point forward; it is closed when Shutdown returns.
	Events() <-chan Event
	// Leave gracefully announces departure to the rest of the cluster.
	Leave() error
	// Shutdown tears down the oracle's background goroutines immediately,
	// without announcing departure.
	Shutdown() error
}
