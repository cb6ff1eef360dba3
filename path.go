package bastion

import "fmt"

// NodeType selects whether an ActorPath targets the local node or a remote
// node reachable over the cluster transport.
type NodeType int

const (
	// Local addresses an actor on this process.
	Local NodeType = iota
	// Remote addresses an actor on another node in the cluster, identified
	// by its advertised address.
	Remote
)

// Scope partitions the actor namespace into the four top-level segments
// of the bastion:// path scheme.
type Scope int

const (
	// ScopeUser addresses user-defined actors.
	ScopeUser Scope = iota
	// ScopeSystem addresses built-in top-level actors (logging, config,
	// heartbeat, ...).
	ScopeSystem
	// ScopeDeadLetter is the sink for undeliverable messages.
	ScopeDeadLetter
	// ScopeTemporary addresses short-lived actors or runtime-spawned
	// subtrees.
	ScopeTemporary
)

func (s Scope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeSystem:
		return "system"
	case ScopeDeadLetter:
		return "dead_letter"
	case ScopeTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// ActorPath is a bit-stable, immutable address for an actor. Values are
// built with the With* replacement methods, each of which returns a new
// ActorPath; a path is never mutated in place once observed. Equality is
// structural (the tuple), independent of display form.
type ActorPath struct {
	nodeName   string
	nodeType   NodeType
	remoteAddr string // only meaningful when nodeType == Remote
	scope      Scope
	id         string
}

// DefaultPath returns the canonical starting point for path construction:
// node_name="node", Local, System scope, and a fresh random id.
func DefaultPath() ActorPath {
	return ActorPath{
		nodeName: "node",
		nodeType: Local,
		scope:    ScopeSystem,
		id:       NewActorId().String(),
	}
}

// WithNodeName replaces the node name component.
func (p ActorPath) WithNodeName(name string) ActorPath {
	p.nodeName = name
	return p
}

// WithLocal marks the path as addressing the local node.
func (p ActorPath) WithLocal() ActorPath {
	p.nodeType = Local
	p.remoteAddr = ""
	return p
}

// WithRemote marks the path as addressing a remote node at addr (host:port
// form, as produced by net.JoinHostPort).
func (p ActorPath) WithRemote(addr string) ActorPath {
	p.nodeType = Remote
	p.remoteAddr = addr
	return p
}

// WithScope replaces the scope component.
func (p ActorPath) WithScope(scope Scope) ActorPath {
	p.scope = scope
	return p
}

// WithName replaces the trailing actor id/name component.
func (p ActorPath) WithName(name string) ActorPath {
	p.id = name
	return p
}

// NodeName returns the node name component.
func (p ActorPath) NodeName() string { return p.nodeName }

// NodeType returns whether the path is Local or Remote.
func (p ActorPath) NodeType() NodeType { return p.nodeType }

// Scope returns the scope component.
func (p ActorPath) Scope() Scope { return p.scope }

// Name returns the trailing id/name component.
func (p ActorPath) Name() string { return p.id }

// String renders the canonical bastion://<node_name>[@addr]/<scope>/<id>
// form. This is the only serialization the core ever produces; parsing a
// string back into an ActorPath is not supported.
func (p ActorPath) String() string {
	if p.nodeType == Remote && p.remoteAddr != "" {
		return fmt.Sprintf("bastion://%s@%s/%s/%s", p.nodeName, p.remoteAddr, p.scope, p.id)
	}
	return fmt.Sprintf("bastion://%s/%s/%s", p.nodeName, p.scope, p.id)
}

// Equal reports structural equality of the tuple (node_name, node_type,
// remote_addr, scope, id), ignoring display form.
func (p ActorPath) Equal(other ActorPath) bool {
	return p.nodeName == other.nodeName &&
		p.nodeType == other.nodeType &&
		p.remoteAddr == other.remoteAddr &&
		p.scope == other.scope &&
		p.id == other.id
}
