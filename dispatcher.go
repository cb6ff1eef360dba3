package bastion

// DispatcherKind selects a ChildrenGroup's routing policy.
type DispatcherKind int

const (
	// DispatcherDefault broadcasts every enqueue to all members.
	DispatcherDefault DispatcherKind = iota
	// DispatcherNamed registers the group under Name so other groups can
	// target BroadcastTarget Group(Name) without knowing member ids; an
	// enqueue still fans out to every member.
	DispatcherNamed
	// DispatcherRoundRobin is like Named, but each dispatch selects the
	// next live member by a monotonic counter modulo the member count.
	DispatcherRoundRobin
)

// Dispatcher describes a ChildrenGroup's routing policy. Construct one with
// DefaultDispatcher, NamedDispatcher or RoundRobinDispatcher rather than a
// struct literal.
type Dispatcher struct {
	Kind DispatcherKind
	Name string
}

// DefaultDispatcher broadcasts to every member; it is the zero value.
func DefaultDispatcher() Dispatcher {
	return Dispatcher{Kind: DispatcherDefault}
}

// NamedDispatcher registers the group under name for discovery by other
// groups, without changing per-message fan-out (still all members).
func NamedDispatcher(name string) Dispatcher {
	return Dispatcher{Kind: DispatcherNamed, Name: name}
}

// RoundRobinDispatcher registers the group under name and routes each
// dispatched message to exactly one member, advancing a monotonic counter.
func RoundRobinDispatcher(name string) Dispatcher {
	return Dispatcher{Kind: DispatcherRoundRobin, Name: name}
}

// BroadcastTargetKind selects how a BroadcastTarget resolves to mailboxes.
type BroadcastTargetKind int

const (
	// TargetAll reaches every currently live actor under the system.
	TargetAll BroadcastTargetKind = iota
	// TargetGroup reaches a ChildrenGroup registered under Name via a
	// Named or RoundRobin dispatcher.
	TargetGroup
	// TargetChildren reaches a single actor addressed by Path.
	TargetChildren
)

// BroadcastTarget is a small DSL: All, Group(name), or Children(path).
// Unknown names or paths resolve to ErrNoSuchPath.
type BroadcastTarget struct {
	Kind BroadcastTargetKind
	Name string
	Path ActorPath
}

func AllTarget() BroadcastTarget { return BroadcastTarget{Kind: TargetAll} }
func GroupTarget(name string) BroadcastTarget {
	return BroadcastTarget{Kind: TargetGroup, Name: name}
}
func ChildrenTarget(path ActorPath) BroadcastTarget {
	return BroadcastTarget{Kind: TargetChildren, Path: path}
}
