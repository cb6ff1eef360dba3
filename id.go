package bastion

import "github.com/google/uuid"

// ActorId is a process-unique opaque identifier for a single actor
// incarnation. Once an id is retired it is never reused; a restarted actor
// always receives a fresh ActorId even though it keeps the same ActorPath.
type ActorId uuid.UUID

// NewActorId mints a fresh random ActorId.
func NewActorId() ActorId {
	return ActorId(uuid.New())
}

func (id ActorId) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value, used as a sentinel for "no
// sender" on an Envelope.
func (id ActorId) IsZero() bool {
	return id == ActorId{}
}
