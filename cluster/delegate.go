package cluster

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/memberlist"
)

// leaveTimeout bounds how long Leave waits for the departure broadcast to
// propagate before giving up.
const leaveTimeout = 5 * time.Second

// metaDelegate advertises a node's Tags as its memberlist metadata; it
// implements no gossip-payload behavior beyond that, since the cluster
// package only needs membership, not a custom broadcast queue.
type metaDelegate struct {
	tags map[string]string
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	buf, err := json.Marshal(d.tags)
	if err != nil || len(buf) > limit {
		return []byte("{}")
	}
	return buf
}

func (d *metaDelegate) NotifyMsg([]byte)                           {}
func (d *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *metaDelegate) LocalState(join bool) []byte                { return nil }
func (d *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

// eventDelegate forwards memberlist's join/leave/update notifications onto
// an Event channel; sends are dropped rather than blocked if the consumer
// has fallen behind, matching the best-effort delivery contract of Oracle.
type eventDelegate struct {
	out chan<- Event
}

func (e *eventDelegate) NotifyJoin(n *memberlist.Node)   { e.emit(EventJoin, n) }
func (e *eventDelegate) NotifyLeave(n *memberlist.Node)  { e.emit(EventLeave, n) }
func (e *eventDelegate) NotifyUpdate(n *memberlist.Node) { e.emit(EventUpdate, n) }

func (e *eventDelegate) emit(t EventType, n *memberlist.Node) {
	select {
	case e.out <- Event{Type: t, Member: toMember(n)}:
	default:
	}
}

func decodeTags(meta []byte, into map[string]string) {
	if len(meta) == 0 {
		return
	}
	_ = json.Unmarshal(meta, &into)
}
