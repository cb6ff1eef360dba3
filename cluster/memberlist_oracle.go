package cluster

import (
	"fmt"

	"github.com/hashicorp/memberlist"
)

// MemberlistOracle is the production Oracle, backed by
// github.com/hashicorp/memberlist's SWIM-style gossip.
type MemberlistOracle struct {
	ml     *memberlist.Memberlist
	events chan Event
}

// Config tunes a MemberlistOracle.
type Config struct {
	// NodeName is this node's advertised name; empty selects memberlist's
	// own hostname-based default.
	NodeName string
	// BindAddr/BindPort are the gossip transport's listen address.
	BindAddr string
	BindPort int
	// Tags are advertised as this node's metadata, visible to peers via
	// Member.Tags.
	Tags map[string]string
}

// NewMemberlistOracle starts a gossip agent advertising cfg and returns an
// Oracle wrapping it. The returned channel is populated by an
// eventDelegate as memberlist observes join/leave/update notifications.
func NewMemberlistOracle(cfg Config) (*MemberlistOracle, error) {
	mlCfg := memberlist.DefaultLocalConfig()
	if cfg.NodeName != "" {
		mlCfg.Name = cfg.NodeName
	}
	if cfg.BindAddr != "" {
		mlCfg.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort != 0 {
		mlCfg.BindPort = cfg.BindPort
		mlCfg.AdvertisePort = cfg.BindPort
	}

	o := &MemberlistOracle{events: make(chan Event, 64)}
	mlCfg.Delegate = &metaDelegate{tags: cfg.Tags}
	mlCfg.Events = &eventDelegate{out: o.events}

	ml, err := memberlist.Create(mlCfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: starting gossip agent: %w", err)
	}
	o.ml = ml
	return o, nil
}

func (o *MemberlistOracle) LocalNode() Member {
	return toMember(o.ml.LocalNode())
}

func (o *MemberlistOracle) Members() []Member {
	nodes := o.ml.Members()
	out := make([]Member, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toMember(n))
	}
	return out
}

func (o *MemberlistOracle) Join(addrs []string) (int, error) {
	n, err := o.ml.Join(addrs)
	if err != nil {
		return n, fmt.Errorf("cluster: join: %w", err)
	}
	return n, nil
}

func (o *MemberlistOracle) Events() <-chan Event { return o.events }

func (o *MemberlistOracle) Leave() error {
	return o.ml.Leave(leaveTimeout)
}

func (o *MemberlistOracle) Shutdown() error {
	err := o.ml.Shutdown()
	close(o.events)
	return err
}

func toMember(n *memberlist.Node) Member {
	tags := make(map[string]string)
	decodeTags(n.Meta, tags)
	return Member{Name: n.Name, Addr: n.Addr, Port: n.Port, Tags: tags}
}
