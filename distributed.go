package bastion

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/lguibr/bastion-go/cluster"
	"github.com/lguibr/bastion-go/discovery"
)

// DistributedConfig tunes the cluster membership oracle and remote
// transport a Distributed actor runs against.
type DistributedConfig struct {
	// NodeName advertises this process's identity to the rest of the
	// cluster; it is the hostKey other nodes pass to TellRemote.
	NodeName string
	// BindAddr/BindPort are the gossip transport's listen address.
	BindAddr string
	BindPort int
	// TransportAddr is the UDP envelope transport's listen address; empty
	// selects an ephemeral port on BindAddr.
	TransportAddr string
	// Seeds are existing cluster member addresses to join on startup.
	Seeds []string
	// MDNS advertises this node over multicast DNS and, when Seeds is
	// empty, browses the local network for peers to join instead.
	MDNS bool
	// Tags are advertised gossip metadata, merged with the transport's own
	// advertised address under the "transport_addr" key.
	Tags map[string]string
}

func (c DistributedConfig) withDefaults() DistributedConfig {
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0"
	}
	if c.TransportAddr == "" {
		c.TransportAddr = c.BindAddr + ":0"
	}
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
	return c
}

// DistributedContext augments Context with the cluster-aware surface a
// Distributed actor sees: peer membership, a best-effort remote tell, and
// a feed of join/leave events.
type DistributedContext interface {
	Context
	// ClusterMembers returns a snapshot of every node currently believed
	// alive, including the local one.
	ClusterMembers() []cluster.Member
	// TellRemote best-effort delivers body to the node advertising
	// hostKey as its NodeName; it makes no delivery or ordering guarantee,
	// same as local UDP. Payload types crossing the wire must be
	// registered with encoding/gob by both sides.
	TellRemote(hostKey string, body Payload) error
	// ClusterEvents returns the channel of membership changes observed by
	// the underlying oracle.
	ClusterEvents() <-chan cluster.Event
}

// DistributedBehavior is the async behavior a Distributed actor runs,
// mirroring Recipe but over a cluster-aware Context.
type DistributedBehavior func(ctx DistributedContext) error

const transportAddrTag = "transport_addr"

type distributedContext struct {
	*childContext
	oracle    cluster.Oracle
	transport *cluster.UDPTransport
}

func (d *distributedContext) ClusterMembers() []cluster.Member { return d.oracle.Members() }

func (d *distributedContext) ClusterEvents() <-chan cluster.Event { return d.oracle.Events() }

func (d *distributedContext) TellRemote(hostKey string, body Payload) error {
	for _, m := range d.oracle.Members() {
		if m.Name != hostKey {
			continue
		}
		addr, ok := m.Tags[transportAddrTag]
		if !ok {
			return fmt.Errorf("bastion: member %q advertises no transport address", hostKey)
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&body); err != nil {
			return fmt.Errorf("bastion: encoding remote envelope: %w", err)
		}
		return d.transport.Send(addr, buf.Bytes())
	}
	return ErrNoSuchPath
}

// remoteRecvLoop decodes inbound UDP packets and delivers them into the
// Distributed actor's own mailbox as ordinary Envelopes, so its recipe
// observes remote and local traffic through the same Recv call. The loop
// is per-incarnation: it ends when done closes, so a restarted actor's
// fresh loop is the only one draining the shared transport.
func (d *distributedContext) remoteRecvLoop(done <-chan struct{}) {
	for {
		select {
		case pkt, ok := <-d.transport.Recv():
			if !ok {
				return
			}
			var body Payload
			if err := gob.NewDecoder(bytes.NewReader(pkt.Data)).Decode(&body); err != nil {
				log.Warn().Str("from", pkt.From.String()).Err(err).Msg("discarding malformed remote envelope")
				continue
			}
			_ = d.self.mailbox.Send(DeliverMessage(Envelope{Body: body}))
		case <-done:
			return
		}
	}
}

// Distributed attaches behavior as a single actor whose Context is
// augmented with cluster membership and a best-effort remote tell,
// backed by a memberlist gossip oracle and a UDP envelope transport.
// It returns once the transport and oracle are up and the actor's
// supervisor has been handed to the façade; the actor itself is launched
// by the running System (after Start, if Start has not run yet). The
// actor's own lifecycle (fault/restart/stop) is otherwise identical to a
// single-member ChildrenGroup under a dedicated supervisor.
func Distributed(cfg DistributedConfig, behavior DistributedBehavior) error {
	cfg = cfg.withDefaults()

	Init()

	transport, err := cluster.NewUDPTransport(cfg.TransportAddr)
	if err != nil {
		return fmt.Errorf("bastion: starting remote transport: %w", err)
	}

	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	tags[transportAddrTag] = transport.LocalAddr().String()

	oracle, err := cluster.NewMemberlistOracle(cluster.Config{
		NodeName: cfg.NodeName,
		BindAddr: cfg.BindAddr,
		BindPort: cfg.BindPort,
		Tags:     tags,
	})
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("bastion: starting membership oracle: %w", err)
	}

	seeds := cfg.Seeds
	var registrar *discovery.MDNS
	if cfg.MDNS {
		mdns := discovery.NewMDNS()
		registrar = mdns
		if err := mdns.Advertise(discovery.Service{Name: cfg.NodeName, Host: cfg.NodeName, Port: cfg.BindPort}); err != nil {
			log.Warn().Err(err).Msg("distributed: mdns advertisement failed, node is not discoverable")
		}
		if len(seeds) == 0 {
			found, err := mdns.Lookup("bastion")
			if err != nil {
				log.Warn().Err(err).Msg("distributed: mdns sweep failed, starting without discovered seeds")
			}
			for _, svc := range found {
				seeds = append(seeds, net.JoinHostPort(svc.Addr, strconv.Itoa(svc.Port)))
			}
		}
	}

	if len(seeds) > 0 {
		if _, err := oracle.Join(seeds); err != nil {
			log.Warn().Err(err).Msg("distributed: no seed responded, starting as a singleton cluster")
		}
	}

	recipe := func(ctx Context) error {
		cc := ctx.(*childContext)
		dctx := &distributedContext{childContext: cc, oracle: oracle, transport: transport}
		done := make(chan struct{})
		defer close(done)
		go dctx.remoteRecvLoop(done)

		err := behavior(dctx)
		if err == nil || err == ErrStopped {
			// Clean stop: the cluster footprint goes away with the actor.
			// A fault keeps the oracle and transport alive so the
			// restarted incarnation rejoins nothing and loses no peers.
			_ = oracle.Leave()
			_ = oracle.Shutdown()
			_ = transport.Close()
			if registrar != nil {
				_ = registrar.Close()
			}
		}
		return err
	}

	group := NewGroupBuilder(cfg.NodeName).WithExec(recipe).WithRedundancy(1)
	sup := NewSupervisorBuilder(fmt.Sprintf("distributed-%s", cfg.NodeName)).WithChildren(group)
	Supervisor(sup)
	return nil
}
