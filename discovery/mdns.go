package discovery

import (
	"fmt"
	"time"

	"github.com/hashicorp/mdns"
)

// MDNS is both a Registrar and a Browser backed by
// github.com/hashicorp/mdns, zeroconf/Bonjour-style LAN discovery for the
// cluster bootstrap problem: how nodes find each other before the gossip
// oracle has a seed list.
type MDNS struct {
	server *mdns.Server
}

// Advertise publishes svc over mDNS until Close is called.
func (m *MDNS) Advertise(svc Service) error {
	info := []string{fmt.Sprintf("host=%s", svc.Host)}
	zone, err := mdns.NewMDNSService(svc.Name, "_bastion._tcp", "", "", svc.Port, nil, info)
	if err != nil {
		return fmt.Errorf("discovery: building mdns service record: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("discovery: starting mdns responder: %w", err)
	}
	m.server = server
	return nil
}

// Close stops advertising.
func (m *MDNS) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown()
}

// lookupTimeout bounds how long a single Lookup sweep waits for replies.
const lookupTimeout = 2 * time.Second

// Lookup performs one mDNS query sweep for the _bastion._tcp service type
// that Advertise publishes and collects every ServiceEntry that answers
// before lookupTimeout elapses. serviceName does not change what is
// queried; it only labels a returned error.
func (m *MDNS) Lookup(serviceName string) ([]Service, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []Service
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			found = append(found, Service{
				Name: e.Name,
				Host: e.Host,
				Addr: e.AddrV4.String(),
				Port: e.Port,
			})
		}
	}()

	params := mdns.DefaultParams("_bastion._tcp")
	params.Entries = entries
	params.Timeout = lookupTimeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: %s lookup: %w", serviceName, err)
	}
	return found, nil
}

// NewMDNS constructs an unstarted MDNS discovery client.
func NewMDNS() *MDNS { return &MDNS{} }
