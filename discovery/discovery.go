// Package discovery is the service-discovery collaborator: it finds peer
// addresses on the local network and hands them to a cluster.Oracle to
// seed membership. The core runtime uses it only from Distributed, through
// the MDNS implementation, when DistributedConfig.MDNS is set.
package discovery

// Service describes one discovered peer.
type Service struct {
	Name string
	Host string
	Addr string
	Port int
}

// Registrar advertises this process as discoverable.
type Registrar interface {
	// Advertise publishes svc on the local network until Close is called.
	Advertise(svc Service) error
	// Close stops advertising.
	Close() error
}

// Browser finds other advertised instances of a service.
type Browser interface {
	// Lookup performs a bounded discovery sweep and returns every instance
	// found before the sweep's deadline elapses.
	Lookup(serviceName string) ([]Service, error)
}
