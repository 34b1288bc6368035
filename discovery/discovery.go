// Package discovery is the service-registry side of resolving a
// discover://<service> address (spec §4.K) to a concrete CRM address
// before any transport.Dial: client.NewDiscoveringProxy queries a
// Discovery backend and picks one instance via a
// ccrpc/loadbalance.Balancer. discover:// is resolved entirely before the
// five transport.Driver schemes ever see an address — it is not a sixth
// transport scheme, just an address-resolution step a client proxy can
// opt into ahead of Dial.
//
// Grounded in the teacher's registry package: same
// Register/Deregister/Discover/Watch contract and the same ServiceInstance
// shape, renamed from "RPC service instance" to "CRM instance" since this
// framework's services are CRMs, not the teacher's Service.Method pairs.
package discovery

// Instance is one running CRM reachable at Addr.
type Instance struct {
	Addr    string // a concrete transport address, e.g. "tcp://10.0.0.1:9000"
	Weight  int
	Version string
}

// Discovery is the interface a backing service registry implements.
type Discovery interface {
	Register(service string, instance Instance, ttlSeconds int64) error
	Deregister(service string, addr string) error
	Discover(service string) ([]Instance, error)
	Watch(service string) <-chan []Instance
}
