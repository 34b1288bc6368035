package client

import (
	"fmt"

	"ccrpc/config"
	"ccrpc/discovery"
	"ccrpc/loadbalance"
	"ccrpc/transport"
	"ccrpc/typeregistry"
)

// serviceResolver implements resolver by querying a discovery.Discovery
// backend for service and picking one instance via a
// loadbalance.Balancer on every resolve — so a discover:// proxy's pool
// can spread its connections across instances instead of pinning to one.
type serviceResolver struct {
	service   string
	discovery discovery.Discovery
	balancer  loadbalance.Balancer
}

func (r *serviceResolver) resolve() (string, error) {
	instances, err := r.discovery.Discover(r.service)
	if err != nil {
		return "", fmt.Errorf("discovering %q: %w", r.service, err)
	}
	if len(instances) == 0 {
		return "", fmt.Errorf("no instances registered for %q", r.service)
	}
	inst, err := r.balancer.Pick(instances)
	if err != nil {
		return "", fmt.Errorf("selecting instance for %q: %w", r.service, err)
	}
	return inst.Addr, nil
}

// NewDiscoveringProxy builds a Proxy whose address is resolved from a
// service registry on every new pooled connection, instead of a fixed
// transport address. Use this when the caller was handed a
// discover://<service> address (spec §4.K) rather than a concrete one.
func NewDiscoveringProxy(service string, descriptor typeregistry.Descriptor, reg *typeregistry.Registry, disc discovery.Discovery, balancer loadbalance.Balancer) (*Proxy, error) {
	cfg := config.Load()
	p := &Proxy{
		address:    "discover://" + service,
		descriptor: descriptor,
		registry:   reg,
		cfg:        cfg,
		resolver:   &serviceResolver{service: service, discovery: disc, balancer: balancer},
	}
	p.pool = transport.NewPool(p.address, cfg.PoolSize, p.dialAndHandshake)
	return p, nil
}
