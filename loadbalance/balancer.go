// Package loadbalance provides the selection strategies the client's
// discover:// resolution uses to pick one CRM instance out of several
// candidates.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless CRMs, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  stateful CRMs where cache/affinity matters
package loadbalance

import "ccrpc/discovery"

// Balancer picks one instance from the set discovery.Discover returned.
// Pick is called on every resolution and must be goroutine-safe.
type Balancer interface {
	Pick(instances []discovery.Instance) (*discovery.Instance, error)
	Name() string
}
