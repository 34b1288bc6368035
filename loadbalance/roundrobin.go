package loadbalance

import (
	"fmt"
	"sync/atomic"

	"ccrpc/discovery"
)

// RoundRobinBalancer distributes resolutions evenly across all instances
// in order, using an atomic counter for lock-free, goroutine-safe
// operation.
//
// Best for: stateless CRMs where every instance has similar capacity.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(instances []discovery.Instance) (*discovery.Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("loadbalance: no instances available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
