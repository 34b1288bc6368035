package loadbalance

import (
	"fmt"
	"math/rand"

	"ccrpc/discovery"
)

// WeightedRandomBalancer selects instances probabilistically based on
// their weight: an instance with weight 10 gets roughly 2x the traffic
// of one with weight 5.
//
// Best for: heterogeneous instances (e.g. some servers have more CPU/memory).
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []discovery.Instance) (*discovery.Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("loadbalance: no instances available")
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += v.Weight
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= instances[i].Weight
		if r < 0 {
			return &instances[i], nil
		}
	}

	return nil, fmt.Errorf("loadbalance: unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
