package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"ccrpc/discovery"
)

// ConsistentHashBalancer maps keys to instances using a hash ring. The
// same key always maps to the same instance until the ring changes,
// giving cache affinity for stateful CRMs.
//
// Virtual nodes: each real instance gets N virtual nodes on the ring.
// Without them, a small instance count can cluster unevenly; 100 virtual
// nodes per instance keeps the distribution close to uniform.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*discovery.Instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes
// per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*discovery.Instance),
	}
}

// Add places an instance onto the ring with its virtual nodes, each
// hashed from "{addr}#{i}" to spread them evenly.
func (b *ConsistentHashBalancer) Add(instance *discovery.Instance) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", instance.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick finds the instance responsible for key: hash it, then
// binary-search for the first node at or past that hash on the ring,
// wrapping around to the first node if the hash is past every node.
//
// Pick takes a string key, not a candidate list, because consistent
// hashing is key-based — it does not implement the Balancer interface.
func (b *ConsistentHashBalancer) Pick(key string) (*discovery.Instance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("loadbalance: hash ring is empty")
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
