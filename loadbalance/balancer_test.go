package loadbalance

import (
	"fmt"
	"testing"

	"ccrpc/discovery"

	"github.com/stretchr/testify/require"
)

var testInstances = []discovery.Instance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		results[i] = inst.Addr
	}

	inst, err := b.Pick(testInstances)
	require.NoError(t, err)
	require.Equal(t, results[0], inst.Addr, "expect wrap around to first instance")
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick([]discovery.Instance{})
	require.Error(t, err)
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	require.InDelta(t, 2.0, ratio, 0.5, "weight ratio :8001/:8002 should be ~2.0, got %.2f", ratio)
}

func TestWeightedRandomEmpty(t *testing.T) {
	b := &WeightedRandomBalancer{}
	_, err := b.Pick([]discovery.Instance{})
	require.Error(t, err)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testInstances {
		b.Add(&testInstances[i])
	}

	inst1, err := b.Pick("user-123")
	require.NoError(t, err)
	inst2, err := b.Pick("user-123")
	require.NoError(t, err)
	require.Equal(t, inst1.Addr, inst2.Addr, "same key must map to the same instance")

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		seen[inst.Addr] = true
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	require.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashEmptyRing(t *testing.T) {
	b := NewConsistentHashBalancer()
	_, err := b.Pick("anything")
	require.Error(t, err)
}
