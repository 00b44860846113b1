package keymapper

import (
	"fmt"
	"testing"

	"github.com/latticekv/cbcore/pkg/types"
)

func buildTable(p, r int) *types.PartitionTable {
	parts := make([]types.Partition, p)
	for i := range parts {
		parts[i] = types.Partition{ID: uint16(i), Primary: i % 4, Replicas: []int{(i + 1) % 4}}
	}
	return &types.PartitionTable{P: p, R: r, Partitions: parts}
}

func TestCRC32MapperPartitionBound(t *testing.T) {
	table := buildTable(1024, 1)
	m := NewCRC32Mapper(table)
	for i := 0; i < 10000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		pid, _, _ := m.Map(key)
		if int(pid) >= table.P {
			t.Fatalf("partition %d out of bound for P=%d", pid, table.P)
		}
	}
}

func TestCRC32MapperPreservesNegativePrimary(t *testing.T) {
	table := buildTable(4, 1)
	table.Partitions[2] = types.Partition{ID: 2, Primary: -1, Replicas: []int{-1}}
	m := NewCRC32Mapper(table)

	// Find a key that actually hashes to partition 2 so we exercise the
	// fallthrough path rather than asserting on an arbitrary key.
	var found bool
	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("probe-%d", i))
		pid, primary, _ := m.Map(key)
		if pid == 2 {
			if primary != -1 {
				t.Fatalf("expected primary -1 to be preserved, got %d", primary)
			}
			found = true
			break
		}
	}
	if !found {
		t.Skip("no probe key hashed to partition 2 in range tried")
	}
}

func TestCRC32MapperDeterministic(t *testing.T) {
	table := buildTable(1024, 1)
	m := NewCRC32Mapper(table)
	key := []byte("deterministic-key")
	p1, n1, r1 := m.Map(key)
	p2, n2, r2 := m.Map(key)
	if p1 != p2 || n1 != n2 || fmt.Sprint(r1) != fmt.Sprint(r2) {
		t.Fatal("Map is not a pure function of (key, table)")
	}
}

func TestKetamaMapperStableUnderNodeAddition(t *testing.T) {
	six := make([]NodeEndpoint, 6)
	for i := range six {
		six[i] = NodeEndpoint{Host: fmt.Sprintf("node%d.example.com", i), Port: 11210}
	}
	seven := append(append([]NodeEndpoint{}, six...), NodeEndpoint{Host: "node6.example.com", Port: 11210})

	ringBefore := BuildRing(six)
	ringAfter := BuildRing(seven)
	mapBefore := NewKetamaMapper(ringBefore)
	mapAfter := NewKetamaMapper(ringAfter)

	const total = 10000
	same := 0
	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("foo-%d", i))
		before := six[mapBefore.Map(key)]
		afterIdx := mapAfter.Map(key)
		var after NodeEndpoint
		if afterIdx >= 0 && afterIdx < len(seven) {
			after = seven[afterIdx]
		}
		if before == after {
			same++
		}
	}

	ratio := float64(same) / float64(total)
	if ratio < 0.95 {
		t.Fatalf("expected >=95%% stability across node addition, got %.2f%%", ratio*100)
	}
}

func TestKetamaMapperEmptyRing(t *testing.T) {
	m := NewKetamaMapper(nil)
	if idx := m.Map([]byte("x")); idx != -1 {
		t.Fatalf("expected -1 for empty ring, got %d", idx)
	}
}
