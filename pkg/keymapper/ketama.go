package keymapper

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/latticekv/cbcore/pkg/types"
)

// Each live node contributes 160 virtual ring points (spec §4.1): 40
// replica iterations, 4 points hashed per iteration (40*4 = 160).
const hashRepeatsPerReplica = 4
const replicaIterations = 40

// NodeEndpoint is the minimal shape KetamaMapper needs from a node to
// build ring points; pkg/configprovider builds one per node when it
// assembles a ring.
type NodeEndpoint struct {
	Host string
	Port int
}

// BuildRing constructs a sorted ketama ring for the given live nodes.
// Each replica 0..39 hashes MD5("<host>:<port>-<replica>") once and
// contributes 4 points, one per consecutive 4-byte slice of the digest
// read little-endian (matching the historical libmemcached/ketama point
// count of 160/node).
func BuildRing(nodes []NodeEndpoint) []types.RingPoint {
	var ring []types.RingPoint
	for nodeIdx, n := range nodes {
		for replica := 0; replica < replicaIterations; replica++ {
			input := fmt.Sprintf("%s:%d-%d", n.Host, n.Port, replica)
			digest := md5.Sum([]byte(input))
			for r := 0; r < hashRepeatsPerReplica; r++ {
				h := binary.LittleEndian.Uint32(digest[r*4 : r*4+4])
				ring = append(ring, types.RingPoint{Hash: h, NodeIndex: nodeIdx})
			}
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].Hash < ring[j].Hash })
	return ring
}

// KetamaMapper implements the Memcached-bucket consistent-hash algorithm
// (spec §4.1). There are no replicas in this variant.
type KetamaMapper struct {
	ring []types.RingPoint
}

// NewKetamaMapper builds a mapper over a precomputed ring (see BuildRing).
func NewKetamaMapper(ring []types.RingPoint) *KetamaMapper {
	return &KetamaMapper{ring: ring}
}

// keyHash hashes the key the way the ring lookup expects: the first 4
// bytes (little-endian) of MD5(key).
func keyHash(key []byte) uint32 {
	digest := md5.Sum(key)
	return binary.LittleEndian.Uint32(digest[0:4])
}

// Map finds the first ring point >= hash(key), wrapping to the first
// point if the hash exceeds every point on the ring. There is no
// partition id in the Memcached scheme; callers needing one may treat the
// ring index as an opaque identifier, but the router never does.
func (m *KetamaMapper) Map(key []byte) (nodeIndex int) {
	if len(m.ring) == 0 {
		return -1
	}
	h := keyHash(key)
	idx := sort.Search(len(m.ring), func(i int) bool { return m.ring[i].Hash >= h })
	if idx == len(m.ring) {
		idx = 0
	}
	return m.ring[idx].NodeIndex
}

// Lookup adapts Map to the types.Mapper interface used by clusterview.
// Ketama has no partition concept or replicas.
func (m *KetamaMapper) Lookup(key []byte) types.Route {
	return types.Route{HasPartition: false, Primary: m.Map(key)}
}
