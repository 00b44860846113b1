package keymapper

import (
	"hash/crc32"

	"github.com/latticekv/cbcore/pkg/types"
)

// crc32Table is the classic IEEE polynomial (0xEDB88320), matching the
// server's partitioning hash.
var crc32Table = crc32.MakeTable(crc32.IEEE)

// CRC32Mapper implements the Couchbase-bucket partitioning algorithm
// (spec §4.1): partition = (crc32(key) & 0xffff) & (P-1), using the low 16
// bits of the CRC before masking.
type CRC32Mapper struct {
	table *types.PartitionTable
}

// NewCRC32Mapper builds a mapper bound to the given partition table.
func NewCRC32Mapper(table *types.PartitionTable) *CRC32Mapper {
	return &CRC32Mapper{table: table}
}

// Partition returns the low-16-bit-masked CRC32 partition id for key.
func Partition(key []byte, numPartitions int) uint16 {
	sum := crc32.Checksum(key, crc32Table)
	low16 := sum & 0xffff
	return uint16(low16) & uint16(numPartitions-1)
}

// Map implements the Key Mapper contract: map(key) -> (partition, primary,
// replicas). Returned indices are passed through unmodified, including -1.
func (m *CRC32Mapper) Map(key []byte) (partitionID uint16, primary int, replicas []int) {
	if m.table == nil || m.table.P == 0 {
		return 0, -1, nil
	}
	partitionID = Partition(key, m.table.P)
	p := m.table.Partitions[partitionID]
	return partitionID, p.Primary, p.Replicas
}

// Lookup adapts Map to the types.Mapper interface used by clusterview.
func (m *CRC32Mapper) Lookup(key []byte) types.Route {
	pid, primary, replicas := m.Map(key)
	return types.Route{PartitionID: pid, HasPartition: true, Primary: primary, Replicas: replicas}
}
