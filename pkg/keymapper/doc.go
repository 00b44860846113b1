/*
Package keymapper implements spec §4.1: a pure function from (key,
PartitionTable) to a partition id and the node indices that own it.

Two variants are provided, selected per bucket type:

  - CRC32Mapper for Couchbase (hash-partitioned) buckets.
  - KetamaMapper for Memcached (consistent-hash) buckets.

Neither variant resolves "no owner" or "owner down" — that fallback is
the caller's (pkg/bucket's) responsibility per spec §4.1 and the Open
Question resolution in DESIGN.md: the mapper returns indices verbatim,
including -1.
*/
package keymapper
