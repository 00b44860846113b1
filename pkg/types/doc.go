/*
Package types defines the core data structures shared across the router:
topology (nodes, partitions), wire-level operations, and the result shape
returned to callers.

# Architecture

	┌─────────────────────────── types ───────────────────────────┐
	│                                                                │
	│  Topology              Wire operations          Results       │
	│  ┌──────────┐          ┌────────────────┐      ┌───────────┐ │
	│  │ Node     │          │ OperationFrame │      │ Result    │ │
	│  │ Partition│          │ OperationHandle│      │ Status    │ │
	│  │ Service  │          └────────────────┘      └───────────┘ │
	│  │ URI bag  │                                                 │
	│  └──────────┘                                                 │
	└────────────────────────────────────────────────────────────┘

These types are intentionally dumb: they carry state, not behavior. The
packages that own a given entity expose the operations that mutate it —
clusterview owns Node and PartitionTable lifecycle. OperationHandle
carries its own completion channel (Complete, Wait, Done); no other
package in the module uses it. A Node is shared between the ClusterView
and the per-node resources built for it; nothing here enforces that
invariant, the owning packages do.

# Thread safety

Value types (Partition, Result) are copied freely. Pointer types shared
across goroutines (Node) document how their mutable fields are accessed
— see the type comments.
*/
package types
