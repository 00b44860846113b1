package clusterview

import "github.com/latticekv/cbcore/pkg/types"

// NodeResources is whatever per-node infrastructure (connection pool, IO
// service) the owner of a ClusterView wants kept alive across
// reconfigurations that don't touch that node's endpoint. Dispose is
// called exactly once, after the node's endpoint is confirmed absent
// from a newer topology and the swap to that topology is visible.
type NodeResources interface {
	Dispose()
}

// ResourceFactory builds the NodeResources for a newly-discovered
// endpoint. It is supplied once, at ClusterView construction, by the
// component wiring pools and IO services to topology (pkg/bucket).
type ResourceFactory func(node *types.Node) NodeResources

type nodeEntry struct {
	node *types.Node
	res  NodeResources
}

// View is one immutable topology snapshot. Readers obtained through
// ClusterView never observe a partially-built View: it is only ever
// published by Replace after every field is populated.
type View struct {
	Revision    uint64
	Nodes       []*types.Node
	Table       *types.PartitionTable
	Mapper      types.Mapper
	ServiceURIs map[types.Service][]*types.FailureCountingUri

	entries map[string]*nodeEntry
}

func emptyView() *View {
	return &View{
		entries:     make(map[string]*nodeEntry),
		ServiceURIs: make(map[types.Service][]*types.FailureCountingUri),
	}
}

// resourcesFor returns the NodeResources registered for endpoint, or nil
// if the view has none (no factory configured, or unknown endpoint).
func (v *View) resourcesFor(endpoint string) NodeResources {
	e, ok := v.entries[endpoint]
	if !ok {
		return nil
	}
	return e.res
}
