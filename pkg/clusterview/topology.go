package clusterview

import "github.com/latticekv/cbcore/pkg/types"

// BucketType selects which Key Mapper variant a Topology's partition
// table should be interpreted with.
type BucketType int

const (
	BucketCouchbase BucketType = iota
	BucketMemcached
)

// NodeSpec is the normalized description of one server-list entry, as
// produced by pkg/configprovider after $HOST rewriting and TLS port
// selection.
type NodeSpec struct {
	Endpoint     string
	Host         string
	Ports        types.Ports
	Capabilities types.Capability
}

// Topology is the normalized form of a parsed configuration document,
// ready to drive a ClusterView.Replace call.
type Topology struct {
	Revision    uint64
	BucketType  BucketType
	Nodes       []NodeSpec
	Table       types.PartitionTable
	ServiceURIs map[types.Service][]string
}
