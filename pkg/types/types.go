package types

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Service identifies one of the cluster's addressable HTTP services.
type Service string

const (
	ServiceViews      Service = "views"
	ServiceQuery      Service = "query"
	ServiceSearch     Service = "fts"
	ServiceAnalytics  Service = "analytics"
	ServiceManagement Service = "mgmt"
)

// Capability is a bit in a Node's capability mask.
type Capability uint16

const (
	CapData Capability = 1 << iota
	CapView
	CapQuery
	CapIndex
	CapSearch
	CapAnalytics
	CapManagement
)

// Has reports whether the mask contains all bits in want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Ports holds the service ports a Node advertises. A zero value means the
// node does not run that service.
type Ports struct {
	Data          int
	DataTLS       int
	Views         int
	ViewsTLS      int
	Query         int
	QueryTLS      int
	Search        int
	SearchTLS     int
	Analytics     int
	AnalyticsTLS  int
	Management    int
	ManagementTLS int
}

// Node is one cluster member. The ClusterView is the sole strong owner;
// everything else (OperationHandle, pools) holds a reference obtained
// through the view and re-resolves it after a reconfiguration rather than
// caching it indefinitely.
//
// Down is mutated by the IO service's failure counter and read without
// the ClusterView's lock on the hot path of a single operation, so it is
// atomic. Revision is a plain field that ClusterView.Replace sets when it
// creates or reuses the Node.
type Node struct {
	Endpoint     string // host:port identity, immutable for the Node's lifetime
	Host         string
	Ports        Ports
	Capabilities Capability
	Revision     uint64

	down atomic.Bool
}

// NewNode constructs a Node for the given endpoint.
func NewNode(endpoint, host string, ports Ports, caps Capability) *Node {
	return &Node{Endpoint: endpoint, Host: host, Ports: ports, Capabilities: caps}
}

// Down reports whether the node is currently quarantined.
func (n *Node) Down() bool { return n.down.Load() }

// SetDown marks the node down or live.
func (n *Node) SetDown(down bool) { n.down.Store(down) }

// Partition (vBucket) is a value type derived from a PartitionTable.
// Primary == -1 is legal and means "no current owner".
type Partition struct {
	ID       uint16
	Primary  int
	Replicas []int
}

// PartitionTable is fixed per topology revision and swapped wholesale by
// a ClusterView.Replace call. P is a power of two; R is the replica count.
type PartitionTable struct {
	P          int
	R          int
	Partitions []Partition // len == P
	// Ring is populated only for ketama (Memcached-bucket) mappers.
	Ring []RingPoint
}

// RingPoint is one point on a ketama consistent-hash ring.
type RingPoint struct {
	Hash      uint32
	NodeIndex int
}

// FailureCountingUri is a URI plus its rolling health state, used by the
// HTTP dispatcher's per-service bags.
type FailureCountingUri struct {
	URI         string
	Failures    int
	LastFailure time.Time
}

// Healthy reports whether the URI should be considered for selection.
func (u *FailureCountingUri) Healthy(threshold int, rehab time.Duration) bool {
	if u.Failures < threshold {
		return true
	}
	return !u.LastFailure.IsZero() && time.Since(u.LastFailure) > rehab
}

// RecordSuccess resets the failure counter.
func (u *FailureCountingUri) RecordSuccess() {
	u.Failures = 0
	u.LastFailure = time.Time{}
}

// RecordFailure increments the failure counter and stamps the time.
func (u *FailureCountingUri) RecordFailure(now time.Time) {
	u.Failures++
	u.LastFailure = now
}

// Status is the classified outcome of a key/value operation, derived from
// the wire protocol's 2-byte status field (see memdproto.Status) plus
// client-local classifications (transport, routing, client errors) that
// never appear on the wire.
type Status int

const (
	StatusSuccess Status = iota
	StatusKeyNotFound
	StatusKeyExists
	StatusValueTooLarge
	StatusNotStored
	StatusAuthError
	StatusNotMyVBucket
	StatusBusy
	StatusTemporaryFailure
	StatusUnknownCommand
	StatusOutOfMemory
	StatusInternalError
	StatusErrorMap // server status not in the fixed enum; Result.ErrorMapText is not filled in
	StatusTransportError
	StatusOperationTimeout
	StatusNoAvailableNode
	StatusConnectionPoolExhausted
	StatusCancelled
	StatusClientError
)

// Result is the user-visible outcome of every operation (spec §7).
type Result struct {
	Success      bool
	Status       Status
	CAS          uint64
	Value        []byte
	Err          error
	ErrorMapText string
	Node         string // endpoint that served (or attempted) the operation
}

// Route is the outcome of a key-mapper lookup, normalized across the
// CRC32 (partitioned) and ketama (consistent-hash) variants so
// clusterview and bucket can consume either without a type switch.
// HasPartition is false for ketama, whose scheme has no partition id or
// replicas.
type Route struct {
	PartitionID  uint16
	HasPartition bool
	Primary      int
	Replicas     []int
}

// Mapper is the Key Mapper contract (spec §4.1): a pure function of
// (key, table-at-construction-time).
type Mapper interface {
	Lookup(key []byte) Route
}

// OperationFrame is the decoded form of a single request or response
// (spec §4.4). Extras/Key/Value are views into the frame's body.
type OperationFrame struct {
	Magic    byte
	Opcode   byte
	Opaque   uint32
	CAS      uint64
	VBucket  uint16 // request: partition id; response: reused as status
	Datatype byte
	Extras   []byte
	Key      []byte
	Value    []byte
}

// OperationHandle tracks one in-flight operation end to end.
type OperationHandle struct {
	CorrelationID string // debug-facing UUID, distinct from the wire Opaque
	Opaque        uint32
	Opcode        byte
	Key           []byte
	VBucket       uint16
	Start         time.Time
	Deadline      time.Time
	TargetNode    string
	RetryCount    int

	done chan Result
}

// NewOperationHandle creates a handle with its completion channel ready.
func NewOperationHandle(opcode byte, key []byte, vbucket uint16, deadline time.Time) *OperationHandle {
	return &OperationHandle{
		CorrelationID: uuid.New().String(),
		Opcode:        opcode,
		Key:           key,
		VBucket:       vbucket,
		Start:         time.Now(),
		Deadline:      deadline,
		done:          make(chan Result, 1),
	}
}

// Complete delivers the terminal result. Safe to call exactly once.
func (h *OperationHandle) Complete(r Result) {
	select {
	case h.done <- r:
	default:
	}
}

// Wait blocks until Complete is called.
func (h *OperationHandle) Wait() Result {
	return <-h.done
}

// Done exposes the completion channel for select-based waiting, e.g. to
// race a result against ctx.Done().
func (h *OperationHandle) Done() <-chan Result { return h.done }
