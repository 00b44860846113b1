package clusterview

import (
	"math/rand"
	"sync"

	"github.com/latticekv/cbcore/pkg/keymapper"
	"github.com/latticekv/cbcore/pkg/types"
)

// ClusterView is the read-mostly topology snapshot described in spec
// §4.2. The zero value is not usable; construct with New.
type ClusterView struct {
	mu      sync.RWMutex
	current *View
	factory ResourceFactory

	disposeCh chan []NodeResources
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates an empty ClusterView (revision 0, no nodes) ready to
// receive its first Replace call. factory may be nil if the caller does
// not need per-node resources tracked (e.g. in tests that only exercise
// routing).
func New(factory ResourceFactory) *ClusterView {
	cv := &ClusterView{
		current:   emptyView(),
		factory:   factory,
		disposeCh: make(chan []NodeResources, 32),
		stopCh:    make(chan struct{}),
	}
	go cv.disposeLoop()
	return cv
}

// Close stops the background disposer. Any still-queued batches are
// disposed synchronously before returning.
func (cv *ClusterView) Close() {
	cv.stopOnce.Do(func() { close(cv.stopCh) })
	for {
		select {
		case batch := <-cv.disposeCh:
			disposeAll(batch)
		default:
			return
		}
	}
}

func (cv *ClusterView) disposeLoop() {
	for {
		select {
		case batch := <-cv.disposeCh:
			disposeAll(batch)
		case <-cv.stopCh:
			return
		}
	}
}

func disposeAll(batch []NodeResources) {
	for _, r := range batch {
		if r != nil {
			r.Dispose()
		}
	}
}

func (cv *ClusterView) snapshot() *View {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return cv.current
}

// Revision returns the currently active topology revision.
func (cv *ClusterView) Revision() uint64 { return cv.snapshot().Revision }

// Nodes returns the current node roster. Callers must not mutate the
// returned slice.
func (cv *ClusterView) Nodes() []*types.Node { return cv.snapshot().Nodes }

// GetNodeByEndpoint resolves a node by its host:port identity.
func (cv *ClusterView) GetNodeByEndpoint(endpoint string) (*types.Node, bool) {
	v := cv.snapshot()
	for _, n := range v.Nodes {
		if n.Endpoint == endpoint {
			return n, true
		}
	}
	return nil, false
}

// NodeAt resolves a node by its index in the current roster, as returned
// by a Mapper lookup. A caller must treat an out-of-range index the same
// as a down node: fall back via GetRandomDataNode (spec §4.1, §9 open
// question: uniform random-live-node fallback).
func (cv *ClusterView) NodeAt(index int) (*types.Node, bool) {
	v := cv.snapshot()
	if index < 0 || index >= len(v.Nodes) {
		return nil, false
	}
	return v.Nodes[index], true
}

// GetRandomDataNode picks a uniformly random live data node. Returns
// false if none exist (caller surfaces ErrNoAvailableNode).
func (cv *ClusterView) GetRandomDataNode() (*types.Node, bool) {
	v := cv.snapshot()
	live := make([]*types.Node, 0, len(v.Nodes))
	for _, n := range v.Nodes {
		if n.Capabilities.Has(types.CapData) && !n.Down() {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		return nil, false
	}
	return live[rand.Intn(len(live))], true
}

// GetKeyMapper returns the Mapper bound to the current topology's
// partition table (or ketama ring).
func (cv *ClusterView) GetKeyMapper() types.Mapper { return cv.snapshot().Mapper }

// GetServiceURI returns the current failure-counting URI bag for svc.
func (cv *ClusterView) GetServiceURI(svc types.Service) []*types.FailureCountingUri {
	return cv.snapshot().ServiceURIs[svc]
}

// Resources returns the NodeResources (pool + IO service) associated
// with endpoint in the current view, or nil.
func (cv *ClusterView) Resources(endpoint string) NodeResources {
	return cv.snapshot().resourcesFor(endpoint)
}

// Replace applies a new topology document (spec §4.2). It is a no-op
// (returns false) if doc.Revision does not exceed the current revision.
// Endpoints present in both views reuse their NodeResources; new
// endpoints get freshly-factoried resources; endpoints absent from doc
// are disposed asynchronously after the swap is visible.
func (cv *ClusterView) Replace(doc *Topology) bool {
	cur := cv.snapshot()
	if doc.Revision <= cur.Revision {
		return false
	}

	newEntries := make(map[string]*nodeEntry, len(doc.Nodes))
	nodes := make([]*types.Node, len(doc.Nodes))
	for i, spec := range doc.Nodes {
		if old, ok := cur.entries[spec.Endpoint]; ok {
			old.node.Revision = doc.Revision
			nodes[i] = old.node
			newEntries[spec.Endpoint] = old
			continue
		}
		n := types.NewNode(spec.Endpoint, spec.Host, spec.Ports, spec.Capabilities)
		n.Revision = doc.Revision
		var res NodeResources
		if cv.factory != nil {
			res = cv.factory(n)
		}
		nodes[i] = n
		newEntries[spec.Endpoint] = &nodeEntry{node: n, res: res}
	}

	var retired []NodeResources
	for endpoint, old := range cur.entries {
		if _, stillPresent := newEntries[endpoint]; !stillPresent {
			retired = append(retired, old.res)
		}
	}

	table := doc.Table
	var mapper types.Mapper
	if doc.BucketType == BucketMemcached {
		mapper = keymapper.NewKetamaMapper(table.Ring)
	} else {
		mapper = keymapper.NewCRC32Mapper(&table)
	}

	newView := &View{
		Revision:    doc.Revision,
		Nodes:       nodes,
		Table:       &table,
		Mapper:      mapper,
		entries:     newEntries,
		ServiceURIs: rebuildServiceURIs(cur.ServiceURIs, doc.ServiceURIs),
	}

	cv.mu.Lock()
	if cv.current != cur {
		// A concurrent Replace swapped first; drop what was built here and
		// redo the revision check against the view it installed.
		cv.mu.Unlock()
		for endpoint, e := range newEntries {
			if _, reused := cur.entries[endpoint]; !reused && e.res != nil {
				e.res.Dispose()
			}
		}
		return cv.Replace(doc)
	}
	cv.current = newView
	cv.mu.Unlock()

	if len(retired) > 0 {
		select {
		case cv.disposeCh <- retired:
		default:
			go disposeAll(retired)
		}
	}
	return true
}

// rebuildServiceURIs rebuilds the per-service URI bags from a freshly
// parsed topology, carrying over failure counters for URIs that survive
// (spec §4.2 "Service URI bags").
func rebuildServiceURIs(old map[types.Service][]*types.FailureCountingUri, newRaw map[types.Service][]string) map[types.Service][]*types.FailureCountingUri {
	result := make(map[types.Service][]*types.FailureCountingUri, len(newRaw))
	for svc, uris := range newRaw {
		oldByURI := make(map[string]*types.FailureCountingUri, len(old[svc]))
		for _, u := range old[svc] {
			oldByURI[u.URI] = u
		}
		bag := make([]*types.FailureCountingUri, len(uris))
		for i, u := range uris {
			if existing, ok := oldByURI[u]; ok {
				bag[i] = existing
			} else {
				bag[i] = &types.FailureCountingUri{URI: u}
			}
		}
		result[svc] = bag
	}
	return result
}
