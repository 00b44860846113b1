package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/ioservice"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
)

// maxRouteRetries bounds how many times a single operation retransmits
// after a NotMyVBucket reply before giving up, independent of the
// operation's own deadline (spec §4.4 retry policy covers Busy/
// TemporaryFailure/transport; routing retries get their own small cap
// since each one implies a config refresh round-trip).
const maxRouteRetries = 3

// Bucket is the application-facing facade (spec §4, component design
// intro: "Bucket Facade").
type Bucket struct {
	name       string
	view       *clusterview.ClusterView
	retrySleep time.Duration
}

// New constructs a Bucket bound to view. view's ResourceFactory must
// have been built with ResourceFactory from this package so that
// view.Resources(endpoint) yields a *nodeResources. retrySleep is the
// base NotMyVBucket backoff (cbconfig.ClusterConfig.VBucketRetrySleepTime);
// zero falls back to the same default ioservice.Config.retrySleep uses.
func New(name string, view *clusterview.ClusterView, retrySleep time.Duration) *Bucket {
	return &Bucket{name: name, view: view, retrySleep: retrySleep}
}

func (b *Bucket) baseRetrySleep() time.Duration {
	if b.retrySleep > 0 {
		return b.retrySleep
	}
	return 100 * time.Millisecond
}

func (b *Bucket) resolve(key []byte) (*types.Node, types.Route, bool) {
	mapper := b.view.GetKeyMapper()
	if mapper == nil {
		node, ok := b.view.GetRandomDataNode()
		return node, types.Route{Primary: -1}, ok
	}
	route := mapper.Lookup(key)
	node, ok := b.view.NodeAt(route.Primary)
	if !ok || node.Down() {
		node, ok = b.view.GetRandomDataNode()
	}
	return node, route, ok
}

func (b *Bucket) serviceFor(node *types.Node) (*ioservice.Service, bool) {
	res := b.view.Resources(node.Endpoint)
	nr, ok := res.(*nodeResources)
	if !ok || nr.svc == nil {
		return nil, false
	}
	return nr.svc, true
}

// execute resolves key to a node, dispatches frame, and retries against
// a fresh route on NotMyVBucket (spec §8 scenario 3) up to
// maxRouteRetries times.
func (b *Bucket) execute(ctx context.Context, key []byte, frame *types.OperationFrame) types.Result {
	for attempt := 0; attempt <= maxRouteRetries; attempt++ {
		node, route, ok := b.resolve(key)
		if !ok {
			return types.Result{Status: types.StatusNoAvailableNode, Err: cberr.ErrNoAvailableNode}
		}
		svc, ok := b.serviceFor(node)
		if !ok {
			return types.Result{Status: types.StatusNoAvailableNode, Node: node.Endpoint,
				Err: fmt.Errorf("bucket: %s: no io service bound", node.Endpoint)}
		}

		if route.HasPartition {
			frame.VBucket = route.PartitionID
		}
		frame.Opaque = 0

		result := svc.Execute(ctx, frame)
		result.Node = node.Endpoint
		if result.Status != types.StatusNotMyVBucket {
			return result
		}

		log.WithService("bucket").Debug().Str("endpoint", node.Endpoint).Int("attempt", attempt).
			Msg("not my vbucket, retrying against refreshed route")
		if !b.sleepForRetry(ctx, attempt) {
			return result
		}
	}
	return types.Result{Status: types.StatusNotMyVBucket, Err: cberr.ErrNotMyVBucket}
}

// sleepForRetry backs off VBucketRetrySleepTime·2^attempt before a
// NotMyVBucket retransmit (spec §4.4), the same formula
// ioservice.Service.retryAfter applies to Busy/TemporaryFailure/transport
// retries, capped by ctx's deadline if it has one.
func (b *Bucket) sleepForRetry(ctx context.Context, attempt int) bool {
	shift := attempt
	if shift > 16 {
		shift = 16
	}
	sleep := b.baseRetrySleep() * time.Duration(uint64(1)<<uint(shift))
	if deadline, ok := ctx.Deadline(); ok && time.Now().Add(sleep).After(deadline) {
		return false
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func newFrame(opcode memdproto.Opcode, key, value []byte, cas uint64) *types.OperationFrame {
	return &types.OperationFrame{
		Magic:  0x80,
		Opcode: byte(opcode),
		Key:    key,
		Value:  value,
		CAS:    cas,
	}
}

// Get fetches the current value and CAS for key.
func (b *Bucket) Get(ctx context.Context, key []byte) types.Result {
	return b.execute(ctx, key, newFrame(memdproto.OpGet, key, nil, 0))
}

// Set unconditionally stores value under key.
func (b *Bucket) Set(ctx context.Context, key, value []byte) types.Result {
	return b.execute(ctx, key, newFrame(memdproto.OpSet, key, value, 0))
}

// Add stores value under key only if key does not already exist.
func (b *Bucket) Add(ctx context.Context, key, value []byte) types.Result {
	return b.execute(ctx, key, newFrame(memdproto.OpAdd, key, value, 0))
}

// Replace stores value under key only if cas matches the server's
// current CAS for key (optimistic locking).
func (b *Bucket) Replace(ctx context.Context, key, value []byte, cas uint64) types.Result {
	return b.execute(ctx, key, newFrame(memdproto.OpReplace, key, value, cas))
}

// Delete removes key.
func (b *Bucket) Delete(ctx context.Context, key []byte) types.Result {
	return b.execute(ctx, key, newFrame(memdproto.OpDelete, key, nil, 0))
}
