package bucket

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/ioservice"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeNode runs a tiny scripted server behind net.Pipe, answering
// handshake opcodes unconditionally and every Get with value.
type fakeNode struct {
	value        []byte
	notMyVBucket bool
}

func (f *fakeNode) serve(conn net.Conn) {
	for {
		req, err := memdproto.ReadFrame(conn)
		if err != nil {
			return
		}
		op := memdproto.Opcode(req.Opcode)
		resp := &types.OperationFrame{Opcode: req.Opcode, Opaque: req.Opaque}
		switch {
		case op == memdproto.OpHello, op == memdproto.OpSASLAuth, op == memdproto.OpSelectBucket, op == memdproto.OpGetErrorMap:
			// handshake success, no-op body
		case op == memdproto.OpSASLList:
			resp.Value = []byte("PLAIN")
		case f.notMyVBucket:
			resp.VBucket = uint16(memdproto.WireNotMyVBucket)
			resp.Value = []byte(`{"rev":2}`)
		default:
			resp.Value = f.value
		}
		if _, err := conn.Write(memdproto.EncodeResponse(resp)); err != nil {
			return
		}
	}
}

func singleNodeTable() types.PartitionTable {
	return types.PartitionTable{
		P: 1,
		R: 0,
		Partitions: []types.Partition{
			{ID: 0, Primary: 0},
		},
	}
}

func newTestView(t *testing.T, endpoint string, node *fakeNode) *clusterview.ClusterView {
	t.Helper()
	var servers []net.Conn
	dialer := func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		servers = append(servers, server)
		go node.serve(server)
		return client, nil
	}

	factory := func(n *types.Node) clusterview.NodeResources {
		pool := connpool.New(connpool.Config{
			Endpoint:       n.Endpoint,
			Pool:           cbconfig.PoolConfiguration{MinSize: 0, MaxSize: 2, WaitTimeout: time.Second},
			Bucket:         cbconfig.BucketCredentials{Name: "default"},
			ForceSaslPlain: true,
			Dialer:         dialer,
		})
		require.NoError(t, pool.Initialize(context.Background()))
		svc, err := ioservice.New(context.Background(), ioservice.Config{Node: n, Pool: pool, Mode: ioservice.ModePooled})
		require.NoError(t, err)
		return &nodeResources{pool: pool, svc: svc}
	}

	view := clusterview.New(factory)
	ok := view.Replace(&clusterview.Topology{
		Revision: 1,
		Nodes: []clusterview.NodeSpec{
			{Endpoint: endpoint, Host: "node-a", Capabilities: types.CapData},
		},
		Table: singleNodeTable(),
	})
	require.True(t, ok)

	t.Cleanup(func() {
		view.Close()
		for _, s := range servers {
			_ = s.Close()
		}
	})
	return view
}

func TestBucketGetSucceeds(t *testing.T) {
	view := newTestView(t, "node-a:11210", &fakeNode{value: []byte("bar")})
	b := New("default", view, time.Millisecond)

	res := b.Get(context.Background(), []byte("foo"))
	require.True(t, res.Success)
	require.Equal(t, []byte("bar"), res.Value)
	require.Equal(t, "node-a:11210", res.Node)
}

func TestBucketGivesUpAfterRepeatedNotMyVBucket(t *testing.T) {
	view := newTestView(t, "node-a:11210", &fakeNode{notMyVBucket: true})
	b := New("default", view, time.Millisecond)

	res := b.Get(context.Background(), []byte("foo"))
	require.False(t, res.Success)
	require.Equal(t, types.StatusNotMyVBucket, res.Status)
}

func TestBucketReturnsNoAvailableNodeWhenViewEmpty(t *testing.T) {
	view := clusterview.New(nil)
	b := New("default", view, time.Millisecond)

	res := b.Get(context.Background(), []byte("foo"))
	require.Equal(t, types.StatusNoAvailableNode, res.Status)
}
