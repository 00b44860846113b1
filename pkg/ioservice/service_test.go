package ioservice

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
	"github.com/stretchr/testify/require"
)

// scriptedServer answers connection bring-up (HELLO/SASL) unconditionally
// with success, and replies to every subsequent data request with the
// next wire status from statuses (so a caller can script "fail N times
// then succeed" for the operation under test, without the handshake
// consuming script entries).
type scriptedServer struct {
	statuses []memdproto.WireStatus
	seen     atomic.Int64
	value    []byte
}

func isHandshakeOp(op memdproto.Opcode) bool {
	switch op {
	case memdproto.OpHello, memdproto.OpSASLList, memdproto.OpSASLAuth, memdproto.OpSASLStep,
		memdproto.OpSelectBucket, memdproto.OpGetErrorMap:
		return true
	default:
		return false
	}
}

func (s *scriptedServer) serve(t *testing.T, conn net.Conn) {
	t.Helper()
	for {
		req, err := memdproto.ReadFrame(conn)
		if err != nil {
			return
		}

		op := memdproto.Opcode(req.Opcode)
		if isHandshakeOp(op) {
			resp := &types.OperationFrame{Opcode: req.Opcode, Opaque: req.Opaque}
			if op == memdproto.OpSASLList {
				resp.Value = []byte("PLAIN")
			}
			if _, err := conn.Write(memdproto.EncodeResponse(resp)); err != nil {
				return
			}
			continue
		}

		idx := int(s.seen.Add(1)) - 1
		status := memdproto.WireSuccess
		if idx < len(s.statuses) {
			status = s.statuses[idx]
		}
		resp := &types.OperationFrame{
			Opcode:  req.Opcode,
			Opaque:  req.Opaque,
			VBucket: uint16(status),
			Value:   s.value,
		}
		if _, err := conn.Write(memdproto.EncodeResponse(resp)); err != nil {
			return
		}
	}
}

func poolWithScript(t *testing.T, statuses []memdproto.WireStatus, value []byte) (*connpool.Pool, func()) {
	t.Helper()
	script := &scriptedServer{statuses: statuses, value: value}
	var servers []net.Conn
	dialer := func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		servers = append(servers, server)
		go script.serve(t, server)
		return client, nil
	}
	p := connpool.New(connpool.Config{
		Endpoint:       "node-a:11210",
		Pool:           cbconfig.PoolConfiguration{MinSize: 0, MaxSize: 4, WaitTimeout: time.Second},
		Bucket:         cbconfig.BucketCredentials{Name: "default"},
		ForceSaslPlain: true,
		Dialer:         dialer,
	})
	require.NoError(t, p.Initialize(context.Background()))
	cleanup := func() {
		p.Dispose()
		for _, s := range servers {
			_ = s.Close()
		}
	}
	return p, cleanup
}

func testNode() *types.Node {
	return types.NewNode("node-a:11210", "node-a", types.Ports{}, types.CapData)
}

func TestExecuteSucceedsPooled(t *testing.T) {
	pool, cleanup := poolWithScript(t, nil, []byte("bar"))
	defer cleanup()

	svc, err := New(context.Background(), Config{Node: testNode(), Pool: pool, Mode: ModePooled})
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Execute(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet), Key: []byte("foo")})
	require.True(t, res.Success)
	require.Equal(t, []byte("bar"), res.Value)
}

func TestExecuteRetriesBusyThenSucceeds(t *testing.T) {
	pool, cleanup := poolWithScript(t, []memdproto.WireStatus{memdproto.WireBusy, memdproto.WireBusy, memdproto.WireSuccess}, nil)
	defer cleanup()

	svc, err := New(context.Background(), Config{
		Node:                  testNode(),
		Pool:                  pool,
		Mode:                  ModePooled,
		VBucketRetrySleepTime: 2 * time.Millisecond,
		OperationLifespan:     time.Second,
	})
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Execute(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet), Key: []byte("foo")})
	require.True(t, res.Success)
}

func TestExecuteGivesUpOnBusyPastDeadline(t *testing.T) {
	statuses := make([]memdproto.WireStatus, 64)
	for i := range statuses {
		statuses[i] = memdproto.WireBusy
	}
	pool, cleanup := poolWithScript(t, statuses, nil)
	defer cleanup()

	svc, err := New(context.Background(), Config{
		Node:                  testNode(),
		Pool:                  pool,
		Mode:                  ModePooled,
		VBucketRetrySleepTime: 5 * time.Millisecond,
		OperationLifespan:     20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Execute(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet), Key: []byte("foo")})
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, cberr.ErrServerBusy)
}

func TestExecuteReturnsNotMyVBucketWithoutRetrying(t *testing.T) {
	topologyDoc := []byte(`{"rev":2}`)
	pool, cleanup := poolWithScript(t, []memdproto.WireStatus{memdproto.WireNotMyVBucket}, topologyDoc)
	defer cleanup()

	var gotBody []byte
	svc, err := New(context.Background(), Config{
		Node: testNode(),
		Pool: pool,
		Mode: ModePooled,
		OnNotMyVBucket: func(body []byte) {
			gotBody = body
		},
	})
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Execute(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet), Key: []byte("foo")})
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, cberr.ErrNotMyVBucket)
	require.Equal(t, topologyDoc, gotBody)
}

func TestExecuteMultiplexedRoundTrip(t *testing.T) {
	pool, cleanup := poolWithScript(t, nil, []byte("baz"))
	defer cleanup()

	svc, err := New(context.Background(), Config{Node: testNode(), Pool: pool, Mode: ModeMultiplexed})
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Execute(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet), Key: []byte("foo")})
	require.True(t, res.Success)
	require.Equal(t, []byte("baz"), res.Value)
}
