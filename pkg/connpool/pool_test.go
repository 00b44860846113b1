package connpool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeServer emulates just enough of the wire protocol to bring a
// Connection up: HELLO, SASLList (PLAIN only), SASLAuth, and NoOp.
func fakeServer(t *testing.T, conn net.Conn) {
	t.Helper()
	for {
		req, err := memdproto.ReadFrame(conn)
		if err != nil {
			return
		}
		var resp []byte
		switch memdproto.Opcode(req.Opcode) {
		case memdproto.OpHello:
			resp = memdproto.EncodeResponse(successFrame(req.Opaque, nil))
		case memdproto.OpSASLList:
			resp = memdproto.EncodeResponse(successFrame(req.Opaque, []byte("PLAIN")))
		case memdproto.OpSASLAuth:
			resp = memdproto.EncodeResponse(successFrame(req.Opaque, nil))
		case memdproto.OpSelectBucket:
			resp = memdproto.EncodeResponse(successFrame(req.Opaque, nil))
		case memdproto.OpNoOp:
			resp = memdproto.EncodeResponse(successFrame(req.Opaque, nil))
		default:
			resp = memdproto.EncodeResponse(successFrame(req.Opaque, nil))
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func successFrame(opaque uint32, value []byte) *types.OperationFrame {
	return &types.OperationFrame{Opaque: opaque, Value: value}
}

func pipeDialer(t *testing.T) (Dialer, func()) {
	t.Helper()
	var servers []net.Conn
	dialer := func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		servers = append(servers, server)
		go fakeServer(t, server)
		return client, nil
	}
	cleanup := func() {
		for _, s := range servers {
			_ = s.Close()
		}
	}
	return dialer, cleanup
}

func testConfig(t *testing.T) (Config, func()) {
	dialer, cleanup := pipeDialer(t)
	return Config{
		Endpoint:       "node-a:11210",
		Pool:           cbconfig.PoolConfiguration{MinSize: 1, MaxSize: 2, WaitTimeout: 200 * time.Millisecond},
		Bucket:         cbconfig.BucketCredentials{Name: "default", Password: ""},
		ForceSaslPlain: true,
		Dialer:         dialer,
	}, cleanup
}

func TestPoolInitializeWarmsToMinSize(t *testing.T) {
	cfg, cleanup := testConfig(t)
	defer cleanup()

	p := New(cfg)
	defer p.Dispose()

	require.NoError(t, p.Initialize(context.Background()))
	require.Equal(t, 1, p.Size())
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	cfg, cleanup := testConfig(t)
	defer cleanup()

	p := New(cfg)
	defer p.Dispose()
	require.NoError(t, p.Initialize(context.Background()))

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, c.Authenticated)
	p.Release(c)

	require.Equal(t, 1, p.Size())
}

func TestAcquireBlocksThenExhausts(t *testing.T) {
	cfg, cleanup := testConfig(t)
	defer cleanup()
	cfg.Pool.MaxSize = 1
	cfg.Pool.WaitTimeout = 50 * time.Millisecond

	p := New(cfg)
	defer p.Dispose()
	require.NoError(t, p.Initialize(context.Background()))

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, cberr.ErrConnectionPoolExhausted)

	p.Release(c)
}

func TestDisposeRejectsFurtherAcquire(t *testing.T) {
	cfg, cleanup := testConfig(t)
	defer cleanup()

	p := New(cfg)
	require.NoError(t, p.Initialize(context.Background()))
	p.Dispose()

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
}
