package ioservice

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
	"github.com/stretchr/testify/require"
)

// holdServer answers HELLO/SASL bring-up immediately but holds every
// data request until release is signaled, letting a test control
// exactly when (or whether) a response arrives.
type holdServer struct {
	mu      sync.Mutex
	release chan struct{}
	drop    bool // when true, never respond to data requests
}

func newHoldServer() *holdServer {
	return &holdServer{release: make(chan struct{})}
}

func (h *holdServer) unblock() { close(h.release) }

func (h *holdServer) serve(t *testing.T, conn net.Conn) {
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
			h.mu.Lock()
			_, werr := conn.Write(memdproto.EncodeResponse(resp))
			h.mu.Unlock()
			if werr != nil {
				return
			}
			continue
		}

		if h.drop {
			continue
		}
		opaque := req.Opaque
		go func() {
			<-h.release
			resp := &types.OperationFrame{Opcode: req.Opcode, Opaque: opaque}
			h.mu.Lock()
			_, _ = conn.Write(memdproto.EncodeResponse(resp))
			h.mu.Unlock()
		}()
	}
}

func poolWithHoldServer(t *testing.T, h *holdServer) (*connpool.Pool, func()) {
	t.Helper()
	var servers []net.Conn
	dialer := func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		servers = append(servers, server)
		go h.serve(t, server)
		return client, nil
	}
	p := connpool.New(connpool.Config{
		Endpoint:       "node-a:11210",
		Pool:           cbconfig.PoolConfiguration{MinSize: 0, MaxSize: 2, WaitTimeout: time.Second},
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

func TestMultiplexerCorrelatesConcurrentOperations(t *testing.T) {
	h := newHoldServer()
	pool, cleanup := poolWithHoldServer(t, h)
	defer cleanup()

	mux, err := newMultiplexer(context.Background(), Config{Node: testNode(), Pool: pool})
	require.NoError(t, err)
	defer mux.close()

	const n = 8
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := mux.send(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet)})
			results <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	h.unblock()

	for i := 0; i < n; i++ {
		require.NoError(t, <-results)
	}
}

func TestMultiplexerBackpressureRejectsOverHighWaterMark(t *testing.T) {
	h := newHoldServer()
	pool, cleanup := poolWithHoldServer(t, h)
	defer cleanup()
	defer h.unblock()

	mux, err := newMultiplexer(context.Background(), Config{Node: testNode(), Pool: pool, HighWaterMark: 1})
	require.NoError(t, err)
	defer mux.close()

	go func() {
		_, _ = mux.send(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet)})
	}()
	require.Eventually(t, func() bool { return mux.tableDepth() == 1 }, time.Second, time.Millisecond)

	_, err = mux.send(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet)})
	require.ErrorIs(t, err, cberr.ErrConnectionPoolExhausted)
}

// TestMultiplexerSweepReclaimsSlotAfterCancel confirms a cancelled send
// does not leak its opaque: send removes it from the in-flight table when
// its context ends, so it no longer counts against the high-water mark.
func TestMultiplexerSweepReclaimsSlotAfterCancel(t *testing.T) {
	h := newHoldServer()
	h.drop = true
	pool, cleanup := poolWithHoldServer(t, h)
	defer cleanup()

	mux, err := newMultiplexer(context.Background(), Config{Node: testNode(), Pool: pool, HighWaterMark: 1})
	require.NoError(t, err)
	defer mux.close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = mux.send(ctx, &types.OperationFrame{Opcode: byte(memdproto.OpGet)})
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool { return mux.tableDepth() == 0 }, time.Second, time.Millisecond)
}

func TestMultiplexerSweepTimesOutOperationWithoutContextDeadline(t *testing.T) {
	h := newHoldServer()
	h.drop = true
	pool, cleanup := poolWithHoldServer(t, h)
	defer cleanup()

	mux, err := newMultiplexer(context.Background(), Config{Node: testNode(), Pool: pool})
	require.NoError(t, err)
	defer mux.close()

	_, err = mux.send(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet)})
	require.ErrorIs(t, err, cberr.ErrOperationTimeout)
}

func TestMultiplexerCloseUnblocksPending(t *testing.T) {
	h := newHoldServer()
	h.drop = true
	pool, cleanup := poolWithHoldServer(t, h)
	defer cleanup()

	mux, err := newMultiplexer(context.Background(), Config{Node: testNode(), Pool: pool})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := mux.send(context.Background(), &types.OperationFrame{Opcode: byte(memdproto.OpGet)})
		done <- err
	}()

	require.Eventually(t, func() bool { return mux.tableDepth() == 1 }, time.Second, time.Millisecond)
	mux.close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, cberr.ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("send did not unblock after close")
	}
}
