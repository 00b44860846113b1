package ioservice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/metrics"
	"github.com/latticekv/cbcore/pkg/types"
)

const sweepInterval = 200 * time.Millisecond

// muxResult is what the receive loop, the sweeper, or close() delivers
// for a pending opaque — exactly one of frame or err is set.
type muxResult struct {
	frame *types.OperationFrame
	err   error
}

// inflight pairs a pending frame's result channel with the deadline the
// sweeper uses to time it out.
type inflight struct {
	ch       chan muxResult
	deadline time.Time
}

// multiplexer is one dedicated Connection shared by many concurrent
// operations, correlated by opaque (spec §4.4 "Multiplexed mode").
type multiplexer struct {
	conn     *connpool.Connection
	pool     *connpool.Pool
	endpoint string

	opaque uint32

	mu      sync.Mutex
	pending map[uint32]inflight
	high    int

	writeMu sync.Mutex

	stopCh chan struct{}
	closed atomic.Bool
}

func newMultiplexer(ctx context.Context, cfg Config) (*multiplexer, error) {
	conn, err := cfg.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ioservice: acquire multiplexed connection: %w", err)
	}
	m := &multiplexer{
		conn:     conn,
		pool:     cfg.Pool,
		endpoint: cfg.Node.Endpoint,
		pending:  make(map[uint32]inflight),
		high:     cfg.HighWaterMark,
		stopCh:   make(chan struct{}),
	}
	go m.receiveLoop(cfg.Node.Endpoint)
	go m.sweepLoop()
	return m, nil
}

func (m *multiplexer) close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	close(m.stopCh)
	m.pool.Discard(m.conn)

	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, p := range pending {
		p.ch <- muxResult{err: cberr.ErrPoolClosed}
	}
}

// send registers frame's opaque in the pending table, writes it under
// the write mutex (serializing concurrent submitters, spec §5), and
// returns the eventual response or a context/backpressure error.
func (m *multiplexer) send(ctx context.Context, frame *types.OperationFrame) (*types.OperationFrame, error) {
	if m.closed.Load() {
		return nil, cberr.ErrPoolClosed
	}

	deadline := time.Now().Add(2500 * time.Millisecond)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	opaque := atomic.AddUint32(&m.opaque, 1)
	frame.Opaque = opaque
	ch := make(chan muxResult, 1)

	m.mu.Lock()
	if m.high > 0 && len(m.pending) >= m.high {
		m.mu.Unlock()
		return nil, cberr.ErrConnectionPoolExhausted
	}
	m.pending[opaque] = inflight{ch: ch, deadline: deadline}
	m.mu.Unlock()

	m.writeMu.Lock()
	err := m.conn.Write(memdproto.EncodeRequest(frame))
	m.writeMu.Unlock()
	if err != nil {
		m.removePending(opaque)
		return nil, err
	}

	select {
	case res := <-ch:
		return res.frame, res.err
	case <-ctx.Done():
		m.removePending(opaque)
		return nil, ctx.Err()
	}
}

func (m *multiplexer) removePending(opaque uint32) {
	m.mu.Lock()
	delete(m.pending, opaque)
	m.mu.Unlock()
}

func (m *multiplexer) receiveLoop(endpoint string) {
	nodeLog := log.WithNode(endpoint)
	for {
		resp, err := memdproto.ReadFrame(m.conn.Conn())
		if err != nil {
			if m.closed.Load() {
				return
			}
			nodeLog.Warn().Err(err).Msg("multiplexed receiver lost connection")
			m.drainAll()
			return
		}

		m.mu.Lock()
		p, ok := m.pending[resp.Opaque]
		if ok {
			delete(m.pending, resp.Opaque)
		}
		m.mu.Unlock()

		if !ok {
			// Unknown opaque: a cancelled or already-swept operation's
			// late reply. Discard.
			continue
		}
		p.ch <- muxResult{frame: resp}
	}
}

func (m *multiplexer) drainAll() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[uint32]inflight)
	m.mu.Unlock()
	for _, p := range pending {
		p.ch <- muxResult{err: cberr.ErrReadFailed}
	}
}

func (m *multiplexer) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *multiplexer) sweepExpired() {
	now := time.Now()
	var expired []inflight

	m.mu.Lock()
	for opaque, p := range m.pending {
		if now.After(p.deadline) {
			expired = append(expired, p)
			delete(m.pending, opaque)
		}
	}
	depth := len(m.pending)
	m.mu.Unlock()

	for _, p := range expired {
		p.ch <- muxResult{err: cberr.ErrOperationTimeout}
	}
	if len(expired) > 0 {
		metrics.OpaqueTableDepth.WithLabelValues(m.endpoint).Set(float64(depth))
	}
}

func (m *multiplexer) tableDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
