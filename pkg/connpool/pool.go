package connpool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/metrics"
	"github.com/latticekv/cbcore/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Dialer opens the raw transport to a node; overridable in tests.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

func defaultDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// Connection is one framed-binary socket to a node (spec §3 "Connection").
type Connection struct {
	conn          net.Conn
	Encrypted     bool
	Authenticated bool
	Features      map[Feature]bool
	ErrorMap      *memdproto.ErrorMap

	idleSince time.Time
	opaque    uint32 // local counter for handshake-phase requests only
}

// Write sends a frame over the connection.
func (c *Connection) Write(f []byte) error {
	_, err := c.conn.Write(f)
	return err
}

// Conn exposes the underlying net.Conn for frame reads/writes by the IO
// service, which owns request/response framing once a Connection leaves
// the pool.
func (c *Connection) Conn() net.Conn { return c.conn }

func (c *Connection) nextOpaque() uint32 {
	c.opaque++
	return c.opaque
}

func (c *Connection) close() {
	_ = c.conn.Close()
}

// Config configures a single node's Pool. Every field is supplied by the
// caller (the Bucket Facade's ResourceFactory); connpool never reaches
// into ambient configuration.
type Config struct {
	Endpoint string // host:port, dial target
	Host     string // hostname used for TLS SNI and cert verification
	TLS      *tls.Config

	Pool   cbconfig.PoolConfiguration
	Bucket cbconfig.BucketCredentials

	ForceSaslPlain bool
	EnhancedAuth   bool

	EnableTCPKeepAlives  bool
	TCPKeepAliveTime     time.Duration
	TCPKeepAliveInterval time.Duration

	IdleTimeout time.Duration

	Dialer Dialer
}

func (c *Config) dialer() Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return defaultDialer
}

func (c *Config) idleTimeout() time.Duration {
	if c.IdleTimeout > 0 {
		return c.IdleTimeout
	}
	return 5 * time.Minute
}

// Pool is a bounded set of Connections to one node (spec §4.3).
type Pool struct {
	cfg Config

	mu      sync.Mutex
	free    []*Connection
	numOpen int
	closed  bool
	waiters []chan *Connection

	stopCh chan struct{}
}

// New constructs a Pool for one node. Dial-up does not happen until
// Initialize is called.
func New(cfg Config) *Pool {
	return &Pool{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Initialize warms the pool to MinSize connections, fanning dials out
// concurrently via errgroup so one slow dial does not serialize the rest.
// Each dial is attempted up to warmUpAttempts times.
func (p *Pool) Initialize(ctx context.Context) error {
	const warmUpAttempts = 3
	nodeLog := log.WithNode(p.cfg.Endpoint)
	var g errgroup.Group
	var mu sync.Mutex
	conns := make([]*Connection, 0, p.cfg.Pool.MinSize)

	for i := 0; i < p.cfg.Pool.MinSize; i++ {
		g.Go(func() error {
			var c *Connection
			var err error
			for try := 0; try < warmUpAttempts; try++ {
				if c, err = p.dial(ctx); err == nil {
					break
				}
			}
			if err != nil {
				return err
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range conns {
			c.close()
		}
		return fmt.Errorf("connpool: warm up %s: %w", p.cfg.Endpoint, err)
	}

	p.mu.Lock()
	p.free = append(p.free, conns...)
	p.numOpen += len(conns)
	p.mu.Unlock()

	nodeLog.Info().Msg("pool warmed")
	go p.idleReaper()
	return nil
}

// Acquire returns a Connection, blocking up to Pool.WaitTimeout if the
// pool is at MaxSize with all connections in use.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, cberr.ErrPoolClosed
	}
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		metrics.PoolInUse.WithLabelValues(p.cfg.Endpoint).Add(1)
		return c, nil
	}
	if p.numOpen < p.cfg.Pool.MaxSize {
		p.numOpen++
		p.mu.Unlock()
		c, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return nil, err
		}
		metrics.PoolInUse.WithLabelValues(p.cfg.Endpoint).Add(1)
		return c, nil
	}

	wait := make(chan *Connection, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.Pool.WaitTimeout)
	defer timer.Stop()

	timerAcq := metrics.NewTimer()
	select {
	case c, ok := <-wait:
		if !ok {
			return nil, cberr.ErrPoolClosed
		}
		timerAcq.ObserveDurationVec(metrics.PoolWaitDuration, p.cfg.Endpoint)
		metrics.PoolInUse.WithLabelValues(p.cfg.Endpoint).Add(1)
		return c, nil
	case <-timer.C:
		p.removeWaiter(wait)
		return nil, cberr.ErrConnectionPoolExhausted
	case <-ctx.Done():
		p.removeWaiter(wait)
		return nil, ctx.Err()
	}
}

func (p *Pool) removeWaiter(wait chan *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == wait {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Release returns a Connection to the pool, or hands it directly to a
// waiting Acquire call.
func (p *Pool) Release(c *Connection) {
	c.idleSince = time.Now()
	metrics.PoolInUse.WithLabelValues(p.cfg.Endpoint).Add(-1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.close()
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w <- c
		return
	}
	p.free = append(p.free, c)
	p.mu.Unlock()
	metrics.PoolSize.WithLabelValues(p.cfg.Endpoint).Set(float64(p.Size()))
}

// Discard destroys a Connection instead of returning it to the pool,
// used when a handshake step or operation leaves it in a bad state.
func (p *Pool) Discard(c *Connection) {
	metrics.PoolInUse.WithLabelValues(p.cfg.Endpoint).Add(-1)
	c.close()
	p.mu.Lock()
	p.numOpen--
	p.mu.Unlock()
}

// Size returns the number of connections currently open (free + in use).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numOpen
}

// Dispose closes every connection and rejects future Acquire calls.
// Implements clusterview.NodeResources so a Pool can be handed to
// ClusterView's ResourceFactory directly.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	free := p.free
	p.free = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	close(p.stopCh)
	for _, c := range free {
		c.close()
	}
	for _, w := range waiters {
		close(w)
	}
}

func (p *Pool) idleReaper() {
	ticker := time.NewTicker(p.cfg.idleTimeout() / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.cfg.idleTimeout())
	p.mu.Lock()
	kept := p.free[:0]
	for _, c := range p.free {
		if p.numOpen > p.cfg.Pool.MinSize && c.idleSince.Before(cutoff) {
			p.numOpen--
			defer c.close()
			continue
		}
		kept = append(kept, c)
	}
	p.free = kept
	p.mu.Unlock()
}

// Probe issues a lightweight NoOp round trip on a pooled connection to
// check node liveness. Nothing in this module calls it, and nothing
// clears a node's down flag on its success.
func (p *Pool) Probe(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	req := noOpFrame(c.nextOpaque())
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		p.Discard(c)
		return fmt.Errorf("connpool: probe write %s: %w", p.cfg.Endpoint, err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		p.Discard(c)
		return fmt.Errorf("connpool: probe read %s: %w", p.cfg.Endpoint, err)
	}
	p.Release(c)
	if memdproto.Classify(memdproto.WireStatus(resp.VBucket)) != types.StatusSuccess {
		return cberr.ErrServerBusy
	}
	return nil
}

func (p *Pool) dial(ctx context.Context) (*Connection, error) {
	raw, err := p.cfg.dialer()(ctx, "tcp", p.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cberr.ErrConnectFailed, p.cfg.Endpoint, err)
	}

	if p.cfg.EnableTCPKeepAlives {
		if tc, ok := raw.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			if p.cfg.TCPKeepAliveInterval > 0 {
				_ = tc.SetKeepAlivePeriod(p.cfg.TCPKeepAliveInterval)
			}
		}
	}

	encrypted := false
	if p.cfg.TLS != nil {
		tlsConn := tls.Client(raw, p.cfg.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("%w: %s: %v", cberr.ErrTLSHandshakeFailed, p.cfg.Endpoint, err)
		}
		raw = tlsConn
		encrypted = true
	}

	c := &Connection{conn: raw, Encrypted: encrypted, idleSince: time.Now()}
	if err := bringUp(ctx, p.cfg, c); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}
