package ioservice

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/metrics"
	"github.com/latticekv/cbcore/pkg/types"
	"github.com/rs/zerolog"
)

// pooledOpaque is a process-wide counter for pooled-mode requests, which
// do not need per-connection uniqueness (pooled mode gives each
// in-flight operation its own Connection) but still need a non-zero,
// distinguishable value for logs and server-side tracing.
var pooledOpaque uint32

func nextPooledOpaque() uint32 {
	return atomic.AddUint32(&pooledOpaque, 1)
}

// Mode selects how a Service multiplexes operations over its Pool.
type Mode int

const (
	ModePooled Mode = iota
	ModeMultiplexed
)

// Config configures a Service for one node.
type Config struct {
	Node *types.Node
	Pool *connpool.Pool
	Mode Mode

	OperationLifespan     time.Duration
	VBucketRetrySleepTime time.Duration

	IOErrorThreshold     int
	IOErrorCheckInterval time.Duration

	// HighWaterMark bounds outstanding multiplexed operations; zero
	// means unbounded. Ignored in pooled mode.
	HighWaterMark int

	// OnNotMyVBucket is invoked with the response body of a
	// NotMyVBucket reply, which often carries a fresher topology
	// document (spec §4.4); the Config Provider installs it.
	OnNotMyVBucket func(body []byte)
}

func (c *Config) lifespan() time.Duration {
	if c.OperationLifespan > 0 {
		return c.OperationLifespan
	}
	return 2500 * time.Millisecond
}

func (c *Config) retrySleep() time.Duration {
	if c.VBucketRetrySleepTime > 0 {
		return c.VBucketRetrySleepTime
	}
	return 100 * time.Millisecond
}

// Service is the per-node IO dispatcher (spec §4.4).
type Service struct {
	cfg     Config
	errors  *errorCounter
	nodeTag string

	mux *multiplexer // nil in pooled mode
}

// New constructs a Service for cfg.Node. In multiplexed mode this
// acquires and holds one dedicated Connection for the Service's
// lifetime; callers should not also route pooled operations through the
// same connpool.Pool for this node.
func New(ctx context.Context, cfg Config) (*Service, error) {
	s := &Service{
		cfg:     cfg,
		errors:  newErrorCounter(cfg.IOErrorThreshold, cfg.IOErrorCheckInterval, cfg.Node),
		nodeTag: cfg.Node.Endpoint,
	}
	if cfg.Mode == ModeMultiplexed {
		mux, err := newMultiplexer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.mux = mux
	}
	return s, nil
}

// Close releases resources held by multiplexed mode. Pooled mode owns
// nothing beyond the shared connpool.Pool, which the caller disposes
// independently.
func (s *Service) Close() {
	if s.mux != nil {
		s.mux.close()
	}
}

// Execute runs op synchronously to completion, deadline, or a terminal
// status, retrying Busy/TemporaryFailure/transport errors locally.
func (s *Service) Execute(ctx context.Context, frame *types.OperationFrame) types.Result {
	deadline := time.Now().Add(s.cfg.lifespan())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	opLog := log.WithOperation(frame.Opcode, frame.Opaque)
	timer := metrics.NewTimer()
	opcodeName := fmt.Sprintf("0x%02x", frame.Opcode)
	defer timer.ObserveDurationVec(metrics.KVOperationDuration, opcodeName)

	for attempt := 0; ; attempt++ {
		resp, err := s.send(ctx, frame)
		if err != nil {
			s.errors.record()
			metrics.IOErrorsTotal.WithLabelValues(s.nodeTag).Inc()
			if ctx.Err() != nil {
				return result(types.StatusCancelled, frame, nil, ctx.Err())
			}
			if !s.retryAfter(ctx, deadline, attempt, "transport", opLog) {
				metrics.KVOperationsTotal.WithLabelValues(opcodeName, "transport_error").Inc()
				return result(types.StatusTransportError, frame, nil, fmt.Errorf("%w: %v", cberr.ErrReadFailed, err))
			}
			continue
		}

		status := memdproto.Classify(memdproto.WireStatus(resp.VBucket))
		switch status {
		case types.StatusNotMyVBucket:
			if s.cfg.OnNotMyVBucket != nil && len(resp.Value) > 0 {
				s.cfg.OnNotMyVBucket(resp.Value)
			}
			metrics.KVOperationsTotal.WithLabelValues(opcodeName, "not_my_vbucket").Inc()
			return result(status, frame, resp, cberr.ErrNotMyVBucket)

		case types.StatusBusy, types.StatusTemporaryFailure:
			reason := "busy"
			if status == types.StatusTemporaryFailure {
				reason = "temp_failure"
			}
			if !s.retryAfter(ctx, deadline, attempt, reason, opLog) {
				metrics.KVOperationsTotal.WithLabelValues(opcodeName, reason).Inc()
				return result(status, frame, resp, statusError(status))
			}
			continue

		default:
			metrics.KVOperationsTotal.WithLabelValues(opcodeName, "ok").Inc()
			return result(status, frame, resp, nil)
		}
	}
}

// retryAfter sleeps the exponential backoff for attempt if the deadline
// allows it, returning false when the caller should give up.
func (s *Service) retryAfter(ctx context.Context, deadline time.Time, attempt int, reason string, opLog zerolog.Logger) bool {
	shift := attempt
	if shift > 16 {
		shift = 16
	}
	sleep := s.cfg.retrySleep() * time.Duration(uint64(1)<<uint(shift))
	if time.Now().Add(sleep).After(deadline) {
		return false
	}
	metrics.RetriesTotal.WithLabelValues(reason).Inc()
	opLog.Debug().Str("reason", reason).Dur("backoff", sleep).Msg("retrying operation")
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) send(ctx context.Context, frame *types.OperationFrame) (*types.OperationFrame, error) {
	if s.mux != nil {
		return s.mux.send(ctx, frame)
	}
	return s.sendPooled(ctx, frame)
}

func (s *Service) sendPooled(ctx context.Context, frame *types.OperationFrame) (*types.OperationFrame, error) {
	conn, err := s.cfg.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	frame.Opaque = nextPooledOpaque()
	if err := conn.Write(memdproto.EncodeRequest(frame)); err != nil {
		s.cfg.Pool.Discard(conn)
		return nil, err
	}
	resp, err := memdproto.ReadFrame(conn.Conn())
	if err != nil {
		s.cfg.Pool.Discard(conn)
		return nil, err
	}
	s.cfg.Pool.Release(conn)
	return resp, nil
}

func result(status types.Status, req, resp *types.OperationFrame, err error) types.Result {
	r := types.Result{
		Success: err == nil && status == types.StatusSuccess,
		Status:  status,
		Err:     err,
	}
	if resp != nil {
		r.CAS = resp.CAS
		r.Value = resp.Value
	}
	return r
}

func statusError(status types.Status) error {
	switch status {
	case types.StatusBusy:
		return cberr.ErrServerBusy
	case types.StatusTemporaryFailure:
		return cberr.ErrTemporaryFail
	case types.StatusKeyNotFound:
		return cberr.ErrKeyNotFound
	case types.StatusKeyExists:
		return cberr.ErrKeyExists
	case types.StatusValueTooLarge:
		return cberr.ErrValueTooLarge
	case types.StatusNotStored:
		return cberr.ErrNotStored
	case types.StatusAuthError:
		return cberr.ErrSASLRejected
	case types.StatusUnknownCommand:
		return cberr.ErrUnknownCommand
	case types.StatusOutOfMemory:
		return cberr.ErrOutOfMemory
	case types.StatusInternalError:
		return cberr.ErrInternalError
	default:
		return nil
	}
}
