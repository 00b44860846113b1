package ioservice

import (
	"sync"
	"time"

	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/metrics"
	"github.com/latticekv/cbcore/pkg/types"
)

// errorCounter implements the per-node health rule from spec §4.4:
// transport errors within a rolling window of length `interval` are
// counted against `threshold`; breaching it marks the node down.
type errorCounter struct {
	mu          sync.Mutex
	threshold   int
	interval    time.Duration
	count       int
	windowStart time.Time
	node        *types.Node
}

func newErrorCounter(threshold int, interval time.Duration, node *types.Node) *errorCounter {
	if threshold <= 0 {
		threshold = 10
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &errorCounter{threshold: threshold, interval: interval, node: node, windowStart: time.Now()}
}

func (e *errorCounter) record() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if now.Sub(e.windowStart) > e.interval {
		e.count = 0
		e.windowStart = now
	}
	e.count++
	if e.count >= e.threshold && e.node != nil && !e.node.Down() {
		e.node.SetDown(true)
		metrics.NodeDown.WithLabelValues(e.node.Endpoint).Set(1)
		log.WithNode(e.node.Endpoint).Warn().
			Int("errors", e.count).
			Dur("window", e.interval).
			Msg("node exceeded io error threshold, quarantining")
	}
}
