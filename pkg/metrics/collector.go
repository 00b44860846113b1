package metrics

import (
	"time"

	"github.com/latticekv/cbcore/pkg/types"
)

// ClusterSource is the slice of ClusterView a Collector needs. It is
// defined here rather than imported to keep metrics free of a dependency
// on clusterview, mirroring the layering the rest of the router uses to
// avoid import cycles between low-level and orchestration packages.
type ClusterSource interface {
	Nodes() []*types.Node
	Revision() uint64
}

// Collector periodically samples gauge-shaped state (node up/down,
// topology revision) that has no natural "event" to hang a direct metric
// update on. Counters and histograms (IO errors, operation latency,
// retries) are updated inline by the packages that observe them.
type Collector struct {
	source ClusterSource
	period time.Duration
	stopCh chan struct{}
}

// NewCollector creates a Collector sampling source every period.
func NewCollector(source ClusterSource, period time.Duration) *Collector {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &Collector{source: source, period: period, stopCh: make(chan struct{})}
}

// Start begins collecting metrics in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.period)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	ConfigRevision.Set(float64(c.source.Revision()))
}

func (c *Collector) collectNodeMetrics() {
	nodes := c.source.Nodes()

	up, down := 0, 0
	for _, n := range nodes {
		endpoint := n.Endpoint
		if n.Down() {
			down++
			NodeDown.WithLabelValues(endpoint).Set(1)
		} else {
			up++
			NodeDown.WithLabelValues(endpoint).Set(0)
		}
	}
	NodesTotal.WithLabelValues("up").Set(float64(up))
	NodesTotal.WithLabelValues("down").Set(float64(down))
}
