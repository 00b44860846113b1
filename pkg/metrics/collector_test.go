package metrics

import (
	"testing"
	"time"

	"github.com/latticekv/cbcore/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	nodes    []*types.Node
	revision uint64
}

func (f *fakeSource) Nodes() []*types.Node { return f.nodes }
func (f *fakeSource) Revision() uint64     { return f.revision }

func TestCollectorSamplesNodeAndRevisionGauges(t *testing.T) {
	up := types.NewNode("a:11210", "a", types.Ports{}, types.CapData)
	down := types.NewNode("b:11210", "b", types.Ports{}, types.CapData)
	down.SetDown(true)

	src := &fakeSource{nodes: []*types.Node{up, down}, revision: 7}
	c := NewCollector(src, 20*time.Millisecond)
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ConfigRevision) == 7
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, float64(0), testutil.ToFloat64(NodeDown.WithLabelValues(up.Endpoint)))
	require.Equal(t, float64(1), testutil.ToFloat64(NodeDown.WithLabelValues(down.Endpoint)))
}
