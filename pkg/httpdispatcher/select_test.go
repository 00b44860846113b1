package httpdispatcher

import (
	"testing"
	"time"

	"github.com/latticekv/cbcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func bag(uris ...string) []*types.FailureCountingUri {
	out := make([]*types.FailureCountingUri, len(uris))
	for i, u := range uris {
		out[i] = &types.FailureCountingUri{URI: u}
	}
	return out
}

func TestSelectURIRoundRobinsAcrossCalls(t *testing.T) {
	b := bag("http://a:8093", "http://b:8093", "http://c:8093")
	var ctr uint64

	seen := make([]string, 3)
	for i := range seen {
		u := selectURI(types.ServiceQuery, b, &ctr, 2, time.Minute)
		seen[i] = u.URI
	}
	require.Equal(t, []string{"http://a:8093", "http://b:8093", "http://c:8093"}, seen)
}

func TestSelectURISkipsUnhealthyUntilAllFail(t *testing.T) {
	b := bag("http://a:8093", "http://b:8093")
	b[0].RecordFailure(time.Now())
	b[0].RecordFailure(time.Now())
	b[0].RecordFailure(time.Now())

	var ctr uint64
	u := selectURI(types.ServiceQuery, b, &ctr, 2, time.Minute)
	require.Equal(t, "http://b:8093", u.URI, "unhealthy uri must be skipped while a healthy one exists")
}

func TestSelectURIFailsOpenWhenAllUnhealthy(t *testing.T) {
	b := bag("http://a:8093", "http://b:8093")
	for _, u := range b {
		u.RecordFailure(time.Now())
		u.RecordFailure(time.Now())
		u.RecordFailure(time.Now())
	}

	var ctr uint64
	u := selectURI(types.ServiceQuery, b, &ctr, 2, time.Minute)
	require.NotNil(t, u, "fail-open must still return a uri rather than nil")
	require.True(t, b[0].Healthy(2, time.Minute), "fail-open must reset counters")
	require.True(t, b[1].Healthy(2, time.Minute))
}

func TestSelectURIReturnsNilForEmptyBag(t *testing.T) {
	var ctr uint64
	require.Nil(t, selectURI(types.ServiceViews, nil, &ctr, 2, time.Minute))
}

func TestSelectURIRandomForNonRoundRobinService(t *testing.T) {
	b := bag("http://a:8094", "http://b:8094")
	var ctr uint64
	for i := 0; i < 20; i++ {
		u := selectURI(types.ServiceSearch, b, &ctr, 2, time.Minute)
		require.Contains(t, []string{"http://a:8094", "http://b:8094"}, u.URI)
	}
}
