package httpdispatcher

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/latticekv/cbcore/pkg/types"
)

// roundRobin selection is used by Query and Analytics.
var roundRobinServices = map[types.Service]bool{
	types.ServiceQuery:     true,
	types.ServiceAnalytics: true,
}

// selectURI applies spec §4.6's selection policy over bag, using ctr for
// round-robin services. Returns nil if bag is empty.
func selectURI(svc types.Service, bag []*types.FailureCountingUri, ctr *uint64, threshold int, rehab time.Duration) *types.FailureCountingUri {
	if len(bag) == 0 {
		return nil
	}

	healthy := make([]*types.FailureCountingUri, 0, len(bag))
	for _, u := range bag {
		if u.Healthy(threshold, rehab) {
			healthy = append(healthy, u)
		}
	}
	pool := healthy
	if len(pool) == 0 {
		// Fail open: every URI unhealthy, try the full set and let a
		// fresh failure/success re-seed the counters.
		for _, u := range bag {
			u.RecordSuccess()
		}
		pool = bag
	}

	if roundRobinServices[svc] {
		idx := atomic.AddUint64(ctr, 1) - 1
		return pool[idx%uint64(len(pool))]
	}
	return pool[rand.Intn(len(pool))]
}
