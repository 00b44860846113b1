/*
Package metrics provides Prometheus metrics collection and exposition for
the router.

Metrics split into two update styles. Counters and histograms that have a
natural event to hang off (an IO error, a completed operation, an HTTP
dispatch) are updated inline by the package that observes the event.
Gauges describing standing state with no single event (node up/down,
topology revision) are refreshed periodically by a Collector.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  connpool ──────▶ PoolSize, PoolInUse, PoolWaitDuration   │
	│  ioservice ─────▶ IOErrorsTotal, KVOperationsTotal,       │
	│                   KVOperationDuration, RetriesTotal,      │
	│                   OpaqueTableDepth                        │
	│  httpdispatcher ▶ HTTPURIFailuresTotal, HTTPURIHealthy,   │
	│                   HTTPRequestDuration                      │
	│  Collector ─────▶ NodesTotal, NodeDown, ConfigRevision    │
	│                   (sampled from a ClusterSource every tick)│
	│                                                            │
	│  All of the above register into the default Prometheus    │
	│  registry and are exposed via Handler() at /metrics.       │
	└────────────────────────────────────────────────────────┘

# Usage

	mux.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	res := svc.Execute(ctx, frame)
	timer.ObserveDurationVec(metrics.KVOperationDuration, opcodeName)

	collector := metrics.NewCollector(clusterView, 15*time.Second)
	collector.Start()
	defer collector.Stop()
*/
package metrics
