/*
Package ioservice is the per-node dispatcher over a connpool.Pool (spec
§4.4). It turns an OperationFrame into a Result, in one of two modes
selected by configuration:

  - Pooled: one Connection per in-flight operation. Acquire, write,
    read, release — concurrency is bounded by the pool's MaxSize.
  - Multiplexed: a single long-lived Connection carries many outstanding
    operations correlated by a 32-bit opaque. A dedicated receiver
    goroutine demultiplexes responses; writes are serialized by a mutex
    so the wire order matches submit order, which the server requires
    for same-key ordering guarantees (spec §5).

Both modes share the same retry loop: Busy, TemporaryFailure, and
transport errors against this node are retried locally with exponential
backoff capped by the operation's deadline. NotMyVBucket is never
retried here — Execute returns it as a tagged Result so the Bucket
Facade can re-resolve the owning node and resubmit, handing the embedded
topology document to the Config Provider first.

Per-node IO error counting lives here too: transport errors within a
rolling window push the node toward quarantine (types.Node.SetDown),
which the ClusterView's selection logic already honors.
*/
package ioservice
