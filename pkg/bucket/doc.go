/*
Package bucket is the application-facing facade (spec §4, "Bucket
Facade"): it accepts key/value operations, consults the active
ClusterView's key mapper to find the owning node, forwards the request
to that node's IO service, and retries the small set of conditions that
mean the client's routing table is stale rather than the operation
itself having failed.

A Bucket owns no network resources directly. It is handed a
*clusterview.ClusterView that a Provider keeps current; that view is
built with this package's ResourceFactory, which creates the per-node
connection pool and IO service the first time a node's endpoint is seen.
*/
package bucket
