/*
Package configprovider produces the stream of topology documents that
drives pkg/clusterview.Replace (spec §4.5).

Three sources feed the same normalize-then-replace path, in priority
order: Carrier Publication (a GetClusterConfig opcode issued on a data
connection), HTTP long-poll streaming against the management port, and a
periodic poll floored by ConfigPollCheckFloor for deployments where
neither push mechanism is reachable. Every fetched document is handed to
Replace, which drops one whose revision does not exceed the current
ClusterView's.

Concurrent triggers — a burst of NotMyVBucket responses all naming the
same stale revision — are collapsed by a singleflight.Group so the
provider issues one fetch, not N, and fans the result out to every
caller that asked for it.
*/
package configprovider
