/*
Package clusterview implements spec §4.2: the read-mostly snapshot of
cluster topology that every other component resolves nodes through.

# Reconfiguration

Replace implements the algorithm in spec §4.2 exactly: endpoints present
in both the old and new topology reuse their existing NodeResources
(connection pool + IO service, supplied by a ResourceFactory the owner
configures at construction); new endpoints get freshly-factoried
resources; endpoints absent from the new topology are swapped out and
their resources disposed asynchronously, never inline with the swap, so
an in-flight operation reading the old View never observes a half-torn-
down Node.

# Concurrency

ClusterView holds a sync.RWMutex. Readers (GetNodeByEndpoint,
GetRandomDataNode, GetKeyMapper, GetServiceURI) take the read lock only
long enough to copy a pointer to the current immutable View; they never
hold the lock across an I/O suspension point. Replace takes the write
lock only for the pointer swap itself — building the new View happens
before the lock is acquired.
*/
package clusterview
