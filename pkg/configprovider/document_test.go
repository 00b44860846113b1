package configprovider

import (
	"testing"

	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/types"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
	"rev": 11,
	"bucketType": "membase",
	"nodesExt": [
		{"hostname": "$HOST", "services": {"kv": 11210, "mgmt": 8091}},
		{"hostname": "node-2.example.com", "services": {"kv": 11210, "mgmt": 8091}}
	],
	"vBucketServerMap": {
		"numReplicas": 1,
		"serverList": ["node-1:11210", "node-2:11210"],
		"vBucketMap": [[0, 1], [1, 0]]
	},
	"serviceUris": {
		"query": ["http://node-1:8093", "http://node-2:8093"]
	}
}`

func TestParseDocumentRewritesHostPlaceholder(t *testing.T) {
	topo, err := ParseDocument([]byte(sampleDoc), "node-1.example.com", false)
	require.NoError(t, err)
	require.Equal(t, uint64(11), topo.Revision)
	require.Equal(t, "node-1.example.com:11210", topo.Nodes[0].Endpoint)
	require.Equal(t, "node-2.example.com:11210", topo.Nodes[1].Endpoint)
}

func TestParseDocumentBuildsPartitionTable(t *testing.T) {
	topo, err := ParseDocument([]byte(sampleDoc), "node-1.example.com", false)
	require.NoError(t, err)
	require.Len(t, topo.Table.Partitions, 2)
	require.Equal(t, 0, topo.Table.Partitions[0].Primary)
	require.Equal(t, []int{1}, topo.Table.Partitions[0].Replicas)
}

func TestParseDocumentRejectsOutOfRangeIndex(t *testing.T) {
	doc := `{
		"rev": 1,
		"nodesExt": [{"hostname": "node-1", "services": {"kv": 11210}}],
		"vBucketServerMap": {"vBucketMap": [[5]]}
	}`
	_, err := ParseDocument([]byte(doc), "node-1", false)
	require.Error(t, err)
}

func TestParseDocumentMemcachedBuildsRing(t *testing.T) {
	doc := `{
		"rev": 1,
		"bucketType": "memcached",
		"nodesExt": [
			{"hostname": "node-1", "services": {"kv": 11210}},
			{"hostname": "node-2", "services": {"kv": 11210}}
		]
	}`
	topo, err := ParseDocument([]byte(doc), "node-1", false)
	require.NoError(t, err)
	require.Equal(t, clusterview.BucketMemcached, topo.BucketType)
	require.NotEmpty(t, topo.Table.Ring)
}

func TestParseDocumentSelectsTLSPorts(t *testing.T) {
	doc := `{
		"rev": 1,
		"nodesExt": [{"hostname": "node-1", "services": {"kv": 11210, "kvSSL": 11207}}]
	}`
	topo, err := ParseDocument([]byte(doc), "node-1", true)
	require.NoError(t, err)
	require.Equal(t, "node-1:11207", topo.Nodes[0].Endpoint)
	require.True(t, topo.Nodes[0].Capabilities.Has(types.CapData))
}
