package configprovider

import (
	"encoding/json"
	"fmt"

	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/keymapper"
	"github.com/latticekv/cbcore/pkg/types"
)

// rawDocument is the wire shape of a topology document, whether it
// arrived via GetClusterConfig or the management HTTP stream. Field
// names follow the terse style of the real carrier-publication format.
type rawDocument struct {
	Rev        uint64       `json:"rev"`
	BucketType string       `json:"bucketType"`
	Nodes      []rawNode    `json:"nodesExt"`
	VBucketMap *rawVBMap    `json:"vBucketServerMap,omitempty"`
	URIs       rawServiceURIs `json:"serviceUris,omitempty"`
}

type rawNode struct {
	Hostname string         `json:"hostname"`
	Services map[string]int `json:"services"`
}

type rawVBMap struct {
	NumReplicas int     `json:"numReplicas"`
	ServerList  []string `json:"serverList"`
	VBucketMap  [][]int  `json:"vBucketMap"`
}

type rawServiceURIs struct {
	Views      []string `json:"views,omitempty"`
	Query      []string `json:"query,omitempty"`
	Search     []string `json:"search,omitempty"`
	Analytics  []string `json:"analytics,omitempty"`
}

// Port keys recognized in a node's "services" map, plain and TLS.
const (
	svcKV         = "kv"
	svcKVTLS      = "kvSSL"
	svcViews      = "capi"
	svcViewsTLS   = "capiSSL"
	svcQuery      = "n1ql"
	svcQueryTLS   = "n1qlSSL"
	svcSearch     = "fts"
	svcSearchTLS  = "ftsSSL"
	svcAnalytics  = "cbas"
	svcAnalyticsTLS = "cbasSSL"
	svcMgmt       = "mgmt"
	svcMgmtTLS    = "mgmtSSL"
)

// ParseDocument decodes body into a Topology ready for
// clusterview.ClusterView.Replace. bootstrapHost replaces any "$HOST"
// placeholder a node entry uses for "this is the node I'm talking to"
// (spec §4.5 "Normalization"); useTLS selects the TLS or plain port set.
func ParseDocument(body []byte, bootstrapHost string, useTLS bool) (*clusterview.Topology, error) {
	var raw rawDocument
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("configprovider: parse document: %w", err)
	}

	nodes := make([]clusterview.NodeSpec, len(raw.Nodes))
	for i, rn := range raw.Nodes {
		host := rn.Hostname
		if host == "" || host == "$HOST" {
			host = bootstrapHost
		}
		ports := types.Ports{
			Data:          rn.Services[svcKV],
			DataTLS:       rn.Services[svcKVTLS],
			Views:         rn.Services[svcViews],
			ViewsTLS:      rn.Services[svcViewsTLS],
			Query:         rn.Services[svcQuery],
			QueryTLS:      rn.Services[svcQueryTLS],
			Search:        rn.Services[svcSearch],
			SearchTLS:     rn.Services[svcSearchTLS],
			Analytics:     rn.Services[svcAnalytics],
			AnalyticsTLS:  rn.Services[svcAnalyticsTLS],
			Management:    rn.Services[svcMgmt],
			ManagementTLS: rn.Services[svcMgmtTLS],
		}
		caps := capabilitiesFor(ports, useTLS)
		dataPort := ports.Data
		if useTLS {
			dataPort = ports.DataTLS
		}
		nodes[i] = clusterview.NodeSpec{
			Endpoint:     fmt.Sprintf("%s:%d", host, dataPort),
			Host:         host,
			Ports:        ports,
			Capabilities: caps,
		}
	}

	bucketType := clusterview.BucketCouchbase
	if raw.BucketType == "memcached" {
		bucketType = clusterview.BucketMemcached
	}

	table, err := buildPartitionTable(raw.VBucketMap, len(nodes), bucketType, nodes, useTLS)
	if err != nil {
		return nil, err
	}

	return &clusterview.Topology{
		Revision:   raw.Rev,
		BucketType: bucketType,
		Nodes:      nodes,
		Table:      table,
		ServiceURIs: map[types.Service][]string{
			types.ServiceViews:     raw.URIs.Views,
			types.ServiceQuery:     raw.URIs.Query,
			types.ServiceSearch:    raw.URIs.Search,
			types.ServiceAnalytics: raw.URIs.Analytics,
		},
	}, nil
}

func capabilitiesFor(p types.Ports, useTLS bool) types.Capability {
	var c types.Capability
	if (useTLS && p.DataTLS > 0) || (!useTLS && p.Data > 0) {
		c |= types.CapData
	}
	if (useTLS && p.ViewsTLS > 0) || (!useTLS && p.Views > 0) {
		c |= types.CapView
	}
	if (useTLS && p.QueryTLS > 0) || (!useTLS && p.Query > 0) {
		c |= types.CapQuery
	}
	if (useTLS && p.SearchTLS > 0) || (!useTLS && p.Search > 0) {
		c |= types.CapSearch
	}
	if (useTLS && p.AnalyticsTLS > 0) || (!useTLS && p.Analytics > 0) {
		c |= types.CapAnalytics
	}
	if (useTLS && p.ManagementTLS > 0) || (!useTLS && p.Management > 0) {
		c |= types.CapManagement
	}
	return c
}

// buildPartitionTable validates the vBucketMap's node indices against
// the node list (spec §4.5 "validates that every index referenced by the
// partition table is in range") and, for Memcached buckets, builds the
// ketama ring instead.
func buildPartitionTable(vb *rawVBMap, numNodes int, bucketType clusterview.BucketType, nodes []clusterview.NodeSpec, useTLS bool) (types.PartitionTable, error) {
	if bucketType == clusterview.BucketMemcached {
		endpoints := make([]keymapper.NodeEndpoint, len(nodes))
		for i, n := range nodes {
			port := n.Ports.Data
			if useTLS {
				port = n.Ports.DataTLS
			}
			endpoints[i] = keymapper.NodeEndpoint{Host: n.Host, Port: port}
		}
		return types.PartitionTable{Ring: keymapper.BuildRing(endpoints)}, nil
	}

	if vb == nil {
		return types.PartitionTable{}, nil
	}

	partitions := make([]types.Partition, len(vb.VBucketMap))
	for i, row := range vb.VBucketMap {
		if len(row) == 0 {
			return types.PartitionTable{}, fmt.Errorf("configprovider: vbucket %d has no owner entries", i)
		}
		primary := row[0]
		if primary >= numNodes {
			return types.PartitionTable{}, fmt.Errorf("configprovider: vbucket %d primary index %d out of range for %d nodes", i, primary, numNodes)
		}
		replicas := make([]int, 0, len(row)-1)
		for _, idx := range row[1:] {
			if idx >= numNodes {
				return types.PartitionTable{}, fmt.Errorf("configprovider: vbucket %d replica index %d out of range for %d nodes", i, idx, numNodes)
			}
			replicas = append(replicas, idx)
		}
		partitions[i] = types.Partition{ID: uint16(i), Primary: primary, Replicas: replicas}
	}

	return types.PartitionTable{
		P:          len(partitions),
		R:          vb.NumReplicas,
		Partitions: partitions,
	}, nil
}
