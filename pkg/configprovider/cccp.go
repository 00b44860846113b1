package configprovider

import (
	"fmt"

	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
)

// FetchCCCP issues a GetClusterConfig opcode on conn and normalizes the
// response body into a Topology (spec §4.5, Carrier Publication).
func FetchCCCP(conn *connpool.Connection, bootstrapHost string, useTLS bool) (*clusterview.Topology, error) {
	req := &types.OperationFrame{Opcode: byte(memdproto.OpGetClusterConfig)}
	if err := conn.Write(memdproto.EncodeRequest(req)); err != nil {
		return nil, fmt.Errorf("configprovider: cccp write: %w", err)
	}
	resp, err := memdproto.ReadFrame(conn.Conn())
	if err != nil {
		return nil, fmt.Errorf("configprovider: cccp read: %w", err)
	}
	if memdproto.Classify(memdproto.WireStatus(resp.VBucket)) != types.StatusSuccess {
		return nil, fmt.Errorf("configprovider: cccp rejected, status 0x%04x", resp.VBucket)
	}
	return ParseDocument(resp.Value, bootstrapHost, useTLS)
}
