package connpool

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
)

// Feature is a HELLO-negotiable connection capability (spec §4.3).
type Feature uint16

const (
	FeatureTCPNoDelay         Feature = 0x03
	FeatureErrorMap           Feature = 0x07
	FeatureSelectBucket       Feature = 0x08
	FeatureSnappy             Feature = 0x0a
	FeatureDatatype           Feature = 0x0b
	FeatureTracing            Feature = 0x19
	FeatureEnhancedDurability Feature = 0x17
	FeatureSubdocXattr        Feature = 0x06
)

var requestedFeatures = []Feature{
	FeatureTCPNoDelay,
	FeatureErrorMap,
	FeatureSelectBucket,
	FeatureSnappy,
	FeatureDatatype,
	FeatureTracing,
	FeatureEnhancedDurability,
	FeatureSubdocXattr,
}

const userAgent = "cbcore/1.0"

// bringUp drives a freshly dialed Connection through HELLO, error-map
// caching, and SASL authentication (spec §4.3).
func bringUp(ctx context.Context, cfg Config, c *Connection) error {
	nodeLog := log.WithNode(cfg.Endpoint)

	if err := sayHello(c); err != nil {
		return err
	}
	if c.Features[FeatureErrorMap] {
		if em, err := fetchErrorMap(c); err == nil {
			c.ErrorMap = em
		}
	}

	mechanisms, err := listMechanisms(c)
	if err != nil {
		return err
	}
	mech := selectMechanism(mechanisms, cfg.ForceSaslPlain)
	nodeLog.Info().Str("mechanism", string(mech)).Msg("negotiated sasl mechanism")

	if cfg.EnhancedAuth {
		if err := authenticate(c, mech, cfg.Bucket.Name, cfg.Bucket.Password); err != nil {
			return err
		}
		if err := selectBucket(c, cfg.Bucket.Name); err != nil {
			return err
		}
	} else {
		if err := authenticate(c, mech, cfg.Bucket.Name, cfg.Bucket.Password); err != nil {
			return err
		}
	}
	c.Authenticated = true
	return nil
}

func sayHello(c *Connection) error {
	value := make([]byte, len(requestedFeatures)*2)
	for i, f := range requestedFeatures {
		binary.BigEndian.PutUint16(value[i*2:], uint16(f))
	}

	req := &types.OperationFrame{
		Opcode: byte(memdproto.OpHello),
		Opaque: c.nextOpaque(),
		Key:    []byte(userAgent),
		Value:  value,
	}
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		return fmt.Errorf("connpool: hello write: %w", err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("connpool: hello read: %w", err)
	}

	c.Features = make(map[Feature]bool, len(resp.Value)/2)
	for i := 0; i+1 < len(resp.Value); i += 2 {
		c.Features[Feature(binary.BigEndian.Uint16(resp.Value[i:]))] = true
	}
	return nil
}

func fetchErrorMap(c *Connection) (*memdproto.ErrorMap, error) {
	req := &types.OperationFrame{
		Opcode: byte(memdproto.OpGetErrorMap),
		Opaque: c.nextOpaque(),
		Value:  []byte{0x00, 0x02}, // requested error-map version
	}
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		return nil, fmt.Errorf("connpool: errormap write: %w", err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("connpool: errormap read: %w", err)
	}
	return memdproto.ParseErrorMap(resp.Value)
}

func selectBucket(c *Connection, bucket string) error {
	req := &types.OperationFrame{
		Opcode: byte(memdproto.OpSelectBucket),
		Opaque: c.nextOpaque(),
		Key:    []byte(bucket),
	}
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		return fmt.Errorf("connpool: select bucket write: %w", err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("connpool: select bucket read: %w", err)
	}
	if memdproto.Classify(memdproto.WireStatus(resp.VBucket)) != types.StatusSuccess {
		return fmt.Errorf("connpool: select bucket %q rejected, status 0x%04x", bucket, resp.VBucket)
	}
	return nil
}

func noOpFrame(opaque uint32) *types.OperationFrame {
	return &types.OperationFrame{Opcode: byte(memdproto.OpNoOp), Opaque: opaque}
}
