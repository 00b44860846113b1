package bucket

import (
	"context"
	"crypto/tls"

	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/ioservice"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/types"
)

// nodeResources bundles the per-node connpool.Pool and ioservice.Service
// a Bucket borrows on every operation against that node. It satisfies
// clusterview.NodeResources so a ClusterView can own its lifecycle
// across reconfigurations.
type nodeResources struct {
	pool *connpool.Pool
	svc  *ioservice.Service
}

func (r *nodeResources) Dispose() {
	r.svc.Close()
	r.pool.Dispose()
}

// ResourceFactory builds the clusterview.ResourceFactory a Bucket
// installs on its ClusterView. onNotMyVBucket is invoked with the raw
// response body of any NotMyVBucket reply seen on the constructed node's
// IO service; cmd/cbcore supplies a closure that applies that body through
// configprovider.ApplyDocument, so a stale route is corrected from the
// very reply that exposed it, without the Bucket needing to thread a
// channel through every node.
func ResourceFactory(cfg *cbconfig.ClusterConfig, onNotMyVBucket func(body []byte)) clusterview.ResourceFactory {
	return func(node *types.Node) clusterview.NodeResources {
		tlsConfig := tlsConfigFor(cfg, node)

		var bucketCreds cbconfig.BucketCredentials
		if len(cfg.Buckets) > 0 {
			bucketCreds = cfg.Buckets[0]
		}

		pool := connpool.New(connpool.Config{
			Endpoint:             node.Endpoint,
			Host:                 node.Host,
			TLS:                  tlsConfig,
			Pool:                 cfg.Pool,
			Bucket:               bucketCreds,
			ForceSaslPlain:       cfg.ForceSaslPlain,
			EnableTCPKeepAlives:  cfg.EnableTcpKeepAlives,
			TCPKeepAliveTime:     cfg.TcpKeepAliveTime,
			TCPKeepAliveInterval: cfg.TcpKeepAliveInterval,
		})

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Pool.WaitTimeout)
		defer cancel()
		if err := pool.Initialize(ctx); err != nil {
			log.WithService("bucket").Warn().Str("endpoint", node.Endpoint).Err(err).
				Msg("pool warm-up failed, continuing with lazy connect")
		}

		mode := ioservice.ModeMultiplexed
		if cfg.UseConnectionPooling {
			mode = ioservice.ModePooled
		}

		svcCfg := ioservice.Config{
			Node:                  node,
			Pool:                  pool,
			Mode:                  mode,
			OperationLifespan:     cfg.OperationLifespan,
			VBucketRetrySleepTime: cfg.VBucketRetrySleepTime,
			IOErrorThreshold:      cfg.IOErrorThreshold,
			IOErrorCheckInterval:  cfg.IOErrorCheckInterval,
			OnNotMyVBucket:        onNotMyVBucket,
		}
		svc, err := ioservice.New(context.Background(), svcCfg)
		if err != nil && svcCfg.Mode == ioservice.ModeMultiplexed {
			log.WithService("bucket").Warn().Str("endpoint", node.Endpoint).Err(err).
				Msg("multiplexed connection failed, falling back to pooled mode")
			svcCfg.Mode = ioservice.ModePooled
			svc, err = ioservice.New(context.Background(), svcCfg)
		}
		if err != nil {
			log.WithService("bucket").Error().Str("endpoint", node.Endpoint).Err(err).
				Msg("io service construction failed, node will surface transport errors")
		}

		return &nodeResources{pool: pool, svc: svc}
	}
}

func tlsConfigFor(cfg *cbconfig.ClusterConfig, node *types.Node) *tls.Config {
	if !cfg.UseSsl {
		return nil
	}
	return &tls.Config{
		ServerName:         node.Host,
		InsecureSkipVerify: cfg.IgnoreRemoteCertificateNameMismatch,
		MinVersion:         tls.VersionTLS12,
	}
}
