package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/latticekv/cbcore/pkg/bucket"
	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/configprovider"
	"github.com/spf13/cobra"
)

// session bundles the long-lived pieces a CLI invocation needs: a
// ClusterView kept current by a configprovider.Provider, and a Bucket
// facade layered on top once the first topology document has arrived.
type session struct {
	view     *clusterview.ClusterView
	provider *configprovider.Provider
	bucket   *bucket.Bucket
	cancel   context.CancelFunc
}

func (s *session) Close() {
	s.provider.Stop()
	s.cancel()
	s.view.Close()
}

func loadConfig(cmd *cobra.Command) (*cbconfig.ClusterConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := cbconfig.Default()
	if path != "" {
		loaded, err := cbconfig.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	servers, _ := cmd.Flags().GetStringSlice("server")
	if len(servers) > 0 {
		cfg.Servers = servers
	}
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	bucketName, _ := cmd.Flags().GetString("bucket")
	if username != "" || password != "" || bucketName != "" {
		cfg.Buckets = []cbconfig.BucketCredentials{{Name: bucketName, Password: password}}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cbcore: invalid configuration: %w", err)
	}
	return cfg, nil
}

func bootstrapHost(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("cbcore: parse server url %q: %w", server, err)
	}
	host := u.Hostname()
	if host == "" {
		host = strings.TrimSuffix(server, "/")
	}
	return host, nil
}

// newSession bootstraps a ClusterView and Bucket for the configured
// cluster, blocking until a first topology document has been applied or
// the bootstrap timeout elapses.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("cbcore: no bootstrap server configured")
	}

	host, err := bootstrapHost(cfg.Servers[0])
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	bucketName, _ := cmd.Flags().GetString("bucket")

	var view *clusterview.ClusterView
	factory := bucket.ResourceFactory(cfg, func(body []byte) {
		_ = configprovider.ApplyDocument(view, body, host, cfg.UseSsl)
	})
	view = clusterview.New(factory)

	provider := configprovider.New(configprovider.Config{
		View:          view,
		Cfg:           cfg,
		BootstrapHost: host,
		ManagementURL: cfg.Servers[0] + "/pools/default/b/" + bucketName,
	})

	bootCtx, bootCancel := context.WithTimeout(ctx, 5*time.Second)
	defer bootCancel()
	if err := provider.RefreshNow(bootCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("cbcore: initial topology fetch failed: %w", err)
	}

	provider.Start(ctx)

	return &session{
		view:     view,
		provider: provider,
		bucket:   bucket.New(bucketName, view, cfg.VBucketRetrySleepTime),
		cancel:   cancel,
	}, nil
}
