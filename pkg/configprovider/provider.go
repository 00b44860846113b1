package configprovider

import (
	"context"
	"time"

	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/connpool"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Config configures a Provider for one cluster.
type Config struct {
	View *clusterview.ClusterView
	Cfg  *cbconfig.ClusterConfig

	// BootstrapHost is substituted for the "$HOST" placeholder nodes use
	// to refer to the address the client actually dialed.
	BootstrapHost string

	// ManagementURL, when set, enables the HTTP streaming loop and is the
	// source RefreshNow falls back to when CCCP is disabled or fails.
	ManagementURL string

	// Dial acquires (or opens a scratch) connpool.Connection on some
	// live node for a CCCP fetch. Supplied by the caller that knows the
	// current node roster; nil disables CCCP.
	Dial func(ctx context.Context) (*connpool.Connection, func(), error)
}

// Provider drives topology documents from CCCP/HTTP/poll sources into
// cfg.View.Replace, deduplicating concurrent fetch requests triggered by
// a burst of NotMyVBucket responses (spec §4.5).
type Provider struct {
	cfg Config

	group  singleflight.Group
	stopCh chan struct{}
}

// New constructs a Provider. Call Start to begin the background poll (and
// HTTP stream, if configured); RefreshNow can be called independently,
// e.g. from an ioservice.Config.OnNotMyVBucket hook.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, stopCh: make(chan struct{})}
}

// Start begins the background reconfig sources. It returns immediately;
// sources run until Stop is called.
func (p *Provider) Start(ctx context.Context) {
	if p.cfg.ManagementURL != "" {
		go p.streamLoop(ctx)
	}
	if p.cfg.Cfg.ConfigPollEnabled {
		go p.pollLoop(ctx)
	}
}

// Stop halts all background sources.
func (p *Provider) Stop() {
	close(p.stopCh)
}

// RefreshNow triggers a single out-of-band fetch, collapsing concurrent
// callers into one in-flight request (spec §4.5, NotMyVBucket-triggered
// refresh). The topology document embedded in a NotMyVBucket reply, if
// the caller already has one, should go through ApplyDocument directly
// instead — RefreshNow is for callers with only a staleness signal.
func (p *Provider) RefreshNow(ctx context.Context) error {
	_, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return nil, p.refreshOnce(ctx)
	})
	return err
}

// ApplyDocument parses a topology document obtained out-of-band (e.g.
// embedded in a NotMyVBucket response body) and applies it if newer.
func ApplyDocument(view *clusterview.ClusterView, body []byte, bootstrapHost string, useTLS bool) error {
	doc, err := ParseDocument(body, bootstrapHost, useTLS)
	if err != nil {
		return err
	}
	if view.Replace(doc) {
		metrics.ConfigFetchesTotal.WithLabelValues("embedded", "applied").Inc()
	}
	return nil
}

func (p *Provider) refreshOnce(ctx context.Context) error {
	if p.cfg.Dial != nil {
		if doc, err := p.fetchCCCP(ctx); err == nil {
			return p.apply(doc, "cccp")
		}
	}
	if p.cfg.ManagementURL != "" {
		client := newStreamClient(p.cfg.ManagementURL, p.cfg.BootstrapHost, p.cfg.Cfg.UseSsl)
		doc, err := client.pollOnce(ctx)
		if err != nil {
			return err
		}
		return p.apply(doc, "http")
	}
	return nil
}

func (p *Provider) fetchCCCP(ctx context.Context) (*clusterview.Topology, error) {
	conn, release, err := p.cfg.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return FetchCCCP(conn, p.cfg.BootstrapHost, p.cfg.Cfg.UseSsl)
}

func (p *Provider) apply(doc *clusterview.Topology, source string) error {
	applied := p.cfg.View.Replace(doc)
	outcome := "stale"
	if applied {
		outcome = "applied"
	}
	metrics.ConfigFetchesTotal.WithLabelValues(source, outcome).Inc()
	if applied {
		log.WithService("configprovider").Info().
			Uint64("revision", doc.Revision).
			Str("source", source).
			Msg("applied new topology")
	}
	return nil
}

func (p *Provider) streamLoop(ctx context.Context) {
	streamLog := log.WithService("mgmt-stream")
	client := newStreamClient(p.cfg.ManagementURL, p.cfg.BootstrapHost, p.cfg.Cfg.UseSsl)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		err := client.stream(ctx, func(doc *clusterview.Topology) {
			_ = p.apply(doc, "http-stream")
		})
		if err != nil {
			streamLog.Warn().Err(err).Msg("management stream disconnected, reconnecting")
		}
		select {
		case <-time.After(time.Second):
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pollLoop drives the periodic CCCP/HTTP fallback, floored at
// ConfigPollCheckFloor (spec §4.5, "Poll").
func (p *Provider) pollLoop(ctx context.Context) {
	interval := p.cfg.Cfg.ConfigPollInterval
	if interval < p.cfg.Cfg.ConfigPollCheckFloor {
		interval = p.cfg.Cfg.ConfigPollCheckFloor
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.RefreshNow(ctx); err != nil {
				log.WithService("configprovider").Debug().Err(err).Msg("periodic refresh failed")
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
