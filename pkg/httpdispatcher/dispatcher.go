package httpdispatcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/log"
	"github.com/latticekv/cbcore/pkg/metrics"
	"github.com/latticekv/cbcore/pkg/types"
	"golang.org/x/time/rate"
)

// RequestBuilder constructs the HTTP request against the chosen base
// URI; callers append their service-specific path, query, and body.
type RequestBuilder func(ctx context.Context, baseURI string) (*http.Request, error)

// Dispatcher implements spec §4.6: URI selection plus failure accounting
// for the cluster's HTTP services.
type Dispatcher struct {
	view   *clusterview.ClusterView
	cfg    *cbconfig.ClusterConfig
	client *http.Client

	counters map[types.Service]*uint64
	limiter  *rate.Limiter

	stopCh chan struct{}
}

// New constructs a Dispatcher. client may be nil to use a default
// *http.Client with the cluster's configured request timeouts left to
// the caller's context deadline instead of a fixed client timeout,
// matching how the binary protocol path uses per-operation deadlines.
func New(view *clusterview.ClusterView, cfg *cbconfig.ClusterConfig, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		view:   view,
		cfg:    cfg,
		client: client,
		counters: map[types.Service]*uint64{
			types.ServiceViews:     new(uint64),
			types.ServiceQuery:     new(uint64),
			types.ServiceSearch:    new(uint64),
			types.ServiceAnalytics: new(uint64),
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the background rehab prober.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.rehabLoop(ctx)
}

// Stop halts the rehab prober.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
}

// Dispatch selects a URI for svc per policy, builds a request via
// build, executes it, and accounts the outcome against that URI's
// failure counter.
func (d *Dispatcher) Dispatch(ctx context.Context, svc types.Service, build RequestBuilder) (*http.Response, error) {
	bag := d.view.GetServiceURI(svc)
	u := selectURI(svc, bag, d.counters[svc], d.cfg.QueryFailedThreshold, d.cfg.RehabInterval)
	if u == nil {
		return nil, fmt.Errorf("httpdispatcher: %s: %w", svc, cberr.ErrNoAvailableNode)
	}

	svcLog := log.WithService(string(svc))
	req, err := build(ctx, u.URI)
	if err != nil {
		return nil, fmt.Errorf("httpdispatcher: build request: %w", err)
	}

	timer := metrics.NewTimer()
	resp, err := d.client.Do(req)
	timer.ObserveDurationVec(metrics.HTTPRequestDuration, string(svc))

	if err != nil {
		u.RecordFailure(time.Now())
		metrics.HTTPURIFailuresTotal.WithLabelValues(string(svc), u.URI).Inc()
		svcLog.Warn().Str("uri", u.URI).Err(err).Msg("request failed")
		return nil, fmt.Errorf("httpdispatcher: %w", err)
	}
	if resp.StatusCode >= 500 {
		u.RecordFailure(time.Now())
		metrics.HTTPURIFailuresTotal.WithLabelValues(string(svc), u.URI).Inc()
		svcLog.Warn().Str("uri", u.URI).Int("status", resp.StatusCode).Msg("server error")
		return resp, nil
	}
	u.RecordSuccess()
	return resp, nil
}

func (d *Dispatcher) rehabLoop(ctx context.Context) {
	interval := d.cfg.RehabInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.probeUnhealthy(ctx)
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// probeUnhealthy pings every currently-unhealthy URI across all
// services, throttled by limiter so a recovering node is not itself
// overloaded by rehab traffic (spec §4.6 "background ping").
func (d *Dispatcher) probeUnhealthy(ctx context.Context) {
	for _, svc := range []types.Service{types.ServiceViews, types.ServiceQuery, types.ServiceSearch, types.ServiceAnalytics} {
		for _, u := range d.view.GetServiceURI(svc) {
			if u.Healthy(d.cfg.QueryFailedThreshold, d.cfg.RehabInterval) {
				continue
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.probeOne(ctx, svc, u)
		}
	}
}

func (d *Dispatcher) probeOne(ctx context.Context, svc types.Service, u *types.FailureCountingUri) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URI, nil)
	if err != nil {
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 500 {
		u.RecordSuccess()
		metrics.HTTPURIHealthy.WithLabelValues(string(svc), u.URI).Set(1)
		log.WithService(string(svc)).Info().Str("uri", u.URI).Msg("uri rehabilitated")
	}
}
