package configprovider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/latticekv/cbcore/pkg/log"
)

// streamClient owns the HTTP client used for the management long-poll
// (spec §4.5, "HTTP streaming"). Grounded on pkg/health.HTTPChecker's
// context-aware http.Client usage.
type streamClient struct {
	client        *http.Client
	url           string
	bootstrapHost string
	useTLS        bool
}

func newStreamClient(url, bootstrapHost string, useTLS bool) *streamClient {
	return &streamClient{
		client:        &http.Client{}, // no overall timeout: the poll body is a long-lived stream
		url:           url,
		bootstrapHost: bootstrapHost,
		useTLS:        useTLS,
	}
}

// stream reads line-delimited topology documents from the management
// endpoint until ctx is cancelled or the connection drops, invoking
// onDoc for each one successfully parsed.
func (s *streamClient) stream(ctx context.Context, onDoc func(*clusterview.Topology)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("configprovider: build stream request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("configprovider: stream connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("configprovider: stream %s returned %d", s.url, resp.StatusCode)
	}

	streamLog := log.WithService("mgmt-stream")
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		doc, err := ParseDocument(line, s.bootstrapHost, s.useTLS)
		if err != nil {
			streamLog.Warn().Err(err).Msg("discarding malformed topology document")
			continue
		}
		onDoc(doc)
	}
	return scanner.Err()
}

// pollOnce issues a single GET against the management endpoint's
// non-streaming config document, used by the poll fallback.
func (s *streamClient) pollOnce(ctx context.Context) (*clusterview.Topology, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("configprovider: build poll request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("configprovider: poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("configprovider: poll %s returned %d", s.url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("configprovider: read poll body: %w", err)
	}
	return ParseDocument(body, s.bootstrapHost, s.useTLS)
}
