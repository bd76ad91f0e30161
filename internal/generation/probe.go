package generation

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProber checks asset reachability with a HEAD request, falling back to
// a ranged GET for storage backends that reject HEAD.
type HTTPProber struct {
	http *http.Client
}

// NewHTTPProber creates a prober with the given per-request timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{http: &http.Client{Timeout: timeout}}
}

// Probe returns nil once the URL answers with a success status.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe asset: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return p.probeGet(ctx, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe asset: storage returned %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPProber) probeGet(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe asset: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe asset: storage returned %d", resp.StatusCode)
	}
	return nil
}
