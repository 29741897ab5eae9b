// Package httpstream fetches child resources and hands back the live response
// body so it can be copied to storage in chunks.
package httpstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/metrics"
)

// Config controls the streaming client.
type Config struct {
	UserAgent string
	// Timeout bounds the whole exchange including the body read.
	Timeout time.Duration
}

// Pacer delays a request until its host may be contacted.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements harvest.Fetcher without buffering the body.
type Fetcher struct {
	client    *http.Client
	userAgent string
	pacer     Pacer
}

// New builds a Fetcher over transport. A nil transport uses
// http.DefaultTransport; pacer may be nil.
func New(cfg Config, transport http.RoundTripper, pacer Pacer) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Fetcher{
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		pacer:     pacer,
	}
}

// Fetch issues one GET. On success the caller owns outcome.Body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (harvest.FetchOutcome, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, url); err != nil {
			return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(metrics.KindChild, 0, time.Since(start))
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Err: err}
	}
	metrics.ObserveFetch(metrics.KindChild, resp.StatusCode, time.Since(start))
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Status: resp.StatusCode}
	}
	return harvest.FetchOutcome{URL: url, Status: resp.StatusCode, Body: resp.Body}, nil
}
