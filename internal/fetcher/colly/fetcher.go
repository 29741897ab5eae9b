// Package collyfetcher fetches top-level documents with gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps buffered documents in bytes; 0 means unlimited.
	MaxBodySize int
	// Headers are added to every request.
	Headers http.Header
}

// Pacer delays a request until its host may be contacted.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements harvest.Fetcher using a Colly collector. Documents are
// buffered in full, which suits scoreboards and team pages but not large
// child payloads.
type Fetcher struct {
	cfg           Config
	pacer         Pacer
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. pacer may be nil.
func New(cfg Config, pacer Pacer) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.WithTransport(NewHTTPTransport())
	// Clones share the backend client; the timeout is set only here.
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{
		cfg:           cfg,
		pacer:         pacer,
		baseCollector: c,
	}
}

// visit captures what the collector hooks observed for one request.
type visit struct {
	status int
	body   []byte
	err    error
}

// Fetch issues one GET for url. Only status 200 is a success.
func (f *Fetcher) Fetch(ctx context.Context, url string) (harvest.FetchOutcome, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, url); err != nil {
			return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Err: err}
		}
	}
	start := time.Now()
	var v visit
	collector := f.buildCollector(&v)
	err := f.runCollector(ctx, collector, url)
	metrics.ObserveFetch(metrics.KindDocument, v.status, time.Since(start))
	return classify(url, v, err)
}

func (f *Fetcher) buildCollector(v *visit) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	f.configureCollectorHooks(collector, v)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, v *visit) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, value := range values {
				r.Headers.Add(key, value)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		v.status = r.StatusCode
		v.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			v.status = r.StatusCode
		}
		v.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// colly cannot see ctx, so the abandoned Visit runs until the request
		// timeout set in New.
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func classify(url string, v visit, visitErr error) (harvest.FetchOutcome, error) {
	switch {
	case v.status != 0 && v.status != http.StatusOK:
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Status: v.status}
	case visitErr != nil:
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Status: v.status, Err: visitErr}
	case v.err != nil:
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Status: v.status, Err: v.err}
	case v.status == 0:
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Err: fmt.Errorf("no response received")}
	}
	return harvest.FetchOutcome{
		URL:    url,
		Status: v.status,
		Body:   io.NopCloser(bytes.NewReader(v.body)),
	}, nil
}

// NewHTTPTransport returns the pooled transport shared by the fetchers.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
