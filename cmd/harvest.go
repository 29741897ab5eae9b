package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/app"
	"github.com/JakeFAU/sports-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/sports-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/sports-harvester/internal/fetcher/httpstream"
	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/limiter"
	"github.com/JakeFAU/sports-harvester/internal/metrics"
	"github.com/JakeFAU/sports-harvester/internal/policy/ratelimit"
)

func newPacer(cfg config.Config) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RPS, Burst: cfg.HTTP.Burst})
}

func newDocumentFetcher(cfg config.Config, pacer *ratelimit.Limiter) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	}, pacer)
}

func newStreamFetcher(cfg config.Config, pacer *ratelimit.Limiter) *httpstream.Fetcher {
	return httpstream.New(httpstream.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, collyfetcher.NewHTTPTransport(), pacer)
}

// newGate builds a limiter reporting its in-flight count under name.
func newGate(name string, capacity int) (*limiter.Limiter, error) {
	gate, err := limiter.New(capacity, limiter.WithGauge(metrics.LimiterGauge(name)))
	if err != nil {
		return nil, fmt.Errorf("%s limiter: %w", name, err)
	}
	return gate, nil
}

// runHarvest drives units through proc, logs the summary, and writes the
// report when one is configured. The returned error wraps
// harvest.ErrUnitsFailed when any unit failed.
func runHarvest(ctx context.Context, a *app.App, name string, gate harvest.Gate, proc harvest.UnitProcessor, units []harvest.WorkUnit) error {
	logger := a.Logger().Named(name)
	coord := harvest.NewCoordinator(gate, proc,
		harvest.WithLogger(logger),
		harvest.WithEmitter(a.Emitter()),
		harvest.WithName(name),
	)
	logger.Info("harvest starting",
		zap.String("run_id", coord.RunID().String()),
		zap.Int("units", len(units)),
	)

	summary := coord.Run(ctx, units)
	summary.Log(logger)

	if path := a.Config().Harvest.ReportPath; path != "" {
		if err := summary.WriteReport(path); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		logger.Info("report written", zap.String("path", path))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("harvest interrupted: %w", err)
	}
	return summary.Err()
}
