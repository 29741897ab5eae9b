// Package app initializes and holds long-lived services shared by every
// harvester command: logger, stream writer, progress hub, run ledger, and the
// metrics endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sports-harvester/internal/api"
	"github.com/JakeFAU/sports-harvester/internal/config"
	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/ledger"
	"github.com/JakeFAU/sports-harvester/internal/ledger/sqlite"
	"github.com/JakeFAU/sports-harvester/internal/logging"
	"github.com/JakeFAU/sports-harvester/internal/metrics"
	"github.com/JakeFAU/sports-harvester/internal/progress"
	"github.com/JakeFAU/sports-harvester/internal/progress/sinks"
	"github.com/JakeFAU/sports-harvester/internal/storage/gcs"
	"github.com/JakeFAU/sports-harvester/internal/storage/local"
)

// App holds the shared services for one CLI invocation.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	writer harvest.StreamWriter
	hub    *progress.Hub

	ledgerRepo *sqlite.Repository
	gcsClient  *storage.Client

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	gcsOptions []option.ClientOption
}

// Option customizes New.
type Option func(*options)

// WithLogger skips building a logger from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the progress collectors somewhere other than the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithGCSOptions passes client options to storage.NewClient.
func WithGCSOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOptions = append(o.gcsOptions, opts...) }
}

// New builds every service cfg asks for. It fails fast; anything opened
// before the failure is closed again.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if a.logger == nil {
		a.logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		zap.ReplaceGlobals(a.logger)
	}
	metrics.Init()

	if err := a.initWriter(ctx, o.gcsOptions); err != nil {
		return nil, err
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, err
	}
	hubSinks = append(hubSinks, promSink)
	if cfg.Ledger.Path != "" {
		repo, err := sqlite.New(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.ledgerRepo = repo
		hubSinks = append(hubSinks, sinks.NewLedgerSink(repo, a.logger.Named("ledger")))
		a.logger.Info("run ledger enabled", zap.String("path", cfg.Ledger.Path))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("hub")}, hubSinks...)

	if cfg.Metrics.Addr != "" {
		a.startMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

func (a *App) initWriter(ctx context.Context, gcsOptions []option.ClientOption) error {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx, gcsOptions...)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		writer, err := gcs.New(client, gcs.Config{
			Bucket:          a.cfg.Storage.GCSBucket,
			Prefix:          a.cfg.Storage.Prefix,
			ChunkSize:       a.cfg.Storage.ChunkBytes,
			UploadChunkSize: a.cfg.Storage.UploadChunkBytes,
		})
		if err != nil {
			return fmt.Errorf("create gcs writer: %w", err)
		}
		a.writer = writer
		a.logger.Info("using gcs storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
	default:
		a.writer = local.New(local.Config{
			ChunkSize:   a.cfg.Storage.ChunkBytes,
			KeepPartial: a.cfg.Storage.KeepPartial,
		})
	}
	return nil
}

func (a *App) startMetrics(addr string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopMetrics = cancel
	a.metricsDone = make(chan struct{})
	go func() {
		defer close(a.metricsDone)
		if err := metrics.Serve(ctx, addr, a.Handler(), a.logger.Named("metrics")); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Handler serves /metrics and /healthz, plus the run ledger API under
// /api/runs when a ledger is open.
func (a *App) Handler() http.Handler {
	if a.ledgerRepo == nil {
		return metrics.Router()
	}
	return metrics.Router(api.NewRunsHandler(a.ledgerRepo, a.logger.Named("api")).Routes)
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Writer returns the configured StreamWriter.
func (a *App) Writer() harvest.StreamWriter {
	return a.writer
}

// Emitter returns the progress hub.
func (a *App) Emitter() progress.Emitter {
	if a.hub == nil {
		return progress.NopEmitter{}
	}
	return a.hub
}

// Ledger returns the run ledger, or nil when none is configured.
func (a *App) Ledger() ledger.Repository {
	if a.ledgerRepo == nil {
		return nil
	}
	return a.ledgerRepo
}

// UsesLocalStorage reports whether targets land on the local filesystem.
func (a *App) UsesLocalStorage() bool {
	return a.gcsClient == nil
}

// Close drains the progress hub and then releases every service. It is safe
// to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.ledgerRepo != nil {
		if err := a.ledgerRepo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		<-a.metricsDone
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
