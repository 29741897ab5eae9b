// Package cmd defines the harvester CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/sports-harvester/internal/app"
	"github.com/JakeFAU/sports-harvester/internal/config"
	"github.com/JakeFAU/sports-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// configKeyAnnotation marks a flag with the config key it overrides.
const configKeyAnnotation = "harvest/config-key"

// browser renders JavaScript pages.
type browser interface {
	harvest.Fetcher
	Close()
}

// deps holds what tests replace.
type deps struct {
	appOptions []app.Option
	newBrowser func(cfg config.Config) (browser, error)
}

func defaultDeps() deps {
	return deps{newBrowser: newChromeBrowser}
}

func newChromeBrowser(cfg config.Config) (browser, error) {
	f, err := headless.NewChromedp(headless.Config{
		MaxParallel:       1,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		Settle:            cfg.Settle(),
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(d deps) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Fetch and persist sports data feeds with bounded concurrency.",
		Long: `harvest downloads hierarchical sports data: MLB gameday scoreboards and
their per-game documents, historical betting results, and daily projections.
Every run reports which units succeeded, which were partial, and which failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the App once flags are parsed; subcommands close it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, config.WithFlags(cmd.Flags(), flagBindings(cmd.Flags())))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := app.New(cmd.Context(), cfg, d.appOptions...)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml, or json)")
	flags.Int("concurrency", 15, "maximum units in flight")
	flags.Int("child-concurrency", 45, "maximum child fetches in flight across the run; 0 is unbounded")
	flags.String("out", "data", "output root")
	flags.String("report", "", "write the JSON run summary to this path")
	flags.String("storage", config.BackendLocal, "storage backend: local or gcs")
	flags.String("bucket", "", "GCS bucket when --storage=gcs")
	flags.Int("chunk-bytes", 1024, "copy chunk size")
	flags.String("user-agent", "", "User-Agent header")
	flags.Int("timeout", 30, "per-fetch timeout in seconds")
	flags.Float64("rps", 0, "per-host request rate; 0 disables pacing")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	flags.String("ledger", "", "record runs in this SQLite file")
	flags.String("log-level", "info", "log level")
	flags.Bool("log-dev", true, "human-readable development logging")
	bindFlags(flags, map[string]string{
		"concurrency":       "harvest.concurrency",
		"child-concurrency": "harvest.child_concurrency",
		"out":               "harvest.output_root",
		"report":            "harvest.report_path",
		"storage":           "storage.backend",
		"bucket":            "storage.gcs_bucket",
		"chunk-bytes":       "storage.chunk_bytes",
		"user-agent":        "http.user_agent",
		"timeout":           "http.timeout_seconds",
		"rps":               "http.rps",
		"metrics-addr":      "metrics.addr",
		"ledger":            "ledger.path",
		"log-level":         "logging.level",
		"log-dev":           "logging.development",
	})

	cmd.AddCommand(newGamedayCmd(), newOddsCmd(), newProjectionsCmd(d))
	return cmd
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultDeps()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "harvest:", err)
		os.Exit(1)
	}
}

// withApp resolves the App built by the root command and closes it once fn
// returns, so progress is flushed even when the run failed.
func withApp(fn func(ctx context.Context, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cerr := appInstance.Close(closeCtx); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd.Context(), appInstance)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := flags.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func flagBindings(flags *pflag.FlagSet) map[string]string {
	out := map[string]string{}
	flags.VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKeyAnnotation]; len(keys) == 1 {
			out[f.Name] = keys[0]
		}
	})
	return out
}
