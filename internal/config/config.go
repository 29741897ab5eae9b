// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Harvest     HarvestConfig     `mapstructure:"harvest"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Gameday     GamedayConfig     `mapstructure:"gameday"`
	Odds        OddsConfig        `mapstructure:"odds"`
	Projections ProjectionsConfig `mapstructure:"projections"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the fetch clients.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// MaxBodyBytes caps buffered top-level documents; 0 is unlimited.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
	// RPS paces requests per host; 0 disables pacing.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// HarvestConfig governs the coordinator.
type HarvestConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// ChildConcurrency caps child fetches across the run; 0 is unbounded.
	ChildConcurrency int    `mapstructure:"child_concurrency"`
	OutputRoot       string `mapstructure:"output_root"`
	// ReportPath receives the JSON run summary when set.
	ReportPath string `mapstructure:"report_path"`
}

// StorageConfig selects and tunes the StreamWriter.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	ChunkBytes       int    `mapstructure:"chunk_bytes"`
	KeepPartial      bool   `mapstructure:"keep_partial"`
	GCSBucket        string `mapstructure:"gcs_bucket"`
	Prefix           string `mapstructure:"prefix"`
	UploadChunkBytes int    `mapstructure:"upload_chunk_bytes"`
}

// MetricsConfig controls the /metrics listener; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LedgerConfig points at the SQLite run ledger; an empty Path disables it.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// GamedayConfig holds the day range and feed location. An empty End means
// today.
type GamedayConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Start     string `mapstructure:"start"`
	End       string `mapstructure:"end"`
	Extractor string `mapstructure:"extractor"`
}

// OddsConfig holds the sport and season range.
type OddsConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Sport       string `mapstructure:"sport"`
	Begin       int    `mapstructure:"begin"`
	End         int    `mapstructure:"end"`
	Concurrency int    `mapstructure:"concurrency"`
}

// ProjectionsConfig controls the browser-rendered projections page.
type ProjectionsConfig struct {
	URL               string `mapstructure:"url"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis      int    `mapstructure:"settle_ms"`
}

// Option customizes Load.
type Option func(*viper.Viper) error

// WithFlags binds flags to config keys so that a flag set on the command line
// wins over env, file, and defaults. bindings maps flag name to key.
func WithFlags(flags *pflag.FlagSet, bindings map[string]string) Option {
	return func(v *viper.Viper) error {
		for name, key := range bindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		return nil
	}
}

// Load builds a Config from defaults, an optional file, HARVEST_* env vars,
// and bound flags.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "sports-harvester/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("http.rps", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("harvest.concurrency", 15)
	v.SetDefault("harvest.child_concurrency", 45)
	v.SetDefault("harvest.output_root", "data")
	v.SetDefault("harvest.report_path", "")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.chunk_bytes", 1024)
	v.SetDefault("storage.keep_partial", false)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.upload_chunk_bytes", 0)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("ledger.path", "")
	v.SetDefault("gameday.base_url", "http://gd2.mlb.com/components/game/mlb")
	v.SetDefault("gameday.start", "4/3/2018")
	v.SetDefault("gameday.end", "")
	v.SetDefault("gameday.extractor", "xpath")
	v.SetDefault("odds.base_url", "https://www.covers.com")
	v.SetDefault("odds.sport", "nfl")
	v.SetDefault("odds.begin", 2016)
	v.SetDefault("odds.end", 2017)
	v.SetDefault("odds.concurrency", 30)
	v.SetDefault("projections.url", "https://rotogrinders.com/projected-stats?site=draftkings&sport=nba")
	v.SetDefault("projections.nav_timeout_seconds", 45)
	v.SetDefault("projections.settle_ms", 500)
}

// Validate enforces required values and reasonable limits. Per-command
// inputs such as date ranges are checked by the command that uses them.
func (c Config) Validate() error {
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.ChildConcurrency < 0 {
		return fmt.Errorf("harvest.child_concurrency must be >= 0")
	}
	if strings.TrimSpace(c.Harvest.OutputRoot) == "" {
		return fmt.Errorf("harvest.output_root is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RPS < 0 {
		return fmt.Errorf("http.rps must be >= 0")
	}
	if c.Storage.ChunkBytes <= 0 {
		return fmt.Errorf("storage.chunk_bytes must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendLocal, BackendGCS, c.Storage.Backend)
	}
	if c.Odds.Concurrency <= 0 {
		return fmt.Errorf("odds.concurrency must be > 0")
	}
	if c.Projections.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("projections.nav_timeout_seconds must be > 0")
	}
	return nil
}

// FetchTimeout is the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the browser navigation deadline.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Projections.NavTimeoutSeconds) * time.Second
}

// Settle is how long the browser waits for scripts after the body is ready.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Projections.SettleMillis) * time.Millisecond
}
