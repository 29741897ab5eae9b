package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Harvest.Concurrency)
	assert.Equal(t, 45, cfg.Harvest.ChildConcurrency)
	assert.Equal(t, "data", cfg.Harvest.OutputRoot)
	assert.Equal(t, 1024, cfg.Storage.ChunkBytes)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "xpath", cfg.Gameday.Extractor)
	assert.Equal(t, 30, cfg.Odds.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 45*time.Second, cfg.NavTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Settle())
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
logging:
  development: false
  level: debug
http:
  user_agent: test-agent
  timeout_seconds: 5
  rps: 2.5
  burst: 3
harvest:
  concurrency: 4
  child_concurrency: 0
  output_root: /tmp/out
  report_path: /tmp/out/report.json
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: raw
  chunk_bytes: 4096
gameday:
  start: 4/3/2018
  end: 4/5/2018
  extractor: css
odds:
  sport: nba
  begin: 2010
  end: 2012
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "test-agent", cfg.HTTP.UserAgent)
	assert.InDelta(t, 2.5, cfg.HTTP.RPS, 1e-9)
	assert.Equal(t, 4, cfg.Harvest.Concurrency)
	assert.Equal(t, 0, cfg.Harvest.ChildConcurrency)
	assert.Equal(t, "/tmp/out/report.json", cfg.Harvest.ReportPath)
	assert.Equal(t, BackendGCS, cfg.Storage.Backend)
	assert.Equal(t, "raw", cfg.Storage.Prefix)
	assert.Equal(t, 4096, cfg.Storage.ChunkBytes)
	assert.Equal(t, "4/3/2018", cfg.Gameday.Start)
	assert.Equal(t, "css", cfg.Gameday.Extractor)
	assert.Equal(t, "nba", cfg.Odds.Sport)
	assert.Equal(t, 2010, cfg.Odds.Begin)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HARVEST_HARVEST_CONCURRENCY", "7")
	t.Setenv("HARVEST_STORAGE_CHUNK_BYTES", "2048")
	t.Setenv("HARVEST_GAMEDAY_START", "5/1/2018")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Harvest.Concurrency)
	assert.Equal(t, 2048, cfg.Storage.ChunkBytes)
	assert.Equal(t, "5/1/2018", cfg.Gameday.Start)
}

func TestLoadFlagsWinOverEnv(t *testing.T) {
	t.Setenv("HARVEST_HARVEST_CONCURRENCY", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 15, "")
	flags.String("out", "data", "")
	flags.String("unbound", "", "")
	require.NoError(t, flags.Parse([]string{"--concurrency=3"}))

	cfg, err := Load("", WithFlags(flags, map[string]string{
		"concurrency": "harvest.concurrency",
		"out":         "harvest.output_root",
		"missing":     "harvest.report_path",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Harvest.Concurrency)
	assert.Equal(t, "data", cfg.Harvest.OutputRoot)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"concurrency":       func(c *Config) { c.Harvest.Concurrency = 0 },
		"child concurrency": func(c *Config) { c.Harvest.ChildConcurrency = -1 },
		"output root":       func(c *Config) { c.Harvest.OutputRoot = " " },
		"timeout":           func(c *Config) { c.HTTP.TimeoutSeconds = 0 },
		"rps":               func(c *Config) { c.HTTP.RPS = -1 },
		"chunk":             func(c *Config) { c.Storage.ChunkBytes = 0 },
		"backend":           func(c *Config) { c.Storage.Backend = "s3" },
		"gcs bucket":        func(c *Config) { c.Storage.Backend = BackendGCS },
		"odds concurrency":  func(c *Config) { c.Odds.Concurrency = 0 },
		"nav timeout":       func(c *Config) { c.Projections.NavTimeoutSeconds = 0 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	require.NoError(t, base.Validate())
}
