package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sports-harvester/internal/config"
	"github.com/JakeFAU/sports-harvester/internal/ledger"
	"github.com/JakeFAU/sports-harvester/internal/ledger/sqlite"
	"github.com/JakeFAU/sports-harvester/internal/progress"
	"github.com/JakeFAU/sports-harvester/internal/storage/gcs"
	"github.com/JakeFAU/sports-harvester/internal/storage/local"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Harvest.OutputRoot = t.TempDir()
	return cfg
}

func TestNewLocalApp(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t),
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	assert.IsType(t, &local.Writer{}, a.Writer())
	assert.True(t, a.UsesLocalStorage())
	assert.Nil(t, a.Ledger())
	assert.NotNil(t, a.Emitter())
	assert.Equal(t, 1024, a.Config().Storage.ChunkBytes)
	require.NoError(t, a.Close(context.Background()))
}

func TestLedgerReceivesProgress(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "runs", "ledger.db")
	a, err := New(context.Background(), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	require.NotNil(t, a.Ledger())

	runID := uuid.New()
	a.Emitter().Emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Harvester: "odds"})
	a.Emitter().Emit(progress.Event{RunID: runID, Stage: progress.StageRunDone, Harvester: "odds", Result: "succeeded"})
	require.NoError(t, a.Close(context.Background()))

	repo, err := sqlite.New(cfg.Ledger.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	run, err := repo.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunSucceeded, run.Status)
	assert.Equal(t, "odds", run.Harvester)
}

func TestNewGCSApp(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendGCS
	cfg.Storage.GCSBucket = "harvest"
	a, err := New(context.Background(), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()),
		WithGCSOptions(option.WithEndpoint(srv.URL), option.WithoutAuthentication()),
	)
	require.NoError(t, err)
	assert.IsType(t, &gcs.Writer{}, a.Writer())
	assert.False(t, a.UsesLocalStorage())
	require.NoError(t, a.Close(context.Background()))
}

func TestMetricsEndpointLifecycle(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	a, err := New(context.Background(), cfg,
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Close(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("close did not stop the metrics server")
	}
}

func TestNewFailsOnBadLedgerPath(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := testConfig(t)
	cfg.Ledger.Path = filepath.Join(blocker, "ledger.db")
	_, err := New(context.Background(), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.Error(t, err)
}

func TestHandlerServesLedgerAPI(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger.db")
	a, err := New(context.Background(), cfg,
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	runID := uuid.New()
	a.Emitter().Emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Harvester: "gameday"})
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/runs/" + runID.String())
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerWithoutLedger(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t),
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
