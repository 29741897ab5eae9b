package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sports-harvester/internal/ledger"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	repo := setupTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	start := time.Date(2018, 4, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.StartRun(ctx, id, "gameday", start))
	run, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "gameday", run.Harvester)
	assert.Equal(t, ledger.RunRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.True(t, start.Equal(run.StartedAt))

	require.NoError(t, repo.StartRun(ctx, id, "gameday", start.Add(time.Minute)))
	require.NoError(t, repo.FinishRun(ctx, id, start.Add(2*time.Minute), ledger.RunPartial, "succeeded=1 partial=1 failed=0"))

	run, err = repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunPartial, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, start.Add(2*time.Minute).Equal(*run.FinishedAt))
	assert.Equal(t, "succeeded=1 partial=1 failed=0", run.Note)
}

func TestMissingRun(t *testing.T) {
	t.Parallel()

	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, ledger.ErrNotFound)
	err = repo.FinishRun(ctx, uuid.New(), time.Now(), ledger.RunFailed, "")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUnitsAndTargets(t *testing.T) {
	t.Parallel()

	repo := setupTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, repo.StartRun(ctx, id, "gameday", now))

	require.NoError(t, repo.RecordUnit(ctx, ledger.UnitRecord{
		RunID: id, Key: "2018-04-04", URL: "http://h/day_04/scoreboard.xml", Result: "partial",
		Bytes: 42, Duration: 1500 * time.Millisecond, At: now,
	}))
	require.NoError(t, repo.RecordUnit(ctx, ledger.UnitRecord{
		RunID: id, Key: "2018-04-03", URL: "http://h/day_03/scoreboard.xml", Result: "running", At: now,
	}))
	require.NoError(t, repo.RecordUnit(ctx, ledger.UnitRecord{
		RunID: id, Key: "2018-04-03", URL: "http://h/day_03/scoreboard.xml", Result: "failed",
		HTTPStatus: 404, Note: "status 404", At: now,
	}))

	units, err := repo.ListUnits(ctx, id)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "2018-04-03", units[0].Key)
	assert.Equal(t, "failed", units[0].Result)
	assert.Equal(t, 404, units[0].HTTPStatus)
	assert.Equal(t, 1500*time.Millisecond, units[1].Duration)
	assert.Equal(t, int64(42), units[1].Bytes)

	require.NoError(t, repo.RecordTargets(ctx, []ledger.TargetRecord{
		{RunID: id, Key: "2018-04-04", URL: "http://h/a/players.xml", Path: "out/players/a_players.xml", Category: "players", Note: "status 500", At: now},
		{RunID: id, Key: "2018-04-04", URL: "http://h/a/miniscoreboard.xml", Path: "out/miniscoreboard/a_miniscoreboard.xml", Category: "miniscoreboard", OK: true, Bytes: 42, At: now},
	}))
	require.NoError(t, repo.RecordTargets(ctx, nil))

	failed, err := repo.ListFailedTargets(ctx, id)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "out/players/a_players.xml", failed[0].Path)
	assert.Equal(t, "status 500", failed[0].Note)
	assert.False(t, failed[0].OK)
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := range 3 {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, repo.StartRun(ctx, id, "odds", base.Add(time.Duration(i)*time.Hour)))
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}
