package harvest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sports-harvester/internal/limiter"
)

const dayURL = "http://gd2.example/year_2018/month_04/day_03/scoreboard.xml"

func childURL(id, suffix string) string {
	return "http://gd2.example/year_2018/month_04/day_03/" + id + suffix
}

func newTestPipeline(t *testing.T, docs, children Fetcher, ext Extractor, w StreamWriter, gate Gate) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineConfig{
		Documents: docs,
		Children:  children,
		Extractor: ext,
		Planner:   NewPlanner("out", "scoreboard.xml", testSuffixes),
		Writer:    w,
		ChildGate: gate,
	})
	require.NoError(t, err)
	return p
}

func seedChildren(f *fakeFetcher, ids ...string) {
	for _, id := range ids {
		for _, s := range testSuffixes {
			f.pages[childURL(id, s.Path)] = id + s.Path
		}
	}
}

func TestProcessPersistsEveryTarget(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a\ngid_b\n"
	children := newFakeFetcher()
	seedChildren(children, "gid_a", "gid_b")
	w := newMemWriter()

	res := newTestPipeline(t, docs, children, lineExtractor{}, w, nil).
		Process(context.Background(), WorkUnit{Key: "2018-04-03", URL: dayURL, Class: ClassTopLevel})

	require.Equal(t, UnitSucceeded, res.Status)
	require.NoError(t, res.Err)
	assert.Equal(t, []Identifier{"gid_a", "gid_b"}, res.Identifiers)
	assert.Len(t, res.Targets, 6)
	assert.Len(t, children.Calls(), 6)

	files := w.Files()
	assert.Len(t, files, 6)
	assert.Equal(t, "gid_b/inning/inning_all.xml", string(files[filepath.Join("out", "inning", "gid_b_inning_all.xml")]))
	assert.Equal(t, int64(len("gid_a/players.xml")), res.Targets[0].BytesWritten)
	assert.Positive(t, res.Duration)
}

func TestProcessTopLevel404AttemptsNoChildren(t *testing.T) {
	t.Parallel()

	docs := &mockFetcher{}
	docs.On("Fetch", mock.Anything, dayURL).
		Return(FetchOutcome{}, &NetworkError{URL: dayURL, Status: http.StatusNotFound}).Once()
	children := &mockFetcher{}
	w := newMemWriter()

	res := newTestPipeline(t, docs, children, lineExtractor{}, w, nil).
		Process(context.Background(), WorkUnit{Key: "2018-04-03", URL: dayURL})

	assert.Equal(t, UnitFailed, res.Status)
	var netErr *NetworkError
	require.ErrorAs(t, res.Err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.Status)
	assert.Empty(t, res.Targets)
	assert.Empty(t, w.Files())
	docs.AssertExpectations(t)
	children.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestProcessOneChildFailureIsPartial(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a\ngid_b\ngid_c"
	children := newFakeFetcher()
	seedChildren(children, "gid_a", "gid_b", "gid_c")
	broken := childURL("gid_b", "/miniscoreboard.xml")
	children.status[broken] = http.StatusInternalServerError
	w := newMemWriter()

	res := newTestPipeline(t, docs, children, lineExtractor{}, w, nil).
		Process(context.Background(), WorkUnit{Key: "2018-04-03", URL: dayURL})

	assert.Equal(t, UnitPartial, res.Status)
	require.Error(t, res.Err)
	failed := res.FailedTargets()
	require.Len(t, failed, 1)
	assert.Equal(t, broken, failed[0].Target.URL)
	assert.Len(t, w.Files(), 8)
	assert.Len(t, children.Calls(), 9)
}

func TestProcessStorageFailureIsolatedToTarget(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a"
	children := newFakeFetcher()
	seedChildren(children, "gid_a")
	w := newMemWriter()
	badPath := filepath.Join("out", "players", "gid_a_players.xml")
	w.fail[badPath] = errors.New("permission denied")

	res := newTestPipeline(t, docs, children, lineExtractor{}, w, nil).
		Process(context.Background(), WorkUnit{Key: "k", URL: dayURL})

	assert.Equal(t, UnitPartial, res.Status)
	var se *StorageError
	require.ErrorAs(t, res.FailedTargets()[0].Err, &se)
	assert.Equal(t, badPath, se.Path)
	assert.Len(t, w.Files(), 2)
}

func TestProcessAllChildrenFailIsPartial(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a"
	children := newFakeFetcher() // every child 404s

	res := newTestPipeline(t, docs, children, lineExtractor{}, newMemWriter(), nil).
		Process(context.Background(), WorkUnit{Key: "k", URL: dayURL})

	assert.Equal(t, UnitPartial, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "nothing persisted")
	assert.Len(t, res.FailedTargets(), 3)
	assert.Zero(t, res.BytesWritten())
}

// panicWriter panics for one path and discards everything else.
type panicWriter struct {
	path string
}

func (w panicWriter) WriteStream(_ context.Context, body io.ReadCloser, dest string) (int64, error) {
	defer body.Close() //nolint:errcheck
	if dest == w.path {
		panic("disk driver exploded")
	}
	return io.Copy(io.Discard, body)
}

func TestProcessRecoversPanickingTarget(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a"
	children := newFakeFetcher()
	seedChildren(children, "gid_a")
	gate, err := limiter.New(1)
	require.NoError(t, err)
	bad := filepath.Join("out", "players", "gid_a_players.xml")

	res := newTestPipeline(t, docs, children, lineExtractor{}, panicWriter{path: bad}, gate).
		Process(context.Background(), WorkUnit{Key: "k", URL: dayURL})

	assert.Equal(t, UnitPartial, res.Status)
	failed := res.FailedTargets()
	require.Len(t, failed, 1)
	assert.Equal(t, bad, failed[0].Target.Path)
	assert.Contains(t, failed[0].Err.Error(), "panicked")
	assert.Zero(t, gate.InFlight())
}

func TestProcessZeroIdentifiersSucceeds(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "\n"
	children := newFakeFetcher()

	res := newTestPipeline(t, docs, children, lineExtractor{}, newMemWriter(), nil).
		Process(context.Background(), WorkUnit{Key: "k", URL: dayURL})

	assert.Equal(t, UnitSucceeded, res.Status)
	assert.Empty(t, res.Targets)
	assert.Empty(t, children.Calls())
}

func TestProcessExtractionErrorFailsUnit(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "<broken"
	children := newFakeFetcher()

	res := newTestPipeline(t, docs, children, lineExtractor{}, newMemWriter(), nil).
		Process(context.Background(), WorkUnit{Key: "k", URL: dayURL})

	assert.Equal(t, UnitFailed, res.Status)
	var ee *ExtractionError
	require.ErrorAs(t, res.Err, &ee)
	assert.Equal(t, dayURL, ee.URL)
	assert.Empty(t, children.Calls())
}

// gatedFetcher tracks how many child fetches overlap.
type gatedFetcher struct {
	inner   Fetcher
	current atomic.Int64
	peak    atomic.Int64
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) (FetchOutcome, error) {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return g.inner.Fetch(ctx, url)
}

func TestProcessChildGateBoundsFanOut(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a\ngid_b\ngid_c\ngid_d"
	inner := newFakeFetcher()
	seedChildren(inner, "gid_a", "gid_b", "gid_c", "gid_d")
	children := &gatedFetcher{inner: inner}
	gate, err := limiter.New(2)
	require.NoError(t, err)

	res := newTestPipeline(t, docs, children, lineExtractor{}, newMemWriter(), gate).
		Process(context.Background(), WorkUnit{Key: "k", URL: dayURL})

	require.Equal(t, UnitSucceeded, res.Status)
	assert.Len(t, res.Targets, 12)
	assert.LessOrEqual(t, children.peak.Load(), int64(2))
	assert.LessOrEqual(t, gate.Peak(), int64(2))
}

func TestProcessChildGateCanceled(t *testing.T) {
	t.Parallel()

	docs := newFakeFetcher()
	docs.pages[dayURL] = "gid_a"
	children := newFakeFetcher()
	seedChildren(children, "gid_a")
	gate, err := limiter.New(1)
	require.NoError(t, err)
	require.NoError(t, gate.Acquire(context.Background())) // hold the only slot
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := newTestPipeline(t, docs, children, lineExtractor{}, newMemWriter(), gate).
		Process(ctx, WorkUnit{Key: "k", URL: dayURL})

	assert.Equal(t, UnitPartial, res.Status)
	for _, target := range res.Targets {
		require.ErrorIs(t, target.Err, context.DeadlineExceeded)
	}
	assert.Empty(t, children.Calls())
}

func TestNewPipelineValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(PipelineConfig{})
	require.Error(t, err)
	_, err = NewPipeline(PipelineConfig{Documents: newFakeFetcher(), Extractor: staticExtractor{}})
	require.Error(t, err)

	p, err := NewPipeline(PipelineConfig{
		Documents: newFakeFetcher(),
		Extractor: staticExtractor{},
		Planner:   NewPlanner("out", "", nil),
		Writer:    newMemWriter(),
	})
	require.NoError(t, err)
	assert.Same(t, p.documents, p.children)
}
