package harvest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

// fakeFetcher serves canned bodies keyed by URL; unknown URLs are 404s.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, status: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (FetchOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	status := f.status[url]
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		return FetchOutcome{}, &NetworkError{URL: url, Status: status}
	}
	if !ok {
		return FetchOutcome{}, &NetworkError{URL: url, Status: http.StatusNotFound}
	}
	return FetchOutcome{URL: url, Status: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// memWriter persists bodies in memory.
type memWriter struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
}

func newMemWriter() *memWriter {
	return &memWriter{files: map[string][]byte{}, fail: map[string]error{}}
}

func (w *memWriter) WriteStream(_ context.Context, body io.ReadCloser, dest string) (int64, error) {
	defer body.Close() //nolint:errcheck
	w.mu.Lock()
	failErr := w.fail[dest]
	w.mu.Unlock()
	if failErr != nil {
		return 0, &StorageError{Path: dest, Op: OpOpen, Err: failErr}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, &StorageError{Path: dest, Op: OpRead, Err: err}
	}
	w.mu.Lock()
	w.files[dest] = data
	w.mu.Unlock()
	return int64(len(data)), nil
}

func (w *memWriter) Files() map[string][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string][]byte, len(w.files))
	for k, v := range w.files {
		out[k] = v
	}
	return out
}

type staticExtractor struct {
	ids []Identifier
	err error
}

func (e staticExtractor) Extract([]byte) ([]Identifier, error) {
	return e.ids, e.err
}

// lineExtractor treats every non-empty line of the document as an Identifier.
type lineExtractor struct{}

func (lineExtractor) Extract(doc []byte) ([]Identifier, error) {
	var ids []Identifier
	for _, line := range strings.Split(string(doc), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, Identifier(line))
		}
	}
	if strings.Contains(string(doc), "<broken") {
		return nil, errors.New("unexpected markup")
	}
	return ids, nil
}

// mockFetcher is a testify mock of Fetcher.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (FetchOutcome, error) {
	args := m.Called(ctx, url)
	outcome, _ := args.Get(0).(FetchOutcome)
	return outcome, args.Error(1)
}
