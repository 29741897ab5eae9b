package projections

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/storage/local"
)

const renderedPage = `<html><body>
<div class="rgtable">
  <div class="rgt-col"><div>Player</div><div>Stephen Curry</div><div>LeBron James</div><div>Nikola Jokic</div></div>
  <div class="rgt-col"><div>Salary</div><div> 9800 </div><div>10100</div></div>
  <div class="rgt-col"><div>Pts</div><div>48.2</div><div>51.0</div><div>55.4</div></div>
</div>
</body></html>`

type pageFetcher struct {
	body   string
	status int
}

func (f pageFetcher) Fetch(_ context.Context, url string) (harvest.FetchOutcome, error) {
	if f.status != 0 && f.status != http.StatusOK {
		return harvest.FetchOutcome{}, &harvest.NetworkError{URL: url, Status: f.status}
	}
	return harvest.FetchOutcome{URL: url, Status: http.StatusOK, Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestParseTable(t *testing.T) {
	t.Parallel()

	table, err := ParseTable([]byte(renderedPage))
	require.NoError(t, err)
	assert.Equal(t, []string{"Player", "Salary", "Pts"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"Stephen Curry", "9800", "48.2"}, table.Rows[0])
	assert.Equal(t, []string{"Nikola Jokic", "", "55.4"}, table.Rows[2])
}

func TestParseTableMergesRepeatedColumns(t *testing.T) {
	t.Parallel()

	page := `<div class="rgtable">
<div class="rgt-col"><div>Player</div><div>A</div></div>
<div class="rgt-col"><div>Player</div><div>B</div></div>
</div>`
	table, err := ParseTable([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, []string{"Player"}, table.Columns)
	assert.Equal(t, [][]string{{"A"}, {"B"}}, table.Rows)
}

func TestParseTableMissingGrid(t *testing.T) {
	t.Parallel()

	_, err := ParseTable([]byte(`<html><body><div class="loading"></div></body></html>`))
	require.ErrorIs(t, err, ErrNoTable)

	_, err = ParseTable([]byte(`<div class="rgtable"></div>`))
	require.ErrorIs(t, err, ErrNoTable)
}

func TestTableCSV(t *testing.T) {
	t.Parallel()

	data, err := Table{Columns: []string{"Player", "Pts"}, Rows: [][]string{{"Doe, J", "1"}}}.CSV()
	require.NoError(t, err)
	assert.Equal(t, "Player,Pts\n\"Doe, J\",1\n", string(data))
}

func TestUnitKey(t *testing.T) {
	t.Parallel()

	unit := Unit(DefaultURL, time.Date(2026, 1, 9, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, "nba-2026-01-09", unit.Key)
	assert.Equal(t, DefaultURL, unit.URL)
	assert.Equal(t, harvest.ClassTopLevel, unit.Class)
}

func TestProcessorWritesCSV(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	proc := NewProcessor(root, pageFetcher{body: renderedPage}, local.New(local.Config{}), nil)
	res := proc.Process(context.Background(), Unit(DefaultURL, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, res.Err)
	assert.Equal(t, harvest.UnitSucceeded, res.Status)
	data, err := os.ReadFile(filepath.Join(root, "nba-2026-01-09.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Player,Salary,Pts\n"))
	require.Len(t, res.Targets, 1)
	assert.Equal(t, int64(len(data)), res.Targets[0].BytesWritten)
	assert.Equal(t, Category, res.Targets[0].Target.Category)
}

func TestProcessorFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	unit := Unit(DefaultURL, time.Now())

	res := NewProcessor(root, pageFetcher{status: http.StatusForbidden}, local.New(local.Config{}), nil).Process(context.Background(), unit)
	assert.Equal(t, harvest.UnitFailed, res.Status)
	var netErr *harvest.NetworkError
	require.ErrorAs(t, res.Err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.Status)
	assert.Empty(t, res.Targets)

	res = NewProcessor(root, pageFetcher{body: "<html></html>"}, local.New(local.Config{}), nil).Process(context.Background(), unit)
	assert.Equal(t, harvest.UnitFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrNoTable)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
