// Package projections harvests the daily DraftKings NBA projections table.
// The page is rendered client side, so it is fetched through a browser.
package projections

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

// DefaultURL is the projected-stats page.
const DefaultURL = "https://rotogrinders.com/projected-stats?site=draftkings&sport=nba"

// Category labels the single target of a projections unit.
const Category = "projections"

// ErrNoTable is returned when the rendered page has no projections grid.
var ErrNoTable = errors.New("no projections table")

// Table is a column-oriented grid: Columns[i] heads Rows[*][i].
type Table struct {
	Columns []string
	Rows    [][]string
}

// Unit is the WorkUnit for day's projections.
func Unit(url string, day time.Time) harvest.WorkUnit {
	return harvest.WorkUnit{
		Key:   "nba-" + day.Format("2006-01-02"),
		URL:   url,
		Class: harvest.ClassTopLevel,
	}
}

// ParseTable reads div.rgtable. Each div.rgt-col is one column: its first div
// is the heading, the rest are values. Repeated headings extend the earlier
// column, and short columns are padded with empty cells.
func ParseTable(doc []byte) (Table, error) {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return Table{}, fmt.Errorf("parse projections page: %w", err)
	}
	grid := parsed.Find("div.rgtable").First()
	if grid.Length() == 0 {
		return Table{}, ErrNoTable
	}

	var keys []string
	values := map[string][]string{}
	grid.Find("div.rgt-col").Each(func(_ int, col *goquery.Selection) {
		cells := col.Find("div")
		if cells.Length() == 0 {
			return
		}
		key := strings.TrimSpace(cells.First().Text())
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
			values[key] = nil
		}
		cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
			values[key] = append(values[key], strings.TrimSpace(cell.Text()))
		})
	})
	if len(keys) == 0 {
		return Table{}, ErrNoTable
	}

	height := 0
	for _, key := range keys {
		height = max(height, len(values[key]))
	}
	rows := make([][]string, height)
	for r := range rows {
		row := make([]string, len(keys))
		for c, key := range keys {
			if r < len(values[key]) {
				row[c] = values[key][r]
			}
		}
		rows[r] = row
	}
	return Table{Columns: keys, Rows: rows}, nil
}

// CSV renders t with its header row.
func (t Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

// Processor renders the projections page and writes it as root/{key}.csv.
type Processor struct {
	root    string
	fetcher harvest.Fetcher
	writer  harvest.StreamWriter
	logger  *zap.Logger
}

// NewProcessor builds a Processor. fetcher is normally a headless browser.
func NewProcessor(root string, fetcher harvest.Fetcher, writer harvest.StreamWriter, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{root: root, fetcher: fetcher, writer: writer, logger: logger}
}

// Process implements harvest.UnitProcessor.
func (p *Processor) Process(ctx context.Context, unit harvest.WorkUnit) (res harvest.UnitResult) {
	start := time.Now()
	res = harvest.UnitResult{Key: unit.Key, URL: unit.URL, Status: harvest.UnitFailed}
	defer func() { res.Duration = time.Since(start) }()

	outcome, err := p.fetcher.Fetch(ctx, unit.URL)
	if err != nil {
		res.Err = err
		return res
	}
	doc, err := io.ReadAll(outcome.Body)
	_ = outcome.Body.Close()
	if err != nil {
		res.Err = &harvest.NetworkError{URL: unit.URL, Status: outcome.Status, Err: err}
		return res
	}

	table, err := ParseTable(doc)
	if err != nil {
		res.Err = &harvest.ExtractionError{URL: unit.URL, Err: err}
		return res
	}
	p.logger.Info("projections parsed",
		zap.Strings("columns", table.Columns),
		zap.Int("rows", len(table.Rows)),
	)
	data, err := table.CSV()
	if err != nil {
		res.Err = &harvest.ExtractionError{URL: unit.URL, Err: err}
		return res
	}

	target := harvest.DownloadTarget{URL: unit.URL, Path: filepath.Join(p.root, unit.Key+".csv"), Category: Category}
	n, err := p.writer.WriteStream(ctx, io.NopCloser(bytes.NewReader(data)), target.Path)
	res.Targets = []harvest.TargetResult{{Target: target, BytesWritten: n, Err: err}}
	if err != nil {
		res.Err = err
		return res
	}
	res.Status = harvest.UnitSucceeded
	return res
}
