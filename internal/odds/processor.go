package odds

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

// Processor fetches one team season and writes it as CSV.
type Processor struct {
	sport   Sport
	root    string
	fetcher harvest.Fetcher
	writer  harvest.StreamWriter
	logger  *zap.Logger
}

// NewProcessor builds a Processor writing under root.
func NewProcessor(sport Sport, root string, fetcher harvest.Fetcher, writer harvest.StreamWriter, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sport: sport, root: root, fetcher: fetcher, writer: writer, logger: logger}
}

// Process implements harvest.UnitProcessor.
func (p *Processor) Process(ctx context.Context, unit harvest.WorkUnit) (res harvest.UnitResult) {
	start := time.Now()
	res = harvest.UnitResult{Key: unit.Key, URL: unit.URL}
	defer func() { res.Duration = time.Since(start) }()

	fail := func(err error) harvest.UnitResult {
		res.Status = harvest.UnitFailed
		res.Err = err
		return res
	}

	outcome, err := p.fetcher.Fetch(ctx, unit.URL)
	if err != nil {
		return fail(err)
	}
	doc, err := io.ReadAll(outcome.Body)
	_ = outcome.Body.Close()
	if err != nil {
		return fail(&harvest.NetworkError{URL: unit.URL, Status: outcome.Status, Err: err})
	}

	rows, err := ParseTable(p.sport, doc)
	if err != nil {
		return fail(&harvest.ExtractionError{URL: unit.URL, Err: err})
	}
	data, err := EncodeCSV(Headers[p.sport], rows)
	if err != nil {
		return fail(&harvest.ExtractionError{URL: unit.URL, Err: err})
	}

	target := harvest.DownloadTarget{URL: unit.URL, Path: OutputPath(p.root, unit.Key), Category: string(p.sport)}
	n, err := p.writer.WriteStream(ctx, io.NopCloser(bytes.NewReader(data)), target.Path)
	res.Targets = []harvest.TargetResult{{Target: target, BytesWritten: n, Err: err}}
	if err != nil {
		return fail(err)
	}
	p.logger.Debug("season written", zap.String("key", unit.Key), zap.Int("rows", len(rows)))
	res.Status = harvest.UnitSucceeded
	return res
}
