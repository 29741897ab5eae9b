package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PipelineConfig wires the collaborators of a hierarchical Pipeline.
//   - Documents fetches the top-level document.
//   - Children fetches child resources as streams; defaults to Documents.
//   - ChildGate caps simultaneous child fetches across every unit sharing it.
//     A nil gate leaves child fan-out unbounded.
type PipelineConfig struct {
	Documents Fetcher
	Children  Fetcher
	Extractor Extractor
	Planner   *Planner
	Writer    StreamWriter
	ChildGate Gate
	Logger    *zap.Logger
}

// Pipeline is the two-tier UnitProcessor: fetch a document, extract its
// Identifiers, then fetch and persist every planned child concurrently.
type Pipeline struct {
	documents Fetcher
	children  Fetcher
	extractor Extractor
	planner   *Planner
	writer    StreamWriter
	childGate Gate
	logger    *zap.Logger
}

// NewPipeline validates cfg and builds a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case cfg.Documents == nil:
		return nil, errors.New("pipeline: document fetcher is required")
	case cfg.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case cfg.Planner == nil:
		return nil, errors.New("pipeline: planner is required")
	case cfg.Writer == nil:
		return nil, errors.New("pipeline: writer is required")
	}
	children := cfg.Children
	if children == nil {
		children = cfg.Documents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		documents: cfg.Documents,
		children:  children,
		extractor: cfg.Extractor,
		planner:   cfg.Planner,
		writer:    cfg.Writer,
		childGate: cfg.ChildGate,
		logger:    logger,
	}, nil
}

// Process runs unit to a terminal state. A document failure stops the unit
// before any child is attempted. A child failure is recorded on its
// TargetResult and never stops its siblings.
func (p *Pipeline) Process(ctx context.Context, unit WorkUnit) (res UnitResult) {
	start := time.Now()
	res = UnitResult{Key: unit.Key, URL: unit.URL}
	defer func() { res.Duration = time.Since(start) }()

	doc, err := p.fetchDocument(ctx, unit.URL)
	if err != nil {
		res.Status = UnitFailed
		res.Err = err
		return res
	}

	ids, err := p.extractor.Extract(doc)
	if err != nil {
		res.Status = UnitFailed
		res.Err = &ExtractionError{URL: unit.URL, Err: err}
		return res
	}
	res.Identifiers = ids
	if len(ids) == 0 {
		p.logger.Info("no identifiers in document", zap.String("key", unit.Key))
		res.Status = UnitSucceeded
		return res
	}

	res.Targets = p.fanOut(ctx, p.planner.Plan(unit.URL, ids))
	res.Status, res.Err = classifyTargets(res.Targets)
	return res
}

func (p *Pipeline) fetchDocument(ctx context.Context, url string) ([]byte, error) {
	outcome, err := p.documents.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer outcome.Body.Close() //nolint:errcheck
	doc, err := io.ReadAll(outcome.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Status: outcome.Status, Err: fmt.Errorf("read body: %w", err)}
	}
	return doc, nil
}

func (p *Pipeline) fanOut(ctx context.Context, targets []DownloadTarget) []TargetResult {
	results := make([]TargetResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target DownloadTarget) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = TargetResult{Target: target, Err: fmt.Errorf("target %s panicked: %v", target.Path, r)}
					p.logger.Error("target panicked", zap.String("path", target.Path), zap.Any("panic", r))
				}
			}()
			results[i] = p.runTarget(ctx, target)
		}(i, target)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) runTarget(ctx context.Context, target DownloadTarget) TargetResult {
	res := TargetResult{Target: target}
	if p.childGate == nil {
		res.BytesWritten, res.Err = p.download(ctx, target)
	} else {
		err := p.childGate.Do(ctx, func(ctx context.Context) error {
			var err error
			res.BytesWritten, err = p.download(ctx, target)
			return err
		})
		res.Err = err
	}
	if res.Err != nil {
		p.logger.Warn("skipping target",
			zap.String("url", target.URL),
			zap.String("path", target.Path),
			zap.Error(res.Err),
		)
		return res
	}
	p.logger.Debug("target persisted",
		zap.String("path", target.Path),
		zap.Int64("bytes", res.BytesWritten),
	)
	return res
}

func (p *Pipeline) download(ctx context.Context, target DownloadTarget) (int64, error) {
	outcome, err := p.children.Fetch(ctx, target.URL)
	if err != nil {
		return 0, err
	}
	return p.writer.WriteStream(ctx, outcome.Body, target.Path)
}

// classifyTargets maps child outcomes onto a unit status. Child failures never
// fail the unit: any failed target makes it partial, even when none persisted.
// Failed is reserved for the document fetch and extraction.
func classifyTargets(targets []TargetResult) (UnitStatus, error) {
	var failed int
	var first error
	for _, t := range targets {
		if t.Err == nil {
			continue
		}
		failed++
		if first == nil {
			first = t.Err
		}
	}
	switch {
	case failed == 0:
		return UnitSucceeded, nil
	case failed == len(targets):
		return UnitPartial, fmt.Errorf("all %d targets failed, nothing persisted: %w", failed, first)
	default:
		return UnitPartial, fmt.Errorf("%d of %d targets failed: %w", failed, len(targets), first)
	}
}
