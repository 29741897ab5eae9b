package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/progress"
)

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEmitter routes progress events to e.
func WithEmitter(e progress.Emitter) CoordinatorOption {
	return func(c *Coordinator) {
		if e != nil {
			c.emitter = e
		}
	}
}

// WithRunID pins the run id instead of generating one.
func WithRunID(id uuid.UUID) CoordinatorOption {
	return func(c *Coordinator) {
		c.runID = id
	}
}

// WithName labels the run (gameday, odds, projections).
func WithName(name string) CoordinatorOption {
	return func(c *Coordinator) {
		c.name = name
	}
}

// Coordinator drives WorkUnits through a Gate and aggregates one UnitResult
// per unit. A unit's failure never aborts its siblings.
type Coordinator struct {
	gate    Gate
	proc    UnitProcessor
	logger  *zap.Logger
	emitter progress.Emitter
	runID   uuid.UUID
	name    string
}

// NewCoordinator builds a Coordinator admitting units through gate.
func NewCoordinator(gate Gate, proc UnitProcessor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		gate:    gate,
		proc:    proc,
		logger:  zap.NewNop(),
		emitter: progress.NopEmitter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == uuid.Nil {
		c.runID = uuid.New()
	}
	return c
}

// RunID returns the id stamped on this coordinator's summary and events.
func (c *Coordinator) RunID() uuid.UUID {
	return c.runID
}

type indexedResult struct {
	index  int
	result UnitResult
}

// Run schedules every unit concurrently and waits until each has reported.
// Cancelling ctx stops admission; units that never got a slot report failed.
func (c *Coordinator) Run(ctx context.Context, units []WorkUnit) *Summary {
	summary := &Summary{
		RunID:     c.runID,
		Name:      c.name,
		StartedAt: time.Now().UTC(),
		Units:     make([]UnitResult, len(units)),
	}
	c.emit(progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("%d units", len(units))})
	c.logger.Info("run starting",
		zap.String("run_id", c.runID.String()),
		zap.String("harvester", c.name),
		zap.Int("units", len(units)),
	)

	results := make(chan indexedResult, len(units))
	for i, unit := range units {
		go func(i int, unit WorkUnit) {
			results <- indexedResult{index: i, result: c.runUnit(ctx, unit)}
		}(i, unit)
	}
	for range units {
		r := <-results
		summary.Units[r.index] = r.result
		c.report(r.result)
	}

	summary.FinishedAt = time.Now().UTC()
	c.emit(progress.Event{
		Stage:  progress.StageRunDone,
		Result: string(summary.Status()),
		Dur:    summary.FinishedAt.Sub(summary.StartedAt),
		Note: fmt.Sprintf("succeeded=%d partial=%d failed=%d",
			len(summary.Succeeded()), len(summary.Partial()), len(summary.Failed())),
	})
	return summary
}

func (c *Coordinator) runUnit(ctx context.Context, unit WorkUnit) (res UnitResult) {
	admitted := false
	err := c.gate.Do(ctx, func(ctx context.Context) error {
		admitted = true
		defer func() {
			if r := recover(); r != nil {
				res = UnitResult{
					Key:    unit.Key,
					URL:    unit.URL,
					Status: UnitFailed,
					Err:    fmt.Errorf("unit %s panicked: %v", unit.Key, r),
				}
			}
		}()
		c.emit(progress.Event{Stage: progress.StageUnitStart, Key: unit.Key, URL: unit.URL})
		res = c.proc.Process(ctx, unit)
		return nil
	})
	if !admitted {
		return UnitResult{
			Key:    unit.Key,
			URL:    unit.URL,
			Status: UnitFailed,
			Err:    fmt.Errorf("admit unit %s: %w", unit.Key, err),
		}
	}
	if res.Key == "" {
		res.Key = unit.Key
	}
	if res.URL == "" {
		res.URL = unit.URL
	}
	if res.Status == "" {
		res.Status = UnitSucceeded
		if res.Err != nil {
			res.Status = UnitFailed
		}
	}
	return res
}

func (c *Coordinator) report(res UnitResult) {
	for _, t := range res.Targets {
		evt := progress.Event{
			Stage:    progress.StageTargetDone,
			Key:      res.Key,
			URL:      t.Target.URL,
			Category: t.Target.Category,
			Path:     t.Target.Path,
			Bytes:    t.BytesWritten,
		}
		if t.Err != nil {
			evt.Stage = progress.StageTargetError
			evt.HTTPStatus = statusOf(t.Err)
			evt.Note = t.Err.Error()
		}
		c.emit(evt)
	}

	evt := progress.Event{
		Stage:  progress.StageUnitDone,
		Key:    res.Key,
		URL:    res.URL,
		Result: string(res.Status),
		Bytes:  res.BytesWritten(),
		Dur:    res.Duration,
	}
	fields := []zap.Field{
		zap.String("key", res.Key),
		zap.String("status", string(res.Status)),
		zap.Int("identifiers", len(res.Identifiers)),
		zap.Int("targets", len(res.Targets)),
		zap.Duration("duration", res.Duration),
	}
	switch res.Status {
	case UnitFailed:
		evt.Stage = progress.StageUnitError
		evt.HTTPStatus = statusOf(res.Err)
		evt.Note = errString(res.Err)
		c.logger.Warn("unit failed", append(fields, zap.Error(res.Err))...)
	case UnitPartial:
		c.logger.Warn("unit partially succeeded", append(fields, zap.Error(res.Err))...)
	default:
		c.logger.Info("unit done", fields...)
	}
	c.emit(evt)
}

func (c *Coordinator) emit(evt progress.Event) {
	evt.RunID = c.runID
	evt.Harvester = c.name
	evt.TS = time.Now().UTC()
	c.emitter.Emit(evt)
}

func statusOf(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Status
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
