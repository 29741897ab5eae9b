// Package ledger declares the durable record of harvest runs: one row per
// run, per unit outcome, and per target outcome. Implementations live in
// subpackages; this package must not import database drivers.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("ledger record not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Run models one harvester invocation.
type Run struct {
	ID        uuid.UUID
	Harvester string
	StartedAt time.Time
	// FinishedAt is nil while the run is in flight.
	FinishedAt *time.Time
	Status     RunStatus
	Note       string
}

// UnitRecord is the terminal outcome of one work unit.
type UnitRecord struct {
	RunID      uuid.UUID
	Key        string
	URL        string
	Result     string
	Bytes      int64
	HTTPStatus int
	Duration   time.Duration
	Note       string
	At         time.Time
}

// TargetRecord is the outcome of one child download.
type TargetRecord struct {
	RunID    uuid.UUID
	Key      string
	URL      string
	Path     string
	Category string
	OK       bool
	Bytes    int64
	Note     string
	At       time.Time
}

// Repository persists run progress.
type Repository interface {
	// StartRun inserts the run, or refreshes its start time if it exists.
	StartRun(ctx context.Context, id uuid.UUID, harvester string, at time.Time) error
	// FinishRun stamps the terminal status.
	FinishRun(ctx context.Context, id uuid.UUID, at time.Time, status RunStatus, note string) error
	// RecordUnit upserts a unit outcome keyed by (run, key).
	RecordUnit(ctx context.Context, rec UnitRecord) error
	// RecordTargets upserts target outcomes keyed by (run, path).
	RecordTargets(ctx context.Context, recs []TargetRecord) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// ListUnits returns every unit of a run ordered by key.
	ListUnits(ctx context.Context, runID uuid.UUID) ([]UnitRecord, error)
	// ListFailedTargets returns the run's failed targets ordered by path.
	ListFailedTargets(ctx context.Context, runID uuid.UUID) ([]TargetRecord, error)
}
