package harvest

import (
	"io"
	"time"
)

// Class names the concurrency class a WorkUnit is admitted under.
type Class string

// ClassTopLevel units consume one slot of the run limiter.
const ClassTopLevel Class = "top"

// WorkUnit is one top-level fetch task. Key is the logical key the unit was
// generated from (a date, or team_year).
type WorkUnit struct {
	Key   string
	URL   string
	Class Class
}

// Identifier is an opaque token extracted from a top-level document.
type Identifier string

// DownloadTarget is one child resource and the path it is persisted to.
type DownloadTarget struct {
	URL      string
	Path     string
	Category string
}

// Equal reports whether two targets share a destination path.
func (t DownloadTarget) Equal(other DownloadTarget) bool {
	return t.Path == other.Path
}

// FetchOutcome is a successful GET. The caller owns Body and must close it.
// Failures are reported as *NetworkError instead.
type FetchOutcome struct {
	URL    string
	Status int
	Body   io.ReadCloser
}

// UnitStatus is the terminal state of a WorkUnit.
type UnitStatus string

// Terminal unit states.
const (
	UnitSucceeded UnitStatus = "succeeded"
	UnitPartial   UnitStatus = "partial"
	UnitFailed    UnitStatus = "failed"
)

// TargetResult records the outcome of one DownloadTarget.
type TargetResult struct {
	Target       DownloadTarget `json:"target"`
	BytesWritten int64          `json:"bytes_written"`
	Err          error          `json:"-"`
}

// Failed reports whether the target was skipped.
func (r TargetResult) Failed() bool {
	return r.Err != nil
}

// UnitResult is the aggregated outcome of one WorkUnit.
type UnitResult struct {
	Key         string         `json:"key"`
	URL         string         `json:"url"`
	Status      UnitStatus     `json:"status"`
	Err         error          `json:"-"`
	Identifiers []Identifier   `json:"identifiers,omitempty"`
	Targets     []TargetResult `json:"targets,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// FailedTargets returns the targets under this unit that did not persist.
func (r UnitResult) FailedTargets() []TargetResult {
	var out []TargetResult
	for _, t := range r.Targets {
		if t.Failed() {
			out = append(out, t)
		}
	}
	return out
}

// BytesWritten sums the bytes persisted across this unit's targets.
func (r UnitResult) BytesWritten() int64 {
	var total int64
	for _, t := range r.Targets {
		total += t.BytesWritten
	}
	return total
}
