// Package progress defines the event structures emitted while a harvest runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageUnitStart   Stage = "UNIT_START"
	StageUnitDone    Stage = "UNIT_DONE"
	StageUnitError   Stage = "UNIT_ERROR"
	StageTargetDone  Stage = "TARGET_DONE"
	StageTargetError Stage = "TARGET_ERROR"
)

// Droppable reports whether the hub may shed the stage under backpressure.
// Successful targets are already reflected in their unit's byte count.
func (s Stage) Droppable() bool {
	return s == StageTargetDone
}

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of a harvest run.
type Event struct {
	// RunID identifies the run that produced the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Harvester names the pipeline (gameday, odds, projections).
	Harvester string
	// Key is the work unit's logical key; required for unit and target stages.
	Key string
	// URL is the unit or target address.
	URL string
	// Category is the target's folder; required for target stages.
	Category string
	// Path is the target's destination; required for target stages.
	Path string
	// Result is the terminal unit status (succeeded, partial, failed).
	Result string
	// Bytes carries the bytes persisted by a target or unit.
	Bytes int64
	// HTTPStatus is the response code when a fetch failed on status.
	HTTPStatus int
	// Dur captures unit or run latency.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageUnitStart, StageUnitDone, StageUnitError:
		if e.Key == "" {
			return fmt.Errorf("%s requires key", e.Stage)
		}
	case StageTargetDone, StageTargetError:
		if e.Key == "" || e.Path == "" {
			return fmt.Errorf("%s requires key and path", e.Stage)
		}
		if e.Category == "" {
			return fmt.Errorf("%s requires category", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
