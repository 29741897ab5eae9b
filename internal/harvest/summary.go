package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnitsFailed is returned by Summary.Err when at least one unit failed.
var ErrUnitsFailed = errors.New("harvest units failed")

// Summary aggregates every UnitResult of a run, in submission order.
type Summary struct {
	RunID      uuid.UUID
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time
	Units      []UnitResult
}

// TargetFailure pairs a skipped target with the unit that owned it.
type TargetFailure struct {
	UnitKey string
	Target  DownloadTarget
	Err     error
}

// Succeeded lists keys of units whose every target persisted.
func (s *Summary) Succeeded() []string {
	return s.keysWith(UnitSucceeded)
}

// Partial lists keys of units where some targets were skipped.
func (s *Summary) Partial() []string {
	return s.keysWith(UnitPartial)
}

// Failed lists keys of units that did not complete.
func (s *Summary) Failed() []string {
	return s.keysWith(UnitFailed)
}

func (s *Summary) keysWith(status UnitStatus) []string {
	var keys []string
	for _, u := range s.Units {
		if u.Status == status {
			keys = append(keys, u.Key)
		}
	}
	return keys
}

// FailedTargets lists every skipped target across the run.
func (s *Summary) FailedTargets() []TargetFailure {
	var out []TargetFailure
	for _, u := range s.Units {
		for _, t := range u.FailedTargets() {
			out = append(out, TargetFailure{UnitKey: u.Key, Target: t.Target, Err: t.Err})
		}
	}
	return out
}

// Unit returns the result recorded for key.
func (s *Summary) Unit(key string) (UnitResult, bool) {
	for _, u := range s.Units {
		if u.Key == key {
			return u, true
		}
	}
	return UnitResult{}, false
}

// Status collapses the run to its worst unit status. A run with no units
// succeeded.
func (s *Summary) Status() UnitStatus {
	status := UnitSucceeded
	for _, u := range s.Units {
		switch u.Status {
		case UnitFailed:
			return UnitFailed
		case UnitPartial:
			status = UnitPartial
		}
	}
	return status
}

// Err wraps ErrUnitsFailed when any unit failed. Partial units are not errors.
func (s *Summary) Err() error {
	failed := s.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d (%s)", ErrUnitsFailed, len(failed), len(s.Units), strings.Join(failed, ", "))
}

// Log writes the run totals and every failure to logger.
func (s *Summary) Log(logger *zap.Logger) {
	if logger == nil {
		return
	}
	for _, u := range s.Units {
		if u.Status == UnitFailed {
			logger.Error("unit failed", zap.String("key", u.Key), zap.String("url", u.URL), zap.Error(u.Err))
		}
	}
	for _, f := range s.FailedTargets() {
		logger.Warn("target skipped",
			zap.String("key", f.UnitKey),
			zap.String("url", f.Target.URL),
			zap.String("path", f.Target.Path),
			zap.Error(f.Err),
		)
	}
	logger.Info("run complete",
		zap.String("run_id", s.RunID.String()),
		zap.String("harvester", s.Name),
		zap.Int("units", len(s.Units)),
		zap.Int("succeeded", len(s.Succeeded())),
		zap.Int("partial", len(s.Partial())),
		zap.Int("failed", len(s.Failed())),
		zap.Int("failed_targets", len(s.FailedTargets())),
		zap.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)),
	)
}

type report struct {
	RunID         uuid.UUID      `json:"run_id"`
	Harvester     string         `json:"harvester"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Succeeded     []string       `json:"succeeded"`
	Partial       []string       `json:"partial"`
	Failed        []failedUnit   `json:"failed"`
	FailedTargets []failedTarget `json:"failed_targets"`
}

type failedUnit struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

type failedTarget struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Path     string `json:"path"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// MarshalJSON renders the summary as a report with error text inlined.
func (s *Summary) MarshalJSON() ([]byte, error) {
	r := report{
		RunID:         s.RunID,
		Harvester:     s.Name,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
		Succeeded:     nonNil(s.Succeeded()),
		Partial:       nonNil(s.Partial()),
		Failed:        []failedUnit{},
		FailedTargets: []failedTarget{},
	}
	for _, u := range s.Units {
		if u.Status == UnitFailed {
			r.Failed = append(r.Failed, failedUnit{Key: u.Key, URL: u.URL, Error: errString(u.Err)})
		}
	}
	for _, f := range s.FailedTargets() {
		r.FailedTargets = append(r.FailedTargets, failedTarget{
			Key:      f.UnitKey,
			URL:      f.Target.URL,
			Path:     f.Target.Path,
			Category: f.Target.Category,
			Error:    errString(f.Err),
		})
	}
	return json.Marshal(r)
}

// WriteReport writes the JSON report to path, replacing any previous file.
func (s *Summary) WriteReport(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
