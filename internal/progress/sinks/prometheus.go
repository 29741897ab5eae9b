package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sports-harvester/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns all collectors
// for runs started/running and per-unit and per-target outcomes.
type PrometheusSink struct {
	runsStarted prometheus.Counter
	runsRunning prometheus.Gauge
	runRuntime  *prometheus.HistogramVec

	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	targets      *prometheus.CounterVec
	targetBytes  *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_runs_running",
			Help: "Current number of running runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"harvester", "result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_units_total",
			Help: "Finished units partitioned by harvester and result.",
		}, []string{"harvester", "result"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_unit_duration_seconds",
			Help:    "Unit duration partitioned by harvester.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"harvester"}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_targets_total",
			Help: "Finished targets partitioned by category and result.",
		}, []string{"category", "result"}),
		targetBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_target_bytes_total",
			Help: "Bytes persisted per category.",
		}, []string{"category"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.runRuntime,
		s.units,
		s.unitDuration,
		s.targets,
		s.targetBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		if evt.Dur > 0 {
			s.runRuntime.WithLabelValues(evt.Harvester, resultLabel(evt.Result)).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageUnitDone, progress.StageUnitError:
		s.units.WithLabelValues(evt.Harvester, resultLabel(evt.Result)).Inc()
		if evt.Dur > 0 {
			s.unitDuration.WithLabelValues(evt.Harvester).Observe(evt.Dur.Seconds())
		}
	case progress.StageTargetDone:
		s.targets.WithLabelValues(evt.Category, "ok").Inc()
		if evt.Bytes > 0 {
			s.targetBytes.WithLabelValues(evt.Category).Add(float64(evt.Bytes))
		}
	case progress.StageTargetError:
		s.targets.WithLabelValues(evt.Category, "error").Inc()
	}
}

func resultLabel(result string) string {
	if result == "" {
		return "unknown"
	}
	return result
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
