// Package limiter implements the counting gate that bounds how many work units
// may be admitted at once.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidCapacity is returned when a limiter is built with capacity < 1.
var ErrInvalidCapacity = errors.New("limiter capacity must be >= 1")

// Option customizes a Limiter.
type Option func(*Limiter)

// WithGauge mirrors the in-flight count into a Prometheus gauge.
func WithGauge(g prometheus.Gauge) Option {
	return func(l *Limiter) {
		l.gauge = g
	}
}

// Limiter admits at most Capacity holders at any instant. Every successful
// Acquire must be paired with exactly one Release; Do handles the pairing.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	peak     atomic.Int64
	gauge    prometheus.Gauge
}

// New builds a Limiter with the given capacity.
func New(capacity int, opts ...Option) (*Limiter, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	l := &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire blocks until a slot is free or ctx ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	n := l.inFlight.Add(1)
	l.recordPeak(n)
	if l.gauge != nil {
		l.gauge.Inc()
	}
	return nil
}

// Release frees a slot taken by Acquire. Releasing more than was acquired panics.
func (l *Limiter) Release() {
	if l.inFlight.Add(-1) < 0 {
		panic("limiter: release without matching acquire")
	}
	if l.gauge != nil {
		l.gauge.Dec()
	}
	l.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released on every exit path,
// including a panic inside fn. If the slot cannot be acquired fn never runs.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Capacity reports the configured slot count.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// InFlight reports the number of current holders.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Peak reports the highest number of simultaneous holders observed.
func (l *Limiter) Peak() int64 {
	return l.peak.Load()
}

func (l *Limiter) recordPeak(n int64) {
	for {
		cur := l.peak.Load()
		if n <= cur || l.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}
