// Package progress provides the event primitives, buffered hub, and emitter
// interfaces the run coordinator uses to report harvest progress. The hub
// batches events on a background goroutine and fans them out to pluggable
// sinks such as structured logs, Prometheus metrics, or the run ledger.
package progress
