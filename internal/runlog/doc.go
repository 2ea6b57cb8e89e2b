// Package runlog accumulates per-item outcomes for one enrichment run and
// produces the run summary.
//
// A Recorder is owned by a single goroutine. Outcomes are append-only and
// are forwarded to every Sink as they are recorded; Finalize computes the
// Summary once and returns the same value on every later call.
package runlog
