// Package logging assembles structured slog loggers and formatting helpers used
// across MetaMender.
//
// It owns the console/JSON handlers, centralizes level and output plumbing
// (stdout plus the per-run log file), and exposes context-aware helpers so
// pipeline code can automatically tag log lines with run IDs, catalog item IDs,
// and provider names. The package also provides a no-op logger for tests and
// wiring code that cannot fail, plus retention pruning for old run logs.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape.
package logging
