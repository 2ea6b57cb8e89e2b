package runlog

import (
	"maps"
	"time"
)

// Status is the terminal classification of a scanned item.
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the record kept for one scanned item.
type Outcome struct {
	ItemID     string
	Name       string
	Kind       string
	Before     string
	After      string
	Tokens     int
	Cost       float64
	Status     Status
	Reason     string
	Detail     string
	RecordedAt time.Time
}

// RunInfo identifies a run before any outcome is recorded.
type RunInfo struct {
	RunID     string
	Provider  string
	Model     string
	LogPath   string
	StartedAt time.Time
}

// Summary is the aggregate view of a run. Every recorded outcome lands in
// exactly one of Updated, Skipped, or Failed.
type Summary struct {
	RunInfo
	FinishedAt      time.Time
	Scanned         int
	Updated         int
	Skipped         int
	Failed          int
	SkippedByReason map[string]int
	FailedByKind    map[string]int
	Tokens          int
	Cost            float64
	Interrupted     bool
}

// Classified returns the number of items with a terminal classification.
func (s Summary) Classified() int {
	return s.Updated + s.Skipped + s.Failed
}

// Duration returns the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s Summary) clone() Summary {
	s.SkippedByReason = maps.Clone(s.SkippedByReason)
	s.FailedByKind = maps.Clone(s.FailedByKind)
	return s
}
