package runlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"metamender/internal/logging"
)

// ErrFinalized is returned when recording after Finalize.
var ErrFinalized = errors.New("run already finalized")

// Sink receives run events as they happen.
type Sink interface {
	Begin(ctx context.Context, info RunInfo) error
	Record(ctx context.Context, info RunInfo, outcome Outcome) error
	Finish(ctx context.Context, summary Summary) error
}

// Recorder accumulates outcomes for one run. It is not safe for concurrent use.
type Recorder struct {
	info      RunInfo
	sinks     []Sink
	logger    *slog.Logger
	now       func() time.Time
	outcomes  []Outcome
	summary   Summary
	finalized bool
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// NewRecorder starts a run and notifies every sink.
func NewRecorder(ctx context.Context, info RunInfo, sinks []Sink, opts ...Option) *Recorder {
	r := &Recorder{
		info:   info,
		sinks:  sinks,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "runlog")
	if r.info.StartedAt.IsZero() {
		r.info.StartedAt = r.now()
	}
	// A run whose context is already cancelled is still registered.
	beginCtx := context.WithoutCancel(ctx)
	for _, sink := range r.sinks {
		if err := sink.Begin(beginCtx, r.info); err != nil {
			r.sinkFailed(ctx, "begin", err)
		}
	}
	return r
}

// Info returns the run identity.
func (r *Recorder) Info() RunInfo {
	return r.info
}

// Record appends outcome and forwards it to the sinks.
func (r *Recorder) Record(ctx context.Context, outcome Outcome) error {
	if r.finalized {
		return ErrFinalized
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = r.now()
	}
	r.outcomes = append(r.outcomes, outcome)
	// The item in flight when a run is cancelled is still persisted.
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range r.sinks {
		if err := sink.Record(sinkCtx, r.info, outcome); err != nil {
			r.sinkFailed(ctx, "record", err)
		}
	}
	return nil
}

// Outcomes returns a copy of the recorded outcomes in order.
func (r *Recorder) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Finalize computes the summary and notifies the sinks. Later calls return
// the same summary without touching the sinks again. interrupted marks a run
// that stopped before the catalog was exhausted.
func (r *Recorder) Finalize(ctx context.Context, interrupted bool) Summary {
	if r.finalized {
		return r.summary.clone()
	}
	r.finalized = true

	summary := Summary{
		RunInfo:         r.info,
		FinishedAt:      r.now(),
		SkippedByReason: map[string]int{},
		FailedByKind:    map[string]int{},
		Interrupted:     interrupted,
	}
	for _, o := range r.outcomes {
		summary.Scanned++
		switch o.Status {
		case StatusApplied:
			summary.Updated++
		case StatusSkipped:
			summary.Skipped++
			summary.SkippedByReason[o.Reason]++
		default:
			summary.Failed++
			summary.FailedByKind[o.Reason]++
		}
		summary.Tokens += o.Tokens
		summary.Cost += o.Cost
	}
	r.summary = summary

	// Sinks still get the summary when the run context was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	for _, sink := range r.sinks {
		if err := sink.Finish(finishCtx, summary.clone()); err != nil {
			r.sinkFailed(ctx, "finish", err)
		}
	}
	return summary.clone()
}

func (r *Recorder) sinkFailed(ctx context.Context, op string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "run log sink failed", "runlog_sink_failed",
		logging.String("op", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the state directory is writable"),
		logging.String(logging.FieldImpact, "run history may be incomplete"),
	)
}
