package enrich

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"time"

	"metamender/internal/candidate"
	"metamender/internal/catalog"
	"metamender/internal/logging"
	"metamender/internal/media"
	"metamender/internal/provider"
	"metamender/internal/runlog"
	"metamender/internal/services"
)

// Scanner lists catalog items.
type Scanner interface {
	Scan(ctx context.Context, scope catalog.Scope) (iter.Seq[media.Item], error)
}

// Applier writes a description back to the catalog.
type Applier interface {
	Apply(ctx context.Context, item media.Item, text string) catalog.ApplyResult
}

// Progress receives per-item progress. Start is called once the scan
// succeeded, Step after each outcome, and Finish when the run ends.
type Progress interface {
	Start(total int)
	Step(outcome runlog.Outcome)
	Finish()
}

// Deps wires a Pipeline.
type Deps struct {
	Scanner   Scanner
	Generator provider.Generator
	Applier   Applier
	Policy    candidate.Policy
	Scope     catalog.Scope
	Sinks     []runlog.Sink
	Progress  Progress
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Pipeline orchestrates one enrichment run.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

// NewPipeline constructs a pipeline.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Progress == nil {
		deps.Progress = noopProgress{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Pipeline{
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "enrich"),
	}
}

// Run processes every scanned item in order. A failed scan returns an error
// wrapping catalog.ErrCatalogUnavailable and no summary. When ctx is
// cancelled the item in flight is finished, the run stops before the next
// item, and the partial summary is returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, info runlog.RunInfo) (runlog.Summary, error) {
	ctx = services.WithRunID(ctx, info.RunID)
	ctx = services.WithProvider(ctx, info.Provider)
	logger := logging.WithContext(ctx, p.logger)

	seq, err := p.deps.Scanner.Scan(ctx, p.deps.Scope)
	if err != nil {
		logging.ErrorWithContext(logger, "catalog scan failed", "catalog_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		return runlog.Summary{}, err
	}
	items := slices.Collect(seq)

	if info.StartedAt.IsZero() {
		info.StartedAt = p.deps.Clock()
	}
	recorder := runlog.NewRecorder(ctx, info, p.deps.Sinks,
		runlog.WithLogger(p.deps.Logger),
		runlog.WithClock(p.deps.Clock),
	)

	p.deps.Progress.Start(len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		// The item in flight runs to completion; only the loop observes
		// cancellation.
		outcome := p.process(context.WithoutCancel(ctx), item)
		if err := recorder.Record(ctx, outcome); err != nil {
			logger.Error("record outcome failed", logging.Error(err))
		}
		p.deps.Progress.Step(outcome)
	}

	interrupted := ctx.Err() != nil
	summary := recorder.Finalize(ctx, interrupted)
	p.deps.Progress.Finish()

	if interrupted {
		logging.WarnWithContext(logger, "run interrupted", "run_interrupted",
			logging.Int("processed", summary.Scanned),
			logging.Int("remaining", len(items)-summary.Scanned),
			logging.String(logging.FieldErrorHint, "rerun to process the remaining items"),
			logging.String(logging.FieldImpact, "remaining items left unchanged"),
		)
		return summary, ctx.Err()
	}
	return summary, nil
}

// process takes one item to its terminal outcome.
func (p *Pipeline) process(ctx context.Context, item media.Item) runlog.Outcome {
	ctx = services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(ctx, p.logger)
	outcome := runlog.Outcome{
		ItemID: item.ID,
		Name:   item.Label(),
		Kind:   item.Kind,
		Before: item.Overview,
	}

	decision := p.deps.Policy.Evaluate(item)
	logger.Debug("candidate evaluated", logging.Args(append(
		logging.DecisionAttrs("candidate_filter", boolResult(decision.Qualifies), decision.Reason),
		logging.Int("length", decision.Length),
		logging.Int("min_length", p.deps.Policy.MinLength),
	)...)...)
	if !decision.Qualifies {
		outcome.Status = runlog.StatusSkipped
		outcome.Reason = candidate.ReasonAlreadyAdequate
		return outcome
	}

	result := p.deps.Generator.Generate(ctx, item)
	if !result.OK {
		outcome.Status = runlog.StatusSkipped
		outcome.Reason = string(result.Kind)
		outcome.Detail = result.Message
		return outcome
	}
	outcome.Tokens = result.Tokens
	outcome.Cost = result.Cost
	outcome.After = result.Text

	applied := p.deps.Applier.Apply(ctx, item, result.Text)
	switch applied.Status {
	case catalog.Applied:
		outcome.Status = runlog.StatusApplied
	case catalog.Skipped:
		outcome.Status = runlog.StatusSkipped
		outcome.Reason = applied.Reason
	default:
		outcome.Status = runlog.StatusFailed
		outcome.Reason = string(applied.Kind)
		if applied.Err != nil {
			outcome.Detail = applied.Err.Error()
		}
	}
	return outcome
}

func boolResult(v bool) string {
	if v {
		return "qualifies"
	}
	return "rejected"
}

type noopProgress struct{}

func (noopProgress) Start(int)           {}
func (noopProgress) Step(runlog.Outcome) {}
func (noopProgress) Finish()             {}
