package runlog

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"metamender/internal/logging"
)

// BeforeLimit caps the previous description written to the run log.
const BeforeLimit = 180

// LogSink writes one record per item and a closing summary record to a
// structured logger, normally the per-run log file.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "runlog")}
}

func (s *LogSink) Begin(ctx context.Context, info RunInfo) error {
	s.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String(logging.FieldRunID, info.RunID),
		logging.String(logging.FieldProvider, info.Provider),
		logging.String("model", info.Model),
	)
	return nil
}

func (s *LogSink) Record(ctx context.Context, info RunInfo, o Outcome) error {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "item_"+string(o.Status)),
		logging.String(logging.FieldItemID, o.ItemID),
		logging.String("name", o.Name),
		logging.String("kind", o.Kind),
		logging.String("outcome", string(o.Status)),
	}
	if o.Reason != "" {
		attrs = append(attrs, logging.String("reason", o.Reason))
	}
	attrs = append(attrs, logging.String("before", Shorten(o.Before, BeforeLimit)))
	if o.After != "" {
		attrs = append(attrs, logging.String("after", o.After))
	}
	if o.Tokens > 0 || o.Cost > 0 {
		attrs = append(attrs, logging.Int("tokens", o.Tokens), logging.Float64("cost", o.Cost))
	}
	if o.Detail != "" {
		attrs = append(attrs, logging.String("detail", o.Detail))
	}

	switch o.Status {
	case StatusFailed:
		logging.WarnWithContext(s.logger, "overview update failed", "item_failed", append(attrs,
			logging.String(logging.FieldErrorHint, "check the item still exists and the API key can edit metadata"),
		)...)
	case StatusSkipped:
		if o.Detail != "" {
			logging.WarnWithContext(s.logger, "generation skipped", "item_skipped", attrs...)
			return nil
		}
		s.logger.Info("item skipped", logging.Args(attrs...)...)
	default:
		s.logger.Info("overview updated", logging.Args(attrs...)...)
	}
	return nil
}

func (s *LogSink) Finish(ctx context.Context, summary Summary) error {
	s.logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String(logging.FieldRunID, summary.RunID),
		logging.Int("scanned", summary.Scanned),
		logging.Int("updated", summary.Updated),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.String("skipped_by_reason", FormatCounts(summary.SkippedByReason)),
		logging.String("failed_by_kind", FormatCounts(summary.FailedByKind)),
		logging.Int("tokens", summary.Tokens),
		logging.Float64("cost", summary.Cost),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Duration("duration", summary.Duration()),
	)
	return nil
}

// Shorten collapses whitespace and truncates s to limit runes.
func Shorten(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// FormatCounts renders a count map as "a=1,b=2" in key order.
func FormatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+strconv.Itoa(counts[key]))
	}
	return strings.Join(parts, ",")
}
