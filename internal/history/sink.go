package history

import (
	"context"
	"encoding/json"
	"fmt"

	"metamender/internal/runlog"
)

var _ runlog.Sink = (*Store)(nil)

// Begin inserts the run row.
func (s *Store) Begin(ctx context.Context, info runlog.RunInfo) error {
	err := s.exec(ctx,
		`INSERT INTO runs (run_id, provider, model, log_path, started_at) VALUES (?, ?, ?, ?, ?)`,
		info.RunID,
		info.Provider,
		info.Model,
		nullableString(info.LogPath),
		formatTime(info.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", info.RunID, err)
	}
	return nil
}

// Record appends one outcome to the run.
func (s *Store) Record(ctx context.Context, info runlog.RunInfo, o runlog.Outcome) error {
	err := s.exec(ctx,
		`INSERT INTO outcomes (
            run_id, item_id, name, kind, status, reason, detail,
            before_text, after_text, tokens, cost, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.RunID,
		o.ItemID,
		nullableString(o.Name),
		nullableString(o.Kind),
		string(o.Status),
		nullableString(o.Reason),
		nullableString(o.Detail),
		nullableString(o.Before),
		nullableString(o.After),
		o.Tokens,
		o.Cost,
		formatTime(o.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outcome %s/%s: %w", info.RunID, o.ItemID, err)
	}
	return nil
}

// Finish stores the run totals.
func (s *Store) Finish(ctx context.Context, summary runlog.Summary) error {
	skipped, err := json.Marshal(summary.SkippedByReason)
	if err != nil {
		return fmt.Errorf("encode skip reasons: %w", err)
	}
	failed, err := json.Marshal(summary.FailedByKind)
	if err != nil {
		return fmt.Errorf("encode failure kinds: %w", err)
	}
	interrupted := 0
	if summary.Interrupted {
		interrupted = 1
	}
	err = s.exec(ctx,
		`UPDATE runs
         SET finished_at = ?, scanned = ?, updated = ?, skipped = ?, failed = ?,
             skipped_by_reason_json = ?, failed_by_kind_json = ?, tokens = ?, cost = ?, interrupted = ?
         WHERE run_id = ?`,
		formatTime(summary.FinishedAt),
		summary.Scanned,
		summary.Updated,
		summary.Skipped,
		summary.Failed,
		string(skipped),
		string(failed),
		summary.Tokens,
		summary.Cost,
		interrupted,
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", summary.RunID, err)
	}
	return nil
}
