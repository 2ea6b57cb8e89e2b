package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"metamender/internal/runlog"
)

// ErrRunNotFound is returned when no run matches an identifier.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRun is returned when a run ID prefix matches several runs.
var ErrAmbiguousRun = errors.New("run id prefix is ambiguous")

const runColumns = "run_id, provider, model, log_path, started_at, finished_at, scanned, updated, skipped, failed, skipped_by_reason_json, failed_by_kind_json, tokens, cost, interrupted"

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]runlog.Summary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []runlog.Summary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose ID equals or starts with id.
func (s *Store) GetRun(ctx context.Context, id string) (runlog.Summary, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return runlog.Summary{}, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs WHERE run_id = ? OR run_id LIKE ? ORDER BY run_id = ? DESC LIMIT 2`,
		id, stripWildcards(id)+"%", id,
	)
	if err != nil {
		return runlog.Summary{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []runlog.Summary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return runlog.Summary{}, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return runlog.Summary{}, err
	}
	switch {
	case len(matches) == 0:
		return runlog.Summary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case matches[0].RunID == id || len(matches) == 1:
		return matches[0], nil
	default:
		return runlog.Summary{}, fmt.Errorf("%w: %s", ErrAmbiguousRun, id)
	}
}

// Outcomes returns the recorded outcomes for a run in processing order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]runlog.Outcome, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT item_id, name, kind, status, reason, detail, before_text, after_text, tokens, cost, recorded_at
         FROM outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []runlog.Outcome
	for rows.Next() {
		var (
			o          runlog.Outcome
			status     string
			name       sql.NullString
			kind       sql.NullString
			reason     sql.NullString
			detail     sql.NullString
			before     sql.NullString
			after      sql.NullString
			recordedAt sql.NullString
		)
		if err := rows.Scan(&o.ItemID, &name, &kind, &status, &reason, &detail, &before, &after, &o.Tokens, &o.Cost, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Name = name.String
		o.Kind = kind.String
		o.Status = runlog.Status(status)
		o.Reason = reason.String
		o.Detail = detail.String
		o.Before = before.String
		o.After = after.String
		o.RecordedAt = parseTime(recordedAt)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (runlog.Summary, error) {
	var (
		run         runlog.Summary
		logPath     sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		skippedJSON sql.NullString
		failedJSON  sql.NullString
		interrupted int
	)
	if err := scanner.Scan(
		&run.RunID,
		&run.Provider,
		&run.Model,
		&logPath,
		&startedRaw,
		&finishedRaw,
		&run.Scanned,
		&run.Updated,
		&run.Skipped,
		&run.Failed,
		&skippedJSON,
		&failedJSON,
		&run.Tokens,
		&run.Cost,
		&interrupted,
	); err != nil {
		return runlog.Summary{}, err
	}
	run.LogPath = logPath.String
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	run.Interrupted = interrupted != 0
	run.SkippedByReason = decodeCounts(skippedJSON)
	run.FailedByKind = decodeCounts(failedJSON)
	return run, nil
}

func decodeCounts(raw sql.NullString) map[string]int {
	counts := map[string]int{}
	if !raw.Valid || raw.String == "" {
		return counts
	}
	_ = json.Unmarshal([]byte(raw.String), &counts)
	return counts
}

func stripWildcards(value string) string {
	return strings.NewReplacer(`%`, ``, `_`, ``).Replace(value)
}
