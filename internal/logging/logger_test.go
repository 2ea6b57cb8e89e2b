package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"metamender/internal/config"
	"metamender/internal/logging"
	"metamender/internal/services"
)

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	runLog := logging.RunLogPath(cfg.Paths.LogDir, time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local))

	logger, closer, err := logging.NewFromConfig(&cfg, runLog, false)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("run started", logging.String(logging.FieldRunID, "run-1"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if filepath.Base(runLog) != "metamender_2025-03-04_05-06-07.log" {
		t.Fatalf("unexpected run log name %q", filepath.Base(runLog))
	}
	content, err := os.ReadFile(runLog)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), "run started") || !strings.Contains(string(content), "run_id=run-1") {
		t.Fatalf("unexpected run log content %q", content)
	}
	if matched, _ := filepath.Match(logging.RunLogPattern, filepath.Base(runLog)); !matched {
		t.Fatalf("run log %q does not match retention pattern", runLog)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	_ = closer.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no source information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")
	_ = closer.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected source information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithItemID(context.Background(), "abc123")
	ctx = services.WithRunID(ctx, "run-9")
	component := logging.NewComponentLogger(logger, "enrich")
	logging.WithContext(ctx, component).Info("overview applied", logging.String("name", "Blue Train"))
	_ = closer.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO [enrich] Item abc123", "overview applied", "run_id=run-9", `name="Blue Train"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "item_id=") || strings.Contains(line, "component=") {
		t.Fatalf("subject fields should not repeat as attributes: %q", line)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, closer, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "generation skipped", "generation_skipped", logging.Error(errors.New("rate limited")))
	_ = closer.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record[logging.FieldEventType] != "generation_skipped" {
		t.Fatalf("unexpected event_type %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil || record[logging.FieldImpact] == nil {
		t.Fatalf("expected default hint and impact, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml", OutputPaths: []string{"stdout"}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not be enabled")
	}
	logger.Error("ignored")
}

func TestCleanupRunLogsKeepsCurrentAndRecent(t *testing.T) {
	dir := t.TempDir()
	oldLog := filepath.Join(dir, "metamender_2020-01-01_00-00-00.log")
	newLog := filepath.Join(dir, "metamender_2099-01-01_00-00-00.log")
	current := filepath.Join(dir, "metamender_2019-01-01_00-00-00.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{oldLog, newLog, current, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	for _, path := range []string{oldLog, current, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	if removed := logging.CleanupRunLogs(logging.NewNop(), dir, 30, current); removed != 1 {
		t.Fatalf("expected 1 log removed, got %d", removed)
	}
	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{newLog, current, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", filepath.Base(path), err)
		}
	}
}

func TestCleanupRunLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metamender_2020-01-01_00-00-00.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().AddDate(0, 0, -400)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if removed := logging.CleanupRunLogs(logging.NewNop(), dir, 0, ""); removed != 0 {
		t.Fatalf("retention 0 must keep logs, removed %d", removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log kept: %v", err)
	}
}

func TestWarnWithContextFillsMissingFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "generation skipped", "generation_skipped",
		logging.String(logging.FieldImpact, "item skipped"),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "generation_skipped" {
		t.Fatalf("missing event_type: %v", record)
	}
	if record[logging.FieldImpact] != "item skipped" {
		t.Fatalf("explicit impact must win, got %v", record[logging.FieldImpact])
	}
	if hint, _ := record[logging.FieldErrorHint].(string); hint == "" {
		t.Fatalf("expected default error_hint, got %v", record)
	}
}
