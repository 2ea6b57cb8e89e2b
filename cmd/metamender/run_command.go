package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"metamender/internal/candidate"
	"metamender/internal/catalog"
	"metamender/internal/config"
	"metamender/internal/enrich"
	"metamender/internal/history"
	"metamender/internal/logging"
	"metamender/internal/notifications"
	"metamender/internal/prompt"
	"metamender/internal/provider"
	"metamender/internal/runlock"
	"metamender/internal/runlog"
	"metamender/internal/services"
	"metamender/internal/services/jellyfin"
)

type runOptions struct {
	provider   string
	model      string
	minLength  int
	types      []string
	library    string
	noProgress bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{minLength: -1}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the catalog and fill in missing or short descriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyRunOverrides(base, opts)
			if err != nil {
				return err
			}
			return executeRun(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "", "Provider to use (openai, anthropic, google, local)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name for the selected provider")
	cmd.Flags().IntVar(&opts.minLength, "min-length", -1, "Minimum description length in characters")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "Item types to scan (e.g. MusicAlbum,MusicArtist)")
	cmd.Flags().StringVar(&opts.library, "library", "", "Restrict the scan to one library (parent id)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// applyRunOverrides returns a copy of cfg with command-line flags applied.
// Switching provider without --model selects that provider's default model.
func applyRunOverrides(cfg *config.Config, opts runOptions) (*config.Config, error) {
	clone := *cfg
	if name := strings.TrimSpace(opts.provider); name != "" {
		canonical := config.CanonicalProvider(name)
		if canonical != clone.Provider.Name {
			clone.Provider.Name = canonical
			clone.Provider.Model = config.DefaultModel(canonical)
		}
	}
	if model := strings.TrimSpace(opts.model); model != "" {
		clone.Provider.Model = model
	}
	if opts.minLength >= 0 {
		clone.Catalog.MinLength = opts.minLength
	}
	if types := trimAll(opts.types); len(types) > 0 {
		clone.Catalog.ItemTypes = types
	}
	if library := strings.TrimSpace(opts.library); library != "" {
		clone.Jellyfin.LibraryID = library
	}
	if err := clone.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "apply flags", "", err)
	}
	return &clone, nil
}

func executeRun(parent context.Context, cfg *config.Config, opts runOptions, out, errOut io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	started := time.Now()
	info := runlog.RunInfo{
		RunID:     uuid.NewString(),
		Provider:  cfg.Provider.Name,
		Model:     cfg.Provider.Model,
		LogPath:   logging.RunLogPath(cfg.Paths.LogDir, started),
		StartedAt: started.UTC(),
	}

	showProgress := !opts.noProgress && isTerminal(errOut)
	logger, closer, err := logging.NewFromConfig(cfg, info.LogPath, !showProgress)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "logging", "init", "", err)
	}
	defer closer.Close()
	logging.CleanupRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, info.LogPath)

	composer, err := prompt.NewComposer(cfg.Prompt)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "prompt", "parse templates", "", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	var progress enrich.Progress
	if showProgress {
		progress = newBarProgress(errOut)
	}

	client := jellyfin.NewFromConfig(cfg)
	pipeline := enrich.NewPipeline(enrich.Deps{
		Scanner:   catalog.NewScanner(client, logger),
		Generator: provider.New(cfg, composer, provider.WithLogger(logger)),
		Applier:   catalog.NewApplier(client, logger),
		Policy:    candidate.Policy{MinLength: cfg.Catalog.MinLength},
		Scope: catalog.Scope{
			ItemTypes:    cfg.Catalog.ItemTypes,
			ExcludeTypes: cfg.Catalog.ExcludeTypes,
			LibraryID:    cfg.Jellyfin.LibraryID,
		},
		Sinks:    []runlog.Sink{runlog.NewLogSink(logger), store},
		Progress: progress,
		Logger:   logger,
	})

	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier := notifications.NewService(cfg)
	notifyCtx := context.WithoutCancel(parent)

	summary, runErr := pipeline.Run(signalCtx, info)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		if err := notifier.NotifyRunFailed(notifyCtx, runErr); err != nil {
			logger.Warn("run failure notification failed", logging.Error(err))
		}
		return runErr
	}

	printRunReport(out, summary)
	if err := notifier.NotifyRunCompleted(notifyCtx, summary); err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no completion notice was delivered"),
		)
	}
	return runErr
}

// nothingToFix reports whether every scanned item was already adequate.
func nothingToFix(summary runlog.Summary) bool {
	if summary.Updated > 0 || summary.Failed > 0 {
		return false
	}
	return summary.Skipped == summary.SkippedByReason[candidate.ReasonAlreadyAdequate]
}

func printRunReport(out io.Writer, summary runlog.Summary) {
	if summary.Interrupted {
		fmt.Fprintln(out, "Run interrupted; summary covers the items processed so far.")
	} else if nothingToFix(summary) {
		fmt.Fprintln(out, "Nothing to fix – library already polished!")
		fmt.Fprintf(out, "Log: %s\n", summary.LogPath)
		return
	}

	rows := [][]string{
		{"Run", summary.RunID},
		{"Provider", summary.Provider + " / " + summary.Model},
		{"Scanned", fmt.Sprintf("%d", summary.Scanned)},
		{"Updated", fmt.Sprintf("%d", summary.Updated)},
		{"Skipped", formatBucket(summary.Skipped, summary.SkippedByReason)},
		{"Failed", formatBucket(summary.Failed, summary.FailedByKind)},
		{"Tokens", fmt.Sprintf("%d", summary.Tokens)},
		{"Approx. cost", formatCost(summary.Cost)},
		{"Duration", summary.Duration().Round(time.Second).String()},
		{"Log", summary.LogPath},
	}
	fmt.Fprintln(out, renderKeyValues(rows))
}

func formatBucket(total int, counts map[string]int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (%s)", total, runlog.FormatCounts(counts))
}

func formatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
