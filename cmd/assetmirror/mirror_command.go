package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"assetmirror/internal/config"
	"assetmirror/internal/ledger"
	"assetmirror/internal/logging"
	"assetmirror/internal/mirror"
	"assetmirror/internal/notifications"
	"assetmirror/internal/preflight"
	"assetmirror/internal/runlock"
	"assetmirror/internal/staging"
)

type mirrorOptions struct {
	entries       []string
	workers       int
	leafPolicy    string
	skipPreflight bool
}

type mirrorEntryView struct {
	EntryID   string `json:"entry_id"`
	Status    string `json:"status"`
	Fetched   int    `json:"fetched"`
	Existing  int    `json:"existing"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

type mirrorSummary struct {
	RunID    string            `json:"run_id"`
	Entries  int               `json:"entries"`
	Mirrored int               `json:"mirrored"`
	Missing  int               `json:"missing"`
	Failed   int               `json:"failed"`
	Fetched  int               `json:"fetched"`
	Aborted  string            `json:"aborted,omitempty"`
	Problems []mirrorEntryView `json:"problems,omitempty"`
}

func newMirrorCommand(ctx *commandContext) *cobra.Command {
	var opts mirrorOptions

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Fetch and hash-verify every catalog entry into the backend roots",
		Long: `Mirror walks the catalog, verifies each entry's extended metadata against the
hash in its pointer descriptor, then fetches every leaf resource into the root of
the backend its locator resolves to. Files already present are trusted and skipped.

A hash mismatch on extended metadata always aborts the run. A mismatch on a leaf
resource fails only its entry unless the leaf policy is "run", which aborts the
run before any later entry is processed.

The command exits non-zero when the run aborted or any entry failed. Entries with
no pointer descriptor are reported and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.entries, "entry", "e", nil, "Limit the run to these entry ids")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Override mirror.workers")
	cmd.Flags().StringVar(&opts.leafPolicy, "leaf-policy", "", "Override mirror.leaf_mismatch_policy: entry fails only the entry with a bad leaf hash, run aborts the whole run")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Start without running local preflight checks")
	return cmd
}

func runMirror(cmd *cobra.Command, ctx *commandContext, opts mirrorOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Mirror.Workers = opts.workers
	}
	if policy := strings.TrimSpace(opts.leafPolicy); policy != "" {
		if policy != config.LeafPolicyEntry && policy != config.LeafPolicyRun {
			return fmt.Errorf("--leaf-policy must be %q or %q", config.LeafPolicyEntry, config.LeafPolicyRun)
		}
		cfg.Mirror.LeafMismatchPolicy = policy
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := ctx.logger(cmd)
	if err != nil {
		return err
	}

	if !opts.skipPreflight {
		results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{})
		if preflight.Failed(results) {
			return preflightError(results)
		}
	}

	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	cat, err := loadCatalog(cfg, opts.entries)
	if err != nil {
		return err
	}

	for _, root := range cfg.MirrorRoots() {
		cleaned := staging.CleanStale(cmd.Context(), root, staging.DefaultMaxAge, logger)
		if len(cleaned.Removed) > 0 {
			logger.Info("removed stale partial downloads",
				logging.String(logging.FieldPath, root),
				logging.Int("count", len(cleaned.Removed)),
			)
		}
	}

	runID := uuid.NewString()
	runCtx := logging.WithRunID(cmd.Context(), runID)
	logger = logging.WithContext(runCtx, logger)

	history, err := ledger.OpenConfig(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer history.Close()

	var recorder mirror.Recorder
	if history != nil {
		if _, err := history.BeginRun(runCtx, runID, ledger.CommandMirror); err != nil {
			return err
		}
		recorder = history.Recorder(runID)
	}

	deps, err := newMirrorEngine(cfg, logger, recorder)
	if err != nil {
		return err
	}

	logger.Info("mirror started",
		logging.Int("entries", cat.Len()),
		logging.Int("workers", cfg.Mirror.Workers),
		logging.String("leaf_policy", cfg.Mirror.LeafMismatchPolicy),
	)
	started := time.Now()
	report, runErr := deps.engine.Run(runCtx, cat)

	summary := summarizeMirror(runID, cat.Len(), report, runErr)
	if history != nil {
		finishErr := history.FinishRun(runCtx, runID, ledger.Summary{
			Entries: summary.Entries,
			Fetched: summary.Fetched,
			Failed:  summary.Failed,
			Missing: summary.Missing,
			Err:     runErr,
		})
		if finishErr != nil {
			logger.Warn("ledger finish failed", logging.Error(finishErr))
		}
	}
	logger.Info("mirror finished",
		logging.Int("mirrored", summary.Mirrored),
		logging.Int("missing", summary.Missing),
		logging.Int("failed", summary.Failed),
		logging.Int("fetched", summary.Fetched),
		logging.Int64("requests", deps.fetcher.Requests()),
	)

	notifyRunFinished(runCtx, cfg, logger, notifications.RunNotice{
		Command:  ledger.CommandMirror,
		RunID:    runID,
		Entries:  summary.Entries,
		Fetched:  summary.Fetched,
		Failed:   summary.Failed,
		Missing:  summary.Missing,
		Duration: time.Since(started),
		Err:      runErr,
	})

	if ctx.jsonOutput() {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		printMirrorSummary(cmd, summary)
	}

	switch {
	case runErr != nil:
		return fmt.Errorf("mirror aborted: %w", runErr)
	case summary.Failed > 0:
		return fmt.Errorf("mirror finished with %d failed entries", summary.Failed)
	}
	return nil
}

func summarizeMirror(runID string, total int, report *mirror.Report, runErr error) mirrorSummary {
	summary := mirrorSummary{RunID: runID, Entries: total}
	if report == nil {
		return summary
	}
	summary.Fetched = report.Fetched()
	for _, e := range report.Entries {
		switch e.Status {
		case mirror.StatusMirrored:
			summary.Mirrored++
			continue
		case mirror.StatusSkipped:
			summary.Missing++
		case mirror.StatusFailed:
			summary.Failed++
		}
		view := mirrorEntryView{
			EntryID:   e.EntryID,
			Status:    string(e.Status),
			Fetched:   e.Fetched,
			Existing:  e.Existing,
			ErrorKind: e.ErrorKind(),
		}
		if e.Err != nil {
			view.Error = e.Err.Error()
		}
		summary.Problems = append(summary.Problems, view)
	}
	if runErr != nil {
		summary.Aborted = runErr.Error()
	}
	return summary
}

func printMirrorSummary(cmd *cobra.Command, summary mirrorSummary) {
	out := cmd.OutOrStdout()
	p := newPainter(out)
	fmt.Fprintf(out, "Run %s: %d entries, %d mirrored, %d missing, %d failed, %d files fetched\n",
		summary.RunID, summary.Entries, summary.Mirrored, summary.Missing, summary.Failed, summary.Fetched)
	if len(summary.Problems) > 0 {
		rows := make([][]string, 0, len(summary.Problems))
		for _, v := range summary.Problems {
			rows = append(rows, []string{v.EntryID, p.status(v.Status), v.ErrorKind, strconv.Itoa(v.Fetched), v.Error})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Entry", "Status", "Kind", "Fetched", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
	if summary.Aborted != "" {
		fmt.Fprintf(out, "%s: %s\n", p.status("aborted"), summary.Aborted)
	}
}

func preflightError(results []preflight.Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	return errors.New("preflight failed:\n  " + strings.Join(failed, "\n  "))
}
