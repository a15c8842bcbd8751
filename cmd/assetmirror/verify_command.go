package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"assetmirror/internal/contenthash"
	"assetmirror/internal/ledger"
	"assetmirror/internal/logging"
	"assetmirror/internal/notifications"
	"assetmirror/internal/verify"
)

type verifyOptions struct {
	entries []string
	hashes  bool
}

type verifyOutput struct {
	RunID string `json:"run_id"`
	*verify.Result
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every root for missing, empty or out-of-spec resources",
		Long: `Verify sweeps the original root and every mirror root for the canonical
resources of each catalog entry. Size, dimension and hash problems are reported
as warnings. A character document whose name differs from the catalog is fatal
and makes the command exit non-zero after the full sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, ctx, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.entries, "entry", "e", nil, "Limit the sweep to these entry ids")
	cmd.Flags().BoolVar(&opts.hashes, "hashes", false, "Also hash every present leaf and compare with its declared identifier")
	return cmd
}

func runVerify(cmd *cobra.Command, ctx *commandContext, opts verifyOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logger, err := ctx.logger(cmd)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg, opts.entries)
	if err != nil {
		return err
	}
	store, err := newDescriptorStore(cfg)
	if err != nil {
		return err
	}
	var hasher contenthash.Hasher
	if opts.hashes || cfg.Verify.CheckHashes {
		if hasher, err = newHasher(cfg); err != nil {
			return err
		}
	}

	runID := uuid.NewString()
	runCtx := logging.WithRunID(cmd.Context(), runID)
	logger = logging.WithContext(runCtx, logger)

	engine, err := verify.New(verify.Options{
		Roots:          verifyRoots(cfg),
		Specs:          verify.SpecTableFromConfig(cfg.Verify.Images),
		EmptyThreshold: cfg.Verify.EmptyThresholdBytes,
		Store:          store,
		Hasher:         hasher,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	history, err := ledger.OpenConfig(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer history.Close()
	if history != nil {
		if _, err := history.BeginRun(runCtx, runID, ledger.CommandVerify); err != nil {
			return err
		}
	}

	started := time.Now()
	result, verifyErr := engine.Verify(runCtx, cat)
	fatalErr := verifyErr
	if fatalErr == nil {
		fatalErr = verify.FatalError(result)
	}

	if history != nil {
		if err := history.RecordFindings(runCtx, runID, result.Findings); err != nil {
			logger.Warn("ledger findings write failed", logging.Error(err))
		}
		err := history.FinishRun(runCtx, runID, ledger.Summary{
			Entries:  result.Entries,
			Findings: len(result.Findings),
			Fatal:    len(result.Fatal()),
			Err:      verifyErr,
		})
		if err != nil {
			logger.Warn("ledger finish failed", logging.Error(err))
		}
	}
	logger.Info("verify finished",
		logging.Int("files_checked", result.Checked),
		logging.Int("findings", len(result.Findings)),
		logging.Int("fatal", len(result.Fatal())),
	)

	notifyRunFinished(runCtx, cfg, logger, notifications.RunNotice{
		Command:  ledger.CommandVerify,
		RunID:    runID,
		Entries:  result.Entries,
		Findings: len(result.Findings),
		Fatal:    len(result.Fatal()),
		Duration: time.Since(started),
		Err:      verifyErr,
	})

	if ctx.jsonOutput() {
		if err := writeJSON(cmd, verifyOutput{RunID: runID, Result: result}); err != nil {
			return err
		}
	} else {
		printFindings(cmd, runID, result)
	}
	return fatalErr
}

func printFindings(cmd *cobra.Command, runID string, result *verify.Result) {
	out := cmd.OutOrStdout()
	p := newPainter(out)
	fmt.Fprintf(out, "Run %s: %d roots, %d entries, %d files checked, %d findings (%d fatal)\n",
		runID, result.Roots, result.Entries, result.Checked, len(result.Findings), len(result.Fatal()))
	if len(result.Findings) == 0 {
		return
	}

	findings := append([]verify.Finding(nil), result.Findings...)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity == verify.SeverityFatal && findings[j].Severity != verify.SeverityFatal
	})
	rows := make([][]string, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, []string{p.status(string(f.Severity)), string(f.Code), f.Root, f.EntryID, f.File, f.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Severity", "Code", "Root", "Entry", "File", "Detail"}, rows, nil))

	counts := result.CountByCode()
	summary := make([][]string, 0, len(counts))
	for _, code := range result.Codes() {
		summary = append(summary, []string{string(code), strconv.Itoa(counts[code])})
	}
	fmt.Fprintln(out, renderTable([]string{"Code", "Count"}, summary, []columnAlignment{alignLeft, alignRight}))
}
