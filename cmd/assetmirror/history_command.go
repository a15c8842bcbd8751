package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"assetmirror/internal/ledger"
	"assetmirror/internal/mirror"
	"assetmirror/internal/verify"
)

var errLedgerDisabled = errors.New("run ledger is disabled (set ledger.enabled = true)")

type runDetail struct {
	Run      *ledger.Run             `json:"run"`
	Entries  []ledger.EntryRecord    `json:"entries,omitempty"`
	Problems []ledger.ResourceRecord `json:"problems,omitempty"`
	Findings []verify.Finding        `json:"findings,omitempty"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var command string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent mirror and verify runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), command, limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if runs == nil {
					runs = []ledger.Run{}
				}
				return writeJSON(cmd, runs)
			}
			printRuns(cmd, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&command, "command", "", "Only list runs of this command (mirror, verify)")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show entry results, failed resources and findings of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			detail, err := loadRunDetail(cmd, store, args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, detail)
			}
			printRunDetail(cmd, detail)
			return nil
		},
	}
}

func openLedger(ctx *commandContext) (*ledger.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.OpenConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if store == nil {
		return nil, errLedgerDisabled
	}
	return store, nil
}

func loadRunDetail(cmd *cobra.Command, store *ledger.Store, runID string) (*runDetail, error) {
	ctx := cmd.Context()
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	detail := &runDetail{Run: run}
	switch run.Command {
	case ledger.CommandMirror:
		if detail.Entries, err = store.EntryResults(ctx, runID); err != nil {
			return nil, err
		}
		failed, err := store.ResourceEvents(ctx, runID, mirror.OutcomeFailed)
		if err != nil {
			return nil, err
		}
		mismatched, err := store.ResourceEvents(ctx, runID, mirror.OutcomeMismatch)
		if err != nil {
			return nil, err
		}
		detail.Problems = append(failed, mismatched...)
	case ledger.CommandVerify:
		if detail.Findings, err = store.Findings(ctx, runID); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

func printRuns(cmd *cobra.Command, runs []ledger.Run) {
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	p := newPainter(out)
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Command,
			p.status(string(run.Status)),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatRunDuration(run),
			strconv.Itoa(run.Entries),
			runOutcome(run),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Command", "Status", "Started", "Duration", "Entries", "Outcome"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func runOutcome(run ledger.Run) string {
	if run.Command == ledger.CommandVerify {
		return fmt.Sprintf("%d findings, %d fatal", run.Findings, run.Fatal)
	}
	return fmt.Sprintf("%d fetched, %d failed, %d missing", run.Fetched, run.Failed, run.Missing)
}

func formatRunDuration(run ledger.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}

func printRunDetail(cmd *cobra.Command, detail *runDetail) {
	out := cmd.OutOrStdout()
	p := newPainter(out)
	run := detail.Run
	fmt.Fprintf(out, "Run %s (%s): %s, %s\n", run.ID, run.Command, p.status(string(run.Status)), runOutcome(*run))
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error (%s): %s\n", run.ErrorKind, run.ErrorMessage)
	}

	if len(detail.Entries) > 0 {
		rows := make([][]string, 0, len(detail.Entries))
		for _, e := range detail.Entries {
			rows = append(rows, []string{e.EntryID, p.status(e.Status), strconv.Itoa(e.Fetched), strconv.Itoa(e.Existing), e.ErrorKind})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Entry", "Status", "Fetched", "Existing", "Kind"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	if len(detail.Problems) > 0 {
		rows := make([][]string, 0, len(detail.Problems))
		for _, r := range detail.Problems {
			rows = append(rows, []string{r.EntryID, r.Resource, r.Backend, r.Outcome, r.URL, r.ErrorMessage})
		}
		fmt.Fprintln(out, renderTable([]string{"Entry", "Resource", "Backend", "Outcome", "URL", "Error"}, rows, nil))
	}
	if len(detail.Findings) > 0 {
		rows := make([][]string, 0, len(detail.Findings))
		for _, f := range detail.Findings {
			rows = append(rows, []string{p.status(string(f.Severity)), string(f.Code), f.Root, f.EntryID, f.File, f.Detail})
		}
		fmt.Fprintln(out, renderTable([]string{"Severity", "Code", "Root", "Entry", "File", "Detail"}, rows, nil))
	}
}
