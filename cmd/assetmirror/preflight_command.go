package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetmirror/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var gateways bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check roots, free space, gateways and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{CheckGateways: gateways})
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				printPreflight(cmd, results)
			}
			if preflight.Failed(results) {
				return preflightError(results)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&gateways, "gateways", false, "Also probe the Sia portal and IPFS gateway over HTTP")
	return cmd
}

func printPreflight(cmd *cobra.Command, results []preflight.Result) {
	out := cmd.OutOrStdout()
	p := newPainter(out)
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := "PASS"
		switch {
		case !r.Passed && r.Optional:
			state = "WARN"
		case !r.Passed:
			state = "FAIL"
		}
		rows = append(rows, []string{p.status(state), r.Name, r.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Result", "Check", "Detail"}, rows, nil))
}
