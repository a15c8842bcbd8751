package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type resolvedLocator struct {
	Locator string `json:"locator"`
	Backend string `json:"backend"`
	URL     string `json:"url"`
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <locator>...",
		Short: "Show the backend and fetch URL each locator resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r := newResolver(cfg)
			resolved := make([]resolvedLocator, 0, len(args))
			for _, locator := range args {
				url, backend := r.Resolve(locator)
				resolved = append(resolved, resolvedLocator{Locator: locator, Backend: backend.String(), URL: url})
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, resolved)
			}
			out := cmd.OutOrStdout()
			for _, item := range resolved {
				fmt.Fprintf(out, "%s\t%s\n", item.Backend, item.URL)
			}
			return nil
		},
	}
}
