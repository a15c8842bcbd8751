package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

type hashedFile struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

func newHashCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "hash <file>...",
		Short: "Print the content identifier of local files",
		Long: `Hash computes the same identifier mirror compares against descriptor multihash
values, using hasher.mode from the configuration unless --mode is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Hasher.Mode = mode
			}
			hasher, err := newHasher(cfg)
			if err != nil {
				return err
			}

			hashed := make([]hashedFile, 0, len(args))
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", arg, err)
				}
				sum, err := hasher.Hash(cmd.Context(), path)
				if err != nil {
					return err
				}
				hashed = append(hashed, hashedFile{Path: arg, Hash: sum})
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, hashed)
			}
			out := cmd.OutOrStdout()
			for _, h := range hashed {
				fmt.Fprintf(out, "%s  %s\n", h.Hash, h.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Override hasher.mode (unixfs, ipfs-cli)")
	return cmd
}
