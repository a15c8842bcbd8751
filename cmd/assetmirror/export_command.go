package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"assetmirror/internal/descriptor"
	"assetmirror/internal/fileutil"
	"assetmirror/internal/logging"
	"assetmirror/internal/textutil"
)

type exportSummary struct {
	Dir      string   `json:"dir"`
	Exported int      `json:"exported"`
	Missing  []string `json:"missing,omitempty"`
}

func newExportMetadataCommand(ctx *commandContext) *cobra.Command {
	var entries []string
	var dir string

	cmd := &cobra.Command{
		Use:   "export-metadata",
		Short: "Bundle every pointer descriptor as <asset id>.json",
		Long: `Export-metadata copies each catalog entry's pointer descriptor from the
original store into one directory, named by the descriptor's asset id. Entries
without a pointer document are listed and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(dir)
			if target == "" {
				target = cfg.Paths.MetadataDir
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create metadata directory %q: %w", target, err)
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			cat, err := loadCatalog(cfg, entries)
			if err != nil {
				return err
			}
			store, err := newDescriptorStore(cfg)
			if err != nil {
				return err
			}
			index, err := descriptor.BuildIndex(store, cat)
			if err != nil {
				return err
			}

			summary := exportSummary{Dir: target, Missing: index.Missing()}
			for _, entry := range cat.Entries() {
				pointer, ok := index.Pointer(entry.ID)
				if !ok {
					continue
				}
				name := textutil.SanitizeFileName(pointer.AssetID)
				if name == "" {
					name = entry.ID
				}
				dst := filepath.Join(target, name+".json")
				if err := fileutil.WriteFileAtomic(dst, pointer.Raw, 0o644); err != nil {
					return fmt.Errorf("export %s: %w", entry.ID, err)
				}
				summary.Exported++
			}
			for _, id := range summary.Missing {
				logger.Warn("pointer descriptor missing; entry not exported", logging.String(logging.FieldEntryID, id))
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d descriptors to %s (%d missing)\n",
				summary.Exported, summary.Dir, len(summary.Missing))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&entries, "entry", "e", nil, "Limit the export to these entry ids")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Override paths.metadata_dir")
	return cmd
}
