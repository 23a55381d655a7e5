package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/recon/internal/core"
	"github.com/JonMunkholm/recon/internal/ingest"
)

func newConsolidateCmd(a *app) *cobra.Command {
	var (
		dataDir string
		outDir  string
		scheme  string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "consolidate [entity...]",
		Short: "Write the reconciled extracts as one table per entity",
		Long: `Consolidate runs the same normalization, deduplication and merge rules as
import but writes the result to <out>/<directory>.csv (or .xlsx) instead of
the database. References are left as the source names.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("data-dir") {
				a.cfg.Import.DataDir = dataDir
			}
			if flags.Changed("out") {
				a.cfg.Import.OutDir = outDir
			}
			if flags.Changed("scheme") {
				a.cfg.Import.KeyScheme = scheme
			}
			format = strings.ToLower(strings.TrimPrefix(format, "."))
			if format != "csv" && format != "xlsx" {
				return withCode(exitUsage, fmt.Errorf("unsupported --format %q (want csv or xlsx)", format))
			}
			return runConsolidate(cmd.Context(), cmd.OutOrStdout(), a, args, format)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Root of the origin extract trees (RECON_DATA_DIR)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (RECON_OUT_DIR)")
	cmd.Flags().StringVar(&scheme, "scheme", "", "Customer and seller key scheme: name or origin (RECON_KEY_SCHEME)")
	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or xlsx")
	return cmd
}

func runConsolidate(ctx context.Context, out io.Writer, a *app, args []string, format string) error {
	entities, err := a.entityArgs(args)
	if err != nil {
		return err
	}
	opts, err := a.cfg.Import.Options()
	if err != nil {
		return withCode(exitUsage, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Import.Timeout)
	defer cancel()

	source := ingest.NewDirSource(a.cfg.Import.DataDir, opts.Origins.List(), a.cfg.Import.MaxFileSize)
	results, err := core.Consolidate(ctx, source, opts, entities...)
	if err != nil {
		return classify(err)
	}

	for _, r := range results {
		path := filepath.Join(a.cfg.Import.OutDir, r.Entity.Directory+"."+format)
		if err := ingest.WriteFile(path, r.Table); err != nil {
			return withCode(exitFailure, err)
		}
		fmt.Fprintf(out, "%-12s %6d rows -> %s (read %d, duplicates %d, merged %d, skipped %d)\n",
			r.Entity.Type, r.Table.Len(), path,
			r.Summary.Read, r.Summary.Duplicates, r.Summary.Merged, r.Summary.Skipped)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no input files")
	}
	return nil
}
