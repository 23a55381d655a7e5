package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/recon/internal/core"
	"github.com/JonMunkholm/recon/internal/ingest"
	"github.com/JonMunkholm/recon/internal/store/memory"
	"github.com/JonMunkholm/recon/internal/store/postgres"
)

type importFlags struct {
	dataDir   string
	scheme    string
	walkIn    string
	outDir    string
	dryRun    bool
	archive   bool
	bootstrap bool
	offline   bool
}

func newImportCmd(a *app) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import [entity...]",
		Short: "Import extracts into the database",
		Long: `Import reads <data-dir>/<origin>/<directory>/ extracts of the given entities
(all of them by default), reconciles them against the database and commits
each entity type in its own transaction, in dependency order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a)
			return runImport(cmd.Context(), cmd.OutOrStdout(), a, args, f)
		},
	}

	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "Root of the origin extract trees (RECON_DATA_DIR)")
	cmd.Flags().StringVar(&f.scheme, "scheme", "", "Customer and seller key scheme: name or origin (RECON_KEY_SCHEME)")
	cmd.Flags().StringVar(&f.walkIn, "walk-in", "", "Walk-in customer placeholder name (RECON_WALK_IN_NAME)")
	cmd.Flags().StringVar(&f.outDir, "out", "", "Directory for failed-row reports (RECON_OUT_DIR)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Roll back every entity transaction (RECON_DRY_RUN)")
	cmd.Flags().BoolVar(&f.archive, "archive", false, "Move processed extracts into Uploaded/ (RECON_ARCHIVE)")
	cmd.Flags().BoolVar(&f.bootstrap, "bootstrap", false, "Create missing tables before importing")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "Run against an empty in-memory store to check extracts without a database")
	cmd.MarkFlagsMutuallyExclusive("offline", "bootstrap")
	return cmd
}

// apply overrides configuration with the flags given on the command line.
func (f *importFlags) apply(cmd *cobra.Command, a *app) {
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		a.cfg.Import.DataDir = f.dataDir
	}
	if flags.Changed("scheme") {
		a.cfg.Import.KeyScheme = f.scheme
	}
	if flags.Changed("walk-in") {
		a.cfg.Import.WalkInName = f.walkIn
	}
	if flags.Changed("out") {
		a.cfg.Import.OutDir = f.outDir
	}
	if flags.Changed("dry-run") {
		a.cfg.Import.DryRun = f.dryRun
	}
	if flags.Changed("archive") {
		a.cfg.Import.Archive = f.archive
	}
}

func runImport(ctx context.Context, out io.Writer, a *app, args []string, f importFlags) error {
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

	var store core.Store
	if f.offline {
		store = memory.New()
	} else {
		pool, err := a.connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if f.bootstrap {
			if err := postgres.Bootstrap(ctx, pool); err != nil {
				return withCode(exitDB, err)
			}
		}
		store = postgres.New(pool)
	}

	source := ingest.NewDirSource(a.cfg.Import.DataDir, opts.Origins.List(), a.cfg.Import.MaxFileSize)
	report, runErr := core.NewImporter(store, source, opts).Run(ctx, entities...)

	if err := printReport(out, report); err != nil {
		slog.Error("failed to print run report", "error", err)
	}
	if path, err := writeFailedRows(a.cfg.Import.OutDir, report); err != nil {
		slog.Error("failed to write failed-row report", "error", err)
	} else if path != "" {
		fmt.Fprintf(out, "\nfailed rows written to %s\n", path)
	}

	return classify(runErr)
}

// classify picks the exit code of a run error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		mc *core.MissingColumnError
		cv *core.ConstraintViolation
	)
	switch {
	case errors.As(err, &mc):
		return withCode(exitValidation, err)
	case errors.As(err, &cv):
		return withCode(exitDB, err)
	default:
		return withCode(exitFailure, err)
	}
}

// printReport writes one line per entity and the skip reasons below it.
func printReport(out io.Writer, report *core.RunReport) error {
	if report == nil {
		return nil
	}

	mode := ""
	if report.DryRun {
		mode = " (dry run, nothing committed)"
	}
	fmt.Fprintf(out, "run %s: %s%s\n\n", report.RunID, report.Status, mode)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ENTITY\tPHASE\tREAD\tCREATED\tUPDATED\tUNCHANGED\tSKIPPED\tDUPLICATES\tMERGED\tERRORED\t")
	for _, s := range report.Entities {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			s.Entity, s.Phase, s.Read, s.Created, s.Updated, s.Unchanged,
			s.Skipped, s.Duplicates, s.Merged, s.Errored)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	for _, s := range report.Entities {
		var notes []string
		if s.Note != "" {
			notes = append(notes, s.Note)
		}
		if s.Collapsed > 0 {
			notes = append(notes, fmt.Sprintf("%d walk-in rows collapsed", s.Collapsed))
		}
		for _, reason := range sortedReasons(s.SkipReasons) {
			notes = append(notes, fmt.Sprintf("%s: %d", reason, s.SkipReasons[reason]))
		}
		if s.Error != "" {
			notes = append(notes, "error: "+s.Error)
		}
		if len(notes) > 0 {
			fmt.Fprintf(out, "  %s: %s\n", s.Entity, strings.Join(notes, "; "))
		}
	}
	return nil
}

func sortedReasons(m map[core.SkipReason]int) []core.SkipReason {
	out := make([]core.SkipReason, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// writeFailedRows writes every entity's failed rows into one CSV under dir
// and returns its path, or "" when nothing failed.
func writeFailedRows(dir string, report *core.RunReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := &ingest.Table{Columns: []string{"entity", "source", "line", "key", "reason", "detail"}}
	for _, s := range report.Entities {
		for _, row := range s.FailedRows {
			line := ""
			if row.Line > 0 {
				line = strconv.Itoa(row.Line)
			}
			t.Rows = append(t.Rows, ingest.Row{Values: []string{
				string(s.Entity), row.Source, line, row.Key, string(row.Reason), row.Detail,
			}})
		}
	}
	if t.Len() == 0 {
		return "", nil
	}

	path := filepath.Join(dir, fmt.Sprintf("failed-%s.csv", shortID(report.RunID)))
	if err := ingest.WriteFile(path, t); err != nil {
		return "", err
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
