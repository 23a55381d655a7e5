package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/recon/internal/admin"
	"github.com/JonMunkholm/recon/internal/store/postgres"
)

func newSchemaCmd(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the database schema, or apply it with --apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !apply {
				fmt.Fprint(cmd.OutOrStdout(), postgres.Schema())
				return nil
			}

			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Bootstrap(cmd.Context(), pool); err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Create missing tables in the configured database")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset [entity...]",
		Short: "Empty reconciled tables (all of them by default)",
		Long: `Reset truncates the tables of the given entities and of every entity
referencing them. Without arguments every table and the run log are emptied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.entityArgs(args)
			if err != nil {
				return err
			}
			tables, err := admin.Tables(entities...)
			if err != nil {
				return withCode(exitUsage, err)
			}
			if !yes {
				return withCode(exitUsage, fmt.Errorf("reset would empty %v; pass --yes to confirm", tables))
			}

			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			r := &admin.Reset{Pool: pool}
			done, err := r.Run(cmd.Context(), entities...)
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "emptied %v\n", done)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent import runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return withCode(exitUsage, errors.New("--limit must be positive"))
			}

			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := postgres.New(pool).RecentRuns(cmd.Context(), limit)
			if err != nil {
				return withCode(exitDB, err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSCHEME\tSTATUS\tCREATED\tUPDATED\tERROR")
			for _, r := range runs {
				created, updated := r.Totals()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.RunID, r.StartedAt.Local().Format(time.DateTime),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					r.Scheme, r.Status, created, updated, r.Error)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}
