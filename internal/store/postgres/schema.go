package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/recon/internal/core"
)

// RunsTable records one row per import run.
const RunsTable = "import_runs"

// Statements returns the DDL creating every registered entity table, in
// import order, followed by the run log. Every statement is idempotent.
//
// Constraint names follow the Postgres defaults (<table>_<cols>_key and
// <table>_<col>_fkey) so violations can be traced back to a field.
func Statements() []string {
	var stmts []string
	for _, def := range core.All() {
		stmts = append(stmts, tableDDL(def)...)
	}
	return append(stmts,
		`CREATE TABLE IF NOT EXISTS `+ident(RunsTable)+` (
    run_id uuid PRIMARY KEY,
    scheme text NOT NULL,
    dry_run boolean NOT NULL DEFAULT false,
    status text NOT NULL,
    started_at timestamptz NOT NULL,
    finished_at timestamptz NOT NULL,
    error text,
    report jsonb NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS import_runs_started_at_idx ON `+ident(RunsTable)+` (started_at DESC)`,
	)
}

// Schema returns Statements as one script.
func Schema() string {
	return strings.Join(Statements(), ";\n\n") + ";\n"
}

// Bootstrap applies the schema in a single transaction.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range Statements() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("bootstrap schema: %w", err)
			}
		}
		return nil
	})
}

func tableDDL(def core.EntityDefinition) []string {
	// The natural key is a table constraint only when no key scheme can
	// replace it; scheme-dependent keys are enforced by the importer.
	notNull := make(map[string]bool)
	if len(def.OriginKey) == 0 {
		for _, f := range def.NaturalKey {
			notNull[f] = true
		}
	}

	lines := []string{"    id bigserial PRIMARY KEY"}
	for _, name := range def.PersistedFields() {
		spec, _ := def.Field(name)
		col := fmt.Sprintf("    %s %s", ident(name), columnType(spec.Type))
		if notNull[name] {
			col += " NOT NULL"
		}
		if ref, ok := def.Reference(name); ok {
			if target, ok := core.Get(ref.Target); ok {
				col += " REFERENCES " + ident(target.Table) + " (id)"
			}
		}
		lines = append(lines, col)
	}
	lines = append(lines,
		"    imported_at timestamptz NOT NULL DEFAULT now()",
		"    updated_at timestamptz NOT NULL DEFAULT now()",
	)
	if len(def.OriginKey) == 0 && len(def.NaturalKey) > 0 {
		lines = append(lines, fmt.Sprintf("    UNIQUE (%s)", identList(def.NaturalKey)))
	}
	for _, f := range def.Unique {
		lines = append(lines, fmt.Sprintf("    UNIQUE (%s)", ident(f)))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)",
		ident(def.Table), strings.Join(lines, ",\n"))}

	if len(def.OriginKey) > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			ident(def.Table+"_"+strings.Join(def.OriginKey, "_")+"_key"),
			ident(def.Table), identList(def.OriginKey)))
	}
	for _, ref := range def.References {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			ident(def.Table+"_"+ref.Field+"_idx"), ident(def.Table), ident(ref.Field)))
	}
	return stmts
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident(n)
	}
	return strings.Join(out, ", ")
}
