// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/recon/internal/core"
	"github.com/JonMunkholm/recon/internal/store/postgres"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// Reset empties reconciled tables.
type Reset struct {
	Pool *pgxpool.Pool
}

// Tables returns the tables a reset of entities truncates, children first.
// With no entities every registered table and the run log are included.
// Tables referencing a truncated one are included too, since their rows
// would otherwise dangle.
func Tables(entities ...core.EntityType) ([]string, error) {
	all := core.All()
	want := make(map[core.EntityType]bool)
	for _, et := range entities {
		if _, ok := core.Get(et); !ok {
			return nil, fmt.Errorf("unknown entity: %s", et)
		}
		want[et] = true
	}

	// Dependents come after their targets in import order, so one pass
	// over that order reaches every transitive dependent.
	for _, def := range all {
		for _, ref := range def.References {
			if want[ref.Target] {
				want[def.Type] = true
			}
		}
	}

	var tables []string
	for i := len(all) - 1; i >= 0; i-- {
		if len(entities) == 0 || want[all[i].Type] {
			tables = append(tables, all[i].Table)
		}
	}
	if len(entities) == 0 {
		tables = append(tables, postgres.RunsTable)
	}
	return tables, nil
}

// Run truncates the tables of entities (all of them when none are given)
// in one transaction and restarts their id sequences.
func (r *Reset) Run(ctx context.Context, entities ...core.EntityType) ([]string, error) {
	tables, err := Tables(entities...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = pgx.Identifier{t}.Sanitize()
	}

	err = pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "TRUNCATE "+strings.Join(quoted, ", ")+" RESTART IDENTITY")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reset %s: %w", strings.Join(tables, ", "), err)
	}

	slog.Warn("tables reset", "tables", tables)
	return tables, nil
}
