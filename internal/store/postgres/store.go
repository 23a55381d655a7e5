// Package postgres is the pgx-backed core.Store. Bulk writes stage rows in a
// transaction-scoped temp table with COPY and merge them with one statement,
// so an entity type costs a constant number of round trips.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/recon/internal/core"
)

// Postgres error codes mapped to core.ConstraintViolation.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
)

var (
	_ core.Store = (*Store)(nil)
	_ core.Tx    = (*Tx)(nil)
)

// Store opens entity transactions on a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Begin starts a read-committed transaction.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// RecordRun stores the report in the run log.
func (s *Store) RecordRun(ctx context.Context, report *core.RunReport) error {
	id, err := uuid.Parse(report.RunID)
	if err != nil {
		return fmt.Errorf("record run: invalid run id %q: %w", report.RunID, err)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+ident(RunsTable)+` (run_id, scheme, dry_run, status, started_at, finished_at, error, report)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at,
		     error = EXCLUDED.error, report = EXCLUDED.report`,
		id, string(report.Scheme), report.DryRun, string(report.Status),
		report.StartedAt, report.FinishedAt,
		pgtype.Text{String: report.Error, Valid: report.Error != ""}, body,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit recorded runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]core.RunReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM `+ident(RunsTable)+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	reports, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.RunReport, error) {
		var body []byte
		if err := row.Scan(&body); err != nil {
			return core.RunReport{}, err
		}
		var r core.RunReport
		err := json.Unmarshal(body, &r)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return reports, nil
}

// Tx is one entity type's transaction.
type Tx struct {
	tx     pgx.Tx
	stages int
}

// FindExisting returns the lowest-id row per matching key. Keys are
// computed in Go with core.CompositeKey rather than SQL lower(), whose
// result depends on the database collation, so matching is identical to
// the in-memory store.
func (t *Tx) FindExisting(ctx context.Context, def core.EntityDefinition, keys []string) (map[string]core.Entity, error) {
	out := make(map[string]core.Entity)
	if len(keys) == 0 || len(def.NaturalKey) == 0 {
		return out, nil
	}

	notNull := make([]string, len(def.NaturalKey))
	for i, f := range def.NaturalKey {
		notNull[i] = ident(f) + " IS NOT NULL"
	}
	cols := def.PersistedFields()
	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY id",
		identList(cols), ident(def.Table), strings.Join(notNull, " AND "))

	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find existing %s: %w", def.Type, err)
	}
	defer rows.Close()

	types := make([]core.FieldType, len(cols))
	dest := make([]any, len(cols)+1)
	var id int64
	dest[0] = &id
	for i, c := range cols {
		spec, _ := def.Field(c)
		types[i] = spec.Type
	}

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	for rows.Next() {
		for i, typ := range types {
			dest[i+1] = scanTarget(typ)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", def.Type, err)
		}

		rec := make(core.Record, len(cols))
		for i, c := range cols {
			rec[c] = decode(types[i], dest[i+1])
		}
		key, ok := core.CompositeKey(rec, def.NaturalKey)
		if !ok || !want[key] {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = core.Entity{ID: id, Key: key, Fields: rec}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find existing %s: %w", def.Type, err)
	}
	return out, nil
}

// BulkInsert copies entities into a stage table and inserts them in order,
// skipping rows that collide with any unique constraint.
func (t *Tx) BulkInsert(ctx context.Context, def core.EntityDefinition, entities []core.Entity) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	cols := def.PersistedFields()
	rows := make([][]any, len(entities))
	for i, e := range entities {
		row := make([]any, 0, len(cols)+1)
		row = append(row, int64(i))
		for _, c := range cols {
			row = append(row, encode(e.Fields.Get(c)))
		}
		rows[i] = row
	}

	stage, err := t.stage(ctx, def.Table, "ord", cols, rows)
	if err != nil {
		return 0, err
	}

	tag, err := t.tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ORDER BY ord ON CONFLICT DO NOTHING",
		ident(def.Table), identList(cols), identList(cols), ident(stage)))
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// BulkUpdate overwrites fields of the rows with the entities' ids.
func (t *Tx) BulkUpdate(ctx context.Context, def core.EntityDefinition, entities []core.Entity, fields []string) (int64, error) {
	if len(entities) == 0 || len(fields) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(entities))
	for i, e := range entities {
		row := make([]any, 0, len(fields)+1)
		row = append(row, e.ID)
		for _, f := range fields {
			row = append(row, encode(e.Fields.Get(f)))
		}
		rows[i] = row
	}

	stage, err := t.stage(ctx, def.Table, "id", fields, rows)
	if err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		sets = append(sets, fmt.Sprintf("%s = s.%s", ident(f), ident(f)))
	}
	sets = append(sets, "updated_at = now()")

	tag, err := t.tx.Exec(ctx, fmt.Sprintf("UPDATE %s AS d SET %s FROM %s AS s WHERE d.id = s.id",
		ident(def.Table), strings.Join(sets, ", "), ident(stage)))
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// CollapsePlaceholder keeps the lowest-id placeholder row, re-points refs at
// it and deletes the other placeholder rows. Names are compared in Go so
// accent and case variants of the placeholder are caught.
func (t *Tx) CollapsePlaceholder(ctx context.Context, def core.EntityDefinition, refs []core.ReferenceOwner) (int64, error) {
	field := def.PlaceholderField
	rows, err := t.tx.Query(ctx, fmt.Sprintf("SELECT id, %s FROM %s WHERE %s IS NOT NULL ORDER BY id",
		ident(field), ident(def.Table), ident(field)))
	if err != nil {
		return 0, fmt.Errorf("collapse %s: %w", def.Type, err)
	}

	var (
		ids  []int64
		id   int64
		name string
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &name}, func() error {
		if def.IsPlaceholder(core.Record{field: core.TextValue(name)}) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("collapse %s: %w", def.Type, err)
	}
	if len(ids) < 2 {
		return 0, nil
	}

	keep, drop := ids[0], ids[1:]
	for _, ref := range refs {
		_, err := t.tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = ANY($2)",
			ident(ref.Table), ident(ref.Field), ident(ref.Field)), keep, drop)
		if err != nil {
			return 0, fmt.Errorf("re-point %s.%s: %w", ref.Table, ref.Field, mapError(err))
		}
	}

	tag, err := t.tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", ident(def.Table)), drop)
	if err != nil {
		return 0, fmt.Errorf("collapse %s: %w", def.Type, mapError(err))
	}
	return tag.RowsAffected(), nil
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a closed Tx is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// stage creates a temp table shaped like (lead, cols...) of table, dropped
// at commit, and copies rows into it.
func (t *Tx) stage(ctx context.Context, table, lead string, cols []string, rows [][]any) (string, error) {
	t.stages++
	name := fmt.Sprintf("recon_stage_%d", t.stages)

	leadExpr := "0::bigint AS ord"
	if lead == "id" {
		leadExpr = "id"
	}
	_, err := t.tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s, %s FROM %s WITH NO DATA",
		ident(name), leadExpr, identList(cols), ident(table)))
	if err != nil {
		return "", fmt.Errorf("create stage for %s: %w", table, err)
	}

	copyCols := append([]string{lead}, cols...)
	if _, err := t.tx.CopyFrom(ctx, pgx.Identifier{name}, copyCols, pgx.CopyFromRows(rows)); err != nil {
		return "", fmt.Errorf("copy into stage for %s: %w", table, mapError(err))
	}
	return name, nil
}

// mapError turns integrity errors into core.ConstraintViolation; the
// importer fills in the entity and keys.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeForeignKeyViolation, codeNotNullViolation:
		constraint := pgErr.ConstraintName
		if constraint == "" && pgErr.ColumnName != "" {
			constraint = pgErr.TableName + "_" + pgErr.ColumnName + "_not_null"
		}
		return &core.ConstraintViolation{Constraint: constraint, Err: err}
	default:
		return err
	}
}
