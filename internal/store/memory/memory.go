// Package memory is an in-process core.Store. It enforces the same
// constraints as the Postgres schema (natural key, alternate unique fields,
// foreign keys) and backs tests and offline imports.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/recon/internal/core"
)

// ErrTxDone is returned by operations on a committed or rolled back Tx.
var ErrTxDone = errors.New("transaction already closed")

type table struct {
	rows   map[int64]core.Record
	nextID int64
}

func (t *table) clone() *table {
	c := &table{rows: make(map[int64]core.Record, len(t.rows)), nextID: t.nextID}
	for id, r := range t.rows {
		c.rows[id] = r.Clone()
	}
	return c
}

func (t *table) ids() []int64 {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Store holds committed tables. Transactions are serialized: Begin blocks
// until the previous transaction finished.
type Store struct {
	txMu sync.Mutex // held for the lifetime of a Tx

	mu     sync.Mutex
	tables map[string]*table
	runs   []core.RunReport
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// Begin starts a transaction over a private copy of the committed tables.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	s.txMu.Lock()
	if err := ctx.Err(); err != nil {
		s.txMu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	work := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		work[name] = t.clone()
	}
	return &Tx{store: s, tables: work}, nil
}

// RecordRun keeps a copy of the report.
func (s *Store) RecordRun(_ context.Context, report *core.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *report)
	return nil
}

// Runs returns the recorded run reports, oldest first.
func (s *Store) Runs() []core.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.RunReport(nil), s.runs...)
}

// Rows returns the committed rows of tableName ordered by id.
func (s *Store) Rows(tableName string) []core.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]core.Entity, 0, len(t.rows))
	for _, id := range t.ids() {
		out = append(out, core.Entity{ID: id, Fields: t.rows[id].Clone()})
	}
	return out
}

// Tx is one memory transaction.
type Tx struct {
	store  *Store
	tables map[string]*table
	done   bool
}

func (tx *Tx) table(name string) *table {
	t, ok := tx.tables[name]
	if !ok {
		t = &table{rows: make(map[int64]core.Record), nextID: 1}
		tx.tables[name] = t
	}
	return t
}

// FindExisting returns the lowest-id row per matching key.
func (tx *Tx) FindExisting(_ context.Context, def core.EntityDefinition, keys []string) (map[string]core.Entity, error) {
	if tx.done {
		return nil, ErrTxDone
	}

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	t := tx.table(def.Table)
	out := make(map[string]core.Entity)
	for _, id := range t.ids() {
		rec := t.rows[id]
		key, ok := core.CompositeKey(rec, def.NaturalKey)
		if !ok || !want[key] {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = core.Entity{ID: id, Key: key, Fields: rec.Clone()}
		}
	}
	return out, nil
}

// BulkInsert inserts entities, skipping any that collide with a stored or
// already inserted row on the natural key or a unique field.
func (tx *Tx) BulkInsert(_ context.Context, def core.EntityDefinition, entities []core.Entity) (int64, error) {
	if tx.done {
		return 0, ErrTxDone
	}

	t := tx.table(def.Table)
	var inserted int64
	for _, e := range entities {
		rec := persisted(def, e.Fields)
		if _, clash := tx.conflict(def, t, rec, 0); clash {
			continue
		}
		if err := tx.checkRefs(def, rec); err != nil {
			return inserted, err
		}
		t.rows[t.nextID] = rec
		t.nextID++
		inserted++
	}
	return inserted, nil
}

// BulkUpdate overwrites fields of the rows with the entities' ids.
func (tx *Tx) BulkUpdate(_ context.Context, def core.EntityDefinition, entities []core.Entity, fields []string) (int64, error) {
	if tx.done {
		return 0, ErrTxDone
	}

	t := tx.table(def.Table)
	var updated int64
	for _, e := range entities {
		cur, ok := t.rows[e.ID]
		if !ok {
			continue
		}
		next := cur.Clone()
		for _, f := range fields {
			next[f] = e.Fields.Get(f)
		}

		if constraint, clash := tx.conflict(def, t, next, e.ID); clash {
			return updated, &core.ConstraintViolation{
				Constraint: constraint,
				Keys:       []string{e.Key},
				Err:        fmt.Errorf("duplicate key value violates unique constraint %q", constraint),
			}
		}
		if err := tx.checkRefs(def, next); err != nil {
			return updated, err
		}
		t.rows[e.ID] = next
		updated++
	}
	return updated, nil
}

// CollapsePlaceholder keeps the lowest-id placeholder row, re-points refs at
// it and deletes the other placeholder rows.
func (tx *Tx) CollapsePlaceholder(_ context.Context, def core.EntityDefinition, refs []core.ReferenceOwner) (int64, error) {
	if tx.done {
		return 0, ErrTxDone
	}

	t := tx.table(def.Table)
	var matches []int64
	for _, id := range t.ids() {
		if def.IsPlaceholder(t.rows[id]) {
			matches = append(matches, id)
		}
	}
	if len(matches) < 2 {
		return 0, nil
	}

	keep := matches[0]
	removed := make(map[int64]bool, len(matches)-1)
	for _, id := range matches[1:] {
		removed[id] = true
	}

	for _, ref := range refs {
		owner := tx.table(ref.Table)
		for _, rec := range owner.rows {
			if v := rec.Get(ref.Field); v.Valid && removed[v.Int] {
				rec[ref.Field] = core.RefValue(keep)
			}
		}
	}
	for id := range removed {
		delete(t.rows, id)
	}
	return int64(len(removed)), nil
}

// Commit publishes the transaction's tables.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.store.mu.Lock()
	tx.store.tables = tx.tables
	tx.store.mu.Unlock()

	tx.finish()
	return nil
}

// Rollback discards the transaction. Rolling back a closed Tx is a no-op.
func (tx *Tx) Rollback(context.Context) error {
	if !tx.done {
		tx.finish()
	}
	return nil
}

func (tx *Tx) finish() {
	tx.done = true
	tx.tables = nil
	tx.store.txMu.Unlock()
}

// conflict reports the first unique constraint rec violates against rows
// other than self.
func (tx *Tx) conflict(def core.EntityDefinition, t *table, rec core.Record, self int64) (string, bool) {
	constraints := [][]string{def.NaturalKey}
	for _, f := range def.Unique {
		constraints = append(constraints, []string{f})
	}

	for _, fields := range constraints {
		key, ok := core.CompositeKey(rec, fields)
		if !ok {
			continue
		}
		for id, other := range t.rows {
			if id == self {
				continue
			}
			if k, ok := core.CompositeKey(other, fields); ok && k == key {
				return def.Table + "_" + strings.Join(fields, "_") + "_key", true
			}
		}
	}
	return "", false
}

func (tx *Tx) checkRefs(def core.EntityDefinition, rec core.Record) error {
	for _, ref := range def.References {
		v := rec.Get(ref.Field)
		if !v.Valid {
			continue
		}
		target, ok := core.Get(ref.Target)
		if !ok {
			continue
		}
		if _, exists := tx.table(target.Table).rows[v.Int]; !exists {
			constraint := def.Table + "_" + ref.Field + "_fkey"
			return &core.ConstraintViolation{
				Constraint: constraint,
				Err: fmt.Errorf("insert or update on table %q violates foreign key constraint %q",
					def.Table, constraint),
			}
		}
	}
	return nil
}

func persisted(def core.EntityDefinition, rec core.Record) core.Record {
	out := make(core.Record)
	for _, f := range def.PersistedFields() {
		v := rec.Get(f)
		if !v.Valid {
			spec, _ := def.Field(f)
			v = core.Null(spec.Type)
		}
		out[f] = v
	}
	return out
}
