package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/recon/internal/ingest"
	"github.com/JonMunkholm/recon/internal/logging"
)

// NoInputNote marks an entity finished without any extract to read.
const NoInputNote = "no input files"

// Options configures an import or consolidation run.
type Options struct {
	Scheme     KeyScheme
	Origins    Origins
	WalkInName string // overrides the registered placeholder name when set
	DryRun     bool   // roll back every entity transaction
	Archive    bool   // move processed extracts aside after the run
}

// Importer runs the reconciliation pipeline for a set of entity types.
type Importer struct {
	store  Store
	source Source
	opts   Options
	defs   map[EntityType]EntityDefinition
}

// NewImporter creates an importer over every registered entity definition.
func NewImporter(store Store, source Source, opts Options) *Importer {
	return &Importer{
		store:  store,
		source: source,
		opts:   opts,
		defs:   Definitions(opts),
	}
}

// Definitions returns the registered definitions adapted to opts: key
// scheme applied and placeholder name overridden.
func Definitions(opts Options) map[EntityType]EntityDefinition {
	defs := make(map[EntityType]EntityDefinition)
	for _, def := range All() {
		def = def.ForScheme(opts.Scheme)
		if def.Placeholder != "" && opts.WalkInName != "" {
			def.Placeholder = opts.WalkInName
		}
		defs[def.Type] = def
	}
	return defs
}

// run holds the state shared by the entities of one Run.
type run struct {
	tables   map[string]*ingest.Table
	noInput  map[string]bool
	prepared map[EntityType][]Entity
	dirs     map[EntityType]*Directory
	loaded   map[EntityType]string // directory actually read
}

// Run imports entities in dependency order, or all registered entities when
// none are given. Each entity type commits in its own transaction; the first
// failure stops the run and leaves the remaining types PENDING. The report
// is returned even when err is non-nil.
func (imp *Importer) Run(ctx context.Context, entities ...EntityType) (*RunReport, error) {
	order, err := imp.plan(entities)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Scheme:    imp.opts.Scheme,
		DryRun:    imp.opts.DryRun,
		Status:    RunSucceeded,
		StartedAt: time.Now().UTC(),
	}
	for _, t := range order {
		report.Entities = append(report.Entities, NewEntitySummary(t))
	}

	ctx = logging.WithRunID(ctx, report.RunID)
	log := logging.FromContext(ctx)
	log.Info("import started", "entities", order, "scheme", imp.opts.Scheme, "dry_run", imp.opts.DryRun)

	st := &run{
		tables:   make(map[string]*ingest.Table),
		noInput:  make(map[string]bool),
		prepared: make(map[EntityType][]Entity),
		dirs:     make(map[EntityType]*Directory),
		loaded:   make(map[EntityType]string),
	}

	var runErr error
	for _, sum := range report.Entities {
		start := time.Now()
		err := imp.importEntity(ctx, st, imp.defs[sum.Entity], sum)
		sum.Duration = time.Since(start)

		if err != nil {
			sum.Phase = PhaseFailed
			sum.Error = err.Error()
			report.Status = RunFailed
			report.Error = err.Error()
			runErr = fmt.Errorf("import %s: %w", sum.Entity, err)
			log.Error("entity failed", "entity", sum.Entity, "error", err)
			break
		}
	}

	if imp.opts.Archive && !imp.opts.DryRun {
		imp.archive(ctx, st, report)
	}

	report.FinishedAt = time.Now().UTC()
	created, updated := report.Totals()
	log.Info("import finished",
		"status", report.Status,
		"created", created,
		"updated", updated,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	if !imp.opts.DryRun {
		if err := imp.store.RecordRun(ctx, report); err != nil {
			log.Error("failed to record run", "error", err)
		}
	}

	return report, runErr
}

// plan validates the requested types and sorts them into ImportOrder.
func (imp *Importer) plan(entities []EntityType) ([]EntityType, error) {
	if len(entities) == 0 {
		for _, t := range ImportOrder {
			if _, ok := imp.defs[t]; ok {
				entities = append(entities, t)
			}
		}
	}

	seen := make(map[EntityType]bool)
	var out []EntityType
	for _, t := range entities {
		if _, ok := imp.defs[t]; !ok {
			return nil, fmt.Errorf("unknown entity: %s", t)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return orderOf(out[i]) < orderOf(out[j]) })
	return out, nil
}

func (imp *Importer) importEntity(ctx context.Context, st *run, def EntityDefinition, sum *EntitySummary) error {
	ctx = logging.WithEntity(ctx, string(def.Type))
	log := logging.FromContext(ctx)

	sum.Phase = PhaseIngesting
	table, err := imp.load(ctx, st, def)
	if errors.Is(err, ingest.ErrNoInput) {
		log.Warn("no input files", "directory", def.Directory)
		sum.Phase = PhaseDone
		sum.Note = NoInputNote
		return nil
	}
	if err != nil {
		return err
	}

	sum.Phase = PhaseNormalizing
	prepared, err := prepareBatch(ctx, def, table, imp.opts, sum)
	if err != nil {
		return err
	}
	st.prepared[def.Type] = prepared
	entities := append([]Entity(nil), prepared...)

	tx, err := imp.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if def.Placeholder != "" {
		n, err := tx.CollapsePlaceholder(ctx, def, ReferencesTo(def.Type))
		if err != nil {
			return fmt.Errorf("collapse %q: %w", def.Placeholder, err)
		}
		sum.Collapsed = int(n)
		if n > 0 {
			log.Info("collapsed placeholder rows", "name", def.Placeholder, "removed", n)
		}
	}

	sum.Phase = PhaseResolving
	if len(def.References) > 0 {
		if err := imp.buildDirectories(ctx, st, def); err != nil {
			return err
		}
		resolver := &ReferenceResolver{Finder: tx, Targets: imp.defs, Directories: st.dirs}
		diags, err := resolver.Resolve(ctx, def, entities)
		if err != nil {
			return err
		}
		logDiagnostics(ctx, log, diags, slog.LevelDebug)
	}

	for i := range entities {
		key, ok := StoreKey(def, entities[i].Fields)
		if !ok {
			key = ""
		}
		entities[i].Key = key
	}
	DeriveBatch(def, entities, func(e Entity) bool { return len(def.Unresolved(e)) == 0 })

	sum.Phase = PhaseMerging
	snap, err := LoadSnapshot(ctx, tx, def, entities)
	if err != nil {
		return err
	}
	plan, unchanged, dups := Partition(def, snap, entities)
	sum.Unchanged = unchanged
	sum.Duplicates += dups

	sum.Phase = PhaseUpserting
	res, skips, err := Execute(ctx, tx, def, plan)
	for _, s := range skips {
		if s.Reason == SkipConflict {
			sum.skipConflicts(s, res.Conflicts)
			continue
		}
		sum.Skip(s)
	}
	if err != nil {
		return err
	}

	if imp.opts.DryRun {
		if err := tx.Rollback(ctx); err != nil {
			return fmt.Errorf("rollback dry run: %w", err)
		}
	} else if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	sum.Created = res.Created
	sum.Updated = res.Updated
	sum.Phase = PhaseDone

	log.Info("entity imported",
		"read", sum.Read,
		"created", sum.Created,
		"updated", sum.Updated,
		"unchanged", sum.Unchanged,
		"skipped", sum.Skipped,
		"duplicates", sum.Duplicates,
		"existing", snap.Len(),
	)
	return nil
}

// load reads the entity's directory, falling back to FallbackDirectory when
// the primary one holds no files. Tables are cached for the run.
func (imp *Importer) load(ctx context.Context, st *run, def EntityDefinition) (*ingest.Table, error) {
	dirs := []string{def.Directory}
	if def.FallbackDirectory != "" {
		dirs = append(dirs, def.FallbackDirectory)
	}

	for _, dir := range dirs {
		if st.noInput[dir] {
			continue
		}
		if t, ok := st.tables[dir]; ok {
			st.loaded[def.Type] = dir
			return t, nil
		}

		t, err := imp.source.Load(ctx, dir)
		if errors.Is(err, ingest.ErrNoInput) {
			st.noInput[dir] = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", dir, err)
		}
		st.tables[dir] = t
		st.loaded[def.Type] = dir
		if dir != def.Directory {
			logging.FromContext(ctx).Info("using fallback source", "directory", dir)
		}
		return t, nil
	}
	return nil, ingest.ErrNoInput
}

// buildDirectories prepares the name directory of every target def resolves
// by name. A target without input yields an empty directory.
func (imp *Importer) buildDirectories(ctx context.Context, st *run, def EntityDefinition) error {
	for _, ref := range def.References {
		if !ref.ByDirectory || st.dirs[ref.Target] != nil {
			continue
		}
		target := imp.defs[ref.Target]

		entities, ok := st.prepared[target.Type]
		if !ok {
			table, err := imp.load(ctx, st, target)
			switch {
			case errors.Is(err, ingest.ErrNoInput):
			case err != nil:
				return err
			default:
				entities, err = prepareBatch(ctx, target, table, imp.opts, NewEntitySummary(target.Type))
				if err != nil {
					return fmt.Errorf("%s directory: %w", target.Type, err)
				}
				st.prepared[target.Type] = entities
			}
		}

		st.dirs[ref.Target] = BuildDirectory(target, nameField(target), entities)
		logging.FromContext(ctx).Debug("built name directory", "target", target.Type, "names", st.dirs[ref.Target].Len())
	}
	return nil
}

func nameField(def EntityDefinition) string {
	if def.PlaceholderField != "" {
		return def.PlaceholderField
	}
	return "name"
}

func (imp *Importer) archive(ctx context.Context, st *run, report *RunReport) {
	archiver, ok := imp.source.(Archiver)
	if !ok {
		return
	}
	log := logging.FromContext(ctx)

	done := make(map[string]bool)
	for _, sum := range report.Entities {
		dir, ok := st.loaded[sum.Entity]
		if sum.Phase != PhaseDone || !ok || done[dir] {
			continue
		}
		done[dir] = true
		if err := archiver.Archive(dir); err != nil {
			log.Warn("archive failed", "directory", dir, "error", err)
		}
	}
}

// prepareBatch normalizes table into keyed entities and applies the
// definition's selection policy and in-batch dedup.
func prepareBatch(ctx context.Context, def EntityDefinition, table *ingest.Table, opts Options, sum *EntitySummary) ([]Entity, error) {
	log := logging.FromContext(ctx)

	binding, err := Bind(def, table.Columns)
	if err != nil {
		return nil, err
	}
	if len(binding.Unmapped) > 0 {
		log.Debug("ignoring unmapped columns", "columns", binding.Unmapped)
	}

	sum.Read = table.Len()
	entities := make([]Entity, 0, table.Len())
	for _, row := range table.Rows {
		rec, diags := binding.Record(row)
		if len(diags) > 0 {
			sum.Errored++
			logDiagnostics(ctx, log, diags, slog.LevelWarn)
		}

		key, ok := SourceKey(def, rec)
		if !ok {
			sum.Skip(InvalidRowError{
				Source: row.Source,
				Line:   row.Line,
				Reason: SkipMissingKey,
				Detail: strings.Join(nullFields(rec, def.sourceIdentity(rec)), ", "),
			})
			continue
		}
		entities = append(entities, Entity{Key: key, Fields: rec, Source: row.Source, Line: row.Line})
	}

	entities, stats := SelectBatch(def, opts.Scheme, opts.Origins, entities)
	sum.Merged += stats.Merged
	sum.Duplicates += stats.Duplicates
	if stats.Negative > 0 {
		log.Warn("negative totals after origin merge", "rows", stats.Negative)
	}

	entities, dres := Dedup(def, entities)
	sum.Duplicates += dres.Duplicates
	for _, s := range dres.Skipped {
		sum.Skip(s)
	}
	return entities, nil
}

func nullFields(rec Record, fields []string) []string {
	var out []string
	for _, f := range fields {
		if _, ok := JoinKey(rec.Get(f)); !ok {
			out = append(out, f)
		}
	}
	return out
}

func logDiagnostics(ctx context.Context, log *slog.Logger, diags []Diagnostic, level slog.Level) {
	for _, d := range diags {
		log.Log(ctx, level, d.Reason,
			"field", d.Field,
			"value", d.Raw,
			"source", d.Source,
			"line", d.Line,
		)
	}
}
