package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/recon/internal/ingest"
	"github.com/JonMunkholm/recon/internal/logging"
)

// Consolidated is the reconciled extract of one entity type.
type Consolidated struct {
	Entity  EntityDefinition
	Table   *ingest.Table
	Summary *EntitySummary
}

// Consolidate reconciles the extracts of both origins into one table per
// entity type without touching a store: rows are normalized, selected by
// origin policy, deduplicated and derived. Reference ids are not resolved,
// so their columns are left out; the fields they are looked up from remain.
// Entity types without input are omitted.
func Consolidate(ctx context.Context, source Source, opts Options, entities ...EntityType) ([]Consolidated, error) {
	defs := Definitions(opts)
	if len(entities) == 0 {
		entities = ImportOrder
	}

	var out []Consolidated
	for _, t := range entities {
		def, ok := defs[t]
		if !ok {
			return out, fmt.Errorf("unknown entity: %s", t)
		}
		ectx := logging.WithEntity(ctx, string(t))

		table, err := loadWithFallback(ectx, source, def)
		if errors.Is(err, ingest.ErrNoInput) {
			logging.FromContext(ectx).Warn("no input files", "directory", def.Directory)
			continue
		}
		if err != nil {
			return out, fmt.Errorf("consolidate %s: %w", t, err)
		}

		sum := NewEntitySummary(t)
		batch, err := prepareBatch(ectx, def, table, opts, sum)
		if err != nil {
			return out, fmt.Errorf("consolidate %s: %w", t, err)
		}
		DeriveBatch(def, batch, nil)
		sum.Phase = PhaseDone

		out = append(out, Consolidated{
			Entity:  def,
			Table:   consolidatedTable(def, opts.Scheme, batch),
			Summary: sum,
		})
	}
	return out, nil
}

func loadWithFallback(ctx context.Context, source Source, def EntityDefinition) (*ingest.Table, error) {
	t, err := source.Load(ctx, def.Directory)
	if errors.Is(err, ingest.ErrNoInput) && def.FallbackDirectory != "" {
		return source.Load(ctx, def.FallbackDirectory)
	}
	return t, err
}

// consolidatedColumns lists the output fields of def: every field except
// reference ids, and except the origin tag when the key scheme merged
// origins away.
func consolidatedColumns(def EntityDefinition, scheme KeyScheme) []string {
	var cols []string
	for _, f := range def.Fields {
		if f.Type == FieldRef {
			continue
		}
		if f.Name == OriginField && def.Policy == PolicyOriginPriority && scheme == SchemeName {
			continue
		}
		cols = append(cols, f.Name)
	}
	return cols
}

func consolidatedTable(def EntityDefinition, scheme KeyScheme, batch []Entity) *ingest.Table {
	cols := consolidatedColumns(def, scheme)
	t := &ingest.Table{Columns: cols}
	for _, e := range batch {
		values := make([]string, len(cols))
		for i, c := range cols {
			values[i] = e.Fields.Get(c).String()
		}
		t.Rows = append(t.Rows, ingest.Row{Source: e.Source, Line: e.Line, Values: values})
	}
	return t
}
