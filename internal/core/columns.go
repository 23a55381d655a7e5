package core

import (
	"strings"

	"github.com/JonMunkholm/recon/internal/ingest"
)

// Binding maps the columns of one source table onto an entity's fields.
type Binding struct {
	def      EntityDefinition
	pos      map[string]int // field name -> column index
	Unmapped []string       // source columns no field reads
}

// Bind matches header names case-insensitively against each field's
// accepted columns. Any Required or natural-key field without a matching
// column yields a *MissingColumnError listing all of them.
func Bind(def EntityDefinition, columns []string) (*Binding, error) {
	key := make(map[string]bool, len(def.NaturalKey))
	for _, f := range def.NaturalKey {
		key[f] = true
	}

	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		key := strings.ToLower(CleanCell(c))
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}

	b := &Binding{def: def, pos: make(map[string]int)}
	used := make(map[int]bool)
	var missing []string

	for _, f := range def.Fields {
		if f.Derived() {
			continue
		}
		found := false
		for _, name := range f.Columns {
			if i, ok := idx[strings.ToLower(name)]; ok {
				b.pos[f.Name] = i
				used[i] = true
				found = true
				break
			}
		}
		if !found && (f.Required || key[f.Name]) {
			missing = append(missing, f.Columns[0])
		}
	}

	if len(missing) > 0 {
		return nil, &MissingColumnError{Entity: def.Type, Columns: missing}
	}

	for i, c := range columns {
		if !used[i] && strings.TrimSpace(c) != "" {
			b.Unmapped = append(b.Unmapped, c)
		}
	}
	return b, nil
}

// Record normalizes one source row. Derived fields are left unset except
// those filled by the definition's Derive hook.
func (b *Binding) Record(row ingest.Row) (Record, []Diagnostic) {
	rec := make(Record, len(b.def.Fields))
	var diags []Diagnostic

	for _, f := range b.def.Fields {
		if f.Derived() {
			continue
		}
		raw := ""
		if i, ok := b.pos[f.Name]; ok {
			raw = row.Get(i)
		}

		v, diag := Normalize(raw, f)
		rec[f.Name] = v
		if diag != nil {
			diag.Source = row.Source
			diag.Line = row.Line
			diags = append(diags, *diag)
		}
	}

	if b.def.Derive != nil {
		b.def.Derive(rec)
	}
	return rec, diags
}
