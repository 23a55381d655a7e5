package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// KeySeparator joins the normalized parts of a composite key.
const KeySeparator = "|"

// OriginField is the field carrying the origin tag of a row.
const OriginField = "origin"

// JoinKey builds a composite key from values: each part trimmed and
// lower-cased. ok is false when any part is null or blank.
func JoinKey(values ...Value) (key string, ok bool) {
	parts := make([]string, len(values))
	ok = true
	for i, v := range values {
		s := strings.ToLower(strings.TrimSpace(v.String()))
		if !v.Valid || s == "" {
			ok = false
		}
		parts[i] = s
	}
	return strings.Join(parts, KeySeparator), ok
}

// CompositeKey is JoinKey over the named fields of rec.
func CompositeKey(rec Record, fields []string) (string, bool) {
	values := make([]Value, len(fields))
	for i, f := range fields {
		values[i] = rec.Get(f)
	}
	return JoinKey(values...)
}

// identity returns the fields identifying rec in the store. The walk-in
// placeholder is always identified by its display name, whatever the scheme.
func (d EntityDefinition) identity(rec Record) []string {
	if d.IsPlaceholder(rec) {
		return []string{d.PlaceholderField}
	}
	return d.NaturalKey
}

// sourceIdentity is identity with every reference field replaced by the
// fields it is looked up from, so rows can be keyed before any id is known.
func (d EntityDefinition) sourceIdentity(rec Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range d.identity(rec) {
		fields := []string{f}
		if r, ok := d.Reference(f); ok {
			fields = r.Lookup
		}
		for _, lf := range fields {
			if !seen[lf] {
				seen[lf] = true
				out = append(out, lf)
			}
		}
	}
	return out
}

// SourceKey keys a freshly normalized record for in-batch dedup.
func SourceKey(def EntityDefinition, rec Record) (string, bool) {
	return CompositeKey(rec, def.sourceIdentity(rec))
}

// StoreKey keys a record whose references have been resolved. ok is false
// while any identity field (usually an unresolved reference) is null.
func StoreKey(def EntityDefinition, rec Record) (string, bool) {
	return CompositeKey(rec, def.identity(rec))
}

// DedupResult counts what Dedup dropped.
type DedupResult struct {
	Kept       int
	Duplicates int
	Skipped    []InvalidRowError // alternate unique collisions
}

// Dedup keeps the first entity per Key and, for each Unique field, the first
// entity per non-null value. Key duplicates are only counted; unique-field
// collisions are reported as duplicate_unique skips.
func Dedup(def EntityDefinition, entities []Entity) ([]Entity, DedupResult) {
	var res DedupResult
	seen := make(map[string]bool, len(entities))
	unique := make(map[string]map[string]string, len(def.Unique))
	for _, f := range def.Unique {
		unique[f] = make(map[string]string)
	}

	kept := entities[:0:0]
	for _, e := range entities {
		if seen[e.Key] {
			res.Duplicates++
			continue
		}

		collided := false
		for _, f := range def.Unique {
			v, ok := JoinKey(e.Fields.Get(f))
			if !ok {
				continue
			}
			if owner, dup := unique[f][v]; dup {
				res.Skipped = append(res.Skipped, InvalidRowError{
					Source: e.Source,
					Line:   e.Line,
					Key:    e.Key,
					Reason: SkipDuplicateUnique,
					Detail: fmt.Sprintf("%s %s already used by %s", f, v, owner),
				})
				collided = true
				break
			}
		}
		if collided {
			continue
		}

		seen[e.Key] = true
		for _, f := range def.Unique {
			if v, ok := JoinKey(e.Fields.Get(f)); ok {
				unique[f][v] = e.Key
			}
		}
		kept = append(kept, e)
	}

	res.Kept = len(kept)
	return kept, res
}

// Snapshot is the read-only view of existing entities for one run, keyed by
// store key. It is loaded once and never refreshed.
type Snapshot struct {
	entity EntityType
	byKey  map[string]Entity
}

// NewSnapshot wraps already loaded entities.
func NewSnapshot(entity EntityType, byKey map[string]Entity) *Snapshot {
	if byKey == nil {
		byKey = make(map[string]Entity)
	}
	return &Snapshot{entity: entity, byKey: byKey}
}

// Get returns the existing entity stored under key.
func (s *Snapshot) Get(key string) (Entity, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// Len is the number of existing entities matched.
func (s *Snapshot) Len() int {
	return len(s.byKey)
}

// LoadSnapshot fetches every existing entity matching the batch in one
// FindExisting call per identity field set. Entities without a complete
// store key are left out.
func LoadSnapshot(ctx context.Context, f Finder, def EntityDefinition, entities []Entity) (*Snapshot, error) {
	groups := make(map[string][]string)
	fieldsOf := make(map[string][]string)
	for _, e := range entities {
		if e.Key == "" {
			continue
		}
		fields := def.identity(e.Fields)
		g := strings.Join(fields, ",")
		fieldsOf[g] = fields
		groups[g] = append(groups[g], e.Key)
	}

	snap := NewSnapshot(def.Type, nil)
	for _, g := range sortedKeys(groups) {
		found, err := f.FindExisting(ctx, def.WithKey(fieldsOf[g]), uniqueStrings(groups[g]))
		if err != nil {
			return nil, fmt.Errorf("load existing %s: %w", def.Type, err)
		}
		for k, e := range found {
			snap.byKey[k] = e
		}
	}
	return snap, nil
}

// keyRef points at one entity by store key.
type keyRef struct {
	Key    string
	Fields []string
}

type dirEntry struct {
	origin string
	ref    keyRef
}

// Directory maps display names to entity keys. It stands in for the canonical
// id that per-origin extracts do not carry.
type Directory struct {
	entity EntityType
	byName map[string][]dirEntry
}

// BuildDirectory indexes entities by the accent-folded value of nameField.
func BuildDirectory(def EntityDefinition, nameField string, entities []Entity) *Directory {
	d := &Directory{entity: def.Type, byName: make(map[string][]dirEntry)}
	for _, e := range entities {
		name := e.Fields.Get(nameField)
		if !name.Valid {
			continue
		}
		fields := def.identity(e.Fields)
		key, ok := CompositeKey(e.Fields, fields)
		if !ok {
			continue
		}
		folded := FoldName(name.String())
		d.byName[folded] = append(d.byName[folded], dirEntry{
			origin: strings.ToLower(e.Fields.Get(OriginField).String()),
			ref:    keyRef{Key: key, Fields: fields},
		})
	}
	return d
}

// Lookup finds the entity named name, preferring one from origin.
func (d *Directory) Lookup(name, origin string) (keyRef, bool) {
	entries := d.byName[FoldName(name)]
	if len(entries) == 0 {
		return keyRef{}, false
	}
	origin = strings.ToLower(origin)
	for _, en := range entries {
		if en.origin == origin {
			return en.ref, true
		}
	}
	return entries[0].ref, true
}

// Len is the number of distinct names.
func (d *Directory) Len() int {
	return len(d.byName)
}

// ReferenceResolver fills reference fields with surrogate ids of already
// persisted entities.
type ReferenceResolver struct {
	Finder      Finder
	Targets     map[EntityType]EntityDefinition // target definitions, scheme applied
	Directories map[EntityType]*Directory
}

// Resolve sets every reference field of entities in place. Unresolved fields
// are set to Null; one diagnostic is returned per unresolved non-blank lookup.
func (r *ReferenceResolver) Resolve(ctx context.Context, def EntityDefinition, entities []Entity) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, ref := range def.References {
		target, ok := r.Targets[ref.Target]
		if !ok {
			return nil, fmt.Errorf("%s.%s: unknown reference target %s", def.Type, ref.Field, ref.Target)
		}

		refs := make([]keyRef, len(entities))
		found := make([]bool, len(entities))
		groups := make(map[string][]string)
		fieldsOf := make(map[string][]string)

		for i, e := range entities {
			kr, ok := r.lookupRef(ref, target, e.Fields)
			if !ok {
				continue
			}
			refs[i], found[i] = kr, true
			g := strings.Join(kr.Fields, ",")
			fieldsOf[g] = kr.Fields
			groups[g] = append(groups[g], kr.Key)
		}

		ids := make(map[string]map[string]Entity, len(groups))
		for g, keys := range groups {
			existing, err := r.Finder.FindExisting(ctx, target.WithKey(fieldsOf[g]), uniqueStrings(keys))
			if err != nil {
				return nil, fmt.Errorf("resolve %s.%s: %w", def.Type, ref.Field, err)
			}
			ids[g] = existing
		}

		for i, e := range entities {
			if found[i] {
				if t, ok := ids[strings.Join(refs[i].Fields, ",")][refs[i].Key]; ok {
					e.Fields[ref.Field] = RefValue(t.ID)
					continue
				}
			}
			e.Fields[ref.Field] = Null(FieldRef)

			raw := lookupText(e.Fields, ref.Lookup)
			if raw != "" {
				diags = append(diags, Diagnostic{
					Field:  ref.Field,
					Raw:    raw,
					Reason: "unresolved reference to " + string(ref.Target),
					Source: e.Source,
					Line:   e.Line,
				})
			}
		}
	}
	return diags, nil
}

func (r *ReferenceResolver) lookupRef(ref Reference, target EntityDefinition, rec Record) (keyRef, bool) {
	if ref.ByDirectory {
		dir, ok := r.Directories[ref.Target]
		if !ok {
			return keyRef{}, false
		}
		name := rec.Get(ref.Lookup[0])
		if !name.Valid {
			return keyRef{}, false
		}
		return dir.Lookup(name.String(), rec.Get(OriginField).String())
	}

	match := ref.Match
	if len(match) == 0 {
		match = target.NaturalKey
	}
	key, ok := CompositeKey(rec, ref.Lookup)
	if !ok {
		return keyRef{}, false
	}
	return keyRef{Key: key, Fields: match}, true
}

func lookupText(rec Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := rec.Get(f).String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
