package core

import (
	"fmt"
	"strings"
)

// EntityType identifies a canonical entity and its table.
type EntityType string

const (
	EntityCustomer  EntityType = "customers"
	EntitySeller    EntityType = "sellers"
	EntityProduct   EntityType = "products"
	EntityOrder     EntityType = "orders"
	EntityOrderItem EntityType = "order_items"
)

// ImportOrder is the referential dependency order of a run.
var ImportOrder = []EntityType{
	EntityCustomer,
	EntitySeller,
	EntityProduct,
	EntityOrder,
	EntityOrderItem,
}

// KeyScheme selects how customers and sellers are identified.
type KeyScheme string

const (
	// SchemeName identifies customers and sellers by normalized name, which
	// collapses the same person across origins.
	SchemeName KeyScheme = "name"

	// SchemeOrigin identifies them by (external id, origin), keeping one row
	// per origin account.
	SchemeOrigin KeyScheme = "origin"
)

// ParseKeyScheme validates a scheme name.
func ParseKeyScheme(s string) (KeyScheme, error) {
	switch KeyScheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeName, "":
		return SchemeName, nil
	case SchemeOrigin:
		return SchemeOrigin, nil
	default:
		return "", fmt.Errorf("unknown key scheme %q (want name or origin)", s)
	}
}

// Origins names the primary and secondary back-office accounts.
type Origins struct {
	Primary   string
	Secondary string
}

// List returns the origins in read order.
func (o Origins) List() []string {
	return []string{o.Primary, o.Secondary}
}

// FieldType is the typed shape a raw cell is coerced into.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldDate
	FieldBool
	FieldInt
	FieldRef // surrogate id of another entity
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldNumeric:
		return "numeric"
	case FieldDate:
		return "date"
	case FieldBool:
		return "bool"
	case FieldInt:
		return "int"
	case FieldRef:
		return "ref"
	default:
		return "value"
	}
}

// FieldSpec maps source columns onto one canonical field.
type FieldSpec struct {
	Name       string              // canonical field and database column name
	Columns    []string            // accepted source headers, first present wins; empty for derived fields
	Type       FieldType           // target type
	Required   bool                // one of Columns must exist in the source header
	Transient  bool                // used while reconciling, never persisted
	Default    string              // raw value used when the cell is blank
	Normalizer func(string) string // applied to non-blank cells before coercion
}

// Derived reports whether the field is computed rather than read.
func (f FieldSpec) Derived() bool {
	return len(f.Columns) == 0
}

// Reference links a field of this entity to another entity's surrogate id.
type Reference struct {
	Field  string     // FieldRef field written with the target id
	Target EntityType // referenced entity
	Lookup []string   // fields of this entity forming the lookup value
	Match  []string   // target fields matched by Lookup; empty means the target's natural key

	// ByDirectory resolves the single Lookup field (a display name) through
	// a Directory built from the target's own extract instead of querying
	// the store by that value.
	ByDirectory bool

	Optional bool
}

// MergePolicy selects the batch-level reconciliation applied to an entity.
type MergePolicy int

const (
	// PolicyOverwrite is plain create-or-overwrite by natural key.
	PolicyOverwrite MergePolicy = iota

	// PolicyOriginPriority keeps the primary origin's row when a name key
	// appears in both origins, and drops the origin tag.
	PolicyOriginPriority

	// PolicyStockSum drops invalid same-origin duplicates and sums stock of
	// SKUs present in both origins into the primary row.
	PolicyStockSum

	// PolicyGroupTotals derives line totals and writes the order-level sum
	// onto every line of the order.
	PolicyGroupTotals
)

// EntityDefinition is the strategy record for one entity type.
type EntityDefinition struct {
	Type              EntityType
	Label             string
	Table             string
	Directory         string // extract folder under each origin
	FallbackDirectory string // read when Directory holds no files

	NaturalKey []string // key under SchemeName
	OriginKey  []string // key under SchemeOrigin; nil when the scheme does not change it
	Unique     []string // alternate unique fields, enforced when non-null

	Fields     []FieldSpec
	References []Reference
	Policy     MergePolicy
	GroupBy    []string // group of PolicyGroupTotals

	// Placeholder is the display name of a walk-in record. All rows carrying
	// it in PlaceholderField are collapsed to one canonical row.
	Placeholder      string
	PlaceholderField string

	// Derive fills computed fields of a freshly normalized record.
	Derive func(Record)
}

// KeyFields returns the natural key under scheme.
func (d EntityDefinition) KeyFields(scheme KeyScheme) []string {
	if scheme == SchemeOrigin && len(d.OriginKey) > 0 {
		return d.OriginKey
	}
	return d.NaturalKey
}

// ForScheme returns a copy whose NaturalKey is the key under scheme.
// Fallback extracts carry names only, so they are dropped when the key is
// the origin key.
func (d EntityDefinition) ForScheme(scheme KeyScheme) EntityDefinition {
	if scheme == SchemeOrigin && len(d.OriginKey) > 0 {
		d.FallbackDirectory = ""
	}
	d.NaturalKey = d.KeyFields(scheme)
	d.OriginKey = nil
	return d
}

// WithKey returns a copy matched on fields instead of the natural key.
func (d EntityDefinition) WithKey(fields []string) EntityDefinition {
	d.NaturalKey = fields
	return d
}

// Field returns the FieldSpec called name.
func (d EntityDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Reference returns the reference writing field, if any.
func (d EntityDefinition) Reference(field string) (Reference, bool) {
	for _, r := range d.References {
		if r.Field == field {
			return r, true
		}
	}
	return Reference{}, false
}

// PersistedFields lists fields stored in the table, in declaration order.
func (d EntityDefinition) PersistedFields() []string {
	out := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !f.Transient {
			out = append(out, f.Name)
		}
	}
	return out
}

// UpdateFields is the fixed field list of a bulk update: every persisted
// field except the natural key.
func (d EntityDefinition) UpdateFields() []string {
	key := make(map[string]bool, len(d.NaturalKey))
	for _, k := range d.NaturalKey {
		key[k] = true
	}

	var out []string
	for _, f := range d.PersistedFields() {
		if !key[f] {
			out = append(out, f)
		}
	}
	return out
}

// IsPlaceholder reports whether rec is the walk-in record.
func (d EntityDefinition) IsPlaceholder(rec Record) bool {
	if d.Placeholder == "" || d.PlaceholderField == "" {
		return false
	}
	v := rec.Get(d.PlaceholderField)
	return v.Valid && FoldName(v.String()) == FoldName(d.Placeholder)
}

// Unresolved returns the required reference fields of e that hold no id.
func (d EntityDefinition) Unresolved(e Entity) []string {
	var out []string
	for _, r := range d.References {
		if !r.Optional && !e.Fields.Get(r.Field).Valid {
			out = append(out, r.Field)
		}
	}
	return out
}

// Entity is a canonical record, either loaded from the store (ID set) or
// built from a source row (Source and Line set).
type Entity struct {
	ID     int64
	Key    string
	Fields Record
	Source string
	Line   int
}
