package core

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finderFunc adapts a function to Finder and records every call.
type finderFunc struct {
	fn    func(def EntityDefinition, keys []string) map[string]Entity
	calls [][]string
}

func (f *finderFunc) FindExisting(_ context.Context, def EntityDefinition, keys []string) (map[string]Entity, error) {
	f.calls = append(f.calls, keys)
	return f.fn(def, keys), nil
}

func personDef() EntityDefinition {
	return EntityDefinition{
		Type:       "people",
		Table:      "people",
		Directory:  "People",
		NaturalKey: []string{"name"},
		OriginKey:  []string{"external_id", OriginField},
		Unique:     []string{"tax_id"},
		Fields: []FieldSpec{
			{Name: "external_id", Columns: []string{"ID"}},
			{Name: OriginField, Columns: []string{"origem"}},
			{Name: "name", Columns: []string{"Nome"}, Required: true},
			{Name: "tax_id", Columns: []string{"CPF"}},
		},
		Placeholder:      "Consumidor Final",
		PlaceholderField: "name",
	}
}

func lineDef() EntityDefinition {
	return EntityDefinition{
		Type:       "lines",
		Table:      "lines",
		Directory:  "Lines",
		NaturalKey: []string{"order_id", "person_id", OriginField},
		Fields: []FieldSpec{
			{Name: "order_number", Columns: []string{"Número"}, Required: true, Transient: true},
			{Name: "person_name", Columns: []string{"Cliente"}, Transient: true},
			{Name: "order_id", Type: FieldRef},
			{Name: "person_id", Type: FieldRef},
			{Name: OriginField, Columns: []string{"origem"}},
			{Name: FieldQuantity, Columns: []string{"Qtd"}, Type: FieldNumeric},
			{Name: FieldUnitPrice, Columns: []string{"Preço"}, Type: FieldNumeric},
			{Name: FieldTotalValue, Type: FieldNumeric},
			{Name: FieldFinalPrice, Type: FieldNumeric},
		},
		References: []Reference{
			{Field: "order_id", Target: "orders", Lookup: []string{"order_number", OriginField}},
			{Field: "person_id", Target: "people", Lookup: []string{"person_name"}, ByDirectory: true, Optional: true},
		},
		Policy:  PolicyGroupTotals,
		GroupBy: []string{"order_number", OriginField},
	}
}

func rec(kv ...string) Record {
	r := make(Record)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			r[kv[i]] = Null(FieldText)
			continue
		}
		r[kv[i]] = TextValue(kv[i+1])
	}
	return r
}

func num(s string) Value {
	return NumericValue(decimal.RequireFromString(s))
}

func TestCompositeKey(t *testing.T) {
	key, ok := CompositeKey(Record{
		"a": TextValue("  Foo "),
		"b": NumericValue(decimal.RequireFromString("12.50")),
		"c": IntValue(7),
	}, []string{"a", "b", "c"})
	assert.True(t, ok)
	assert.Equal(t, "foo|12.5|7", key)

	key, ok = CompositeKey(Record{"a": TextValue("x")}, []string{"a", "missing"})
	assert.False(t, ok)
	assert.Equal(t, "x|", key)

	_, ok = CompositeKey(Record{"a": TextValue("   ")}, []string{"a"})
	assert.False(t, ok)
}

func TestSourceKey_ExpandsReferences(t *testing.T) {
	def := lineDef()
	r := rec("order_number", "564265", OriginField, "servi", "person_name", "Ana")

	assert.Equal(t, []string{"order_number", OriginField, "person_name"}, def.sourceIdentity(r))
	key, ok := SourceKey(def, r)
	assert.True(t, ok)
	assert.Equal(t, "564265|servi|ana", key)

	_, ok = StoreKey(def, r)
	assert.False(t, ok, "store key needs resolved ids")
}

func TestSourceKey_PlaceholderUsesName(t *testing.T) {
	def := personDef().ForScheme(SchemeOrigin)

	key, ok := SourceKey(def, rec("name", "Consumidor Final", "external_id", "", OriginField, "imp"))
	assert.True(t, ok)
	assert.Equal(t, "consumidor final", key)

	_, ok = SourceKey(def, rec("name", "Ana", "external_id", "", OriginField, "imp"))
	assert.False(t, ok)
}

func TestDedup(t *testing.T) {
	def := personDef()
	in := []Entity{
		{Key: "ana", Fields: rec("name", "Ana", "tax_id", "1"), Line: 2},
		{Key: "bia", Fields: rec("name", "Bia", "tax_id", ""), Line: 3},
		{Key: "ana", Fields: rec("name", "ANA", "tax_id", "9"), Line: 4},
		{Key: "carla", Fields: rec("name", "Carla", "tax_id", "1"), Line: 5},
		{Key: "duda", Fields: rec("name", "Duda", "tax_id", ""), Line: 6},
	}

	kept, res := Dedup(def, in)

	require.Len(t, kept, 3)
	assert.Equal(t, []int{2, 3, 6}, []int{kept[0].Line, kept[1].Line, kept[2].Line})
	assert.Equal(t, 3, res.Kept)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipDuplicateUnique, res.Skipped[0].Reason)
	assert.Equal(t, 5, res.Skipped[0].Line)
}

func TestLoadSnapshot_GroupsByIdentity(t *testing.T) {
	def := personDef().ForScheme(SchemeOrigin)
	f := &finderFunc{fn: func(d EntityDefinition, keys []string) map[string]Entity {
		out := make(map[string]Entity)
		for _, k := range keys {
			if k == "7|servi" {
				out[k] = Entity{ID: 1, Key: k}
			}
			if k == "consumidor final" && d.NaturalKey[0] == "name" {
				out[k] = Entity{ID: 2, Key: k}
			}
		}
		return out
	}}

	entities := []Entity{
		{Key: "7|servi", Fields: rec("external_id", "7", OriginField, "servi", "name", "Ana")},
		{Key: "8|imp", Fields: rec("external_id", "8", OriginField, "imp", "name", "Bia")},
		{Key: "consumidor final", Fields: rec("name", "Consumidor Final")},
		{Key: "", Fields: rec("name", "Unkeyed")},
	}

	snap, err := LoadSnapshot(context.Background(), f, def, entities)
	require.NoError(t, err)

	assert.Len(t, f.calls, 2)
	assert.Equal(t, 2, snap.Len())
	e, ok := snap.Get("7|servi")
	assert.True(t, ok)
	assert.Equal(t, int64(1), e.ID)
	_, ok = snap.Get("8|imp")
	assert.False(t, ok)
}

func TestDirectory_PrefersSameOrigin(t *testing.T) {
	def := personDef().ForScheme(SchemeOrigin)
	dir := BuildDirectory(def, "name", []Entity{
		{Fields: rec("external_id", "1", OriginField, "servi", "name", "João Silva")},
		{Fields: rec("external_id", "2", OriginField, "imp", "name", "JOAO SILVA")},
		{Fields: rec("external_id", "", OriginField, "imp", "name", "No Key")},
	})

	assert.Equal(t, 1, dir.Len())

	ref, ok := dir.Lookup("joão silva", "imp")
	require.True(t, ok)
	assert.Equal(t, "2|imp", ref.Key)
	assert.Equal(t, []string{"external_id", OriginField}, ref.Fields)

	ref, ok = dir.Lookup("Joao Silva", "other")
	require.True(t, ok)
	assert.Equal(t, "1|servi", ref.Key)

	_, ok = dir.Lookup("Nobody", "servi")
	assert.False(t, ok)
}

func TestReferenceResolver(t *testing.T) {
	orders := EntityDefinition{Type: "orders", NaturalKey: []string{"order_number", OriginField}}
	people := personDef()

	f := &finderFunc{fn: func(d EntityDefinition, keys []string) map[string]Entity {
		out := make(map[string]Entity)
		for _, k := range keys {
			switch {
			case d.Type == "orders" && k == "10|servi":
				out[k] = Entity{ID: 100}
			case d.Type == "people" && k == "ana":
				out[k] = Entity{ID: 5}
			}
		}
		return out
	}}

	r := &ReferenceResolver{
		Finder:  f,
		Targets: map[EntityType]EntityDefinition{"orders": orders, "people": people},
		Directories: map[EntityType]*Directory{
			"people": BuildDirectory(people, "name", []Entity{{Fields: rec("name", "Ana")}}),
		},
	}

	def := lineDef()
	entities := []Entity{
		{Fields: rec("order_number", "10", OriginField, "servi", "person_name", "ANA")},
		{Fields: rec("order_number", "11", OriginField, "servi", "person_name", "Zeca"), Line: 9},
	}

	diags, err := r.Resolve(context.Background(), def, entities)
	require.NoError(t, err)

	assert.Equal(t, int64(100), entities[0].Fields.Get("order_id").Int)
	assert.Equal(t, int64(5), entities[0].Fields.Get("person_id").Int)
	assert.False(t, entities[1].Fields.Get("order_id").Valid)
	assert.False(t, entities[1].Fields.Get("person_id").Valid)
	assert.Equal(t, []string{"order_id"}, def.Unresolved(entities[1]))

	require.Len(t, diags, 2)
	assert.Equal(t, 9, diags[0].Line)
}
