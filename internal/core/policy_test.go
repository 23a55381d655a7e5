package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOrigins = Origins{Primary: "servi", Secondary: "imp"}

func productDef() EntityDefinition {
	return EntityDefinition{
		Type:       "products",
		Table:      "products",
		Directory:  "Produtos",
		NaturalKey: []string{"sku"},
		Fields: []FieldSpec{
			{Name: "sku", Columns: []string{"SKU"}, Required: true},
			{Name: FieldStock, Columns: []string{"Estoque"}, Type: FieldNumeric},
			{Name: "description", Columns: []string{"Descrição"}},
			{Name: OriginField, Columns: []string{"origem"}, Transient: true},
		},
		Policy: PolicyStockSum,
	}
}

func product(sku, stock, origin string) Entity {
	r := Record{"sku": TextValue(sku), OriginField: TextValue(origin), FieldStock: Null(FieldNumeric)}
	if stock != "" {
		r[FieldStock] = num(stock)
	}
	return Entity{Key: sku, Fields: r}
}

func TestSelectBatch_OriginPriority(t *testing.T) {
	def := personDef()
	def.Policy = PolicyOriginPriority

	in := []Entity{
		{Key: "joão silva", Fields: rec("name", "João Silva", OriginField, "imp", "tax_id", "2")},
		{Key: "joão silva", Fields: rec("name", "João Silva", OriginField, "servi", "tax_id", "1")},
		{Key: "bia", Fields: rec("name", "Bia", OriginField, "imp")},
	}

	out, stats := SelectBatch(def, SchemeName, testOrigins, in)

	require.Len(t, out, 2)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, "1", out[0].Fields.Get("tax_id").String(), "servi row kept")
	assert.Equal(t, "Bia", out[1].Fields.Get("name").String(), "imp-only row kept")
	for _, e := range out {
		assert.False(t, e.Fields.Get(OriginField).Valid, "origin dropped")
	}
}

func TestSelectBatch_OriginPriorityOffUnderOriginScheme(t *testing.T) {
	def := personDef()
	def.Policy = PolicyOriginPriority
	in := []Entity{
		{Key: "1|imp", Fields: rec("name", "Ana", OriginField, "imp")},
		{Key: "1|servi", Fields: rec("name", "Ana", OriginField, "servi")},
	}

	out, stats := SelectBatch(def, SchemeOrigin, testOrigins, in)
	assert.Len(t, out, 2)
	assert.Zero(t, stats.Merged)
	assert.Equal(t, "imp", out[0].Fields.Get(OriginField).String())
}

func TestSelectBatch_StockSum(t *testing.T) {
	t.Run("both origins sum into the primary row", func(t *testing.T) {
		out, stats := SelectBatch(productDef(), SchemeName, testOrigins, []Entity{
			product("X1", "5", "servi"),
			product("X1", "-2", "imp"),
		})

		require.Len(t, out, 1)
		assert.Equal(t, "servi", out[0].Fields.Get(OriginField).String())
		assert.True(t, num("3").Equal(out[0].Fields.Get(FieldStock)))
		assert.Equal(t, 1, stats.Merged)
	})

	t.Run("invalid same-origin duplicates dropped before summing", func(t *testing.T) {
		out, stats := SelectBatch(productDef(), SchemeName, testOrigins, []Entity{
			product("X1", "0", "servi"),
			product("X1", "4", "servi"),
			product("X1", "", "imp"),
			product("X1", "6", "imp"),
			product("Y2", "", "servi"),
		})

		require.Len(t, out, 2)
		assert.Equal(t, 2, stats.Duplicates)
		assert.Equal(t, 1, stats.Merged)
		assert.True(t, num("10").Equal(out[0].Fields.Get(FieldStock)))
		assert.Equal(t, "Y2", out[1].Key, "single row with null stock is kept")
	})

	t.Run("missing stock counts as zero", func(t *testing.T) {
		out, _ := SelectBatch(productDef(), SchemeName, testOrigins, []Entity{
			product("Z3", "", "imp"),
			product("Z3", "", "servi"),
		})
		require.Len(t, out, 1)
		assert.True(t, num("0").Equal(out[0].Fields.Get(FieldStock)))
	})

	t.Run("negative total is kept and counted", func(t *testing.T) {
		out, stats := SelectBatch(productDef(), SchemeName, testOrigins, []Entity{
			product("N1", "1", "servi"),
			product("N1", "-4", "imp"),
		})
		require.Len(t, out, 1)
		assert.True(t, num("-3").Equal(out[0].Fields.Get(FieldStock)))
		assert.Equal(t, 1, stats.Negative)
	})

	t.Run("secondary-only sku kept", func(t *testing.T) {
		out, stats := SelectBatch(productDef(), SchemeName, testOrigins, []Entity{
			product("S1", "2", "imp"),
		})
		require.Len(t, out, 1)
		assert.Zero(t, stats.Merged)
	})
}

func TestDeriveBatch_GroupTotals(t *testing.T) {
	def := lineDef()
	line := func(order, origin, price, qty string, resolved bool) Entity {
		r := Record{
			"order_number": TextValue(order),
			OriginField:    TextValue(origin),
			FieldUnitPrice: num(price),
			FieldQuantity:  Null(FieldNumeric),
			"order_id":     Null(FieldRef),
		}
		if qty != "" {
			r[FieldQuantity] = num(qty)
		}
		if resolved {
			r["order_id"] = RefValue(1)
		}
		return Entity{Fields: r}
	}

	batch := []Entity{
		line("564265", "servi", "25", "4", true),
		line("564265", "servi", "12.5", "4", true),
		line("564265", "imp", "1", "1", true),
		line("564265", "servi", "99", "", true),
		line("564265", "servi", "1000", "1", false),
	}

	DeriveBatch(def, batch, func(e Entity) bool { return len(def.Unresolved(e)) == 0 })

	assert.True(t, num("100").Equal(batch[0].Fields.Get(FieldTotalValue)))
	assert.True(t, num("50").Equal(batch[1].Fields.Get(FieldTotalValue)))
	assert.False(t, batch[3].Fields.Get(FieldTotalValue).Valid, "null quantity propagates")

	for _, i := range []int{0, 1, 3, 4} {
		assert.True(t, num("150").Equal(batch[i].Fields.Get(FieldFinalPrice)), "line %d", i)
	}
	assert.True(t, num("1").Equal(batch[2].Fields.Get(FieldFinalPrice)), "origin is part of the group")
}

func TestDeriveBatch_OtherPoliciesUntouched(t *testing.T) {
	batch := []Entity{product("X1", "5", "servi")}
	DeriveBatch(productDef(), batch, nil)
	_, ok := batch[0].Fields[FieldFinalPrice]
	assert.False(t, ok)
}
