package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Fields read and written by the batch policies.
const (
	FieldStock      = "stock"
	FieldUnitPrice  = "unit_price"
	FieldQuantity   = "quantity"
	FieldTotalValue = "total_value"
	FieldFinalPrice = "final_price"
)

// BatchStats counts rows folded away by SelectBatch.
type BatchStats struct {
	Merged     int // rows absorbed into another origin's row
	Duplicates int // invalid same-origin duplicates dropped
	Negative   int // stock sums below zero
}

// SelectBatch applies the definition's row-selection policy to a keyed batch
// before dedup. Input order is preserved for kept rows.
func SelectBatch(def EntityDefinition, scheme KeyScheme, origins Origins, entities []Entity) ([]Entity, BatchStats) {
	switch def.Policy {
	case PolicyOriginPriority:
		if scheme != SchemeName {
			return entities, BatchStats{}
		}
		return selectByOrigin(entities, origins)
	case PolicyStockSum:
		return sumStock(entities, origins)
	default:
		return entities, BatchStats{}
	}
}

// selectByOrigin keeps, per key, the primary origin's rows when there are any
// and the secondary's otherwise. The origin tag is cleared on every kept row
// since the key no longer depends on it.
func selectByOrigin(entities []Entity, origins Origins) ([]Entity, BatchStats) {
	var stats BatchStats
	hasPrimary := make(map[string]bool)
	for _, e := range entities {
		if isOrigin(e, origins.Primary) {
			hasPrimary[e.Key] = true
		}
	}

	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if hasPrimary[e.Key] && !isOrigin(e, origins.Primary) {
			stats.Merged++
			continue
		}
		e.Fields[OriginField] = Null(FieldText)
		out = append(out, e)
	}
	return out, stats
}

// sumStock first drops, within each origin, duplicated SKU rows whose stock
// is null or not positive. Then for SKUs reported by both origins the first
// secondary stock is added to the first primary row and every secondary row
// of that SKU is discarded. Missing stock counts as zero in the sum.
// A negative total is stored as is and counted in BatchStats.Negative, not
// clamped to zero.
func sumStock(entities []Entity, origins Origins) ([]Entity, BatchStats) {
	var stats BatchStats

	perOrigin := make(map[string]int)
	for _, e := range entities {
		perOrigin[originKey(e)]++
	}

	valid := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if perOrigin[originKey(e)] > 1 {
			s := e.Fields.Get(FieldStock)
			if !s.Valid || !s.Num.IsPositive() {
				stats.Duplicates++
				continue
			}
		}
		valid = append(valid, e)
	}

	primaryAt := make(map[string]int)
	secondary := make(map[string]Value)
	for i, e := range valid {
		switch {
		case isOrigin(e, origins.Primary):
			if _, ok := primaryAt[e.Key]; !ok {
				primaryAt[e.Key] = i
			}
		case isOrigin(e, origins.Secondary):
			if _, ok := secondary[e.Key]; !ok {
				secondary[e.Key] = e.Fields.Get(FieldStock)
			}
		}
	}

	out := make([]Entity, 0, len(valid))
	for i, e := range valid {
		p, shared := primaryAt[e.Key]
		if _, ok := secondary[e.Key]; !ok {
			shared = false
		}
		if !shared {
			out = append(out, e)
			continue
		}
		if isOrigin(e, origins.Secondary) {
			stats.Merged++
			continue
		}
		if i == p {
			total := orZero(e.Fields.Get(FieldStock)).Add(orZero(secondary[e.Key]))
			if total.IsNegative() {
				stats.Negative++
			}
			e.Fields[FieldStock] = NumericValue(total)
		}
		out = append(out, e)
	}
	return out, stats
}

// DeriveBatch computes batch-level derived fields after references are
// resolved and the batch is deduplicated. include selects the members that
// count towards group aggregates; nil includes all.
func DeriveBatch(def EntityDefinition, entities []Entity, include func(Entity) bool) {
	if def.Policy != PolicyGroupTotals {
		return
	}

	sums := make(map[string]decimal.Decimal)
	for _, e := range entities {
		price, qty := e.Fields.Get(FieldUnitPrice), e.Fields.Get(FieldQuantity)
		total := Null(FieldNumeric)
		if price.Valid && qty.Valid {
			total = NumericValue(price.Num.Mul(qty.Num))
		}
		e.Fields[FieldTotalValue] = total

		g, _ := CompositeKey(e.Fields, def.GroupBy)
		if include == nil || include(e) {
			sums[g] = sums[g].Add(orZero(total))
		}
	}

	for _, e := range entities {
		g, _ := CompositeKey(e.Fields, def.GroupBy)
		e.Fields[FieldFinalPrice] = NumericValue(sums[g])
	}
}

func isOrigin(e Entity, origin string) bool {
	return origin != "" && strings.EqualFold(e.Fields.Get(OriginField).String(), origin)
}

func originKey(e Entity) string {
	return strings.ToLower(e.Fields.Get(OriginField).String()) + KeySeparator + e.Key
}

func orZero(v Value) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Num
}
