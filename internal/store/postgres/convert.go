package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/recon/internal/core"
)

// encode converts a field value into a pgx argument. Null values become nil.
func encode(v core.Value) any {
	if !v.Valid {
		return nil
	}
	switch v.Type {
	case core.FieldNumeric:
		return pgtype.Numeric{Int: v.Num.Coefficient(), Exp: v.Num.Exponent(), Valid: true}
	case core.FieldDate:
		return pgtype.Date{Time: v.Time, Valid: true}
	case core.FieldBool:
		return pgtype.Bool{Bool: v.Bool, Valid: true}
	case core.FieldInt, core.FieldRef:
		return pgtype.Int8{Int64: v.Int, Valid: true}
	default:
		return pgtype.Text{String: v.Text, Valid: true}
	}
}

// scanTarget allocates the pgtype destination for a column of type t.
func scanTarget(t core.FieldType) any {
	switch t {
	case core.FieldNumeric:
		return new(pgtype.Numeric)
	case core.FieldDate:
		return new(pgtype.Date)
	case core.FieldBool:
		return new(pgtype.Bool)
	case core.FieldInt, core.FieldRef:
		return new(pgtype.Int8)
	default:
		return new(pgtype.Text)
	}
}

// decode converts a scanned destination from scanTarget back into a value.
func decode(t core.FieldType, dst any) core.Value {
	switch d := dst.(type) {
	case *pgtype.Numeric:
		if !d.Valid || d.NaN || d.InfinityModifier != pgtype.Finite || d.Int == nil {
			return core.Null(t)
		}
		return core.NumericValue(decimal.NewFromBigInt(d.Int, d.Exp))
	case *pgtype.Date:
		if !d.Valid || d.InfinityModifier != pgtype.Finite {
			return core.Null(t)
		}
		return core.DateValue(d.Time)
	case *pgtype.Bool:
		if !d.Valid {
			return core.Null(t)
		}
		return core.BoolValue(d.Bool)
	case *pgtype.Int8:
		if !d.Valid {
			return core.Null(t)
		}
		if t == core.FieldRef {
			return core.RefValue(d.Int64)
		}
		return core.IntValue(d.Int64)
	case *pgtype.Text:
		if !d.Valid {
			return core.Null(t)
		}
		return core.TextValue(d.String)
	default:
		return core.Null(t)
	}
}

// columnType is the SQL type storing a field of type t.
func columnType(t core.FieldType) string {
	switch t {
	case core.FieldNumeric:
		return "numeric"
	case core.FieldDate:
		return "date"
	case core.FieldBool:
		return "boolean"
	case core.FieldInt:
		return "integer"
	case core.FieldRef:
		return "bigint"
	default:
		return "text"
	}
}
