package core

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical text form of a date value.
const DateLayout = "2006-01-02"

// Value is a typed, nullable field value. Only the member matching Type is
// meaningful, and only when Valid is true.
type Value struct {
	Type  FieldType
	Valid bool
	Text  string
	Num   decimal.Decimal
	Time  time.Time
	Bool  bool
	Int   int64
}

// Null returns the null value of type t.
func Null(t FieldType) Value {
	return Value{Type: t}
}

func TextValue(s string) Value {
	return Value{Type: FieldText, Valid: true, Text: s}
}

func NumericValue(d decimal.Decimal) Value {
	return Value{Type: FieldNumeric, Valid: true, Num: d}
}

func DateValue(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Type: FieldDate, Valid: true, Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func BoolValue(b bool) Value {
	return Value{Type: FieldBool, Valid: true, Bool: b}
}

func IntValue(i int64) Value {
	return Value{Type: FieldInt, Valid: true, Int: i}
}

// RefValue holds the surrogate id of a referenced entity.
func RefValue(id int64) Value {
	return Value{Type: FieldRef, Valid: true, Int: id}
}

// String renders the value canonically; null renders as "".
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	switch v.Type {
	case FieldNumeric:
		return v.Num.String()
	case FieldDate:
		return v.Time.Format(DateLayout)
	case FieldBool:
		return strconv.FormatBool(v.Bool)
	case FieldInt, FieldRef:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Text
	}
}

// Equal compares two values of the same field. Numerics compare by value,
// so 5 equals 5.00.
func (v Value) Equal(o Value) bool {
	if !v.Valid || !o.Valid {
		return v.Valid == o.Valid
	}
	switch v.Type {
	case FieldNumeric:
		return v.Num.Equal(o.Num)
	case FieldDate:
		return v.Time.Format(DateLayout) == o.Time.Format(DateLayout)
	case FieldBool:
		return v.Bool == o.Bool
	case FieldInt, FieldRef:
		return v.Int == o.Int
	default:
		return v.Text == o.Text
	}
}

// Record holds the field values of one entity, keyed by field name.
type Record map[string]Value

// Get returns the value of field, or an invalid value when absent.
func (r Record) Get(field string) Value {
	return r[field]
}

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
