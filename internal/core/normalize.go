package core

// normalize.go coerces raw cells into typed values.
//
// The rules follow what the back-office exports actually contain:
//   - Numbers in Brazilian notation ("1.234,56"), with currency symbols
//     ("R$ 10,00") or in accounting negatives ("(5,00)")
//   - Dates as ISO, day-first or month-first, sometimes with a time suffix
//   - Booleans as sim/yes/true/1
//   - "-", "nan" and "null" as blank placeholders
//
// Normalize never fails. An unparseable cell becomes Null plus a Diagnostic.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayouts are tried in order; the first that parses wins.
var DateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

var (
	numericJunk = regexp.MustCompile(`[^0-9.,-]`)

	nullTokens = map[string]bool{
		"":     true,
		"-":    true,
		"null": true,
		"nan":  true,
		"none": true,
	}

	truthyTokens = map[string]bool{
		"true": true,
		"1":    true,
		"yes":  true,
		"sim":  true,
	}
)

// Diagnostic records a cell that could not be coerced. It is informational:
// the field has already been set to Null.
type Diagnostic struct {
	Field  string
	Raw    string
	Reason string
	Source string
	Line   int
}

func (d Diagnostic) String() string {
	return d.Field + ": " + d.Reason + " (" + d.Raw + ")"
}

// IsBlank reports whether a raw cell counts as missing.
func IsBlank(raw string) bool {
	return nullTokens[strings.ToLower(CleanCell(raw))]
}

// Normalize coerces raw into the type of spec.
func Normalize(raw string, spec FieldSpec) (Value, *Diagnostic) {
	s := CleanCell(raw)
	if !nullTokens[strings.ToLower(s)] && spec.Normalizer != nil {
		s = CleanCell(spec.Normalizer(s))
	}
	if nullTokens[strings.ToLower(s)] {
		if spec.Default == "" {
			return Null(spec.Type), nil
		}
		s = spec.Default
	}

	switch spec.Type {
	case FieldNumeric:
		d, ok := ParseDecimal(s)
		if !ok {
			return Null(spec.Type), &Diagnostic{Field: spec.Name, Raw: raw, Reason: "invalid number"}
		}
		return NumericValue(d), nil

	case FieldDate:
		t, ok := ParseDate(s)
		if !ok {
			return Null(spec.Type), &Diagnostic{Field: spec.Name, Raw: raw, Reason: "invalid date"}
		}
		return DateValue(t), nil

	case FieldBool:
		return BoolValue(truthyTokens[strings.ToLower(s)]), nil

	case FieldInt, FieldRef:
		d, ok := ParseDecimal(s)
		if !ok || !d.IsInteger() {
			return Null(spec.Type), &Diagnostic{Field: spec.Name, Raw: raw, Reason: "invalid integer"}
		}
		v := IntValue(d.IntPart())
		v.Type = spec.Type
		return v, nil

	default:
		return TextValue(s), nil
	}
}

// ParseDecimal parses a locale-formatted number. Everything except digits,
// '.', ',' and '-' is stripped. When a comma is present it is the decimal
// separator and dots are thousands separators; without a comma a single dot
// is a decimal point and repeated dots are thousands separators.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = numericJunk.ReplaceAllString(s, "")
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	if s == "" || s == "-" || strings.LastIndex(s, "-") > 0 {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseDate tries DateLayouts in order. A trailing time of day
// ("2024-03-05 10:22:00", "2024-03-05T10:22:00Z") is ignored.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i >= 8 {
		s = s[:i]
	}

	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
