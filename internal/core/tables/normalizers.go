package tables

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/recon/internal/core"
)

// WalkInCustomer is the display name both back offices use for anonymous
// point-of-sale customers.
const WalkInCustomer = "Consumidor Final"

var titleCaser = cases.Title(language.BrazilianPortuguese)

// NormalizeName title-cases a person or company name and squeezes
// whitespace: "  joão   SILVA " becomes "João Silva".
func NormalizeName(s string) string {
	return titleCaser.String(strings.ToLower(core.CollapseSpaces(s)))
}

// DigitsOnly strips punctuation from tax ids and phone numbers.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// PersonType maps the back-office customer type to F (individual) or
// J (business). Unknown values pass through upper-cased.
func PersonType(s string) string {
	switch core.FoldName(s) {
	case "pessoa fisica", "fisica", "f", "pf":
		return "F"
	case "pessoa juridica", "juridica", "j", "pj":
		return "J"
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}

// ActiveFlag maps the customer situation column onto the truthy tokens the
// bool normalizer understands.
func ActiveFlag(s string) string {
	switch core.FoldName(s) {
	case "ativo", "ativa", "a":
		return "true"
	case "inativo", "inativa", "i", "bloqueado":
		return "false"
	default:
		return s
	}
}

// TaxpayerCode returns the state taxpayer indicator for a person type:
// 9 (non-contributor) for individuals, 1 (contributor) for businesses and
// 0 when unknown.
func TaxpayerCode(personType core.Value) core.Value {
	switch personType.String() {
	case "F":
		return core.IntValue(9)
	case "J":
		return core.IntValue(1)
	default:
		return core.IntValue(0)
	}
}
