package models

import "strings"

// BaseCurrency is the currency every salary is normalized into.
const BaseCurrency = "RUB"

// currencyAliases maps codes hh.ru reports to ISO 4217 codes the rates
// endpoint knows.
var currencyAliases = map[string]string{
	"RUR": "RUB",
	"BYR": "BYN",
}

func CanonicalCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if iso, ok := currencyAliases[code]; ok {
		return iso
	}
	return code
}

// RateTable maps a currency code to the amount of base currency per unit.
type RateTable map[string]float64

func (t RateTable) Multiplier(code string) (float64, bool) {
	m, ok := t[CanonicalCurrency(code)]
	return m, ok
}
