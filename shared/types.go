package shared

import "strings"

type Currency string

const (
	TRY Currency = "TRY"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
)

// SupportedCurrencies lists every currency an account may be opened in.
var SupportedCurrencies = []Currency{TRY, USD, EUR, GBP, CHF}

func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsValid()
}

func (c Currency) IsValid() bool {
	for _, supported := range SupportedCurrencies {
		if c == supported {
			return true
		}
	}
	return false
}

// IsForeign reports whether c is traded against the local currency (TRY).
func (c Currency) IsForeign() bool {
	return c.IsValid() && c != TRY
}

func (c Currency) String() string {
	return string(c)
}

