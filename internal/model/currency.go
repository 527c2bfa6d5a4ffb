package model

// Currency is one entry of the fixed currency table.
type Currency struct {
	Code string
	Unit string
}

// DefaultCurrencyCode is used when a user never picked a currency.
const DefaultCurrencyCode = "USD"

// The supported currency set is process-wide and immutable. Extending it
// means adding an entry here, not touching stored documents: accounts
// store only the code and resolve the symbol at read time.
var (
	currencyCodes = []string{"USD", "EUR", "JPY", "GBP", "CHF"}

	currencies = map[string]Currency{
		"USD": {Code: "USD", Unit: "$"},
		"EUR": {Code: "EUR", Unit: "€"},
		"JPY": {Code: "JPY", Unit: "¥"},
		"GBP": {Code: "GBP", Unit: "£"},
		"CHF": {Code: "CHF", Unit: "Fr."},
	}
)

// CurrencyByCode looks up a currency by its ISO code.
func CurrencyByCode(code string) (Currency, bool) {
	c, ok := currencies[code]
	return c, ok
}

// CurrencyCodes returns the supported ISO codes in display order. The
// returned slice is a copy; callers may reorder it.
func CurrencyCodes() []string {
	out := make([]string, len(currencyCodes))
	copy(out, currencyCodes)
	return out
}
