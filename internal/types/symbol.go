package types

import "strings"

// Symbol identifies a tradable instrument as a base/quote currency pair.
type Symbol struct {
	Base  string `yaml:"base" json:"base" validate:"required"`
	Quote string `yaml:"quote" json:"quote" validate:"required"`
}

// ParseSymbol parses "BASE/QUOTE" notation. A symbol without a separator is
// treated as base-only with an empty quote currency.
func ParseSymbol(s string) Symbol {
	base, quote, found := strings.Cut(s, "/")
	if !found {
		return Symbol{Base: s, Quote: ""}
	}

	return Symbol{Base: base, Quote: quote}
}

func (s Symbol) String() string {
	if s.Quote == "" {
		return s.Base
	}

	return s.Base + "/" + s.Quote
}

// Currency returns the quote currency a position in this symbol is settled in.
func (s Symbol) Currency() string {
	return s.Quote
}

// VenueSymbol returns the concatenated venue notation, e.g. "BTCUSDT".
func (s Symbol) VenueSymbol() string {
	return s.Base + s.Quote
}
