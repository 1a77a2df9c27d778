package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownCurrency is returned for currencies without a configured rate.
var ErrUnknownCurrency = errors.New("pricing: unknown currency")

// Normalizer converts raw prices into the base currency.
type Normalizer struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewNormalizer builds a Normalizer. Codes are matched case-insensitively and
// the base currency always converts at 1.
func NewNormalizer(base string, rates map[string]float64) (*Normalizer, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return nil, errors.New("pricing: base currency is required")
	}

	n := &Normalizer{base: base, rates: make(map[string]decimal.Decimal, len(rates)+1)}
	for code, rate := range rates {
		if rate <= 0 {
			return nil, fmt.Errorf("pricing: rate for %s must be positive", code)
		}
		n.rates[strings.ToUpper(strings.TrimSpace(code))] = decimal.NewFromFloat(rate)
	}
	n.rates[base] = decimal.NewFromInt(1)
	return n, nil
}

// Base returns the base currency code.
func (n *Normalizer) Base() string {
	return n.base
}

// Supports reports whether currency has a conversion rate.
func (n *Normalizer) Supports(currency string) bool {
	_, ok := n.rates[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// Normalize multiplies amount by the configured rate for currency.
func (n *Normalizer) Normalize(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, ok := n.rates[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return amount.Mul(rate), nil
}
