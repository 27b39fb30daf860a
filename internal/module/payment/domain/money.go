package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 alphabetic currency code.
type Currency string

// DefaultCurrency is used when a gateway payload omits the currency.
const DefaultCurrency Currency = "USD"

// minor unit exponents that differ from the usual two decimal places.
var currencyExponents = map[Currency]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// NewCurrency normalizes a currency code to upper case.
func NewCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// Valid reports whether c looks like a 3-letter ISO code.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Exponent returns the number of minor-unit decimal places for c.
func (c Currency) Exponent() int32 {
	if exp, ok := currencyExponents[c]; ok {
		return exp
	}
	return 2
}

func (c Currency) String() string { return string(c) }

// Money is an integer amount of minor units in a currency.
type Money struct {
	Amount   int64
	Currency Currency
}

// NewMoney creates a Money value.
func NewMoney(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -m.Currency.Exponent())
}

// Display formats the amount in major units with the currency's precision.
func (m Money) Display() string {
	return m.Decimal().StringFixed(m.Currency.Exponent())
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Display(), m.Currency)
}
