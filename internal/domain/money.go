package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency of Zero.
const DefaultCurrency = "USD"

// Money is an exact decimal amount in a three-letter currency.
// Compare values with Equal: decimal amounts are not comparable with ==.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney validates the currency code and rejects negative amounts.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, invalidArgument("currency", fmt.Sprintf("currency %q must be a three-letter code", currency))
	}
	if amount.IsNegative() {
		return Money{}, invalidArgument("amount", "amount must not be negative")
	}
	return Money{amount: amount, currency: currency}, nil
}

// Zero is the additive identity in DefaultCurrency.
func Zero() Money {
	return Money{amount: decimal.Zero, currency: DefaultCurrency}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }

// Add returns m+other. Currencies are compared byte for byte.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &Error{
			Kind:    ErrCurrencyMismatch,
			Field:   "currency",
			Message: fmt.Sprintf("cannot add %s to %s", other.currency, m.currency),
		}
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

func (m Money) Multiply(factor int) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(factor))), currency: m.currency}
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}
