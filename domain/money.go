package domain

import (
	"github.com/shopspring/decimal"

	"banking-ledger/shared"
)

// AmountPlaces is the number of fractional digits kept on currency amounts.
const AmountPlaces = 2

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency shared.Currency `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency shared.Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func ZeroMoney(currency shared.Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, NewDomainError(CodeCurrencyMismatch, "currency mismatch: cannot add %s and %s", m.Currency, other.Currency)
	}
	return NewMoney(m.Amount.Add(other.Amount), m.Currency), nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, NewDomainError(CodeCurrencyMismatch, "currency mismatch: cannot subtract %s from %s", other.Currency, m.Currency)
	}
	return NewMoney(m.Amount.Sub(other.Amount), m.Currency), nil
}

// Multiply scales the amount by a dimensionless factor; the currency is kept.
func (m Money) Multiply(factor decimal.Decimal) Money {
	return NewMoney(m.Amount.Mul(factor), m.Currency)
}

// Round returns m rounded to currency precision.
func (m Money) Round() Money {
	return NewMoney(m.Amount.Round(AmountPlaces), m.Currency)
}

func (m Money) Negate() Money {
	return NewMoney(m.Amount.Neg(), m.Currency)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

func (m Money) GreaterThan(other Money) (bool, error) {
	if m.Currency != other.Currency {
		return false, NewDomainError(CodeCurrencyMismatch, "currency mismatch: cannot compare %s and %s", m.Currency, other.Currency)
	}
	return m.Amount.GreaterThan(other.Amount), nil
}

func (m Money) GreaterThanOrEqual(other Money) (bool, error) {
	if m.Currency != other.Currency {
		return false, NewDomainError(CodeCurrencyMismatch, "currency mismatch: cannot compare %s and %s", m.Currency, other.Currency)
	}
	return m.Amount.GreaterThanOrEqual(other.Amount), nil
}

func (m Money) String() string {
	return m.Amount.StringFixed(AmountPlaces) + " " + string(m.Currency)
}
