package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/shared"
)

var (
	MinBuyAmount  = decimal.NewFromInt(10)
	MinSellAmount = decimal.NewFromInt(1)
)

// ExchangeRate quotes one foreign currency against TRY. BuyRate is what the
// bank pays when it buys the currency, SellRate what it charges when selling.
type ExchangeRate struct {
	BaseCurrency  shared.Currency `json:"baseCurrency"`
	Currency      shared.Currency `json:"currency"`
	BuyRate       decimal.Decimal `json:"buyRate"`
	SellRate      decimal.Decimal `json:"sellRate"`
	EffectiveDate time.Time       `json:"effectiveDate"`
}

func (r ExchangeRate) Validate() error {
	if !r.Currency.IsForeign() {
		return NewDomainError(CodeInvalidCurrency, "rates are quoted for foreign currencies only, got %q", r.Currency)
	}
	if !r.BuyRate.IsPositive() || !r.SellRate.IsPositive() {
		return NewDomainError(CodeValidation, "rates must be positive: buy=%s sell=%s", r.BuyRate.String(), r.SellRate.String())
	}
	return nil
}

// CheckFresh fails with RateExpired when the effective date lies more than
// one calendar day before now.
func (r ExchangeRate) CheckFresh(now time.Time) error {
	effective := calendarDay(r.EffectiveDate)
	cutoff := calendarDay(now).AddDate(0, 0, -1)
	if effective.Before(cutoff) {
		return NewDomainError(CodeRateExpired, "%s/%s rate dated %s is expired",
			r.BaseCurrency, r.Currency, effective.Format(time.DateOnly))
	}
	return nil
}

func calendarDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

type CurrencySide string

const (
	SideBuy  CurrencySide = "BUY"
	SideSell CurrencySide = "SELL"
)

// CurrencyTransaction is the immutable record of one buy or sell, including
// the position before and after it.
type CurrencyTransaction struct {
	ID                 string           `json:"id"`
	CustomerID         string           `json:"customerId"`
	Side               CurrencySide     `json:"side"`
	Currency           shared.Currency  `json:"currency"`
	Amount             decimal.Decimal  `json:"amount"`
	RateUsed           decimal.Decimal  `json:"rateUsed"`
	RateDate           time.Time        `json:"rateDate"`
	TryAmount          decimal.Decimal  `json:"tryAmount"`
	Commission         decimal.Decimal  `json:"commission"`
	SourceAccountID    string           `json:"sourceAccountId"`
	DestAccountID      string           `json:"destAccountId"`
	PositionBefore     decimal.Decimal  `json:"positionBefore"`
	PositionAfter      decimal.Decimal  `json:"positionAfter"`
	AvgCostBefore      decimal.Decimal  `json:"avgCostBefore"`
	AvgCostAfter       decimal.Decimal  `json:"avgCostAfter"`
	RealizedPnl        *decimal.Decimal `json:"realizedPnl,omitempty"`
	RealizedPnlPercent *decimal.Decimal `json:"realizedPnlPercent,omitempty"`
	ReferenceCode      string           `json:"referenceCode"`
	CreatedAt          time.Time        `json:"createdAt"`
}
