package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/shared"
)

// RatePlaces is the precision kept on exchange rates and average cost.
const RatePlaces = 6

var hundred = decimal.NewFromInt(100)

// CurrencyPosition tracks what a customer holds in one foreign currency and
// what it cost them in TRY, using a weighted-average cost basis.
type CurrencyPosition struct {
	CustomerID      string          `json:"customerId"`
	Currency        shared.Currency `json:"currency"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	AverageCostRate decimal.Decimal `json:"averageCostRate"`
	TotalCostTry    decimal.Decimal `json:"totalCostTry"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func NewCurrencyPosition(customerID string, currency shared.Currency, at time.Time) CurrencyPosition {
	return CurrencyPosition{
		CustomerID:      customerID,
		Currency:        currency,
		TotalAmount:     decimal.Zero,
		AverageCostRate: decimal.Zero,
		TotalCostTry:    decimal.Zero,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func (p CurrencyPosition) IsOpen() bool {
	return p.TotalAmount.IsPositive()
}

// ApplyBuy adds amount units bought for costTry (commission included) and
// recomputes the average cost over the whole holding.
func (p *CurrencyPosition) ApplyBuy(amount, costTry decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return NewDomainError(CodeInvalidAmount, "bought amount must be positive: %s", amount.String())
	}
	if costTry.IsNegative() {
		return NewDomainError(CodeInvalidAmount, "purchase cost cannot be negative: %s", costTry.String())
	}
	p.TotalCostTry = p.TotalCostTry.Add(costTry)
	p.TotalAmount = p.TotalAmount.Add(amount)
	p.AverageCostRate = p.TotalCostTry.DivRound(p.TotalAmount, RatePlaces)
	p.UpdatedAt = at
	return nil
}

type SellOutcome struct {
	RemovedCost        decimal.Decimal
	RealizedPnl        decimal.Decimal
	RealizedPnlPercent decimal.Decimal
}

// ApplySell removes amount units at the current average cost. The average
// cost of the remaining units does not change.
func (p *CurrencyPosition) ApplySell(amount, netTry decimal.Decimal, at time.Time) (SellOutcome, error) {
	if !p.IsOpen() {
		return SellOutcome{}, NewDomainError(CodeNoPosition, "no open %s position for customer %s", p.Currency, p.CustomerID)
	}
	if !amount.IsPositive() {
		return SellOutcome{}, NewDomainError(CodeInvalidAmount, "sold amount must be positive: %s", amount.String())
	}
	if amount.GreaterThan(p.TotalAmount) {
		return SellOutcome{}, NewDomainError(CodePositionInsufficient, "position holds %s %s, cannot sell %s",
			p.TotalAmount.String(), p.Currency, amount.String())
	}

	removed := amount.Mul(p.AverageCostRate).Round(AmountPlaces)
	pnl := netTry.Sub(removed)
	pct := decimal.Zero
	if removed.IsPositive() {
		pct = pnl.Div(removed).Mul(hundred).Round(AmountPlaces)
	}

	p.TotalAmount = p.TotalAmount.Sub(amount)
	p.TotalCostTry = p.TotalCostTry.Sub(removed)
	if p.TotalAmount.IsZero() || p.TotalCostTry.IsNegative() {
		// rounding residue on a closed position
		p.TotalCostTry = decimal.Zero
	}
	p.UpdatedAt = at

	return SellOutcome{RemovedCost: removed, RealizedPnl: pnl, RealizedPnlPercent: pct}, nil
}

type PositionValuation struct {
	CurrentRate          decimal.Decimal `json:"currentRate"`
	CurrentValue         decimal.Decimal `json:"currentValue"`
	UnrealizedPnl        decimal.Decimal `json:"unrealizedPnl"`
	UnrealizedPnlPercent decimal.Decimal `json:"unrealizedPnlPercent"`
}

// Value marks the position to market at the bank's current buy rate.
func (p CurrencyPosition) Value(currentRate decimal.Decimal) PositionValuation {
	value := p.TotalAmount.Mul(currentRate).Round(AmountPlaces)
	pnl := value.Sub(p.TotalCostTry)
	pct := decimal.Zero
	if p.TotalCostTry.IsPositive() {
		pct = pnl.Div(p.TotalCostTry).Mul(hundred).Round(AmountPlaces)
	}
	return PositionValuation{
		CurrentRate:          currentRate,
		CurrentValue:         value,
		UnrealizedPnl:        pnl,
		UnrealizedPnlPercent: pct,
	}
}
