package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/shared"
)

type CommissionType string

const (
	CommissionCurrencyBuy      CommissionType = "CURRENCY_BUY"
	CommissionCurrencySell     CommissionType = "CURRENCY_SELL"
	CommissionTransferExternal CommissionType = "TRANSFER_EXTERNAL"
)

// CommissionRule is a fee formula: fixed + percentage × amount, clamped to
// [MinAmount, MaxAmount]. A nil MaxAmount or ValidUntil means unbounded.
// PercentageRate is a fraction (0.002 = 0.2%).
type CommissionRule struct {
	ID             string           `json:"id"`
	Type           CommissionType   `json:"type"`
	Currency       shared.Currency  `json:"currency"`
	FixedAmount    decimal.Decimal  `json:"fixedAmount"`
	PercentageRate decimal.Decimal  `json:"percentageRate"`
	MinAmount      decimal.Decimal  `json:"minAmount"`
	MaxAmount      *decimal.Decimal `json:"maxAmount,omitempty"`
	ValidFrom      time.Time        `json:"validFrom"`
	ValidUntil     *time.Time       `json:"validUntil,omitempty"`
	IsActive       bool             `json:"isActive"`
}

func (r CommissionRule) Validate() error {
	if r.FixedAmount.IsNegative() || r.PercentageRate.IsNegative() || r.MinAmount.IsNegative() {
		return NewDomainError(CodeValidation, "commission rule %s has negative components", r.ID)
	}
	if r.MaxAmount != nil && r.MaxAmount.LessThan(r.MinAmount) {
		return NewDomainError(CodeValidation, "commission rule %s: max %s below min %s", r.ID, r.MaxAmount.String(), r.MinAmount.String())
	}
	if r.ValidUntil != nil && r.ValidUntil.Before(r.ValidFrom) {
		return NewDomainError(CodeValidation, "commission rule %s: validity window ends before it starts", r.ID)
	}
	return nil
}

// Applies reports whether the rule matches (type, currency) and is in force
// at now.
func (r CommissionRule) Applies(t CommissionType, currency shared.Currency, now time.Time) bool {
	if !r.IsActive || r.Type != t || r.Currency != currency {
		return false
	}
	if now.Before(r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	return true
}

func (r CommissionRule) Compute(amount decimal.Decimal) decimal.Decimal {
	fee := r.FixedAmount.Add(r.PercentageRate.Mul(amount))
	if fee.LessThan(r.MinAmount) {
		fee = r.MinAmount
	}
	if r.MaxAmount != nil && fee.GreaterThan(*r.MaxAmount) {
		fee = *r.MaxAmount
	}
	return fee
}

// TotalCommission sums the effect of every applicable rule. Rules are added,
// not maxed; no applicable rule means no commission.
func TotalCommission(rules []CommissionRule, t CommissionType, currency shared.Currency, amount decimal.Decimal, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, rule := range rules {
		if !rule.Applies(t, currency, now) {
			continue
		}
		total = total.Add(rule.Compute(amount))
	}
	return total.Round(AmountPlaces)
}
