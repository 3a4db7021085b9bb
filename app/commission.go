package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
	"banking-ledger/store"
)

// Calculator prices commissions from the rules currently in force.
type Calculator struct {
	rules store.CommissionRuleStore
	now   func() time.Time
}

func NewCalculator(rules store.CommissionRuleStore, now func() time.Time) *Calculator {
	return &Calculator{rules: rules, now: now}
}

func (c *Calculator) Calculate(ctx context.Context, t domain.CommissionType, currency shared.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	rules, err := c.rules.ActiveRules(ctx, t)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s commission rules: %w", t, err)
	}
	return domain.TotalCommission(rules, t, currency, amount, c.now()), nil
}

func (c *Calculator) AddRule(ctx context.Context, cmd AddCommissionRuleCommand) (domain.CommissionRule, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.CommissionRule{}, err
	}
	currency, err := parseCurrency(cmd.Currency)
	if err != nil {
		return domain.CommissionRule{}, err
	}
	rule := domain.CommissionRule{
		ID:             cmd.ID,
		Type:           cmd.Type,
		Currency:       currency,
		FixedAmount:    cmd.FixedAmount,
		PercentageRate: cmd.PercentageRate,
		MinAmount:      cmd.MinAmount,
		MaxAmount:      cmd.MaxAmount,
		ValidFrom:      cmd.ValidFrom,
		ValidUntil:     cmd.ValidUntil,
		IsActive:       true,
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.ValidFrom.IsZero() {
		rule.ValidFrom = c.now()
	}
	if err := rule.Validate(); err != nil {
		return domain.CommissionRule{}, err
	}
	if err := c.rules.SaveRule(ctx, rule); err != nil {
		return domain.CommissionRule{}, fmt.Errorf("failed to save commission rule %s: %w", rule.ID, err)
	}
	return rule, nil
}
