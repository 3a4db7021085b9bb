package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

func TestTotalCommission(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	maxFee := dec("50")
	expired := now.Add(-time.Hour)

	percent := domain.CommissionRule{
		ID: "pct", Type: domain.CommissionCurrencyBuy, Currency: shared.TRY,
		PercentageRate: dec("0.002"), MinAmount: dec("1"), MaxAmount: &maxFee,
		ValidFrom: now.AddDate(0, -1, 0), IsActive: true,
	}
	fixed := domain.CommissionRule{
		ID: "fixed", Type: domain.CommissionCurrencyBuy, Currency: shared.TRY,
		FixedAmount: dec("2.5"), ValidFrom: now.AddDate(0, -1, 0), IsActive: true,
	}
	inactive := fixed
	inactive.ID, inactive.IsActive = "inactive", false
	outOfWindow := fixed
	outOfWindow.ID, outOfWindow.ValidUntil = "old", &expired
	future := fixed
	future.ID, future.ValidFrom = "future", now.Add(time.Hour)
	otherType := fixed
	otherType.ID, otherType.Type = "sell", domain.CommissionCurrencySell

	rules := []domain.CommissionRule{percent, fixed, inactive, outOfWindow, future, otherType}

	tests := []struct {
		name   string
		amount string
		want   string
	}{
		// 0.2% of 3000 = 6 (+ 2.5 fixed)
		{"SumsMatchingRules", "3000", "8.5"},
		// 0.2% of 100 = 0.2 -> min 1 (+ 2.5)
		{"ClampsToMin", "100", "3.5"},
		// 0.2% of 100000 = 200 -> max 50 (+ 2.5)
		{"ClampsToMax", "100000", "52.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.TotalCommission(rules, domain.CommissionCurrencyBuy, shared.TRY, dec(tt.amount), now)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("NoRulesMeansZero", func(t *testing.T) {
		got := domain.TotalCommission(nil, domain.CommissionCurrencySell, shared.TRY, dec("1000"), now)
		if !got.Equal(decimal.Zero) {
			t.Errorf("expected zero commission, got %s", got)
		}
	})

	t.Run("CurrencyMustMatch", func(t *testing.T) {
		got := domain.TotalCommission(rules, domain.CommissionCurrencyBuy, shared.USD, dec("1000"), now)
		if !got.IsZero() {
			t.Errorf("expected zero for unmatched currency, got %s", got)
		}
	})
}

func TestCommissionRule_Validate(t *testing.T) {
	maxFee := dec("1")
	rule := domain.CommissionRule{ID: "r", MinAmount: dec("5"), MaxAmount: &maxFee}
	if err := rule.Validate(); err == nil {
		t.Errorf("expected max < min to be rejected")
	}
}

func TestTransfer_CanReverse(t *testing.T) {
	orig := domain.Transfer{ID: "t-1", Status: domain.TransferCompleted}
	if err := orig.CanReverse(); err != nil {
		t.Fatalf("completed transfer should be reversible: %v", err)
	}
	if err := orig.MarkReversed("t-2", time.Now()); err != nil {
		t.Fatalf("MarkReversed failed: %v", err)
	}
	if orig.Status != domain.TransferReversed || orig.ReversedByID == nil || *orig.ReversedByID != "t-2" {
		t.Errorf("unexpected state after MarkReversed: %+v", orig)
	}
	if err := orig.MarkReversed("t-3", time.Now()); err == nil {
		t.Errorf("second reversal should fail")
	}

	origID := "t-1"
	reversal := domain.Transfer{ID: "t-2", Status: domain.TransferCompleted, ReversalOfID: &origID}
	if err := reversal.CanReverse(); err == nil {
		t.Errorf("a reversal must not be reversible")
	}
}
