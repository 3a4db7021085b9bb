package domain_test

import (
	"errors"
	"testing"
	"time"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

func TestCurrencyPosition_WeightedAverageCost(t *testing.T) {
	now := time.Now().UTC()
	pos := domain.NewCurrencyPosition("cust-1", shared.USD, now)

	if err := pos.ApplyBuy(dec("100"), dec("3000"), now); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if !pos.AverageCostRate.Equal(dec("30")) {
		t.Errorf("expected avg 30 after first buy, got %s", pos.AverageCostRate)
	}

	if err := pos.ApplyBuy(dec("100"), dec("3400"), now); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}
	if !pos.TotalAmount.Equal(dec("200")) {
		t.Errorf("expected total 200, got %s", pos.TotalAmount)
	}
	if !pos.AverageCostRate.Equal(dec("32")) {
		t.Errorf("expected avg 32, got %s", pos.AverageCostRate)
	}
	if !pos.TotalCostTry.Equal(dec("6400")) {
		t.Errorf("expected cost 6400, got %s", pos.TotalCostTry)
	}

	t.Run("SellKeepsAverageCost", func(t *testing.T) {
		p := pos
		out, err := p.ApplySell(dec("50"), dec("1650"), now)
		if err != nil {
			t.Fatalf("ApplySell failed: %v", err)
		}
		if !out.RemovedCost.Equal(dec("1600")) {
			t.Errorf("expected removed cost 1600, got %s", out.RemovedCost)
		}
		if !out.RealizedPnl.Equal(dec("50")) {
			t.Errorf("expected pnl 50, got %s", out.RealizedPnl)
		}
		if !out.RealizedPnlPercent.Equal(dec("3.13")) {
			t.Errorf("expected pnl 3.13%%, got %s", out.RealizedPnlPercent)
		}
		if !p.TotalAmount.Equal(dec("150")) || !p.AverageCostRate.Equal(dec("32")) || !p.TotalCostTry.Equal(dec("4800")) {
			t.Errorf("unexpected position after sell: amount=%s avg=%s cost=%s", p.TotalAmount, p.AverageCostRate, p.TotalCostTry)
		}
	})

	t.Run("SellEverythingClosesPosition", func(t *testing.T) {
		p := pos
		if _, err := p.ApplySell(dec("200"), dec("6000"), now); err != nil {
			t.Fatalf("ApplySell failed: %v", err)
		}
		if p.IsOpen() || !p.TotalCostTry.IsZero() {
			t.Errorf("expected closed position, got amount=%s cost=%s", p.TotalAmount, p.TotalCostTry)
		}
		if !p.AverageCostRate.Equal(dec("32")) {
			t.Errorf("average cost should survive a full sell, got %s", p.AverageCostRate)
		}
	})

	t.Run("FailOnOversell", func(t *testing.T) {
		p := pos
		_, err := p.ApplySell(dec("200.01"), dec("1"), now)
		if !errors.Is(err, domain.ErrPositionInsufficient) {
			t.Errorf("expected ErrPositionInsufficient, got %v", err)
		}
	})
}

func TestCurrencyPosition_SellWithoutPosition(t *testing.T) {
	pos := domain.NewCurrencyPosition("cust-1", shared.EUR, time.Now())
	_, err := pos.ApplySell(dec("1"), dec("35"), time.Now())
	if !errors.Is(err, domain.ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
}

func TestCurrencyPosition_Value(t *testing.T) {
	pos := domain.CurrencyPosition{
		Currency:        shared.USD,
		TotalAmount:     dec("150"),
		AverageCostRate: dec("32"),
		TotalCostTry:    dec("4800"),
	}
	v := pos.Value(dec("34"))
	if !v.CurrentValue.Equal(dec("5100")) {
		t.Errorf("expected value 5100, got %s", v.CurrentValue)
	}
	if !v.UnrealizedPnl.Equal(dec("300")) {
		t.Errorf("expected unrealized 300, got %s", v.UnrealizedPnl)
	}
	if !v.UnrealizedPnlPercent.Equal(dec("6.25")) {
		t.Errorf("expected 6.25%%, got %s", v.UnrealizedPnlPercent)
	}
}

func TestExchangeRate_CheckFresh(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rate := domain.ExchangeRate{BaseCurrency: shared.TRY, Currency: shared.USD, BuyRate: dec("33"), SellRate: dec("34")}

	tests := []struct {
		name    string
		date    time.Time
		expired bool
	}{
		{"Today", now.Add(-time.Hour), false},
		{"YesterdayEarly", time.Date(2026, 3, 9, 0, 1, 0, 0, time.UTC), false},
		{"TwoDaysAgo", time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate.EffectiveDate = tt.date
			err := rate.CheckFresh(now)
			if tt.expired && !errors.Is(err, domain.ErrRateExpired) {
				t.Errorf("expected ErrRateExpired, got %v", err)
			}
			if !tt.expired && err != nil {
				t.Errorf("expected fresh rate, got %v", err)
			}
		})
	}
}
