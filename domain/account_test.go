package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

// Helper to create decimals in tests, panics on error
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tryMoney(s string) domain.Money {
	return domain.NewMoney(dec(s), shared.TRY)
}

func newAccount(t *testing.T, balance, overdraft string) domain.Account {
	t.Helper()
	acc, err := domain.NewAccount("acc-1", "cust-1", "10000001", "TR000000000000000000000001", shared.TRY, dec(overdraft))
	if err != nil {
		t.Fatalf("NewAccount failed: %v", err)
	}
	acc.Balance = tryMoney(balance)
	return acc
}

func TestAccount_NewAccount(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		acc := newAccount(t, "0", "100")
		if acc.Status != domain.AccountActive {
			t.Errorf("expected ACTIVE, got %s", acc.Status)
		}
		if !acc.Balance.IsZero() || acc.Balance.Currency != shared.TRY {
			t.Errorf("expected zero TRY balance, got %s", acc.Balance)
		}
	})

	t.Run("FailOnEmptyID", func(t *testing.T) {
		_, err := domain.NewAccount("", "cust-1", "1", "TR1", shared.TRY, decimal.Zero)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("FailOnNegativeOverdraft", func(t *testing.T) {
		_, err := domain.NewAccount("acc-x", "cust-1", "1", "TR1", shared.TRY, dec("-1"))
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("FailOnUnsupportedCurrency", func(t *testing.T) {
		_, err := domain.NewAccount("acc-x", "cust-1", "1", "TR1", shared.Currency("XYZ"), decimal.Zero)
		if !errors.Is(err, domain.ErrInvalidCurrency) {
			t.Errorf("expected ErrInvalidCurrency, got %v", err)
		}
	})
}

func TestAccount_CanWithdraw(t *testing.T) {
	acc := newAccount(t, "50", "100")

	tests := []struct {
		name  string
		money domain.Money
		want  bool
	}{
		{"WithinBalance", tryMoney("30"), true},
		{"IntoOverdraft", tryMoney("100"), true},
		{"ExactlyAtLimit", tryMoney("150"), true},
		{"BeyondLimit", tryMoney("150.01"), false},
		{"OtherCurrency", domain.NewMoney(dec("1"), shared.USD), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acc.CanWithdraw(tt.money); got != tt.want {
				t.Errorf("CanWithdraw(%s) = %v, want %v", tt.money, got, tt.want)
			}
		})
	}
}

func TestAccount_Withdraw(t *testing.T) {
	t.Run("SuccessIntoOverdraft", func(t *testing.T) {
		acc := newAccount(t, "50", "100")
		if err := acc.Withdraw(tryMoney("100")); err != nil {
			t.Fatalf("Withdraw failed: %v", err)
		}
		if !acc.Balance.Amount.Equal(dec("-50")) {
			t.Errorf("expected balance -50, got %s", acc.Balance.Amount)
		}
	})

	t.Run("FailOnInsufficientFunds", func(t *testing.T) {
		acc := newAccount(t, "50", "100")
		err := acc.Withdraw(tryMoney("200"))
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("expected ErrInsufficientFunds, got %v", err)
		}
		// State should be unchanged
		if !acc.Balance.Amount.Equal(dec("50")) {
			t.Errorf("balance should not change on error, expected 50, got %s", acc.Balance.Amount)
		}
	})

	t.Run("FailOnCurrencyMismatch", func(t *testing.T) {
		acc := newAccount(t, "50", "0")
		err := acc.Withdraw(domain.NewMoney(dec("1"), shared.EUR))
		if !errors.Is(err, domain.ErrCurrencyMismatch) {
			t.Errorf("expected ErrCurrencyMismatch, got %v", err)
		}
	})

	t.Run("FailOnNonPositiveAmount", func(t *testing.T) {
		acc := newAccount(t, "50", "0")
		err := acc.Withdraw(tryMoney("0"))
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestAccount_Deposit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		acc := newAccount(t, "-50", "100")
		if err := acc.Deposit(tryMoney("75.25")); err != nil {
			t.Fatalf("Deposit failed: %v", err)
		}
		if !acc.Balance.Amount.Equal(dec("25.25")) {
			t.Errorf("expected balance 25.25, got %s", acc.Balance.Amount)
		}
	})

	t.Run("FailOnCurrencyMismatch", func(t *testing.T) {
		acc := newAccount(t, "0", "0")
		err := acc.Deposit(domain.NewMoney(dec("10"), shared.USD))
		if !errors.Is(err, domain.ErrCurrencyMismatch) {
			t.Errorf("expected ErrCurrencyMismatch, got %v", err)
		}
		if !acc.Balance.IsZero() {
			t.Errorf("balance should not change on error, got %s", acc.Balance)
		}
	})
}

func TestAccount_RequireActive(t *testing.T) {
	acc := newAccount(t, "0", "0")
	if err := acc.RequireActive(); err != nil {
		t.Fatalf("active account rejected: %v", err)
	}
	for _, status := range []domain.AccountStatus{domain.AccountFrozen, domain.AccountClosed, domain.AccountPendingApproval} {
		acc.Status = status
		if err := acc.RequireActive(); !errors.Is(err, domain.ErrAccountInactive) {
			t.Errorf("status %s: expected ErrAccountInactive, got %v", status, err)
		}
	}
}
