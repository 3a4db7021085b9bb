package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/shared"
)

type AccountStatus string

const (
	AccountActive          AccountStatus = "ACTIVE"
	AccountFrozen          AccountStatus = "FROZEN"
	AccountClosed          AccountStatus = "CLOSED"
	AccountPendingApproval AccountStatus = "PENDING_APPROVAL"
)

// Account is a plain snapshot of one account row. The ledger primitives below
// mutate the receiver only; persisting the result is the unit of work's job.
type Account struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"ownerId"`
	AccountNumber  string          `json:"accountNumber"`
	IBAN           string          `json:"iban"`
	Currency       shared.Currency `json:"currency"`
	Balance        Money           `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit"`
	Status         AccountStatus   `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func NewAccount(id, ownerID, accountNumber, iban string, currency shared.Currency, overdraft decimal.Decimal) (Account, error) {
	if id == "" {
		return Account{}, NewDomainError(CodeValidation, "account ID cannot be empty")
	}
	if !currency.IsValid() {
		return Account{}, NewDomainError(CodeInvalidCurrency, "unsupported currency: %q", currency)
	}
	if overdraft.IsNegative() {
		return Account{}, NewDomainError(CodeValidation, "overdraft limit cannot be negative: %s", overdraft.String())
	}
	now := time.Now().UTC()
	return Account{
		ID:             id,
		OwnerID:        ownerID,
		AccountNumber:  accountNumber,
		IBAN:           iban,
		Currency:       currency,
		Balance:        ZeroMoney(currency),
		OverdraftLimit: overdraft,
		Status:         AccountActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (a Account) IsActive() bool {
	return a.Status == AccountActive
}

func (a Account) RequireActive() error {
	if !a.IsActive() {
		return NewDomainError(CodeAccountInactive, "account %s is %s", a.ID, a.Status)
	}
	return nil
}

// Available is the amount that can still be withdrawn, overdraft included.
func (a Account) Available() Money {
	return NewMoney(a.Balance.Amount.Add(a.OverdraftLimit), a.Currency)
}

// CanWithdraw reports whether money can leave the account without breaching
// balance + overdraft >= 0.
func (a Account) CanWithdraw(money Money) bool {
	if money.Currency != a.Currency {
		return false
	}
	return a.Balance.Amount.Sub(money.Amount).Add(a.OverdraftLimit).GreaterThanOrEqual(decimal.Zero)
}

func (a *Account) Withdraw(money Money) error {
	if money.Currency != a.Currency {
		return NewDomainError(CodeCurrencyMismatch, "currency mismatch: account %s holds %s, got %s", a.ID, a.Currency, money.Currency)
	}
	if !money.IsPositive() {
		return NewDomainError(CodeInvalidAmount, "withdrawal amount must be positive: %s", money.Amount.String())
	}
	if !a.CanWithdraw(money) {
		return NewDomainError(CodeInsufficientFunds, "insufficient funds: requested %s, available %s on account %s",
			money.String(), a.Available().String(), a.ID)
	}
	balance, err := a.Balance.Subtract(money)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (a *Account) Deposit(money Money) error {
	if money.Currency != a.Currency {
		return NewDomainError(CodeCurrencyMismatch, "currency mismatch: account %s holds %s, got %s", a.ID, a.Currency, money.Currency)
	}
	if !money.IsPositive() {
		return NewDomainError(CodeInvalidAmount, "deposit amount must be positive: %s", money.Amount.String())
	}
	balance, err := a.Balance.Add(money)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.UpdatedAt = time.Now().UTC()
	return nil
}
