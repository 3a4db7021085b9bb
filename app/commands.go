package app

import (
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

// --- Commands ---
// Commands carry validated caller intent. RequestedBy / CustomerID is the
// explicit caller identity; an empty RequestedBy skips ownership checks for
// trusted internal callers.

type OpenAccountCommand struct {
	AccountID      string
	OwnerID        string          `validate:"required,max=64"`
	Currency       shared.Currency `validate:"required"`
	IBAN           string          `validate:"omitempty,alphanum,min=15,max=34"`
	OverdraftLimit decimal.Decimal
}

type InternalTransferCommand struct {
	FromAccountID string          `validate:"required"`
	ToAccountID   string          `validate:"required"`
	Amount        decimal.Decimal
	Currency      shared.Currency `validate:"required"`
	Description   string          `validate:"max=255"`
	RequestedBy   string
}

type ExternalTransferCommand struct {
	FromAccountID string          `validate:"required"`
	ToIBAN        string          `validate:"required,alphanum,min=15,max=34"`
	Amount        decimal.Decimal
	Currency      shared.Currency `validate:"required"`
	Description   string          `validate:"max=255"`
	RequestedBy   string
}

// CashCommand is a customer-facing deposit or withdrawal against the
// system cash account of the currency.
type CashCommand struct {
	AccountID   string          `validate:"required"`
	Amount      decimal.Decimal
	Currency    shared.Currency `validate:"required"`
	Description string          `validate:"max=255"`
	RequestedBy string
}

type ReverseCommand struct {
	TransferID  string `validate:"required"`
	Reason      string `validate:"max=255"`
	RequestedBy string
}

type BuyCurrencyCommand struct {
	CustomerID         string          `validate:"required"`
	FromTryAccountID   string          `validate:"required"`
	ToForeignAccountID string          `validate:"required"`
	Currency           shared.Currency `validate:"required"`
	Amount             decimal.Decimal
}

type SellCurrencyCommand struct {
	CustomerID           string          `validate:"required"`
	FromForeignAccountID string          `validate:"required"`
	ToTryAccountID       string          `validate:"required"`
	Currency             shared.Currency `validate:"required"`
	Amount               decimal.Decimal
}

type SetRateCommand struct {
	Currency      shared.Currency `validate:"required"`
	BuyRate       decimal.Decimal
	SellRate      decimal.Decimal
	EffectiveDate time.Time
}

type AddCommissionRuleCommand struct {
	ID             string
	Type           domain.CommissionType `validate:"required,oneof=CURRENCY_BUY CURRENCY_SELL TRANSFER_EXTERNAL"`
	Currency       shared.Currency       `validate:"required"`
	FixedAmount    decimal.Decimal
	PercentageRate decimal.Decimal
	MinAmount      decimal.Decimal
	MaxAmount      *decimal.Decimal
	ValidFrom      time.Time
	ValidUntil     *time.Time
}

// --- Queries ---

type HistoryQuery struct {
	AccountID   string `validate:"required"`
	Limit       int    `validate:"min=0,max=1000"`
	Skip        int    `validate:"min=0"`
	RequestedBy string
}
