package events

import (
	"github.com/shopspring/decimal"

	"banking-ledger/shared"
)

type TransferCompletedEvent struct {
	BaseEvent
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	ToIBAN        string          `json:"toIban,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      shared.Currency `json:"currency"`
	Channel       string          `json:"channel"`
	ReferenceCode string          `json:"referenceCode"`
}

type TransferReversedEvent struct {
	BaseEvent
	ReversalID string          `json:"reversalId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   shared.Currency `json:"currency"`
	Reason     string          `json:"reason"`
}

type CurrencyBoughtEvent struct {
	BaseEvent
	CustomerID   string          `json:"customerId"`
	Currency     shared.Currency `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	TryAmount    decimal.Decimal `json:"tryAmount"`
	Commission   decimal.Decimal `json:"commission"`
	AvgCostAfter decimal.Decimal `json:"avgCostAfter"`
}

type CurrencySoldEvent struct {
	BaseEvent
	CustomerID  string          `json:"customerId"`
	Currency    shared.Currency `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	TryAmount   decimal.Decimal `json:"tryAmount"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"`
}

// AuditRecordedEvent carries one audit log line onto the audit stream.
type AuditRecordedEvent struct {
	BaseEvent
	Payload map[string]any `json:"payload"`
}
