package domain

import "time"

type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// LedgerEntry is one immutable line on an account's statement.
type LedgerEntry struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	TransferID    string    `json:"transferId,omitempty"`
	Amount        Money     `json:"amount"`
	Direction     Direction `json:"direction"`
	Description   string    `json:"description"`
	ReferenceCode string    `json:"referenceCode"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Signed returns the entry amount as a balance delta: negative for debits.
func (e LedgerEntry) Signed() Money {
	if e.Direction == Debit {
		return e.Amount.Negate()
	}
	return e.Amount
}
