package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferChannel string

const (
	ChannelInternal TransferChannel = "INTERNAL"
	ChannelExternal TransferChannel = "EXTERNAL"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferCompleted TransferStatus = "COMPLETED"
	TransferFailed    TransferStatus = "FAILED"
	TransferReversed  TransferStatus = "REVERSED"
)

type Transfer struct {
	ID            string          `json:"id"`
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	ToIBAN        string          `json:"toIban,omitempty"`
	Amount        Money           `json:"amount"`
	Commission    decimal.Decimal `json:"commission"`
	Channel       TransferChannel `json:"channel"`
	Status        TransferStatus  `json:"status"`
	Description   string          `json:"description"`
	ReferenceCode string          `json:"referenceCode"`
	ReversalOfID  *string         `json:"reversalOfId,omitempty"`
	ReversedByID  *string         `json:"reversedById,omitempty"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (t Transfer) IsReversal() bool {
	return t.ReversalOfID != nil
}

// CanReverse checks the Completed -> Reversed transition. A transfer is
// reversed at most once and reversals themselves are final.
func (t Transfer) CanReverse() error {
	if t.IsReversal() {
		return NewDomainError(CodeInvalidOperation, "transfer %s is itself a reversal and cannot be reversed", t.ID)
	}
	if t.Status == TransferReversed || t.ReversedByID != nil {
		return NewDomainError(CodeInvalidOperation, "transfer %s has already been reversed", t.ID)
	}
	if t.Status != TransferCompleted {
		return NewDomainError(CodeInvalidOperation, "transfer %s is %s, only completed transfers can be reversed", t.ID, t.Status)
	}
	return nil
}

func (t *Transfer) MarkReversed(reversalID string, at time.Time) error {
	if err := t.CanReverse(); err != nil {
		return err
	}
	t.Status = TransferReversed
	t.ReversedByID = &reversalID
	t.UpdatedAt = at
	return nil
}
