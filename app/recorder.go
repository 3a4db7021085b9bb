package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"banking-ledger/domain"
)

// Posting is one line to append to an account's statement.
type Posting struct {
	AccountID   string
	TransferID  string
	Money       domain.Money
	Direction   domain.Direction
	Description string
}

// Recorder appends immutable ledger entries through the active unit of work.
type Recorder struct {
	now   func() time.Time
	nonce string
	seq   atomic.Uint64
}

func NewRecorder(now func() time.Time) *Recorder {
	nonce := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return &Recorder{now: now, nonce: nonce}
}

// NextReference returns a code unique within this process: TRX, the UTC
// date, a per-process nonce and a monotonic sequence.
func (r *Recorder) NextReference() string {
	return fmt.Sprintf("TRX%s%s%08d", r.now().UTC().Format("20060102"), r.nonce, r.seq.Add(1))
}

func (r *Recorder) Record(ctx context.Context, p Posting) (domain.LedgerEntry, error) {
	tx, ok := activeTx(ctx)
	if !ok {
		return domain.LedgerEntry{}, domain.NewDomainError(domain.CodeInvalidOperation, "ledger entries can only be recorded inside a unit of work")
	}
	if !p.Money.IsPositive() {
		return domain.LedgerEntry{}, domain.NewDomainError(domain.CodeInvalidAmount, "entry amount must be positive: %s", p.Money)
	}
	entry := domain.LedgerEntry{
		ID:            uuid.NewString(),
		AccountID:     p.AccountID,
		TransferID:    p.TransferID,
		Amount:        p.Money,
		Direction:     p.Direction,
		Description:   p.Description,
		ReferenceCode: r.NextReference(),
		CreatedAt:     r.now().UTC(),
	}
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("failed to append entry for account %s: %w", p.AccountID, err)
	}
	return entry, nil
}
