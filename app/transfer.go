package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/events"
	"banking-ledger/shared"
	"banking-ledger/store"
)

// TransferService moves money between accounts. Every movement is one
// atomic unit: both balances, both entries and the Transfer row commit
// together or not at all.
type TransferService struct {
	store      store.Store
	coord      *Coordinator
	recorder   *Recorder
	commission *Calculator
	events     *publisher
	now        func() time.Time
}

// leg describes one money movement to post under lock.
type leg struct {
	fromID      string
	toID        string
	amount      domain.Money
	fee         decimal.Decimal
	channel     domain.TransferChannel
	toIBAN      string
	description string
	requestedBy string
	// ownerCheckID names the account whose owner must be requestedBy.
	ownerCheckID string
	reversalOf   *string
}

func (s *TransferService) TransferInternal(ctx context.Context, cmd InternalTransferCommand) (TransferResult, error) {
	if err := validateCommand(cmd); err != nil {
		return TransferResult{}, err
	}
	currency, err := parseCurrency(cmd.Currency)
	if err != nil {
		return TransferResult{}, err
	}
	if err := checkAmount(cmd.Amount); err != nil {
		return TransferResult{}, err
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return TransferResult{}, domain.NewDomainError(domain.CodeSameAccountTransfer, "cannot transfer from account %s to itself", cmd.FromAccountID)
	}
	return s.execute(ctx, leg{
		fromID:       cmd.FromAccountID,
		toID:         cmd.ToAccountID,
		amount:       domain.NewMoney(cmd.Amount, currency),
		channel:      domain.ChannelInternal,
		description:  describe(cmd.Description, "Transfer to %s", cmd.ToAccountID),
		requestedBy:  cmd.RequestedBy,
		ownerCheckID: cmd.FromAccountID,
	})
}

// TransferExternal sends money to an IBAN. An IBAN held at this bank is
// settled on-us as an internal transfer; anything else is credited to the
// clearing account of the currency and charged the external transfer fee.
func (s *TransferService) TransferExternal(ctx context.Context, cmd ExternalTransferCommand) (TransferResult, error) {
	cmd.ToIBAN = normalizeIBAN(cmd.ToIBAN)
	if err := validateCommand(cmd); err != nil {
		return TransferResult{}, err
	}
	currency, err := parseCurrency(cmd.Currency)
	if err != nil {
		return TransferResult{}, err
	}
	if err := checkAmount(cmd.Amount); err != nil {
		return TransferResult{}, err
	}
	amount := domain.NewMoney(cmd.Amount, currency)
	description := describe(cmd.Description, "Transfer to %s", cmd.ToIBAN)

	local, err := s.store.GetAccountByIBAN(ctx, cmd.ToIBAN)
	switch {
	case err == nil:
		if local.ID == cmd.FromAccountID {
			return TransferResult{}, domain.NewDomainError(domain.CodeSameAccountTransfer, "IBAN %s belongs to the source account", cmd.ToIBAN)
		}
		log.Printf("IBAN %s resolved to local account %s, settling on-us", cmd.ToIBAN, local.ID)
		return s.execute(ctx, leg{
			fromID:       cmd.FromAccountID,
			toID:         local.ID,
			amount:       amount,
			channel:      domain.ChannelInternal,
			toIBAN:       cmd.ToIBAN,
			description:  description,
			requestedBy:  cmd.RequestedBy,
			ownerCheckID: cmd.FromAccountID,
		})
	case !errors.Is(err, store.ErrNotFound):
		return TransferResult{}, fmt.Errorf("failed to resolve IBAN %s: %w", cmd.ToIBAN, err)
	}

	fee, err := s.commission.Calculate(ctx, domain.CommissionTransferExternal, currency, cmd.Amount)
	if err != nil {
		return TransferResult{}, err
	}
	return s.execute(ctx, leg{
		fromID:       cmd.FromAccountID,
		toID:         ClearingAccountID(currency),
		amount:       amount,
		fee:          fee,
		channel:      domain.ChannelExternal,
		toIBAN:       cmd.ToIBAN,
		description:  description,
		requestedBy:  cmd.RequestedBy,
		ownerCheckID: cmd.FromAccountID,
	})
}

// Deposit credits a customer account from the system cash account.
func (s *TransferService) Deposit(ctx context.Context, cmd CashCommand) (TransferResult, error) {
	currency, err := s.checkCash(cmd)
	if err != nil {
		return TransferResult{}, err
	}
	return s.execute(ctx, leg{
		fromID:       CashAccountID(currency),
		toID:         cmd.AccountID,
		amount:       domain.NewMoney(cmd.Amount, currency),
		channel:      domain.ChannelInternal,
		description:  describe(cmd.Description, "Cash deposit"),
		requestedBy:  cmd.RequestedBy,
		ownerCheckID: cmd.AccountID,
	})
}

// Withdraw debits a customer account into the system cash account.
func (s *TransferService) Withdraw(ctx context.Context, cmd CashCommand) (TransferResult, error) {
	currency, err := s.checkCash(cmd)
	if err != nil {
		return TransferResult{}, err
	}
	return s.execute(ctx, leg{
		fromID:       cmd.AccountID,
		toID:         CashAccountID(currency),
		amount:       domain.NewMoney(cmd.Amount, currency),
		channel:      domain.ChannelInternal,
		description:  describe(cmd.Description, "Cash withdrawal"),
		requestedBy:  cmd.RequestedBy,
		ownerCheckID: cmd.AccountID,
	})
}

func (s *TransferService) checkCash(cmd CashCommand) (shared.Currency, error) {
	if err := validateCommand(cmd); err != nil {
		return "", err
	}
	currency, err := parseCurrency(cmd.Currency)
	if err != nil {
		return "", err
	}
	if err := checkAmount(cmd.Amount); err != nil {
		return "", err
	}
	if IsSystemAccount(cmd.AccountID) {
		return "", domain.NewDomainError(domain.CodeInvalidOperation, "cash operations on system account %s are not allowed", cmd.AccountID)
	}
	return currency, nil
}

// Reverse moves the original amount back from destination to source as a
// new linked transfer and marks the original REVERSED. Commission charged on
// the original is not refunded.
func (s *TransferService) Reverse(ctx context.Context, cmd ReverseCommand) (ReversalResult, error) {
	if err := validateCommand(cmd); err != nil {
		return ReversalResult{}, err
	}
	original, err := s.GetTransfer(ctx, cmd.TransferID)
	if err != nil {
		return ReversalResult{}, err
	}
	if err := original.CanReverse(); err != nil {
		return ReversalResult{}, err
	}

	var result ReversalResult
	err = s.coord.RunAtomic(ctx, []string{original.FromAccountID, original.ToAccountID}, func(ctx context.Context, tx store.Tx) error {
		// re-read under lock; a concurrent reversal may have won
		current, err := tx.GetTransfer(ctx, original.ID)
		if err != nil {
			return fmt.Errorf("failed to reload transfer %s: %w", original.ID, err)
		}
		if err := current.CanReverse(); err != nil {
			return err
		}

		originalID := current.ID
		description := "Reversal of " + current.ReferenceCode
		if cmd.Reason != "" {
			description += ": " + cmd.Reason
		}
		posted, err := s.post(ctx, tx, leg{
			fromID:      current.ToAccountID,
			toID:        current.FromAccountID,
			amount:      current.Amount,
			channel:     current.Channel,
			description: description,
			requestedBy: cmd.RequestedBy,
			reversalOf:  &originalID,
		})
		if err != nil {
			return err
		}

		if err := current.MarkReversed(posted.Transfer.ID, s.now().UTC()); err != nil {
			return err
		}
		if err := tx.SaveTransfer(ctx, current); err != nil {
			return fmt.Errorf("failed to mark transfer %s reversed: %w", current.ID, err)
		}

		s.events.afterCommit(ctx, events.TransferReversedEvent{
			BaseEvent:  events.NewBaseEvent(current.ID, events.TransferReversedType),
			ReversalID: posted.Transfer.ID,
			Amount:     current.Amount.Amount,
			Currency:   current.Amount.Currency,
			Reason:     cmd.Reason,
		})
		result = ReversalResult{TransferResult: posted, Original: current}
		return nil
	})
	if err != nil {
		return ReversalResult{}, err
	}
	log.Printf("Transfer %s reversed by %s", result.Original.ID, result.Transfer.ID)
	return result, nil
}

func (s *TransferService) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	t, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Transfer{}, domain.NewDomainError(domain.CodeNotFound, "transfer %s not found", id)
		}
		return domain.Transfer{}, fmt.Errorf("failed to load transfer %s: %w", id, err)
	}
	return t, nil
}

func (s *TransferService) execute(ctx context.Context, l leg) (TransferResult, error) {
	var result TransferResult
	err := s.coord.RunAtomic(ctx, []string{l.fromID, l.toID}, func(ctx context.Context, tx store.Tx) error {
		var err error
		result, err = s.post(ctx, tx, l)
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	log.Printf("Transfer %s of %s from %s to %s completed (%s)",
		result.Transfer.ID, l.amount, l.fromID, l.toID, result.Transfer.ReferenceCode)
	return result, nil
}

// post applies one leg inside the caller's unit of work. Both accounts must
// already be locked.
func (s *TransferService) post(ctx context.Context, tx store.Tx, l leg) (TransferResult, error) {
	from, err := loadAccount(ctx, tx, l.fromID)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := loadAccount(ctx, tx, l.toID)
	if err != nil {
		return TransferResult{}, err
	}
	for _, acc := range []domain.Account{from, to} {
		if err := acc.RequireActive(); err != nil {
			return TransferResult{}, err
		}
		if err := requireCurrency(acc, l.amount.Currency); err != nil {
			return TransferResult{}, err
		}
		if acc.ID == l.ownerCheckID {
			if err := authorize(acc, l.requestedBy); err != nil {
				return TransferResult{}, err
			}
		}
	}

	total := l.amount
	feeMoney := domain.NewMoney(l.fee, l.amount.Currency)
	if feeMoney.IsPositive() {
		if total, err = total.Add(feeMoney); err != nil {
			return TransferResult{}, err
		}
	}
	if !from.CanWithdraw(total) {
		return TransferResult{}, domain.NewDomainError(domain.CodeInsufficientFunds,
			"insufficient funds: requested %s, available %s on account %s", total, from.Available(), from.ID)
	}

	now := s.now().UTC()
	transfer := domain.Transfer{
		ID:            uuid.NewString(),
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		ToIBAN:        l.toIBAN,
		Amount:        l.amount,
		Commission:    l.fee,
		Channel:       l.channel,
		Status:        domain.TransferPending,
		Description:   l.description,
		ReferenceCode: s.recorder.NextReference(),
		ReversalOfID:  l.reversalOf,
		CreatedBy:     l.requestedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := from.Withdraw(l.amount); err != nil {
		return TransferResult{}, err
	}
	if err := to.Deposit(l.amount); err != nil {
		return TransferResult{}, err
	}
	result := TransferResult{}
	if result.Debit, err = s.recorder.Record(ctx, Posting{
		AccountID: from.ID, TransferID: transfer.ID, Money: l.amount, Direction: domain.Debit, Description: l.description,
	}); err != nil {
		return TransferResult{}, err
	}
	if result.Credit, err = s.recorder.Record(ctx, Posting{
		AccountID: to.ID, TransferID: transfer.ID, Money: l.amount, Direction: domain.Credit, Description: l.description,
	}); err != nil {
		return TransferResult{}, err
	}

	if feeMoney.IsPositive() {
		if err := from.Withdraw(feeMoney); err != nil {
			return TransferResult{}, err
		}
		if err := to.Deposit(feeMoney); err != nil {
			return TransferResult{}, err
		}
		feeDescription := "Commission: " + l.description
		for _, p := range []Posting{
			{AccountID: from.ID, TransferID: transfer.ID, Money: feeMoney, Direction: domain.Debit, Description: feeDescription},
			{AccountID: to.ID, TransferID: transfer.ID, Money: feeMoney, Direction: domain.Credit, Description: feeDescription},
		} {
			entry, err := s.recorder.Record(ctx, p)
			if err != nil {
				return TransferResult{}, err
			}
			result.FeeEntries = append(result.FeeEntries, entry)
		}
	}

	if err := tx.SaveAccount(ctx, from); err != nil {
		return TransferResult{}, fmt.Errorf("failed to save account %s: %w", from.ID, err)
	}
	if err := tx.SaveAccount(ctx, to); err != nil {
		return TransferResult{}, fmt.Errorf("failed to save account %s: %w", to.ID, err)
	}

	transfer.Status = domain.TransferCompleted
	if err := tx.SaveTransfer(ctx, transfer); err != nil {
		return TransferResult{}, fmt.Errorf("failed to save transfer %s: %w", transfer.ID, err)
	}

	s.events.afterCommit(ctx, events.TransferCompletedEvent{
		BaseEvent:     events.NewBaseEvent(transfer.ID, events.TransferCompletedType),
		FromAccountID: transfer.FromAccountID,
		ToAccountID:   transfer.ToAccountID,
		ToIBAN:        transfer.ToIBAN,
		Amount:        transfer.Amount.Amount,
		Currency:      transfer.Amount.Currency,
		Channel:       string(transfer.Channel),
		ReferenceCode: transfer.ReferenceCode,
	})

	result.Transfer = transfer
	result.FromBalance = from.Balance
	result.ToBalance = to.Balance
	return result, nil
}

func describe(given, format string, args ...any) string {
	if given != "" {
		return given
	}
	return fmt.Sprintf(format, args...)
}
