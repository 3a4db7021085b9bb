package store

import (
	"context"
	"errors"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	ErrNotLocked = errors.New("row is not locked by this transaction")
	ErrTxDone    = errors.New("transaction already committed or rolled back")
)

// Store is the database of record. Reads on Store see committed state only;
// every mutation goes through a Tx.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Reader
}

type Reader interface {
	GetAccount(ctx context.Context, id string) (domain.Account, error)
	GetAccountByIBAN(ctx context.Context, iban string) (domain.Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID string) ([]domain.Account, error)
	GetTransfer(ctx context.Context, id string) (domain.Transfer, error)
	ListEntries(ctx context.Context, accountID string, limit, skip int) ([]domain.LedgerEntry, error)
	ListPositions(ctx context.Context, customerID string) ([]domain.CurrencyPosition, error)
	ListCurrencyTransactions(ctx context.Context, customerID string, limit int) ([]domain.CurrencyTransaction, error)
}

// Tx is one unit of work. Writes are invisible to other transactions until
// Commit; Rollback discards them. Account and position rows may only be
// written while the transaction holds their lock. Account locks are always
// taken before position locks.
type Tx interface {
	// LockAccounts acquires exclusive locks in the order given, skipping locks
	// this transaction already holds. It blocks until every lock is held or
	// ctx is done.
	LockAccounts(ctx context.Context, ids []string) error

	GetAccount(ctx context.Context, id string) (domain.Account, error)
	GetAccountByIBAN(ctx context.Context, iban string) (domain.Account, error)
	InsertAccount(ctx context.Context, account domain.Account) error
	SaveAccount(ctx context.Context, account domain.Account) error

	GetTransfer(ctx context.Context, id string) (domain.Transfer, error)
	SaveTransfer(ctx context.Context, transfer domain.Transfer) error

	AppendEntry(ctx context.Context, entry domain.LedgerEntry) error

	// LockPosition takes the exclusive lock on one customer's position in a
	// currency, whether or not the position exists yet.
	LockPosition(ctx context.Context, customerID string, currency shared.Currency) error
	GetPosition(ctx context.Context, customerID string, currency shared.Currency) (position domain.CurrencyPosition, found bool, err error)
	SavePosition(ctx context.Context, position domain.CurrencyPosition) error
	AppendCurrencyTransaction(ctx context.Context, record domain.CurrencyTransaction) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type RateStore interface {
	LatestRate(ctx context.Context, base, currency shared.Currency) (domain.ExchangeRate, error)
	LatestRates(ctx context.Context, base shared.Currency) ([]domain.ExchangeRate, error)
	SaveRate(ctx context.Context, rate domain.ExchangeRate) error
}

type CommissionRuleStore interface {
	ActiveRules(ctx context.Context, t domain.CommissionType) ([]domain.CommissionRule, error)
	SaveRule(ctx context.Context, rule domain.CommissionRule) error
}

func page[T any](items []T, limit, skip int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	out := make([]T, end-skip)
	copy(out, items[skip:end])
	return out
}
