package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

type positionKey struct {
	customerID string
	currency   shared.Currency
}

// InMemoryStore is a transactional database of record held in process
// memory. Committed state is guarded by the embedded RWMutex; row locks live
// in separate lock tables so that waiting on a contended account or position
// never blocks readers.
type InMemoryStore struct {
	sync.RWMutex
	accounts    map[string]domain.Account
	ibanIndex   map[string]string
	transfers   map[string]domain.Transfer
	entries     map[string][]domain.LedgerEntry
	positions   map[positionKey]domain.CurrencyPosition
	currencyTxs map[string][]domain.CurrencyTransaction
	rates       map[shared.Currency][]domain.ExchangeRate
	rules       map[string]domain.CommissionRule
	locks       *lockTable[string]
	posLocks    *lockTable[positionKey]
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts:    make(map[string]domain.Account),
		ibanIndex:   make(map[string]string),
		transfers:   make(map[string]domain.Transfer),
		entries:     make(map[string][]domain.LedgerEntry),
		positions:   make(map[positionKey]domain.CurrencyPosition),
		currencyTxs: make(map[string][]domain.CurrencyTransaction),
		rates:       make(map[shared.Currency][]domain.ExchangeRate),
		rules:       make(map[string]domain.CommissionRule),
		locks:       newLockTable[string](),
		posLocks:    newLockTable[positionKey](),
	}
}

func (s *InMemoryStore) Begin(_ context.Context) (Tx, error) {
	return &memTx{
		store:     s,
		held:      make(map[string]struct{}),
		heldPos:   make(map[positionKey]struct{}),
		accounts:  make(map[string]domain.Account),
		inserted:  make(map[string]struct{}),
		transfers: make(map[string]domain.Transfer),
		positions: make(map[positionKey]domain.CurrencyPosition),
	}, nil
}

// --- Committed reads ---

func (s *InMemoryStore) GetAccount(_ context.Context, id string) (domain.Account, error) {
	s.RLock()
	defer s.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return acc, nil
}

func (s *InMemoryStore) GetAccountByIBAN(ctx context.Context, iban string) (domain.Account, error) {
	s.RLock()
	id, ok := s.ibanIndex[iban]
	s.RUnlock()
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: iban %s", ErrNotFound, iban)
	}
	return s.GetAccount(ctx, id)
}

func (s *InMemoryStore) ListAccountsByOwner(_ context.Context, ownerID string) ([]domain.Account, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]domain.Account, 0)
	for _, acc := range s.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) GetTransfer(_ context.Context, id string) (domain.Transfer, error) {
	s.RLock()
	defer s.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return domain.Transfer{}, fmt.Errorf("%w: transfer %s", ErrNotFound, id)
	}
	return t, nil
}

func (s *InMemoryStore) ListEntries(_ context.Context, accountID string, limit, skip int) ([]domain.LedgerEntry, error) {
	s.RLock()
	defer s.RUnlock()
	return page(s.entries[accountID], limit, skip), nil
}

func (s *InMemoryStore) ListPositions(_ context.Context, customerID string) ([]domain.CurrencyPosition, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]domain.CurrencyPosition, 0)
	for key, pos := range s.positions {
		if key.customerID == customerID {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *InMemoryStore) ListCurrencyTransactions(_ context.Context, customerID string, limit int) ([]domain.CurrencyTransaction, error) {
	s.RLock()
	defer s.RUnlock()
	history := s.currencyTxs[customerID]
	skip := 0
	if limit > 0 && len(history) > limit {
		skip = len(history) - limit
	}
	return page(history, limit, skip), nil
}

// --- RateStore ---

func (s *InMemoryStore) LatestRate(_ context.Context, base, currency shared.Currency) (domain.ExchangeRate, error) {
	s.RLock()
	defer s.RUnlock()
	latest, ok := latestRate(s.rates[currency], base)
	if !ok {
		return domain.ExchangeRate{}, fmt.Errorf("%w: rate %s/%s", ErrNotFound, base, currency)
	}
	return latest, nil
}

func (s *InMemoryStore) LatestRates(_ context.Context, base shared.Currency) ([]domain.ExchangeRate, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]domain.ExchangeRate, 0, len(s.rates))
	for _, history := range s.rates {
		if latest, ok := latestRate(history, base); ok {
			out = append(out, latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *InMemoryStore) SaveRate(_ context.Context, rate domain.ExchangeRate) error {
	s.Lock()
	defer s.Unlock()
	s.rates[rate.Currency] = append(s.rates[rate.Currency], rate)
	return nil
}

func latestRate(history []domain.ExchangeRate, base shared.Currency) (domain.ExchangeRate, bool) {
	var latest domain.ExchangeRate
	found := false
	for _, r := range history {
		if r.BaseCurrency != base {
			continue
		}
		if !found || !r.EffectiveDate.Before(latest.EffectiveDate) {
			latest = r
			found = true
		}
	}
	return latest, found
}

// --- CommissionRuleStore ---

func (s *InMemoryStore) ActiveRules(_ context.Context, t domain.CommissionType) ([]domain.CommissionRule, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]domain.CommissionRule, 0)
	for _, rule := range s.rules {
		if rule.Type == t && rule.IsActive {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SaveRule(_ context.Context, rule domain.CommissionRule) error {
	s.Lock()
	defer s.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

// --- Unit of work ---

type memTx struct {
	store *InMemoryStore

	held      map[string]struct{}
	heldOrder []string
	heldPos   map[positionKey]struct{}
	posOrder  []positionKey

	accounts    map[string]domain.Account
	inserted    map[string]struct{}
	transfers   map[string]domain.Transfer
	entries     []domain.LedgerEntry
	positions   map[positionKey]domain.CurrencyPosition
	currencyTxs []domain.CurrencyTransaction

	done bool
}

func (tx *memTx) LockAccounts(ctx context.Context, ids []string) error {
	if tx.done {
		return ErrTxDone
	}
	for _, id := range ids {
		if _, ok := tx.held[id]; ok {
			continue
		}
		if err := tx.store.locks.acquire(ctx, id); err != nil {
			return fmt.Errorf("failed to lock account %s: %w", id, err)
		}
		tx.held[id] = struct{}{}
		tx.heldOrder = append(tx.heldOrder, id)
	}
	return nil
}

func (tx *memTx) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	if tx.done {
		return domain.Account{}, ErrTxDone
	}
	if acc, ok := tx.accounts[id]; ok {
		return acc, nil
	}
	return tx.store.GetAccount(ctx, id)
}

func (tx *memTx) GetAccountByIBAN(ctx context.Context, iban string) (domain.Account, error) {
	if tx.done {
		return domain.Account{}, ErrTxDone
	}
	for _, acc := range tx.accounts {
		if acc.IBAN == iban {
			return acc, nil
		}
	}
	return tx.store.GetAccountByIBAN(ctx, iban)
}

func (tx *memTx) InsertAccount(ctx context.Context, account domain.Account) error {
	if tx.done {
		return ErrTxDone
	}
	if _, err := tx.GetAccount(ctx, account.ID); err == nil {
		return fmt.Errorf("%w: account %s", ErrDuplicate, account.ID)
	}
	tx.accounts[account.ID] = account
	tx.inserted[account.ID] = struct{}{}
	return nil
}

func (tx *memTx) SaveAccount(_ context.Context, account domain.Account) error {
	if tx.done {
		return ErrTxDone
	}
	if _, ok := tx.inserted[account.ID]; !ok {
		if _, ok := tx.held[account.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrNotLocked, account.ID)
		}
	}
	tx.accounts[account.ID] = account
	return nil
}

func (tx *memTx) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	if tx.done {
		return domain.Transfer{}, ErrTxDone
	}
	if t, ok := tx.transfers[id]; ok {
		return t, nil
	}
	return tx.store.GetTransfer(ctx, id)
}

func (tx *memTx) SaveTransfer(_ context.Context, transfer domain.Transfer) error {
	if tx.done {
		return ErrTxDone
	}
	tx.transfers[transfer.ID] = transfer
	return nil
}

func (tx *memTx) AppendEntry(_ context.Context, entry domain.LedgerEntry) error {
	if tx.done {
		return ErrTxDone
	}
	tx.entries = append(tx.entries, entry)
	return nil
}

func (tx *memTx) GetPosition(_ context.Context, customerID string, currency shared.Currency) (domain.CurrencyPosition, bool, error) {
	if tx.done {
		return domain.CurrencyPosition{}, false, ErrTxDone
	}
	key := positionKey{customerID: customerID, currency: currency}
	if pos, ok := tx.positions[key]; ok {
		return pos, true, nil
	}
	tx.store.RLock()
	defer tx.store.RUnlock()
	pos, ok := tx.store.positions[key]
	return pos, ok, nil
}

func (tx *memTx) LockPosition(ctx context.Context, customerID string, currency shared.Currency) error {
	if tx.done {
		return ErrTxDone
	}
	key := positionKey{customerID: customerID, currency: currency}
	if _, ok := tx.heldPos[key]; ok {
		return nil
	}
	if err := tx.store.posLocks.acquire(ctx, key); err != nil {
		return fmt.Errorf("failed to lock %s position of %s: %w", currency, customerID, err)
	}
	tx.heldPos[key] = struct{}{}
	tx.posOrder = append(tx.posOrder, key)
	return nil
}

func (tx *memTx) SavePosition(_ context.Context, position domain.CurrencyPosition) error {
	if tx.done {
		return ErrTxDone
	}
	key := positionKey{customerID: position.CustomerID, currency: position.Currency}
	if _, ok := tx.heldPos[key]; !ok {
		return fmt.Errorf("%w: %s position of %s", ErrNotLocked, position.Currency, position.CustomerID)
	}
	tx.positions[key] = position
	return nil
}

func (tx *memTx) AppendCurrencyTransaction(_ context.Context, record domain.CurrencyTransaction) error {
	if tx.done {
		return ErrTxDone
	}
	tx.currencyTxs = append(tx.currencyTxs, record)
	return nil
}

// Commit applies the whole write set under the store's write lock, so other
// readers observe either none or all of it.
func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	defer tx.finish()

	s := tx.store
	s.Lock()
	defer s.Unlock()

	for id := range tx.inserted {
		if _, exists := s.accounts[id]; exists {
			return fmt.Errorf("%w: account %s", ErrDuplicate, id)
		}
		iban := tx.accounts[id].IBAN
		if iban == "" {
			continue
		}
		if owner, taken := s.ibanIndex[iban]; taken && owner != id {
			return fmt.Errorf("%w: iban %s", ErrDuplicate, iban)
		}
	}

	for id, acc := range tx.accounts {
		s.accounts[id] = acc
		if acc.IBAN != "" {
			s.ibanIndex[acc.IBAN] = id
		}
	}
	for id, t := range tx.transfers {
		s.transfers[id] = t
	}
	for _, e := range tx.entries {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
	}
	for key, pos := range tx.positions {
		s.positions[key] = pos
	}
	for _, ct := range tx.currencyTxs {
		s.currencyTxs[ct.CustomerID] = append(s.currencyTxs[ct.CustomerID], ct)
	}
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

func (tx *memTx) finish() {
	tx.done = true
	tx.accounts, tx.transfers, tx.positions = nil, nil, nil
	tx.entries, tx.currencyTxs = nil, nil
	// release in reverse acquisition order
	for _, key := range slices.Backward(tx.posOrder) {
		tx.store.posLocks.release(key)
	}
	for _, id := range slices.Backward(tx.heldOrder) {
		tx.store.locks.release(id)
	}
	tx.held, tx.heldOrder = nil, nil
	tx.heldPos, tx.posOrder = nil, nil
}
