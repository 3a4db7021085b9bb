package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

// Schema creates every table the ledger needs. Amounts are NUMERIC and cross
// the wire as text so no precision is lost on either side.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    account_number  TEXT NOT NULL,
    iban            TEXT UNIQUE,
    currency        TEXT NOT NULL,
    balance         NUMERIC(20, 2) NOT NULL DEFAULT 0,
    overdraft_limit NUMERIC(20, 2) NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS accounts_owner_idx ON accounts (owner_id);

CREATE TABLE IF NOT EXISTS transfers (
    id              TEXT PRIMARY KEY,
    from_account_id TEXT NOT NULL REFERENCES accounts (id),
    to_account_id   TEXT NOT NULL REFERENCES accounts (id),
    to_iban         TEXT NOT NULL DEFAULT '',
    amount          NUMERIC(20, 2) NOT NULL,
    currency        TEXT NOT NULL,
    commission      NUMERIC(20, 2) NOT NULL DEFAULT 0,
    channel         TEXT NOT NULL,
    status          TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    reference_code  TEXT NOT NULL UNIQUE,
    reversal_of_id  TEXT REFERENCES transfers (id),
    reversed_by_id  TEXT,
    created_by      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    seq            BIGSERIAL PRIMARY KEY,
    id             TEXT NOT NULL UNIQUE,
    account_id     TEXT NOT NULL REFERENCES accounts (id),
    transfer_id    TEXT NOT NULL DEFAULT '',
    amount         NUMERIC(20, 2) NOT NULL,
    currency       TEXT NOT NULL,
    direction      TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    reference_code TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_account_idx ON ledger_entries (account_id, seq);

CREATE TABLE IF NOT EXISTS currency_positions (
    customer_id       TEXT NOT NULL,
    currency          TEXT NOT NULL,
    total_amount      NUMERIC(20, 2) NOT NULL,
    average_cost_rate NUMERIC(20, 6) NOT NULL,
    total_cost_try    NUMERIC(20, 2) NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (customer_id, currency)
);

CREATE TABLE IF NOT EXISTS currency_transactions (
    seq                  BIGSERIAL PRIMARY KEY,
    id                   TEXT NOT NULL UNIQUE,
    customer_id          TEXT NOT NULL,
    side                 TEXT NOT NULL,
    currency             TEXT NOT NULL,
    amount               NUMERIC(20, 2) NOT NULL,
    rate_used            NUMERIC(20, 6) NOT NULL,
    rate_date            TIMESTAMPTZ NOT NULL,
    try_amount           NUMERIC(20, 2) NOT NULL,
    commission           NUMERIC(20, 2) NOT NULL,
    source_account_id    TEXT NOT NULL,
    dest_account_id      TEXT NOT NULL,
    position_before      NUMERIC(20, 2) NOT NULL,
    position_after       NUMERIC(20, 2) NOT NULL,
    avg_cost_before      NUMERIC(20, 6) NOT NULL,
    avg_cost_after       NUMERIC(20, 6) NOT NULL,
    realized_pnl         NUMERIC(20, 2),
    realized_pnl_percent NUMERIC(20, 2),
    reference_code       TEXT NOT NULL,
    created_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS currency_transactions_customer_idx ON currency_transactions (customer_id, seq);

CREATE TABLE IF NOT EXISTS exchange_rates (
    seq            BIGSERIAL PRIMARY KEY,
    base_currency  TEXT NOT NULL,
    currency       TEXT NOT NULL,
    buy_rate       NUMERIC(20, 6) NOT NULL,
    sell_rate      NUMERIC(20, 6) NOT NULL,
    effective_date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS exchange_rates_lookup_idx ON exchange_rates (base_currency, currency, effective_date DESC);

CREATE TABLE IF NOT EXISTS commission_rules (
    id              TEXT PRIMARY KEY,
    type            TEXT NOT NULL,
    currency        TEXT NOT NULL,
    fixed_amount    NUMERIC(20, 2) NOT NULL DEFAULT 0,
    percentage_rate NUMERIC(20, 6) NOT NULL DEFAULT 0,
    min_amount      NUMERIC(20, 2) NOT NULL DEFAULT 0,
    max_amount      NUMERIC(20, 2),
    valid_from      TIMESTAMPTZ NOT NULL,
    valid_until     TIMESTAMPTZ,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE
);
`

const (
	accountColumns = `id, owner_id, account_number, COALESCE(iban, ''), currency,
        balance::text, overdraft_limit::text, status, created_at, updated_at`
	transferColumns = `id, from_account_id, to_account_id, to_iban, amount::text, currency,
        commission::text, channel, status, description, reference_code,
        reversal_of_id, reversed_by_id, created_by, created_at, updated_at`
	entryColumns = `id, account_id, transfer_id, amount::text, currency, direction,
        description, reference_code, created_at`
	positionColumns = `customer_id, currency, total_amount::text, average_cost_rate::text,
        total_cost_try::text, created_at, updated_at`
	currencyTxColumns = `id, customer_id, side, currency, amount::text, rate_used::text, rate_date,
        try_amount::text, commission::text, source_account_id, dest_account_id,
        position_before::text, position_after::text, avg_cost_before::text, avg_cost_after::text,
        realized_pnl::text, realized_pnl_percent::text, reference_code, created_at`
	rateColumns = `base_currency, currency, buy_rate::text, sell_rate::text, effective_date`
	ruleColumns = `id, type, currency, fixed_amount::text, percentage_rate::text, min_amount::text,
        max_amount::text, valid_from, valid_until, is_active`
)

// querier is the subset of pgxpool.Pool and pgx.Tx the read helpers need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresStore(pool), nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{
		tx:        tx,
		locked:    make(map[string]struct{}),
		lockedPos: make(map[positionKey]struct{}),
		inserted:  make(map[string]struct{}),
	}, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return getAccount(ctx, s.pool, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetAccountByIBAN(ctx context.Context, iban string) (domain.Account, error) {
	return getAccount(ctx, s.pool, `WHERE iban = $1`, iban)
}

func (s *PostgresStore) ListAccountsByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAccount)
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	return getTransfer(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListEntries(ctx context.Context, accountID string, limit, skip int) ([]domain.LedgerEntry, error) {
	if skip < 0 {
		skip = 0
	}
	rows, err := s.pool.Query(ctx, `
        SELECT `+entryColumns+`
        FROM ledger_entries
        WHERE account_id = $1
        ORDER BY seq
        LIMIT NULLIF($2::int, 0) OFFSET $3
    `, accountID, limit, skip)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEntry)
}

func (s *PostgresStore) ListPositions(ctx context.Context, customerID string) ([]domain.CurrencyPosition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionColumns+` FROM currency_positions WHERE customer_id = $1 ORDER BY currency`, customerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPosition)
}

// ListCurrencyTransactions returns the newest limit records, oldest first.
func (s *PostgresStore) ListCurrencyTransactions(ctx context.Context, customerID string, limit int) ([]domain.CurrencyTransaction, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+currencyTxColumns+`
        FROM (
            SELECT * FROM currency_transactions
            WHERE customer_id = $1
            ORDER BY seq DESC
            LIMIT NULLIF($2::int, 0)
        ) recent
        ORDER BY seq
    `, customerID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCurrencyTx)
}

func (s *PostgresStore) LatestRate(ctx context.Context, base, currency shared.Currency) (domain.ExchangeRate, error) {
	rate, err := scanRate(s.pool.QueryRow(ctx, `
        SELECT `+rateColumns+`
        FROM exchange_rates
        WHERE base_currency = $1 AND currency = $2
        ORDER BY effective_date DESC, seq DESC
        LIMIT 1
    `, base, currency))
	if err != nil {
		return domain.ExchangeRate{}, notFound(err, "rate %s/%s", base, currency)
	}
	return rate, nil
}

func (s *PostgresStore) LatestRates(ctx context.Context, base shared.Currency) ([]domain.ExchangeRate, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT ON (currency) `+rateColumns+`
        FROM exchange_rates
        WHERE base_currency = $1
        ORDER BY currency, effective_date DESC, seq DESC
    `, base)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRate)
}

func (s *PostgresStore) SaveRate(ctx context.Context, rate domain.ExchangeRate) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO exchange_rates (base_currency, currency, buy_rate, sell_rate, effective_date)
        VALUES ($1, $2, $3::numeric, $4::numeric, $5)
    `, rate.BaseCurrency, rate.Currency, rate.BuyRate.String(), rate.SellRate.String(), rate.EffectiveDate)
	return err
}

func (s *PostgresStore) ActiveRules(ctx context.Context, t domain.CommissionType) ([]domain.CommissionRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM commission_rules WHERE type = $1 AND is_active ORDER BY id`, t)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRule)
}

func (s *PostgresStore) SaveRule(ctx context.Context, rule domain.CommissionRule) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO commission_rules (id, type, currency, fixed_amount, percentage_rate, min_amount,
            max_amount, valid_from, valid_until, is_active)
        VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            type = EXCLUDED.type,
            currency = EXCLUDED.currency,
            fixed_amount = EXCLUDED.fixed_amount,
            percentage_rate = EXCLUDED.percentage_rate,
            min_amount = EXCLUDED.min_amount,
            max_amount = EXCLUDED.max_amount,
            valid_from = EXCLUDED.valid_from,
            valid_until = EXCLUDED.valid_until,
            is_active = EXCLUDED.is_active
    `, rule.ID, rule.Type, rule.Currency, rule.FixedAmount.String(), rule.PercentageRate.String(),
		rule.MinAmount.String(), optionalDecimal(rule.MaxAmount), rule.ValidFrom, rule.ValidUntil, rule.IsActive)
	return err
}

type pgTx struct {
	tx        pgx.Tx
	locked    map[string]struct{}
	lockedPos map[positionKey]struct{}
	inserted  map[string]struct{}
	done      bool
}

// LockAccounts takes row locks with SELECT ... FOR UPDATE. Rows are locked in
// id order within the statement, matching the order callers pass.
func (t *pgTx) LockAccounts(ctx context.Context, ids []string) error {
	if t.done {
		return ErrTxDone
	}
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := t.locked[id]; !ok {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	rows, err := t.tx.Query(ctx, `SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pending)
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		t.locked[id] = struct{}{}
	}
	return rows.Err()
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	if t.done {
		return domain.Account{}, ErrTxDone
	}
	return getAccount(ctx, t.tx, `WHERE id = $1`, id)
}

func (t *pgTx) GetAccountByIBAN(ctx context.Context, iban string) (domain.Account, error) {
	if t.done {
		return domain.Account{}, ErrTxDone
	}
	return getAccount(ctx, t.tx, `WHERE iban = $1`, iban)
}

func (t *pgTx) InsertAccount(ctx context.Context, a domain.Account) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO accounts (id, owner_id, account_number, iban, currency, balance, overdraft_limit,
            status, created_at, updated_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6::numeric, $7::numeric, $8, $9, $10)
    `, a.ID, a.OwnerID, a.AccountNumber, a.IBAN, a.Currency, a.Balance.Amount.String(),
		a.OverdraftLimit.String(), a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s", ErrDuplicate, a.ID)
		}
		return err
	}
	t.inserted[a.ID] = struct{}{}
	return nil
}

func (t *pgTx) SaveAccount(ctx context.Context, a domain.Account) error {
	if t.done {
		return ErrTxDone
	}
	_, held := t.locked[a.ID]
	_, fresh := t.inserted[a.ID]
	if !held && !fresh {
		return fmt.Errorf("%w: %s", ErrNotLocked, a.ID)
	}
	tag, err := t.tx.Exec(ctx, `
        UPDATE accounts
        SET balance = $2::numeric, overdraft_limit = $3::numeric, status = $4, updated_at = $5
        WHERE id = $1
    `, a.ID, a.Balance.Amount.String(), a.OverdraftLimit.String(), a.Status, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, a.ID)
	}
	return nil
}

func (t *pgTx) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	if t.done {
		return domain.Transfer{}, ErrTxDone
	}
	return getTransfer(ctx, t.tx, id, true)
}

func (t *pgTx) SaveTransfer(ctx context.Context, tr domain.Transfer) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO transfers (id, from_account_id, to_account_id, to_iban, amount, currency, commission,
            channel, status, description, reference_code, reversal_of_id, reversed_by_id, created_by,
            created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            reversed_by_id = EXCLUDED.reversed_by_id,
            updated_at = EXCLUDED.updated_at
    `, tr.ID, tr.FromAccountID, tr.ToAccountID, tr.ToIBAN, tr.Amount.Amount.String(), tr.Amount.Currency,
		tr.Commission.String(), tr.Channel, tr.Status, tr.Description, tr.ReferenceCode,
		tr.ReversalOfID, tr.ReversedByID, tr.CreatedBy, tr.CreatedAt, tr.UpdatedAt)
	return err
}

func (t *pgTx) AppendEntry(ctx context.Context, e domain.LedgerEntry) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO ledger_entries (id, account_id, transfer_id, amount, currency, direction,
            description, reference_code, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
    `, e.ID, e.AccountID, e.TransferID, e.Amount.Amount.String(), e.Amount.Currency, e.Direction,
		e.Description, e.ReferenceCode, e.CreatedAt)
	return err
}

// LockPosition inserts an empty row when none exists, then locks it: FOR UPDATE
// alone locks nothing on a missing row. The empty row is not open and goes
// away on rollback.
func (t *pgTx) LockPosition(ctx context.Context, customerID string, currency shared.Currency) error {
	if t.done {
		return ErrTxDone
	}
	if _, err := t.tx.Exec(ctx, `
        INSERT INTO currency_positions (customer_id, currency, total_amount, average_cost_rate,
            total_cost_try, created_at, updated_at)
        VALUES ($1, $2, 0, 0, 0, now(), now())
        ON CONFLICT (customer_id, currency) DO NOTHING
    `, customerID, currency); err != nil {
		return fmt.Errorf("failed to claim %s position of %s: %w", currency, customerID, err)
	}
	var held string
	if err := t.tx.QueryRow(ctx, `
        SELECT customer_id FROM currency_positions
        WHERE customer_id = $1 AND currency = $2
        FOR UPDATE
    `, customerID, currency).Scan(&held); err != nil {
		return fmt.Errorf("failed to lock %s position of %s: %w", currency, customerID, err)
	}
	t.lockedPos[positionKey{customerID: customerID, currency: currency}] = struct{}{}
	return nil
}

func (t *pgTx) GetPosition(ctx context.Context, customerID string, currency shared.Currency) (domain.CurrencyPosition, bool, error) {
	if t.done {
		return domain.CurrencyPosition{}, false, ErrTxDone
	}
	pos, err := scanPosition(t.tx.QueryRow(ctx, `
        SELECT `+positionColumns+`
        FROM currency_positions
        WHERE customer_id = $1 AND currency = $2
        FOR UPDATE
    `, customerID, currency))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CurrencyPosition{}, false, nil
	}
	if err != nil {
		return domain.CurrencyPosition{}, false, err
	}
	return pos, true, nil
}

func (t *pgTx) SavePosition(ctx context.Context, p domain.CurrencyPosition) error {
	if t.done {
		return ErrTxDone
	}
	if _, ok := t.lockedPos[positionKey{customerID: p.CustomerID, currency: p.Currency}]; !ok {
		return fmt.Errorf("%w: %s position of %s", ErrNotLocked, p.Currency, p.CustomerID)
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO currency_positions (customer_id, currency, total_amount, average_cost_rate,
            total_cost_try, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7)
        ON CONFLICT (customer_id, currency) DO UPDATE SET
            total_amount = EXCLUDED.total_amount,
            average_cost_rate = EXCLUDED.average_cost_rate,
            total_cost_try = EXCLUDED.total_cost_try,
            updated_at = EXCLUDED.updated_at
    `, p.CustomerID, p.Currency, p.TotalAmount.String(), p.AverageCostRate.String(),
		p.TotalCostTry.String(), p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *pgTx) AppendCurrencyTransaction(ctx context.Context, r domain.CurrencyTransaction) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO currency_transactions (id, customer_id, side, currency, amount, rate_used, rate_date,
            try_amount, commission, source_account_id, dest_account_id, position_before, position_after,
            avg_cost_before, avg_cost_after, realized_pnl, realized_pnl_percent, reference_code, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8::numeric, $9::numeric, $10, $11,
            $12::numeric, $13::numeric, $14::numeric, $15::numeric, $16::numeric, $17::numeric, $18, $19)
    `, r.ID, r.CustomerID, r.Side, r.Currency, r.Amount.String(), r.RateUsed.String(), r.RateDate,
		r.TryAmount.String(), r.Commission.String(), r.SourceAccountID, r.DestAccountID,
		r.PositionBefore.String(), r.PositionAfter.String(), r.AvgCostBefore.String(), r.AvgCostAfter.String(),
		optionalDecimal(r.RealizedPnl), optionalDecimal(r.RealizedPnlPercent), r.ReferenceCode, r.CreatedAt)
	return err
}

func (t *pgTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// --- Row helpers ---

func getAccount(ctx context.Context, q querier, where string, arg any) (domain.Account, error) {
	acc, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts `+where, arg))
	if err != nil {
		return domain.Account{}, notFound(err, "account %v", arg)
	}
	return acc, nil
}

func getTransfer(ctx context.Context, q querier, id string, forUpdate bool) (domain.Transfer, error) {
	sql := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	tr, err := scanTransfer(q.QueryRow(ctx, sql, id))
	if err != nil {
		return domain.Transfer{}, notFound(err, "transfer %s", id)
	}
	return tr, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a                  domain.Account
		balance, overdraft string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.IBAN, &a.Currency,
		&balance, &overdraft, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	amount, err := parseDecimal(balance)
	if err != nil {
		return domain.Account{}, err
	}
	if a.OverdraftLimit, err = parseDecimal(overdraft); err != nil {
		return domain.Account{}, err
	}
	a.Balance = domain.NewMoney(amount, a.Currency)
	return a, nil
}

func scanTransfer(row pgx.Row) (domain.Transfer, error) {
	var (
		t                  domain.Transfer
		amount, commission string
		currency           shared.Currency
	)
	err := row.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.ToIBAN, &amount, &currency,
		&commission, &t.Channel, &t.Status, &t.Description, &t.ReferenceCode,
		&t.ReversalOfID, &t.ReversedByID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Transfer{}, err
	}
	value, err := parseDecimal(amount)
	if err != nil {
		return domain.Transfer{}, err
	}
	if t.Commission, err = parseDecimal(commission); err != nil {
		return domain.Transfer{}, err
	}
	t.Amount = domain.NewMoney(value, currency)
	return t, nil
}

func scanEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var (
		e        domain.LedgerEntry
		amount   string
		currency shared.Currency
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.TransferID, &amount, &currency, &e.Direction,
		&e.Description, &e.ReferenceCode, &e.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	value, err := parseDecimal(amount)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Amount = domain.NewMoney(value, currency)
	return e, nil
}

func scanPosition(row pgx.Row) (domain.CurrencyPosition, error) {
	var (
		p                 domain.CurrencyPosition
		amount, avg, cost string
	)
	if err := row.Scan(&p.CustomerID, &p.Currency, &amount, &avg, &cost, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.CurrencyPosition{}, err
	}
	var err error
	if p.TotalAmount, err = parseDecimal(amount); err != nil {
		return domain.CurrencyPosition{}, err
	}
	if p.AverageCostRate, err = parseDecimal(avg); err != nil {
		return domain.CurrencyPosition{}, err
	}
	if p.TotalCostTry, err = parseDecimal(cost); err != nil {
		return domain.CurrencyPosition{}, err
	}
	return p, nil
}

func scanCurrencyTx(row pgx.Row) (domain.CurrencyTransaction, error) {
	var (
		r                                        domain.CurrencyTransaction
		amount, rate, tryAmount, commission      string
		posBefore, posAfter, avgBefore, avgAfter string
		pnl, pnlPercent                          *string
	)
	err := row.Scan(&r.ID, &r.CustomerID, &r.Side, &r.Currency, &amount, &rate, &r.RateDate,
		&tryAmount, &commission, &r.SourceAccountID, &r.DestAccountID,
		&posBefore, &posAfter, &avgBefore, &avgAfter, &pnl, &pnlPercent, &r.ReferenceCode, &r.CreatedAt)
	if err != nil {
		return domain.CurrencyTransaction{}, err
	}
	fields := []struct {
		src string
		dst *decimal.Decimal
	}{
		{amount, &r.Amount},
		{rate, &r.RateUsed},
		{tryAmount, &r.TryAmount},
		{commission, &r.Commission},
		{posBefore, &r.PositionBefore},
		{posAfter, &r.PositionAfter},
		{avgBefore, &r.AvgCostBefore},
		{avgAfter, &r.AvgCostAfter},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(f.src); err != nil {
			return domain.CurrencyTransaction{}, err
		}
	}
	if r.RealizedPnl, err = parseOptionalDecimal(pnl); err != nil {
		return domain.CurrencyTransaction{}, err
	}
	if r.RealizedPnlPercent, err = parseOptionalDecimal(pnlPercent); err != nil {
		return domain.CurrencyTransaction{}, err
	}
	return r, nil
}

func scanRate(row pgx.Row) (domain.ExchangeRate, error) {
	var (
		r         domain.ExchangeRate
		buy, sell string
	)
	if err := row.Scan(&r.BaseCurrency, &r.Currency, &buy, &sell, &r.EffectiveDate); err != nil {
		return domain.ExchangeRate{}, err
	}
	var err error
	if r.BuyRate, err = parseDecimal(buy); err != nil {
		return domain.ExchangeRate{}, err
	}
	if r.SellRate, err = parseDecimal(sell); err != nil {
		return domain.ExchangeRate{}, err
	}
	return r, nil
}

func scanRule(row pgx.Row) (domain.CommissionRule, error) {
	var (
		r                     domain.CommissionRule
		fixed, percent, minim string
		maxAmount             *string
		validUntil            *time.Time
	)
	err := row.Scan(&r.ID, &r.Type, &r.Currency, &fixed, &percent, &minim,
		&maxAmount, &r.ValidFrom, &validUntil, &r.IsActive)
	if err != nil {
		return domain.CommissionRule{}, err
	}
	if r.FixedAmount, err = parseDecimal(fixed); err != nil {
		return domain.CommissionRule{}, err
	}
	if r.PercentageRate, err = parseDecimal(percent); err != nil {
		return domain.CommissionRule{}, err
	}
	if r.MinAmount, err = parseDecimal(minim); err != nil {
		return domain.CommissionRule{}, err
	}
	if r.MaxAmount, err = parseOptionalDecimal(maxAmount); err != nil {
		return domain.CommissionRule{}, err
	}
	r.ValidUntil = validUntil
	return r, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric column %q: %w", s, err)
	}
	return d, nil
}

func parseOptionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseDecimal(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
