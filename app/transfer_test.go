package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banking-ledger/app"
	"banking-ledger/domain"
	"banking-ledger/events"
	"banking-ledger/shared"
	"banking-ledger/store"
)

// faultyStore fails SaveAccount for one account id, after the first half of
// a transfer has already been applied inside the transaction.
type faultyStore struct {
	*store.InMemoryStore
	failSaveOf string
}

func (s *faultyStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.InMemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return faultyTx{Tx: tx, failSaveOf: s.failSaveOf}, nil
}

type faultyTx struct {
	store.Tx
	failSaveOf string
}

func (tx faultyTx) SaveAccount(ctx context.Context, acc domain.Account) error {
	if acc.ID == tx.failSaveOf {
		return errors.New("disk full")
	}
	return tx.Tx.SaveAccount(ctx, acc)
}

func countEvents(pub *events.MemoryPublisher, typ events.EventType) int {
	n := 0
	for _, p := range pub.Events() {
		if p.Event.GetBase().Type == typ {
			n++
		}
	}
	return n
}

func entrySum(t *testing.T, s *store.InMemoryStore, accountID string) decimal.Decimal {
	t.Helper()
	entries, err := s.ListEntries(context.Background(), accountID, 0, 0)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Signed().Amount)
	}
	return sum
}

func TestTransferInternal(t *testing.T) {
	ctx := context.Background()

	t.Run("OverdraftCoversShortfall", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "50", "100")
		f.open(t, "b", "bob", shared.TRY, "0", "0")

		res, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: "a", ToAccountID: "b", Amount: dec("100"), Currency: shared.TRY, RequestedBy: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TransferCompleted, res.Transfer.Status)
		assert.Equal(t, domain.ChannelInternal, res.Transfer.Channel)
		assert.True(t, res.FromBalance.Amount.Equal(dec("-50")))
		assert.True(t, res.ToBalance.Amount.Equal(dec("100")))
		assert.True(t, f.balance(t, "a").Equal(dec("-50")))
		assert.True(t, f.balance(t, "b").Equal(dec("100")))

		stored, err := f.svc.Transfers.GetTransfer(ctx, res.Transfer.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Transfer.ReferenceCode, stored.ReferenceCode)
	})

	t.Run("BeyondOverdraftLeavesBalancesUntouched", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "50", "100")
		f.open(t, "b", "bob", shared.TRY, "0", "0")
		published := len(f.events.Events())

		_, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: "a", ToAccountID: "b", Amount: dec("200"), Currency: shared.TRY,
		})
		assertCode(t, err, domain.CodeInsufficientFunds)
		assert.True(t, f.balance(t, "a").Equal(dec("50")))
		assert.True(t, f.balance(t, "b").IsZero())
		assert.Len(t, f.events.Events(), published)

		entries, err := f.store.ListEntries(ctx, "b", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("EntriesNetToZero", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "500", "0")
		f.open(t, "b", "bob", shared.TRY, "0", "0")

		res, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: "a", ToAccountID: "b", Amount: dec("123.45"), Currency: shared.TRY,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.Debit, res.Debit.Direction)
		assert.Equal(t, domain.Credit, res.Credit.Direction)
		assert.Equal(t, res.Transfer.ID, res.Debit.TransferID)
		assert.Equal(t, res.Transfer.ID, res.Credit.TransferID)
		assert.True(t, res.Debit.Signed().Amount.Add(res.Credit.Signed().Amount).IsZero())
		assert.NotEqual(t, res.Debit.ReferenceCode, res.Credit.ReferenceCode)

		for _, id := range []string{"a", "b"} {
			assert.True(t, entrySum(t, f.store, id).Equal(f.balance(t, id)), "entries of %s do not add up to the balance", id)
		}
		total := entrySum(t, f.store, "a").Add(entrySum(t, f.store, "b")).Add(entrySum(t, f.store, app.CashAccountID(shared.TRY)))
		assert.True(t, total.IsZero())
	})

	t.Run("Rejections", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		f.open(t, "b", "bob", shared.TRY, "0", "0")
		f.open(t, "usd", "bob", shared.USD, "0", "0")

		cases := []struct {
			name string
			cmd  app.InternalTransferCommand
			code domain.ErrorCode
		}{
			{"SameAccount", app.InternalTransferCommand{FromAccountID: "a", ToAccountID: "a", Amount: dec("1"), Currency: shared.TRY}, domain.CodeSameAccountTransfer},
			{"ZeroAmount", app.InternalTransferCommand{FromAccountID: "a", ToAccountID: "b", Amount: decimal.Zero, Currency: shared.TRY}, domain.CodeInvalidAmount},
			{"TooPrecise", app.InternalTransferCommand{FromAccountID: "a", ToAccountID: "b", Amount: dec("1.005"), Currency: shared.TRY}, domain.CodeInvalidAmount},
			{"CurrencyMismatch", app.InternalTransferCommand{FromAccountID: "a", ToAccountID: "usd", Amount: dec("1"), Currency: shared.TRY}, domain.CodeCurrencyMismatch},
			{"UnknownAccount", app.InternalTransferCommand{FromAccountID: "a", ToAccountID: "ghost", Amount: dec("1"), Currency: shared.TRY}, domain.CodeNotFound},
			{"NotOwner", app.InternalTransferCommand{FromAccountID: "a", ToAccountID: "b", Amount: dec("1"), Currency: shared.TRY, RequestedBy: "bob"}, domain.CodeUnauthorized},
			{"MissingSource", app.InternalTransferCommand{ToAccountID: "b", Amount: dec("1"), Currency: shared.TRY}, domain.CodeValidation},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.svc.Transfers.TransferInternal(ctx, tc.cmd)
				assertCode(t, err, tc.code)
			})
		}
		assert.True(t, f.balance(t, "a").Equal(dec("100")))
	})

	t.Run("FailedWriteRollsBackBothSides", func(t *testing.T) {
		var faulty *faultyStore
		f := setupWith(t, func(mem *store.InMemoryStore) store.Store {
			faulty = &faultyStore{InMemoryStore: mem}
			return faulty
		})
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		f.open(t, "b", "bob", shared.TRY, "0", "0")
		before, err := f.store.ListEntries(ctx, "a", 0, 0)
		require.NoError(t, err)

		faulty.failSaveOf = "b"
		_, err = f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: "a", ToAccountID: "b", Amount: dec("40"), Currency: shared.TRY,
		})
		assertCode(t, err, domain.CodeInfrastructure)

		assert.True(t, f.balance(t, "a").Equal(dec("100")))
		assert.True(t, f.balance(t, "b").IsZero())
		after, err := f.store.ListEntries(ctx, "a", 0, 0)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
		assert.Equal(t, 2, countEvents(f.events, events.TransferCompletedType), "only the two funding deposits")
	})

	t.Run("ConcurrentOppositeDirections", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "1000", "0")
		f.open(t, "b", "bob", shared.TRY, "1000", "0")

		const n = 50
		var wg sync.WaitGroup
		errs := make(chan error, 2*n)
		for i := 0; i < n; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
					FromAccountID: "a", ToAccountID: "b", Amount: dec("10"), Currency: shared.TRY,
				})
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
					FromAccountID: "b", ToAccountID: "a", Amount: dec("10"), Currency: shared.TRY,
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.True(t, f.balance(t, "a").Equal(dec("1000")))
		assert.True(t, f.balance(t, "b").Equal(dec("1000")))
		assert.True(t, entrySum(t, f.store, "a").Equal(dec("1000")))
		assert.True(t, entrySum(t, f.store, "b").Equal(dec("1000")))
	})
}

func TestTransferExternal(t *testing.T) {
	ctx := context.Background()

	t.Run("LocalIBANSettlesOnUs", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		b := f.open(t, "b", "bob", shared.TRY, "0", "0")
		_, err := f.svc.Commissions.AddRule(ctx, app.AddCommissionRuleCommand{
			Type: domain.CommissionTransferExternal, Currency: shared.TRY, FixedAmount: dec("5"),
		})
		require.NoError(t, err)

		res, err := f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: b.IBAN, Amount: dec("60"), Currency: shared.TRY, RequestedBy: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ChannelInternal, res.Transfer.Channel)
		assert.Equal(t, "b", res.Transfer.ToAccountID)
		assert.Equal(t, b.IBAN, res.Transfer.ToIBAN)
		assert.True(t, res.Transfer.Commission.IsZero())
		assert.Empty(t, res.FeeEntries)
		assert.True(t, f.balance(t, "a").Equal(dec("40")))
		assert.True(t, f.balance(t, "b").Equal(dec("60")))
	})

	t.Run("LocalIBANMatchedRegardlessOfCaseAndSpacing", func(t *testing.T) {
		f := setup(t)
		a := f.open(t, "a", "alice", shared.TRY, "100", "0")
		b := f.open(t, "b", "bob", shared.TRY, "0", "0")
		_, err := f.svc.Commissions.AddRule(ctx, app.AddCommissionRuleCommand{
			Type: domain.CommissionTransferExternal, Currency: shared.TRY, FixedAmount: dec("5"),
		})
		require.NoError(t, err)

		typed := strings.ToLower(b.IBAN[:4]) + " " + strings.ToLower(b.IBAN[4:])
		res, err := f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: typed, Amount: dec("60"), Currency: shared.TRY, RequestedBy: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ChannelInternal, res.Transfer.Channel)
		assert.Equal(t, "b", res.Transfer.ToAccountID)
		assert.Equal(t, b.IBAN, res.Transfer.ToIBAN)
		assert.True(t, res.Transfer.Commission.IsZero())
		assert.True(t, f.balance(t, "b").Equal(dec("60")))
		assert.True(t, f.balance(t, app.ClearingAccountID(shared.TRY)).IsZero())

		_, err = f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: strings.ToLower(a.IBAN), Amount: dec("10"), Currency: shared.TRY,
		})
		assertCode(t, err, domain.CodeSameAccountTransfer)
	})

	t.Run("ForeignIBANGoesToClearingWithFee", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "1000", "0")
		_, err := f.svc.Commissions.AddRule(ctx, app.AddCommissionRuleCommand{
			Type: domain.CommissionTransferExternal, Currency: shared.TRY, FixedAmount: dec("5"),
		})
		require.NoError(t, err)

		res, err := f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: "TR330006100519786457841326", Amount: dec("100"), Currency: shared.TRY,
		})
		require.NoError(t, err)
		clearing := app.ClearingAccountID(shared.TRY)
		assert.Equal(t, domain.ChannelExternal, res.Transfer.Channel)
		assert.Equal(t, clearing, res.Transfer.ToAccountID)
		assert.True(t, res.Transfer.Commission.Equal(dec("5")))
		require.Len(t, res.FeeEntries, 2)
		assert.True(t, res.FeeEntries[0].Signed().Amount.Add(res.FeeEntries[1].Signed().Amount).IsZero())
		assert.True(t, f.balance(t, "a").Equal(dec("895")))
		assert.True(t, f.balance(t, clearing).Equal(dec("105")))
		assert.True(t, entrySum(t, f.store, "a").Equal(dec("895")))
	})

	t.Run("FeeCountsTowardsFunds", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		_, err := f.svc.Commissions.AddRule(ctx, app.AddCommissionRuleCommand{
			Type: domain.CommissionTransferExternal, Currency: shared.TRY, FixedAmount: dec("5"),
		})
		require.NoError(t, err)

		_, err = f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: "TR330006100519786457841326", Amount: dec("100"), Currency: shared.TRY,
		})
		assertCode(t, err, domain.CodeInsufficientFunds)
		assert.True(t, f.balance(t, "a").Equal(dec("100")))
	})

	t.Run("OwnIBAN", func(t *testing.T) {
		f := setup(t)
		a := f.open(t, "a", "alice", shared.TRY, "100", "0")
		_, err := f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: a.IBAN, Amount: dec("10"), Currency: shared.TRY,
		})
		assertCode(t, err, domain.CodeSameAccountTransfer)
	})

	t.Run("MalformedIBAN", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		_, err := f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: "TR-12", Amount: dec("10"), Currency: shared.TRY,
		})
		assertCode(t, err, domain.CodeValidation)
	})
}

func TestCashOperations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.open(t, "a", "alice", shared.EUR, "0", "0")
	cash := app.CashAccountID(shared.EUR)

	_, err := f.svc.Transfers.Deposit(ctx, app.CashCommand{AccountID: "a", Amount: dec("250"), Currency: shared.EUR, RequestedBy: "alice"})
	require.NoError(t, err)
	assert.True(t, f.balance(t, "a").Equal(dec("250")))
	assert.True(t, f.balance(t, cash).Equal(dec("-250")))

	res, err := f.svc.Transfers.Withdraw(ctx, app.CashCommand{AccountID: "a", Amount: dec("100"), Currency: shared.EUR})
	require.NoError(t, err)
	assert.Equal(t, cash, res.Transfer.ToAccountID)
	assert.True(t, f.balance(t, "a").Equal(dec("150")))
	assert.True(t, f.balance(t, cash).Equal(dec("-150")))

	_, err = f.svc.Transfers.Withdraw(ctx, app.CashCommand{AccountID: "a", Amount: dec("151"), Currency: shared.EUR})
	assertCode(t, err, domain.CodeInsufficientFunds)

	_, err = f.svc.Transfers.Deposit(ctx, app.CashCommand{AccountID: cash, Amount: dec("1"), Currency: shared.EUR})
	assertCode(t, err, domain.CodeInvalidOperation)

	_, err = f.svc.Transfers.Deposit(ctx, app.CashCommand{AccountID: "a", Amount: dec("1"), Currency: shared.USD})
	assertCode(t, err, domain.CodeCurrencyMismatch)

	_, err = f.svc.Transfers.Withdraw(ctx, app.CashCommand{AccountID: "a", Amount: dec("1"), Currency: shared.EUR, RequestedBy: "mallory"})
	assertCode(t, err, domain.CodeUnauthorized)
}

func TestReverse(t *testing.T) {
	ctx := context.Background()

	t.Run("RestoresBalancesOnce", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		f.open(t, "b", "bob", shared.TRY, "0", "0")
		original, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: "a", ToAccountID: "b", Amount: dec("70"), Currency: shared.TRY,
		})
		require.NoError(t, err)

		res, err := f.svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: original.Transfer.ID, Reason: "customer request"})
		require.NoError(t, err)
		require.NotNil(t, res.Transfer.ReversalOfID)
		assert.Equal(t, original.Transfer.ID, *res.Transfer.ReversalOfID)
		assert.Equal(t, "b", res.Transfer.FromAccountID)
		assert.Equal(t, "a", res.Transfer.ToAccountID)
		assert.Contains(t, res.Transfer.Description, original.Transfer.ReferenceCode)
		assert.Equal(t, domain.TransferReversed, res.Original.Status)

		assert.True(t, f.balance(t, "a").Equal(dec("100")))
		assert.True(t, f.balance(t, "b").IsZero())

		stored, err := f.svc.Transfers.GetTransfer(ctx, original.Transfer.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransferReversed, stored.Status)
		require.NotNil(t, stored.ReversedByID)
		assert.Equal(t, res.Transfer.ID, *stored.ReversedByID)

		_, err = f.svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: original.Transfer.ID})
		assertCode(t, err, domain.CodeInvalidOperation)
		_, err = f.svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: res.Transfer.ID})
		assertCode(t, err, domain.CodeInvalidOperation)

		assert.Equal(t, 1, countEvents(f.events, events.TransferReversedType))
		assert.True(t, f.balance(t, "a").Equal(dec("100")))
	})

	t.Run("ConcurrentReversalsProduceOne", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "100", "0")
		f.open(t, "b", "bob", shared.TRY, "0", "0")
		original, err := f.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: "a", ToAccountID: "b", Amount: dec("70"), Currency: shared.TRY,
		})
		require.NoError(t, err)

		const n = 10
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: original.Transfer.ID})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.Equal(t, domain.CodeInvalidOperation, domain.CodeOf(err))
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, countEvents(f.events, events.TransferReversedType))
		assert.True(t, f.balance(t, "a").Equal(dec("100")))
		assert.True(t, f.balance(t, "b").IsZero())
	})

	t.Run("ExternalFeeIsKept", func(t *testing.T) {
		f := setup(t)
		f.open(t, "a", "alice", shared.TRY, "1000", "0")
		_, err := f.svc.Commissions.AddRule(ctx, app.AddCommissionRuleCommand{
			Type: domain.CommissionTransferExternal, Currency: shared.TRY, FixedAmount: dec("5"),
		})
		require.NoError(t, err)
		original, err := f.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: "a", ToIBAN: "TR330006100519786457841326", Amount: dec("100"), Currency: shared.TRY,
		})
		require.NoError(t, err)

		res, err := f.svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: original.Transfer.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.ChannelExternal, res.Transfer.Channel)
		assert.True(t, f.balance(t, "a").Equal(dec("995")))
		assert.True(t, f.balance(t, app.ClearingAccountID(shared.TRY)).Equal(dec("5")))
	})

	t.Run("UnknownTransfer", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: "missing"})
		assertCode(t, err, domain.CodeNotFound)
	})
}
