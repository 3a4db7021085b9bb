package app

import (
	"context"
	"fmt"
	"log"
	"slices"

	"banking-ledger/store"
)

type unitOfWorkKey struct{}

type unitOfWork struct {
	tx     store.Tx
	locked map[string]struct{}
	hooks  []func(context.Context)
}

// Coordinator runs bodies of work atomically over a set of locked accounts.
type Coordinator struct {
	store store.Store
}

func NewCoordinator(s store.Store) *Coordinator {
	return &Coordinator{store: s}
}

// RunAtomic locks every account in accountIDs in ascending id order, runs
// body and commits. Any error or panic from body rolls the whole unit back.
//
// A call made from inside another RunAtomic joins the outer unit of work. It
// takes no locks of its own: every account it names must already be locked
// by the outer call, otherwise it fails with store.ErrNotLocked. The outer
// call therefore declares the full account set up front, which keeps all
// account locks in one global order.
func (c *Coordinator) RunAtomic(ctx context.Context, accountIDs []string, body func(ctx context.Context, tx store.Tx) error) error {
	ids := lockOrder(accountIDs)

	if uow, ok := ctx.Value(unitOfWorkKey{}).(*unitOfWork); ok {
		for _, id := range ids {
			if _, held := uow.locked[id]; !held {
				return fmt.Errorf("%w: account %s was not locked by the enclosing unit of work", store.ErrNotLocked, id)
			}
		}
		return body(ctx, uow.tx)
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open unit of work: %w", err)
	}
	uow := &unitOfWork{tx: tx, locked: make(map[string]struct{}, len(ids))}
	txCtx := context.WithValue(ctx, unitOfWorkKey{}, uow)

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Printf("ERROR: rollback failed: %v", rbErr)
		}
		if r := recover(); r != nil {
			log.Printf("CRITICAL: unit of work panicked, rolled back: %v", r)
			panic(r)
		}
	}()

	if err := tx.LockAccounts(txCtx, ids); err != nil {
		return fmt.Errorf("failed to acquire account locks: %w", err)
	}
	for _, id := range ids {
		uow.locked[id] = struct{}{}
	}
	if err := body(txCtx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unit of work: %w", err)
	}
	committed = true

	for _, hook := range uow.hooks {
		hook(ctx)
	}
	return nil
}

// AfterCommit defers fn until the unit of work active in ctx commits. Hooks
// are dropped on rollback. Outside any unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if uow, ok := ctx.Value(unitOfWorkKey{}).(*unitOfWork); ok {
		uow.hooks = append(uow.hooks, fn)
		return
	}
	fn(ctx)
}

func activeTx(ctx context.Context) (store.Tx, bool) {
	uow, ok := ctx.Value(unitOfWorkKey{}).(*unitOfWork)
	if !ok {
		return nil, false
	}
	return uow.tx, true
}

// lockOrder is the single global order in which account locks are taken.
func lockOrder(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
