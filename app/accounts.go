package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
	"banking-ledger/store"
)

const (
	systemPrefix   = "SYS-"
	cashPrefix     = systemPrefix + "CASH-"
	clearingPrefix = systemPrefix + "CLEARING-"
	bankCode       = "00062"
)

// SystemOverdraft lets the cash and clearing accounts run negative: a
// negative cash balance is money that entered the bank over the counter.
var SystemOverdraft = decimal.New(1, 15)

func CashAccountID(c shared.Currency) string     { return cashPrefix + string(c) }
func ClearingAccountID(c shared.Currency) string { return clearingPrefix + string(c) }

func IsSystemAccount(id string) bool {
	return strings.HasPrefix(id, systemPrefix)
}

type AccountService struct {
	store store.Store
	coord *Coordinator
}

// OpenAccount stands in for the external account-opening workflow: it
// creates an ACTIVE account with a zero balance.
func (s *AccountService) OpenAccount(ctx context.Context, cmd OpenAccountCommand) (domain.Account, error) {
	cmd.IBAN = normalizeIBAN(cmd.IBAN)
	if err := validateCommand(cmd); err != nil {
		return domain.Account{}, err
	}
	currency, err := parseCurrency(cmd.Currency)
	if err != nil {
		return domain.Account{}, err
	}
	id := cmd.AccountID
	if id == "" {
		id = uuid.NewString()
	}
	if IsSystemAccount(id) {
		return domain.Account{}, domain.NewDomainError(domain.CodeValidation, "account id %s is reserved", id)
	}
	number := accountNumber(id)
	iban := cmd.IBAN
	if iban == "" {
		iban = localIBAN(number)
	}
	acc, err := domain.NewAccount(id, cmd.OwnerID, number, iban, currency, cmd.OverdraftLimit)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.insert(ctx, acc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Account{}, domain.NewDomainError(domain.CodeValidation, "account %s or IBAN %s already exists", acc.ID, acc.IBAN)
		}
		return domain.Account{}, err
	}
	log.Printf("Account %s opened for owner %s (%s, IBAN %s)", acc.ID, acc.OwnerID, acc.Currency, acc.IBAN)
	return acc, nil
}

// EnsureSystemAccounts creates the cash and clearing account of every
// supported currency if they do not exist yet.
func (s *AccountService) EnsureSystemAccounts(ctx context.Context, ownerID string) error {
	for _, c := range shared.SupportedCurrencies {
		for _, id := range []string{CashAccountID(c), ClearingAccountID(c)} {
			_, err := s.store.GetAccount(ctx, id)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to check system account %s: %w", id, err)
			}
			acc, err := domain.NewAccount(id, ownerID, id, "", c, SystemOverdraft)
			if err != nil {
				return err
			}
			if err := s.insert(ctx, acc); err != nil && !errors.Is(err, store.ErrDuplicate) {
				return err
			}
			log.Printf("System account %s created", id)
		}
	}
	return nil
}

func (s *AccountService) insert(ctx context.Context, acc domain.Account) error {
	return s.coord.RunAtomic(ctx, nil, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return fmt.Errorf("failed to insert account %s: %w", acc.ID, err)
		}
		return nil
	})
}

func (s *AccountService) GetAccount(ctx context.Context, id, requestedBy string) (domain.Account, error) {
	acc, err := loadAccount(ctx, s.store, id)
	if err != nil {
		return domain.Account{}, err
	}
	if err := authorize(acc, requestedBy); err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	accounts, err := s.store.ListAccountsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of %s: %w", ownerID, err)
	}
	return accounts, nil
}

// AccountHistory pages through an account's statement, oldest entry first.
func (s *AccountService) AccountHistory(ctx context.Context, q HistoryQuery) ([]domain.LedgerEntry, error) {
	if err := validateCommand(q); err != nil {
		return nil, err
	}
	if _, err := s.GetAccount(ctx, q.AccountID, q.RequestedBy); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, q.AccountID, q.Limit, q.Skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for account %s: %w", q.AccountID, err)
	}
	return entries, nil
}

// accountNumber derives a stable 16-digit number from the account id.
func accountNumber(id string) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	return fmt.Sprintf("%016d", binary.BigEndian.Uint64(u[8:])%1e16)
}

func localIBAN(number string) string {
	return "TR00" + bankCode + "0" + number
}

// normalizeIBAN drops the grouping spaces IBANs are usually printed with and
// uppercases the rest.
func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}
