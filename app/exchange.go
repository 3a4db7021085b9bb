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

// ExchangeService buys and sells foreign currency against a customer's TRY
// account and keeps the customer's weighted-average cost position.
type ExchangeService struct {
	coord      *Coordinator
	recorder   *Recorder
	commission *Calculator
	rates      store.RateStore
	positions  store.Reader
	events     *publisher
	now        func() time.Time
}

func (s *ExchangeService) Buy(ctx context.Context, cmd BuyCurrencyCommand) (ExchangeResult, error) {
	if err := validateCommand(cmd); err != nil {
		return ExchangeResult{}, err
	}
	currency, err := foreignCurrency(cmd.Currency)
	if err != nil {
		return ExchangeResult{}, err
	}
	if err := checkMinimum(cmd.Amount, domain.MinBuyAmount, currency); err != nil {
		return ExchangeResult{}, err
	}

	var result ExchangeResult
	err = s.coord.RunAtomic(ctx, []string{cmd.FromTryAccountID, cmd.ToForeignAccountID}, func(ctx context.Context, tx store.Tx) error {
		tryAcc, err := s.customerAccount(ctx, tx, cmd.CustomerID, cmd.FromTryAccountID, shared.TRY)
		if err != nil {
			return err
		}
		foreignAcc, err := s.customerAccount(ctx, tx, cmd.CustomerID, cmd.ToForeignAccountID, currency)
		if err != nil {
			return err
		}

		rate, err := s.currentRate(ctx, currency)
		if err != nil {
			return err
		}
		tryAmount := cmd.Amount.Mul(rate.SellRate).Round(domain.AmountPlaces)
		commission, err := s.commission.Calculate(ctx, domain.CommissionCurrencyBuy, shared.TRY, tryAmount)
		if err != nil {
			return err
		}
		total := domain.NewMoney(tryAmount.Add(commission), shared.TRY)
		if !tryAcc.CanWithdraw(total) {
			return domain.NewDomainError(domain.CodeInsufficientBalance,
				"buying %s %s costs %s, available %s", cmd.Amount.String(), currency, total, tryAcc.Available())
		}

		bought := domain.NewMoney(cmd.Amount, currency)
		if err := tryAcc.Withdraw(total); err != nil {
			return err
		}
		if err := foreignAcc.Deposit(bought); err != nil {
			return err
		}

		now := s.now().UTC()
		position, err := s.loadPosition(ctx, tx, cmd.CustomerID, currency, now)
		if err != nil {
			return err
		}
		before := position
		if err := position.ApplyBuy(cmd.Amount, total.Amount, now); err != nil {
			return err
		}

		record := domain.CurrencyTransaction{
			ID:              uuid.NewString(),
			CustomerID:      cmd.CustomerID,
			Side:            domain.SideBuy,
			Currency:        currency,
			Amount:          cmd.Amount,
			RateUsed:        rate.SellRate,
			RateDate:        rate.EffectiveDate,
			TryAmount:       tryAmount,
			Commission:      commission,
			SourceAccountID: tryAcc.ID,
			DestAccountID:   foreignAcc.ID,
			PositionBefore:  before.TotalAmount,
			PositionAfter:   position.TotalAmount,
			AvgCostBefore:   before.AverageCostRate,
			AvgCostAfter:    position.AverageCostRate,
			ReferenceCode:   s.recorder.NextReference(),
			CreatedAt:       now,
		}
		description := fmt.Sprintf("Buy %s %s @ %s", cmd.Amount.String(), currency, rate.SellRate.String())
		debit, credit, err := s.settle(ctx, tx, record, tryAcc, foreignAcc, total, bought, position, description)
		if err != nil {
			return err
		}

		s.events.afterCommit(ctx, events.CurrencyBoughtEvent{
			BaseEvent:    events.NewBaseEvent(record.ID, events.CurrencyBoughtType),
			CustomerID:   record.CustomerID,
			Currency:     currency,
			Amount:       record.Amount,
			TryAmount:    record.TryAmount,
			Commission:   record.Commission,
			AvgCostAfter: record.AvgCostAfter,
		})
		result = ExchangeResult{
			Transaction:    record,
			Position:       position,
			Debit:          debit,
			Credit:         credit,
			TryBalance:     tryAcc.Balance,
			ForeignBalance: foreignAcc.Balance,
		}
		return nil
	})
	if err != nil {
		return ExchangeResult{}, err
	}
	log.Printf("Customer %s bought %s %s for %s TRY (commission %s), avg cost %s",
		cmd.CustomerID, cmd.Amount.String(), currency, result.Transaction.TryAmount.String(),
		result.Transaction.Commission.String(), result.Position.AverageCostRate.String())
	return result, nil
}

func (s *ExchangeService) Sell(ctx context.Context, cmd SellCurrencyCommand) (ExchangeResult, error) {
	if err := validateCommand(cmd); err != nil {
		return ExchangeResult{}, err
	}
	currency, err := foreignCurrency(cmd.Currency)
	if err != nil {
		return ExchangeResult{}, err
	}
	if err := checkMinimum(cmd.Amount, domain.MinSellAmount, currency); err != nil {
		return ExchangeResult{}, err
	}

	var result ExchangeResult
	err = s.coord.RunAtomic(ctx, []string{cmd.FromForeignAccountID, cmd.ToTryAccountID}, func(ctx context.Context, tx store.Tx) error {
		foreignAcc, err := s.customerAccount(ctx, tx, cmd.CustomerID, cmd.FromForeignAccountID, currency)
		if err != nil {
			return err
		}
		tryAcc, err := s.customerAccount(ctx, tx, cmd.CustomerID, cmd.ToTryAccountID, shared.TRY)
		if err != nil {
			return err
		}
		if foreignAcc.Balance.Amount.LessThan(cmd.Amount) {
			return domain.NewDomainError(domain.CodeInsufficientForeignBalance,
				"account %s holds %s, cannot sell %s %s", foreignAcc.ID, foreignAcc.Balance, cmd.Amount.String(), currency)
		}

		now := s.now().UTC()
		position, err := s.loadPosition(ctx, tx, cmd.CustomerID, currency, now)
		if err != nil {
			return err
		}
		if !position.IsOpen() {
			return domain.NewDomainError(domain.CodeNoPosition, "customer %s holds no %s position", cmd.CustomerID, currency)
		}
		if cmd.Amount.GreaterThan(position.TotalAmount) {
			return domain.NewDomainError(domain.CodePositionInsufficient,
				"position holds %s %s, cannot sell %s", position.TotalAmount.String(), currency, cmd.Amount.String())
		}

		rate, err := s.currentRate(ctx, currency)
		if err != nil {
			return err
		}
		tryAmount := cmd.Amount.Mul(rate.BuyRate).Round(domain.AmountPlaces)
		commission, err := s.commission.Calculate(ctx, domain.CommissionCurrencySell, shared.TRY, tryAmount)
		if err != nil {
			return err
		}
		net := tryAmount.Sub(commission)
		if !net.IsPositive() {
			return domain.NewDomainError(domain.CodeInvalidAmount,
				"commission %s consumes the whole proceeds of %s TRY", commission.String(), tryAmount.String())
		}

		before := position
		outcome, err := position.ApplySell(cmd.Amount, net, now)
		if err != nil {
			return err
		}

		sold := domain.NewMoney(cmd.Amount, currency)
		proceeds := domain.NewMoney(net, shared.TRY)
		if err := foreignAcc.Withdraw(sold); err != nil {
			return err
		}
		if err := tryAcc.Deposit(proceeds); err != nil {
			return err
		}

		record := domain.CurrencyTransaction{
			ID:                 uuid.NewString(),
			CustomerID:         cmd.CustomerID,
			Side:               domain.SideSell,
			Currency:           currency,
			Amount:             cmd.Amount,
			RateUsed:           rate.BuyRate,
			RateDate:           rate.EffectiveDate,
			TryAmount:          tryAmount,
			Commission:         commission,
			SourceAccountID:    foreignAcc.ID,
			DestAccountID:      tryAcc.ID,
			PositionBefore:     before.TotalAmount,
			PositionAfter:      position.TotalAmount,
			AvgCostBefore:      before.AverageCostRate,
			AvgCostAfter:       position.AverageCostRate,
			RealizedPnl:        &outcome.RealizedPnl,
			RealizedPnlPercent: &outcome.RealizedPnlPercent,
			ReferenceCode:      s.recorder.NextReference(),
			CreatedAt:          now,
		}
		description := fmt.Sprintf("Sell %s %s @ %s", cmd.Amount.String(), currency, rate.BuyRate.String())
		debit, credit, err := s.settle(ctx, tx, record, foreignAcc, tryAcc, sold, proceeds, position, description)
		if err != nil {
			return err
		}

		s.events.afterCommit(ctx, events.CurrencySoldEvent{
			BaseEvent:   events.NewBaseEvent(record.ID, events.CurrencySoldType),
			CustomerID:  record.CustomerID,
			Currency:    currency,
			Amount:      record.Amount,
			TryAmount:   record.TryAmount,
			Commission:  record.Commission,
			RealizedPnl: outcome.RealizedPnl,
		})
		result = ExchangeResult{
			Transaction:    record,
			Position:       position,
			Debit:          debit,
			Credit:         credit,
			TryBalance:     tryAcc.Balance,
			ForeignBalance: foreignAcc.Balance,
		}
		return nil
	})
	if err != nil {
		return ExchangeResult{}, err
	}
	log.Printf("Customer %s sold %s %s for %s TRY, realized P&L %s",
		cmd.CustomerID, cmd.Amount.String(), currency, result.Transaction.TryAmount.String(), result.Transaction.RealizedPnl.String())
	return result, nil
}

// settle writes everything a buy or sell produces: the debit and credit
// entries, both accounts, the position and the transaction record.
func (s *ExchangeService) settle(ctx context.Context, tx store.Tx, record domain.CurrencyTransaction,
	debitAcc, creditAcc domain.Account, debited, credited domain.Money, position domain.CurrencyPosition, description string,
) (domain.LedgerEntry, domain.LedgerEntry, error) {
	debit, err := s.recorder.Record(ctx, Posting{AccountID: debitAcc.ID, Money: debited, Direction: domain.Debit, Description: description})
	if err != nil {
		return domain.LedgerEntry{}, domain.LedgerEntry{}, err
	}
	credit, err := s.recorder.Record(ctx, Posting{AccountID: creditAcc.ID, Money: credited, Direction: domain.Credit, Description: description})
	if err != nil {
		return domain.LedgerEntry{}, domain.LedgerEntry{}, err
	}
	for _, acc := range []domain.Account{debitAcc, creditAcc} {
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return domain.LedgerEntry{}, domain.LedgerEntry{}, fmt.Errorf("failed to save account %s: %w", acc.ID, err)
		}
	}
	if err := tx.SavePosition(ctx, position); err != nil {
		return domain.LedgerEntry{}, domain.LedgerEntry{}, fmt.Errorf("failed to save %s position of %s: %w", position.Currency, position.CustomerID, err)
	}
	if err := tx.AppendCurrencyTransaction(ctx, record); err != nil {
		return domain.LedgerEntry{}, domain.LedgerEntry{}, fmt.Errorf("failed to record currency transaction %s: %w", record.ID, err)
	}
	return debit, credit, nil
}

// GetPositions marks every open position to market at the current buy
// rate. Positions without a rate are listed but left out of the totals.
func (s *ExchangeService) GetPositions(ctx context.Context, customerID string) (Portfolio, error) {
	positions, err := s.positions.ListPositions(ctx, customerID)
	if err != nil {
		return Portfolio{}, fmt.Errorf("failed to load positions of %s: %w", customerID, err)
	}
	rates, err := s.rates.LatestRates(ctx, shared.TRY)
	if err != nil {
		return Portfolio{}, fmt.Errorf("failed to load current rates: %w", err)
	}
	byCurrency := make(map[shared.Currency]domain.ExchangeRate, len(rates))
	for _, r := range rates {
		byCurrency[r.Currency] = r
	}

	portfolio := Portfolio{
		CustomerID:            customerID,
		Positions:             make([]PositionView, 0, len(positions)),
		TotalCostTry:          decimal.Zero,
		TotalCurrentValue:     decimal.Zero,
		TotalUnrealizedPnl:    decimal.Zero,
		TotalUnrealizedPnlPct: decimal.Zero,
	}
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		view := PositionView{Position: p}
		rate, ok := byCurrency[p.Currency]
		if !ok {
			portfolio.UnpricedCurrencies = append(portfolio.UnpricedCurrencies, p.Currency)
			portfolio.Positions = append(portfolio.Positions, view)
			continue
		}
		valuation := p.Value(rate.BuyRate)
		view.Valuation = &valuation
		portfolio.Positions = append(portfolio.Positions, view)

		portfolio.TotalCostTry = portfolio.TotalCostTry.Add(p.TotalCostTry)
		portfolio.TotalCurrentValue = portfolio.TotalCurrentValue.Add(valuation.CurrentValue)
		portfolio.TotalUnrealizedPnl = portfolio.TotalUnrealizedPnl.Add(valuation.UnrealizedPnl)
	}
	if portfolio.TotalCostTry.IsPositive() {
		portfolio.TotalUnrealizedPnlPct = portfolio.TotalUnrealizedPnl.
			Div(portfolio.TotalCostTry).Mul(decimal.NewFromInt(100)).Round(domain.AmountPlaces)
	}
	return portfolio, nil
}

// QuoteBuy prices a purchase at the current rate without executing it.
func (s *ExchangeService) QuoteBuy(ctx context.Context, currency shared.Currency, amount decimal.Decimal) (Quote, error) {
	return s.quote(ctx, domain.SideBuy, currency, amount)
}

// QuoteSell prices a sale at the current rate without executing it.
func (s *ExchangeService) QuoteSell(ctx context.Context, currency shared.Currency, amount decimal.Decimal) (Quote, error) {
	return s.quote(ctx, domain.SideSell, currency, amount)
}

func (s *ExchangeService) quote(ctx context.Context, side domain.CurrencySide, c shared.Currency, amount decimal.Decimal) (Quote, error) {
	currency, err := foreignCurrency(c)
	if err != nil {
		return Quote{}, err
	}
	minimum, rateOf, commissionType := domain.MinBuyAmount, func(r domain.ExchangeRate) decimal.Decimal { return r.SellRate }, domain.CommissionCurrencyBuy
	if side == domain.SideSell {
		minimum, rateOf, commissionType = domain.MinSellAmount, func(r domain.ExchangeRate) decimal.Decimal { return r.BuyRate }, domain.CommissionCurrencySell
	}
	if err := checkMinimum(amount, minimum, currency); err != nil {
		return Quote{}, err
	}
	rate, err := s.currentRate(ctx, currency)
	if err != nil {
		return Quote{}, err
	}
	applied := rateOf(rate)
	tryAmount := amount.Mul(applied).Round(domain.AmountPlaces)
	commission, err := s.commission.Calculate(ctx, commissionType, shared.TRY, tryAmount)
	if err != nil {
		return Quote{}, err
	}
	total := tryAmount.Add(commission)
	if side == domain.SideSell {
		total = tryAmount.Sub(commission)
	}
	return Quote{
		Side:       side,
		Currency:   currency,
		Amount:     amount,
		Rate:       applied,
		RateDate:   rate.EffectiveDate,
		TryAmount:  tryAmount,
		Commission: commission,
		Total:      total,
	}, nil
}

// CurrencyHistory returns the customer's most recent buys and sells, oldest
// first.
func (s *ExchangeService) CurrencyHistory(ctx context.Context, customerID string, limit int) ([]domain.CurrencyTransaction, error) {
	if limit < 0 {
		return nil, domain.NewDomainError(domain.CodeValidation, "limit cannot be negative: %d", limit)
	}
	history, err := s.positions.ListCurrencyTransactions(ctx, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load currency history of %s: %w", customerID, err)
	}
	return history, nil
}

func (s *ExchangeService) SetRate(ctx context.Context, cmd SetRateCommand) (domain.ExchangeRate, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.ExchangeRate{}, err
	}
	currency, err := foreignCurrency(cmd.Currency)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	rate := domain.ExchangeRate{
		BaseCurrency:  shared.TRY,
		Currency:      currency,
		BuyRate:       cmd.BuyRate.Round(domain.RatePlaces),
		SellRate:      cmd.SellRate.Round(domain.RatePlaces),
		EffectiveDate: cmd.EffectiveDate.UTC(),
	}
	if rate.EffectiveDate.IsZero() {
		rate.EffectiveDate = s.now().UTC()
	}
	if err := rate.Validate(); err != nil {
		return domain.ExchangeRate{}, err
	}
	if err := s.rates.SaveRate(ctx, rate); err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("failed to save %s rate: %w", currency, err)
	}
	return rate, nil
}

func (s *ExchangeService) ListRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	rates, err := s.rates.LatestRates(ctx, shared.TRY)
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}
	return rates, nil
}

// customerAccount loads an account under lock and checks that it belongs
// to the customer, is active and holds the expected currency.
func (s *ExchangeService) customerAccount(ctx context.Context, tx store.Tx, customerID, id string, currency shared.Currency) (domain.Account, error) {
	acc, err := loadAccount(ctx, tx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if acc.OwnerID != customerID {
		return domain.Account{}, domain.NewDomainError(domain.CodeUnauthorized, "account %s does not belong to customer %s", id, customerID)
	}
	if err := acc.RequireActive(); err != nil {
		return domain.Account{}, err
	}
	if err := requireCurrency(acc, currency); err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

// loadPosition locks the position before reading it, so concurrent trades of
// one customer in one currency apply in sequence even across different
// account pairs. Callers hold their account locks already.
func (s *ExchangeService) loadPosition(ctx context.Context, tx store.Tx, customerID string, currency shared.Currency, now time.Time) (domain.CurrencyPosition, error) {
	if err := tx.LockPosition(ctx, customerID, currency); err != nil {
		return domain.CurrencyPosition{}, fmt.Errorf("failed to acquire position lock: %w", err)
	}
	position, found, err := tx.GetPosition(ctx, customerID, currency)
	if err != nil {
		return domain.CurrencyPosition{}, fmt.Errorf("failed to load %s position of %s: %w", currency, customerID, err)
	}
	if !found {
		return domain.NewCurrencyPosition(customerID, currency, now), nil
	}
	return position, nil
}

func (s *ExchangeService) currentRate(ctx context.Context, currency shared.Currency) (domain.ExchangeRate, error) {
	rate, err := s.rates.LatestRate(ctx, shared.TRY, currency)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ExchangeRate{}, domain.NewDomainError(domain.CodeRateNotFound, "no TRY/%s rate available", currency)
		}
		return domain.ExchangeRate{}, fmt.Errorf("failed to load TRY/%s rate: %w", currency, err)
	}
	if err := rate.CheckFresh(s.now()); err != nil {
		return domain.ExchangeRate{}, err
	}
	return rate, nil
}

func foreignCurrency(c shared.Currency) (shared.Currency, error) {
	currency, err := parseCurrency(c)
	if err != nil {
		return "", err
	}
	if !currency.IsForeign() {
		return "", domain.NewDomainError(domain.CodeInvalidCurrency, "%s cannot be bought or sold against itself", currency)
	}
	return currency, nil
}

func checkMinimum(amount, minimum decimal.Decimal, currency shared.Currency) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.LessThan(minimum) {
		return domain.NewDomainError(domain.CodeMinAmount, "minimum is %s %s, got %s", minimum.String(), currency, amount.String())
	}
	return nil
}
