package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"banking-ledger/domain"
	"banking-ledger/events"
	"banking-ledger/shared"
	"banking-ledger/store"
)

// Deps are the collaborators every ledger service is built from.
type Deps struct {
	Store       store.Store
	Rates       store.RateStore
	Rules       store.CommissionRuleStore
	Publisher   events.Publisher
	EventStream string
	Clock       func() time.Time
}

// Services groups the application layer. All services share one
// coordinator and one recorder so reference codes stay unique per process.
type Services struct {
	Accounts    *AccountService
	Transfers   *TransferService
	Exchange    *ExchangeService
	Commissions *Calculator
	Coordinator *Coordinator
	Recorder    *Recorder
}

func New(deps Deps) *Services {
	if deps.Store == nil || deps.Rates == nil || deps.Rules == nil {
		log.Fatal("FATAL: Store, RateStore and CommissionRuleStore must not be nil")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.LogPublisher{}
	}
	if deps.EventStream == "" {
		deps.EventStream = "ledger-events"
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	coord := NewCoordinator(deps.Store)
	rec := NewRecorder(deps.Clock)
	calc := NewCalculator(deps.Rules, deps.Clock)
	pub := &publisher{next: deps.Publisher, stream: deps.EventStream}

	return &Services{
		Accounts:    &AccountService{store: deps.Store, coord: coord},
		Transfers:   &TransferService{store: deps.Store, coord: coord, recorder: rec, commission: calc, events: pub, now: deps.Clock},
		Exchange:    &ExchangeService{coord: coord, recorder: rec, commission: calc, rates: deps.Rates, positions: deps.Store, events: pub, now: deps.Clock},
		Commissions: calc,
		Coordinator: coord,
		Recorder:    rec,
	}
}

// publisher defers events until the surrounding unit of work commits.
// Delivery failures are logged; the committed money movement stands.
type publisher struct {
	next   events.Publisher
	stream string
}

func (p *publisher) afterCommit(ctx context.Context, event events.Event) {
	AfterCommit(ctx, func(ctx context.Context) {
		if err := p.next.Publish(ctx, p.stream, event); err != nil {
			base := event.GetBase()
			log.Printf("ERROR: failed to publish %s for %s: %v", base.Type, base.AggregateID, err)
		}
	})
}

// --- Shared helpers ---

type accountGetter interface {
	GetAccount(ctx context.Context, id string) (domain.Account, error)
}

// loadAccount maps a missing row to a NotFound domain error; any other
// failure is an infrastructure fault.
func loadAccount(ctx context.Context, r accountGetter, id string) (domain.Account, error) {
	acc, err := r.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, domain.NewDomainError(domain.CodeNotFound, "account %s not found", id)
		}
		return domain.Account{}, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return acc, nil
}

func authorize(acc domain.Account, requestedBy string) error {
	if requestedBy != "" && acc.OwnerID != requestedBy {
		return domain.NewDomainError(domain.CodeUnauthorized, "account %s does not belong to %s", acc.ID, requestedBy)
	}
	return nil
}

func requireCurrency(acc domain.Account, currency shared.Currency) error {
	if acc.Currency != currency {
		return domain.NewDomainError(domain.CodeCurrencyMismatch, "account %s holds %s, expected %s", acc.ID, acc.Currency, currency)
	}
	return nil
}

func parseCurrency(c shared.Currency) (shared.Currency, error) {
	parsed, ok := shared.ParseCurrency(string(c))
	if !ok {
		return "", domain.NewDomainError(domain.CodeInvalidCurrency, "unsupported currency: %q", c)
	}
	return parsed, nil
}
