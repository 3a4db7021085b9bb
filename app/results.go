package app

import (
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

// TransferResult is returned on success so callers can render the outcome
// without a second read.
type TransferResult struct {
	Transfer    domain.Transfer      `json:"transfer"`
	Debit       domain.LedgerEntry   `json:"debit"`
	Credit      domain.LedgerEntry   `json:"credit"`
	FeeEntries  []domain.LedgerEntry `json:"feeEntries,omitempty"`
	FromBalance domain.Money         `json:"fromBalance"`
	ToBalance   domain.Money         `json:"toBalance"`
}

type ReversalResult struct {
	TransferResult
	Original domain.Transfer `json:"original"`
}

type ExchangeResult struct {
	Transaction    domain.CurrencyTransaction `json:"transaction"`
	Position       domain.CurrencyPosition    `json:"position"`
	Debit          domain.LedgerEntry         `json:"debit"`
	Credit         domain.LedgerEntry         `json:"credit"`
	TryBalance     domain.Money               `json:"tryBalance"`
	ForeignBalance domain.Money               `json:"foreignBalance"`
}

// Quote prices a buy or sell at the current rate without executing it.
type Quote struct {
	Side       domain.CurrencySide `json:"side"`
	Currency   shared.Currency     `json:"currency"`
	Amount     decimal.Decimal     `json:"amount"`
	Rate       decimal.Decimal     `json:"rate"`
	RateDate   time.Time           `json:"rateDate"`
	TryAmount  decimal.Decimal     `json:"tryAmount"`
	Commission decimal.Decimal     `json:"commission"`
	// Total is what the customer pays on a buy or receives on a sell.
	Total decimal.Decimal `json:"total"`
}

type PositionView struct {
	Position domain.CurrencyPosition `json:"position"`
	// Valuation is nil when no current rate is available; such positions are
	// left out of the portfolio totals.
	Valuation *domain.PositionValuation `json:"valuation,omitempty"`
}

type Portfolio struct {
	CustomerID            string            `json:"customerId"`
	Positions             []PositionView    `json:"positions"`
	TotalCostTry          decimal.Decimal   `json:"totalCostTry"`
	TotalCurrentValue     decimal.Decimal   `json:"totalCurrentValue"`
	TotalUnrealizedPnl    decimal.Decimal   `json:"totalUnrealizedPnl"`
	TotalUnrealizedPnlPct decimal.Decimal   `json:"totalUnrealizedPnlPercent"`
	UnpricedCurrencies    []shared.Currency `json:"unpricedCurrencies,omitempty"`
}
