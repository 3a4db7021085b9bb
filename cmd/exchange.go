package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"banking-ledger/app"
	"banking-ledger/audit"
	"banking-ledger/domain"
	"banking-ledger/shared"
)

var (
	fxCustomer  string
	fxTryID     string
	fxForeignID string
	fxCurrency  string
	fxAmount    string
	fxSide      string
	fxLimit     int

	rateCurrency  string
	rateBuy       string
	rateSell      string
	rateEffective string

	ruleID         string
	ruleType       string
	ruleCurrency   string
	ruleFixed      string
	rulePercentage string
	ruleMin        string
	ruleMax        string
)

var fxCmd = &cobra.Command{
	Use:   "fx",
	Short: "Buy and sell foreign currency against TRY",
}

var fxBuyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Buy foreign currency with TRY at the bank's sell rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		amount, err := parseAmount("amount", fxAmount)
		if err != nil {
			return err
		}
		res, err := instance.svc.Exchange.Buy(ctx, app.BuyCurrencyCommand{
			CustomerID:         fxCustomer,
			FromTryAccountID:   fxTryID,
			ToForeignAccountID: fxForeignID,
			Currency:           shared.Currency(fxCurrency),
			Amount:             amount,
		})
		if err := record(ctx, audit.ActionBuyCurrency, audit.EntityCurrencyTx, res.Transaction.ID, err,
			map[string]any{"customer": fxCustomer, "currency": fxCurrency, "amount": fxAmount}); err != nil {
			return err
		}
		render(res, func() { printExchange(res) })
		return nil
	},
}

var fxSellCmd = &cobra.Command{
	Use:   "sell",
	Short: "Sell foreign currency for TRY at the bank's buy rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		amount, err := parseAmount("amount", fxAmount)
		if err != nil {
			return err
		}
		res, err := instance.svc.Exchange.Sell(ctx, app.SellCurrencyCommand{
			CustomerID:           fxCustomer,
			FromForeignAccountID: fxForeignID,
			ToTryAccountID:       fxTryID,
			Currency:             shared.Currency(fxCurrency),
			Amount:               amount,
		})
		if err := record(ctx, audit.ActionSellCurrency, audit.EntityCurrencyTx, res.Transaction.ID, err,
			map[string]any{"customer": fxCustomer, "currency": fxCurrency, "amount": fxAmount}); err != nil {
			return err
		}
		render(res, func() { printExchange(res) })
		return nil
	},
}

var fxQuoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a buy or sell without executing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount("amount", fxAmount)
		if err != nil {
			return err
		}
		var q app.Quote
		switch domain.CurrencySide(strings.ToUpper(fxSide)) {
		case domain.SideBuy:
			q, err = instance.svc.Exchange.QuoteBuy(cmd.Context(), shared.Currency(fxCurrency), amount)
		case domain.SideSell:
			q, err = instance.svc.Exchange.QuoteSell(cmd.Context(), shared.Currency(fxCurrency), amount)
		default:
			return domain.NewDomainError(domain.CodeValidation, "--side must be BUY or SELL, got %q", fxSide)
		}
		if err != nil {
			return err
		}
		render(q, func() {
			fmt.Printf("%s %s %s @ %s (rate of %s)\n", q.Side, q.Amount.String(), q.Currency, q.Rate.String(), q.RateDate.Format(time.DateOnly))
			fmt.Printf("  TRY amount: %s\n", q.TryAmount.StringFixed(2))
			fmt.Printf("  Commission: %s\n", q.Commission.StringFixed(2))
			fmt.Printf("  Total:      %s TRY\n", q.Total.StringFixed(2))
		})
		return nil
	},
}

var fxPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show a customer's currency positions marked to market",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := required("customer", fxCustomer); err != nil {
			return err
		}
		p, err := instance.svc.Exchange.GetPositions(cmd.Context(), fxCustomer)
		if err != nil {
			return err
		}
		render(p, func() {
			if len(p.Positions) == 0 {
				fmt.Printf("Customer '%s' holds no foreign currency.\n", fxCustomer)
				return
			}
			fmt.Printf("Positions of '%s':\n", fxCustomer)
			for _, v := range p.Positions {
				pos := v.Position
				fmt.Printf("  %s %14s  avg %s  cost %s TRY", pos.Currency, pos.TotalAmount.StringFixed(2),
					pos.AverageCostRate.StringFixed(6), pos.TotalCostTry.StringFixed(2))
				if v.Valuation == nil {
					fmt.Println("  (no current rate)")
					continue
				}
				fmt.Printf("  value %s  P&L %s (%s%%)\n", v.Valuation.CurrentValue.StringFixed(2),
					v.Valuation.UnrealizedPnl.StringFixed(2), v.Valuation.UnrealizedPnlPercent.StringFixed(2))
			}
			fmt.Printf("  Total cost %s, value %s, P&L %s (%s%%)\n", p.TotalCostTry.StringFixed(2),
				p.TotalCurrentValue.StringFixed(2), p.TotalUnrealizedPnl.StringFixed(2), p.TotalUnrealizedPnlPct.StringFixed(2))
		})
		return nil
	},
}

var fxHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a customer's most recent buys and sells",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := required("customer", fxCustomer); err != nil {
			return err
		}
		history, err := instance.svc.Exchange.CurrencyHistory(cmd.Context(), fxCustomer, fxLimit)
		if err != nil {
			return err
		}
		render(history, func() {
			for _, r := range history {
				line := fmt.Sprintf("  %s  %-4s %s %s @ %s  TRY %s  fee %s", r.CreatedAt.Format("2006-01-02 15:04:05"),
					r.Side, r.Amount.StringFixed(2), r.Currency, r.RateUsed.String(), r.TryAmount.StringFixed(2), r.Commission.StringFixed(2))
				if r.RealizedPnl != nil {
					line += "  P&L " + r.RealizedPnl.StringFixed(2)
				}
				fmt.Println(line)
			}
		})
		return nil
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Maintain exchange rates against TRY",
}

var rateSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Publish a new rate for a currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		buy, err := parseAmount("buy", rateBuy)
		if err != nil {
			return err
		}
		sell, err := parseAmount("sell", rateSell)
		if err != nil {
			return err
		}
		var effective time.Time
		if rateEffective != "" {
			if effective, err = time.Parse(time.DateOnly, rateEffective); err != nil {
				return domain.NewDomainError(domain.CodeValidation, "invalid --date %q, want YYYY-MM-DD", rateEffective)
			}
		}
		rate, err := instance.svc.Exchange.SetRate(ctx, app.SetRateCommand{
			Currency:      shared.Currency(rateCurrency),
			BuyRate:       buy,
			SellRate:      sell,
			EffectiveDate: effective,
		})
		if err := record(ctx, audit.ActionSetRate, audit.EntityExchangeRate, rateCurrency, err,
			map[string]any{"buy": rateBuy, "sell": rateSell, "date": rateEffective}); err != nil {
			return err
		}
		render(rate, func() {
			fmt.Printf("Rate TRY/%s set: buy %s sell %s, effective %s\n", rate.Currency, rate.BuyRate.String(),
				rate.SellRate.String(), rate.EffectiveDate.Format(time.DateOnly))
		})
		return nil
	},
}

var rateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the current rate of every currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		rates, err := instance.svc.Exchange.ListRates(cmd.Context())
		if err != nil {
			return err
		}
		render(rates, func() {
			if len(rates) == 0 {
				fmt.Println("No rates published.")
				return
			}
			for _, r := range rates {
				fmt.Printf("  %s  buy %-12s sell %-12s %s\n", r.Currency, r.BuyRate.String(), r.SellRate.String(), r.EffectiveDate.Format(time.DateOnly))
			}
		})
		return nil
	},
}

var commissionCmd = &cobra.Command{
	Use:   "commission",
	Short: "Maintain commission rules",
}

var commissionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an active commission rule",
	Long: `Adds a rule charging fixed + percentage x amount, clamped to [min, max].
--percentage is a fraction: 0.002 charges 0.2%. All rules that apply to an
operation are summed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fixed, err := optionalAmount("fixed", ruleFixed)
		if err != nil {
			return err
		}
		pct, err := optionalAmount("percentage", rulePercentage)
		if err != nil {
			return err
		}
		minimum, err := optionalAmount("min", ruleMin)
		if err != nil {
			return err
		}
		var maximum *decimal.Decimal
		if ruleMax != "" {
			d, err := parseAmount("max", ruleMax)
			if err != nil {
				return err
			}
			maximum = &d
		}
		rule, err := instance.svc.Commissions.AddRule(ctx, app.AddCommissionRuleCommand{
			ID:             ruleID,
			Type:           domain.CommissionType(ruleType),
			Currency:       shared.Currency(ruleCurrency),
			FixedAmount:    fixed,
			PercentageRate: pct,
			MinAmount:      minimum,
			MaxAmount:      maximum,
		})
		if err := record(ctx, audit.ActionAddCommission, audit.EntityCommissionRule, rule.ID, err,
			map[string]any{"type": ruleType, "currency": ruleCurrency, "fixed": ruleFixed, "percentage": rulePercentage}); err != nil {
			return err
		}
		render(rule, func() {
			fmt.Printf("Commission rule '%s' added: %s %s fixed %s + %s x amount\n", rule.ID, rule.Type, rule.Currency,
				rule.FixedAmount.String(), rule.PercentageRate.String())
		})
		return nil
	},
}

func optionalAmount(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseAmount(name, raw)
}

func printExchange(res app.ExchangeResult) {
	r := res.Transaction
	fmt.Printf("%s %s %s @ %s (%s)\n", r.Side, r.Amount.StringFixed(2), r.Currency, r.RateUsed.String(), r.ReferenceCode)
	fmt.Printf("  TRY amount: %s, commission %s\n", r.TryAmount.StringFixed(2), r.Commission.StringFixed(2))
	fmt.Printf("  Position:   %s -> %s, avg cost %s -> %s\n", r.PositionBefore.StringFixed(2), r.PositionAfter.StringFixed(2),
		r.AvgCostBefore.StringFixed(6), r.AvgCostAfter.StringFixed(6))
	if r.RealizedPnl != nil {
		fmt.Printf("  Realized:   %s TRY (%s%%)\n", r.RealizedPnl.StringFixed(2), r.RealizedPnlPercent.StringFixed(2))
	}
	fmt.Printf("  Balances:   %s TRY, %s %s\n", res.TryBalance.Amount.StringFixed(2), res.ForeignBalance.Amount.StringFixed(2), res.ForeignBalance.Currency)
}

func init() {
	rootCmd.AddCommand(fxCmd, rateCmd, commissionCmd)
	fxCmd.AddCommand(fxBuyCmd, fxSellCmd, fxQuoteCmd, fxPositionsCmd, fxHistoryCmd)
	rateCmd.AddCommand(rateSetCmd, rateListCmd)
	commissionCmd.AddCommand(commissionAddCmd)

	for _, c := range []*cobra.Command{fxBuyCmd, fxSellCmd} {
		c.Flags().StringVar(&fxCustomer, "customer", "", "customer owning both accounts (required)")
		c.Flags().StringVar(&fxTryID, "try-account", "", "TRY account id (required)")
		c.Flags().StringVar(&fxForeignID, "foreign-account", "", "foreign currency account id (required)")
		c.Flags().StringVar(&fxCurrency, "currency", "", "USD, EUR, GBP or CHF (required)")
		c.Flags().StringVar(&fxAmount, "amount", "", "foreign currency amount (required)")
	}
	fxQuoteCmd.Flags().StringVar(&fxSide, "side", string(domain.SideBuy), "BUY or SELL")
	fxQuoteCmd.Flags().StringVar(&fxCurrency, "currency", "", "USD, EUR, GBP or CHF (required)")
	fxQuoteCmd.Flags().StringVar(&fxAmount, "amount", "", "foreign currency amount (required)")
	fxPositionsCmd.Flags().StringVar(&fxCustomer, "customer", "", "customer id (required)")
	fxHistoryCmd.Flags().StringVar(&fxCustomer, "customer", "", "customer id (required)")
	fxHistoryCmd.Flags().IntVar(&fxLimit, "limit", 20, "most recent records to show (0 for all)")

	rateSetCmd.Flags().StringVar(&rateCurrency, "currency", "", "foreign currency (required)")
	rateSetCmd.Flags().StringVar(&rateBuy, "buy", "", "rate the bank buys at (required)")
	rateSetCmd.Flags().StringVar(&rateSell, "sell", "", "rate the bank sells at (required)")
	rateSetCmd.Flags().StringVar(&rateEffective, "date", "", "effective date YYYY-MM-DD (default now)")

	commissionAddCmd.Flags().StringVar(&ruleID, "id", "", "rule id (UUID generated if empty)")
	commissionAddCmd.Flags().StringVar(&ruleType, "type", "", "CURRENCY_BUY, CURRENCY_SELL or TRANSFER_EXTERNAL (required)")
	commissionAddCmd.Flags().StringVar(&ruleCurrency, "currency", "", "currency the fee is charged in (required)")
	commissionAddCmd.Flags().StringVar(&ruleFixed, "fixed", "", "fixed part")
	commissionAddCmd.Flags().StringVar(&rulePercentage, "percentage", "", "percentage part as a fraction")
	commissionAddCmd.Flags().StringVar(&ruleMin, "min", "", "minimum fee")
	commissionAddCmd.Flags().StringVar(&ruleMax, "max", "", "maximum fee")
}
