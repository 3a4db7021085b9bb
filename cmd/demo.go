package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"banking-ledger/app"
	"banking-ledger/domain"
	"banking-ledger/shared"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted walkthrough against the configured ledger",
	Long: `Opens accounts for two fresh customers and walks through deposits,
transfers (internal, on-us and external), a reversal, and a buy/sell round
trip in USD, printing balances and positions along the way. Expected
failures (overdraft exceeded, double reversal) are shown too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context(), instance.svc)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(ctx context.Context, svc *app.Services) error {
	suffix := uuid.NewString()[:8]
	alice, bob := "alice-"+suffix, "bob-"+suffix

	fmt.Println("\n[Step 1] Opening accounts...")
	aliceTry, err := svc.Accounts.OpenAccount(ctx, app.OpenAccountCommand{OwnerID: alice, Currency: shared.TRY, OverdraftLimit: decimal.NewFromInt(500)})
	if err != nil {
		return err
	}
	aliceUsd, err := svc.Accounts.OpenAccount(ctx, app.OpenAccountCommand{OwnerID: alice, Currency: shared.USD})
	if err != nil {
		return err
	}
	bobTry, err := svc.Accounts.OpenAccount(ctx, app.OpenAccountCommand{OwnerID: bob, Currency: shared.TRY})
	if err != nil {
		return err
	}
	fmt.Printf(" -> %s: TRY %s (overdraft 500), USD %s\n", alice, aliceTry.ID, aliceUsd.ID)
	fmt.Printf(" -> %s: TRY %s (IBAN %s)\n", bob, bobTry.ID, bobTry.IBAN)

	fmt.Println("\n[Step 2] Cash deposit...")
	_, err = svc.Transfers.Deposit(ctx, app.CashCommand{AccountID: aliceTry.ID, Amount: decimal.NewFromInt(10000), Currency: shared.TRY})
	step("Deposit 10000 TRY to "+alice, err)

	fmt.Println("\n[Step 3] Transfers...")
	first, err := svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
		FromAccountID: aliceTry.ID, ToAccountID: bobTry.ID, Amount: decimal.NewFromInt(1500), Currency: shared.TRY, RequestedBy: alice,
	})
	step("Internal transfer 1500 TRY "+alice+" -> "+bob, err)
	_, err = svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
		FromAccountID: aliceTry.ID, ToIBAN: bobTry.IBAN, Amount: decimal.NewFromInt(250), Currency: shared.TRY, RequestedBy: alice,
	})
	step("Transfer 250 TRY to "+bob+"'s IBAN (settled on-us)", err)
	_, err = svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
		FromAccountID: aliceTry.ID, ToIBAN: "TR330006100519786457841326", Amount: decimal.NewFromInt(300), Currency: shared.TRY, RequestedBy: alice,
	})
	step("Transfer 300 TRY to another bank (via clearing)", err)
	_, err = svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
		FromAccountID: bobTry.ID, ToAccountID: aliceTry.ID, Amount: decimal.NewFromInt(5000), Currency: shared.TRY, RequestedBy: bob,
	})
	expect("Transfer beyond "+bob+"'s balance", err, domain.ErrInsufficientFunds)
	_, err = svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
		FromAccountID: aliceTry.ID, ToAccountID: bobTry.ID, Amount: decimal.NewFromInt(1), Currency: shared.TRY, RequestedBy: bob,
	})
	expect(bob+" moving "+alice+"'s money", err, domain.ErrUnauthorized)

	if first.Transfer.ID != "" {
		fmt.Println("\n[Step 4] Reversal...")
		_, err = svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: first.Transfer.ID, Reason: "sent by mistake"})
		step("Reverse the 1500 TRY transfer", err)
		_, err = svc.Transfers.Reverse(ctx, app.ReverseCommand{TransferID: first.Transfer.ID})
		expect("Reverse it a second time", err, domain.ErrInvalidOperation)
	}

	fmt.Println("\n[Step 5] Currency exchange...")
	if _, err := svc.Exchange.SetRate(ctx, app.SetRateCommand{Currency: shared.USD, BuyRate: decimal.NewFromInt(30), SellRate: decimal.NewFromInt(31)}); err != nil {
		return err
	}
	_, err = svc.Exchange.Buy(ctx, app.BuyCurrencyCommand{
		CustomerID: alice, FromTryAccountID: aliceTry.ID, ToForeignAccountID: aliceUsd.ID, Currency: shared.USD, Amount: decimal.NewFromInt(100),
	})
	step("Buy 100 USD at 31", err)
	if _, err := svc.Exchange.SetRate(ctx, app.SetRateCommand{Currency: shared.USD, BuyRate: decimal.NewFromInt(32), SellRate: decimal.NewFromInt(33)}); err != nil {
		return err
	}
	_, err = svc.Exchange.Buy(ctx, app.BuyCurrencyCommand{
		CustomerID: alice, FromTryAccountID: aliceTry.ID, ToForeignAccountID: aliceUsd.ID, Currency: shared.USD, Amount: decimal.NewFromInt(100),
	})
	step("Buy 100 USD at 33 (average cost now 32)", err)
	sold, err := svc.Exchange.Sell(ctx, app.SellCurrencyCommand{
		CustomerID: alice, FromForeignAccountID: aliceUsd.ID, ToTryAccountID: aliceTry.ID, Currency: shared.USD, Amount: decimal.NewFromInt(50),
	})
	step("Sell 50 USD at 32", err)
	if err == nil && sold.Transaction.RealizedPnl != nil {
		fmt.Printf("    realized P&L %s TRY\n", sold.Transaction.RealizedPnl.StringFixed(2))
	}
	_, err = svc.Exchange.Buy(ctx, app.BuyCurrencyCommand{
		CustomerID: alice, FromTryAccountID: aliceTry.ID, ToForeignAccountID: aliceUsd.ID, Currency: shared.USD, Amount: decimal.NewFromInt(5),
	})
	expect("Buy below the 10 unit minimum", err, domain.ErrMinAmount)

	fmt.Println("\n[Step 6] Final state...")
	for _, id := range []string{aliceTry.ID, aliceUsd.ID, bobTry.ID} {
		acc, err := svc.Accounts.GetAccount(ctx, id, "")
		if err != nil {
			return err
		}
		fmt.Printf("  %s %-8s %s %s\n", acc.ID, acc.OwnerID, acc.Balance.Amount.StringFixed(2), acc.Currency)
	}
	portfolio, err := svc.Exchange.GetPositions(ctx, alice)
	if err != nil {
		return err
	}
	for _, v := range portfolio.Positions {
		fmt.Printf("  %s position: %s @ avg %s", v.Position.Currency, v.Position.TotalAmount.StringFixed(2), v.Position.AverageCostRate.StringFixed(6))
		if v.Valuation != nil {
			fmt.Printf(", unrealized %s TRY", v.Valuation.UnrealizedPnl.StringFixed(2))
		}
		fmt.Println()
	}

	fmt.Println("\n--- Demo complete ---")
	return nil
}

func step(name string, err error) {
	if err != nil {
		log.Printf("ERROR: operation '%s' failed: %v", name, err)
		fmt.Printf(" -> %s FAILED: %v\n", name, err)
		return
	}
	fmt.Printf(" -> %s: ok\n", name)
}

func expect(name string, err, want error) {
	switch {
	case err == nil:
		fmt.Printf(" -> %s unexpectedly succeeded\n", name)
	case errors.Is(err, want):
		fmt.Printf(" -> %s rejected as expected: %v\n", name, err)
	default:
		fmt.Printf(" -> %s failed with an unexpected error: %v\n", name, err)
	}
}
