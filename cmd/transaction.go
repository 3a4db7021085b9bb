package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"banking-ledger/app"
	"banking-ledger/audit"
	"banking-ledger/shared"
)

var (
	txAccountID   string
	txFromID      string
	txToID        string
	txToIBAN      string
	txCurrency    string
	txAmount      string
	txDescription string
	txTransferID  string
	txReason      string
)

var cashCmd = &cobra.Command{
	Use:   "cash",
	Short: "Cash deposits and withdrawals against the bank's cash account",
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit cash into an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCash(cmd, audit.ActionDeposit, instance.svc.Transfers.Deposit)
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw cash from an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCash(cmd, audit.ActionWithdraw, instance.svc.Transfers.Withdraw)
	},
}

func runCash(cmd *cobra.Command, action string, op func(context.Context, app.CashCommand) (app.TransferResult, error)) error {
	ctx := cmd.Context()
	amount, err := parseAmount("amount", txAmount)
	if err != nil {
		return err
	}
	res, err := op(ctx, app.CashCommand{
		AccountID:   txAccountID,
		Amount:      amount,
		Currency:    shared.Currency(txCurrency),
		Description: txDescription,
		RequestedBy: actor,
	})
	if err := record(ctx, action, audit.EntityTransfer, res.Transfer.ID, err,
		map[string]any{"account": txAccountID, "amount": txAmount, "currency": txCurrency}); err != nil {
		return err
	}
	printTransfer(res)
	return nil
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move money between accounts",
}

var transferInternalCmd = &cobra.Command{
	Use:   "internal",
	Short: "Transfer between two accounts of this bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		amount, err := parseAmount("amount", txAmount)
		if err != nil {
			return err
		}
		res, err := instance.svc.Transfers.TransferInternal(ctx, app.InternalTransferCommand{
			FromAccountID: txFromID,
			ToAccountID:   txToID,
			Amount:        amount,
			Currency:      shared.Currency(txCurrency),
			Description:   txDescription,
			RequestedBy:   actor,
		})
		if err := record(ctx, audit.ActionTransferInternal, audit.EntityTransfer, res.Transfer.ID, err,
			map[string]any{"from": txFromID, "to": txToID, "amount": txAmount, "currency": txCurrency}); err != nil {
			return err
		}
		printTransfer(res)
		return nil
	},
}

var transferExternalCmd = &cobra.Command{
	Use:   "external",
	Short: "Transfer to an IBAN",
	Long: `Sends money to an IBAN. An IBAN held at this bank is settled at once as an
internal transfer. Any other IBAN is credited to the clearing account of the
currency and charged the external transfer commission.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		amount, err := parseAmount("amount", txAmount)
		if err != nil {
			return err
		}
		res, err := instance.svc.Transfers.TransferExternal(ctx, app.ExternalTransferCommand{
			FromAccountID: txFromID,
			ToIBAN:        txToIBAN,
			Amount:        amount,
			Currency:      shared.Currency(txCurrency),
			Description:   txDescription,
			RequestedBy:   actor,
		})
		if err := record(ctx, audit.ActionTransferExternal, audit.EntityTransfer, res.Transfer.ID, err,
			map[string]any{"from": txFromID, "iban": txToIBAN, "amount": txAmount, "currency": txCurrency}); err != nil {
			return err
		}
		printTransfer(res)
		return nil
	},
}

var transferReverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Reverse a completed transfer",
	Long: `Moves the original amount back from destination to source as a new linked
transfer and marks the original REVERSED. A transfer is reversed at most once;
commission charged on the original is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		res, err := instance.svc.Transfers.Reverse(ctx, app.ReverseCommand{
			TransferID:  txTransferID,
			Reason:      txReason,
			RequestedBy: actor,
		})
		if err := record(ctx, audit.ActionReverse, audit.EntityTransfer, txTransferID, err,
			map[string]any{"reason": txReason, "reversal": res.Transfer.ID}); err != nil {
			return err
		}
		render(res, func() {
			fmt.Printf("Transfer '%s' reversed.\n", res.Original.ID)
			printTransferText(res.TransferResult)
		})
		return nil
	},
}

var transferShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a transfer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := required("transfer", txTransferID); err != nil {
			return err
		}
		t, err := instance.svc.Transfers.GetTransfer(cmd.Context(), txTransferID)
		if err != nil {
			return err
		}
		render(t, func() {
			fmt.Printf("  ID:        %s\n", t.ID)
			fmt.Printf("  Reference: %s\n", t.ReferenceCode)
			fmt.Printf("  From:      %s\n", t.FromAccountID)
			fmt.Printf("  To:        %s %s\n", t.ToAccountID, t.ToIBAN)
			fmt.Printf("  Amount:    %s %s (commission %s)\n", t.Amount.Amount.StringFixed(2), t.Amount.Currency, t.Commission.StringFixed(2))
			fmt.Printf("  Channel:   %s\n", t.Channel)
			fmt.Printf("  Status:    %s\n", t.Status)
			if t.ReversalOfID != nil {
				fmt.Printf("  Reverses:  %s\n", *t.ReversalOfID)
			}
			if t.ReversedByID != nil {
				fmt.Printf("  Reversed:  by %s\n", *t.ReversedByID)
			}
		})
		return nil
	},
}

func printTransfer(res app.TransferResult) {
	render(res, func() { printTransferText(res) })
}

func printTransferText(res app.TransferResult) {
	t := res.Transfer
	fmt.Printf("Transfer %s completed (%s).\n", t.ID, t.ReferenceCode)
	fmt.Printf("  %s %s  %s -> %s  [%s]\n", t.Amount.Amount.StringFixed(2), t.Amount.Currency, t.FromAccountID, t.ToAccountID, t.Channel)
	if t.Commission.IsPositive() {
		fmt.Printf("  Commission: %s %s\n", t.Commission.StringFixed(2), t.Amount.Currency)
	}
	fmt.Printf("  Balance of %s: %s\n", t.FromAccountID, res.FromBalance.Amount.StringFixed(2))
	fmt.Printf("  Balance of %s: %s\n", t.ToAccountID, res.ToBalance.Amount.StringFixed(2))
}

func init() {
	rootCmd.AddCommand(cashCmd, transferCmd)
	cashCmd.AddCommand(depositCmd, withdrawCmd)
	transferCmd.AddCommand(transferInternalCmd, transferExternalCmd, transferReverseCmd, transferShowCmd)

	for _, c := range []*cobra.Command{depositCmd, withdrawCmd} {
		c.Flags().StringVar(&txAccountID, "id", "", "customer account id (required)")
		c.Flags().StringVar(&txCurrency, "currency", "", "currency of the account (required)")
		c.Flags().StringVar(&txAmount, "amount", "", "amount, at most 2 decimals (required)")
		c.Flags().StringVar(&txDescription, "description", "", "statement description")
	}

	transferInternalCmd.Flags().StringVar(&txFromID, "from-id", "", "source account id (required)")
	transferInternalCmd.Flags().StringVar(&txToID, "to-id", "", "destination account id (required)")

	transferExternalCmd.Flags().StringVar(&txFromID, "from-id", "", "source account id (required)")
	transferExternalCmd.Flags().StringVar(&txToIBAN, "iban", "", "destination IBAN (required)")

	for _, c := range []*cobra.Command{transferInternalCmd, transferExternalCmd} {
		c.Flags().StringVar(&txCurrency, "currency", "", "transfer currency (required)")
		c.Flags().StringVar(&txAmount, "amount", "", "amount, at most 2 decimals (required)")
		c.Flags().StringVar(&txDescription, "description", "", "statement description")
	}

	transferReverseCmd.Flags().StringVar(&txTransferID, "transfer", "", "id of the transfer to reverse (required)")
	transferReverseCmd.Flags().StringVar(&txReason, "reason", "", "reason shown on the reversal")
	transferShowCmd.Flags().StringVar(&txTransferID, "transfer", "", "transfer id (required)")
}
