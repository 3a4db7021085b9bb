package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"banking-ledger/app"
	"banking-ledger/audit"
	"banking-ledger/domain"
	"banking-ledger/shared"
)

var (
	accountID        string
	accountOwner     string
	accountCurrency  string
	accountIBAN      string
	accountOverdraft string
	historyLimit     int
	historySkip      int
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Open and inspect accounts",
}

var accountOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open an active account with a zero balance",
	Long: `Opens an ACTIVE account in one currency. When --id is empty a UUID is
generated; when --iban is empty a local IBAN is derived from the account
number. --overdraft sets how far below zero the balance may go.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		overdraft := decimal.Zero
		if accountOverdraft != "" {
			var err error
			if overdraft, err = parseAmount("overdraft", accountOverdraft); err != nil {
				return err
			}
		}
		acc, err := instance.svc.Accounts.OpenAccount(ctx, app.OpenAccountCommand{
			AccountID:      accountID,
			OwnerID:        accountOwner,
			Currency:       shared.Currency(accountCurrency),
			IBAN:           accountIBAN,
			OverdraftLimit: overdraft,
		})
		if err := record(ctx, audit.ActionOpenAccount, audit.EntityAccount, acc.ID, err,
			map[string]any{"owner": accountOwner, "currency": accountCurrency}); err != nil {
			return err
		}
		render(acc, func() {
			fmt.Printf("Account '%s' opened.\n", acc.ID)
			printAccount(acc)
		})
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an account and its balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := required("id", accountID); err != nil {
			return err
		}
		acc, err := instance.svc.Accounts.GetAccount(cmd.Context(), accountID, actor)
		if err != nil {
			return err
		}
		render(acc, func() { printAccount(acc) })
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the accounts of an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := required("owner", accountOwner); err != nil {
			return err
		}
		accounts, err := instance.svc.Accounts.ListAccounts(cmd.Context(), accountOwner)
		if err != nil {
			return err
		}
		render(accounts, func() {
			if len(accounts) == 0 {
				fmt.Printf("No accounts for owner '%s'.\n", accountOwner)
				return
			}
			for _, acc := range accounts {
				fmt.Printf("  %-38s %s %14s  %s\n", acc.ID, acc.Currency, acc.Balance.Amount.StringFixed(2), acc.Status)
			}
		})
		return nil
	},
}

var accountHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the ledger entries of an account, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := instance.svc.Accounts.AccountHistory(cmd.Context(), app.HistoryQuery{
			AccountID:   accountID,
			Limit:       historyLimit,
			Skip:        historySkip,
			RequestedBy: actor,
		})
		if err != nil {
			return err
		}
		render(entries, func() {
			if len(entries) == 0 {
				fmt.Printf("No entries for account '%s'.\n", accountID)
				return
			}
			fmt.Printf("History for account '%s':\n", accountID)
			for _, e := range entries {
				printEntry(e)
			}
		})
		return nil
	},
}

func printAccount(acc domain.Account) {
	fmt.Printf("  ID:        %s\n", acc.ID)
	fmt.Printf("  Owner:     %s\n", acc.OwnerID)
	fmt.Printf("  Number:    %s\n", acc.AccountNumber)
	if acc.IBAN != "" {
		fmt.Printf("  IBAN:      %s\n", acc.IBAN)
	}
	fmt.Printf("  Balance:   %s %s\n", acc.Balance.Amount.StringFixed(2), acc.Currency)
	fmt.Printf("  Available: %s %s\n", acc.Available().Amount.StringFixed(2), acc.Currency)
	fmt.Printf("  Status:    %s\n", acc.Status)
}

func printEntry(e domain.LedgerEntry) {
	fmt.Printf("  %s  %-6s %14s %s  %s  %s\n",
		e.CreatedAt.Format("2006-01-02 15:04:05"), e.Direction, e.Amount.Amount.StringFixed(2), e.Amount.Currency,
		e.ReferenceCode, e.Description)
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountOpenCmd, accountShowCmd, accountListCmd, accountHistoryCmd)

	accountOpenCmd.Flags().StringVar(&accountID, "id", "", "account id (UUID generated if empty)")
	accountOpenCmd.Flags().StringVar(&accountOwner, "owner", "", "owning customer id (required)")
	accountOpenCmd.Flags().StringVar(&accountCurrency, "currency", "", "TRY, USD, EUR, GBP or CHF (required)")
	accountOpenCmd.Flags().StringVar(&accountIBAN, "iban", "", "IBAN (derived if empty)")
	accountOpenCmd.Flags().StringVar(&accountOverdraft, "overdraft", "", "overdraft limit (default 0)")

	accountShowCmd.Flags().StringVar(&accountID, "id", "", "account id (required)")
	accountListCmd.Flags().StringVar(&accountOwner, "owner", "", "owning customer id (required)")

	accountHistoryCmd.Flags().StringVar(&accountID, "id", "", "account id (required)")
	accountHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum entries to return (0 for all)")
	accountHistoryCmd.Flags().IntVar(&historySkip, "skip", 0, "entries to skip")
}
