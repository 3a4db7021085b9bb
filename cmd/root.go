package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"banking-ledger/audit"
	"banking-ledger/domain"
)

var (
	envFile  string
	actor    string
	asJSON   bool
	verbose  bool
	inREPL   bool
	instance *runtime
)

var rootCmd = &cobra.Command{
	Use:   "ledger-cli",
	Short: "Money movement and currency exchange on a double-entry ledger",
	Long: `ledger-cli drives the banking ledger: opening accounts, cash deposits and
withdrawals, internal and external transfers with reversal, and buying or
selling foreign currency against TRY with weighted-average cost positions.

The store, rate cache and event streams are configured through the
environment (or an env file); see config.Load.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			log.SetOutput(io.Discard)
		} else {
			log.SetOutput(os.Stderr)
		}
		if instance != nil {
			return nil
		}
		rt, err := bootstrap(cmd.Context(), envFile)
		if err != nil {
			return fmt.Errorf("failed to start ledger: %w", err)
		}
		instance = rt
		return nil
	},
}

// Execute runs the CLI and releases the stores afterwards.
func Execute() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	err := rootCmd.ExecuteContext(context.Background())
	if instance != nil {
		instance.Close()
	}
	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&actor, "as", "", "customer id acting on the accounts; empty runs as a trusted operator")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show service logs")
	rootCmd.AddCommand(replCmd)
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `Starts a read-eval-print loop over the same ledger instance, so state
created by one command is visible to the next. This is the way to use the
in-memory store across several commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inREPL {
			return domain.NewDomainError(domain.CodeInvalidOperation, "already inside a REPL")
		}
		inREPL = true
		defer func() { inREPL = false }()

		fmt.Println("Starting ledger REPL. Type 'exit' or 'quit' to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "exit" || input == "quit" {
				break
			}
			if input == "" {
				continue
			}
			resetFlags(rootCmd)
			rootCmd.SetArgs(strings.Fields(input))
			if err := rootCmd.ExecuteContext(cmd.Context()); err != nil {
				reportError(err)
			}
		}
		fmt.Println("Exiting REPL.")
		return nil
	},
}

// resetFlags puts every flag back to its default; cobra keeps parsed
// values between executions of the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func reportError(err error) {
	if domain.IsDomainError(err) {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", domain.CodeOf(err), err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// record sends one audit entry for a finished operation and passes err
// through.
func record(ctx context.Context, action, entityType, entityID string, err error, metadata map[string]any) error {
	entry := audit.NewEntry(action, entityType, entityID, actor, err)
	entry.Metadata = metadata
	instance.audit.Log(ctx, entry)
	return err
}

func render(v any, text func()) {
	if !asJSON {
		text()
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		reportError(err)
		return
	}
	fmt.Println(string(data))
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, domain.NewDomainError(domain.CodeValidation, "--%s is required", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, domain.NewDomainError(domain.CodeValidation, "invalid --%s %q: %v", name, s, err)
	}
	return d, nil
}

func required(name, value string) error {
	if value == "" {
		return domain.NewDomainError(domain.CodeValidation, "--%s is required", name)
	}
	return nil
}
