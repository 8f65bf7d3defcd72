package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinoosan/kiosk-ledger/internal/app"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts with their current balances",
	Long: `List every account in name order with its current balance.

Example:
  kiosk accounts`,
	Run: runAccounts,
}

func runAccounts(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := loadApp(ctx, nil, true)
	exitOnError(err, "failed to start ledger")
	defer a.Close()

	accs, err := a.Accounts.List(ctx)
	exitOnError(err, "failed to list accounts")
	printAccounts(ctx, a, accs)
}

func printAccounts(ctx context.Context, a *app.App, accs []ledger.Account) {
	fmt.Println("\n=== Accounts ===")
	if len(accs) == 0 {
		fmt.Println("(none)")
	}
	for _, acc := range accs {
		bal, err := a.Accounts.CurrentBalance(ctx, acc.ID)
		exitOnError(err, "failed to read balance")
		fmt.Printf("%s  %-20s %-9s %14s %s\n", acc.ID, acc.Name, acc.Category, bal.Decimal(), bal.Curr())
	}
	fmt.Println()
}
