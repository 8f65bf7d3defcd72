package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the chart of accounts",
	Long: `Create every chart account that does not exist yet, with its opening
balance. Existing accounts are left alone, so running it twice is safe.

The chart comes from KIOSK_CHART_FILE or the built-in kiosk chart.

Example:
  kiosk seed`,
	Run: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := loadApp(ctx, nil, false)
	exitOnError(err, "failed to start ledger")
	defer a.Close()

	accs, err := a.Seed(ctx)
	exitOnError(err, "failed to seed chart")
	printAccounts(ctx, a, accs)
}
