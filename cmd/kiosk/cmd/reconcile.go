package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tinoosan/kiosk-ledger/internal/app"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

var (
	reconDate    string
	reconCount   string
	reconAccount string
	reconSave    bool
	reconNotes   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a day against a physical count",
	Long: `Show the opening and closing balance of an account for a day and,
with --count, the difference against what is physically in the drawer.

--save closes the day: the balances, count and status are stored as the
daily record. The account defaults to the one bound to the cash role.

Example:
  kiosk reconcile --date 2024-03-10
  kiosk reconcile --date 2024-03-10 --count 15250.50 --save --notes "short 5"`,
	Run: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconDate, "date", "", "business day (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&reconCount, "count", "", "physical count in major units")
	reconcileCmd.Flags().StringVar(&reconAccount, "account", "", "account name (default: cash role)")
	reconcileCmd.Flags().BoolVar(&reconSave, "save", false, "store the result as the daily record")
	reconcileCmd.Flags().StringVar(&reconNotes, "notes", "", "notes for the daily record")
	reconcileCmd.MarkFlagRequired("date")
}

func runReconcile(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	day, err := ledger.ParseDay(reconDate)
	exitOnError(err, "invalid --date")
	if reconSave && reconCount == "" {
		exitOnError(fmt.Errorf("--save requires --count"), "invalid flags")
	}

	a, err := loadApp(ctx, nil, true)
	exitOnError(err, "failed to start ledger")
	defer a.Close()

	accountID, err := accountByName(ctx, a, reconAccount)
	exitOnError(err, "failed to resolve account")

	view, err := a.Reconcile.GetDailyRecord(ctx, day, accountID)
	exitOnError(err, "failed to load day")

	fmt.Printf("\n=== Reconciliation %s ===\n", ledger.FormatDay(day))
	fmt.Printf("Opening balance: %14s\n", view.Opening.Decimal())
	fmt.Printf("Closing balance: %14s\n", view.Closing.Decimal())
	fmt.Printf("Current balance: %14s\n", view.Current.Decimal())
	if view.Stored != nil {
		fmt.Printf("Stored record:   %14s counted, %s\n", view.Stored.PhysicalCount.Decimal(), view.Stored.Status)
	} else {
		fmt.Printf("Stored record:   (none, %s)\n", view.Status)
	}

	if reconCount == "" {
		fmt.Println()
		return
	}
	physical, err := ledger.ParseMajor(a.Config.Currency, reconCount)
	exitOnError(err, "invalid --count")

	if reconSave {
		rec, err := a.Reconcile.CloseDay(ctx, day, accountID, physical, reconNotes)
		exitOnError(err, "failed to close day")
		fmt.Printf("Physical count:  %14s\n", rec.PhysicalCount.Decimal())
		fmt.Printf("Difference:      %14s\n", rec.Difference.Decimal())
		fmt.Printf("Saved as:        %s\n\n", rec.Status)
		return
	}
	res, err := a.Reconcile.Reconcile(ctx, day, accountID, physical)
	exitOnError(err, "failed to reconcile")
	fmt.Printf("Physical count:  %14s\n", res.PhysicalCount.Decimal())
	fmt.Printf("Difference:      %14s\n", res.Difference.Decimal())
	fmt.Printf("Status:          %s (not saved)\n\n", res.Status)
}

// accountByName finds an account by case-insensitive name. An empty name
// selects the cash role.
func accountByName(ctx context.Context, a *app.App, name string) (uuid.UUID, error) {
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, nil
	}
	accs, err := a.Accounts.List(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	for _, acc := range accs {
		if strings.EqualFold(acc.Name, strings.TrimSpace(name)) {
			return acc.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("no account named %q", name)
}
