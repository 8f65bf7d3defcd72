// Package cmd provides the kiosk CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinoosan/kiosk-ledger/internal/app"
	"github.com/tinoosan/kiosk-ledger/internal/config"
)

var (
	envFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Double-entry ledger for a cash and mobile-money kiosk",
	Long: `kiosk records kiosk transactions as balanced double-entry groups,
compiles business scenarios into ledger entries and reconciles the cash
drawer at the end of each day.

Configuration is read from the environment and an optional .env file.

Example:
  kiosk serve
  kiosk accounts
  kiosk reconcile --date 2024-03-10 --count 15250.50 --save`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env when present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// loadApp loads and validates configuration and wires the ledger.
// Seeding is skipped unless seed is set.
func loadApp(ctx context.Context, logger *slog.Logger, seed bool) (*app.App, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	cfg.Seed = cfg.Seed && seed
	if logger == nil {
		logger = slog.Default()
	}
	return app.New(ctx, cfg, logger)
}

// exitOnError logs err and exits when it is non-nil.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
