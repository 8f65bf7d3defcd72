package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/kiosk-ledger/internal/app"
	"github.com/tinoosan/kiosk-ledger/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the ledger HTTP API until interrupted.

The in-memory store seeds the default chart unless KIOSK_SEED=false.
SQLite and Postgres seed only with KIOSK_SEED=true.

Example:
  kiosk serve --addr :9090`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides KIOSK_HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(envFile)
	exitOnError(err, "failed to load configuration")
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	logger := app.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format, debug)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	exitOnError(err, "failed to start ledger")
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
}
