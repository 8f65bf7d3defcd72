// Package app assembles the ledger from configuration: store, services,
// event publisher and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinoosan/kiosk-ledger/internal/config"
	"github.com/tinoosan/kiosk-ledger/internal/events"
	"github.com/tinoosan/kiosk-ledger/internal/events/kafka"
	"github.com/tinoosan/kiosk-ledger/internal/httpapi"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/service/reconcile"
	"github.com/tinoosan/kiosk-ledger/internal/service/report"
	"github.com/tinoosan/kiosk-ledger/internal/storage/memory"
	pgstore "github.com/tinoosan/kiosk-ledger/internal/storage/postgres"
	"github.com/tinoosan/kiosk-ledger/internal/storage/sqlite"
)

// Store is everything the services need from a backend.
type Store interface {
	account.Repo
	account.Writer
	journal.Repo
	journal.Writer
	reconcile.Repo
	reconcile.Writer
	report.Repo
	Ready(ctx context.Context) error
}

// App holds the wired services. Close releases the store and publisher.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Location  *time.Location
	Store     Store
	Accounts  account.Service
	Journal   journal.Service
	Reconcile reconcile.Service
	Report    report.Service

	publisher events.Publisher
	closers   []func() error
}

// New validates cfg, opens the configured store and wires the services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := ledger.ValidateSignTable(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Location: loc}

	switch cfg.Store {
	case config.StorePostgres:
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, cfg.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.Store = pg
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
	case config.StoreSQLite:
		lite, err := sqlite.Open(cfg.SQLitePath, cfg.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		a.Store = lite
		a.closers = append(a.closers, lite.Close)
	default:
		a.Store = memory.New()
	}
	logger.Info("storage backend", "store", cfg.Store)

	a.publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	a.closers = append(a.closers, a.publisher.Close)

	compiler, err := scenario.NewCompiler(cfg.Currency)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	bindings := cfg.Chart.Bindings
	a.Accounts = account.New(a.Store, a.Store, cfg.Currency, bindings)
	a.Journal = journal.New(a.Store, a.Store, journal.Options{
		Accounts:  a.Accounts,
		Compiler:  compiler,
		Publisher: a.publisher,
		Logger:    logger.With("component", "journal"),
		Location:  loc,
	})
	a.Reconcile = reconcile.New(a.Store, a.Store, a.Accounts, loc, logger.With("component", "reconcile"))
	a.Report = report.New(a.Store, bindings, cfg.Currency, loc)

	if cfg.Seed {
		if _, err := a.Seed(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Seed creates the configured chart accounts that do not exist yet.
func (a *App) Seed(ctx context.Context) ([]ledger.Account, error) {
	accs, err := a.Accounts.EnsureChart(ctx, a.Config.Chart.Accounts)
	if err != nil {
		return nil, fmt.Errorf("seed chart: %w", err)
	}
	a.Logger.Info("chart seeded", "accounts", len(accs))
	return accs, nil
}

// Handler builds the HTTP API over the wired services.
func (a *App) Handler() http.Handler {
	return httpapi.New(httpapi.Services{
		Accounts:  a.Accounts,
		Journal:   a.Journal,
		Reconcile: a.Reconcile,
		Report:    a.Report,
		Ready:     a.Store,
		Currency:  a.Config.Currency,
		Location:  a.Location,
	}, httpapi.AuthConfig{
		Secret:   a.Config.Auth.Secret,
		Issuer:   a.Config.Auth.Issuer,
		Audience: a.Config.Auth.Audience,
	}, a.Logger.With("component", "http")).Handler()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	a.closers = nil
	return errors.Join(errList...)
}
