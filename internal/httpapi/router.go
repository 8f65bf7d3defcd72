// Package httpapi wires the HTTP surface of the kiosk ledger.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/kiosk-ledger/internal/service/account"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/service/reconcile"
	"github.com/tinoosan/kiosk-ledger/internal/service/report"
)

// ReadyChecker is implemented by stores that can report readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Services bundles what the handlers delegate to. Ready may be nil.
type Services struct {
	Accounts  account.Service
	Journal   journal.Service
	Reconcile reconcile.Service
	Report    report.Service
	Ready     ReadyChecker
	Currency  string
	Location  *time.Location
}

// Server wires handlers and middleware using Chi.
type Server struct {
	accounts  account.Service
	journal   journal.Service
	reconcile reconcile.Service
	report    report.Service
	ready     ReadyChecker
	currency  string
	loc       *time.Location
	now       func() time.Time
	log       *slog.Logger
	rt        *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// Bearer auth is enforced only when auth carries a secret.
func New(svc Services, auth AuthConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	loc := svc.Location
	if loc == nil {
		loc = time.Local
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	if mw := authJWT(auth); mw != nil {
		r.Use(mw)
	}

	s := &Server{
		accounts:  svc.Accounts,
		journal:   svc.Journal,
		reconcile: svc.Reconcile,
		report:    svc.Report,
		ready:     svc.Ready,
		currency:  svc.Currency,
		loc:       loc,
		now:       time.Now,
		log:       logger,
		rt:        r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Accounts
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Post("/v1/accounts", s.postAccount)
	s.rt.Get("/v1/accounts/{id}", s.getAccount)
	s.rt.Patch("/v1/accounts/{id}", s.renameAccount)
	s.rt.Get("/v1/accounts/{id}/balance", s.getAccountBalance)
	// Scenarios
	s.rt.With(s.validateScenario()).Post("/v1/scenarios/{kind}/compile", s.compileScenario)
	s.rt.With(s.validateScenario()).Post("/v1/scenarios/{kind}", s.recordScenario)
	// Transaction groups
	s.rt.With(s.validatePostGroup()).Post("/v1/transaction-groups", s.postGroup)
	s.rt.With(s.validateListGroups()).Get("/v1/transaction-groups", s.listGroups)
	s.rt.Get("/v1/transaction-groups/{id}", s.getGroup)
	s.rt.Get("/v1/transaction-groups/{id}/entries", s.getGroupEntries)
	// Daily records
	s.rt.Get("/v1/daily-records/{date}", s.getDailyRecord)
	s.rt.Put("/v1/daily-records/{date}", s.putDailyRecord)
	s.rt.Post("/v1/daily-records/{date}/close", s.closeDay)
	// Reports
	s.rt.Get("/v1/dashboard", s.dashboard)
	s.rt.Get("/v1/dictionary/scenarios", s.scenarioDictionary)
	// Health (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
