package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
)

type ctxKey string

const ctxKeyPostGroup ctxKey = "validatedPostGroup"
const ctxKeyListGroups ctxKey = "validatedListGroups"
const ctxKeyScenario ctxKey = "validatedScenario"

// validatePostGroup decodes POST /transaction-groups, runs the commit checks
// and stores the journal input in the request context for the handler.
func (s *Server) validatePostGroup() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) { return }
			var req postGroupRequest
			if !decodeStrict(w, r, &req) { return }
			if req.IdempotencyKey == "" {
				req.IdempotencyKey = r.Header.Get("Idempotency-Key")
			}
			in, err := toGroupInput(req, s.currency)
			if err != nil { s.fail(w, r, err); return }
			if err := s.journal.ValidateGroup(r.Context(), in); err != nil {
				s.fail(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostGroup, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateScenario decodes the params of POST /scenarios/{kind}[/compile].
func (s *Server) validateScenario() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) { return }
			var req scenarioRequest
			if !decodeStrict(w, r, &req) { return }
			raw, err := rawParams(req.Params)
			if err != nil { s.fail(w, r, err); return }
			params, err := scenario.ParseParams(raw)
			if err != nil { s.fail(w, r, err); return }
			in := journal.ScenarioInput{
				Kind:           ledger.ScenarioKind(chi.URLParam(r, "kind")),
				Params:         params,
				CustomerName:   req.CustomerName,
				Description:    req.Description,
				IdempotencyKey: req.IdempotencyKey,
			}
			if in.IdempotencyKey == "" {
				in.IdempotencyKey = r.Header.Get("Idempotency-Key")
			}
			if req.Date != "" {
				day, err := ledger.ParseDay(req.Date)
				if err != nil { s.fail(w, r, err); return }
				in.Date = day
			}
			if req.Timestamp != nil {
				in.Timestamp = *req.Timestamp
			}
			ctx := context.WithValue(r.Context(), ctxKeyScenario, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListGroups parses from, to, limit and offset for GET /transaction-groups.
func (s *Server) validateListGroups() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var f ledger.GroupFilter
			for _, p := range []struct {
				name string
				dst  **time.Time
			}{{"from", &f.From}, {"to", &f.To}} {
				raw := strings.TrimSpace(q.Get(p.name))
				if raw == "" { continue }
				day, err := ledger.ParseDay(raw)
				if err != nil { badRequest(w, "invalid "+p.name); return }
				*p.dst = &day
			}
			var err error
			if f.Limit, err = intParam(q.Get("limit")); err != nil { badRequest(w, "invalid limit"); return }
			if f.Offset, err = intParam(q.Get("offset")); err != nil { badRequest(w, "invalid offset"); return }
			ctx := context.WithValue(r.Context(), ctxKeyListGroups, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", errs.ErrInvalid, raw)
	}
	return n, nil
}
