package httpapi

import (
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "invalid_request")
}

func notFound(w http.ResponseWriter) { writeErr(w, http.StatusNotFound, "not_found", "not_found") }

func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// statusFor maps a service error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrDuplicateAccountName):
		return http.StatusConflict, "duplicate_account_name"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "idempotency_mismatch"
	case errors.Is(err, errs.ErrInvalidScenarioParams):
		return http.StatusUnprocessableEntity, "invalid_scenario_params"
	case errors.Is(err, errs.ErrUnknownScenarioKind):
		return http.StatusUnprocessableEntity, "unknown_scenario_kind"
	case errors.Is(err, errs.ErrUnbalancedGroup):
		return http.StatusUnprocessableEntity, "unbalanced_group"
	case errors.Is(err, errs.ErrNoEntries):
		return http.StatusUnprocessableEntity, "no_entries"
	case errors.Is(err, errs.ErrInvalid):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errs.ErrStorage):
		return http.StatusInternalServerError, "storage_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// fail writes err as a standard error payload. Server-side failures are
// logged and their details kept off the wire.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "req_id", chimw.GetReqID(r.Context()), "path", r.URL.Path, "err", err)
		msg = code
	}
	writeErr(w, status, msg, code)
}
