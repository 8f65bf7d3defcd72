// Daily record handlers: calculated balances, reconciliation and close of day.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/service/reconcile"
)

// getDailyRecord handles GET /daily-records/{date}?account_id=&physical_count_minor=
// Without account_id the cash role is used. A physical count adds an unsaved
// reconciliation to the response.
func (s *Server) getDailyRecord(w http.ResponseWriter, r *http.Request) {
	day, ok := pathDay(w, r)
	if !ok { return }
	q := r.URL.Query()
	accountID, ok := queryAccountID(w, q.Get("account_id"))
	if !ok { return }
	view, err := s.reconcile.GetDailyRecord(r.Context(), day, accountID)
	if err != nil { s.fail(w, r, err); return }
	out := toDayViewResponse(view)
	if raw := q.Get("physical_count_minor"); raw != "" {
		units, err := strconv.ParseInt(raw, 10, 64)
		if err != nil { badRequest(w, "invalid physical_count_minor"); return }
		physical, err := ledger.FromMinor(s.currency, units)
		if err != nil { s.fail(w, r, err); return }
		res, err := s.reconcile.Reconcile(r.Context(), day, view.AccountID, physical)
		if err != nil { s.fail(w, r, err); return }
		out.Reconciliation = toReconciliationResponse(res)
	}
	toJSON(w, http.StatusOK, out)
}

// putDailyRecord saves a caller-computed snapshot for the day.
func (s *Server) putDailyRecord(w http.ResponseWriter, r *http.Request) {
	day, ok := pathDay(w, r)
	if !ok { return }
	if !requireJSON(w, r) { return }
	var req saveDailyRecordRequest
	if !decodeStrict(w, r, &req) { return }
	status, err := ledger.ParseRecordStatus(req.Status)
	if err != nil { s.fail(w, r, err); return }
	in := reconcile.SaveInput{Date: day, AccountID: req.AccountID, Status: status, Notes: req.Notes}
	for _, f := range []struct {
		units int64
		dst   *money.Amount
	}{
		{req.OpeningMinor, &in.Opening},
		{req.ClosingMinor, &in.Closing},
		{req.PhysicalCountMinor, &in.PhysicalCount},
		{req.DifferenceMinor, &in.Difference},
	} {
		amt, err := ledger.FromMinor(s.currency, f.units)
		if err != nil { s.fail(w, r, err); return }
		*f.dst = amt
	}
	rec, err := s.reconcile.SaveDailyRecord(r.Context(), in)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toDailyRecordResponse(rec))
}

// closeDay reconciles the day against a physical count and saves the result.
func (s *Server) closeDay(w http.ResponseWriter, r *http.Request) {
	day, ok := pathDay(w, r)
	if !ok { return }
	if !requireJSON(w, r) { return }
	var req closeDayRequest
	if !decodeStrict(w, r, &req) { return }
	if req.PhysicalCountMinor == nil { badRequest(w, "physical_count_minor is required"); return }
	physical, err := ledger.FromMinor(s.currency, *req.PhysicalCountMinor)
	if err != nil { s.fail(w, r, err); return }
	rec, err := s.reconcile.CloseDay(r.Context(), day, req.AccountID, physical, req.Notes)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toDailyRecordResponse(rec))
}

func pathDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	day, err := ledger.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		badRequest(w, "invalid date")
		return time.Time{}, false
	}
	return day, true
}

// queryAccountID parses an optional account id; empty yields uuid.Nil.
func queryAccountID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, "invalid account_id")
		return uuid.Nil, false
	}
	return id, true
}
