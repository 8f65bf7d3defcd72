package httpapi

import (
	"net/http"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

// dashboard handles GET /dashboard?date=YYYY-MM-DD, defaulting to today.
func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	day := ledger.Day(s.now(), s.loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := ledger.ParseDay(raw)
		if err != nil { badRequest(w, "invalid date"); return }
		day = d
	}
	d, err := s.report.Dashboard(r.Context(), day)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toDashboardResponse(d))
}
