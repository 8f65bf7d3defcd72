package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/tinoosan/kiosk-ledger/internal/dictionary"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil { w.WriteHeader(http.StatusOK); return }
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := s.ready.Ready(ctx); err != nil {
		s.log.Warn("not ready", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /v1/dictionary/scenarios
func (s *Server) scenarioDictionary(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Items []dictionary.ScenarioDef `json:"items"`
	}{Items: dictionary.Scenarios()}
	toJSON(w, http.StatusOK, out)
}
