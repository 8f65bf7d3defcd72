package httpapi

import (
	"net/http"

	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
)

// compileScenario previews the entries of a scenario without committing.
func (s *Server) compileScenario(w http.ResponseWriter, r *http.Request) {
	in, ok := r.Context().Value(ctxKeyScenario).(journal.ScenarioInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal_error")
		return
	}
	compiled, err := s.journal.CompileScenario(r.Context(), in.Kind, in.Params)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toCompileResponse(compiled))
}

// recordScenario compiles and commits a scenario as one transaction group.
func (s *Server) recordScenario(w http.ResponseWriter, r *http.Request) {
	in, ok := r.Context().Value(ctxKeyScenario).(journal.ScenarioInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal_error")
		return
	}
	res, err := s.journal.RecordScenario(r.Context(), in)
	if err != nil { s.fail(w, r, err); return }
	writeCommit(w, res)
}
