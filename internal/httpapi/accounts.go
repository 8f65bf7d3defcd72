// Account handlers: chart listing, create, rename and balance.
package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := s.accounts.List(r.Context())
	if err != nil { s.fail(w, r, err); return }
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) { return }
	var req postAccountRequest
	if !decodeStrict(w, r, &req) { return }
	opening, err := ledger.FromMinor(s.currency, req.OpeningMinor)
	if err != nil { s.fail(w, r, err); return }
	acc, err := s.accounts.Create(r.Context(), req.Name, ledger.Category(req.Category), opening)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusCreated, toAccountResponse(acc))
}

// getAccount handles GET /accounts/{id}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok { return }
	acc, err := s.accounts.Get(r.Context(), id)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

// renameAccount handles PATCH /accounts/{id} with {"name": ...}
func (s *Server) renameAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok { return }
	if !requireJSON(w, r) { return }
	var req renameAccountRequest
	if !decodeStrict(w, r, &req) { return }
	acc, err := s.accounts.Rename(r.Context(), id, req.Name)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok { return }
	bal, err := s.accounts.CurrentBalance(r.Context(), id)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, balanceResponse{
		AccountID:    id,
		Currency:     bal.Curr().Code(),
		BalanceMinor: ledger.MustMinor(bal),
		Balance:      display(bal),
	})
}

// pathID parses the {id} URL parameter, writing a 400 when malformed.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
