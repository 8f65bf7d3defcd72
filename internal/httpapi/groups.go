// Transaction group handlers: commit, list and fetch.
package httpapi

import (
	"net/http"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
)

// postGroup commits a validated group. A replayed idempotency key answers
// 200 with the original group instead of 201.
func (s *Server) postGroup(w http.ResponseWriter, r *http.Request) {
	in, ok := r.Context().Value(ctxKeyPostGroup).(journal.GroupInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal_error")
		return
	}
	res, err := s.journal.CommitGroup(r.Context(), in)
	if err != nil { s.fail(w, r, err); return }
	writeCommit(w, res)
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	f, ok := r.Context().Value(ctxKeyListGroups).(ledger.GroupFilter)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated query missing", "internal_error")
		return
	}
	page, err := s.journal.ListGroups(r.Context(), f)
	if err != nil { s.fail(w, r, err); return }
	out := listGroupsResponse{Items: make([]groupResponse, 0, len(page.Groups)), Total: page.Total, Limit: page.Limit, Offset: page.Offset}
	for _, g := range page.Groups {
		out.Items = append(out.Items, toGroupResponse(g))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok { return }
	g, err := s.journal.GetGroup(r.Context(), id)
	if err != nil { s.fail(w, r, err); return }
	toJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) getGroupEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok { return }
	entries, err := s.journal.GroupEntries(r.Context(), id)
	if err != nil { s.fail(w, r, err); return }
	out := struct {
		Items []entryResponse `json:"items"`
	}{Items: make([]entryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Items = append(out.Items, toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

func writeCommit(w http.ResponseWriter, res journal.CommitResult) {
	body := toGroupResponse(res.Group)
	if res.Replayed {
		body.Replayed = true
		toJSON(w, http.StatusOK, body)
		return
	}
	toJSON(w, http.StatusCreated, body)
}
