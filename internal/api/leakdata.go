package api

import (
	"net/http"

	"github.com/sells-group/credleak/internal/model"
)

// leakDataRequest is the body of POST and PUT /leak_data/. Credential types
// are checked against the known set.
type leakDataRequest struct {
	ID     int64 `json:"id"`
	LeakID int64 `json:"leak_id" validate:"required,gt=0"`
	model.Record
	Email          string                 `json:"email" validate:"required"`
	Password       string                 `json:"password" validate:"required"`
	CredentialType []model.CredentialType `json:"credential_type" validate:"omitempty,dive,credtype"`
}

func (ldr *leakDataRequest) record() model.Record {
	rec := ldr.Record
	leakID := ldr.LeakID
	rec.LeakID = &leakID
	rec.Email = ldr.Email
	rec.Password = ldr.Password
	rec.CredentialType = ldr.CredentialType
	if rec.CountSeen < 1 {
		rec.CountSeen = 1
	}
	rec.Row = 0
	return rec
}

func (s *Server) handleGetLeakData(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	ld, err := s.deps.Store.GetLeakData(r.Context(), id)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, ld, 1)
}

// handleCreateLeakData stores one credential directly, bypassing the
// pipeline. A duplicate bumps count_seen on the existing row.
func (s *Server) handleCreateLeakData(w http.ResponseWriter, r *http.Request) {
	var req leakDataRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.deps.Store.GetLeak(r.Context(), req.LeakID); err != nil {
		s.failErr(w, r, err)
		return
	}
	rec := req.record()
	id, err := s.deps.Store.UpsertLeakData(r.Context(), &rec)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	ld, err := s.deps.Store.GetLeakData(r.Context(), id)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, ld, 1)
}

func (s *Server) handleUpdateLeakData(w http.ResponseWriter, r *http.Request) {
	var req leakDataRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		s.fail(w, r, http.StatusBadRequest, "id is a required field")
		return
	}
	ld := &model.LeakData{ID: req.ID, Record: req.record()}
	if err := s.deps.Store.UpdateLeakData(r.Context(), ld); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, ld, 1)
}
