package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/credleak/internal/directory"
)

func (s *Server) handleEmailToDG(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	entry, ok := s.lookup(w, r, email)
	if !ok {
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"email": email, "dg": entry.Group}, 1)
}

func (s *Server) handleEmailToUserID(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	entry, ok := s.lookup(w, r, email)
	if !ok {
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"email": email, "user_id": entry.UserID}, 1)
}

func (s *Server) handleEmailToVIP(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	s.respond(w, r, http.StatusOK, map[string]any{"email": email, "is_vip": s.deps.VIP.IsVIP(email)}, 1)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, email string) (*directory.Entry, bool) {
	entry, err := s.deps.Directory.Lookup(r.Context(), email)
	if err != nil {
		s.failErr(w, r, err)
		return nil, false
	}
	return entry, true
}
