package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/credleak/internal/model"
)

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.listLeakData(w, r, model.LeakDataFilter{Email: chi.URLParam(r, "email")})
}

func (s *Server) handleUserAndPassword(w http.ResponseWriter, r *http.Request) {
	s.listLeakData(w, r, model.LeakDataFilter{
		Email:    chi.URLParam(r, "email"),
		Password: chi.URLParam(r, "password"),
	})
}

func (s *Server) handleLeakDataByTicket(w http.ResponseWriter, r *http.Request) {
	s.listLeakData(w, r, model.LeakDataFilter{TicketID: chi.URLParam(r, "ticket_id")})
}

func (s *Server) listLeakData(w http.ResponseWriter, r *http.Request, f model.LeakDataFilter) {
	rows, err := s.deps.Store.ListLeakData(r.Context(), f)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.LeakData{}
	}
	s.respond(w, r, http.StatusOK, rows, len(rows))
}

func (s *Server) handleExistsByEmail(w http.ResponseWriter, r *http.Request) {
	s.exists(w, r, model.LeakDataFilter{Email: chi.URLParam(r, "email")})
}

func (s *Server) handleExistsByPassword(w http.ResponseWriter, r *http.Request) {
	s.exists(w, r, model.LeakDataFilter{Password: chi.URLParam(r, "password"), AnyPassword: true})
}

func (s *Server) handleExistsByDomain(w http.ResponseWriter, r *http.Request) {
	s.exists(w, r, model.LeakDataFilter{Domain: chi.URLParam(r, "domain")})
}

// exists reports whether any stored credential matches f. The count of
// matches goes in the envelope meta.
func (s *Server) exists(w http.ResponseWriter, r *http.Request, f model.LeakDataFilter) {
	n, err := s.deps.Store.CountLeakData(r.Context(), f)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]bool{"exists": n > 0}, n)
}

func (s *Server) handleReporters(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Store.ListReporters(r.Context())
	s.respondNames(w, r, names, err)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Store.ListSources(r.Context())
	s.respondNames(w, r, names, err)
}

func (s *Server) respondNames(w http.ResponseWriter, r *http.Request, names []string, err error) {
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.respond(w, r, http.StatusOK, names, len(names))
}
