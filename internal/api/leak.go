package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/validate"
)

// leakRequest is the body of POST and PUT /leak/.
type leakRequest struct {
	ID              int64  `json:"id"`
	TicketID        string `json:"ticket_id" validate:"required"`
	Summary         string `json:"summary" validate:"required"`
	ReporterName    string `json:"reporter_name"`
	SourceName      string `json:"source_name"`
	BreachTS        string `json:"breach_ts" validate:"omitempty,leakdate"`
	SourcePublishTS string `json:"source_publish_ts" validate:"omitempty,leakdate"`
}

func (lr *leakRequest) leak() *model.Leak {
	return &model.Leak{
		ID:              lr.ID,
		TicketID:        lr.TicketID,
		Summary:         lr.Summary,
		ReporterName:    lr.ReporterName,
		SourceName:      lr.SourceName,
		BreachTS:        optionalDate(lr.BreachTS),
		SourcePublishTS: optionalDate(lr.SourcePublishTS),
	}
}

// optionalDate parses a date that has already passed the leakdate rule.
func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := validate.ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

func (s *Server) handleLeakList(filter func(*http.Request) model.LeakFilter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leaks, err := s.deps.Store.ListLeaks(r.Context(), filter(r))
		if err != nil {
			s.failErr(w, r, err)
			return
		}
		if leaks == nil {
			leaks = []model.Leak{}
		}
		s.respond(w, r, http.StatusOK, leaks, len(leaks))
	}
}

func (s *Server) handleGetLeak(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	leak, err := s.deps.Store.GetLeak(r.Context(), id)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, leak, 1)
}

func (s *Server) handleCreateLeak(w http.ResponseWriter, r *http.Request) {
	var req leakRequest
	if !s.decode(w, r, &req) {
		return
	}
	leak := req.leak()
	leak.ID = 0
	leak.IngestionTS = time.Now().UTC()
	id, err := s.deps.Store.CreateLeak(r.Context(), leak)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	leak.ID = id
	s.respond(w, r, http.StatusCreated, leak, 1)
}

func (s *Server) handleUpdateLeak(w http.ResponseWriter, r *http.Request) {
	var req leakRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		s.fail(w, r, http.StatusBadRequest, "id is a required field")
		return
	}
	if err := s.deps.Store.UpdateLeak(r.Context(), req.leak()); err != nil {
		s.failErr(w, r, err)
		return
	}
	leak, err := s.deps.Store.GetLeak(r.Context(), req.ID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, leak, 1)
}

// decode reads a JSON body into v and validates it. It writes the error
// response and returns false when either step fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.deps.Validator.Struct(v); err != nil {
		s.failErr(w, r, err)
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := parseID(chi.URLParam(r, param))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", raw)
	}
	return id, nil
}
