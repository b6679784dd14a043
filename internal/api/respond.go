package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/directory"
	"github.com/sells-group/credleak/internal/store"
	"github.com/sells-group/credleak/internal/validate"
)

// Meta describes a response.
type Meta struct {
	Version  string  `json:"version"`
	Duration float64 `json:"duration"`
	Count    int     `json:"count"`
}

// Envelope wraps every response body.
type Envelope struct {
	Meta     Meta   `json:"meta"`
	Data     any    `json:"data"`
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errormsg,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data any, count int) {
	s.write(w, status, Envelope{
		Meta:    s.meta(r, count),
		Data:    data,
		Success: true,
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.write(w, status, Envelope{
		Meta:     s.meta(r, 0),
		Success:  false,
		ErrorMsg: msg,
	})
}

// failErr maps err to a status. Internal errors are logged and reported
// without detail.
func (s *Server) failErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	switch {
	case eris.Is(err, store.ErrNotFound), eris.Is(err, directory.ErrNotFound):
		s.fail(w, r, http.StatusNotFound, "not found")
	case eris.As(err, &verr):
		s.fail(w, r, http.StatusBadRequest, verr.Error())
	default:
		zap.L().Error("api: request failed",
			zap.String("route", routePattern(r)),
			zap.Error(err),
		)
		s.fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) meta(r *http.Request, count int) Meta {
	return Meta{
		Version:  s.version,
		Duration: time.Since(startOf(r)).Seconds(),
		Count:    count,
	}
}

func (s *Server) write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.Method
}
