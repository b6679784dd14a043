// Package api serves the credential leak database and the import endpoints
// over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/credleak/internal/config"
	"github.com/sells-group/credleak/internal/directory"
	"github.com/sells-group/credleak/internal/fetcher"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/pipeline"
	"github.com/sells-group/credleak/internal/store"
	"github.com/sells-group/credleak/internal/validate"
)

// Ingester runs an uploaded dump through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.Request) (*model.ImportReport, error)
}

// Notifier raises alerts for a finished import.
type Notifier interface {
	Notify(ctx context.Context, report *model.ImportReport) int
}

// VIPList answers whether an address belongs to a VIP.
type VIPList interface {
	IsVIP(email string) bool
}

// Deps are the collaborators the handlers use. Alerts may be nil.
type Deps struct {
	Store     store.Store
	Ingester  Ingester
	Stager    *fetcher.Stager
	Directory directory.Directory
	VIP       VIPList
	Alerts    Notifier
	Validator *validate.Validator
}

// Server holds the handler state.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	version string
	keys    map[string]struct{}
}

// maxUploadMemory is the part of a multipart upload kept in memory; the
// rest spills to temp files.
const maxUploadMemory = 32 << 20

// NewServer creates a Server. version is reported in every response.
func NewServer(cfg config.ServerConfig, deps Deps, version string) *Server {
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	if deps.Validator == nil {
		deps.Validator = validate.New()
	}
	return &Server{cfg: cfg, deps: deps, version: version, keys: keys}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", apiKeyHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/ping", s.handlePing)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Get("/user/{email}", s.handleUser)
		r.Get("/user_and_password/{email}/{password}", s.handleUserAndPassword)

		r.Route("/exists", func(r chi.Router) {
			r.Get("/by_email/{email}", s.handleExistsByEmail)
			r.Get("/by_password/{password}", s.handleExistsByPassword)
			r.Get("/by_domain/{domain}", s.handleExistsByDomain)
		})

		r.Get("/reporter", s.handleReporters)
		r.Get("/source_name", s.handleSources)

		r.Route("/leak", func(r chi.Router) {
			r.Get("/all", s.handleLeakList(func(*http.Request) model.LeakFilter { return model.LeakFilter{} }))
			r.Get("/by_ticket_id/{ticket_id}", s.handleLeakList(func(r *http.Request) model.LeakFilter {
				return model.LeakFilter{TicketID: chi.URLParam(r, "ticket_id")}
			}))
			r.Get("/by_summary/{summary}", s.handleLeakList(func(r *http.Request) model.LeakFilter {
				return model.LeakFilter{Summary: chi.URLParam(r, "summary")}
			}))
			r.Get("/by_reporter/{reporter_name}", s.handleLeakList(func(r *http.Request) model.LeakFilter {
				return model.LeakFilter{ReporterName: chi.URLParam(r, "reporter_name")}
			}))
			r.Get("/by_source/{source_name}", s.handleLeakList(func(r *http.Request) model.LeakFilter {
				return model.LeakFilter{SourceName: chi.URLParam(r, "source_name")}
			}))
			r.Get("/{id}", s.handleGetLeak)
			r.Post("/", s.handleCreateLeak)
			r.Put("/", s.handleUpdateLeak)
		})

		r.Route("/leak_data", func(r chi.Router) {
			r.Get("/by_ticket_id/{ticket_id}", s.handleLeakDataByTicket)
			r.Get("/{id}", s.handleGetLeakData)
			r.Post("/", s.handleCreateLeakData)
			r.Put("/", s.handleUpdateLeakData)
		})

		r.Route("/import/csv", func(r chi.Router) {
			r.Post("/spycloud/{parent_ticket_id}", s.handleImportSpyCloud)
			r.Post("/by_leak/{leak_id}", s.handleImportByLeak)
		})

		r.Route("/enrich", func(r chi.Router) {
			r.Get("/email_to_dg/{email}", s.handleEmailToDG)
			r.Get("/email_to_userid/{email}", s.handleEmailToUserID)
			r.Get("/email_to_vip/{email}", s.handleEmailToVIP)
		})
	})

	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"message": "pong"}, 1)
}

// requestStart is the context key holding when a request arrived.
type requestStart struct{}

func startOf(r *http.Request) time.Time {
	if t, ok := r.Context().Value(requestStart{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
