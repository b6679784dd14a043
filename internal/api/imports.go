package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/pipeline"
	"github.com/sells-group/credleak/internal/store"
)

const uploadField = "_file"

// handleImportSpyCloud ingests a SpyCloud CSV into the leak named by the
// parent ticket and summary, creating the leak when it does not exist.
func (s *Server) handleImportSpyCloud(w http.ResponseWriter, r *http.Request) {
	ticket := strings.TrimSpace(chi.URLParam(r, "parent_ticket_id"))
	summary := strings.TrimSpace(r.URL.Query().Get("summary"))
	if ticket == "" || summary == "" {
		s.fail(w, r, http.StatusBadRequest, "parent_ticket_id and summary are required")
		return
	}
	s.ingestUpload(w, r, pipeline.Request{
		Source: "spycloud",
		Leak: pipeline.LeakRef{
			TicketID:     ticket,
			Summary:      summary,
			ReporterName: r.URL.Query().Get("reporter_name"),
			SourceName:   model.SourceSpyCloud,
		},
	})
}

// handleImportByLeak ingests a file into an existing leak. The source
// format defaults to idf.
func (s *Server) handleImportByLeak(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "leak_id")
	if !ok {
		return
	}
	if _, err := s.deps.Store.GetLeak(r.Context(), id); err != nil {
		s.failErr(w, r, err)
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "idf"
	}
	s.ingestUpload(w, r, pipeline.Request{Source: source, Leak: pipeline.LeakRef{ID: id}})
}

// ingestUpload stages the multipart file, runs it through the pipeline and
// raises alerts on the report.
func (s *Server) ingestUpload(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.fail(w, r, http.StatusBadRequest, "expected a multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "missing upload field "+uploadField)
		return
	}
	defer file.Close() //nolint:errcheck

	staged, err := s.deps.Stager.Save(file, header.Filename)
	if err != nil {
		s.fail(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	defer staged.Remove()

	req.Path = staged.Path
	report, err := s.deps.Ingester.Ingest(r.Context(), req)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			s.failErr(w, r, err)
			return
		}
		zap.L().Warn("api: import failed",
			zap.String("file", header.Filename),
			zap.Error(err),
		)
		s.fail(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if s.deps.Alerts != nil {
		s.deps.Alerts.Notify(r.Context(), report)
	}
	s.respond(w, r, http.StatusOK, report, report.Counts.Total)
}
