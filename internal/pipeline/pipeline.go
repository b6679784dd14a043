// Package pipeline runs leak dumps through collection, normalization,
// filtering, deduplication, enrichment and persistence. Every row reaches
// exactly one terminal outcome; no single row aborts the batch.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/credleak/internal/collect"
	"github.com/sells-group/credleak/internal/dedup"
	"github.com/sells-group/credleak/internal/filter"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/normalize"
	"github.com/sells-group/credleak/internal/resilience"
	"github.com/sells-group/credleak/internal/store"
)

// Sink persists enriched records.
type Sink interface {
	UpsertLeakData(ctx context.Context, rec *model.Record) (int64, error)
}

// Enricher adds context to a record. *enrich.Chain satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, rec *model.Record) error
}

// Options tunes a pipeline.
type Options struct {
	// Concurrency is the number of rows processed at once. Default: 1.
	Concurrency int

	// DefaultSource is used when a request names no source.
	DefaultSource string

	// DLQMaxRetries bounds retries of failed sink writes. Default: 3.
	DLQMaxRetries int

	Collect collect.Options
}

// Pipeline orchestrates one ingestion per call to Ingest.
type Pipeline struct {
	opts        Options
	store       store.Store
	sink        Sink
	normalizers *normalize.Registry
	filter      filter.Filter
	dedup       dedup.Deduplicator
	enricher    Enricher
}

// New creates a Pipeline. The store is also the sink unless WithSink
// replaces it.
func New(
	opts Options,
	st store.Store,
	normalizers *normalize.Registry,
	flt filter.Filter,
	dd dedup.Deduplicator,
	enricher Enricher,
) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = "spycloud"
	}
	if opts.DLQMaxRetries <= 0 {
		opts.DLQMaxRetries = 3
	}
	if flt == nil {
		flt = filter.Passthrough{}
	}
	return &Pipeline{
		opts:        opts,
		store:       st,
		sink:        st,
		normalizers: normalizers,
		filter:      flt,
		dedup:       dd,
		enricher:    enricher,
	}
}

// WithSink replaces the sink.
func (p *Pipeline) WithSink(s Sink) *Pipeline {
	p.sink = s
	return p
}

// LeakRef names the leak a file belongs to: either an existing leak by ID
// or the fields of a leak to look up by (ticket, summary) and create when
// missing.
type LeakRef struct {
	ID           int64
	TicketID     string
	Summary      string
	ReporterName string
	SourceName   string
}

// Request is one file to ingest.
type Request struct {
	Path   string
	Source string
	Leak   LeakRef
}

// rowResult is the terminal state of one row. A zero outcome means the row
// was never processed.
type rowResult struct {
	outcome model.Outcome
	rec     *model.Record
	rowErr  *model.RowError
}

// Ingest runs one file through the pipeline. A collector failure returns an
// error and no report. When ctx is cancelled part way, the report is
// returned along with the wrapped context error and the rows that never
// ran are counted as unprocessed.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*model.ImportReport, error) {
	start := time.Now()

	source := req.Source
	if source == "" {
		source = p.opts.DefaultSource
	}
	normalizer, err := p.normalizers.Get(source)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select normalizer")
	}

	log := zap.L().With(zap.String("path", req.Path), zap.String("source", normalizer.Name()))

	collector, err := collect.ForPath(req.Path, p.opts.Collect)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select collector")
	}
	table, err := collector.Collect(ctx, req.Path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: collect")
	}

	leakID, err := p.resolveLeak(ctx, req.Leak)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.Int64("leak_id", leakID))

	records := normalizer.Normalize(table)
	for _, rec := range records {
		rec.LeakID = &leakID
	}
	log.Info("pipeline: ingest started", zap.Int("rows", len(records)))

	results := make([]rowResult, len(records))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = p.process(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	report := buildReport(leakID, normalizer.Name(), results)
	report.Duration = time.Since(start)

	log.Info("pipeline: ingest complete",
		zap.Int("total", report.Counts.Total),
		zap.Int("persisted", report.Counts.Persisted),
		zap.Int("quarantined", report.Counts.Quarantined),
		zap.Int("filtered_out", report.Counts.FilteredOut),
		zap.Int("deduplicated", report.Counts.Deduplicated),
		zap.Int("failed", report.Counts.Failed),
		zap.Int("unprocessed", report.Counts.Unprocessed),
		zap.Duration("duration", report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "pipeline: ingest cancelled")
	}
	return report, nil
}

// resolveLeak returns the leak ID a request refers to, creating the leak
// when no (ticket, summary) match exists.
func (p *Pipeline) resolveLeak(ctx context.Context, ref LeakRef) (int64, error) {
	if ref.ID != 0 {
		leak, err := p.store.GetLeak(ctx, ref.ID)
		if err != nil {
			return 0, eris.Wrapf(err, "pipeline: leak %d", ref.ID)
		}
		return leak.ID, nil
	}
	if ref.TicketID == "" || ref.Summary == "" {
		return 0, eris.New("pipeline: a leak id or a ticket id and summary is required")
	}

	leak, err := p.store.FindLeak(ctx, ref.TicketID, ref.Summary)
	switch {
	case err == nil:
		zap.L().Info("pipeline: using existing leak", zap.Int64("leak_id", leak.ID))
		return leak.ID, nil
	case !eris.Is(err, store.ErrNotFound):
		return 0, eris.Wrap(err, "pipeline: find leak")
	}

	id, err := p.store.CreateLeak(ctx, &model.Leak{
		TicketID:     ref.TicketID,
		Summary:      ref.Summary,
		ReporterName: ref.ReporterName,
		SourceName:   ref.SourceName,
	})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: create leak")
	}
	zap.L().Info("pipeline: created leak", zap.Int64("leak_id", id))
	return id, nil
}

// process moves one record to its terminal outcome.
func (p *Pipeline) process(ctx context.Context, rec *model.Record) rowResult {
	if ctx.Err() != nil {
		return rowResult{}
	}
	log := zap.L().With(zap.Int("row", rec.Row))

	if rec.Quarantined() {
		log.Debug("pipeline: row quarantined by normalizer")
		return rowResult{outcome: model.OutcomeQuarantined, rec: rec}
	}

	if p.filter.Apply(ctx, rec) == filter.Veto {
		log.Debug("pipeline: row filtered out")
		return rowResult{outcome: model.OutcomeFilteredOut, rec: rec}
	}

	decision, err := p.dedup.Check(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return rowResult{}
		}
		log.Warn("pipeline: dedup failed", zap.Error(err))
		return failed(rec, model.StageDedup, err)
	}
	if decision == dedup.Duplicate {
		log.Debug("pipeline: row already stored")
		return rowResult{outcome: model.OutcomeDeduplicated, rec: rec}
	}

	log = log.With(zap.String("email", rec.Email), zap.String("password", model.MaskPassword(rec.Password)))

	if err := p.enricher.Enrich(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return rowResult{}
		}
		log.Warn("pipeline: enrichment failed", zap.Error(err))
		rec.Quarantine(err.Error())
		return rowResult{outcome: model.OutcomeQuarantined, rec: rec}
	}

	rec.Notify = true
	rec.NeedsHumanIntervention = false
	rec.ErrorMsg = nil
	if model.IsTrue(rec.ExternalUser) {
		rec.Notify = false
	}

	if _, err := p.sink.UpsertLeakData(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return rowResult{}
		}
		log.Error("pipeline: sink failed", zap.Error(err))
		p.deadLetter(ctx, rec, err)
		return failed(rec, model.StageSink, err)
	}

	log.Debug("pipeline: row persisted")
	return rowResult{outcome: model.OutcomePersisted, rec: rec}
}

func failed(rec *model.Record, stage model.Stage, err error) rowResult {
	return rowResult{
		outcome: model.OutcomeFailed,
		rec:     rec,
		rowErr:  &model.RowError{Row: rec.Row, Stage: stage, Error: err.Error()},
	}
}

// deadLetter stores a record whose sink write failed so it can be retried.
func (p *Pipeline) deadLetter(ctx context.Context, rec *model.Record, cause error) {
	now := time.Now()
	entry := resilience.DLQEntry{
		Record:       *rec,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		FailedStage:  model.StageSink,
		MaxRetries:   p.opts.DLQMaxRetries,
		NextRetryAt:  now,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if rec.LeakID != nil {
		entry.LeakID = *rec.LeakID
	}
	if err := p.store.EnqueueDLQ(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Error("pipeline: dead-letter enqueue failed", zap.Int("row", rec.Row), zap.Error(err))
	}
}

func buildReport(leakID int64, source string, results []rowResult) *model.ImportReport {
	report := &model.ImportReport{
		LeakID:      leakID,
		Source:      source,
		Persisted:   []model.Record{},
		Quarantined: []model.Record{},
	}
	report.Counts.Total = len(results)
	for _, r := range results {
		switch r.outcome {
		case "":
			report.Counts.Unprocessed++
			continue
		case model.OutcomePersisted:
			report.Persisted = append(report.Persisted, *r.rec)
		case model.OutcomeQuarantined:
			report.Quarantined = append(report.Quarantined, *r.rec)
		case model.OutcomeFailed:
			report.Failed = append(report.Failed, *r.rowErr)
		}
		report.Counts.Add(r.outcome)
	}
	return report
}
