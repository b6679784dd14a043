package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/resilience"
)

// RetrySummary counts the outcome of a dead-letter retry pass.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RetryDLQ re-attempts due dead-letter entries through the sink. Entries
// that succeed are removed; the rest are rescheduled with a longer backoff.
func (p *Pipeline) RetryDLQ(ctx context.Context, limit int) (RetrySummary, error) {
	var sum RetrySummary

	entries, err := p.store.ListDLQ(ctx, resilience.DLQFilter{DueOnly: true, Limit: limit})
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: list dlq")
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "pipeline: dlq retry cancelled")
		}
		if !e.CanRetry() {
			continue
		}
		sum.Attempted++

		rec := e.Record
		_, sinkErr := p.sink.UpsertLeakData(ctx, &rec)
		if sinkErr == nil {
			if err := p.store.RemoveDLQ(ctx, e.ID); err != nil {
				return sum, eris.Wrapf(err, "pipeline: remove dlq entry %s", e.ID)
			}
			sum.Succeeded++
			zap.L().Info("pipeline: dlq entry persisted", zap.String("id", e.ID), zap.Int64("leak_id", e.LeakID))
			continue
		}

		sum.Failed++
		next := e.NextBackoff(time.Now())
		zap.L().Warn("pipeline: dlq retry failed",
			zap.String("id", e.ID),
			zap.Int("retry_count", e.RetryCount+1),
			zap.Time("next_retry_at", next),
			zap.Error(sinkErr),
		)
		if err := p.store.IncrementDLQRetry(ctx, e.ID, next, sinkErr.Error()); err != nil {
			return sum, eris.Wrapf(err, "pipeline: reschedule dlq entry %s", e.ID)
		}
	}
	return sum, nil
}
