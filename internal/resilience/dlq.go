package resilience

import (
	"time"

	"github.com/sells-group/credleak/internal/model"
)

// DLQEntry is a record whose persistence failed and that can be retried.
type DLQEntry struct {
	ID           string       `json:"id"`
	LeakID       int64        `json:"leak_id"`
	Record       model.Record `json:"record"`
	Error        string       `json:"error"`
	ErrorType    string       `json:"error_type"` // "transient" or "permanent"
	FailedStage  model.Stage  `json:"failed_stage,omitempty"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	NextRetryAt  time.Time    `json:"next_retry_at"`
	CreatedAt    time.Time    `json:"created_at"`
	LastFailedAt time.Time    `json:"last_failed_at"`
}

// DLQFilter narrows DLQ listings.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "" for all
	DueOnly   bool   `json:"due_only,omitempty"`   // only entries whose next_retry_at has passed
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry reports whether the entry has retries left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NextBackoff returns when the entry should next be retried after a
// failure, doubling from one minute per attempt and capped at one hour.
func (e *DLQEntry) NextBackoff(now time.Time) time.Time {
	d := time.Minute << min(e.RetryCount, 6)
	return now.Add(min(d, time.Hour))
}

// ClassifyError returns "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
