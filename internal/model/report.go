package model

import "time"

// Outcome is the terminal state a record reaches in the ingestion pipeline.
type Outcome string

const (
	OutcomePersisted    Outcome = "persisted"
	OutcomeQuarantined  Outcome = "quarantined"
	OutcomeFilteredOut  Outcome = "filtered_out"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeFailed       Outcome = "failed"
)

// Stage names the pipeline step at which a record left the flow.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageFilter    Stage = "filter"
	StageDedup     Stage = "dedup"
	StageEnrich    Stage = "enrich"
	StageSink      Stage = "sink"
)

// Counts aggregates terminal outcomes for one ingestion run. Unprocessed is
// only non-zero when the run was cancelled part way through.
type Counts struct {
	Total        int `json:"total"`
	Persisted    int `json:"persisted"`
	Quarantined  int `json:"quarantined"`
	FilteredOut  int `json:"filtered_out"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
	Unprocessed  int `json:"unprocessed"`
}

// Accounted returns the number of rows that reached a terminal state.
func (c Counts) Accounted() int {
	return c.Persisted + c.Quarantined + c.FilteredOut + c.Deduplicated + c.Failed
}

// Add records one terminal outcome.
func (c *Counts) Add(o Outcome) {
	switch o {
	case OutcomePersisted:
		c.Persisted++
	case OutcomeQuarantined:
		c.Quarantined++
	case OutcomeFilteredOut:
		c.FilteredOut++
	case OutcomeDeduplicated:
		c.Deduplicated++
	case OutcomeFailed:
		c.Failed++
	}
}

// RowError describes a row that failed for operational reasons. It never
// carries credential values.
type RowError struct {
	Row   int    `json:"row"`
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// ImportReport is the result of ingesting one file.
type ImportReport struct {
	LeakID      int64         `json:"leak_id"`
	Source      string        `json:"source"`
	Counts      Counts        `json:"counts"`
	Persisted   []Record      `json:"persisted"`
	Quarantined []Record      `json:"quarantined"`
	Failed      []RowError    `json:"failed,omitempty"`
	Duration    time.Duration `json:"duration"`
}
