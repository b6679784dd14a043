package model

import "time"

// SourceSpyCloud is the source name given to leaks created by a SpyCloud import.
const SourceSpyCloud = "SpyCloud"

// Leak is the metadata of one ingested dump.
type Leak struct {
	ID              int64      `json:"id"`
	TicketID        string     `json:"ticket_id"`
	Summary         string     `json:"summary"`
	ReporterName    string     `json:"reporter_name,omitempty"`
	SourceName      string     `json:"source_name,omitempty"`
	BreachTS        *time.Time `json:"breach_ts,omitempty"`
	SourcePublishTS *time.Time `json:"source_publish_ts,omitempty"`
	IngestionTS     time.Time  `json:"ingestion_ts"`
}

// LeakData is a credential record as stored, with its row id.
type LeakData struct {
	ID int64 `json:"id"`
	Record
}

// LeakFilter narrows leak listings. Empty fields match everything.
type LeakFilter struct {
	TicketID     string
	Summary      string
	ReporterName string
	SourceName   string
	Limit        int
}

// LeakDataFilter narrows credential lookups. Matching on Email, Password
// and Domain is case-insensitive. Password matches the password,
// password_plain or password_hashed column when AnyPassword is set.
type LeakDataFilter struct {
	LeakID      *int64
	TicketID    string
	Email       string
	Password    string
	Domain      string
	AnyPassword bool
	Limit       int
}
