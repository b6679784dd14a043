// Package store persists leaks, leak data and the dead letter queue in
// Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/db"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/resilience"
)

// ErrNotFound is returned when a looked-up leak, record or DLQ entry does
// not exist.
var ErrNotFound = eris.New("store: not found")

// defaultListLimit caps listings that do not set a limit.
const defaultListLimit = 1000

// Store defines the persistence interface for the ingestion pipeline and
// the API.
type Store interface {
	// Leaks
	CreateLeak(ctx context.Context, leak *model.Leak) (int64, error)
	UpdateLeak(ctx context.Context, leak *model.Leak) error
	GetLeak(ctx context.Context, id int64) (*model.Leak, error)
	FindLeak(ctx context.Context, ticketID, summary string) (*model.Leak, error)
	ListLeaks(ctx context.Context, filter model.LeakFilter) ([]model.Leak, error)
	ListReporters(ctx context.Context) ([]string, error)
	ListSources(ctx context.Context) ([]string, error)

	// Leak data
	UpsertLeakData(ctx context.Context, rec *model.Record) (int64, error)
	UpdateLeakData(ctx context.Context, ld *model.LeakData) error
	GetLeakData(ctx context.Context, id int64) (*model.LeakData, error)
	ListLeakData(ctx context.Context, filter model.LeakDataFilter) ([]model.LeakData, error)
	CountLeakData(ctx context.Context, filter model.LeakDataFilter) (int, error)
	IncrementSeen(ctx context.Context, rec *model.Record) (id int64, found bool, err error)
	CredentialExists(ctx context.Context, email, password string) (bool, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// leakColumns are the leak columns after id, in scan order.
const leakColumns = "ticket_id, summary, reporter_name, source_name, breach_ts, source_publish_ts, ingestion_ts"

// leakDataColumns are the persisted record fields, in argument order.
var leakDataColumns = []string{
	"leak_id", "email", "password", "password_plain", "password_hashed", "hash_algo",
	"ticket_id", "email_verified", "password_verified_ok", "ip", "domain",
	"target_domain", "browser", "malware_name", "infected_machine", "dg", "user_id",
	"external_user", "is_vip", "is_active_account", "credential_type", "report_to",
	"count_seen", "original_line", "error_msg", "notify", "needs_human_intervention",
}

// leakDataKey is the unique constraint of leak_data.
var leakDataKey = []string{"leak_id", "email", "password", "domain"}

var leakDataUpsert = db.UpsertConfig{
	Table:         "leak_data",
	Columns:       leakDataColumns,
	ConflictKeys:  leakDataKey,
	IncrementCols: []string{"count_seen"},
	Returning:     []string{"id"},
}

// selectLeakData is the column list for reading leak_data rows.
var selectLeakData = func() string {
	s := "id"
	for _, c := range leakDataColumns {
		s += ", " + c
	}
	return s
}()

// leakDataArgs returns the insert arguments for rec. creds and reportTo
// carry the dialect-specific encoding of the list columns.
func leakDataArgs(r *model.Record, creds, reportTo any) []any {
	return []any{
		r.LeakID, r.Email, r.Password, r.PasswordPlain, r.PasswordHashed, r.HashAlgo,
		r.TicketID, r.EmailVerified, r.PasswordVerifiedOK, r.IP, r.Domain,
		r.TargetDomain, r.Browser, r.MalwareName, r.InfectedMachine, r.DG, r.UserID,
		r.ExternalUser, r.IsVIP, r.IsActiveAccount, creds, reportTo,
		r.CountSeen, r.OriginalLine, r.ErrorMsg, r.Notify, r.NeedsHumanIntervention,
	}
}

// leakDataDest returns scan destinations matching selectLeakData.
func leakDataDest(ld *model.LeakData, creds, reportTo any) []any {
	r := &ld.Record
	return []any{
		&ld.ID,
		&r.LeakID, &r.Email, &r.Password, &r.PasswordPlain, &r.PasswordHashed, &r.HashAlgo,
		&r.TicketID, &r.EmailVerified, &r.PasswordVerifiedOK, &r.IP, &r.Domain,
		&r.TargetDomain, &r.Browser, &r.MalwareName, &r.InfectedMachine, &r.DG, &r.UserID,
		&r.ExternalUser, &r.IsVIP, &r.IsActiveAccount, creds, reportTo,
		&r.CountSeen, &r.OriginalLine, &r.ErrorMsg, &r.Notify, &r.NeedsHumanIntervention,
	}
}

func leakDest(l *model.Leak) []any {
	return []any{&l.ID, &l.TicketID, &l.Summary, &l.ReporterName, &l.SourceName,
		&l.BreachTS, &l.SourcePublishTS, &l.IngestionTS}
}

// leakWhere builds the filter of a leak listing.
func leakWhere(f model.LeakFilter, d db.Dialect) (*db.Where, string) {
	w := db.NewWhere(d)
	if f.TicketID != "" {
		w.Add("ticket_id = ?", f.TicketID)
	}
	if f.Summary != "" {
		w.Add("summary = ?", f.Summary)
	}
	if f.ReporterName != "" {
		w.Add("reporter_name = ?", f.ReporterName)
	}
	if f.SourceName != "" {
		w.Add("source_name = ?", f.SourceName)
	}
	return w, " ORDER BY id LIMIT " + w.Bind(limitOrDefault(f.Limit))
}

// leakDataWhere builds the filter of a leak_data lookup. Text matches are
// case-insensitive.
func leakDataWhere(f model.LeakDataFilter, d db.Dialect) *db.Where {
	w := db.NewWhere(d)
	if f.LeakID != nil {
		w.Add("leak_id = ?", *f.LeakID)
	}
	if f.TicketID != "" {
		w.Add("(ticket_id = ? OR leak_id IN (SELECT id FROM leak WHERE ticket_id = ?))", f.TicketID, f.TicketID)
	}
	if f.Email != "" {
		w.Add("lower(email) = lower(?)", f.Email)
	}
	if f.Domain != "" {
		w.Add("lower(domain) = lower(?)", f.Domain)
	}
	if f.Password != "" {
		if f.AnyPassword {
			w.Add("(lower(password) = lower(?) OR lower(password_plain) = lower(?) OR lower(password_hashed) = lower(?))",
				f.Password, f.Password, f.Password)
		} else {
			w.Add("lower(password) = lower(?)", f.Password)
		}
	}
	return w
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func credTypesToStrings(ct []model.CredentialType) []string {
	out := make([]string, len(ct))
	for i, c := range ct {
		out[i] = string(c)
	}
	return out
}

func stringsToCredTypes(s []string) []model.CredentialType {
	if len(s) == 0 {
		return nil
	}
	out := make([]model.CredentialType, len(s))
	for i, c := range s {
		out[i] = model.CredentialType(c)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
