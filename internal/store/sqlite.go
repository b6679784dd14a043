package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/credleak/internal/db"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var upsertLeakDataSQLite = mustBuild(leakDataUpsert, db.SQLite)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	sdb.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

// Migrate creates the schema. Every statement is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	names, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/sqlite/" + name)
		if err != nil {
			return eris.Wrapf(err, "sqlite: read migration %s", name)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", name)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Leaks ---

func (s *SQLiteStore) CreateLeak(ctx context.Context, l *model.Leak) (int64, error) {
	if l.IngestionTS.IsZero() {
		l.IngestionTS = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO leak (`+leakColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		l.TicketID, l.Summary, l.ReporterName, l.SourceName, l.BreachTS, l.SourcePublishTS, l.IngestionTS,
	).Scan(&l.ID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert leak")
	}
	return l.ID, nil
}

func (s *SQLiteStore) UpdateLeak(ctx context.Context, l *model.Leak) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leak SET ticket_id = ?, summary = ?, reporter_name = ?, source_name = ?,
		 breach_ts = ?, source_publish_ts = ? WHERE id = ?`,
		l.TicketID, l.Summary, l.ReporterName, l.SourceName, l.BreachTS, l.SourcePublishTS, l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update leak %d", l.ID)
	}
	return checkRowsAffected(res, "leak")
}

func (s *SQLiteStore) GetLeak(ctx context.Context, id int64) (*model.Leak, error) {
	var l model.Leak
	err := s.db.QueryRowContext(ctx, `SELECT id, `+leakColumns+` FROM leak WHERE id = ?`, id).Scan(leakDest(&l)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get leak %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get leak %d", id)
	}
	return &l, nil
}

func (s *SQLiteStore) FindLeak(ctx context.Context, ticketID, summary string) (*model.Leak, error) {
	var l model.Leak
	err := s.db.QueryRowContext(ctx,
		`SELECT id, `+leakColumns+` FROM leak WHERE ticket_id = ? AND summary = ? ORDER BY id LIMIT 1`,
		ticketID, summary,
	).Scan(leakDest(&l)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: find leak")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find leak")
	}
	return &l, nil
}

func (s *SQLiteStore) ListLeaks(ctx context.Context, f model.LeakFilter) ([]model.Leak, error) {
	w, tail := leakWhere(f, db.SQLite)
	rows, err := s.db.QueryContext(ctx, `SELECT id, `+leakColumns+` FROM leak`+w.SQL()+tail, w.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leaks")
	}
	defer rows.Close() //nolint:errcheck

	var leaks []model.Leak
	for rows.Next() {
		var l model.Leak
		if err := rows.Scan(leakDest(&l)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan leak")
		}
		leaks = append(leaks, l)
	}
	return leaks, eris.Wrap(rows.Err(), "sqlite: list leaks iterate")
}

func (s *SQLiteStore) ListReporters(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "reporter_name")
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "source_name")
}

func (s *SQLiteStore) distinct(ctx context.Context, col string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT `+col+` FROM leak WHERE `+col+` <> '' ORDER BY `+col)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct %s", col)
	}
	defer rows.Close() //nolint:errcheck

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", col)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: distinct %s iterate", col)
}

// --- Leak data ---

func (s *SQLiteStore) UpsertLeakData(ctx context.Context, rec *model.Record) (int64, error) {
	creds, reportTo, err := encodeLists(&rec.CredentialType, &rec.ReportTo)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, upsertLeakDataSQLite, leakDataArgs(rec, creds, reportTo)...).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert leak data")
	}
	return id, nil
}

func (s *SQLiteStore) UpdateLeakData(ctx context.Context, ld *model.LeakData) error {
	creds, reportTo, err := encodeLists(&ld.CredentialType, &ld.ReportTo)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE leak_data SET (`+strings.Join(leakDataColumns, ", ")+`) = (`+
		db.Placeholders(len(leakDataColumns), 1, db.SQLite)+`) WHERE id = ?`,
		append(leakDataArgs(&ld.Record, creds, reportTo), ld.ID)...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update leak data %d", ld.ID)
	}
	return checkRowsAffected(res, "leak data")
}

func (s *SQLiteStore) GetLeakData(ctx context.Context, id int64) (*model.LeakData, error) {
	ld, err := scanLeakDataSQLite(s.db.QueryRowContext(ctx, `SELECT `+selectLeakData+` FROM leak_data WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get leak data %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get leak data %d", id)
	}
	return ld, nil
}

func (s *SQLiteStore) ListLeakData(ctx context.Context, f model.LeakDataFilter) ([]model.LeakData, error) {
	w := leakDataWhere(f, db.SQLite)
	tail := " ORDER BY id LIMIT " + w.Bind(limitOrDefault(f.Limit))
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectLeakData+` FROM leak_data`+w.SQL()+tail, w.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leak data")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LeakData
	for rows.Next() {
		ld, err := scanLeakDataSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan leak data")
		}
		out = append(out, *ld)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leak data iterate")
}

func (s *SQLiteStore) CountLeakData(ctx context.Context, f model.LeakDataFilter) (int, error) {
	w := leakDataWhere(f, db.SQLite)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leak_data`+w.SQL(), w.Args()...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leak data")
}

func (s *SQLiteStore) IncrementSeen(ctx context.Context, rec *model.Record) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE leak_data SET count_seen = count_seen + 1
		 WHERE leak_id = ? AND email = ? AND password = ? AND domain = ? RETURNING id`,
		rec.LeakID, rec.Email, rec.Password, rec.Domain,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: increment seen")
	}
	return id, true, nil
}

func (s *SQLiteStore) CredentialExists(ctx context.Context, email, password string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM leak_data WHERE email = ? AND password = ?)`,
		email, password,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: credential exists")
}

// encodeLists stores the list columns as JSON arrays.
func encodeLists(creds *[]model.CredentialType, reportTo *[]string) (string, string, error) {
	c, err := json.Marshal(credTypesToStrings(*creds))
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal credential_type")
	}
	r, err := json.Marshal(nonNil(*reportTo))
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal report_to")
	}
	return string(c), string(r), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLeakDataSQLite(row scannable) (*model.LeakData, error) {
	var ld model.LeakData
	var credsJSON, reportToJSON string
	if err := row.Scan(leakDataDest(&ld, &credsJSON, &reportToJSON)...); err != nil {
		return nil, err
	}
	var creds, reportTo []string
	if err := json.Unmarshal([]byte(credsJSON), &creds); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal credential_type")
	}
	if err := json.Unmarshal([]byte(reportToJSON), &reportTo); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report_to")
	}
	ld.CredentialType = stringsToCredTypes(creds)
	if len(reportTo) > 0 {
		ld.ReportTo = reportTo
	}
	return &ld, nil
}

func checkRowsAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s", entity)
	}
	return nil
}

// --- Dead letter queue ---

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq record")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, leak_id, record, error, error_type, failed_stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, failed_stage = excluded.failed_stage,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.LeakID, string(recordJSON), entry.Error, entry.ErrorType,
		string(entry.FailedStage), entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	w := db.NewWhere(db.SQLite)
	if filter.DueOnly {
		w.Add("next_retry_at <= ? AND retry_count < max_retries", time.Now().UTC())
	}
	if filter.ErrorType != "" {
		w.Add("error_type = ?", filter.ErrorType)
	}
	tail := " ORDER BY next_retry_at ASC LIMIT " + w.Bind(limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, leak_id, record, error, error_type, failed_stage, retry_count, max_retries,
		 next_retry_at, created_at, last_failed_at FROM dead_letter_queue`+w.SQL()+tail,
		w.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var recordJSON, stage string
		if err := rows.Scan(&e.ID, &e.LeakID, &recordJSON, &e.Error, &e.ErrorType,
			&stage, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.FailedStage = model.Stage(stage)
		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq record")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq entry")
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}
