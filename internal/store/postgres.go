package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/db"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

var upsertLeakDataPG = mustBuild(leakDataUpsert, db.Postgres)

func mustBuild(cfg db.UpsertConfig, d db.Dialect) string {
	sql, err := db.BuildUpsert(cfg, d)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies pending schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Leaks ---

func (s *PostgresStore) CreateLeak(ctx context.Context, l *model.Leak) (int64, error) {
	if l.IngestionTS.IsZero() {
		l.IngestionTS = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO leak (`+leakColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		l.TicketID, l.Summary, l.ReporterName, l.SourceName, l.BreachTS, l.SourcePublishTS, l.IngestionTS,
	).Scan(&l.ID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert leak")
	}
	return l.ID, nil
}

func (s *PostgresStore) UpdateLeak(ctx context.Context, l *model.Leak) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leak SET ticket_id = $1, summary = $2, reporter_name = $3, source_name = $4,
		 breach_ts = $5, source_publish_ts = $6 WHERE id = $7`,
		l.TicketID, l.Summary, l.ReporterName, l.SourceName, l.BreachTS, l.SourcePublishTS, l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update leak %d", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update leak %d", l.ID)
	}
	return nil
}

func (s *PostgresStore) GetLeak(ctx context.Context, id int64) (*model.Leak, error) {
	var l model.Leak
	err := s.pool.QueryRow(ctx, `SELECT id, `+leakColumns+` FROM leak WHERE id = $1`, id).Scan(leakDest(&l)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get leak %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get leak %d", id)
	}
	return &l, nil
}

func (s *PostgresStore) FindLeak(ctx context.Context, ticketID, summary string) (*model.Leak, error) {
	var l model.Leak
	err := s.pool.QueryRow(ctx,
		`SELECT id, `+leakColumns+` FROM leak WHERE ticket_id = $1 AND summary = $2 ORDER BY id LIMIT 1`,
		ticketID, summary,
	).Scan(leakDest(&l)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "postgres: find leak")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find leak")
	}
	return &l, nil
}

func (s *PostgresStore) ListLeaks(ctx context.Context, f model.LeakFilter) ([]model.Leak, error) {
	w, tail := leakWhere(f, db.Postgres)
	rows, err := s.pool.Query(ctx, `SELECT id, `+leakColumns+` FROM leak`+w.SQL()+tail, w.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leaks")
	}
	defer rows.Close()

	var leaks []model.Leak
	for rows.Next() {
		var l model.Leak
		if err := rows.Scan(leakDest(&l)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan leak")
		}
		leaks = append(leaks, l)
	}
	return leaks, eris.Wrap(rows.Err(), "postgres: list leaks iterate")
}

func (s *PostgresStore) ListReporters(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "reporter_name")
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "source_name")
}

func (s *PostgresStore) distinct(ctx context.Context, col string) ([]string, error) {
	ident := pgx.Identifier{col}.Sanitize()
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT `+ident+` FROM leak WHERE `+ident+` <> '' ORDER BY `+ident)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: distinct %s", col)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", col)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: distinct %s iterate", col)
}

// --- Leak data ---

func (s *PostgresStore) UpsertLeakData(ctx context.Context, rec *model.Record) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertLeakDataPG,
		leakDataArgs(rec, credTypesToStrings(rec.CredentialType), nonNil(rec.ReportTo))...,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert leak data")
	}
	return id, nil
}

func (s *PostgresStore) UpdateLeakData(ctx context.Context, ld *model.LeakData) error {
	args := append(leakDataArgs(&ld.Record, credTypesToStrings(ld.CredentialType), nonNil(ld.ReportTo)), ld.ID)
	tag, err := s.pool.Exec(ctx, `UPDATE leak_data SET (`+strings.Join(leakDataColumns, ", ")+`) = (`+
		db.Placeholders(len(leakDataColumns), 1, db.Postgres)+`) WHERE id = `+
		db.Placeholders(1, len(leakDataColumns)+1, db.Postgres), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update leak data %d", ld.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update leak data %d", ld.ID)
	}
	return nil
}

func (s *PostgresStore) GetLeakData(ctx context.Context, id int64) (*model.LeakData, error) {
	ld, err := scanLeakDataPG(s.pool.QueryRow(ctx, `SELECT `+selectLeakData+` FROM leak_data WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get leak data %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get leak data %d", id)
	}
	return ld, nil
}

func (s *PostgresStore) ListLeakData(ctx context.Context, f model.LeakDataFilter) ([]model.LeakData, error) {
	w := leakDataWhere(f, db.Postgres)
	tail := " ORDER BY id LIMIT " + w.Bind(limitOrDefault(f.Limit))
	rows, err := s.pool.Query(ctx, `SELECT `+selectLeakData+` FROM leak_data`+w.SQL()+tail, w.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leak data")
	}
	defer rows.Close()

	var out []model.LeakData
	for rows.Next() {
		ld, err := scanLeakDataPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan leak data")
		}
		out = append(out, *ld)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leak data iterate")
}

func (s *PostgresStore) CountLeakData(ctx context.Context, f model.LeakDataFilter) (int, error) {
	w := leakDataWhere(f, db.Postgres)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leak_data`+w.SQL(), w.Args()...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leak data")
}

func (s *PostgresStore) IncrementSeen(ctx context.Context, rec *model.Record) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`UPDATE leak_data SET count_seen = count_seen + 1
		 WHERE leak_id = $1 AND email = $2 AND password = $3 AND domain = $4 RETURNING id`,
		rec.LeakID, rec.Email, rec.Password, rec.Domain,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: increment seen")
	}
	return id, true, nil
}

func (s *PostgresStore) CredentialExists(ctx context.Context, email, password string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leak_data WHERE email = $1 AND password = $2)`,
		email, password,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: credential exists")
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanLeakDataPG(row pgScanner) (*model.LeakData, error) {
	var ld model.LeakData
	var creds, reportTo []string
	if err := row.Scan(leakDataDest(&ld, &creds, &reportTo)...); err != nil {
		return nil, err
	}
	ld.CredentialType = stringsToCredTypes(creds)
	if len(reportTo) > 0 {
		ld.ReportTo = reportTo
	}
	return &ld, nil
}

// --- Dead letter queue ---

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq record")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, leak_id, record, error, error_type, failed_stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, failed_stage = $6, retry_count = $7,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.LeakID, recordJSON, entry.Error, entry.ErrorType,
		string(entry.FailedStage), entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	w := db.NewWhere(db.Postgres)
	if filter.DueOnly {
		w.Add("next_retry_at <= now() AND retry_count < max_retries")
	}
	if filter.ErrorType != "" {
		w.Add("error_type = ?", filter.ErrorType)
	}
	tail := " ORDER BY next_retry_at ASC LIMIT " + w.Bind(limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx,
		`SELECT id, leak_id, record, error, error_type, failed_stage, retry_count, max_retries,
		 next_retry_at, created_at, last_failed_at FROM dead_letter_queue`+w.SQL()+tail,
		w.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var recordJSON []byte
		var stage string
		if err := rows.Scan(&e.ID, &e.LeakID, &recordJSON, &e.Error, &e.ErrorType,
			&stage, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		e.FailedStage = model.Stage(stage)
		if err := json.Unmarshal(recordJSON, &e.Record); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq record")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: increment dlq retry %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
