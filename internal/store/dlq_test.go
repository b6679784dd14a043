package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/resilience"
)

func dlqEntry(id, errType string, nextRetry time.Time) resilience.DLQEntry {
	now := time.Now()
	return resilience.DLQEntry{
		ID:           id,
		LeakID:       1,
		Record:       *testRecord(1, id+"@example.com", "pw"),
		Error:        "database is locked",
		ErrorType:    errType,
		FailedStage:  model.StageSink,
		MaxRetries:   3,
		NextRetryAt:  nextRetry,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

func TestSQLite_DLQ_EnqueueAndList(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-1", "transient", time.Now().Add(-time.Minute))))

	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "dlq-1", e.ID)
	assert.Equal(t, int64(1), e.LeakID)
	assert.Equal(t, "dlq-1@example.com", e.Record.Email)
	assert.Equal(t, []model.CredentialType{model.CredentialEULogin}, e.Record.CredentialType)
	assert.Equal(t, model.StageSink, e.FailedStage)
	assert.Equal(t, "transient", e.ErrorType)
}

func TestSQLite_DLQ_GeneratesID(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("", "permanent", time.Now())))
	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
}

func TestSQLite_DLQ_DueOnlyAndErrorType(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("due", "transient", time.Now().Add(-time.Minute))))
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("later", "transient", time.Now().Add(time.Hour))))
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("perm", "permanent", time.Now().Add(-time.Minute))))

	due, err := st.ListDLQ(ctx, resilience.DLQFilter{DueOnly: true, ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)

	all, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "later", all[2].ID, "ordered by next retry")
}

func TestSQLite_DLQ_ExhaustedNotDue(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	e := dlqEntry("spent", "transient", time.Now().Add(-time.Minute))
	e.RetryCount = 3
	require.NoError(t, st.EnqueueDLQ(ctx, e))

	due, err := st.ListDLQ(ctx, resilience.DLQFilter{DueOnly: true})
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLite_DLQ_IncrementRetry(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-1", "transient", time.Now())))

	next := time.Now().Add(2 * time.Hour)
	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-1", next, "still locked"))

	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "still locked", entries[0].Error)
	assert.WithinDuration(t, next, entries[0].NextRetryAt, time.Second)

	err = st.IncrementDLQRetry(ctx, "missing", next, "x")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_DLQ_RemoveAndCount(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("a", "transient", time.Now())))
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("b", "transient", time.Now())))

	n, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, st.RemoveDLQ(ctx, "a"))
	n, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_DLQ_EnqueueReplace(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	e := dlqEntry("dlq-1", "transient", time.Now())
	require.NoError(t, st.EnqueueDLQ(ctx, e))
	e.Error = "new error"
	e.RetryCount = 2
	require.NoError(t, st.EnqueueDLQ(ctx, e))

	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new error", entries[0].Error)
	assert.Equal(t, 2, entries[0].RetryCount)
}
