package directory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/config"
	"github.com/sells-group/credleak/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestEntry_Active(t *testing.T) {
	assert.True(t, (&Entry{Status: "A"}).Active())
	assert.True(t, (&Entry{Status: " a "}).Active())
	assert.False(t, (&Entry{Status: "I"}).Active())
	assert.False(t, (&Entry{}).Active())
}

func TestStatic_Lookup(t *testing.T) {
	d := Static{"aaron@ec.europa.eu": {Group: "DIGIT", UserID: "aaronx", Status: "A"}}

	e, err := d.Lookup(context.Background(), "Aaron@EC.europa.eu")
	require.NoError(t, err)
	assert.Equal(t, "DIGIT", e.Group)

	_, err = d.Lookup(context.Background(), "nobody@ec.europa.eu")
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- LDAP ---

type fakeConn struct {
	bindErr   error
	searchErr error
	entries   []*ldap.Entry
	lastReq   *ldap.SearchRequest
	bound     bool
}

func (f *fakeConn) Bind(string, string) error {
	f.bound = true
	return f.bindErr
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.lastReq = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &ldap.SearchResult{Entries: f.entries}, nil
}

func newTestLDAP(t *testing.T, conn *fakeConn) *LDAP {
	t.Helper()
	l, err := NewLDAP(config.DirectoryConfig{
		URL:          "ldap://ldap.example.com:389",
		BindDN:       "cn=svc",
		BindPassword: "secret",
		BaseDN:       "o=example",
	})
	require.NoError(t, err)
	var closed bool
	l.dial = func(context.Context) (ldapConn, func(), error) {
		return conn, func() { closed = true }, nil
	}
	t.Cleanup(func() { assert.True(t, closed, "connection must be closed") })
	return l
}

func TestNewLDAP_RequiresURL(t *testing.T) {
	_, err := NewLDAP(config.DirectoryConfig{})
	require.Error(t, err)
}

func TestLDAP_BudgetCappedByDeadline(t *testing.T) {
	l, err := NewLDAP(config.DirectoryConfig{URL: "ldap://ldap.example.com:389", TimeoutSecs: 30})
	require.NoError(t, err)

	b, err := l.budget(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, b)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	b, err = l.budget(ctx)
	require.NoError(t, err)
	assert.Positive(t, b)
	assert.LessOrEqual(t, b, 200*time.Millisecond)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = l.budget(expired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = l.budget(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLDAP_DialHonoursExpiredDeadline(t *testing.T) {
	l, err := NewLDAP(config.DirectoryConfig{URL: "ldap://ldap.example.com:389", TimeoutSecs: 30})
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	start := time.Now()
	_, _, err = l.dialURL(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLDAP_Lookup(t *testing.T) {
	conn := &fakeConn{entries: []*ldap.Entry{
		ldap.NewEntry("uid=aaron,o=example", map[string][]string{
			"dg":           {"DIGIT", "HR"},
			"ecMoniker":    {"aaronx"},
			"recordStatus": {"A"},
		}),
	}}
	l := newTestLDAP(t, conn)

	e, err := l.Lookup(context.Background(), "aaron@ec.europa.eu")
	require.NoError(t, err)
	assert.Equal(t, &Entry{Group: "DIGIT", UserID: "aaronx", Status: "A"}, e)
	assert.True(t, conn.bound)
	assert.Equal(t, "(mail=aaron@ec.europa.eu)", conn.lastReq.Filter)
	assert.Equal(t, "o=example", conn.lastReq.BaseDN)
	assert.Contains(t, conn.lastReq.Attributes, "ecMoniker")
}

func TestLDAP_LookupNotFound(t *testing.T) {
	l := newTestLDAP(t, &fakeConn{})
	_, err := l.Lookup(context.Background(), "ghost@example.com")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestLDAP_NetworkErrorIsTransient(t *testing.T) {
	l := newTestLDAP(t, &fakeConn{searchErr: ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset"))})
	_, err := l.Lookup(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestLDAP_BindFailureIsPermanent(t *testing.T) {
	l := newTestLDAP(t, &fakeConn{bindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))})
	_, err := l.Lookup(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "directory: bind")
}

func TestLDAP_CancelledContext(t *testing.T) {
	l, err := NewLDAP(config.DirectoryConfig{URL: "ldap://unused"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lookup(ctx, "a@example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchFilter_Escapes(t *testing.T) {
	assert.Equal(t, "(mail=a@example.com)", searchFilter("a@example.com"))
	assert.Equal(t, `(mail=\2a\29\28uid=\2a)`, searchFilter("*)(uid=*"))
}

// --- Resilient ---

type countingDir struct {
	calls int
	errs  []error
	entry *Entry
}

func (c *countingDir) Lookup(context.Context, string) (*Entry, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return c.entry, nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestResilient_RetriesTransient(t *testing.T) {
	next := &countingDir{
		errs:  []error{resilience.NewTransientError(errors.New("busy"), 0)},
		entry: &Entry{Group: "DIGIT"},
	}
	r := NewResilient(next, nil, fastRetry(), resilience.CircuitBreakerConfig{FailureThreshold: 2})

	e, err := r.Lookup(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "DIGIT", e.Group)
	assert.Equal(t, 2, next.calls)
}

func TestResilient_NotFoundDoesNotTrip(t *testing.T) {
	next := &countingDir{errs: []error{ErrNotFound, ErrNotFound, ErrNotFound}}
	r := NewResilient(next, nil, fastRetry(), resilience.CircuitBreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := r.Lookup(context.Background(), "a@example.com")
		assert.True(t, eris.Is(err, ErrNotFound))
	}
	assert.Equal(t, 3, next.calls, "not found is neither retried nor tripping")
	assert.Equal(t, resilience.CircuitClosed, r.State())
}

func TestResilient_OpensCircuit(t *testing.T) {
	perm := errors.New("invalid credentials")
	next := &countingDir{errs: []error{perm, perm, perm}}
	r := NewResilient(next, nil, fastRetry(), resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	_, _ = r.Lookup(context.Background(), "a@example.com")
	_, _ = r.Lookup(context.Background(), "a@example.com")
	_, err := r.Lookup(context.Background(), "a@example.com")

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
}

func TestResilient_RateLimiterHonoursContext(t *testing.T) {
	next := &countingDir{entry: &Entry{}}
	limiter := NewLimiter(0.001, 1)
	r := NewResilient(next, limiter, fastRetry(), resilience.CircuitBreakerConfig{})

	_, err := r.Lookup(context.Background(), "a@example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Lookup(ctx, "a@example.com")
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 5))
	l := NewLimiter(10, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

// --- Cache ---

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func TestCached_Hit(t *testing.T) {
	ctx := context.Background()
	data, _ := json.Marshal(Entry{Group: "DIGIT", Status: "A"})

	rc := &mockRedis{}
	rc.On("Get", ctx, "credleak:directory:aaron@example.com").Return(redis.NewStringResult(string(data), nil))
	next := &countingDir{}

	e, err := NewCached(next, rc, time.Hour).Lookup(ctx, "Aaron@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "DIGIT", e.Group)
	assert.Equal(t, 0, next.calls)
	rc.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCached_MissStores(t *testing.T) {
	ctx := context.Background()
	key := "credleak:directory:aaron@example.com"

	rc := &mockRedis{}
	rc.On("Get", ctx, key).Return(redis.NewStringResult("", redis.Nil))
	rc.On("Set", ctx, key, mock.Anything, time.Hour).Return(redis.NewStatusResult("OK", nil))
	next := &countingDir{entry: &Entry{Group: "HR"}}

	e, err := NewCached(next, rc, time.Hour).Lookup(ctx, "aaron@example.com")
	require.NoError(t, err)
	assert.Equal(t, "HR", e.Group)
	assert.Equal(t, 1, next.calls)
	rc.AssertExpectations(t)
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	key := "credleak:directory:a@example.com"

	rc := &mockRedis{}
	rc.On("Get", ctx, key).Return(redis.NewStringResult("", errors.New("dial tcp: connection refused")))
	rc.On("Set", ctx, key, mock.Anything, 24*time.Hour).Return(redis.NewStatusResult("", errors.New("dial tcp: connection refused")))
	next := &countingDir{entry: &Entry{Group: "HR"}}

	e, err := NewCached(next, rc, 0).Lookup(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "HR", e.Group)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	rc := &mockRedis{}
	rc.On("Get", ctx, mock.Anything).Return(redis.NewStringResult("", redis.Nil))
	next := &countingDir{errs: []error{ErrNotFound}}

	_, err := NewCached(next, rc, time.Hour).Lookup(ctx, "a@example.com")
	assert.True(t, eris.Is(err, ErrNotFound))
	rc.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	require.Error(t, err)

	c, err := NewRedisClient("redis://localhost:6379/0")
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
