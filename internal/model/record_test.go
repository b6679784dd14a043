package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordDefaults(t *testing.T) {
	t.Parallel()

	r := NewRecord(7)
	assert.Equal(t, 7, r.Row)
	assert.Equal(t, 1, r.CountSeen)
	assert.False(t, r.Notify)
	assert.False(t, r.Quarantined())
	assert.Nil(t, r.IsVIP)
}

func TestRecordQuarantine(t *testing.T) {
	t.Parallel()

	r := NewRecord(1)
	r.Notify = true
	r.Quarantine("email is a required field")

	assert.True(t, r.Quarantined())
	assert.False(t, r.Notify)
	require.NotNil(t, r.ErrorMsg)
	assert.Equal(t, "email is a required field", *r.ErrorMsg)
}

func TestRecordEmailDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		want  string
	}{
		{"aaron@Example.COM", "example.com"},
		{"a@b@ec.europa.eu", "ec.europa.eu"},
		{"no-at-sign", ""},
		{"trailing@", ""},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			t.Parallel()
			r := &Record{Email: tt.email}
			assert.Equal(t, tt.want, r.EmailDomain())
		})
	}
}

func TestFlagHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTrue(Flag(true)))
	assert.False(t, IsTrue(Flag(false)))
	assert.False(t, IsTrue(nil))
}

func TestMaskPassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "****"},
		{"abc", "****"},
		{"abcd", "a*cd"},
		{"hunter22", "h*****22"},
		{"pässwort", "p*****rt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MaskPassword(tt.in))
		})
	}
}

func TestCredentialTypeValid(t *testing.T) {
	t.Parallel()

	for _, c := range []CredentialType{CredentialExternal, CredentialProxy, CredentialEULogin, CredentialDomain, CredentialSECEM} {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, CredentialType("Kerberos").Valid())
}

func TestCountsAdd(t *testing.T) {
	t.Parallel()

	var c Counts
	for _, o := range []Outcome{
		OutcomePersisted, OutcomePersisted, OutcomeQuarantined,
		OutcomeFilteredOut, OutcomeDeduplicated, OutcomeFailed,
	} {
		c.Add(o)
	}
	assert.Equal(t, 2, c.Persisted)
	assert.Equal(t, 1, c.Quarantined)
	assert.Equal(t, 1, c.FilteredOut)
	assert.Equal(t, 1, c.Deduplicated)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, 6, c.Accounted())
}
