package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/credleak/internal/model"
)

type sample struct {
	Email    string                 `json:"email" validate:"required,email"`
	Password string                 `json:"password" validate:"required"`
	IPs      string                 `json:"ip_addresses" validate:"omitempty,iplist"`
	Seen     string                 `json:"breach_date" validate:"omitempty,leakdate"`
	Types    []model.CredentialType `json:"credential_type" validate:"omitempty,dive,credtype"`
}

func TestStruct_Valid(t *testing.T) {
	v := New()
	err := v.Struct(sample{
		Email:    "aaron@example.com",
		Password: "hunter22",
		IPs:      "10.0.0.1, 2001:db8::1",
		Seen:     "2023-04-01",
		Types:    []model.CredentialType{model.CredentialEULogin},
	})
	assert.NoError(t, err)
}

func TestStruct_MessagesUseJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(sample{Password: ""})
	require.Error(t, err)

	verr, ok := err.(*Error)
	require.True(t, ok)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "email", verr.Fields[0].Field)
	assert.Equal(t, "email is a required field", verr.Fields[0].Message)
	assert.Equal(t, "password is a required field", verr.Fields[1].Message)
	assert.Equal(t, "email is a required field; password is a required field", err.Error())
}

func TestStruct_CustomTags(t *testing.T) {
	v := New()

	err := v.Struct(sample{Email: "a@example.com", Password: "x", IPs: "10.0.0.1,not-an-ip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ip_addresses must be a comma-separated list of IP addresses")

	err = v.Struct(sample{Email: "a@example.com", Password: "x", Seen: "last tuesday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breach_date must be a date or timestamp")

	err = v.Struct(sample{Email: "a@example.com", Password: "x", Types: []model.CredentialType{"Kerberos"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a known credential type")
}

func TestStruct_InvalidEmail(t *testing.T) {
	err := New().Struct(sample{Email: "not-an-address", Password: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must be a valid email address")
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2023-04-01", "2023-04-01 12:30:00", "2023-04-01T12:30:00Z", "2023-04-01T12:30:00+02:00"} {
		_, err := ParseDate(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseDate("Unknown")
	assert.Error(t, err)
}

func TestSplitIPs(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, SplitIPs(" 10.0.0.1 ,, 10.0.0.2 "))
	assert.Nil(t, SplitIPs(""))
}
