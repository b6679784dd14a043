package model

import (
	"strings"
)

// CredentialType classifies what a leaked credential grants access to.
type CredentialType string

const (
	CredentialExternal CredentialType = "External"
	CredentialProxy    CredentialType = "Proxy"
	CredentialEULogin  CredentialType = "EU Login"
	CredentialDomain   CredentialType = "Domain"
	CredentialSECEM    CredentialType = "SECEM"
)

// Valid reports whether c is one of the known credential types.
func (c CredentialType) Valid() bool {
	switch c {
	case CredentialExternal, CredentialProxy, CredentialEULogin, CredentialDomain, CredentialSECEM:
		return true
	default:
		return false
	}
}

// Record is the canonical per-row shape every pipeline stage operates on
// (the "internal data format"). Enrichment flags are pointers so that an
// explicitly pre-set value can be told apart from an unset one.
type Record struct {
	LeakID                 *int64           `json:"leak_id"`
	Email                  string           `json:"email"`
	Password               string           `json:"password"`
	PasswordPlain          string           `json:"password_plain,omitempty"`
	PasswordHashed         string           `json:"password_hashed,omitempty"`
	HashAlgo               string           `json:"hash_algo,omitempty"`
	TicketID               string           `json:"ticket_id,omitempty"`
	EmailVerified          bool             `json:"email_verified"`
	PasswordVerifiedOK     bool             `json:"password_verified_ok"`
	IP                     string           `json:"ip,omitempty"`
	Domain                 string           `json:"domain,omitempty"`
	TargetDomain           string           `json:"target_domain,omitempty"`
	Browser                string           `json:"browser,omitempty"`
	MalwareName            string           `json:"malware_name,omitempty"`
	InfectedMachine        string           `json:"infected_machine,omitempty"`
	DG                     string           `json:"dg,omitempty"`
	UserID                 string           `json:"user_id,omitempty"`
	ExternalUser           *bool            `json:"external_user"`
	IsVIP                  *bool            `json:"is_vip"`
	IsActiveAccount        *bool            `json:"is_active_account"`
	CredentialType         []CredentialType `json:"credential_type,omitempty"`
	ReportTo               []string         `json:"report_to,omitempty"`
	CountSeen              int              `json:"count_seen"`
	OriginalLine           string           `json:"original_line,omitempty"`
	ErrorMsg               *string          `json:"error_msg"`
	Notify                 bool             `json:"notify"`
	NeedsHumanIntervention bool             `json:"needs_human_intervention"`

	// Row is the 1-based data row number in the source file. Not persisted.
	Row int `json:"row,omitempty"`
}

// NewRecord returns a record with the defaults every fresh row starts from.
func NewRecord(row int) *Record {
	return &Record{Row: row, CountSeen: 1}
}

// Quarantine marks the record as needing manual review. A quarantined record
// never reaches storage.
func (r *Record) Quarantine(msg string) {
	r.Notify = false
	r.NeedsHumanIntervention = true
	r.ErrorMsg = &msg
}

// Quarantined reports whether the record has been taken out of the
// automatic flow.
func (r *Record) Quarantined() bool {
	return r.NeedsHumanIntervention
}

// EmailDomain returns the lowercased part of the email after the last "@".
func (r *Record) EmailDomain() string {
	at := strings.LastIndexByte(r.Email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(r.Email[at+1:]))
}

// Flag returns a pointer to b, for setting tri-state enrichment fields.
func Flag(b bool) *bool {
	return &b
}

// IsTrue reports whether a tri-state flag is set and true.
func IsTrue(b *bool) bool {
	return b != nil && *b
}

// MaskPassword hides all but the first and the last two characters of a
// password so it can appear in logs and reports.
func MaskPassword(p string) string {
	runes := []rune(p)
	if len(runes) < 4 {
		return "****"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-3) + string(runes[len(runes)-2:])
}
