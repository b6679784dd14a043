package normalize

import (
	"strconv"
	"strings"

	"github.com/sells-group/credleak/internal/collect"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/validate"
)

// idfRow is a file already laid out in canonical column names.
type idfRow struct {
	Email              string   `json:"email" validate:"required,email"`
	Password           string   `json:"password" validate:"required"`
	PasswordPlain      string   `json:"password_plain"`
	PasswordHashed     string   `json:"password_hashed"`
	HashAlgo           string   `json:"hash_algo"`
	TicketID           string   `json:"ticket_id"`
	EmailVerified      string   `json:"email_verified" validate:"omitempty,boolean"`
	PasswordVerifiedOK string   `json:"password_verified_ok" validate:"omitempty,boolean"`
	IP                 string   `json:"ip" validate:"omitempty,ip"`
	Domain             string   `json:"domain"`
	TargetDomain       string   `json:"target_domain"`
	Browser            string   `json:"browser"`
	MalwareName        string   `json:"malware_name"`
	InfectedMachine    string   `json:"infected_machine"`
	DG                 string   `json:"dg"`
	UserID             string   `json:"user_id"`
	ExternalUser       string   `json:"external_user" validate:"omitempty,boolean"`
	IsVIP              string   `json:"is_vip" validate:"omitempty,boolean"`
	IsActiveAccount    string   `json:"is_active_account" validate:"omitempty,boolean"`
	CredentialType     []string `json:"credential_type" validate:"omitempty,dive,credtype"`
	ReportTo           []string `json:"report_to" validate:"omitempty,dive,email"`
	CountSeen          string   `json:"count_seen" validate:"omitempty,number"`
}

// IDF normalizes files whose header already uses canonical field names.
type IDF struct {
	v *validate.Validator
}

// NewIDF creates an IDF normalizer.
func NewIDF(v *validate.Validator) *IDF {
	return &IDF{v: v}
}

// Name implements Normalizer.
func (n *IDF) Name() string { return "idf" }

// Normalize implements Normalizer.
func (n *IDF) Normalize(t *collect.Table) []*model.Record {
	out := make([]*model.Record, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, n.normalizeRow(t, row))
	}
	return out
}

func (n *IDF) normalizeRow(t *collect.Table, row collect.Row) *model.Record {
	if msg := fieldCountError(t, row); msg != "" {
		return quarantined(row, msg)
	}

	in := idfRow{
		Email:              value(t, row, "email"),
		Password:           value(t, row, "password"),
		PasswordPlain:      value(t, row, "password_plain"),
		PasswordHashed:     value(t, row, "password_hashed"),
		HashAlgo:           value(t, row, "hash_algo"),
		TicketID:           value(t, row, "ticket_id"),
		EmailVerified:      value(t, row, "email_verified"),
		PasswordVerifiedOK: value(t, row, "password_verified_ok"),
		IP:                 value(t, row, "ip"),
		Domain:             value(t, row, "domain"),
		TargetDomain:       value(t, row, "target_domain"),
		Browser:            value(t, row, "browser"),
		MalwareName:        value(t, row, "malware_name"),
		InfectedMachine:    value(t, row, "infected_machine"),
		DG:                 value(t, row, "dg"),
		UserID:             value(t, row, "user_id"),
		ExternalUser:       value(t, row, "external_user"),
		IsVIP:              value(t, row, "is_vip"),
		IsActiveAccount:    value(t, row, "is_active_account"),
		CredentialType:     splitList(value(t, row, "credential_type")),
		ReportTo:           splitList(value(t, row, "report_to")),
		CountSeen:          value(t, row, "count_seen"),
	}
	if err := n.v.Struct(in); err != nil {
		return quarantined(row, err.Error())
	}

	rec := model.NewRecord(row.Num)
	rec.Email = in.Email
	rec.Password = in.Password
	rec.PasswordPlain = in.PasswordPlain
	rec.PasswordHashed = in.PasswordHashed
	rec.HashAlgo = in.HashAlgo
	rec.TicketID = in.TicketID
	rec.EmailVerified, _ = strconv.ParseBool(orFalse(in.EmailVerified))
	rec.PasswordVerifiedOK, _ = strconv.ParseBool(orFalse(in.PasswordVerifiedOK))
	rec.IP = in.IP
	rec.Domain = strings.ToLower(in.Domain)
	if rec.Domain == "" {
		rec.Domain = rec.EmailDomain()
	}
	rec.TargetDomain = in.TargetDomain
	rec.Browser = in.Browser
	rec.MalwareName = in.MalwareName
	rec.InfectedMachine = in.InfectedMachine
	rec.DG = in.DG
	rec.UserID = in.UserID
	rec.ExternalUser = flag(in.ExternalUser)
	rec.IsVIP = flag(in.IsVIP)
	rec.IsActiveAccount = flag(in.IsActiveAccount)
	for _, ct := range in.CredentialType {
		rec.CredentialType = append(rec.CredentialType, model.CredentialType(ct))
	}
	rec.ReportTo = in.ReportTo
	if n, err := strconv.Atoi(in.CountSeen); err == nil && n > 0 {
		rec.CountSeen = n
	}
	rec.OriginalLine = originalLine(row.Raw)
	return rec
}

func orFalse(s string) string {
	if s == "" {
		return "false"
	}
	return s
}

// flag parses an optional boolean cell. An empty cell stays unset so the
// enrichers can fill it.
func flag(s string) *bool {
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return model.Flag(b)
}

// splitList splits a list cell on commas or semicolons, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
