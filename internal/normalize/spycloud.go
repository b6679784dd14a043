package normalize

import (
	"strings"

	"github.com/sells-group/credleak/internal/collect"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/validate"
)

// spyCloudRow is the SpyCloud breach export schema. Optional columns carry
// only format rules; unknown columns are ignored.
type spyCloudRow struct {
	BreachTitle         string `json:"breach_title" validate:"required"`
	SpyCloudPublishDate string `json:"spycloud_publish_date" validate:"omitempty,leakdate"`
	BreachDate          string `json:"breach_date" validate:"omitempty,leakdate"`
	Email               string `json:"email" validate:"required,email"`
	Domain              string `json:"domain" validate:"required"`
	Username            string `json:"username"`
	Password            string `json:"password" validate:"required"`
	Salt                string `json:"salt"`
	TargetDomain        string `json:"target_domain"`
	TargetURL           string `json:"target_url"`
	PasswordPlaintext   string `json:"password_plaintext"`
	Sighting            string `json:"sighting" validate:"omitempty,numeric"`
	Severity            string `json:"severity" validate:"omitempty,oneof=2 5 20 25"`
	Status              string `json:"status"`
	PasswordType        string `json:"password_type"`
	CCNumber            string `json:"cc_number"`
	InfectedPath        string `json:"infected_path"`
	InfectedMachineID   string `json:"infected_machine_id"`
	EmailDomain         string `json:"email_domain" validate:"required"`
	CCExpiration        string `json:"cc_expiration"`
	CCLastFour          string `json:"cc_last_four"`
	EmailUsername       string `json:"email_username" validate:"required"`
	UserBrowser         string `json:"user_browser"`
	InfectedTime        string `json:"infected_time" validate:"omitempty,leakdate"`
	IPAddresses         string `json:"ip_addresses" validate:"omitempty,iplist"`
}

// spyCloudColumns binds each schema field to its export column.
var spyCloudColumns = []struct {
	column string
	set    func(r *spyCloudRow, v string)
}{
	{"breach_title", func(r *spyCloudRow, v string) { r.BreachTitle = v }},
	{"spycloud_publish_date", func(r *spyCloudRow, v string) { r.SpyCloudPublishDate = v }},
	{"breach_date", func(r *spyCloudRow, v string) { r.BreachDate = v }},
	{"email", func(r *spyCloudRow, v string) { r.Email = v }},
	{"domain", func(r *spyCloudRow, v string) { r.Domain = v }},
	{"username", func(r *spyCloudRow, v string) { r.Username = v }},
	{"password", func(r *spyCloudRow, v string) { r.Password = v }},
	{"salt", func(r *spyCloudRow, v string) { r.Salt = v }},
	{"target_domain", func(r *spyCloudRow, v string) { r.TargetDomain = v }},
	{"target_url", func(r *spyCloudRow, v string) { r.TargetURL = v }},
	{"password_plaintext", func(r *spyCloudRow, v string) { r.PasswordPlaintext = v }},
	{"sighting", func(r *spyCloudRow, v string) { r.Sighting = v }},
	{"severity", func(r *spyCloudRow, v string) { r.Severity = v }},
	{"status", func(r *spyCloudRow, v string) { r.Status = v }},
	{"password_type", func(r *spyCloudRow, v string) { r.PasswordType = v }},
	{"cc_number", func(r *spyCloudRow, v string) { r.CCNumber = v }},
	{"infected_path", func(r *spyCloudRow, v string) { r.InfectedPath = v }},
	{"infected_machine_id", func(r *spyCloudRow, v string) { r.InfectedMachineID = v }},
	{"email_domain", func(r *spyCloudRow, v string) { r.EmailDomain = v }},
	{"cc_expiration", func(r *spyCloudRow, v string) { r.CCExpiration = v }},
	{"cc_last_four", func(r *spyCloudRow, v string) { r.CCLastFour = v }},
	{"email_username", func(r *spyCloudRow, v string) { r.EmailUsername = v }},
	{"user_browser", func(r *spyCloudRow, v string) { r.UserBrowser = v }},
	{"infected_time", func(r *spyCloudRow, v string) { r.InfectedTime = v }},
	{"ip_addresses", func(r *spyCloudRow, v string) { r.IPAddresses = v }},
}

// SpyCloud normalizes SpyCloud breach exports.
type SpyCloud struct {
	v *validate.Validator
}

// NewSpyCloud creates a SpyCloud normalizer.
func NewSpyCloud(v *validate.Validator) *SpyCloud {
	return &SpyCloud{v: v}
}

// Name implements Normalizer.
func (s *SpyCloud) Name() string { return "spycloud" }

// Normalize implements Normalizer.
func (s *SpyCloud) Normalize(t *collect.Table) []*model.Record {
	out := make([]*model.Record, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, s.normalizeRow(t, row))
	}
	return out
}

func (s *SpyCloud) normalizeRow(t *collect.Table, row collect.Row) *model.Record {
	if msg := fieldCountError(t, row); msg != "" {
		return quarantined(row, msg)
	}

	var in spyCloudRow
	for _, col := range spyCloudColumns {
		col.set(&in, value(t, row, col.column))
	}
	if strings.EqualFold(in.BreachDate, "unknown") {
		in.BreachDate = ""
	}

	if err := s.v.Struct(in); err != nil {
		return quarantined(row, err.Error())
	}

	rec := model.NewRecord(row.Num)
	rec.Email = in.Email
	rec.Password = in.Password
	rec.PasswordPlain = in.PasswordPlaintext
	rec.Domain = strings.ToLower(in.EmailDomain)
	rec.TargetDomain = in.TargetDomain
	rec.Browser = in.UserBrowser
	rec.InfectedMachine = in.InfectedMachineID
	if ips := validate.SplitIPs(in.IPAddresses); len(ips) > 0 {
		rec.IP = ips[0]
	}
	if pt := strings.ToLower(in.PasswordType); pt != "" && pt != "plaintext" {
		rec.HashAlgo = pt
		rec.PasswordHashed = in.Password
	}
	rec.OriginalLine = originalLine(row.Raw)
	return rec
}
