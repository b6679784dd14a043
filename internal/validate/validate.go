// Package validate wraps go-playground/validator with English messages that
// use JSON field names, plus the custom tags leak data needs.
package validate

import (
	"net"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/model"
)

// DateLayouts are the timestamp formats accepted by the "leakdate" tag.
var DateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Validator validates structs and renders failures as readable messages.
type Validator struct {
	v     *validator.Validate
	trans ut.Translator
}

// FieldError is one failed rule, named by its JSON field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error collects every failed rule of one struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// New builds a validator with English translations, JSON tag names and the
// custom tags "iplist", "leakdate" and "credtype".
func New() *Validator {
	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	register(v, trans, "iplist", "{0} must be a comma-separated list of IP addresses", isIPList)
	register(v, trans, "leakdate", "{0} must be a date or timestamp", isLeakDate)
	register(v, trans, "credtype", "{0} must be a known credential type", isCredType)

	return &Validator{v: v, trans: trans}
}

// Struct validates s. Failures come back as *Error.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return eris.Wrap(err, "validate: struct")
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fe.Translate(val.trans)})
	}
	return out
}

// ParseDate parses a timestamp in any of DateLayouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("validate: unrecognized date %q", s)
}

// SplitIPs splits a comma-separated address list, dropping blanks.
func SplitIPs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func register(v *validator.Validate, trans ut.Translator, tag, text string, fn validator.Func) {
	_ = v.RegisterValidation(tag, fn)
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

func isIPList(fl validator.FieldLevel) bool {
	ips := SplitIPs(fl.Field().String())
	if len(ips) == 0 {
		return false
	}
	for _, ip := range ips {
		if net.ParseIP(ip) == nil {
			return false
		}
	}
	return true
}

func isLeakDate(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String())
	return err == nil
}

func isCredType(fl validator.FieldLevel) bool {
	return model.CredentialType(fl.Field().String()).Valid()
}
