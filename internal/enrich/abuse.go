package enrich

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/credleak/internal/model"
)

// Direct is the destination meaning "report to the affected address".
const Direct = "DIRECT"

// ErrAbuseConfig is returned for an unusable rule set.
var ErrAbuseConfig = eris.New("enrich: invalid abuse contact rules")

// AbuseRule maps a domain pattern to report destinations.
type AbuseRule struct {
	Pattern     string      `yaml:"pattern"`
	Destination Destination `yaml:"destination"`
}

// Destination is either DIRECT or a list of addresses. In YAML it may be
// written as a single string or as a sequence.
type Destination []string

// UnmarshalYAML accepts a scalar or a sequence.
func (d *Destination) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*d = Destination{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*d = list
		return nil
	default:
		return eris.Errorf("destination on line %d must be a string or a list", node.Line)
	}
}

// IsDirect reports whether the destination is the affected address itself.
func (d Destination) IsDirect() bool {
	return len(d) == 1 && strings.EqualFold(d[0], Direct)
}

// DefaultAbuseRules is used when no rules file is configured.
var DefaultAbuseRules = []AbuseRule{
	{Pattern: `example\.ec\.europa\.eu`, Destination: Destination{"ec-digit-csirc@ec.europa.eu"}},
	{Pattern: `.*\.ec\.europa\.eu`, Destination: Destination{Direct}},
	{Pattern: `.*`, Destination: Destination{Direct}},
}

type compiledRule struct {
	re   *regexp.Regexp
	dest Destination
}

// AbuseRouter picks who receives the report for a leaked address.
type AbuseRouter struct {
	rules []compiledRule
}

// NewAbuseRouter compiles rules. Patterns are anchored at both ends and
// tried top down. The last rule must be the ".*" → DIRECT catch-all.
func NewAbuseRouter(rules []AbuseRule) (*AbuseRouter, error) {
	if len(rules) == 0 {
		return nil, eris.Wrap(ErrAbuseConfig, "no rules")
	}
	last := rules[len(rules)-1]
	if last.Pattern != ".*" || !last.Destination.IsDirect() {
		return nil, eris.Wrap(ErrAbuseConfig, `last rule must be ".*" -> DIRECT`)
	}

	r := &AbuseRouter{rules: make([]compiledRule, 0, len(rules))}
	for i, rule := range rules {
		if len(rule.Destination) == 0 {
			return nil, eris.Wrapf(ErrAbuseConfig, "rule %d has no destination", i+1)
		}
		re, err := regexp.Compile(`^(?:` + rule.Pattern + `)$`)
		if err != nil {
			return nil, eris.Wrapf(ErrAbuseConfig, "rule %d: %v", i+1, err)
		}
		r.rules = append(r.rules, compiledRule{re: re, dest: rule.Destination})
	}
	return r, nil
}

// LoadAbuseRouter reads rules from a YAML file of the form
//
//	rules:
//	  - pattern: 'example\.ec\.europa\.eu'
//	    destination: [ec-digit-csirc@ec.europa.eu]
//	  - pattern: '.*'
//	    destination: DIRECT
//
// An empty path selects DefaultAbuseRules.
func LoadAbuseRouter(path string) (*AbuseRouter, error) {
	if path == "" {
		return NewAbuseRouter(DefaultAbuseRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: read abuse rules")
	}
	var doc struct {
		Rules []AbuseRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(ErrAbuseConfig, "parse %s: %v", path, err)
	}
	return NewAbuseRouter(doc.Rules)
}

// Route returns the report destinations for email. The result is never
// empty.
func (a *AbuseRouter) Route(email string) []string {
	domain := strings.ToLower(strings.TrimSpace(email[strings.LastIndexByte(email, '@')+1:]))
	for _, rule := range a.rules {
		if !rule.re.MatchString(domain) {
			continue
		}
		if rule.dest.IsDirect() {
			return []string{email}
		}
		return append([]string(nil), rule.dest...)
	}
	return []string{email}
}

// Name implements Enricher.
func (a *AbuseRouter) Name() string { return "abuse_router" }

// Enrich implements Enricher.
func (a *AbuseRouter) Enrich(_ context.Context, rec *model.Record) error {
	if len(rec.ReportTo) == 0 {
		rec.ReportTo = a.Route(rec.Email)
	}
	return nil
}
