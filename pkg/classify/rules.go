package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mchurichi/logdeck/pkg/record"
)

// Predicate is one heuristic test against a record.
// Every clause that is set must hold; an empty predicate matches nothing.
type Predicate struct {
	Keywords []string    `toml:"keywords" yaml:"keywords" json:"keywords,omitempty"` // message contains any of these
	All      []string    `toml:"all" yaml:"all" json:"all,omitempty"`                // message contains every one of these
	Fields   []string    `toml:"fields" yaml:"fields" json:"fields,omitempty"`       // meta has all of these, non-empty
	Level    string      `toml:"level" yaml:"level" json:"level,omitempty"`
	Above    *Threshold  `toml:"above" yaml:"above" json:"above,omitempty"`
	Equals   *FieldValue `toml:"equals" yaml:"equals" json:"equals,omitempty"`
}

// Threshold matches when a numeric meta field is strictly greater than Value
type Threshold struct {
	Field string  `toml:"field" yaml:"field" json:"field"`
	Value float64 `toml:"value" yaml:"value" json:"value"`
}

// FieldValue matches a meta field case-insensitively
type FieldValue struct {
	Field string `toml:"field" yaml:"field" json:"field"`
	Value string `toml:"value" yaml:"value" json:"value"`
}

// Category is a named bucket matched when any of its rules holds.
// Stat counters use the same shape.
type Category struct {
	ID    string      `toml:"id" yaml:"id" json:"id"`
	Label string      `toml:"label" yaml:"label" json:"label"`
	Rules []Predicate `toml:"rules" yaml:"rules" json:"rules"`
}

// Taxonomy is the declarative rule table of one domain view
type Taxonomy struct {
	Domain     string     `toml:"domain" yaml:"domain" json:"domain"`
	Title      string     `toml:"title" yaml:"title" json:"title"`
	Categories []Category `toml:"categories" yaml:"categories" json:"categories"`
	Counters   []Category `toml:"counters" yaml:"counters" json:"counters"`
	// Success and Failure classify attempts for the successRate stat
	Success      []Predicate `toml:"success" yaml:"success" json:"success"`
	Failure      []Predicate `toml:"failure" yaml:"failure" json:"failure"`
	ExportFields []string    `toml:"export_fields" yaml:"export_fields" json:"exportFields"`
	// Samples are shown when the log service is unreachable
	Samples []Sample `toml:"samples" yaml:"samples" json:"-"`
}

// Validate checks ids and rule clauses
func (t Taxonomy) Validate() error {
	if strings.TrimSpace(t.Domain) == "" {
		return errors.New("taxonomy: empty domain")
	}

	check := func(kind string, cats []Category) error {
		seen := make(map[string]bool, len(cats))
		for _, c := range cats {
			if strings.TrimSpace(c.ID) == "" {
				return fmt.Errorf("taxonomy %s: %s with empty id", t.Domain, kind)
			}
			if c.ID == record.All {
				return fmt.Errorf("taxonomy %s: %s id %q is reserved", t.Domain, kind, c.ID)
			}
			if seen[c.ID] {
				return fmt.Errorf("taxonomy %s: duplicate %s id %q", t.Domain, kind, c.ID)
			}
			seen[c.ID] = true
			if len(c.Rules) == 0 {
				return fmt.Errorf("taxonomy %s: %s %q has no rules", t.Domain, kind, c.ID)
			}
			for i, p := range c.Rules {
				if err := p.validate(); err != nil {
					return fmt.Errorf("taxonomy %s: %s %q rule %d: %w", t.Domain, kind, c.ID, i, err)
				}
			}
		}
		return nil
	}

	if err := check("category", t.Categories); err != nil {
		return err
	}
	if err := check("counter", t.Counters); err != nil {
		return err
	}
	for _, p := range append(append([]Predicate{}, t.Success...), t.Failure...) {
		if err := p.validate(); err != nil {
			return fmt.Errorf("taxonomy %s: attempt rule: %w", t.Domain, err)
		}
	}
	return nil
}

func (p Predicate) validate() error {
	if len(p.Keywords) == 0 && len(p.All) == 0 && len(p.Fields) == 0 && p.Level == "" && p.Above == nil && p.Equals == nil {
		return errors.New("empty predicate")
	}
	if p.Level != "" && !record.Level(p.Level).Valid() {
		return fmt.Errorf("invalid level %q", p.Level)
	}
	if p.Above != nil && p.Above.Field == "" {
		return errors.New("threshold without field")
	}
	if p.Equals != nil && p.Equals.Field == "" {
		return errors.New("equals without field")
	}
	return nil
}

// subject caches the lower-cased message of a record across rule evaluations
type subject struct {
	rec     *record.LogRecord
	message string
}

func newSubject(rec *record.LogRecord) *subject {
	msg := rec.Message
	// A defaulted message matches no keyword
	if rec.MessageDefaulted {
		msg = ""
	}
	return &subject{rec: rec, message: strings.ToLower(msg)}
}

// compiled is a Predicate with lower-cased keywords
type compiled struct {
	keywords []string
	all      []string
	fields   []string
	level    record.Level
	above    *Threshold
	equals   *FieldValue
}

func compile(p Predicate) compiled {
	lower := func(words []string) []string {
		out := make([]string, 0, len(words))
		for _, w := range words {
			if s := strings.ToLower(strings.TrimSpace(w)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return compiled{
		keywords: lower(p.Keywords),
		all:      lower(p.All),
		fields:   p.Fields,
		level:    record.Level(p.Level),
		above:    p.Above,
		equals:   p.Equals,
	}
}

func compileAll(ps []Predicate) []compiled {
	out := make([]compiled, 0, len(ps))
	for _, p := range ps {
		out = append(out, compile(p))
	}
	return out
}

func (c compiled) match(s *subject) bool {
	if len(c.keywords) == 0 && len(c.all) == 0 && len(c.fields) == 0 && c.level == "" && c.above == nil && c.equals == nil {
		return false
	}

	if len(c.keywords) > 0 {
		found := false
		for _, w := range c.keywords {
			if strings.Contains(s.message, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, w := range c.all {
		if !strings.Contains(s.message, w) {
			return false
		}
	}

	for _, f := range c.fields {
		if !s.rec.HasMeta(f) {
			return false
		}
	}

	if c.level != "" && s.rec.Level != c.level {
		return false
	}

	if c.above != nil {
		n, ok := s.rec.MetaNumber(c.above.Field)
		if !ok || n <= c.above.Value {
			return false
		}
	}

	if c.equals != nil && !strings.EqualFold(s.rec.MetaString(c.equals.Field), c.equals.Value) {
		return false
	}

	return true
}

// anyMatch reports whether at least one predicate holds
func anyMatch(ps []compiled, s *subject) bool {
	for _, p := range ps {
		if p.match(s) {
			return true
		}
	}
	return false
}

// Match evaluates a single predicate against a record
func (p Predicate) Match(rec *record.LogRecord) bool {
	return compile(p).match(newSubject(rec))
}
