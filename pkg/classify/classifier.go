package classify

import (
	"github.com/mchurichi/logdeck/pkg/record"
)

// Classifier evaluates one domain's taxonomy against records
type Classifier struct {
	taxonomy   Taxonomy
	categories []compiledCategory
	counters   []compiledCategory
	index      map[string]int
	success    []compiled
	failure    []compiled
}

type compiledCategory struct {
	id    string
	rules []compiled
}

// CategoryInfo describes a category for clients
type CategoryInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// New validates and compiles a taxonomy
func New(t Taxonomy) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		taxonomy: t,
		index:    make(map[string]int, len(t.Categories)),
		success:  compileAll(t.Success),
		failure:  compileAll(t.Failure),
	}
	for i, cat := range t.Categories {
		c.categories = append(c.categories, compiledCategory{id: cat.ID, rules: compileAll(cat.Rules)})
		c.index[cat.ID] = i
	}
	for _, cnt := range t.Counters {
		c.counters = append(c.counters, compiledCategory{id: cnt.ID, rules: compileAll(cnt.Rules)})
	}

	// Domains without explicit attempt rules fall back to generic wording
	if len(c.success) == 0 {
		c.success = compileAll(DefaultSuccess)
	}
	if len(c.failure) == 0 {
		c.failure = compileAll(DefaultFailure)
	}

	return c, nil
}

// MustNew is New for built-in taxonomies; it panics on invalid input
func MustNew(t Taxonomy) *Classifier {
	c, err := New(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Domain returns the taxonomy's domain name
func (c *Classifier) Domain() string {
	return c.taxonomy.Domain
}

// Taxonomy returns the rule table the classifier was built from
func (c *Classifier) Taxonomy() Taxonomy {
	return c.taxonomy
}

// Categories lists categories in declared order
func (c *Classifier) Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(c.taxonomy.Categories))
	for _, cat := range c.taxonomy.Categories {
		out = append(out, CategoryInfo{ID: cat.ID, Label: cat.Label})
	}
	return out
}

// HasCategory reports whether id is a declared category or "all"
func (c *Classifier) HasCategory(id string) bool {
	if id == "" || id == record.All {
		return true
	}
	_, ok := c.index[id]
	return ok
}

// Matches reports whether rec belongs to the category. "all" and ""
// match every record; an unknown id matches none. Categories overlap:
// a record may match several.
func (c *Classifier) Matches(rec *record.LogRecord, categoryID string) bool {
	if categoryID == "" || categoryID == record.All {
		return true
	}
	i, ok := c.index[categoryID]
	if !ok {
		return false
	}
	return anyMatch(c.categories[i].rules, newSubject(rec))
}

// Classify returns the first matching category in declared order, or ""
// when the record is unclassified.
func (c *Classifier) Classify(rec *record.LogRecord) string {
	s := newSubject(rec)
	for _, cat := range c.categories {
		if anyMatch(cat.rules, s) {
			return cat.id
		}
	}
	return ""
}

// Outcome is the attempt classification used by the success rate
type Outcome int

const (
	NoAttempt Outcome = iota
	Success
	Failure
)

// Evaluation is everything the aggregator needs to know about one record
type Evaluation struct {
	Outcome  Outcome
	Counters []string
}

// Evaluate runs the attempt and counter rules over rec in one pass.
// Failure wins when a record matches both attempt rule sets.
func (c *Classifier) Evaluate(rec *record.LogRecord) Evaluation {
	s := newSubject(rec)
	var ev Evaluation

	switch {
	case anyMatch(c.failure, s):
		ev.Outcome = Failure
	case anyMatch(c.success, s):
		ev.Outcome = Success
	}

	for _, cnt := range c.counters {
		if anyMatch(cnt.rules, s) {
			ev.Counters = append(ev.Counters, cnt.id)
		}
	}
	return ev
}

// CounterIDs lists the domain counters in declared order
func (c *Classifier) CounterIDs() []string {
	ids := make([]string, 0, len(c.counters))
	for _, cnt := range c.counters {
		ids = append(ids, cnt.id)
	}
	return ids
}

// ExportFields lists the domain-specific meta fields added to exports
func (c *Classifier) ExportFields() []string {
	return c.taxonomy.ExportFields
}
