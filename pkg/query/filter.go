package query

import (
	"sort"
	"strings"
	"time"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/record"
)

// Filter represents a filter condition over records
type Filter interface {
	Match(rec *record.LogRecord) bool
}

// Build turns criteria into a filter chain ordered cheapest and most
// selective first: category, level, time window, search. Selections that
// match everything are left out of the chain.
func Build(c Criteria, classifier *classify.Classifier, now time.Time) Filter {
	c = c.Normalize()
	var filters []Filter

	if c.Category != record.All {
		filters = append(filters, &CategoryFilter{Classifier: classifier, Category: c.Category})
	}
	if c.Level != record.All {
		filters = append(filters, &LevelFilter{Level: record.Level(c.Level)})
	}
	if d, ok := c.Range.Window(); ok {
		filters = append(filters, &TimeWindowFilter{Since: now.Add(-d)})
	} else if c.Range != RangeAll {
		// Unknown ranges select nothing rather than everything
		filters = append(filters, NoneFilter{})
	}
	if term := strings.TrimSpace(c.Search); term != "" {
		filters = append(filters, &SearchFilter{Term: term})
	}

	if len(filters) == 0 {
		return AllFilter{}
	}
	return &AndFilter{Filters: filters}
}

// Apply filters records with criteria and returns a new slice sorted newest
// first. The input slice is never modified.
func Apply(records []*record.LogRecord, c Criteria, classifier *classify.Classifier, now time.Time) []*record.LogRecord {
	filter := Build(c, classifier, now)

	out := make([]*record.LogRecord, 0, len(records))
	for _, rec := range records {
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}

	SortNewestFirst(out)
	return out
}

// SortNewestFirst stable-sorts records by timestamp descending.
// Records whose timestamp could not be parsed compare equal to each other
// and sort after every record with a valid timestamp.
func SortNewestFirst(records []*record.LogRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.TimestampValid != b.TimestampValid {
			return a.TimestampValid
		}
		if !a.TimestampValid {
			return false
		}
		return a.Timestamp.After(b.Timestamp)
	})
}

// Filter implementations

// AllFilter matches all records
type AllFilter struct{}

func (AllFilter) Match(rec *record.LogRecord) bool {
	return true
}

// NoneFilter matches no records
type NoneFilter struct{}

func (NoneFilter) Match(rec *record.LogRecord) bool {
	return false
}

// AndFilter matches when every filter matches, evaluated in order
type AndFilter struct {
	Filters []Filter
}

func (f *AndFilter) Match(rec *record.LogRecord) bool {
	for _, filter := range f.Filters {
		if !filter.Match(rec) {
			return false
		}
	}
	return true
}

// CategoryFilter matches records the classifier places in Category
type CategoryFilter struct {
	Classifier *classify.Classifier
	Category   string
}

func (f *CategoryFilter) Match(rec *record.LogRecord) bool {
	if f.Classifier == nil {
		return f.Category == "" || f.Category == record.All
	}
	return f.Classifier.Matches(rec, f.Category)
}

// LevelFilter matches records by level
type LevelFilter struct {
	Level record.Level
}

func (f *LevelFilter) Match(rec *record.LogRecord) bool {
	return rec.Level == f.Level
}

// TimeWindowFilter matches records at or after Since.
// Records with an unparseable timestamp never match.
type TimeWindowFilter struct {
	Since time.Time
}

func (f *TimeWindowFilter) Match(rec *record.LogRecord) bool {
	if !rec.TimestampValid {
		return false
	}
	return !rec.Timestamp.Before(f.Since)
}

// SearchFilter matches a case-insensitive substring in any searchable field
type SearchFilter struct {
	Term string
}

func (f *SearchFilter) Match(rec *record.LogRecord) bool {
	term := strings.ToLower(strings.TrimSpace(f.Term))
	if term == "" {
		return true
	}

	for _, value := range searchable(rec) {
		if strings.Contains(strings.ToLower(value), term) {
			return true
		}
	}
	return false
}

// searchable lists the fields free-text search looks at
func searchable(rec *record.LogRecord) []string {
	return []string{
		rec.Message,
		string(rec.Level),
		rec.UserID,
		rec.MetaString("email"),
		rec.MetaString("name"),
		rec.MetaString("role"),
		rec.MetaString("ip"),
	}
}
