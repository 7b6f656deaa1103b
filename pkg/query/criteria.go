package query

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mchurichi/logdeck/pkg/record"
)

// DateRange is a relative time window ending now
type DateRange string

const (
	RangeAll DateRange = "all"
	Range1h  DateRange = "1h"
	Range24h DateRange = "24h"
	Range7d  DateRange = "7d"
	Range30d DateRange = "30d"
)

var windows = map[DateRange]time.Duration{
	Range1h:  time.Hour,
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
}

// Window returns the window length; ok is false for RangeAll
func (r DateRange) Window() (time.Duration, bool) {
	d, ok := windows[r]
	return d, ok
}

// ParseDateRange validates a range string. Empty means all.
func ParseDateRange(s string) (DateRange, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(RangeAll) {
		return RangeAll, nil
	}
	r := DateRange(s)
	if _, ok := windows[r]; !ok {
		return RangeAll, fmt.Errorf("invalid date range: %s", s)
	}
	return r, nil
}

// Criteria is the combined set of active filter selections
type Criteria struct {
	Search   string    `json:"search"`
	Level    string    `json:"level"`
	Range    DateRange `json:"range"`
	Category string    `json:"category"`
}

// DefaultCriteria matches every record
func DefaultCriteria() Criteria {
	return Criteria{Level: record.All, Range: RangeAll, Category: record.All}
}

// Normalize fills empty selections with "all"
func (c Criteria) Normalize() Criteria {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = record.All
	}
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	c.Range = DateRange(strings.ToLower(strings.TrimSpace(string(c.Range))))
	if c.Range == "" {
		c.Range = RangeAll
	}
	if strings.TrimSpace(c.Category) == "" {
		c.Category = record.All
	}
	return c
}

// Validate rejects unknown levels and ranges
func (c Criteria) Validate() error {
	c = c.Normalize()
	if c.Level != record.All && !record.Level(c.Level).Valid() {
		return fmt.Errorf("invalid level: %s", c.Level)
	}
	if _, err := ParseDateRange(string(c.Range)); err != nil {
		return err
	}
	return nil
}

// ParseCriteria reads search, level, range and category from query values.
// Invalid selections fall back to "all" and are reported in the joined error.
func ParseCriteria(values url.Values) (Criteria, error) {
	c := Criteria{
		Search:   values.Get("search"),
		Level:    values.Get("level"),
		Category: values.Get("category"),
	}.Normalize()

	var errs []error
	if c.Level != record.All && !record.Level(c.Level).Valid() {
		errs = append(errs, fmt.Errorf("invalid level: %s", c.Level))
		c.Level = record.All
	}
	r, err := ParseDateRange(values.Get("range"))
	if err != nil {
		errs = append(errs, err)
	}
	c.Range = r

	return c, errors.Join(errs...)
}
