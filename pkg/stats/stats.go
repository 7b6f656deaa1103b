package stats

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/record"
)

// Base counter names present for every domain
const (
	Total       = "total"
	Errors      = "errors"
	Warnings    = "warnings"
	UniqueUsers = "uniqueUsers"
	SuccessRate = "successRate"
)

// Stats is an ordered set of named counters derived from a filtered record set
type Stats struct {
	keys   []string
	values map[string]int
}

func newStats() Stats {
	return Stats{values: make(map[string]int)}
}

func (s *Stats) set(key string, v int) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// Get returns a counter value, 0 when absent
func (s Stats) Get(key string) int {
	return s.values[key]
}

// Keys lists counter names in output order
func (s Stats) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Map returns a copy of the counters
func (s Stats) Map() map[string]int {
	out := make(map[string]int, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes counters as an object in declared order
func (s Stats) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(s.values[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Summarize computes every counter over records in one pass. The caller
// passes the filtered set; nothing here looks at the unfiltered universe.
func Summarize(records []*record.LogRecord, classifier *classify.Classifier) Stats {
	var errs, warns, success, failure int
	users := make(map[string]struct{})
	counters := make(map[string]int)

	for _, rec := range records {
		switch rec.Level {
		case record.LevelError:
			errs++
		case record.LevelWarn:
			warns++
		}

		// Users are the union of real ids and real emails
		if rec.UserID != "" && rec.UserID != record.AnonymousUser {
			users[rec.UserID] = struct{}{}
		}
		if email := rec.Email(); email != "" {
			users[email] = struct{}{}
		}

		if classifier == nil {
			continue
		}
		ev := classifier.Evaluate(rec)
		switch ev.Outcome {
		case classify.Success:
			success++
		case classify.Failure:
			failure++
		}
		for _, id := range ev.Counters {
			counters[id]++
		}
	}

	s := newStats()
	s.set(Total, len(records))
	s.set(Errors, errs)
	s.set(Warnings, warns)
	s.set(UniqueUsers, len(users))
	s.set(SuccessRate, Rate(success, failure))
	if classifier != nil {
		for _, id := range classifier.CounterIDs() {
			s.set(id, counters[id])
		}
	}
	return s
}

// Rate is round(100 * success / (success + failure)), rounding halves up.
// It is 0 when there were no attempts.
func Rate(success, failure int) int {
	attempts := success + failure
	if attempts <= 0 {
		return 0
	}
	return (200*success + attempts) / (2 * attempts)
}
