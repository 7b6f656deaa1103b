package record

import (
	"strconv"
	"strings"
	"time"
)

// Level is the normalized severity of a log record
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// All is the wildcard value accepted wherever a level, range or category is selected
const All = "all"

// Defaults substituted by the normalizer for absent fields
const (
	AnonymousUser = "anonymous"
	NoEmail       = "no email"
	NoMessage     = "No message"
	UnknownName   = "Unknown"
)

// Levels lists the four canonical levels, most verbose first
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// ParseLevel folds a raw level string into one of the four canonical levels.
// Unknown values become info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error", "err", "fatal", "critical", "crit", "panic":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug", "dbg", "trace", "trc":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// IsLevelWord reports whether s names a level ParseLevel understands
// without falling back to the default.
func IsLevelWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err", "fatal", "critical", "crit", "panic",
		"warn", "warning", "info", "information", "debug", "dbg", "trace", "trc":
		return true
	}
	return false
}

// Valid reports whether l is one of the canonical levels
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// LogRecord is the canonical shape of one ingested event.
// Records are never modified after normalization.
type LogRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// TimestampValid is false when Timestamp was defaulted because the
	// source value was missing or unparseable.
	TimestampValid bool   `json:"timestampValid"`
	Level          Level  `json:"level"`
	Message        string `json:"message"`
	// MessageDefaulted is true when Message holds NoMessage because the
	// source had no usable message field.
	MessageDefaulted bool           `json:"-"`
	UserID           string         `json:"userId"`
	Meta             map[string]any `json:"meta"`
}

// MetaString returns the textual form of a meta value, or "" when absent or null
func (r *LogRecord) MetaString(key string) string {
	v, ok := r.Meta[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// MetaNumber returns a meta value as a number. Numeric strings are accepted.
func (r *LogRecord) MetaNumber(key string) (float64, bool) {
	v, ok := r.Meta[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// HasMeta reports whether key is present with a non-empty value
func (r *LogRecord) HasMeta(key string) bool {
	return r.MetaString(key) != ""
}

// Email returns the record's email, or "" when it is absent or the sentinel
func (r *LogRecord) Email() string {
	email := r.MetaString("email")
	if email == NoEmail {
		return ""
	}
	return email
}
