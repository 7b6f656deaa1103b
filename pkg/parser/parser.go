package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/mchurichi/logdeck/pkg/record"
)

// path is a key path into a raw object, e.g. {"user", "email"}
type path []string

// Field precedence tables: the first path holding a usable value wins.
var (
	idPaths        = []path{{"id"}, {"_id"}, {"logId"}}
	timestampPaths = []path{{"timestamp"}, {"createdAt"}, {"time"}, {"date"}}
	levelPaths     = []path{{"level"}, {"severity"}}
	messagePaths   = []path{{"message"}, {"msg"}, {"description"}, {"action"}}
	userIDPaths    = []path{{"userId"}, {"user", "id"}, {"user", "_id"}, {"user_id"}}
)

// metaField describes one normalized meta key
type metaField struct {
	key   string
	paths []path
	def   any // nil means the key is omitted when absent
}

var metaFields = []metaField{
	{key: "email", paths: []path{{"user", "email"}, {"email"}}, def: record.NoEmail},
	{key: "name", paths: []path{{"user", "name"}, {"name"}, {"userName"}}, def: record.UnknownName},
	{key: "role", paths: []path{{"user", "role"}, {"role"}, {"userRole"}}},
	{key: "ip", paths: []path{{"ip"}, {"ipAddress"}, {"ip_address"}}},
	{key: "userAgent", paths: []path{{"userAgent"}, {"user_agent"}}},
	{key: "duration", paths: []path{{"duration"}, {"responseTime"}, {"duration_ms"}}},
	{key: "statusCode", paths: []path{{"statusCode"}, {"status_code"}}},
	{key: "method", paths: []path{{"method"}, {"request", "method"}}},
	{key: "url", paths: []path{{"url"}, {"path"}, {"request", "url"}}},
}

// consumed are top-level keys that never get copied verbatim into meta
var consumed = map[string]bool{
	"id": true, "_id": true, "logId": true,
	"timestamp": true, "createdAt": true, "time": true, "date": true,
	"level": true, "severity": true,
	"message": true, "msg": true,
	"userId": true, "user_id": true, "user": true,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer coerces raw JSON values into canonical LogRecords.
// It never fails: missing or malformed fields are defaulted.
type Normalizer struct{}

// NewNormalizer creates a new record normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize builds a LogRecord from a raw value of any JSON type
func (n *Normalizer) Normalize(v *fastjson.Value) *record.LogRecord {
	rec := &record.LogRecord{
		Level:            record.LevelInfo,
		Message:          record.NoMessage,
		MessageDefaulted: true,
		UserID:           record.AnonymousUser,
		Meta:             make(map[string]any),
	}

	if v == nil || v.Type() != fastjson.TypeObject {
		// Plain strings are treated as bare messages
		if v != nil && v.Type() == fastjson.TypeString {
			if msg := strings.TrimSpace(string(v.GetStringBytes())); msg != "" {
				rec.Message = msg
				rec.MessageDefaulted = false
			}
		}
		rec.ID = newID()
		rec.Timestamp = timeNow()
		applyMetaDefaults(rec)
		return rec
	}

	// Extract id
	if id := text(lookup(v, idPaths)); id != "" {
		rec.ID = id
	} else {
		rec.ID = newID()
	}

	// Extract timestamp
	if ts, ok := parseTimestamp(lookup(v, timestampPaths)); ok {
		rec.Timestamp = ts
		rec.TimestampValid = true
	} else {
		rec.Timestamp = timeNow()
	}

	// Extract level; "type" is only a level when it holds a level word
	if lvl := text(lookup(v, levelPaths)); lvl != "" {
		rec.Level = record.ParseLevel(lvl)
	} else if typ := text(v.Get("type")); record.IsLevelWord(typ) {
		rec.Level = record.ParseLevel(typ)
	}

	// Extract message
	if msg := text(lookup(v, messagePaths)); msg != "" {
		rec.Message = msg
		rec.MessageDefaulted = false
	}

	// Extract user id
	if uid := text(lookup(v, userIDPaths)); uid != "" {
		rec.UserID = uid
	}

	// Normalized meta fields
	for _, f := range metaFields {
		if val, ok := scalar(lookup(v, f.paths)); ok && val != nil {
			rec.Meta[f.key] = val
		}
	}

	// Remaining scalar fields are kept verbatim
	obj, _ := v.Object()
	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		if consumed[k] {
			return
		}
		if _, exists := rec.Meta[k]; exists {
			return
		}
		if s, ok := scalar(val); ok {
			rec.Meta[k] = s
		}
	})

	applyMetaDefaults(rec)
	return rec
}

func applyMetaDefaults(rec *record.LogRecord) {
	for _, f := range metaFields {
		if f.def == nil {
			continue
		}
		if _, ok := rec.Meta[f.key]; !ok {
			rec.Meta[f.key] = f.def
		}
	}
}

// lookup returns the first non-null, non-empty value along paths
func lookup(v *fastjson.Value, paths []path) *fastjson.Value {
	for _, p := range paths {
		val := v.Get(p...)
		if val == nil || val.Type() == fastjson.TypeNull {
			continue
		}
		if val.Type() == fastjson.TypeString && strings.TrimSpace(string(val.GetStringBytes())) == "" {
			continue
		}
		return val
	}
	return nil
}

// text renders a string or number value as a string
func text(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return strings.TrimSpace(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		return strconv.FormatFloat(v.GetFloat64(), 'f', -1, 64)
	default:
		return ""
	}
}

// scalar converts a JSON scalar into a meta value (string, float64 or nil).
// Objects and arrays are rejected.
func scalar(v *fastjson.Value) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes()), true
	case fastjson.TypeNumber:
		return v.GetFloat64(), true
	case fastjson.TypeTrue:
		return "true", true
	case fastjson.TypeFalse:
		return "false", true
	case fastjson.TypeNull:
		return nil, true
	default:
		return nil, false
	}
}

// parseTimestamp accepts RFC3339 variants, plain dates and epoch seconds or milliseconds
func parseTimestamp(v *fastjson.Value) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}

	switch v.Type() {
	case fastjson.TypeNumber:
		return fromEpoch(v.GetFloat64())
	case fastjson.TypeString:
		s := strings.TrimSpace(string(v.GetStringBytes()))
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				// Offsets can push a year-9999 instant past the range
				if y := t.UTC().Year(); y < 0 || y > 9999 {
					return time.Time{}, false
				}
				return t, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
	}

	return time.Time{}, false
}

// Epoch bounds of 9999-12-31T23:59:59Z; later instants cannot be rendered
// as RFC 3339 and are treated as unparseable.
const (
	maxEpochSeconds = 253402300799
	maxEpochMillis  = maxEpochSeconds*1000 + 999
)

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	// Values > 1e12 are clearly milliseconds, not seconds
	if f > 1_000_000_000_000 {
		if f > maxEpochMillis {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(f)).UTC(), true
	}
	if f > maxEpochSeconds {
		return time.Time{}, false
	}
	return time.Unix(int64(f), 0).UTC(), true
}

// newID generates an id for records that arrive without one
var newID = func() string {
	return uuid.NewString()
}
