package parser

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/valyala/fastjson"

	"github.com/mchurichi/logdeck/pkg/record"
)

func mustParse(t *testing.T, raw string) *fastjson.Value {
	t.Helper()
	v, err := fastjson.Parse(raw)
	if err != nil {
		t.Fatalf("fastjson.Parse(%s) error = %v", raw, err)
	}
	return v
}

func TestNormalizer_Normalize(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	oldNow := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = oldNow }()

	tests := []struct {
		name        string
		raw         string
		wantLevel   record.Level
		wantMessage string
		wantUser    string
		wantTSValid bool
		wantTS      time.Time
		wantMeta    map[string]any
	}{
		{
			name:        "complete record",
			raw:         `{"id":"a1","timestamp":"2025-02-28T10:00:00Z","level":"ERROR","message":"Login failed","userId":"u1","email":"a@x.com","ip":"10.0.0.1"}`,
			wantLevel:   record.LevelError,
			wantMessage: "Login failed",
			wantUser:    "u1",
			wantTSValid: true,
			wantTS:      time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC),
			wantMeta:    map[string]any{"email": "a@x.com", "ip": "10.0.0.1", "name": record.UnknownName},
		},
		{
			name:        "nested user wins over flat fields",
			raw:         `{"message":"Profile updated","user":{"id":"u7","email":"nested@x.com","name":"Nia","role":"doctor"},"email":"flat@x.com"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "Profile updated",
			wantUser:    "u7",
			wantMeta:    map[string]any{"email": "nested@x.com", "name": "Nia", "role": "doctor"},
		},
		{
			name:        "empty object is fully defaulted",
			raw:         `{}`,
			wantLevel:   record.LevelInfo,
			wantMessage: record.NoMessage,
			wantUser:    record.AnonymousUser,
			wantTS:      fixed,
			wantMeta:    map[string]any{"email": record.NoEmail, "name": record.UnknownName},
		},
		{
			name:        "unknown level coerces to info",
			raw:         `{"level":"verbose","msg":"hello"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "hello",
			wantUser:    record.AnonymousUser,
		},
		{
			name:        "severity alias",
			raw:         `{"severity":"Warning","message":"slow"}`,
			wantLevel:   record.LevelWarn,
			wantMessage: "slow",
			wantUser:    record.AnonymousUser,
		},
		{
			name:        "type holding a level word",
			raw:         `{"type":"error","message":"boom"}`,
			wantLevel:   record.LevelError,
			wantMessage: "boom",
			wantUser:    record.AnonymousUser,
		},
		{
			name:        "type holding a domain word is not a level",
			raw:         `{"type":"login","message":"ok"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "ok",
			wantUser:    record.AnonymousUser,
			wantMeta:    map[string]any{"type": "login"},
		},
		{
			name:        "unparseable timestamp defaults to now",
			raw:         `{"timestamp":"yesterday-ish","message":"x"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "x",
			wantUser:    record.AnonymousUser,
			wantTSValid: false,
			wantTS:      fixed,
		},
		{
			name:        "epoch milliseconds",
			raw:         `{"createdAt":1735689600000,"message":"x"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "x",
			wantUser:    record.AnonymousUser,
			wantTSValid: true,
			wantTS:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "epoch milliseconds past year 9999 default to now",
			raw:         `{"timestamp":300000000000000,"message":"x"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "x",
			wantUser:    record.AnonymousUser,
			wantTSValid: false,
			wantTS:      fixed,
		},
		{
			name:        "epoch seconds past year 9999 default to now",
			raw:         `{"timestamp":"900000000000","message":"x"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "x",
			wantUser:    record.AnonymousUser,
			wantTSValid: false,
			wantTS:      fixed,
		},
		{
			name:        "offset pushing past year 9999 defaults to now",
			raw:         `{"timestamp":"9999-12-31T23:00:00-05:00","message":"x"}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "x",
			wantUser:    record.AnonymousUser,
			wantTSValid: false,
			wantTS:      fixed,
		},
		{
			name:        "numeric user id and meta preserved",
			raw:         `{"userId":42,"message":"GET /api","method":"GET","url":"/api","duration":1200,"statusCode":200,"extra":null,"nested":{"a":1}}`,
			wantLevel:   record.LevelInfo,
			wantMessage: "GET /api",
			wantUser:    "42",
			wantMeta:    map[string]any{"method": "GET", "url": "/api", "duration": float64(1200), "statusCode": float64(200), "extra": nil},
		},
		{
			name:        "bare string becomes message",
			raw:         `"plain text event"`,
			wantLevel:   record.LevelInfo,
			wantMessage: "plain text event",
			wantUser:    record.AnonymousUser,
		},
		{
			name:        "null value",
			raw:         `null`,
			wantLevel:   record.LevelInfo,
			wantMessage: record.NoMessage,
			wantUser:    record.AnonymousUser,
		},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := n.Normalize(mustParse(t, tt.raw))

			if rec.ID == "" {
				t.Error("Normalize() ID is empty")
			}
			if rec.Meta == nil {
				t.Fatal("Normalize() Meta is nil")
			}
			if rec.Level != tt.wantLevel {
				t.Errorf("Normalize() Level = %v, want %v", rec.Level, tt.wantLevel)
			}
			if rec.Message != tt.wantMessage {
				t.Errorf("Normalize() Message = %q, want %q", rec.Message, tt.wantMessage)
			}
			if rec.UserID != tt.wantUser {
				t.Errorf("Normalize() UserID = %q, want %q", rec.UserID, tt.wantUser)
			}
			if rec.TimestampValid != tt.wantTSValid {
				t.Errorf("Normalize() TimestampValid = %v, want %v", rec.TimestampValid, tt.wantTSValid)
			}
			if !tt.wantTS.IsZero() && !rec.Timestamp.Equal(tt.wantTS) {
				t.Errorf("Normalize() Timestamp = %v, want %v", rec.Timestamp, tt.wantTS)
			}
			if rec.Timestamp.IsZero() {
				t.Error("Normalize() Timestamp is zero")
			}
			if _, err := json.Marshal(rec); err != nil {
				t.Errorf("json.Marshal(record) error = %v", err)
			}
			for k, want := range tt.wantMeta {
				got, ok := rec.Meta[k]
				if !ok {
					t.Errorf("Normalize() Meta missing %q", k)
					continue
				}
				if got != want {
					t.Errorf("Normalize() Meta[%q] = %v, want %v", k, got, want)
				}
			}
			if _, ok := rec.Meta["nested"]; ok {
				t.Error("Normalize() copied a nested object into Meta")
			}
		})
	}
}

func TestNormalizer_KeepsExplicitID(t *testing.T) {
	rec := NewNormalizer().Normalize(mustParse(t, `{"_id":"mongo-1","message":"x"}`))
	if rec.ID != "mongo-1" {
		t.Errorf("Normalize() ID = %q, want mongo-1", rec.ID)
	}
}
