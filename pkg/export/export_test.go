package export

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/record"
)

var now = time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)

func classifier(t *testing.T, domain string) *classify.Classifier {
	t.Helper()
	tax, err := classify.Builtin(domain)
	if err != nil {
		t.Fatalf("Builtin(%s) error = %v", domain, err)
	}
	return classify.MustNew(tax)
}

func TestExport_Empty(t *testing.T) {
	a, err := Export(nil, classifier(t, classify.DomainAuth), now)
	if err != nil {
		t.Fatalf("Export(nil) error = %v", err)
	}
	if string(a.Data) != "[]" {
		t.Errorf("Export(nil) data = %q, want []", a.Data)
	}
	if a.Filename != "auth-logs-2025-03-07.json" {
		t.Errorf("Export(nil) filename = %q", a.Filename)
	}
}

func TestExport_Projection(t *testing.T) {
	rec := &record.LogRecord{
		ID:             "1",
		Timestamp:      time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC),
		TimestampValid: true,
		Level:          record.LevelWarn,
		Message:        "Slow request detected",
		UserID:         "u-1",
		Meta: map[string]any{
			"email":     "a@x.com",
			"ip":        "10.0.0.1",
			"userAgent": "curl/8",
			"role":      "admin",
			"method":    "POST",
			"url":       "/api/payments",
			"duration":  float64(2350),
			"secret":    "not exported",
		},
	}

	a, err := Export([]*record.LogRecord{rec}, classifier(t, classify.DomainSystem), now)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(a.Data, &rows); err != nil {
		t.Fatalf("artifact is not a JSON array: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}

	got := rows[0]
	want := map[string]any{
		"timestamp": "2025-03-07T08:00:00Z",
		"level":     "warn",
		"message":   "Slow request detected",
		"user":      "u-1",
		"email":     "a@x.com",
		"ip":        "10.0.0.1",
		"userAgent": "curl/8",
		"role":      "admin",
		"category":  "Performance",
		"method":    "POST",
		"url":       "/api/payments",
		"duration":  float64(2350),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("row[%s] = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["secret"]; ok {
		t.Error("row includes non-export meta field")
	}
	if v, ok := got["statusCode"]; !ok || v != nil {
		t.Errorf("row[statusCode] = %v, %v; want null", v, ok)
	}

	// field order follows the projection
	s := string(a.Data)
	if !(strings.Index(s, `"timestamp"`) < strings.Index(s, `"level"`) &&
		strings.Index(s, `"category"`) < strings.Index(s, `"method"`)) {
		t.Errorf("fields out of order:\n%s", s)
	}
	if !strings.Contains(s, "\n  {\n    \"timestamp\"") {
		t.Errorf("artifact not indented with two spaces:\n%s", s)
	}
}

func TestExport_Failure(t *testing.T) {
	rec := &record.LogRecord{
		ID:      "1",
		Level:   record.LevelInfo,
		Message: "bad",
		Meta:    map[string]any{"duration": math.NaN()},
	}

	a, err := Export([]*record.LogRecord{rec}, classifier(t, classify.DomainSystem), now)
	if !errors.Is(err, ErrExport) {
		t.Fatalf("Export() error = %v, want ErrExport", err)
	}
	if a.Data != nil || a.Filename != "" {
		t.Errorf("Export() returned partial artifact %+v", a)
	}
}

func TestWriteTo(t *testing.T) {
	a := Artifact{Filename: "auth-logs-2025-03-07.json", Data: []byte(`[{"level":"info"}]`)}

	t.Run("plain", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/export", nil)
		if err := WriteTo(w, r, a); err != nil {
			t.Fatalf("WriteTo() error = %v", err)
		}
		if w.Header().Get("Content-Encoding") != "" {
			t.Error("unexpected Content-Encoding")
		}
		if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="auth-logs-2025-03-07.json"` {
			t.Errorf("Content-Disposition = %q", got)
		}
		if w.Body.String() != string(a.Data) {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("gzip", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/export", nil)
		r.Header.Set("Accept-Encoding", "br;q=1.0, gzip;q=0.8")
		if err := WriteTo(w, r, a); err != nil {
			t.Fatalf("WriteTo() error = %v", err)
		}
		if w.Header().Get("Content-Encoding") != "gzip" {
			t.Fatalf("Content-Encoding = %q, want gzip", w.Header().Get("Content-Encoding"))
		}
		zr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatalf("gzip.NewReader() error = %v", err)
		}
		body, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("read gzip body: %v", err)
		}
		if string(body) != string(a.Data) {
			t.Errorf("body = %q", body)
		}
	})
}
