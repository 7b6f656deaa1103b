package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/record"
)

// ErrExport wraps every serialization failure
var ErrExport = errors.New("export failed")

// Artifact is a downloadable export
type Artifact struct {
	Filename string
	Data     []byte
}

// Filename returns <domain>-logs-<YYYY-MM-DD>.json
func Filename(domain string, now time.Time) string {
	return fmt.Sprintf("%s-logs-%s.json", domain, now.Format("2006-01-02"))
}

// field is one projected key/value; rows keep field order in the output
type field struct {
	key   string
	value any
}

type row []field

func (r row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// project flattens a record into the export shape
func project(rec *record.LogRecord, classifier *classify.Classifier, labels map[string]string) row {
	category := ""
	if classifier != nil {
		category = labels[classifier.Classify(rec)]
	}

	r := row{
		{"timestamp", rec.Timestamp.UTC().Format(time.RFC3339)},
		{"level", string(rec.Level)},
		{"message", rec.Message},
		{"user", rec.UserID},
		{"email", rec.MetaString("email")},
		{"ip", rec.MetaString("ip")},
		{"userAgent", rec.MetaString("userAgent")},
		{"role", rec.MetaString("role")},
		{"category", category},
	}
	if classifier != nil {
		for _, f := range classifier.ExportFields() {
			r = append(r, field{f, rec.Meta[f]})
		}
	}
	return r
}

// Export serializes the given (already filtered) records as a pretty-printed
// JSON array. No artifact is returned on failure.
func Export(records []*record.LogRecord, classifier *classify.Classifier, now time.Time) (Artifact, error) {
	domain := "logs"
	labels := map[string]string{}
	if classifier != nil {
		domain = classifier.Domain()
		for _, c := range classifier.Categories() {
			labels[c.ID] = c.Label
		}
	}

	rows := make([]row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, project(rec, classifier, labels))
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrExport, err)
	}

	return Artifact{Filename: Filename(domain, now), Data: data}, nil
}

// WriteTo sends the artifact as a file download, gzip-encoded when the
// client accepts it
func WriteTo(w http.ResponseWriter, r *http.Request, a Artifact) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, a.Filename))
	w.Header().Add("Vary", "Accept-Encoding")

	if !acceptsGzip(r) {
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		_, err := w.Write(a.Data)
		return err
	}

	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(a.Data); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func acceptsGzip(r *http.Request) bool {
	if r == nil {
		return false
	}
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(enc, "gzip") {
			return true
		}
	}
	return false
}
