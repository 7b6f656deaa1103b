package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"github.com/mchurichi/logdeck/pkg/record"
)

// ErrUnrecognizedPayload is returned when a payload matches no known envelope
var ErrUnrecognizedPayload = errors.New("unrecognized log payload")

// Envelope locates the record array inside one decoded payload shape
type Envelope interface {
	Name() string
	CanParse(v *fastjson.Value) bool
	Records(v *fastjson.Value) []*fastjson.Value
}

// Detector auto-detects the payload envelope and normalizes its records
type Detector struct {
	envelopes  []Envelope
	normalizer *Normalizer
	pool       fastjson.ParserPool
}

// NewDetector creates a detector that knows every envelope the log service emits
func NewDetector() *Detector {
	return &Detector{
		envelopes: []Envelope{
			ArrayEnvelope{},        // [ {...}, ... ]
			LogsEnvelope{},         // {"logs": [...]}
			TransactionsEnvelope{}, // {"data": {"data": {"transactions": [...]}}}
			DataEnvelope{},         // {"data": [...]} or {"data": {"logs": [...]}}
		},
		normalizer: NewNormalizer(),
	}
}

// Decode parses a payload with auto-detection and returns normalized records
func (d *Detector) Decode(body []byte) ([]*record.LogRecord, error) {
	return d.decode(body, "")
}

// DecodeWithEnvelope parses a payload that must match the named envelope
func (d *Detector) DecodeWithEnvelope(body []byte, name string) ([]*record.LogRecord, error) {
	if name == "" || name == "auto" {
		return d.decode(body, "")
	}
	if d.envelope(name) == nil {
		return nil, fmt.Errorf("unknown envelope: %s", name)
	}
	return d.decode(body, name)
}

func (d *Detector) envelope(name string) Envelope {
	for _, e := range d.envelopes {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

func (d *Detector) decode(body []byte, name string) ([]*record.LogRecord, error) {
	p := d.pool.Get()
	defer d.pool.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}

	for _, e := range d.envelopes {
		if name != "" && e.Name() != name {
			continue
		}
		if e.CanParse(v) {
			return d.normalizeBatch(e.Records(v)), nil
		}
	}

	if name != "" {
		return nil, fmt.Errorf("%w: payload does not match envelope %s", ErrUnrecognizedPayload, name)
	}
	return nil, ErrUnrecognizedPayload
}

// normalizeBatch normalizes raw values and keeps ids unique within the batch
func (d *Detector) normalizeBatch(values []*fastjson.Value) []*record.LogRecord {
	records := make([]*record.LogRecord, 0, len(values))
	seen := make(map[string]bool, len(values))

	for _, val := range values {
		rec := d.normalizer.Normalize(val)
		for seen[rec.ID] {
			rec.ID = newID()
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}

	return records
}

// ArrayEnvelope handles a bare JSON array of records
type ArrayEnvelope struct{}

func (ArrayEnvelope) Name() string { return "array" }

func (ArrayEnvelope) CanParse(v *fastjson.Value) bool {
	return v.Type() == fastjson.TypeArray
}

func (ArrayEnvelope) Records(v *fastjson.Value) []*fastjson.Value {
	return v.GetArray()
}

// LogsEnvelope handles {"logs": [...]}
type LogsEnvelope struct{}

func (LogsEnvelope) Name() string { return "logs" }

func (LogsEnvelope) CanParse(v *fastjson.Value) bool {
	logs := v.Get("logs")
	return v.Type() == fastjson.TypeObject && logs != nil && logs.Type() == fastjson.TypeArray
}

func (LogsEnvelope) Records(v *fastjson.Value) []*fastjson.Value {
	return v.GetArray("logs")
}

// TransactionsEnvelope handles the transactions API response
// {"data": {"data": {"transactions": [...]}}}
type TransactionsEnvelope struct{}

func (TransactionsEnvelope) Name() string { return "transactions" }

func (TransactionsEnvelope) CanParse(v *fastjson.Value) bool {
	txs := v.Get("data", "data", "transactions")
	return txs != nil && txs.Type() == fastjson.TypeArray
}

func (TransactionsEnvelope) Records(v *fastjson.Value) []*fastjson.Value {
	return v.GetArray("data", "data", "transactions")
}

// DataEnvelope handles {"data": [...]} and {"data": {"logs": [...]}}
type DataEnvelope struct{}

func (DataEnvelope) Name() string { return "data" }

func (DataEnvelope) CanParse(v *fastjson.Value) bool {
	if data := v.Get("data"); data != nil && data.Type() == fastjson.TypeArray {
		return true
	}
	logs := v.Get("data", "logs")
	return logs != nil && logs.Type() == fastjson.TypeArray
}

func (DataEnvelope) Records(v *fastjson.Value) []*fastjson.Value {
	if arr := v.GetArray("data"); arr != nil {
		return arr
	}
	return v.GetArray("data", "logs")
}

// timeNow is a helper for testing
var timeNow = func() time.Time {
	return time.Now()
}
