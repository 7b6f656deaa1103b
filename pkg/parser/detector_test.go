package parser

import (
	"errors"
	"testing"
)

func TestDetector_Decode(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantErr   error
	}{
		{
			name:      "bare array",
			body:      `[{"message":"a"},{"message":"b"}]`,
			wantCount: 2,
		},
		{
			name:      "logs wrapper",
			body:      `{"logs":[{"message":"a"}],"total":1}`,
			wantCount: 1,
		},
		{
			name:      "transactions envelope",
			body:      `{"data":{"data":{"transactions":[{"message":"paid"},{"message":"refunded"},{"message":"x"}]}}}`,
			wantCount: 3,
		},
		{
			name:      "data array",
			body:      `{"data":[{"message":"a"}]}`,
			wantCount: 1,
		},
		{
			name:      "empty array",
			body:      `[]`,
			wantCount: 0,
		},
		{
			name:    "object without records",
			body:    `{"status":"ok"}`,
			wantErr: ErrUnrecognizedPayload,
		},
		{
			name:    "logs is not an array",
			body:    `{"logs":"nope"}`,
			wantErr: ErrUnrecognizedPayload,
		},
		{
			name:    "invalid json",
			body:    `{"logs":[`,
			wantErr: ErrUnrecognizedPayload,
		},
		{
			name:    "scalar payload",
			body:    `42`,
			wantErr: ErrUnrecognizedPayload,
		},
	}

	detector := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := detector.Decode([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Detector.Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detector.Decode() error = %v", err)
			}
			if len(records) != tt.wantCount {
				t.Errorf("Detector.Decode() got %d records, want %d", len(records), tt.wantCount)
			}
		})
	}
}

func TestDetector_MalformedRecordsAreNotDropped(t *testing.T) {
	records, err := NewDetector().Decode([]byte(`[{"message":"ok"}, 17, null, "text", {"level":42}]`))
	if err != nil {
		t.Fatalf("Detector.Decode() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("Detector.Decode() got %d records, want 5", len(records))
	}
	for i, rec := range records {
		if rec.ID == "" || rec.Message == "" || !rec.Level.Valid() || rec.Timestamp.IsZero() || rec.Meta == nil {
			t.Errorf("record %d violates invariants: %+v", i, rec)
		}
	}
}

func TestDetector_UniqueIDsWithinBatch(t *testing.T) {
	records, err := NewDetector().Decode([]byte(`[{"id":"dup","message":"a"},{"id":"dup","message":"b"},{"message":"c"}]`))
	if err != nil {
		t.Fatalf("Detector.Decode() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, rec := range records {
		if seen[rec.ID] {
			t.Errorf("duplicate id %q in batch", rec.ID)
		}
		seen[rec.ID] = true
	}
	if records[0].ID != "dup" {
		t.Errorf("first record ID = %q, want dup", records[0].ID)
	}
}

func TestDetector_DecodeWithEnvelope(t *testing.T) {
	detector := NewDetector()

	if _, err := detector.DecodeWithEnvelope([]byte(`[{"message":"a"}]`), "transactions"); !errors.Is(err, ErrUnrecognizedPayload) {
		t.Errorf("DecodeWithEnvelope() error = %v, want ErrUnrecognizedPayload", err)
	}

	records, err := detector.DecodeWithEnvelope([]byte(`{"data":{"data":{"transactions":[{"message":"a"}]}}}`), "transactions")
	if err != nil {
		t.Fatalf("DecodeWithEnvelope() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("DecodeWithEnvelope() got %d records, want 1", len(records))
	}

	if _, err := detector.DecodeWithEnvelope([]byte(`[]`), "xml"); err == nil {
		t.Error("DecodeWithEnvelope() with unknown envelope returned nil error")
	}

	if _, err := detector.DecodeWithEnvelope([]byte(`[]`), "auto"); err != nil {
		t.Errorf("DecodeWithEnvelope(auto) error = %v", err)
	}
}
