package storage

import (
	"encoding/json"
	"time"
)

// Event is one raw log event held by the log service. Raw is stored
// verbatim; Timestamp and Level are extracted once for keys and indexes.
type Event struct {
	ID        string          `json:"id"`
	Domain    string          `json:"domain"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Raw       json.RawMessage `json:"raw"`
}

// ToJSON serializes the Event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes JSON to Event
func FromJSON(data []byte) (*Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return &e, err
}
