package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/query"
	"github.com/mchurichi/logdeck/pkg/record"
)

func entry(level record.Level, msg, user, email string) *record.LogRecord {
	meta := map[string]any{"email": record.NoEmail}
	if email != "" {
		meta["email"] = email
	}
	return &record.LogRecord{
		ID:             msg,
		Timestamp:      time.Now(),
		TimestampValid: true,
		Level:          level,
		Message:        msg,
		UserID:         user,
		Meta:           meta,
	}
}

func classifier(t *testing.T, domain string) *classify.Classifier {
	t.Helper()
	tax, err := classify.Builtin(domain)
	if err != nil {
		t.Fatalf("Builtin(%s) error = %v", domain, err)
	}
	return classify.MustNew(tax)
}

func TestSummarize_UniqueUsersUnion(t *testing.T) {
	records := []*record.LogRecord{
		entry(record.LevelInfo, "a", record.AnonymousUser, "a@x.com"),
		entry(record.LevelInfo, "b", "u1", "a@x.com"),
	}

	s := Summarize(records, classifier(t, classify.DomainAuth))
	if got := s.Get(UniqueUsers); got != 2 {
		t.Errorf("Summarize() uniqueUsers = %d, want 2", got)
	}
}

func TestSummarize_IgnoresSentinels(t *testing.T) {
	records := []*record.LogRecord{
		entry(record.LevelInfo, "a", record.AnonymousUser, ""),
		entry(record.LevelInfo, "b", record.AnonymousUser, ""),
	}
	if got := Summarize(records, nil).Get(UniqueUsers); got != 0 {
		t.Errorf("Summarize() uniqueUsers = %d, want 0", got)
	}
}

func TestSummarize_Counters(t *testing.T) {
	records := []*record.LogRecord{
		entry(record.LevelInfo, "User logged in successfully", "u1", ""),
		entry(record.LevelWarn, "Failed login attempt", record.AnonymousUser, "b@x.com"),
		entry(record.LevelError, "Login denied: invalid token", "u2", ""),
		entry(record.LevelInfo, "New user registered", "u3", ""),
	}

	s := Summarize(records, classifier(t, classify.DomainAuth))

	want := map[string]int{
		Total:            4,
		Errors:           1,
		Warnings:         1,
		UniqueUsers:      4,
		SuccessRate:      33,
		"logins":         3,
		"failedLogins":   2,
		"registrations":  1,
		"passwordResets": 0,
	}
	for k, v := range want {
		if got := s.Get(k); got != v {
			t.Errorf("Summarize() %s = %d, want %d", k, got, v)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, classifier(t, classify.DomainSystem))
	if s.Get(Total) != 0 || s.Get(SuccessRate) != 0 {
		t.Errorf("Summarize(nil) = %v", s.Map())
	}
	if _, ok := s.Map()["apiRequests"]; !ok {
		t.Error("Summarize(nil) missing domain counter apiRequests")
	}
}

func TestSummarize_TotalMatchesFilteredLength(t *testing.T) {
	c := classifier(t, classify.DomainAuth)
	records := []*record.LogRecord{
		entry(record.LevelInfo, "User logged in", "u1", ""),
		entry(record.LevelError, "Failed login", "u2", ""),
		entry(record.LevelWarn, "Password reset requested", "u3", ""),
	}

	for _, crit := range []query.Criteria{
		query.DefaultCriteria(),
		{Level: "error"},
		{Category: "login"},
		{Search: "password"},
		{Search: "nothing matches"},
	} {
		filtered := query.Apply(records, crit, c, time.Now())
		if got := Summarize(filtered, c).Get(Total); got != len(filtered) {
			t.Errorf("criteria %+v: total = %d, want %d", crit, got, len(filtered))
		}
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		success, failure, want int
	}{
		{0, 0, 0},
		{1, 0, 100},
		{0, 5, 0},
		{1, 2, 33},
		{2, 1, 67},
		{1, 7, 13}, // 12.5 rounds up
		{1, 1, 50},
	}
	for _, tt := range tests {
		if got := Rate(tt.success, tt.failure); got != tt.want {
			t.Errorf("Rate(%d, %d) = %d, want %d", tt.success, tt.failure, got, tt.want)
		}
	}
}

func TestStats_MarshalJSONKeepsOrder(t *testing.T) {
	s := Summarize(nil, classifier(t, classify.DomainUsers))
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"total":0,"errors":0,"warnings":0,"uniqueUsers":0,"successRate":0,"registrations":0,"profileUpdates":0,"roleChanges":0,"deletions":0,"suspensions":0}`
	if string(data) != want {
		t.Errorf("json.Marshal() = %s, want %s", data, want)
	}
}
