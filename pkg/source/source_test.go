package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSource_Fetch(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"message":"hi"}]`))
	}))
	defer srv.Close()

	tests := []struct {
		domain    string
		wantPath  string
		wantQuery string
		envelope  string
	}{
		{"auth", "/api/logs/auth", "", "auto"},
		{"system", "/api/logs/system", "", "auto"},
		{"transactions", "/api/transactions", "limit=50&page=1", "transactions"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			s := New(Options{BaseURL: srv.URL + "/", Timeout: time.Second, TransactionsLimit: 50}, tt.domain)
			body, err := s.Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(body) != `[{"message":"hi"}]` {
				t.Errorf("Fetch() body = %s", body)
			}
			if gotPath != tt.wantPath || gotQuery != tt.wantQuery {
				t.Errorf("request = %s?%s, want %s?%s", gotPath, gotQuery, tt.wantPath, tt.wantQuery)
			}
			if s.Envelope() != tt.envelope {
				t.Errorf("Envelope() = %s, want %s", s.Envelope(), tt.envelope)
			}
		})
	}
}

func TestHTTPSource_FetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}, "auth").Fetch(context.Background())
	if !errors.Is(err, ErrStatus) {
		t.Errorf("Fetch() error = %v, want ErrStatus", err)
	}
}

func TestHTTPSource_FetchTooLarge(t *testing.T) {
	old := maxBody
	maxBody = 16
	defer func() { maxBody = old }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/logs/users" {
			w.Write([]byte(`[{"message":"hi"}]`)) // 18 bytes
			return
		}
		w.Write([]byte(`[{"id":"a"}]`))
	}))
	defer srv.Close()

	if _, err := New(Options{BaseURL: srv.URL}, "users").Fetch(context.Background()); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch() error = %v, want ErrTooLarge", err)
	}
	if body, err := New(Options{BaseURL: srv.URL}, "auth").Fetch(context.Background()); err != nil || string(body) != `[{"id":"a"}]` {
		t.Errorf("Fetch() under the cap = %s, %v", body, err)
	}
}

func TestHTTPSource_FetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Options{BaseURL: srv.URL}, "auth").Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestHTTPSource_Clear(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(Options{BaseURL: srv.URL}, "users").Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if method != http.MethodDelete || path != "/api/logs/users" {
		t.Errorf("request = %s %s", method, path)
	}
}

func TestStatic(t *testing.T) {
	s := &Static{Domain: "auth", Payload: []byte(`[]`)}
	if body, err := s.Fetch(context.Background()); err != nil || string(body) != "[]" {
		t.Errorf("Fetch() = %s, %v", body, err)
	}

	s.Err = errors.New("down")
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("Fetch() with Err returned nil error")
	}
}
