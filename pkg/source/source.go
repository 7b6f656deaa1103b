package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrStatus is returned when the log service answers with a non-2xx status
var ErrStatus = errors.New("unexpected status from log service")

// ErrTooLarge is returned when a payload exceeds the fetch cap
var ErrTooLarge = errors.New("log payload too large")

// maxBody caps a single fetch
var maxBody int64 = 32 << 20

// Source fetches the raw payload of one domain
type Source interface {
	Name() string
	// Envelope names the payload shape the parser should expect; "auto" detects it
	Envelope() string
	Fetch(ctx context.Context) ([]byte, error)
}

// Options configures an HTTPSource
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	TransactionsLimit int
}

// HTTPSource reads logs from the log service over HTTP
type HTTPSource struct {
	base   string
	domain string
	limit  int
	client *http.Client
}

// NewHTTPClient returns a client with bounded dial and handshake times
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// New creates a source for domain
func New(opts Options, domain string) *HTTPSource {
	to := opts.Timeout
	if to <= 0 {
		to = 15 * time.Second
	}
	limit := opts.TransactionsLimit
	if limit <= 0 {
		limit = 100
	}
	return &HTTPSource{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		domain: domain,
		limit:  limit,
		client: NewHTTPClient(to),
	}
}

func (s *HTTPSource) Name() string { return s.domain }

func (s *HTTPSource) Envelope() string {
	if s.domain == "transactions" {
		return "transactions"
	}
	return "auto"
}

// URL returns the endpoint the domain is fetched from. Transactions have
// their own paginated API; every other domain reads /api/logs/{domain}.
func (s *HTTPSource) URL() string {
	if s.domain == "transactions" {
		q := url.Values{}
		q.Set("page", "1")
		q.Set("limit", strconv.Itoa(s.limit))
		return s.base + "/api/transactions?" + q.Encode()
	}
	return s.base + "/api/logs/" + url.PathEscape(s.domain)
}

// Fetch performs a single GET; there is no retry
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s logs: %w", s.domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch %s logs: %w: %d", s.domain, ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s logs: %w", s.domain, err)
	}
	if int64(len(body)) > maxBody {
		return nil, fmt.Errorf("read %s logs: %w: over %d bytes", s.domain, ErrTooLarge, maxBody)
	}
	return body, nil
}

// Clear asks the log service to delete every log of the domain
func (s *HTTPSource) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.base+"/api/logs/"+url.PathEscape(s.domain), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("clear %s logs: %w", s.domain, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("clear %s logs: %w: %d", s.domain, ErrStatus, resp.StatusCode)
	}
	return nil
}

// Static serves a fixed payload. It backs views in tests and offline demos.
type Static struct {
	Domain  string
	Payload []byte
	Err     error
}

func (s *Static) Name() string     { return s.Domain }
func (s *Static) Envelope() string { return "auto" }

func (s *Static) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Payload, nil
}
