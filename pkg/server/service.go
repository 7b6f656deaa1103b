package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/parser"
	"github.com/mchurichi/logdeck/pkg/record"
	"github.com/mchurichi/logdeck/pkg/storage"
)

const (
	maxIngestBody    = 32 << 20
	defaultTxLimit   = 100
	maxTxLimit       = 1000
	defaultLogsLimit = 1000
)

// DecodeEvents splits a posted payload into events of domain. It accepts a
// JSON array, a {"logs": [...]} object, a single record object or a bare
// string, which is stored as the record's message. Records
// without an id or timestamp get one so every reader sees the same values.
func DecodeEvents(domain string, body []byte) ([]*storage.Event, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parser.ErrUnrecognizedPayload, err)
	}

	var items []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		items, _ = v.Array()
	case fastjson.TypeObject:
		if logs := v.Get("logs"); logs != nil && logs.Type() == fastjson.TypeArray {
			items, _ = logs.Array()
		} else {
			items = []*fastjson.Value{v}
		}
	case fastjson.TypeString:
		items = []*fastjson.Value{v}
	default:
		return nil, parser.ErrUnrecognizedPayload
	}

	normalizer := parser.NewNormalizer()
	var a fastjson.Arena
	events := make([]*storage.Event, 0, len(items))

	for _, item := range items {
		switch item.Type() {
		case fastjson.TypeObject:
		case fastjson.TypeString:
			// Bare strings are stored as messages
			obj := a.NewObject()
			obj.Set("message", item)
			item = obj
		default:
			continue
		}

		rec := normalizer.Normalize(item)
		if item.Get("id") == nil {
			item.Set("id", a.NewString(rec.ID))
		}
		if !rec.TimestampValid && item.Get("timestamp") == nil {
			item.Set("timestamp", a.NewString(rec.Timestamp.UTC().Format(time.RFC3339Nano)))
		}

		events = append(events, &storage.Event{
			ID:        rec.ID,
			Domain:    domain,
			Timestamp: rec.Timestamp,
			Level:     string(rec.Level),
			Raw:       item.MarshalTo(nil),
		})
	}

	return events, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, s)
	}
	return n, nil
}

func rawLogs(events []*storage.Event) []json.RawMessage {
	logs := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		logs = append(logs, e.Raw)
	}
	return logs
}

func storageStatus(err error) int {
	if errors.Is(err, storage.ErrInvalidDomain) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleLogs handles GET /api/logs/{domain}?level&limit&offset
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	q := r.URL.Query()

	limit, err := intParam(q, "limit", defaultLogsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var filter storage.Filter = storage.AllFilter{}
	if lvl := strings.TrimSpace(q.Get("level")); lvl != "" && lvl != record.All {
		filter = storage.LevelFilter{Level: string(record.ParseLevel(lvl))}
	}

	events, total, err := s.storage.Query(domain, filter, limit, offset)
	if err != nil {
		writeError(w, storageStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  rawLogs(events),
		"total": total,
	})
}

// handleIngest handles POST /api/logs/{domain}
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	events, err := DecodeEvents(domain, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.storage.StoreBatch(events); err != nil {
		writeError(w, storageStatus(err), err)
		return
	}
	s.metrics.Ingested(domain, len(events))

	writeJSON(w, http.StatusCreated, map[string]any{"stored": len(events)})
}

// handleClear handles DELETE /api/logs/{domain}
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")

	deleted, err := s.storage.DeleteAll(domain)
	if err != nil {
		writeError(w, storageStatus(err), err)
		return
	}
	s.logger.Info("Cleared logs", "domain", domain, "deleted", deleted)

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// handleTransactions handles GET /api/transactions?page&limit. The
// response keeps the nested envelope the payment service uses.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(q, "limit", defaultTxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	page = max(page, 1)
	if limit == 0 {
		limit = defaultTxLimit
	}
	limit = min(limit, maxTxLimit)

	events, total, err := s.storage.Query(classify.DomainTransactions, storage.AllFilter{}, limit, (page-1)*limit)
	if err != nil {
		writeError(w, storageStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"data": map[string]any{
				"transactions": rawLogs(events),
				"total":        total,
				"page":         page,
				"limit":        limit,
			},
		},
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_logs": stats.TotalLogs,
		"db_size_mb": stats.DBSizeMB,
		"domains":    stats.Domains,
		"levels":     stats.Levels,
	})
}
