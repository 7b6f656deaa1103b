package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mchurichi/logdeck/pkg/metrics"
	"github.com/mchurichi/logdeck/pkg/storage"
	"github.com/mchurichi/logdeck/pkg/view"
)

// Options selects what the server exposes. Views enables the dashboard
// API and live snapshots; Storage enables the log service API.
type Options struct {
	Views   *view.Manager
	Storage *storage.BadgerStorage
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	views    *view.Manager
	storage  *storage.BadgerStorage
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*client
	mu       sync.RWMutex
}

// New creates a new HTTP server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		views:   opts.Views,
		storage: opts.Storage,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
		},
		clients: make(map[*websocket.Conn]*client),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	if s.views != nil {
		mux.HandleFunc("GET /api/views", s.handleViews)
		mux.HandleFunc("GET /api/views/{domain}", s.handleSnapshot)
		mux.HandleFunc("POST /api/views/{domain}/refresh", s.handleRefresh)
		mux.HandleFunc("POST /api/views/{domain}/visibility", s.handleVisibility)
		mux.HandleFunc("DELETE /api/views/{domain}/banner", s.handleDismissBanner)
		mux.HandleFunc("GET /api/views/{domain}/export", s.handleExport)
		mux.HandleFunc("GET /ws/{domain}", s.handleWebSocket)
	}

	if s.storage != nil {
		mux.HandleFunc("GET /api/logs/{domain}", s.handleLogs)
		mux.HandleFunc("POST /api/logs/{domain}", s.handleIngest)
		mux.HandleFunc("DELETE /api/logs/{domain}", s.handleClear)
		mux.HandleFunc("GET /api/transactions", s.handleTransactions)
		mux.HandleFunc("GET /api/stats", s.handleStats)
	}

	return mux
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()
	s.logger.Info("Starting server", "url", "http://localhost"+addr)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
	}

	if s.storage != nil {
		stats, err := s.storage.GetStats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		response["logs_stored"] = stats.TotalLogs
		response["db_size_bytes"] = int64(stats.DBSizeMB * 1024 * 1024)
	}
	if s.views != nil {
		response["views"] = s.views.Domains()
	}

	writeJSON(w, http.StatusOK, response)
}

// writeJSON encodes v before writing the header so an unencodable value
// is answered with a 500 instead of an empty 200
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
