package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/export"
	"github.com/mchurichi/logdeck/pkg/query"
	"github.com/mchurichi/logdeck/pkg/view"
)

type viewInfo struct {
	Domain     string                  `json:"domain"`
	Title      string                  `json:"title"`
	Categories []classify.CategoryInfo `json:"categories"`
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*view.View, bool) {
	domain := r.PathValue("domain")
	v, ok := s.views.Get(domain)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown domain: %s", domain))
	}
	return v, ok
}

// handleViews handles GET /api/views
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	infos := make([]viewInfo, 0, len(s.views.Domains()))
	for _, domain := range s.views.Domains() {
		v, _ := s.views.Get(domain)
		c := v.Classifier()
		infos = append(infos, viewInfo{
			Domain:     domain,
			Title:      c.Taxonomy().Title,
			Categories: c.Categories(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": infos})
}

// handleSnapshot handles GET /api/views/{domain}. The snapshot reflects
// the request's own parameters; nothing is stored on the view.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sel, err := selectionFrom(v, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Render(sel))
}

// selectionFrom builds a selection from request parameters. Absent
// parameters keep their defaults.
func selectionFrom(v *view.View, q url.Values) (view.Selection, error) {
	sel := v.DefaultSelection()
	if q.Has("search") || q.Has("level") || q.Has("range") || q.Has("category") {
		c, err := query.ParseCriteria(q)
		if err != nil {
			return sel, err
		}
		if sel.Criteria, err = v.ValidateCriteria(c); err != nil {
			return sel, err
		}
	}
	if q.Has("pageSize") {
		n, err := strconv.Atoi(q.Get("pageSize"))
		if err != nil || n < 1 {
			return sel, fmt.Errorf("invalid pageSize: %s", q.Get("pageSize"))
		}
		sel.PageSize = n
	}
	if q.Has("page") {
		n, err := strconv.Atoi(q.Get("page"))
		if err != nil {
			return sel, fmt.Errorf("invalid page: %s", q.Get("page"))
		}
		sel.Page = n
	}
	return sel, nil
}

// handleRefresh handles POST /api/views/{domain}/refresh and answers with
// the snapshot its parameters select
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sel, err := selectionFrom(v, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := v.Refresh(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, view.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Render(sel))
}

// handleVisibility handles POST /api/views/{domain}/visibility
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Visible *bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visible == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"visible": true|false}`))
		return
	}

	v.SetVisible(*req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

// handleDismissBanner handles DELETE /api/views/{domain}/banner
func (s *Server) handleDismissBanner(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	v.DismissBanner()
	w.WriteHeader(http.StatusNoContent)
}

// handleExport handles GET /api/views/{domain}/export?search&level&range&category
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sel, err := selectionFrom(v, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a, err := v.ExportWith(sel.Criteria)
	if err != nil {
		s.logger.Error("Export failed", "domain", v.Domain(), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := export.WriteTo(w, r, a); err != nil {
		s.logger.Warn("Export write failed", "domain", v.Domain(), "error", err)
	}
}
