package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/malbeclabs/calldash/api/crm"
	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/view"
)

// ListLeads serves a filtered, sorted page of the current snapshot.
func (s *Server) ListLeads(w http.ResponseWriter, r *http.Request) {
	snap, hit, err := s.cfg.Cache.Lookup(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to fetch leads", err, false)
		return
	}
	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, view.Build(snap, view.ParseQuery(r.URL.Query()), s.now()))
}

// GetLead serves one lead from the snapshot, falling back to the upstream store
// for records created since the last refresh.
func (s *Server) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.cfg.Cache.Get(r.Context())
	if err != nil {
		s.log.Warn("leads: snapshot unavailable, falling back to upstream", "id", id, "error", err)
	} else if rec, ok := snap.Find(id); ok {
		setCacheHeader(w, true)
		writeJSON(w, http.StatusOK, rec)
		return
	}

	raw, err := s.cfg.Store.Get(r.Context(), id)
	if err != nil {
		if crm.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		s.writeUpstreamError(w, "failed to fetch lead", err, false)
		return
	}
	setCacheHeader(w, false)
	writeJSON(w, http.StatusOK, leads.Normalize(*raw, s.cfg.Agents))
}

type mutationRequest struct {
	Fields map[string]any `json:"fields"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) CreateLead(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := s.cfg.Store.Create(r.Context(), fields)
	if err != nil {
		s.writeUpstreamError(w, "failed to create lead", err, true)
		return
	}
	s.cfg.Cache.Invalidate()
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) UpdateLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := s.cfg.Store.Update(r.Context(), id, fields)
	if err != nil {
		s.writeUpstreamError(w, "failed to update lead", err, true)
		return
	}
	s.cfg.Cache.Invalidate()
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) DeleteLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cfg.Store.Delete(r.Context(), id); err != nil {
		s.writeUpstreamError(w, "failed to delete lead", err, true)
		return
	}
	s.cfg.Cache.Invalidate()
	writeJSON(w, http.StatusOK, deleteResponse{ID: id, Deleted: true})
}

type refreshResponse struct {
	Records    int    `json:"records"`
	CapturedAt string `json:"capturedAt"`
}

// Refresh forces a fetch regardless of snapshot age.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Cache.Refresh(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to refresh leads", err, false)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Records:    snap.Len(),
		CapturedAt: snap.CapturedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// decodeFields reads {"fields": {...}} and rejects a missing or empty map.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var req mutationRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return nil, false
	}
	return req.Fields, true
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
}
