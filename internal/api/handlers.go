package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vebland/clipvault/internal/apperr"
	"github.com/vebland/clipvault/internal/cache"
	"github.com/vebland/clipvault/internal/history"
	"github.com/vebland/clipvault/internal/models"
)

// ChoicesResponse wraps the newest-first cache listing.
type ChoicesResponse struct {
	Choices []models.Choice `json:"choices"`
	Total   int             `json:"total"`
}

// RefreshRequest is the body for POST /metadata/refresh.
type RefreshRequest struct {
	URL string `json:"url"`
}

// EvictRequest is the body for POST /evict. Retain is a pointer so an
// omitted field can fall back to the configured default.
type EvictRequest struct {
	Retain *int `json:"retain"`
}

// EvictResponse reports the index size after eviction.
type EvictResponse struct {
	Retained int `json:"retained"`
}

// StatsResponse combines aggregate counters with the top lookups.
type StatsResponse struct {
	Stats history.Stats      `json:"stats"`
	Top   []history.TopEntry `json:"top"`
}

// Handler holds API route handlers.
type Handler struct {
	mgr           *cache.Manager
	hist          *history.Log
	defaultRetain int
}

// NewHandler creates a new Handler. hist may be nil (stats disabled).
func NewHandler(mgr *cache.Manager, hist *history.Log, defaultRetain int) *Handler {
	return &Handler{mgr: mgr, hist: hist, defaultRetain: defaultRetain}
}

// writeCacheErr maps the cache error taxonomy onto HTTP statuses.
func writeCacheErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidReference):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrInvalidArgument):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrUnresolvableID):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrCorruptRecord):
		// Left on disk for inspection; the caller gets the real path.
		writeErr(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, apperr.ErrProvider):
		writeErr(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("cache operation failed", slog.String("error", err.Error()))
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

// GetMetadata handles GET /api/metadata?url=. Serves from cache or
// fetches on a miss. Supports If-None-Match against the record's
// content checksum.
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if ref == "" {
		writeErr(w, http.StatusBadRequest, "query parameter 'url' is required")
		return
	}

	rec, err := h.mgr.GetMetadata(r.Context(), ref)
	if err != nil {
		writeCacheErr(w, err)
		return
	}

	if cs := h.mgr.Checksum(rec.ID); cs != "" {
		w.Header().Set("ETag", `"`+cs+`"`)
		if match := strings.Trim(r.Header.Get("If-None-Match"), `"`); match == cs {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

// RefreshMetadata handles POST /api/metadata/refresh. Replaces the
// stored record wholesale with a fresh provider fetch.
func (h *Handler) RefreshMetadata(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeErr(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := h.mgr.Refresh(r.Context(), req.URL)
	if err != nil {
		writeCacheErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListChoices handles GET /api/choices: the newest-first {title, url}
// projection UI front-ends render as a picker.
func (h *Handler) ListChoices(w http.ResponseWriter, r *http.Request) {
	choices := h.mgr.Choices()
	writeJSON(w, http.StatusOK, ChoicesResponse{Choices: choices, Total: len(choices)})
}

// Evict handles POST /api/evict. An omitted retain count falls back to
// the configured default.
func (h *Handler) Evict(w http.ResponseWriter, r *http.Request) {
	retain := h.defaultRetain
	if r.Body != nil && r.ContentLength != 0 {
		var req EvictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Retain != nil {
			retain = *req.Retain
		}
	}

	if err := h.mgr.Evict(retain); err != nil {
		writeCacheErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EvictResponse{Retained: h.mgr.Len()})
}

// RemoveRecord handles DELETE /api/records/{id}.
func (h *Handler) RemoveRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeErr(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.mgr.Remove(id); err != nil {
		writeCacheErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		writeErr(w, http.StatusNotFound, "history is not configured")
		return
	}
	stats, err := h.hist.Aggregate()
	if err != nil {
		slog.Error("stats aggregate failed", slog.String("error", err.Error()))
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	top, err := h.hist.Top(limit)
	if err != nil {
		slog.Error("stats top failed", slog.String("error", err.Error()))
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: stats, Top: top})
}
