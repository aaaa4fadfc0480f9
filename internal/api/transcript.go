package api

import (
	"context"
	"net/http"

	"github.com/vebland/clipvault/internal/cache"
)

// TranscriptFetcher retrieves a formatted transcript for a video id.
// Retrieval itself is an external collaborator; the cache core never
// touches transcripts.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, id, format string) (string, error)
}

// transcriptFormats maps accepted formats to response content types.
var transcriptFormats = map[string]string{
	"text": "text/plain; charset=utf-8",
	"srt":  "application/x-subrip",
	"vtt":  "text/vtt; charset=utf-8",
	"md":   "text/markdown; charset=utf-8",
}

// TranscriptHandler serves transcripts through an injected fetcher.
type TranscriptHandler struct {
	mgr     *cache.Manager
	fetcher TranscriptFetcher
}

// NewTranscriptHandler creates a handler over the given fetcher.
func NewTranscriptHandler(mgr *cache.Manager, fetcher TranscriptFetcher) *TranscriptHandler {
	return &TranscriptHandler{mgr: mgr, fetcher: fetcher}
}

// Fetch handles GET /api/transcript?url=&format=. With download=1 the
// response is sent as an attachment named after the video id.
func (h *TranscriptHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if ref == "" {
		writeErr(w, http.StatusBadRequest, "query parameter 'url' is required")
		return
	}
	id := h.mgr.Resolve(ref)
	if id == "" {
		writeErr(w, http.StatusBadRequest, "reference does not resolve to a video id")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "text"
	}
	contentType, ok := transcriptFormats[format]
	if !ok {
		writeErr(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}

	text, err := h.fetcher.FetchTranscript(r.Context(), id, format)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+format+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
