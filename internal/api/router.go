package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vebland/clipvault/internal/cache"
	"github.com/vebland/clipvault/internal/history"
)

// NewRouter creates a chi router with all API routes mounted.
// hist may be nil (stats disabled), fetcher may be nil (transcripts
// disabled), and sseHandler may be nil (no event stream).
func NewRouter(mgr *cache.Manager, hist *history.Log, fetcher TranscriptFetcher,
	authEnabled bool, token string, sseHandler http.Handler, defaultRetain int) chi.Router {
	h := NewHandler(mgr, hist, defaultRetain)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Metadata lookup-or-fetch.
	r.Get("/metadata", h.GetMetadata)
	r.Post("/metadata/refresh", h.RefreshMetadata)

	// Cache listing and retention.
	r.Get("/choices", h.ListChoices)
	r.Post("/evict", h.Evict)
	r.Delete("/records/{id}", h.RemoveRecord)

	// Lookup history.
	r.Get("/stats", h.Stats)

	// Transcripts, only when a fetcher is wired in.
	if fetcher != nil {
		th := NewTranscriptHandler(mgr, fetcher)
		r.Get("/transcript", th.Fetch)
	}

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
