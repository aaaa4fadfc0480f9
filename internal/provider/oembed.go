// Package provider implements the external metadata source consumed by
// the cache manager.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vebland/clipvault/internal/apperr"
	"github.com/vebland/clipvault/internal/models"
	"github.com/vebland/clipvault/internal/resolver"
)

// DefaultEndpoint is the public oEmbed endpoint for video metadata.
const DefaultEndpoint = "https://www.youtube.com/oembed"

const defaultTimeout = 15 * time.Second

// OEmbed fetches video metadata from an oEmbed endpoint.
type OEmbed struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewOEmbed creates a provider against endpoint (empty for the
// default). timeout bounds each request; zero means the default.
func NewOEmbed(endpoint string, timeout time.Duration, logger *slog.Logger) *OEmbed {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OEmbed{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// oembedResponse is the subset of the oEmbed payload we keep as
// declared fields; the rest rides along in Record.Extra.
type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	ProviderName string `json:"provider_name"`
}

// FetchMetadata implements cache.Provider. Every failure mode is
// wrapped as a ProviderError so the core can propagate it unchanged.
func (p *OEmbed) FetchMetadata(ctx context.Context, reference string) (*models.Record, error) {
	id := resolver.VideoID(reference)
	if id == "" {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidReference, reference)
	}
	watch := resolver.WatchURL(id)

	reqURL := p.endpoint + "?format=json&url=" + url.QueryEscape(watch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &apperr.ProviderError{Reference: reference, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &apperr.ProviderError{Reference: reference, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.ProviderError{
			Reference: reference,
			Err:       fmt.Errorf("unexpected status %d from %s", resp.StatusCode, p.endpoint),
		}
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &apperr.ProviderError{Reference: reference, Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.Title == "" {
		return nil, &apperr.ProviderError{Reference: reference, Err: fmt.Errorf("response missing title")}
	}

	p.logger.Debug("provider: fetched metadata",
		slog.String("id", id),
		slog.String("title", body.Title))

	rec := &models.Record{
		ID:      id,
		URL:     watch,
		Title:   body.Title,
		Channel: body.AuthorName,
	}
	extra := map[string]any{}
	if body.AuthorURL != "" {
		extra["channel_url"] = body.AuthorURL
	}
	if body.ThumbnailURL != "" {
		extra["thumbnail_url"] = body.ThumbnailURL
	}
	if body.ProviderName != "" {
		extra["provider_name"] = body.ProviderName
	}
	if len(extra) > 0 {
		rec.Extra = extra
	}
	return rec, nil
}
