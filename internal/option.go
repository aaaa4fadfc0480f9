package internal

import (
	"github.com/vebland/clipvault/internal/api"
	"github.com/vebland/clipvault/internal/cache"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	provider   cache.Provider
	transcript api.TranscriptFetcher
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithProvider overrides the metadata provider (the default is the
// oEmbed implementation). Mainly useful for tests and embedding.
func WithProvider(p cache.Provider) Option {
	return func(a *application) {
		a.provider = p
	}
}

// WithTranscriptFetcher wires an external transcript fetcher into the
// API. Without one the transcript endpoint is not mounted.
func WithTranscriptFetcher(f api.TranscriptFetcher) Option {
	return func(a *application) {
		a.transcript = f
	}
}
