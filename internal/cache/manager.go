// Package cache maintains the recency-ordered metadata index over the
// record store and orchestrates lookup-or-fetch against the external
// metadata provider.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vebland/clipvault/internal/apperr"
	"github.com/vebland/clipvault/internal/history"
	"github.com/vebland/clipvault/internal/models"
	"github.com/vebland/clipvault/internal/recordstore"
	"github.com/vebland/clipvault/internal/resolver"
)

// Provider fetches fresh metadata for a reference. The call may block
// for an unbounded duration; callers needing timeouts wrap the context.
type Provider interface {
	FetchMetadata(ctx context.Context, reference string) (*models.Record, error)
}

// EventCallback is invoked after index-mutating operations.
// kind is one of "cached", "refreshed", "evicted", "removed", "rebuilt".
type EventCallback func(kind, id string)

// Entry is one in-memory index entry. The index is derived state: it
// must always be rebuildable from the record store alone.
type Entry struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Checksum   string    `json:"checksum"`
	LastAccess time.Time `json:"last_access"`
}

// Manager owns the in-memory index. All operations are serialized by a
// single mutex; one lookup runs to completion before the next.
type Manager struct {
	store    *recordstore.Store
	provider Provider
	resolve  func(reference string) string
	logger   *slog.Logger

	hist    *history.Log  // optional
	onEvent EventCallback // optional

	mu      sync.Mutex
	entries []Entry
	pos     map[string]int
}

// NewManager creates a manager over store using the given provider.
func NewManager(store *recordstore.Store, provider Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		provider: provider,
		resolve:  resolver.VideoID,
		logger:   logger,
		pos:      make(map[string]int),
	}
}

// SetHistory attaches an optional lookup-history log. Logging failures
// are warned and swallowed; history never fails a cache operation.
func (m *Manager) SetHistory(h *history.Log) { m.hist = h }

// SetEventCallback attaches an optional event listener.
func (m *Manager) SetEventCallback(cb EventCallback) { m.onEvent = cb }

func (m *Manager) emit(kind, id string) {
	if m.onEvent != nil {
		m.onEvent(kind, id)
	}
}

func (m *Manager) logOutcome(id, reference, outcome string) {
	if m.hist == nil {
		return
	}
	if err := m.hist.Record(id, reference, outcome); err != nil {
		m.logger.Warn("cache: history record failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
}

// RebuildIndex clears the in-memory index and repopulates it from a
// disk scan, newest first. This is the sole recovery path; the index
// is never trusted blindly across a restart.
func (m *Manager) RebuildIndex() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuildLocked()
}

func (m *Manager) rebuildLocked() error {
	summaries, err := m.store.ListAll()
	if err != nil {
		return fmt.Errorf("cache: rebuild index: %w", err)
	}

	entries := make([]Entry, 0, len(summaries))
	for _, s := range summaries {
		entries = append(entries, Entry{
			ID:         s.ID,
			URL:        s.URL,
			Title:      s.Title,
			Checksum:   s.Checksum,
			LastAccess: s.ModTime,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastAccess.After(entries[j].LastAccess)
	})

	m.entries = entries
	m.reindexLocked()
	m.logger.Debug("cache: index rebuilt", slog.Int("entries", len(entries)))
	return nil
}

// reindexLocked recomputes the id→position map after any reordering.
func (m *Manager) reindexLocked() {
	m.pos = make(map[string]int, len(m.entries))
	for i, e := range m.entries {
		m.pos[e.ID] = i
	}
}

// sortLocked restores newest-first order. The sort is stable and new
// entries are prepended first, so identical timestamps break toward
// the most recent insertion.
func (m *Manager) sortLocked() {
	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].LastAccess.After(m.entries[j].LastAccess)
	})
	m.reindexLocked()
}

// dropLocked removes the index entry for id, if any.
func (m *Manager) dropLocked(id string) {
	i, ok := m.pos[id]
	if !ok {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	m.reindexLocked()
}

// GetMetadata resolves a reference and serves its record from the
// cache, fetching from the provider on a miss. On a hit the record's
// recency is refreshed. A reference that cannot be resolved mutates
// neither the index nor the filesystem.
func (m *Manager) GetMetadata(ctx context.Context, reference string) (*models.Record, error) {
	id := m.resolve(reference)
	if id == "" {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidReference, reference)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pos[id]; ok {
		if m.store.Exists(id) {
			rec, err := m.store.Read(id)
			if err != nil {
				// Corrupt cache fails loudly; the file stays put so
				// the operator can inspect it.
				return nil, err
			}
			if err := m.store.Touch(id); err != nil {
				m.logger.Warn("cache: touch failed",
					slog.String("id", id),
					slog.String("error", err.Error()))
			}
			i := m.pos[id]
			m.entries[i].LastAccess = time.Now()
			m.sortLocked()
			m.logOutcome(id, reference, history.OutcomeHit)
			return rec, nil
		}
		// Index is stale relative to disk: prune and fall through to
		// miss handling.
		m.logger.Warn("cache: index entry without backing file", slog.String("id", id))
		m.dropLocked(id)
	}

	rec, err := m.fetchAndStoreLocked(ctx, reference)
	if err != nil {
		return nil, err
	}
	m.logOutcome(rec.ID, reference, history.OutcomeMiss)
	m.emit("cached", rec.ID)
	return rec, nil
}

// Refresh re-fetches metadata for a reference and replaces the stored
// record wholesale, regardless of any cached copy.
func (m *Manager) Refresh(ctx context.Context, reference string) (*models.Record, error) {
	id := m.resolve(reference)
	if id == "" {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidReference, reference)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.fetchAndStoreLocked(ctx, reference)
	if err != nil {
		return nil, err
	}
	m.logOutcome(rec.ID, reference, history.OutcomeRefresh)
	m.emit("refreshed", rec.ID)
	return rec, nil
}

func (m *Manager) fetchAndStoreLocked(ctx context.Context, reference string) (*models.Record, error) {
	rec, err := m.provider.FetchMetadata(ctx, reference)
	if err != nil {
		if errors.Is(err, apperr.ErrProvider) {
			return nil, err
		}
		return nil, &apperr.ProviderError{Reference: reference, Err: err}
	}
	if err := m.storeLocked(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Store persists a record and inserts it at the front of the index.
func (m *Manager) Store(rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.storeLocked(rec); err != nil {
		return err
	}
	m.emit("cached", rec.ID)
	return nil
}

func (m *Manager) storeLocked(rec *models.Record) error {
	// Trust the stated id only when it already is canonical; otherwise
	// re-derive from the record's own reference.
	id := rec.ID
	if m.resolve(id) != id {
		id = m.resolve(rec.URL)
		if id == "" {
			return fmt.Errorf("%w: id %q, url %q", apperr.ErrUnresolvableID, rec.ID, rec.URL)
		}
		rec.ID = id
	}

	// Purge stale artifacts (legacy formats, lock files, partial
	// writes) before the record itself lands.
	m.store.DeletePrefix(id, m.store.Path(id))

	cs, err := m.store.Write(id, rec)
	if err != nil {
		return err
	}

	m.dropLocked(id)
	m.entries = append([]Entry{{
		ID:         id,
		URL:        rec.URL,
		Title:      rec.Title,
		Checksum:   cs,
		LastAccess: time.Now(),
	}}, m.entries...)
	m.sortLocked()

	m.logger.Info("cache: stored record",
		slog.String("id", id),
		slog.String("title", rec.Title))
	return nil
}

// Remove deletes every artifact for the resolved reference and drops
// its index entry.
func (m *Manager) Remove(reference string) error {
	id := m.resolve(reference)
	if id == "" {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidReference, reference)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.DeletePrefix(id, "")
	m.dropLocked(id)
	m.logOutcome(id, reference, history.OutcomeRemoved)
	m.emit("removed", id)
	return nil
}

// Evict keeps the retain most-recently-used entries and deletes every
// artifact of the rest. Running it twice with the same retain count is
// a no-op the second time.
func (m *Manager) Evict(retain int) error {
	if retain < 0 {
		return fmt.Errorf("%w: retain count must be >= 0, got %d", apperr.ErrInvalidArgument, retain)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if retain >= len(m.entries) {
		return nil
	}

	victims := m.entries[retain:]
	for _, e := range victims {
		m.store.DeletePrefix(e.ID, "")
		m.logOutcome(e.ID, "", history.OutcomeEvicted)
		m.emit("evicted", e.ID)
	}

	m.entries = append([]Entry(nil), m.entries[:retain]...)
	m.reindexLocked()
	m.logger.Info("cache: evicted entries",
		slog.Int("evicted", len(victims)),
		slog.Int("retained", len(m.entries)))
	return nil
}

// Choices returns a newest-first {title, url} projection of the index
// for presentation. Entries missing either field are skipped.
func (m *Manager) Choices() []models.Choice {
	m.mu.Lock()
	defer m.mu.Unlock()

	choices := make([]models.Choice, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Title == "" || e.URL == "" {
			continue
		}
		choices = append(choices, models.Choice{Title: e.Title, URL: e.URL})
	}
	return choices
}

// Entries returns a copy of the index, newest first.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Checksum returns the indexed content checksum for id, or "".
func (m *Manager) Checksum(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pos[id]; ok {
		return m.entries[i].Checksum
	}
	return ""
}

// Len returns the number of indexed entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Resolve exposes identifier resolution for collaborating layers.
func (m *Manager) Resolve(reference string) string {
	return m.resolve(reference)
}

// IsNotExist reports whether err is a missing-file error from the
// store, kept here so callers need not import io/fs.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
