// Package recordstore persists one metadata record per video id as a
// JSON file under the cache directory.
package recordstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vebland/clipvault/internal/apperr"
	"github.com/vebland/clipvault/internal/models"
)

// Ext is the record file extension. Sibling files sharing the same
// "<id>." prefix are treated as stale artifacts.
const Ext = ".info"

const tmpPattern = ".clipvault-tmp-*"

// Summary is what a directory scan yields per readable record.
type Summary struct {
	ID       string
	URL      string
	Title    string
	Checksum string
	ModTime  time.Time
}

// Store owns the record file lifecycle under a single directory.
// No other component writes to that directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("recordstore: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("recordstore: create dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: abs, logger: logger}, nil
}

// Dir returns the absolute cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the record file path for a video id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+Ext)
}

// safeID rejects identifiers that could escape the cache directory.
func safeID(id string) error {
	if id == "" {
		return fmt.Errorf("recordstore: empty id")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("recordstore: unsafe id: %q", id)
	}
	return nil
}

// Write atomically persists a record: temp file in the same directory,
// fsync, rename. Readers never observe a partially written file; a
// crash mid-write leaves the previous version intact. Returns the
// SHA-256 checksum of the encoded bytes.
func (s *Store) Write(id string, rec *models.Record) (string, error) {
	if err := safeID(id); err != nil {
		return "", err
	}
	data, err := models.EncodeRecord(rec)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, tmpPattern)
	if err != nil {
		return "", fmt.Errorf("recordstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("recordstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("recordstore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("recordstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(id)); err != nil {
		return "", fmt.Errorf("recordstore: rename: %w", err)
	}
	success = true

	s.logger.Debug("recordstore: wrote record", slog.String("id", id))
	return checksum(data), nil
}

// Read loads and decodes the record for id. A missing file surfaces as
// fs.ErrNotExist; a present but undecodable file is a CorruptRecordError.
func (s *Store) Read(id string) (*models.Record, error) {
	if err := safeID(id); err != nil {
		return nil, err
	}
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recordstore: read %s: %w", id, err)
	}
	rec, err := models.DecodeRecord(data)
	if err != nil {
		return nil, &apperr.CorruptRecordError{Path: path, Err: err}
	}
	return rec, nil
}

// Exists reports whether a record file is present for id.
func (s *Store) Exists(id string) bool {
	if safeID(id) != nil {
		return false
	}
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// Touch bumps the record file's modification time, the on-disk recency
// marker, without rewriting content.
func (s *Store) Touch(id string) error {
	if err := safeID(id); err != nil {
		return err
	}
	now := time.Now()
	if err := os.Chtimes(s.Path(id), now, now); err != nil {
		return fmt.Errorf("recordstore: touch %s: %w", id, err)
	}
	return nil
}

// DeletePrefix removes every regular file named "<id>.*" except keep
// (an absolute path, may be empty). Cleanup is best-effort: individual
// failures are logged and swallowed so they never fail the caller's
// primary operation.
func (s *Store) DeletePrefix(id string, keep string) {
	if err := safeID(id); err != nil {
		s.logger.Warn("recordstore: skip cleanup", slog.String("error", err.Error()))
		return
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("recordstore: cleanup scan failed", slog.String("error", err.Error()))
		return
	}
	prefix := id + "."
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if keep != "" && path == keep {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("recordstore: delete stale file failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("recordstore: removed stale file", slog.String("path", path))
	}
}

// ListAll scans the cache directory once and returns a summary per
// readable record, in directory order. Unreadable or malformed entries
// are skipped with a warning rather than failing the whole scan.
func (s *Store) ListAll() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("recordstore: list: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("recordstore: scan read failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		rec, err := models.DecodeRecord(data)
		if err != nil {
			s.logger.Warn("recordstore: scan skipped malformed record",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		// The file name is the join key; a record whose stated id
		// disagrees with it cannot be indexed consistently.
		if id := strings.TrimSuffix(e.Name(), Ext); id != rec.ID {
			s.logger.Warn("recordstore: scan skipped record with mismatched id",
				slog.String("path", path),
				slog.String("id", rec.ID))
			continue
		}
		out = append(out, Summary{
			ID:       rec.ID,
			URL:      rec.URL,
			Title:    rec.Title,
			Checksum: checksum(data),
			ModTime:  info.ModTime(),
		})
	}
	return out, nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
