package mcpserver

// CacheLayoutContract documents the on-disk cache format for MCP
// clients that want to reason about the store directly.
const CacheLayoutContract = `# Clipvault cache layout

One JSON file per video at:

    <cache_dir>/<video_id>.info

- video_id is the canonical 11-character id derived from the URL.
- The file is UTF-8, 2-space-indented JSON with the fields:
  id, url, title, description, channel, duration, upload_date, extra.
- Unknown fields in a stored file are ignored on read; a missing
  id, url, or title makes the record corrupt (it is reported, never
  silently replaced).
- The file's modification time is the recency marker: lookups touch
  it, and the in-memory index is rebuilt from a directory scan.
- Sibling files sharing the "<video_id>." prefix are stale artifacts
  from older formats and are deleted whenever the record is rewritten.

Writes are atomic (temp file + rename), so a reader always sees either
the previous record or the new one, never a truncated file.
`
