package history

import (
	"fmt"
	"time"
)

// Stats aggregates lookup outcomes across the whole log.
type Stats struct {
	Total     int `json:"total"`
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Refreshes int `json:"refreshes"`
	Evictions int `json:"evictions"`
	Videos    int `json:"videos"`
}

// TopEntry is one row of the most-looked-up ranking.
type TopEntry struct {
	VideoID string    `json:"video_id"`
	Count   int       `json:"count"`
	LastAt  time.Time `json:"last_at"`
}

// Aggregate computes totals per outcome plus the distinct video count.
func (l *Log) Aggregate() (Stats, error) {
	var s Stats
	err := l.conn.QueryRow(`
		SELECT count(*),
		       count(*) FILTER (WHERE outcome = 'hit'),
		       count(*) FILTER (WHERE outcome = 'miss'),
		       count(*) FILTER (WHERE outcome = 'refresh'),
		       count(*) FILTER (WHERE outcome = 'evicted'),
		       count(DISTINCT video_id)
		FROM lookups
	`).Scan(&s.Total, &s.Hits, &s.Misses, &s.Refreshes, &s.Evictions, &s.Videos)
	if err != nil {
		return Stats{}, fmt.Errorf("history: aggregate: %w", err)
	}
	return s, nil
}

// sqliteTimeFormats covers the textual forms CURRENT_TIMESTAMP and the
// driver may produce.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Top returns the most frequently served video ids (hits, misses, and
// refreshes count as served; evictions and removals do not).
func (l *Log) Top(limit int) ([]TopEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.conn.Query(`
		SELECT video_id, count(*), max(at)
		FROM lookups
		WHERE outcome IN ('hit', 'miss', 'refresh')
		GROUP BY video_id
		ORDER BY count(*) DESC, max(at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: top: %w", err)
	}
	defer rows.Close()

	var out []TopEntry
	for rows.Next() {
		var e TopEntry
		var lastAt string
		if err := rows.Scan(&e.VideoID, &e.Count, &lastAt); err != nil {
			return nil, err
		}
		// max(at) loses the column's declared type, so the driver hands
		// back the raw text form.
		e.LastAt, err = parseSQLiteTime(lastAt)
		if err != nil {
			return nil, fmt.Errorf("history: top: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
