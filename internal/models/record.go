// Package models defines the domain types for Clipvault.
package models

import (
	"encoding/json"
	"fmt"
)

// Record is the cached metadata for one video. ID is the join key
// between the on-disk file name and the in-memory index entry; exactly
// one record file exists per ID at any time.
type Record struct {
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Duration    int64          `json:"duration,omitempty"` // seconds
	UploadDate  string         `json:"upload_date,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"` // provider-specific fields, carried opaquely
}

// Choice is a lightweight projection for presentation layers.
type Choice struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// allowedKeys is the declared record schema. Decoding drops anything
// else so the stored format can gain fields without breaking readers.
var allowedKeys = map[string]struct{}{
	"id":          {},
	"url":         {},
	"title":       {},
	"description": {},
	"channel":     {},
	"duration":    {},
	"upload_date": {},
	"extra":       {},
}

// EncodeRecord serializes a record as indented JSON, stable enough to
// diff by hand.
func EncodeRecord(r *Record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("models: encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeRecord parses a stored record. Unknown keys are dropped via
// the allow-list; a non-object document or a missing required field
// (id, url, title) is an error, never a silently defaulted record.
func DecodeRecord(data []byte) (*Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("models: decode record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("models: decode record: expected JSON object, got null")
	}

	for k := range raw {
		if _, ok := allowedKeys[k]; !ok {
			delete(raw, k)
		}
	}

	filtered, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("models: decode record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(filtered, &r); err != nil {
		return nil, fmt.Errorf("models: decode record: %w", err)
	}

	switch {
	case r.ID == "":
		return nil, fmt.Errorf("models: decode record: missing required field %q", "id")
	case r.URL == "":
		return nil, fmt.Errorf("models: decode record: missing required field %q", "url")
	case r.Title == "":
		return nil, fmt.Errorf("models: decode record: missing required field %q", "title")
	}

	return &r, nil
}
