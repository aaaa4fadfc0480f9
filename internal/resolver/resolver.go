// Package resolver derives canonical video identifiers from user references.
package resolver

import (
	"net/url"
	"regexp"
	"strings"
)

// canonicalIDRe matches a canonical 11-character video id.
var canonicalIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// pathPrefixes are URL path forms that carry the id as the next segment.
var pathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// VideoID resolves a user reference (URL or bare id) to a canonical
// video id. Returns "" when no id can be derived.
func VideoID(reference string) string {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return ""
	}

	// A reference that already is a canonical id resolves to itself.
	if canonicalIDRe.MatchString(ref) {
		return ref
	}

	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); canonicalIDRe.MatchString(id) {
			return id
		}
		for _, prefix := range pathPrefixes {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id := strings.SplitN(rest, "/", 2)[0]
				if canonicalIDRe.MatchString(id) {
					return id
				}
			}
		}
	case "youtu.be":
		id := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
		if canonicalIDRe.MatchString(id) {
			return id
		}
	}

	return ""
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// IsCanonical reports whether id already is in canonical form.
func IsCanonical(id string) bool {
	return canonicalIDRe.MatchString(id)
}
