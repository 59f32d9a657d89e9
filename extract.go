package main

import (
	"net/url"
	"strings"
)

// trackIDFromHref returns the trailing path segment of a track href with
// any query string stripped, e.g. "/track/4uLU6hMCjMI75M1A2tKUQC?si=x"
// becomes "4uLU6hMCjMI75M1A2tKUQC".
func trackIDFromHref(href string) string {
	path := href
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// isPlaylistRow reports whether a capture belongs to the playlist proper.
// Recommendation widgets under the playlist render track links too, but
// only real playlist rows carry a numeric position in their first gridcell.
func isPlaylistRow(row trackRow) bool {
	return row.InRow && isAllDigits(row.IndexText)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseTrack turns a raw capture into a Track, reporting ok=false for
// captures that are not canonical playlist rows.
func parseTrack(row trackRow, base *url.URL) (Track, bool) {
	if !isPlaylistRow(row) || row.Href == "" {
		return Track{}, false
	}

	id := trackIDFromHref(row.Href)

	artists := make([]string, 0, len(row.Artists))
	seen := make(map[string]bool, len(row.Artists))
	for _, a := range row.Artists {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		artists = append(artists, a)
	}

	return Track{
		ID:       id,
		Name:     strings.TrimSpace(row.Name),
		Artists:  artists,
		Link:     absolutize(row.Href, base),
		EmbedURL: absolutize("/embed/track/"+id, base),
	}, true
}

// absolutize resolves href against the playlist URL unless it is already
// absolute.
func absolutize(href string, base *url.URL) string {
	if strings.HasPrefix(href, "http") || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
