package main

// Track is one playlist entry, keyed by the id taken from its track link.
type Track struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Artists   []string `json:"artists"`
	Link      string   `json:"link"`
	EmbedURL  string   `json:"embed_url"`
	Thumbnail string   `json:"thumbnail_url,omitempty"`
}

// trackRow is the raw capture of one rendered track link together with its
// row context, read out of the page in a single pass. Whether a capture is
// a real playlist row is decided on the Go side, see extract.go.
type trackRow struct {
	Href      string   `json:"href"`
	Name      string   `json:"name"`
	IndexText string   `json:"index_text"`
	InRow     bool     `json:"in_row"`
	Artists   []string `json:"artists"`
}

// scrollGeometry is a fresh read of the scroll container's metrics. The
// scroll height keeps growing while the virtualized list mounts rows, so
// these values must never be cached across rounds.
type scrollGeometry struct {
	ScrollTop    float64 `json:"scroll_top"`
	ClientHeight float64 `json:"client_height"`
	ScrollHeight float64 `json:"scroll_height"`
}

// bottomGap is the scrollable distance still left below the viewport.
func (g scrollGeometry) bottomGap() float64 {
	return g.ScrollHeight - g.ScrollTop - g.ClientHeight
}
