package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const defaultOEmbedEndpoint = "https://open.spotify.com/oembed"

// oembedClient fetches the public oEmbed document for a track link. The
// response carries the cover thumbnail, which the scraped DOM does not
// expose while artwork requests are blocked.
type oembedClient struct {
	httpClient *http.Client
	endpoint   string
	workers    int
}

func newOEmbedClient() *oembedClient {
	return &oembedClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   defaultOEmbedEndpoint,
		workers:    4,
	}
}

type oembedDocument struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (c *oembedClient) fetch(ctx context.Context, trackLink string) (*oembedDocument, error) {
	params := url.Values{}
	params.Add("url", trackLink)

	fullURL := fmt.Sprintf("%s?%s", c.endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error building oembed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected oembed status: %s", resp.Status)
	}

	var doc oembedDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error decoding oembed response: %w", err)
	}

	return &doc, nil
}

// enrichTracks fills thumbnail URLs in place and returns how many tracks
// it enriched. Lookups run a few at a time, and a failed lookup only
// logs, a missing thumbnail never fails the run.
func (c *oembedClient) enrichTracks(ctx context.Context, tracks []Track) int {
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.workers)
	enriched := make([]bool, len(tracks))

	for i := range tracks {
		if tracks[i].Link == "" {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			doc, err := c.fetch(ctx, tracks[i].Link)
			if err != nil {
				log.Printf("Oembed lookup failed for track %s: %v", tracks[i].ID, err)
				return
			}
			tracks[i].Thumbnail = doc.ThumbnailURL
			enriched[i] = true
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range enriched {
		if ok {
			count++
		}
	}
	return count
}
