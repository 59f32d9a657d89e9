package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

// pageAccessor is the slice of browser behavior the collect loop needs.
// The real implementation drives chromedp (scraper.go); tests script it.
type pageAccessor interface {
	// ListCandidates captures every rendered track link row, including
	// ones outside the playlist grid. ExtractTrack decides which apply.
	ListCandidates(ctx context.Context) ([]trackRow, error)
	ExtractTrack(row trackRow) (Track, bool)
	ReadScrollGeometry(ctx context.Context) (scrollGeometry, error)
	AdvanceScroll(ctx context.Context, offset float64) error
}

// CollectConfig carries the scroll and convergence tunables so tests can
// inject their own, notably a zero settle delay.
type CollectConfig struct {
	// MaxStableRounds stops the loop after this many consecutive rounds
	// without new tracks, wherever the viewport is.
	MaxStableRounds int
	// BottomStableRounds is the shorter stability window that applies
	// once the container reports no room below. Must stay strictly
	// below MaxStableRounds.
	BottomStableRounds int
	// ScrollStep is the fraction of the viewport height advanced per
	// round. Kept below 1.0 so consecutive screenfuls overlap and no
	// row can fall between two reads.
	ScrollStep float64
	// SettleDelay gives the page time to mount rows after each advance.
	SettleDelay time.Duration
	// BottomEpsilon absorbs sub-pixel noise in the at-bottom check.
	BottomEpsilon float64
}

func defaultCollectConfig() CollectConfig {
	return CollectConfig{
		MaxStableRounds:    8,
		BottomStableRounds: 3,
		ScrollStep:         0.85,
		SettleDelay:        600 * time.Millisecond,
		BottomEpsilon:      5,
	}
}

// stabilityTracker counts consecutive rounds that discovered nothing new
// and decides when the traversal is done. Reaching the bottom of the
// container unlocks the shorter BottomStableRounds window, while
// MaxStableRounds bounds the run even if the bottom is never reported,
// which happens when the scroll height grows as fast as we advance.
type stabilityTracker struct {
	stable int
	cfg    CollectConfig
}

// observe records one round's outcome and reports whether to stop. A
// round that grew the track set resets the stable count to zero.
func (t *stabilityTracker) observe(grew, atBottom bool) bool {
	if grew {
		t.stable = 0
	} else {
		t.stable++
	}
	if t.stable >= t.cfg.MaxStableRounds {
		return true
	}
	return atBottom && t.stable >= t.cfg.BottomStableRounds
}

// collectAllTracks scrolls the playlist container until the tracker calls
// the list complete, merging each round's captures into an id-keyed set.
// Re-capturing a known id overwrites the stored track, so the freshest
// rendering wins. On an accessor failure the tracks gathered so far are
// returned together with the error, letting the caller persist a partial
// result instead of losing the run.
func collectAllTracks(ctx context.Context, page pageAccessor, cfg CollectConfig) ([]Track, error) {
	byID := make(map[string]Track)
	tracker := &stabilityTracker{cfg: cfg}

	for round := 1; ; round++ {
		before := len(byID)

		rows, err := page.ListCandidates(ctx)
		if err != nil {
			return tracksOf(byID), fmt.Errorf("error listing rendered rows: %w", err)
		}
		for _, row := range rows {
			track, ok := page.ExtractTrack(row)
			if !ok {
				continue
			}
			byID[track.ID] = track
		}
		grew := len(byID) > before

		geo, err := page.ReadScrollGeometry(ctx)
		if err != nil {
			return tracksOf(byID), fmt.Errorf("error reading scroll geometry: %w", err)
		}
		next := geo.ScrollTop + math.Floor(geo.ClientHeight*cfg.ScrollStep)
		if err := page.AdvanceScroll(ctx, next); err != nil {
			return tracksOf(byID), fmt.Errorf("error advancing scroll: %w", err)
		}

		if cfg.SettleDelay > 0 {
			select {
			case <-time.After(cfg.SettleDelay):
			case <-ctx.Done():
				return tracksOf(byID), ctx.Err()
			}
		}

		// The advance may have been clamped or the list may have grown
		// underneath us, so the at-bottom check uses a fresh read.
		geo, err = page.ReadScrollGeometry(ctx)
		if err != nil {
			return tracksOf(byID), fmt.Errorf("error reading scroll geometry: %w", err)
		}
		atBottom := geo.bottomGap() < cfg.BottomEpsilon

		log.Printf("Round %d: %d tracks total (+%d new), at bottom: %v", round, len(byID), len(byID)-before, atBottom)

		if tracker.observe(grew, atBottom) {
			break
		}
	}

	return tracksOf(byID), nil
}

func tracksOf(byID map[string]Track) []Track {
	out := make([]Track, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	return out
}
