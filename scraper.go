package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// trackLinkSelector matches the rendered track links inside the playlist.
// Spotify reshuffles its DOM now and then, so this is the first thing to
// check when a scrape comes back empty.
const trackLinkSelector = `a[data-testid="internal-track-link"][href^="/track/"]`

// scrollContainerProp is the window property the located scroll container
// is stashed under, so every later evaluate reaches the same element.
const scrollContainerProp = "__playlistScrollContainer"

const (
	scrapeTimeout = 5 * time.Minute
	seedWait      = 20 * time.Second
)

// blockedResourcePatterns suppresses artwork and media requests while
// scrolling. The track data is all DOM text, and the virtualized list
// mounts rows faster without the downloads.
var blockedResourcePatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp3", "*.mp4", "*.webm", "*.m4a", "*.ogg",
}

// chromePage implements pageAccessor against a live chromedp tab.
type chromePage struct {
	base     *url.URL
	listJS   string
	locateJS string
	geoJS    string
}

func newChromePage(playlistURL string) (*chromePage, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing playlist URL: %w", err)
	}

	p := &chromePage{base: base}

	p.listJS = fmt.Sprintf(`
(() => {
  return Array.from(document.querySelectorAll(%q)).map((a) => {
    const row = a.closest('[role="row"]');
    const idx = row ? row.querySelector('[role="gridcell"][aria-colindex="1"]') : null;
    const artists = row
      ? Array.from(row.querySelectorAll('a[href^="/artist/"]')).map((el) => (el.textContent || '').trim())
      : [];
    return {
      href: a.getAttribute('href') || '',
      name: (a.textContent || '').trim(),
      index_text: idx ? (idx.textContent || '').trim() : '',
      in_row: !!row,
      artists: artists,
    };
  });
})()`, trackLinkSelector)

	p.locateJS = fmt.Sprintf(`
(() => {
  const isScrollable = (el) => {
    if (!el) return false;
    const oy = window.getComputedStyle(el).overflowY;
    return (oy === 'auto' || oy === 'scroll') && el.scrollHeight > el.clientHeight + 5;
  };
  let el = document.querySelector(%q);
  while (el && el !== document.body) {
    if (isScrollable(el)) break;
    el = el.parentElement;
  }
  if (!el || el === document.body) {
    el = document.scrollingElement || document.documentElement;
  }
  window.%s = el;
  return el !== document.scrollingElement && el !== document.documentElement;
})()`, trackLinkSelector, scrollContainerProp)

	p.geoJS = fmt.Sprintf(`
(() => {
  const el = window.%s || document.scrollingElement || document.documentElement;
  return { scroll_top: el.scrollTop, client_height: el.clientHeight, scroll_height: el.scrollHeight };
})()`, scrollContainerProp)

	return p, nil
}

// LocateScrollContainer walks up from the first track link to the nearest
// scrollable ancestor and stashes it on the window, falling back to the
// document when the playlist scrolls with the page itself.
func (p *chromePage) LocateScrollContainer(ctx context.Context) error {
	var dedicated bool
	if err := chromedp.Evaluate(p.locateJS, &dedicated).Do(ctx); err != nil {
		return fmt.Errorf("error locating scroll container: %w", err)
	}
	if dedicated {
		log.Println("Scrolling the nearest scrollable ancestor of the track list")
	} else {
		log.Println("No scrollable ancestor found, scrolling the document")
	}
	return nil
}

func (p *chromePage) ListCandidates(ctx context.Context) ([]trackRow, error) {
	var rows []trackRow
	if err := chromedp.Evaluate(p.listJS, &rows).Do(ctx); err != nil {
		return nil, fmt.Errorf("error reading rendered rows: %w", err)
	}
	return rows, nil
}

func (p *chromePage) ExtractTrack(row trackRow) (Track, bool) {
	return parseTrack(row, p.base)
}

func (p *chromePage) ReadScrollGeometry(ctx context.Context) (scrollGeometry, error) {
	var geo scrollGeometry
	if err := chromedp.Evaluate(p.geoJS, &geo).Do(ctx); err != nil {
		return scrollGeometry{}, fmt.Errorf("error reading scroll geometry: %w", err)
	}
	return geo, nil
}

func (p *chromePage) AdvanceScroll(ctx context.Context, offset float64) error {
	js := fmt.Sprintf(`
(() => {
  const el = window.%s || document.scrollingElement || document.documentElement;
  el.scrollTop = %v;
  return el.scrollTop;
})()`, scrollContainerProp, offset)
	if err := chromedp.Evaluate(js, nil).Do(ctx); err != nil {
		return fmt.Errorf("error scrolling container: %w", err)
	}
	return nil
}

// scrapePlaylist opens the playlist in a headless tab and collects every
// track the virtualized list renders while scrolling to the bottom.
func scrapePlaylist(cfg appConfig) ([]Track, error) {
	log.Println("Starting playlist scrape")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	page, err := newChromePage(cfg.PlaylistURL)
	if err != nil {
		return nil, err
	}

	var tracks []Track
	err = chromedp.Run(ctx,
		blockResourcesAction(cfg.BlockMedia),
		chromedp.Navigate(cfg.PlaylistURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			log.Println("Page loaded, waiting for track links")
			return waitForTrackLinks(ctx, cfg.DebugScreenshot)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			log.Println("Track links found, starting to scroll and collect")
			if err := page.LocateScrollContainer(ctx); err != nil {
				return err
			}
			collected, err := collectAllTracks(ctx, page, defaultCollectConfig())
			tracks = collected
			return err
		}),
	)
	if err != nil {
		return tracks, fmt.Errorf("error in chromedp.Run: %w", err)
	}

	log.Printf("Scrape completed. Total unique tracks found: %d\n", len(tracks))
	return tracks, nil
}

// blockResourcesAction installs the request blocklist before navigation.
func blockResourcesAction(enabled bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if !enabled {
			return nil
		}
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("error enabling network events: %w", err)
		}
		if err := network.SetBlockedURLS(blockedResourcePatterns).Do(ctx); err != nil {
			return fmt.Errorf("error installing resource blocklist: %w", err)
		}
		return nil
	})
}

// waitForTrackLinks waits for the first track link to render, bounded by
// its own timeout so a private or empty playlist fails fast instead of
// eating the whole scrape budget.
func waitForTrackLinks(ctx context.Context, screenshotOnFail bool) error {
	wctx, cancel := context.WithTimeout(ctx, seedWait)
	defer cancel()
	if err := chromedp.WaitVisible(trackLinkSelector, chromedp.ByQuery).Do(wctx); err != nil {
		if screenshotOnFail {
			saveDebugScreenshot(ctx, "no_track_links")
		}
		return fmt.Errorf("error waiting for track links: %w", err)
	}
	return nil
}

func saveDebugScreenshot(ctx context.Context, tag string) {
	var buf []byte
	if err := chromedp.FullScreenshot(&buf, 80).Do(ctx); err != nil {
		log.Printf("Debug screenshot failed: %v\n", err)
		return
	}
	name := fmt.Sprintf("debug_%s_%d.png", tag, time.Now().Unix())
	if err := os.WriteFile(name, buf, 0o644); err != nil {
		log.Printf("Debug screenshot write failed: %v\n", err)
		return
	}
	log.Printf("Saved debug screenshot to %s\n", name)
}
