package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testCollectConfig returns the production thresholds with the settle
// delay removed so the loop tests run instantly.
func testCollectConfig() CollectConfig {
	cfg := defaultCollectConfig()
	cfg.SettleDelay = 0
	return cfg
}

// scriptedPage plays back pre-programmed rounds. The rows and the bottom
// gap for rounds past the end of the script repeat the last entry, which
// models a page that stopped changing. Extraction goes through the real
// parser so the fake only scripts I/O.
type scriptedPage struct {
	rounds     [][]trackRow
	gaps       []float64
	listCalls  int
	geoCalls   int
	advanced   []float64
	failListAt int // 1-based ListCandidates call that fails, 0 for never
	failGeoAt  int // 1-based ReadScrollGeometry call that fails, 0 for never
}

func (p *scriptedPage) roundRows() []trackRow {
	i := p.listCalls - 1
	if i >= len(p.rounds) {
		i = len(p.rounds) - 1
	}
	return p.rounds[i]
}

func (p *scriptedPage) roundGap() float64 {
	i := p.listCalls - 1
	if i >= len(p.gaps) {
		i = len(p.gaps) - 1
	}
	return p.gaps[i]
}

func (p *scriptedPage) ListCandidates(ctx context.Context) ([]trackRow, error) {
	p.listCalls++
	if p.failListAt > 0 && p.listCalls == p.failListAt {
		return nil, errors.New("tab gone")
	}
	return p.roundRows(), nil
}

func (p *scriptedPage) ExtractTrack(row trackRow) (Track, bool) {
	return parseTrack(row, nil)
}

func (p *scriptedPage) ReadScrollGeometry(ctx context.Context) (scrollGeometry, error) {
	p.geoCalls++
	if p.failGeoAt > 0 && p.geoCalls == p.failGeoAt {
		return scrollGeometry{}, errors.New("tab gone")
	}
	top := float64(p.listCalls) * 100
	return scrollGeometry{
		ScrollTop:    top,
		ClientHeight: 600,
		ScrollHeight: top + 600 + p.roundGap(),
	}, nil
}

func (p *scriptedPage) AdvanceScroll(ctx context.Context, offset float64) error {
	p.advanced = append(p.advanced, offset)
	return nil
}

func playlistRow(id, name string) trackRow {
	return trackRow{
		Href:      "/track/" + id,
		Name:      name,
		IndexText: "1",
		InRow:     true,
		Artists:   []string{"Artist"},
	}
}

func playlistRows(prefix string, n int) []trackRow {
	rows := make([]trackRow, n)
	for i := range rows {
		id := fmt.Sprintf("%s%02d", prefix, i)
		rows[i] = playlistRow(id, "Song "+id)
	}
	return rows
}

func TestCollectStopsSoonAfterBottom(t *testing.T) {
	// A short playlist: everything renders at once and the container
	// reports no room below from the start.
	page := &scriptedPage{
		rounds: [][]trackRow{playlistRows("a", 20)},
		gaps:   []float64{0},
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.NoError(t, err)

	assert.Len(t, tracks, 20)
	// One growth round plus the three stable rounds of the bottom window.
	assert.Equal(t, 4, page.listCalls)
}

func TestCollectKeepsGoingWhileListGrows(t *testing.T) {
	// Five rounds each reveal four ids never seen before, then the page
	// goes quiet and reports the bottom.
	page := &scriptedPage{
		rounds: [][]trackRow{
			playlistRows("r1", 4),
			playlistRows("r2", 4),
			playlistRows("r3", 4),
			playlistRows("r4", 4),
			playlistRows("r5", 4),
		},
		gaps: []float64{100, 100, 100, 100, 100, 0},
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.NoError(t, err)

	assert.Len(t, tracks, 20)
	// Growth through round 5, then three quiet rounds at the bottom.
	assert.Equal(t, 8, page.listCalls)
}

func TestCollectCapsWhenBottomNeverReported(t *testing.T) {
	// Nothing ever renders and the container always claims more room
	// below. The cap must end the run anyway.
	page := &scriptedPage{
		rounds: [][]trackRow{{}},
		gaps:   []float64{100},
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.NoError(t, err)

	assert.NotNil(t, tracks)
	assert.Empty(t, tracks)
	assert.Equal(t, 8, page.listCalls)
	assert.Len(t, page.advanced, 8)
}

func TestCollectGrowthAtBottomRestartsWindow(t *testing.T) {
	// A late batch mounts while the bottom window is half filled. The
	// quiet count starts over and the late tracks are kept.
	first := playlistRows("x", 5)
	second := playlistRows("y", 5)
	page := &scriptedPage{
		rounds: [][]trackRow{first, first, first, second},
		gaps:   []float64{0},
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.NoError(t, err)

	assert.Len(t, tracks, 10)
	// Growth, two quiet rounds, growth again, then the full three quiet
	// rounds of the bottom window.
	assert.Equal(t, 7, page.listCalls)
}

func TestCollectLastCaptureWinsForDuplicateID(t *testing.T) {
	page := &scriptedPage{
		rounds: [][]trackRow{{
			playlistRow("dup", "First Version"),
			playlistRow("dup", "Second Version"),
		}},
		gaps: []float64{0},
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.NoError(t, err)

	require.Len(t, tracks, 1)
	assert.Equal(t, "Second Version", tracks[0].Name)
}

func TestCollectBottomEpsilonBoundary(t *testing.T) {
	// A four pixel gap counts as the bottom, a five pixel gap does not.
	atBottom := &scriptedPage{rounds: [][]trackRow{{}}, gaps: []float64{4}}
	_, err := collectAllTracks(context.Background(), atBottom, testCollectConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, atBottom.listCalls)

	notAtBottom := &scriptedPage{rounds: [][]trackRow{{}}, gaps: []float64{5}}
	_, err = collectAllTracks(context.Background(), notAtBottom, testCollectConfig())
	require.NoError(t, err)
	assert.Equal(t, 8, notAtBottom.listCalls)
}

func TestCollectAdvancesByViewportFraction(t *testing.T) {
	page := &scriptedPage{
		rounds: [][]trackRow{playlistRows("a", 20)},
		gaps:   []float64{0},
	}

	cfg := testCollectConfig()
	_, err := collectAllTracks(context.Background(), page, cfg)
	require.NoError(t, err)

	// scrollTop plus floor(clientHeight * step), from the scripted
	// geometry of rounds one and two.
	step := math.Floor(600 * cfg.ScrollStep)
	require.GreaterOrEqual(t, len(page.advanced), 2)
	assert.Equal(t, 100+step, page.advanced[0])
	assert.Equal(t, 200+step, page.advanced[1])
}

func TestCollectReturnsPartialOnListFailure(t *testing.T) {
	page := &scriptedPage{
		rounds:     [][]trackRow{playlistRows("a", 4)},
		gaps:       []float64{100},
		failListAt: 2,
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing rendered rows")
	assert.Len(t, tracks, 4)
}

func TestCollectReturnsPartialOnGeometryFailure(t *testing.T) {
	page := &scriptedPage{
		rounds:    [][]trackRow{playlistRows("a", 4)},
		gaps:      []float64{100},
		failGeoAt: 1,
	}

	tracks, err := collectAllTracks(context.Background(), page, testCollectConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scroll geometry")
	assert.Len(t, tracks, 4)
}

func TestCollectHonorsContextDuringSettle(t *testing.T) {
	cfg := testCollectConfig()
	cfg.SettleDelay = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	page := &scriptedPage{
		rounds: [][]trackRow{playlistRows("a", 20)},
		gaps:   []float64{0},
	}

	tracks, err := collectAllTracks(ctx, page, cfg)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tracks, 20)
}

func TestTrackerRequiresLongerQuietAwayFromBottom(t *testing.T) {
	tr := &stabilityTracker{cfg: defaultCollectConfig()}
	for i := 0; i < 7; i++ {
		assert.False(t, tr.observe(false, false), "stopped after %d quiet rounds", i+1)
	}
	assert.True(t, tr.observe(false, false))
}

func TestTrackerShortWindowAtBottom(t *testing.T) {
	tr := &stabilityTracker{cfg: defaultCollectConfig()}
	assert.False(t, tr.observe(false, true))
	assert.False(t, tr.observe(false, true))
	assert.True(t, tr.observe(false, true))
}

func TestTrackerGrowthResetsQuietCount(t *testing.T) {
	tr := &stabilityTracker{cfg: defaultCollectConfig()}
	tr.observe(false, true)
	tr.observe(false, true)

	// Growth at the bottom keeps the traversal going.
	assert.False(t, tr.observe(true, true))
	assert.Equal(t, 0, tr.stable)

	// The bottom window has to fill up again from scratch.
	assert.False(t, tr.observe(false, true))
	assert.False(t, tr.observe(false, true))
	assert.True(t, tr.observe(false, true))
}

func TestTrackerStopsWithinCapProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := defaultCollectConfig()
		tr := &stabilityTracker{cfg: cfg}
		rounds := rapid.IntRange(1, 100).Draw(rt, "rounds")

		quiet := 0
		for i := 0; i < rounds; i++ {
			grew := rapid.Bool().Draw(rt, "grew")
			atBottom := rapid.Bool().Draw(rt, "atBottom")
			stop := tr.observe(grew, atBottom)

			if grew {
				quiet = 0
			} else {
				quiet++
			}
			if tr.stable != quiet {
				rt.Fatalf("stable count %d, want %d", tr.stable, quiet)
			}
			if quiet >= cfg.MaxStableRounds && !stop {
				rt.Fatalf("kept going after %d quiet rounds", quiet)
			}
			if atBottom && quiet >= cfg.BottomStableRounds && !stop {
				rt.Fatalf("kept going at the bottom after %d quiet rounds", quiet)
			}
			if stop && quiet < cfg.BottomStableRounds {
				rt.Fatalf("stopped after only %d quiet rounds", quiet)
			}
			if stop && !atBottom && quiet < cfg.MaxStableRounds {
				rt.Fatalf("stopped away from the bottom after %d quiet rounds", quiet)
			}
			if stop {
				break
			}
		}
	})
}

func TestTrackerGrowthNeverStopsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := &stabilityTracker{
			stable: rapid.IntRange(0, 100).Draw(rt, "stableBefore"),
			cfg:    defaultCollectConfig(),
		}
		atBottom := rapid.Bool().Draw(rt, "atBottom")

		if tr.observe(true, atBottom) {
			rt.Fatalf("a growth round stopped the traversal")
		}
		if tr.stable != 0 {
			rt.Fatalf("stable count %d after growth, want 0", tr.stable)
		}
	})
}
