// Package timeline implements the continuous year scrubber with auto-play
// and the per-state policy timeline derived from it.
package timeline

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pacifymap/incident-map-service/internal/observability"
	"github.com/pacifymap/incident-map-service/internal/viewstate"
)

const (
	defaultFrameInterval = 50 * time.Millisecond
	defaultYearDuration  = 2000 * time.Millisecond // play time per remaining year
	defaultRestartPause  = 500 * time.Millisecond
)

// Scrubber maps a continuous position in [0, 100] onto the available-years
// range. CurrentYear in the view store is the authoritative snapshot; the
// continuous position is animation-only state that writes back through
// SetYear only when the rounded year crosses into the available set, which
// rate-limits downstream recomputation to once per year crossing.
type Scrubber struct {
	mu        sync.Mutex
	position  float64
	playing   bool
	dragging  bool
	cancel    context.CancelFunc
	done      chan struct{}
	store     *viewstate.Store
	years     []int
	available map[int]bool
	yMin      int
	yMax      int

	clock         clockwork.Clock
	frameInterval time.Duration
	yearDuration  time.Duration
	restartPause  time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewScrubber creates a Scrubber over the sorted available years.
func NewScrubber(store *viewstate.Store, years []int, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scrubber {
	s := &Scrubber{
		store:         store,
		years:         append([]int(nil), years...),
		available:     make(map[int]bool, len(years)),
		clock:         clock,
		frameInterval: defaultFrameInterval,
		yearDuration:  defaultYearDuration,
		restartPause:  defaultRestartPause,
		logger:        logger,
		metrics:       metrics,
	}
	for _, y := range years {
		s.available[y] = true
	}
	if len(years) > 0 {
		s.yMin = years[0]
		s.yMax = years[len(years)-1]
	}
	return s
}

// YearAt maps a continuous position to a fractional year.
func (s *Scrubber) YearAt(pos float64) float64 {
	return float64(s.yMin) + pos/100*float64(s.yMax-s.yMin)
}

// PositionOf maps a year to its continuous position.
func (s *Scrubber) PositionOf(year int) float64 {
	if s.yMax == s.yMin {
		return 0
	}
	return float64(year-s.yMin) / float64(s.yMax-s.yMin) * 100
}

// DisplayedYear is the rounded year at pos, clamped to the available set.
func (s *Scrubber) DisplayedYear(pos float64) int {
	return s.nearestAvailable(int(math.Round(s.YearAt(pos))))
}

// Position returns the continuous position: live animation state while
// playing or dragging, otherwise the fixed point of the current year.
func (s *Scrubber) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing || s.dragging {
		return s.position
	}
	return s.PositionOf(s.store.Snapshot().CurrentYear)
}

// SeekTo jumps to the nearest available year. An active play loop is
// stopped first.
func (s *Scrubber) SeekTo(year int) {
	s.Pause()
	year = s.nearestAvailable(year)

	s.mu.Lock()
	s.position = s.PositionOf(year)
	s.mu.Unlock()

	s.store.SetYear(year)
	s.store.SetPosition(s.PositionOf(year))
}

// Play starts the auto-play animation from the current year. It is a no-op
// while already playing, while dragging, or with fewer than two years.
func (s *Scrubber) Play(ctx context.Context) {
	startYear := s.store.Snapshot().CurrentYear

	s.mu.Lock()
	if s.playing || s.dragging || len(s.years) < 2 {
		s.mu.Unlock()
		return
	}
	s.playing = true
	s.position = s.PositionOf(startYear)
	ctx, s.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.store.SetPlaying(true)
	s.metrics.PlayerRunning.Set(1)
	s.logger.Debug("play started", "year", startYear)

	go s.run(ctx, done)
}

// Pause halts the animation immediately and snaps the position back to the
// discrete current year. Safe to call when not playing.
func (s *Scrubber) Pause() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	year := s.store.Snapshot().CurrentYear
	s.mu.Lock()
	s.playing = false
	s.position = s.PositionOf(year)
	s.mu.Unlock()

	s.store.SetPosition(s.PositionOf(year))
	s.store.SetPlaying(false)
	s.metrics.PlayerRunning.Set(0)
	s.logger.Debug("play paused", "year", year)
}

// DragStart enters drag mode. Dragging wins over play.
func (s *Scrubber) DragStart() {
	s.Pause()

	s.mu.Lock()
	s.dragging = true
	s.position = s.PositionOf(s.store.Snapshot().CurrentYear)
	s.mu.Unlock()

	s.store.SetDragging(true)
}

// DragMove drives the position directly. The year follows only when the
// rounded value changes to a member of the available set.
func (s *Scrubber) DragMove(pos float64) {
	pos = clampPosition(pos)

	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return
	}
	s.position = pos
	s.mu.Unlock()

	s.store.SetPosition(pos)
	if rounded := int(math.Round(s.YearAt(pos))); s.available[rounded] {
		s.store.SetYear(rounded)
	}
}

// DragEnd leaves drag mode, snapping to the nearest available year.
func (s *Scrubber) DragEnd() {
	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return
	}
	s.dragging = false
	year := s.nearestAvailable(int(math.Round(s.YearAt(s.position))))
	s.position = s.PositionOf(year)
	s.mu.Unlock()

	s.store.SetYear(year)
	s.store.SetPosition(s.PositionOf(year))
	s.store.SetDragging(false)
}

// run is the play loop: sweep to the end, pause briefly, reset to the
// first year, repeat until cancelled.
func (s *Scrubber) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.mu.Lock()
		startPos := s.position
		s.mu.Unlock()

		if !s.sweep(ctx, startPos) {
			return
		}
		if !s.sleep(ctx, s.restartPause) {
			return
		}

		s.store.SetYear(s.years[0])
		s.mu.Lock()
		s.position = 0
		s.mu.Unlock()
		s.store.SetPosition(0)
	}
}

// sweep animates from startPos to 100. Returns false when cancelled.
func (s *Scrubber) sweep(ctx context.Context, startPos float64) bool {
	duration := s.playDuration(startPos)

	ticker := s.clock.NewTicker(s.frameInterval)
	defer ticker.Stop()
	start := s.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.Chan():
			if s.applyFrame(startPos, s.clock.Since(start), duration) {
				return true
			}
		}
	}
}

// applyFrame advances one animation frame: eased position plus a year
// write when the rounded year lands on an available member. Returns true
// once the sweep has finished.
func (s *Scrubber) applyFrame(startPos float64, elapsed, duration time.Duration) bool {
	progress := 1.0
	if duration > 0 {
		progress = float64(elapsed) / float64(duration)
	}
	finished := progress >= 1
	if finished {
		progress = 1
	}

	pos := startPos + easeInOutCubic(progress)*(100-startPos)

	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()
	s.store.SetPosition(pos)

	if rounded := int(math.Round(s.YearAt(pos))); s.available[rounded] {
		s.store.SetYear(rounded)
	}
	return finished
}

// playDuration scales the sweep so each remaining calendar year takes the
// same wall time.
func (s *Scrubber) playDuration(startPos float64) time.Duration {
	remaining := s.yMax - int(math.Round(s.YearAt(startPos)))
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining) * s.yearDuration
}

func (s *Scrubber) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// nearestAvailable clamps a year to the closest member of the available
// set, preferring the earlier year on exact ties.
func (s *Scrubber) nearestAvailable(year int) int {
	if len(s.years) == 0 || s.available[year] {
		return year
	}
	best := s.years[0]
	for _, y := range s.years[1:] {
		if abs(y-year) < abs(best-year) {
			best = y
		}
	}
	return best
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func clampPosition(pos float64) float64 {
	return math.Max(0, math.Min(100, pos))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
