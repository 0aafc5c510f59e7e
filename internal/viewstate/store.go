// Package viewstate owns the process-wide mutable view state that keeps the
// map, the timeline, the year-filtered dataset, and the panels mutually
// consistent. All mutators are synchronous; observers run in order on the
// mutating call.
package viewstate

import (
	"log/slog"
	"sync"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/spatial"
)

// EventKind tags a state-change notification.
type EventKind string

const (
	EventYearChanged   EventKind = "year_changed"
	EventCursorMoved   EventKind = "cursor_moved"
	EventPinned        EventKind = "pinned"
	EventUnpinned      EventKind = "unpinned"
	EventStateSelected EventKind = "state_selected"
	EventPanelRecreate EventKind = "panel_recreate"
	EventPolicyChosen  EventKind = "policy_chosen"
	EventPlayChanged   EventKind = "play_changed"
	EventDragChanged   EventKind = "drag_changed"
	EventModalChanged  EventKind = "modal_changed"
)

// Event carries the kind of change and the view after it.
type Event struct {
	Kind EventKind
	View View
}

// Observer receives events synchronously, in subscription order.
type Observer func(Event)

// View is the full view state. CurrentYear is the authoritative year
// snapshot; ContinuousPosition is a derived animation-only value used while
// scrubbing or auto-playing.
type View struct {
	CurrentYear        int             `json:"current_year"`
	ContinuousPosition float64         `json:"continuous_position"`
	IsPlaying          bool            `json:"is_playing"`
	IsDragging         bool            `json:"is_dragging"`
	SelectedState      string          `json:"selected_state,omitempty"`
	HoveredState       string          `json:"hovered_state,omitempty"`
	Cursor             *spatial.Cursor `json:"cursor,omitempty"`
	ClickTick          uint64          `json:"click_tick"`
	SelectedPolicy     *domain.Policy  `json:"selected_policy,omitempty"`

	PolicyTimelineOpen bool `json:"policy_timeline_open"`
	PolicyModalOpen    bool `json:"policy_modal_open"`
	ContextPanelOpen   bool `json:"context_panel_open"`

	// Pinned freezes the neighborhood panel: cursor moves stop updating
	// LiveIncidents and the snapshot in PinnedIncidents is shown instead.
	Pinned          bool          `json:"pinned"`
	PinnedIncidents []spatial.Hit `json:"pinned_incidents,omitempty"`
	LiveIncidents   []spatial.Hit `json:"live_incidents,omitempty"`
}

// Store serializes every mutation behind one mutex, mimicking the single
// UI event loop: there is never a concurrent writer, and observers see
// each transition in arrival order.
type Store struct {
	mu        sync.Mutex
	view      View
	observers []Observer

	incidentsForYear func(year int) []domain.Incident
	logger           *slog.Logger
}

// New creates a Store over a per-year incident accessor.
func New(incidentsForYear func(year int) []domain.Incident, initialYear int, logger *slog.Logger) *Store {
	return &Store{
		view:             View{CurrentYear: initialYear},
		incidentsForYear: incidentsForYear,
		logger:           logger,
	}
}

// Subscribe registers an observer. Observers must not call back into the
// store from the notification.
func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns a copy of the current view. Hit slices are copied so
// callers cannot alias internal state.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() View {
	v := s.view
	if v.Cursor != nil {
		c := *v.Cursor
		v.Cursor = &c
	}
	v.PinnedIncidents = append([]spatial.Hit(nil), s.view.PinnedIncidents...)
	v.LiveIncidents = append([]spatial.Hit(nil), s.view.LiveIncidents...)
	return v
}

// mutate runs fn under the store lock, then notifies observers with the
// resulting view for each event fn emitted. Notification happens outside
// the lock but still on the mutating goroutine, preserving arrival order.
func (s *Store) mutate(fn func(v *View) []EventKind) {
	s.mu.Lock()
	kinds := fn(&s.view)
	view := s.snapshotLocked()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, kind := range kinds {
		for _, ob := range observers {
			ob(Event{Kind: kind, View: view})
		}
	}
}

// SetYear is the single entry point for year changes, shared by drag,
// auto-play, marker clicks, and programmatic seeks.
func (s *Store) SetYear(year int) {
	s.mutate(func(v *View) []EventKind {
		if v.CurrentYear == year {
			return nil
		}
		v.CurrentYear = year
		if !v.Pinned {
			v.LiveIncidents = s.liveNeighborhood(v)
		}
		return []EventKind{EventYearChanged}
	})
}

// MoveCursor updates the cursor and, while unpinned, recomputes the live
// neighborhood.
func (s *Store) MoveCursor(cur spatial.Cursor) {
	s.mutate(func(v *View) []EventKind {
		v.Cursor = &cur
		if !v.Pinned {
			v.LiveIncidents = s.liveNeighborhood(v)
		}
		return []EventKind{EventCursorMoved}
	})
}

// Click handles a map click: it bumps the click counter, toggles the
// pinned neighborhood snapshot, and infers the clicked state from nearby
// incidents. Selecting a new state opens the policy timeline.
func (s *Store) Click(cur spatial.Cursor) {
	s.mutate(func(v *View) []EventKind {
		v.ClickTick++
		v.Cursor = &cur

		var kinds []EventKind
		if v.Pinned {
			v.Pinned = false
			v.PinnedIncidents = nil
			v.LiveIncidents = s.liveNeighborhood(v)
			kinds = append(kinds, EventUnpinned)
		} else {
			live := s.liveNeighborhood(v)
			v.LiveIncidents = live
			if len(live) > 0 {
				v.Pinned = true
				v.PinnedIncidents = live
				kinds = append(kinds, EventPinned)
			}
		}

		state := spatial.InferState(cur, s.incidentsForYear(v.CurrentYear))
		if state != "" && state != v.SelectedState {
			v.SelectedState = state
			v.PolicyTimelineOpen = true
			kinds = append(kinds, EventStateSelected)
			s.logger.Debug("state selected from click", "state", state, "click_tick", v.ClickTick)
		}
		return kinds
	})
}

// HoverState tracks the state under the cursor, distinct from the pinned
// selection. A change tears down and recreates the context side panel.
func (s *Store) HoverState(state string) {
	s.mutate(func(v *View) []EventKind {
		if v.HoveredState == state {
			return nil
		}
		v.HoveredState = state
		v.ContextPanelOpen = state != ""
		return []EventKind{EventPanelRecreate}
	})
}

// ChoosePolicy selects a policy for the detail panel.
func (s *Store) ChoosePolicy(p *domain.Policy) {
	s.mutate(func(v *View) []EventKind {
		v.SelectedPolicy = p
		return []EventKind{EventPolicyChosen}
	})
}

// SetModal opens or closes the per-year policy modal.
func (s *Store) SetModal(open bool) {
	s.mutate(func(v *View) []EventKind {
		if v.PolicyModalOpen == open {
			return nil
		}
		v.PolicyModalOpen = open
		if !open {
			v.SelectedPolicy = nil
		}
		return []EventKind{EventModalChanged}
	})
}

// SetPlaying toggles the auto-play flag.
func (s *Store) SetPlaying(playing bool) {
	s.mutate(func(v *View) []EventKind {
		if v.IsPlaying == playing {
			return nil
		}
		v.IsPlaying = playing
		return []EventKind{EventPlayChanged}
	})
}

// SetDragging toggles the scrubber-drag flag.
func (s *Store) SetDragging(dragging bool) {
	s.mutate(func(v *View) []EventKind {
		if v.IsDragging == dragging {
			return nil
		}
		v.IsDragging = dragging
		return []EventKind{EventDragChanged}
	})
}

// SetPosition records the continuous scrubber position. It emits no event:
// position is animation-only state, and downstream rerenders are driven by
// year crossings through SetYear.
func (s *Store) SetPosition(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ContinuousPosition = pos
}

func (s *Store) liveNeighborhood(v *View) []spatial.Hit {
	if v.Cursor == nil {
		return nil
	}
	return spatial.Near(*v.Cursor, s.incidentsForYear(v.CurrentYear), spatial.DefaultMax)
}
