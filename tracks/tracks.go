// Package tracks keeps the addressable tracks, their home positions and
// colours, and the current selection used when a playback names no tracks.
package tracks

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/matt-g-everett/spatx/animation"
	"github.com/matt-g-everett/spatx/distribute"
	"github.com/matt-g-everett/spatx/position"
)

var (
	ErrNoTracks     = errors.New("no tracks selected")
	ErrUnknownTrack = errors.New("unknown track")
)

// Track is one addressable source. Index is the number used in output
// addresses such as /track/<index>/xyz.
type Track struct {
	ID       string            `json:"id"`
	Index    int               `json:"index"`
	Name     string            `json:"name,omitempty"`
	Position position.Position `json:"position"`
	Color    colorful.Color    `json:"-"`
}

// Hex returns the track colour as #rrggbb.
func (t Track) Hex() string { return t.Color.Hex() }

// Set is the collection of known tracks.
type Set struct {
	mu       sync.RWMutex
	tracks   map[string]*Track
	selected []string
}

// NewSet creates a Set from tracks. Tracks without a colour get one from
// DefaultPalette.
func NewSet(tracks ...Track) (*Set, error) {
	s := &Set{tracks: make(map[string]*Track)}
	colors := DefaultPalette.Spread(len(tracks))
	for i, t := range tracks {
		if t.Color == (colorful.Color{}) {
			t.Color = colors[i]
		}
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts or replaces a track.
func (s *Set) Add(t Track) error {
	if t.ID == "" {
		return errors.New("track id is required")
	}
	if t.Index <= 0 {
		return fmt.Errorf("track %s: index must be positive", t.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.tracks {
		if id != t.ID && other.Index == t.Index {
			return fmt.Errorf("track %s: index %d already used by %s", t.ID, t.Index, id)
		}
	}
	c := t
	s.tracks[t.ID] = &c
	return nil
}

// Get returns the track with id.
func (s *Set) Get(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *t, true
}

// List returns every track ordered by index.
func (s *Set) List() []Track {
	s.mu.RLock()
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, *t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// SetPosition moves a track's home position.
func (s *Set) SetPosition(id string, p position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
	}
	t.Position = p
	return nil
}

// SetColor sets a track's colour from a hex string.
func (s *Set) SetColor(id, hex string) error {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("track %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
	}
	t.Color = c
	return nil
}

// Select replaces the current selection. Unknown IDs are rejected.
func (s *Set) Select(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.tracks[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
		}
	}
	s.selected = slices.Clone(ids)
	return nil
}

// Selected returns the current selection.
func (s *Set) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.selected)
}

// Resolve picks the effective track set of a playback: a locked
// animation's own tracks, else the requested tracks, else the animation's
// default tracks, else the current selection.
func (s *Set) Resolve(a *animation.Animation, requested []string) ([]string, error) {
	var ids []string
	switch {
	case a != nil && a.Locked:
		ids = a.TrackIDs
	case len(requested) > 0:
		ids = requested
	case a != nil && len(a.TrackIDs) > 0:
		ids = a.TrackIDs
	default:
		ids = s.Selected()
	}
	if len(ids) == 0 {
		return nil, ErrNoTracks
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.tracks[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, id)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// Participants returns the distributor view of ids: each track with its
// current home position.
func (s *Set) Participants(ids []string) ([]distribute.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]distribute.Track, 0, len(ids))
	for _, id := range ids {
		t, ok := s.tracks[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, id)
		}
		out = append(out, distribute.Track{ID: id, Position: t.Position})
	}
	return out, nil
}

// Index returns the output index of id.
func (s *Set) Index(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return 0, false
	}
	return t.Index, true
}
