package motion

import (
	"sync"

	"github.com/matt-g-everett/spatx/position"
)

// Mode distinguishes live playback from editor previews. Stateful models
// never share state between the two.
type Mode int

const (
	ModePlayback Mode = iota
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "playback"
}

// Context is the per-call environment of a model evaluation.
type Context struct {
	Mode       Mode
	PlaybackID string
	TrackID    string
	TrackIndex int
	TrackCount int
	// TrackPosition is where the track stood when the playback started.
	TrackPosition position.Position
	// Iteration counts completed loops, starting at 0.
	Iteration int
	// States holds integrator state. A nil store makes stateful models
	// integrate from t=0 on every call, which is deterministic but slower.
	States *StateStore
}

// StateKey addresses one integrator state.
type StateKey struct {
	Model      string
	PlaybackID string
	TrackID    string
	Mode       Mode
}

func (c *Context) key(model string) StateKey {
	return StateKey{Model: model, PlaybackID: c.PlaybackID, TrackID: c.TrackID, Mode: c.Mode}
}

// StateStore keeps stateful model integrators. The orchestrator owns one and
// clears a playback's slice when the playback terminates.
type StateStore struct {
	mu     sync.Mutex
	states map[StateKey]interface{}
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[StateKey]interface{})}
}

// Load returns the state stored under k.
func (s *StateStore) Load(k StateKey) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.states[k]
	return v, ok
}

// Store saves v under k.
func (s *StateStore) Store(k StateKey, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[k] = v
}

// ClearPlayback drops every state belonging to playbackID and returns how
// many were removed.
func (s *StateStore) ClearPlayback(playbackID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.states {
		if k.PlaybackID == playbackID {
			delete(s.states, k)
			n++
		}
	}
	return n
}

// ClearModel drops every state of one model type.
func (s *StateStore) ClearModel(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.states {
		if k.Model == model {
			delete(s.states, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
