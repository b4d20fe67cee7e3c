package playback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matt-g-everett/spatx/animation"
	"github.com/matt-g-everett/spatx/tracks"
)

var (
	ErrUnknownPlayback   = errors.New("unknown playback")
	ErrAnimationNotFound = errors.New("animation not found")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidRequest    = errors.New("invalid playback request")
	ErrNoTracks          = tracks.ErrNoTracks
)

// State is the lifecycle state of a playback.
type State string

const (
	StateScheduled State = "SCHEDULED"
	StateStarting  State = "STARTING"
	StatePlaying   State = "PLAYING"
	StatePaused    State = "PAUSED"
	StateStopping  State = "STOPPING"
	StateStopped   State = "STOPPED"
	StateError     State = "ERROR"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateStopped || s == StateError }

// Active reports whether the playback holds its tracks.
func (s State) Active() bool { return !s.Terminal() }

// Priority orders competing playbacks under PriorityBased.
type Priority int

const (
	PriorityLow       Priority = 10
	PriorityNormal    Priority = 50
	PriorityHigh      Priority = 75
	PriorityCritical  Priority = 90
	PriorityEmergency Priority = 100
)

var priorityNames = map[string]Priority{
	"low":       PriorityLow,
	"normal":    PriorityNormal,
	"high":      PriorityHigh,
	"critical":  PriorityCritical,
	"emergency": PriorityEmergency,
}

// ParsePriority accepts a priority name.
func ParsePriority(s string) (Priority, error) {
	if p, ok := priorityNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

func (p Priority) valid() bool { return p >= PriorityLow && p <= PriorityEmergency }

// ConflictStrategy decides what happens when a request wants tracks that
// another playback already holds.
type ConflictStrategy string

const (
	StopExisting    ConflictStrategy = "STOP_EXISTING"
	RejectNew       ConflictStrategy = "REJECT_NEW"
	AllowConcurrent ConflictStrategy = "ALLOW_CONCURRENT"
	PriorityBased   ConflictStrategy = "PRIORITY_BASED"
)

// ParseStrategy accepts a strategy name in any case, with - or _.
func ParseStrategy(s string) (ConflictStrategy, error) {
	c := ConflictStrategy(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	switch c {
	case StopExisting, RejectNew, AllowConcurrent, PriorityBased:
		return c, nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

// WritePolicy resolves several playbacks writing the same track in one tick
// under AllowConcurrent.
type WritePolicy string

const (
	LastWriteWins WritePolicy = "last-write-wins"
	Blend         WritePolicy = "blend"
)

// ParseWritePolicy accepts a write policy name. Empty means LastWriteWins.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(strings.ToLower(s)) {
	case "", LastWriteWins:
		return LastWriteWins, nil
	case Blend:
		return Blend, nil
	}
	return "", fmt.Errorf("unknown write policy %q", s)
}

// Loop overrides the animation's loop setting. Count is the total number of
// plays; 0 loops forever.
type Loop struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count,omitempty"`
}

// Request asks for an animation to be played.
type Request struct {
	AnimationID string            `json:"animationId"`
	TrackIDs    []string          `json:"trackIds,omitempty"`
	Priority    Priority          `json:"priority,omitempty"`
	Strategy    ConflictStrategy  `json:"conflictStrategy,omitempty"`
	Delay       float64           `json:"delay,omitempty"`
	Speed       float64           `json:"speed,omitempty"`
	Reverse     bool              `json:"reverse,omitempty"`
	Loop        *Loop             `json:"loop,omitempty"`
	Fade        *animation.Fade   `json:"fade,omitempty"`
	Source      string            `json:"source,omitempty"`
	SourceID    string            `json:"sourceId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FadeStatus describes a running fade.
type FadeStatus struct {
	Fading    bool    `json:"fading"`
	Direction string  `json:"direction,omitempty"` // in | out
	Progress  float64 `json:"progress"`
}

// Info is a snapshot of one playback.
type Info struct {
	ID          string     `json:"id"`
	Request     Request    `json:"request"`
	AnimationID string     `json:"animationId"`
	Type        string     `json:"type"`
	TrackIDs    []string   `json:"trackIds"`
	State       State      `json:"state"`
	Priority    Priority   `json:"priority"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartTime   time.Time  `json:"startTime"`
	Elapsed     float64    `json:"elapsed"`
	CurrentTime float64    `json:"currentTime"`
	Duration    float64    `json:"duration"`
	Speed       float64    `json:"speed"`
	Reversed    bool       `json:"reversed"`
	Iteration   int        `json:"iteration"`
	Fade        FadeStatus `json:"fade"`
	Err         string     `json:"error,omitempty"`
}

// EventType classifies events.
type EventType string

const (
	EventState  EventType = "state"
	EventError  EventType = "error"
	EventAction EventType = "action"
)

// Event reports a state transition, a runtime error or a scheduled action
// outcome.
type Event struct {
	Type       EventType `json:"type"`
	PlaybackID string    `json:"playbackId,omitempty"`
	ActionID   string    `json:"actionId,omitempty"`
	From       State     `json:"from,omitempty"`
	To         State     `json:"to,omitempty"`
	Err        string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// ConflictError is returned when a request cannot be granted its tracks.
type ConflictError struct {
	Strategy ConflictStrategy
	Tracks   []string
	Holders  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: tracks %s held by %s",
		e.Strategy, strings.Join(e.Tracks, ","), strings.Join(e.Holders, ","))
}

// RuntimeError records a failure while evaluating one playback.
type RuntimeError struct {
	PlaybackID string
	Err        error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("playback %s: %v", e.PlaybackID, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Status aggregates orchestrator counters.
type Status struct {
	Active             int           `json:"active"`
	Playing            int           `json:"playing"`
	Paused             int           `json:"paused"`
	Scheduled          int           `json:"scheduled"`
	PendingActions     int           `json:"pendingActions"`
	TotalScheduled     int64         `json:"totalScheduled"`
	TotalCompleted     int64         `json:"totalCompleted"`
	TotalErrors        int64         `json:"totalErrors"`
	TotalRejected      int64         `json:"totalRejected"`
	AvgScheduleLatency time.Duration `json:"avgScheduleLatency"`
	PeakConcurrency    int           `json:"peakConcurrency"`
	BatchesSent        int64         `json:"batchesSent"`
	TransportErrors    int64         `json:"transportErrors"`
	LastTransportError string        `json:"lastTransportError,omitempty"`
}
