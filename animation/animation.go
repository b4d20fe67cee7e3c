// Package animation holds declarative animation records and the library
// they are stored in.
package animation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/matt-g-everett/spatx/distribute"
	"github.com/matt-g-everett/spatx/motion"
)

var (
	ErrLocked   = errors.New("animation track set is locked")
	ErrNotFound = errors.New("animation not found")
)

// Fade configures the ramps at the start and end of a playback.
type Fade struct {
	In    float64 `json:"in,omitempty" yaml:"in,omitempty"`
	Out   float64 `json:"out,omitempty" yaml:"out,omitempty"`
	Curve string  `json:"curve,omitempty" yaml:"curve,omitempty"`
}

// Enabled reports whether either ramp is set.
func (f Fade) Enabled() bool { return f.In > 0 || f.Out > 0 }

// Distribution selects how the animation is spread over its tracks.
type Distribution struct {
	Mode    string             `json:"mode,omitempty" yaml:"mode,omitempty"`
	Options distribute.Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Animation is a declarative animation. It carries no runtime state.
type Animation struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Type         string            `json:"type" yaml:"type"`
	Parameters   motion.Params     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Duration     float64           `json:"duration" yaml:"duration"`
	Keyframes    []motion.Keyframe `json:"keyframes,omitempty" yaml:"keyframes,omitempty"`
	Loop         bool              `json:"loop,omitempty" yaml:"loop,omitempty"`
	PingPong     bool              `json:"pingPong,omitempty" yaml:"pingPong,omitempty"`
	Fade         Fade              `json:"fade,omitempty" yaml:"fade,omitempty"`
	TrackIDs     []string          `json:"trackIds,omitempty" yaml:"trackIds,omitempty"`
	Locked       bool              `json:"locked,omitempty" yaml:"locked,omitempty"`
	Distribution Distribution      `json:"distribution,omitempty" yaml:"distribution,omitempty"`
}

// Params returns the parameters passed to the model: Parameters plus the
// keyframes list when the animation has one and the parameters don't.
func (a *Animation) Params() motion.Params {
	p := a.Parameters.Clone()
	if len(a.Keyframes) > 0 && !p.Has("keyframes") {
		kfs := make([]motion.Keyframe, len(a.Keyframes))
		copy(kfs, a.Keyframes)
		p["keyframes"] = kfs
	}
	return p
}

// Lock fixes the track set. A locked animation cannot be relocked or have
// its tracks changed.
func (a *Animation) Lock(trackIDs []string) error {
	if a.Locked {
		return fmt.Errorf("%w: %s", ErrLocked, a.ID)
	}
	if len(trackIDs) == 0 {
		return errors.New("cannot lock an animation to an empty track set")
	}
	a.TrackIDs = slices.Clone(trackIDs)
	a.Locked = true
	return nil
}

// SetTracks changes the default track set of an unlocked animation.
func (a *Animation) SetTracks(trackIDs []string) error {
	if a.Locked {
		return fmt.Errorf("%w: %s", ErrLocked, a.ID)
	}
	a.TrackIDs = slices.Clone(trackIDs)
	return nil
}

// Validate checks the fields that do not need the model registry.
func (a *Animation) Validate() error {
	switch {
	case a.Type == "":
		return errors.New("animation type is required")
	case a.Duration < 0:
		return fmt.Errorf("animation %s: negative duration", a.ID)
	case a.Fade.In < 0 || a.Fade.Out < 0:
		return fmt.Errorf("animation %s: negative fade", a.ID)
	case a.Locked && len(a.TrackIDs) == 0:
		return fmt.Errorf("animation %s: locked without tracks", a.ID)
	}
	if _, err := distribute.ParseMode(a.Distribution.Mode); err != nil {
		return fmt.Errorf("animation %s: %w", a.ID, err)
	}
	return nil
}

// Clone returns a deep enough copy that mutating it never affects a.
func (a *Animation) Clone() *Animation {
	c := *a
	c.Parameters = a.Parameters.Clone()
	c.Keyframes = slices.Clone(a.Keyframes)
	c.TrackIDs = slices.Clone(a.TrackIDs)
	if a.Distribution.Options.Weights != nil {
		c.Distribution.Options.Weights = make(map[string]float64, len(a.Distribution.Options.Weights))
		for k, v := range a.Distribution.Options.Weights {
			c.Distribution.Options.Weights[k] = v
		}
	}
	return &c
}
