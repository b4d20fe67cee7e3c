// Package distribute fans one animation out to a set of tracks.
package distribute

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
)

// Mode is a distribution rule.
type Mode string

const (
	Identical     Mode = "identical"
	PhaseOffset   Mode = "phase-offset"
	Relative      Mode = "position-relative"
	Isobarycenter Mode = "isobarycenter"
	CustomCenter  Mode = "custom-center"
	Centered      Mode = "centered"
)

var aliases = map[string]Mode{
	"":                  Identical,
	"identical":         Identical,
	"shared":            Identical,
	"phase-offset":      PhaseOffset,
	"position-relative": Relative,
	"offset":            Relative,
	"relative":          Relative,
	"isobarycenter":     Isobarycenter,
	"barycentric":       Isobarycenter,
	"custom-center":     CustomCenter,
	"centered":          Centered,
}

var (
	ErrUnknownMode  = errors.New("unknown distribution mode")
	ErrIncompatible = errors.New("distribution mode not compatible with model")
	ErrNoTracks     = errors.New("no tracks to distribute to")
)

// ParseMode resolves a mode name or alias.
func ParseMode(s string) (Mode, error) {
	if m, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Track is a participating track and where it stood when the playback
// started.
type Track struct {
	ID       string
	Position position.Position
}

// Options tune the relative modes.
type Options struct {
	// PhaseOffset is the lag in seconds between consecutive tracks.
	PhaseOffset float64 `json:"phaseOffset,omitempty" yaml:"phaseOffset,omitempty"`
	// Center replaces the barycenter as the reference point for
	// position-relative and custom-center modes.
	Center *position.Position `json:"center,omitempty" yaml:"center,omitempty"`
	// Weights are per-track barycenter weights; missing tracks weigh 1.
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	// Radius of the centered circle.
	Radius float64 `json:"radius,omitempty" yaml:"radius,omitempty"`
	// Plane of the centered circle.
	Plane position.Plane `json:"plane,omitempty" yaml:"plane,omitempty"`
	// Rotate turns offsets with rotational models.
	Rotate bool `json:"rotate,omitempty" yaml:"rotate,omitempty"`
}

// CheckCompatibility rejects mode for models whose path is defined by
// control points, which have no centre to arrange tracks around.
func CheckCompatibility(mode Mode, desc motion.Descriptor) error {
	if mode == Centered && desc.PathBased {
		return fmt.Errorf("%w: %s cannot use %s", ErrIncompatible, desc.Metadata.Type, mode)
	}
	return nil
}

// Eval evaluates the animation at time t for the track at index k. Modes
// that share one evaluation across tracks call it once with k = -1.
type Eval func(t float64, k int) (position.Position, error)

// Rotation reports the angle an animation has turned through at time t.
type Rotation func(t float64) (angle float64, axis position.Position)

// Assignment is the position of one track.
type Assignment struct {
	TrackID  string
	Position position.Position
}

// Plan is a distribution frozen at playback start: the reference point and
// per-track offsets are computed once.
type Plan struct {
	mode      Mode
	opts      Options
	tracks    []Track
	reference position.Position
	offsets   []position.Position
}

// NewPlan computes the plan for tracks. Relative modes with a single track
// reduce to Identical.
func NewPlan(mode Mode, tracks []Track, opts Options) (*Plan, error) {
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}
	if _, ok := aliases[string(mode)]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if mode == CustomCenter && opts.Center == nil {
		return nil, fmt.Errorf("%s requires a center", CustomCenter)
	}
	if mode == "" || (len(tracks) == 1 && mode != PhaseOffset) {
		mode = Identical
	}
	if mode == Centered && opts.Radius == 0 {
		mode = Identical
	}
	if opts.Plane == "" {
		opts.Plane = position.PlaneXY
	}

	p := &Plan{mode: mode, opts: opts, tracks: append([]Track(nil), tracks...)}
	pts := make([]position.Position, len(tracks))
	for i, tr := range tracks {
		pts[i] = tr.Position
	}

	switch mode {
	case Isobarycenter, Relative, CustomCenter:
		switch {
		case opts.Center != nil && mode != Isobarycenter:
			p.reference = *opts.Center
		case len(opts.Weights) > 0:
			w := make([]float64, len(tracks))
			for i, tr := range tracks {
				w[i] = opts.Weights[tr.ID]
			}
			p.reference = position.WeightedCentroid(pts, w)
		default:
			p.reference = position.Centroid(pts)
		}
		p.offsets = make([]position.Position, len(tracks))
		for i, pt := range pts {
			p.offsets[i] = pt.Sub(p.reference)
		}
	case Centered:
		p.reference = position.Centroid(pts)
		n := float64(len(tracks))
		p.offsets = make([]position.Position, len(tracks))
		for i := range tracks {
			a := 2 * math.Pi * float64(i) / n
			p.offsets[i] = opts.Plane.Place(position.Zero, opts.Radius*math.Cos(a), opts.Radius*math.Sin(a), 0)
		}
	default:
		p.reference = position.Centroid(pts)
	}
	return p, nil
}

// Mode returns the effective mode after reductions.
func (p *Plan) Mode() Mode { return p.mode }

// Reference returns the reference point at playback start: the barycenter or
// explicit centre the offsets were measured from.
func (p *Plan) Reference() position.Position { return p.reference }

// Tracks returns the participating tracks.
func (p *Plan) Tracks() []Track { return append([]Track(nil), p.tracks...) }

// Offset returns the offset of track k from the moving reference point.
func (p *Plan) Offset(k int) position.Position {
	if k < 0 || k >= len(p.offsets) {
		return position.Zero
	}
	return p.offsets[k]
}

// Clock places a playback on its animation timeline so that lagging tracks
// can be mapped back onto it across loop boundaries.
type Clock struct {
	Time     float64
	Duration float64
	// Iteration counts completed plays, or completed legs when PingPong.
	Iteration int
	PingPong  bool
	// Reverse means the first play ran from Duration toward 0.
	Reverse bool
}

// Lag returns the animation time of a track running lag seconds behind the
// clock. Before the first play has advanced lag seconds the track holds the
// start of the animation; after that it follows the loop, turning with it
// when ping-ponging.
func (c Clock) Lag(lag float64) float64 {
	if lag <= 0 {
		return c.Time
	}
	d := c.Duration
	if d <= 0 {
		return math.Max(0, c.Time-lag)
	}
	dir := func(leg int) float64 {
		s := 1.0
		if c.Reverse {
			s = -1
		}
		if c.PingPong && leg%2 != 0 {
			s = -s
		}
		return s
	}

	played := c.Time
	if dir(c.Iteration) < 0 {
		played = d - c.Time
	}
	u := float64(c.Iteration)*d + played - lag
	if u <= 0 {
		if c.Reverse {
			return d
		}
		return 0
	}
	leg := math.Floor(u / d)
	r := u - leg*d
	if dir(int(leg)) < 0 {
		return d - r
	}
	return r
}

// Distribute computes every track's position at time t on a single,
// non-looping play. rot may be nil; it is only used when the plan was built
// with Options.Rotate.
func (p *Plan) Distribute(t float64, eval Eval, rot Rotation) ([]Assignment, error) {
	return p.DistributeAt(Clock{Time: t}, eval, rot)
}

// DistributeAt computes every track's position at clock c.
func (p *Plan) DistributeAt(c Clock, eval Eval, rot Rotation) ([]Assignment, error) {
	t := c.Time
	out := make([]Assignment, len(p.tracks))
	if p.mode == PhaseOffset {
		for k, tr := range p.tracks {
			tk := c.Lag(float64(k) * p.opts.PhaseOffset)
			pos, err := eval(tk, k)
			if err != nil {
				return nil, fmt.Errorf("track %s: %w", tr.ID, err)
			}
			out[k] = Assignment{TrackID: tr.ID, Position: pos}
		}
		return out, nil
	}

	base, err := eval(t, -1)
	if err != nil {
		return nil, err
	}
	return p.Apply(base, p.angle(t, rot)), nil
}

func (p *Plan) angle(t float64, rot Rotation) func(position.Position) position.Position {
	if !p.opts.Rotate || rot == nil {
		return nil
	}
	a, axis := rot(t)
	if a == 0 || axis.Length() == 0 {
		return nil
	}
	return func(v position.Position) position.Position { return v.RotateAround(axis, a) }
}

// Apply places every track around an already evaluated base position. turn,
// when non-nil, rotates each offset.
func (p *Plan) Apply(base position.Position, turn func(position.Position) position.Position) []Assignment {
	out := make([]Assignment, len(p.tracks))
	for k, tr := range p.tracks {
		pos := base
		if p.offsets != nil {
			off := p.offsets[k]
			if turn != nil {
				off = turn(off)
			}
			pos = base.Add(off)
		}
		out[k] = Assignment{TrackID: tr.ID, Position: pos}
	}
	return out
}

// Map converts assignments to a map keyed by track ID.
func Map(as []Assignment) map[string]position.Position {
	out := make(map[string]position.Position, len(as))
	for _, a := range as {
		out[a.TrackID] = a.Position
	}
	return out
}
