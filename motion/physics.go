package motion

import (
	"math"
	"strings"

	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

const (
	// MaxStep caps the time a stateful model advances in one call so large
	// gaps between calls cannot destabilise the integration.
	MaxStep = 0.1
	// ResetTime is the time below which a stateful model starts over.
	ResetTime = 0.001
	// subStep is the fixed integration step.
	subStep = 1.0 / 60
)

type physicsState[S any] struct {
	last float64
	s    S
}

// evolve advances the state of a physics model to time t and returns it.
//
// Without a stored state, or when t is near zero or earlier than the last
// call, the state is rebuilt from init and integrated from 0 up to t. A
// normal forward call advances by at most MaxStep. A nil store integrates
// from 0 on every call.
func evolve[S any](ctx *Context, model string, t float64, init func() S, step func(s *S, dt float64)) S {
	var st *physicsState[S]
	if ctx != nil && ctx.States != nil {
		if v, ok := ctx.States.Load(ctx.key(model)); ok {
			st, _ = v.(*physicsState[S])
		}
	}

	catchUp := false
	if st == nil || t < ResetTime || t < st.last {
		st = &physicsState[S]{s: init()}
		catchUp = true
	}

	dt := t - st.last
	if !catchUp && dt > MaxStep {
		dt = MaxStep
	}
	for dt > 1e-12 {
		h := math.Min(dt, subStep)
		step(&st.s, h)
		dt -= h
	}
	st.last = t

	if ctx != nil && ctx.States != nil {
		ctx.States.Store(ctx.key(model), st)
	}
	return st.s
}

type body struct {
	pos position.Position
	vel position.Position
}

// Pendulum swings a bob hanging from an anchor in the selected plane. The
// plane's second axis is vertical.
type Pendulum struct{}

func (Pendulum) Type() string   { return "pendulum" }
func (Pendulum) Stateful() bool { return true }

func (Pendulum) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Pendulum", Version: "1.0.0", Type: "pendulum", Category: "physics",
			Description: "Damped gravity pendulum",
			Tags:        []string{"physics", "pendulum", "swing"},
		},
		Fields: []Field{
			point("anchorPoint", "Anchor", position.New(0, 0, 10)),
			number("length", "Length", 5, bound(0.01), nil),
			number("initialAngle", "Initial angle (deg)", 45, bound(-179), bound(179)),
			number("damping", "Damping", 0.1, bound(0), nil),
			number("gravity", "Gravity", 9.81, bound(0), nil),
			enum("plane", "Plane", string(position.PlaneXZ), "xy", "xz", "yz"),
		},
		ControlPoints: []string{"anchorPoint"},
	}
}

func (Pendulum) DefaultParameters(track position.Position) Params {
	return Params{"anchorPoint": track.Add(position.New(0, 0, 5)), "length": 5.0}
}

type pendulumState struct {
	angle, omega float64
}

func (Pendulum) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	anchor := p.Position("anchorPoint", position.New(0, 0, 10))
	length := p.Float("length", 5)
	if length <= 0 {
		length = 5
	}
	damping := p.Float("damping", 0.1)
	g := p.Float("gravity", 9.81)
	s := evolve(ctx, "pendulum", t,
		func() pendulumState { return pendulumState{angle: util.Radians(p.Float("initialAngle", 45))} },
		func(s *pendulumState, dt float64) {
			alpha := -(g/length)*math.Sin(s.angle) - damping*s.omega
			s.omega += alpha * dt
			s.angle += s.omega * dt
		})
	pl := p.Plane("plane", position.PlaneXZ)
	return pl.Place(anchor, length*math.Sin(s.angle), -length*math.Cos(s.angle), 0), nil
}

// Spring oscillates around a rest position from an initial displacement.
type Spring struct{}

func (Spring) Type() string   { return "spring" }
func (Spring) Stateful() bool { return true }

func (Spring) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Spring", Version: "1.0.0", Type: "spring", Category: "physics",
			Description: "Damped mass on a spring",
			Tags:        []string{"physics", "spring", "oscillation"},
		},
		Fields: []Field{
			point("restPosition", "Rest position", position.Zero),
			point("initialDisplacement", "Initial displacement", position.New(5, 0, 0)),
			number("stiffness", "Stiffness", 10, bound(0.01), nil),
			number("damping", "Damping", 0.5, bound(0), nil),
			number("mass", "Mass", 1, bound(0.01), nil),
		},
		ControlPoints: []string{"restPosition"},
	}
}

func (Spring) DefaultParameters(track position.Position) Params {
	return Params{"restPosition": track, "initialDisplacement": position.New(5, 0, 0)}
}

func (Spring) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	rest := p.Position("restPosition", position.Zero)
	k := p.Float("stiffness", 10)
	c := p.Float("damping", 0.5)
	m := p.Float("mass", 1)
	if m <= 0 {
		m = 1
	}
	b := evolve(ctx, "spring", t,
		func() body { return body{pos: p.Position("initialDisplacement", position.New(5, 0, 0))} },
		func(b *body, dt float64) {
			acc := b.pos.Scale(-k).Sub(b.vel.Scale(c)).Scale(1 / m)
			b.vel = b.vel.Add(acc.Scale(dt))
			b.pos = b.pos.Add(b.vel.Scale(dt))
		})
	return rest.Add(b.pos), nil
}

// Bounce drops a body under gravity onto a floor, losing energy at each
// impact.
type Bounce struct{}

func (Bounce) Type() string   { return "bounce" }
func (Bounce) Stateful() bool { return true }

func (Bounce) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Bounce", Version: "1.0.0", Type: "bounce", Category: "physics",
			Description: "Falling body bouncing on a floor",
			Tags:        []string{"physics", "bounce", "gravity"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.New(0, 0, 10)),
			point("initialVelocity", "Initial velocity", position.Zero),
			number("groundLevel", "Floor height", 0, nil, nil),
			number("restitution", "Restitution", 0.7, bound(0), bound(1)),
			number("friction", "Floor friction", 0.1, bound(0), bound(1)),
			number("gravity", "Gravity", 9.81, bound(0), nil),
		},
		ControlPoints: []string{"startPosition"},
	}
}

func (Bounce) DefaultParameters(track position.Position) Params {
	return Params{"startPosition": track.Add(position.New(0, 0, 10)), "groundLevel": track.Z}
}

func (Bounce) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	start := p.Position("startPosition", position.New(0, 0, 10))
	ground := p.Float("groundLevel", 0)
	e := util.Clamp(p.Float("restitution", 0.7), 0, 1)
	friction := util.Clamp(p.Float("friction", 0.1), 0, 1)
	g := p.Float("gravity", 9.81)
	b := evolve(ctx, "bounce", t,
		func() body { return body{pos: start, vel: p.Position("initialVelocity", position.Zero)} },
		func(b *body, dt float64) {
			b.vel.Z -= g * dt
			b.pos = b.pos.Add(b.vel.Scale(dt))
			if b.pos.Z < ground {
				b.pos.Z = ground
				b.vel.Z = -b.vel.Z * e
				b.vel.X *= 1 - friction
				b.vel.Y *= 1 - friction
				if math.Abs(b.vel.Z) < 0.05 {
					b.vel.Z = 0
				}
			}
		})
	return b.pos, nil
}

// AttractRepel moves a body under an inverse-square force toward (or away
// from) a target point.
type AttractRepel struct{}

func (AttractRepel) Type() string   { return "attract-repel" }
func (AttractRepel) Stateful() bool { return true }

func (AttractRepel) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Attract / repel", Version: "1.0.0", Type: "attract-repel", Category: "physics",
			Description: "Body pulled toward or pushed from a target",
			Tags:        []string{"physics", "gravity", "magnet"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.New(10, 0, 0)),
			point("targetPosition", "Target", position.Zero),
			enum("mode", "Mode", "attract", "attract", "repel"),
			number("strength", "Strength", 50, bound(0), nil),
			number("damping", "Damping", 0.5, bound(0), nil),
			number("minDistance", "Minimum distance", 0.5, bound(0.01), nil),
			number("maxSpeed", "Maximum speed", 20, bound(0.1), nil),
		},
		ControlPoints: []string{"startPosition", "targetPosition"},
	}
}

func (AttractRepel) DefaultParameters(track position.Position) Params {
	return Params{"startPosition": track, "targetPosition": position.Zero}
}

func (AttractRepel) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	start := p.Position("startPosition", position.New(10, 0, 0))
	target := p.Position("targetPosition", position.Zero)
	strength := p.Float("strength", 50)
	if strings.EqualFold(p.String("mode", "attract"), "repel") {
		strength = -strength
	}
	damping := p.Float("damping", 0.5)
	minDist := math.Max(p.Float("minDistance", 0.5), 0.01)
	maxSpeed := p.Float("maxSpeed", 20)
	b := evolve(ctx, "attract-repel", t,
		func() body { return body{pos: start} },
		func(b *body, dt float64) {
			d := target.Sub(b.pos)
			dist := math.Max(d.Length(), minDist)
			acc := d.Normalize().Scale(strength / (dist * dist)).Sub(b.vel.Scale(damping))
			b.vel = b.vel.Add(acc.Scale(dt))
			if sp := b.vel.Length(); sp > maxSpeed {
				b.vel = b.vel.Scale(maxSpeed / sp)
			}
			b.pos = b.pos.Add(b.vel.Scale(dt))
		})
	return b.pos, nil
}
