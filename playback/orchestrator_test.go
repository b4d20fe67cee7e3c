package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matt-g-everett/spatx/animation"
	"github.com/matt-g-everett/spatx/distribute"
	"github.com/matt-g-everett/spatx/metrics"
	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/registry"
	"github.com/matt-g-everett/spatx/tracks"
)

var base = time.Unix(1_700_000_000, 0)

func at(s float64) time.Time { return base.Add(time.Duration(s * float64(time.Second))) }

// failing errors after a second; panicking panics after a second.
type failing struct{ motion.Linear }

func (failing) Type() string { return "failing" }

func (f failing) Calculate(p motion.Params, t, d float64, ctx *motion.Context) (position.Position, error) {
	if t > 1 {
		return position.Zero, errors.New("lost the plot")
	}
	return f.Linear.Calculate(p, t, d, ctx)
}

type panicking struct{ motion.Linear }

func (panicking) Type() string { return "panicking" }

func (panicking) Calculate(p motion.Params, t, d float64, ctx *motion.Context) (position.Position, error) {
	if t > 1 {
		panic("boom")
	}
	return position.Zero, nil
}

type models struct {
	reg   *registry.Registry
	extra map[string]motion.Model
}

func (m models) Model(typ string) (motion.Model, error) {
	if x, ok := m.extra[typ]; ok {
		return x, nil
	}
	return m.reg.Model(typ)
}

type recorder struct {
	mu  sync.Mutex
	evs []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) states(id string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.evs {
		if ev.Type == EventState && ev.PlaybackID == id {
			out = append(out, ev.To)
		}
	}
	return out
}

type fixture struct {
	o    *Orchestrator
	lib  *animation.Library
	set  *tracks.Set
	now  time.Time
	rec  *recorder
	coll *metrics.Collector
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := registry.New()
	if err := reg.RegisterBuiltins(); err != nil {
		t.Fatal(err)
	}
	set, err := tracks.NewSet(
		tracks.Track{ID: "a", Index: 1},
		tracks.Track{ID: "b", Index: 2, Position: position.New(0, 5, 0)},
		tracks.Track{ID: "c", Index: 3, Position: position.New(4, 0, 0)},
	)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{lib: animation.NewLibrary(), set: set, now: base, rec: &recorder{}, coll: coll}
	opts = append([]Option{WithClock(func() time.Time { return f.now }), WithMetrics(coll)}, opts...)
	f.o = New(f.lib, models{reg: reg, extra: map[string]motion.Model{
		"failing":   failing{},
		"panicking": panicking{},
	}}, set, opts...)
	f.o.Subscribe(f.rec.add)

	f.put(t, &animation.Animation{ID: "slide", Type: "linear", Duration: 10, Parameters: motion.Params{
		"startPosition": position.Zero,
		"endPosition":   position.New(10, 0, 0),
	}})
	return f
}

func (f *fixture) put(t *testing.T, a *animation.Animation) {
	t.Helper()
	if _, err := f.lib.Put(a); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) schedule(t *testing.T, req Request) string {
	t.Helper()
	id, err := f.o.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule(%+v): %v", req, err)
	}
	return id
}

func (f *fixture) state(t *testing.T, id string) State {
	t.Helper()
	in, ok := f.o.Get(id)
	if !ok {
		t.Fatalf("playback %s unknown", id)
	}
	return in.State
}

func near(a, b position.Position) bool { return a.ApproxEqual(b, 1e-9) }

func TestStopExisting(t *testing.T) {
	f := newFixture(t)
	first := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
	second := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
	f.o.Tick(at(1))

	if got := f.state(t, first); got != StateStopped {
		t.Fatalf("first = %s, want STOPPED", got)
	}
	active := 0
	for _, in := range f.o.List() {
		if in.State == StatePlaying || in.State == StateStarting {
			active++
			if in.ID != second {
				t.Fatalf("unexpected active playback %s", in.ID)
			}
		}
	}
	if active != 1 {
		t.Fatalf("%d active playbacks for track a, want 1", active)
	}
}

func TestPriorityBased(t *testing.T) {
	f := newFixture(t, WithStrategy(PriorityBased))
	normal := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Priority: PriorityNormal})
	high := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Priority: PriorityHigh})

	// The preempted playback's terminal event precedes the new one reaching
	// PLAYING.
	var order []string
	for _, ev := range f.rec.evs {
		if ev.PlaybackID == normal && ev.To == StateStopped {
			order = append(order, "normal stopped")
		}
		if ev.PlaybackID == high && ev.To == StatePlaying {
			order = append(order, "high playing")
		}
	}
	if len(order) != 2 || order[0] != "normal stopped" {
		t.Fatalf("event order = %v", order)
	}

	_, err := f.o.Schedule(context.Background(), Request{AnimationID: "slide", TrackIDs: []string{"a"}, Priority: PriorityLow})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Strategy != PriorityBased || ce.Holders[0] != high {
		t.Fatalf("low priority request: %v", err)
	}
	if got := testutil.ToFloat64(f.coll.Rejected.WithLabelValues("conflict")); got != 1 {
		t.Fatalf("rejected conflict = %v", got)
	}
	if got := testutil.ToFloat64(f.coll.Transitions.WithLabelValues(string(StateStopped))); got != 1 {
		t.Fatalf("STOPPED transitions = %v", got)
	}
}

func TestRejectNew(t *testing.T) {
	f := newFixture(t, WithStrategy(RejectNew))
	f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a", "b"}})
	_, err := f.o.Schedule(context.Background(), Request{AnimationID: "slide", TrackIDs: []string{"b"}})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if n := len(f.o.List()); n != 1 {
		t.Fatalf("rejected request created state: %d playbacks", n)
	}
	if _, err := f.o.Schedule(context.Background(), Request{AnimationID: "slide", TrackIDs: []string{"c"}}); err != nil {
		t.Fatalf("free track rejected: %v", err)
	}
}

func TestAllowConcurrentWritePolicies(t *testing.T) {
	for _, tt := range []struct {
		policy WritePolicy
		want   position.Position
	}{
		{LastWriteWins, position.New(0, 2, 0)},
		{Blend, position.New(1, 1, 0)},
	} {
		f := newFixture(t, WithStrategy(AllowConcurrent), WithWritePolicy(tt.policy))
		f.put(t, &animation.Animation{ID: "rise", Type: "linear", Duration: 10, Parameters: motion.Params{
			"startPosition": position.Zero,
			"endPosition":   position.New(0, 10, 0),
		}})
		f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
		f.schedule(t, Request{AnimationID: "rise", TrackIDs: []string{"a"}})
		frame := f.o.Tick(at(2))
		if got := frame.Positions["a"]; !near(got, tt.want) {
			t.Fatalf("%s: a = %v, want %v", tt.policy, got, tt.want)
		}
	}
}

func TestLoopWrapsTime(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "spin", Type: "circular", Duration: 4, Loop: true, Parameters: motion.Params{
		"center": position.Zero, "radius": 10.0, "plane": "xy",
	}})
	id := f.schedule(t, Request{AnimationID: "spin", TrackIDs: []string{"a"}})

	first := f.o.Tick(at(1.3)).Positions["a"]
	again := f.o.Tick(at(5.3)).Positions["a"]
	if !near(first, again) {
		t.Fatalf("position at 1.3 = %v, at 5.3 = %v", first, again)
	}
	in, _ := f.o.Get(id)
	if in.Iteration != 1 || math.Abs(in.CurrentTime-1.3) > 1e-9 || math.Abs(in.Elapsed-5.3) > 1e-9 {
		t.Fatalf("info = %+v", in)
	}
	if in.State != StatePlaying {
		t.Fatalf("infinite loop ended: %s", in.State)
	}
}

func TestPhaseOffsetAcrossLoop(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "chase", Type: "circular", Duration: 4, Loop: true,
		Distribution: animation.Distribution{Mode: "phase-offset", Options: distribute.Options{PhaseOffset: 1}},
		Parameters:   motion.Params{"center": position.Zero, "radius": 5.0, "plane": "xy"},
	})
	f.schedule(t, Request{AnimationID: "chase", TrackIDs: []string{"a", "b"}})

	var lead, prev position.Position
	for i := 35; i <= 49; i++ {
		frame := f.o.Tick(at(float64(i) / 10))
		if i == 35 {
			lead = frame.Positions["a"]
		}
		b := frame.Positions["b"]
		// A radius 5 circle in 4 s covers about 0.79 per 0.1 s.
		if i > 35 && b.Sub(prev).Length() > 1 {
			t.Fatalf("lagging track jumped from %v to %v at %v", prev, b, float64(i)/10)
		}
		if i == 45 && !b.ApproxEqual(lead, 1e-6) {
			t.Fatalf("b at 4.5 = %v, want a at 3.5 = %v", b, lead)
		}
		prev = b
	}
}

func TestLongAdvanceWrapsOnce(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "flick", Type: "linear", Duration: 0.5, Loop: true, Parameters: motion.Params{
		"startPosition": position.Zero,
		"endPosition":   position.New(10, 0, 0),
	}})
	id := f.schedule(t, Request{AnimationID: "flick", TrackIDs: []string{"a"}})
	f.o.Tick(at(1e7 + 0.25))
	in, _ := f.o.Get(id)
	if in.Iteration != 2e7 || math.Abs(in.CurrentTime-0.25) > 1e-6 || in.State != StatePlaying {
		t.Fatalf("info = %+v", in)
	}

	f.now = at(1e7 + 0.25)
	counted := f.schedule(t, Request{AnimationID: "flick", TrackIDs: []string{"b"}, Loop: &Loop{Enabled: true, Count: 3}})
	frame := f.o.Tick(at(2e7))
	in, _ = f.o.Get(counted)
	if in.State != StateStopped || in.Iteration != 2 || in.CurrentTime != 0.5 {
		t.Fatalf("counted loop = %+v", in)
	}
	if got := frame.Positions["b"]; !near(got, position.New(10, 0, 0)) {
		t.Fatalf("final position = %v", got)
	}
}

func TestPingPongManyLegs(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "bounce", Type: "linear", Duration: 2, Loop: true, PingPong: true, Parameters: motion.Params{
		"startPosition": position.Zero,
		"endPosition":   position.New(10, 0, 0),
	}})
	id := f.schedule(t, Request{AnimationID: "bounce", TrackIDs: []string{"a"}})
	if got := f.o.Tick(at(7)).Positions["a"]; !near(got, position.New(5, 0, 0)) {
		t.Fatalf("t=7: %v", got)
	}
	if in, _ := f.o.Get(id); in.Iteration != 3 || !in.Reversed {
		t.Fatalf("info = %+v", in)
	}
}

func TestFiniteLoopCount(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Loop: &Loop{Enabled: true, Count: 2}})
	f.o.Tick(at(15))
	if in, _ := f.o.Get(id); in.State != StatePlaying || in.Iteration != 1 {
		t.Fatalf("after 15s: %+v", in)
	}
	frame := f.o.Tick(at(21))
	if got := f.state(t, id); got != StateStopped {
		t.Fatalf("after 21s state = %s", got)
	}
	if got := frame.Positions["a"]; !near(got, position.New(10, 0, 0)) {
		t.Fatalf("final position = %v, want the end point", got)
	}
	if frame := f.o.Tick(at(22)); len(frame.Positions) != 0 {
		t.Fatalf("stopped playback still writes: %v", frame.Positions)
	}
}

func TestPingPong(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "bounce", Type: "linear", Duration: 2, Loop: true, PingPong: true, Parameters: motion.Params{
		"startPosition": position.Zero,
		"endPosition":   position.New(10, 0, 0),
	}})
	id := f.schedule(t, Request{AnimationID: "bounce", TrackIDs: []string{"a"}})

	if got := f.o.Tick(at(3)).Positions["a"]; !near(got, position.New(5, 0, 0)) {
		t.Fatalf("t=3: %v", got)
	}
	if in, _ := f.o.Get(id); !in.Reversed {
		t.Fatalf("not reversed on the way back")
	}
	if got := f.o.Tick(at(4.5)).Positions["a"]; !near(got, position.New(2.5, 0, 0)) {
		t.Fatalf("t=4.5: %v", got)
	}
}

func TestReverse(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Reverse: true})
	if got := f.o.Tick(at(2)).Positions["a"]; !near(got, position.New(8, 0, 0)) {
		t.Fatalf("reverse t=2: %v", got)
	}
	f.o.Tick(at(11))
	if got := f.state(t, id); got != StateStopped {
		t.Fatalf("reverse playback did not finish: %s", got)
	}
}

func TestFades(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{
		AnimationID: "slide",
		TrackIDs:    []string{"b"},
		Fade:        &animation.Fade{In: 1, Out: 2, Curve: "linear"},
	})
	if got := f.state(t, id); got != StateStarting {
		t.Fatalf("initial state = %s", got)
	}

	// Halfway through the fade-in: halfway between home (0,5,0) and (0.5,0,0).
	frame := f.o.Tick(at(0.5))
	if got := frame.Positions["b"]; !near(got, position.New(0.25, 2.5, 0)) {
		t.Fatalf("fade-in position = %v", got)
	}
	if in, _ := f.o.Get(id); !in.Fade.Fading || in.Fade.Direction != "in" || in.Fade.Progress != 0.5 {
		t.Fatalf("fade status = %+v", in.Fade)
	}

	f.o.Tick(at(1))
	if got := f.state(t, id); got != StatePlaying {
		t.Fatalf("after fade-in state = %s", got)
	}

	f.now = at(3)
	if err := f.o.Stop(id, false); err != nil {
		t.Fatal(err)
	}
	if got := f.state(t, id); got != StateStopping {
		t.Fatalf("soft stop state = %s", got)
	}
	f.o.Tick(at(4))
	frame = f.o.Tick(at(5))
	if got := f.state(t, id); got != StateStopped {
		t.Fatalf("after fade-out state = %s", got)
	}
	if got := frame.Positions["b"]; !near(got, position.New(0, 5, 0)) {
		t.Fatalf("fade-out did not return home: %v", got)
	}
	want := []State{StateStarting, StatePlaying, StateStopping, StateStopped}
	got := f.rec.states(id)
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestCustomLeadInStartsAtTrack(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "path", Type: "custom", Duration: 4, Parameters: motion.Params{
		"keyframes": []motion.Keyframe{{Time: 2, Position: position.New(10, 0, 0)}},
	}})
	f.schedule(t, Request{AnimationID: "path", TrackIDs: []string{"c"}})
	if got := f.o.Tick(at(0.001)).Positions["c"]; !got.ApproxEqual(position.New(4, 0, 0), 0.01) {
		t.Fatalf("lead-in start = %v, want near the track's home", got)
	}
	if got := f.o.Tick(at(1)).Positions["c"]; !near(got, position.New(7, 0, 0)) {
		t.Fatalf("lead-in midpoint = %v", got)
	}
}

func TestStopDuringFadeIn(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{
		AnimationID: "slide",
		TrackIDs:    []string{"b"},
		Fade:        &animation.Fade{In: 2, Out: 2, Curve: "linear"},
	})
	before := f.o.Tick(at(0.5)).Positions["b"]
	if !near(before, position.New(0.125, 3.75, 0)) {
		t.Fatalf("fade-in position = %v", before)
	}

	f.now = at(0.5)
	if err := f.o.Stop(id, false); err != nil {
		t.Fatal(err)
	}
	after := f.o.Tick(at(0.55)).Positions["b"]
	if d := after.Sub(before).Length(); d > 0.1 {
		t.Fatalf("output jumped %v from %v to %v", d, before, after)
	}
	mid := f.o.Tick(at(1.5)).Positions["b"]
	if home := position.New(0, 5, 0); mid.Sub(home).Length() >= before.Sub(home).Length() {
		t.Fatalf("fade-out moved away from home: %v", mid)
	}
	frame := f.o.Tick(at(2.6))
	if got := f.state(t, id); got != StateStopped {
		t.Fatalf("after fade-out state = %s", got)
	}
	if got := frame.Positions["b"]; !near(got, position.New(0, 5, 0)) {
		t.Fatalf("fade-out did not return home: %v", got)
	}
}

func TestConflictStopHandsOverTracks(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "rise", Type: "linear", Duration: 10, Parameters: motion.Params{
		"startPosition": position.Zero,
		"endPosition":   position.New(0, 10, 0),
	}})
	first := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Fade: &animation.Fade{Out: 2}})
	f.o.Tick(at(1))
	f.now = at(1)
	f.schedule(t, Request{AnimationID: "rise", TrackIDs: []string{"a"}})
	if got := f.state(t, first); got != StateStopping {
		t.Fatalf("conflicting playback = %s, want STOPPING", got)
	}
	if got := f.o.Tick(at(2)).Positions["a"]; !near(got, position.New(0, 1, 0)) {
		t.Fatalf("a = %v, want only the new playback", got)
	}
	f.o.Tick(at(3.5))
	if got := f.state(t, first); got != StateStopped {
		t.Fatalf("fade-out did not finish: %s", got)
	}
}

func TestImmediateStopSkipsFade(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Fade: &animation.Fade{Out: 3}})
	if err := f.o.Stop(id, true); err != nil {
		t.Fatal(err)
	}
	if got := f.state(t, id); got != StateStopped {
		t.Fatalf("state = %s", got)
	}
	// Track a is free again.
	f.o.strategy = RejectNew
	f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
	if err := f.o.Stop("nope", true); !errors.Is(err, ErrUnknownPlayback) {
		t.Fatalf("unknown stop: %v", err)
	}
}

func TestRuntimeErrorIsolation(t *testing.T) {
	for _, typ := range []string{"failing", "panicking"} {
		f := newFixture(t)
		f.put(t, &animation.Animation{ID: typ, Type: typ, Duration: 10})
		bad := f.schedule(t, Request{AnimationID: typ, TrackIDs: []string{"b"}})
		good := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})

		f.o.Tick(at(0.5))
		frame := f.o.Tick(at(2))
		in, _ := f.o.Get(bad)
		if in.State != StateError || in.Err == "" {
			t.Fatalf("%s: bad playback = %+v", typ, in)
		}
		if got := f.state(t, good); got != StatePlaying {
			t.Fatalf("%s: good playback = %s", typ, got)
		}
		if _, ok := frame.Positions["b"]; ok {
			t.Fatalf("%s: failed playback still writes", typ)
		}
		if !near(frame.Positions["a"], position.New(2, 0, 0)) {
			t.Fatalf("%s: a = %v", typ, frame.Positions["a"])
		}
		errs := 0
		for _, ev := range f.rec.evs {
			if ev.Type == EventError && ev.PlaybackID == bad {
				errs++
			}
		}
		if errs != 1 || f.o.Status().TotalErrors != 1 {
			t.Fatalf("%s: %d error events, status %+v", typ, errs, f.o.Status())
		}
	}
}

func TestScheduledActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID, err := f.o.ScheduleAt(ctx, Request{AnimationID: "slide", TrackIDs: []string{"a"}}, at(2))
	if err != nil {
		t.Fatal(err)
	}
	cancelID, _ := f.o.ScheduleAt(ctx, Request{AnimationID: "slide", TrackIDs: []string{"c"}}, at(1))
	if len(f.o.Actions()) != 2 || f.o.Actions()[0].ID != cancelID {
		t.Fatalf("actions = %+v", f.o.Actions())
	}
	if !f.o.CancelAction(cancelID) || f.o.CancelAction(cancelID) {
		t.Fatalf("CancelAction misbehaved")
	}

	f.o.Tick(at(1.5))
	if n := len(f.o.List()); n != 0 {
		t.Fatalf("%d playbacks before the action is due", n)
	}
	f.o.Tick(at(2))
	list := f.o.List()
	if len(list) != 1 || list[0].TrackIDs[0] != "a" {
		t.Fatalf("playbacks after action = %+v", list)
	}
	f.o.Tick(at(3))
	if len(f.o.List()) != 1 || f.o.Status().PendingActions != 0 {
		t.Fatalf("action ran more than once")
	}
	var ran bool
	for _, ev := range f.rec.evs {
		if ev.Type == EventAction && ev.ActionID == runID && ev.PlaybackID == list[0].ID {
			ran = true
		}
	}
	if !ran {
		t.Fatalf("no action event")
	}
}

func TestDelayedStart(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}, Delay: 1})
	if got := f.state(t, id); got != StateScheduled {
		t.Fatalf("state = %s", got)
	}
	if frame := f.o.Tick(at(0.5)); len(frame.Positions) != 0 {
		t.Fatalf("scheduled playback writes: %v", frame.Positions)
	}
	frame := f.o.Tick(at(3))
	if got := frame.Positions["a"]; !near(got, position.New(2, 0, 0)) {
		t.Fatalf("delayed playback at 3s = %v, want 2s in", got)
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
	f.o.Tick(at(1))
	if !f.o.Pause(id) || f.o.Pause(id) {
		t.Fatalf("Pause misbehaved")
	}
	frame := f.o.Tick(at(3))
	if got := frame.Positions["a"]; !near(got, position.New(1, 0, 0)) {
		t.Fatalf("paused playback moved: %v", got)
	}
	f.now = at(3)
	if !f.o.Resume(id) {
		t.Fatalf("Resume failed")
	}
	if got := f.o.Tick(at(4)).Positions["a"]; !near(got, position.New(2, 0, 0)) {
		t.Fatalf("after resume = %v", got)
	}
	if f.o.Pause("missing") || f.o.Resume("missing") {
		t.Fatalf("unknown playback paused")
	}
	f.o.Stop(id, true)
	if f.o.Pause(id) {
		t.Fatalf("terminal playback paused")
	}
}

func TestSeekAndSpeed(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
	if err := f.o.Seek(id, 5); err != nil {
		t.Fatal(err)
	}
	if err := f.o.SetSpeed(id, 2); err != nil {
		t.Fatal(err)
	}
	if got := f.o.Tick(at(1)).Positions["a"]; !near(got, position.New(7, 0, 0)) {
		t.Fatalf("after seek and speed = %v", got)
	}
	if err := f.o.SetSpeed(id, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("zero speed: %v", err)
	}
	if err := f.o.Seek("missing", 1); !errors.Is(err, ErrUnknownPlayback) {
		t.Fatalf("unknown seek: %v", err)
	}
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "ghost", Type: "no-such-model", Duration: 1})
	f.put(t, &animation.Animation{ID: "curve", Type: "bezier", Duration: 1,
		Distribution: animation.Distribution{Mode: "centered", Options: distribute.Options{Radius: 2}}})

	var nf *registry.ModelNotFoundError
	tests := []struct {
		name string
		req  Request
		ok   func(error) bool
	}{
		{"priority", Request{AnimationID: "slide", TrackIDs: []string{"a"}, Priority: 500},
			func(err error) bool { return errors.Is(err, ErrInvalidPriority) }},
		{"animation", Request{AnimationID: "missing", TrackIDs: []string{"a"}},
			func(err error) bool { return errors.Is(err, ErrAnimationNotFound) }},
		{"no tracks", Request{AnimationID: "slide"},
			func(err error) bool { return errors.Is(err, ErrNoTracks) }},
		{"model", Request{AnimationID: "ghost", TrackIDs: []string{"a"}},
			func(err error) bool { return errors.As(err, &nf) }},
		{"centered path", Request{AnimationID: "curve", TrackIDs: []string{"a", "b"}},
			func(err error) bool { return errors.Is(err, distribute.ErrIncompatible) }},
		{"speed", Request{AnimationID: "slide", TrackIDs: []string{"a"}, Speed: -1},
			func(err error) bool { return errors.Is(err, ErrInvalidRequest) }},
	}
	for _, tt := range tests {
		_, err := f.o.Schedule(context.Background(), tt.req)
		if err == nil || !tt.ok(err) {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
	}
	if s := f.o.Status(); s.TotalRejected != int64(len(tests)) || s.TotalScheduled != 0 {
		t.Fatalf("status = %+v", s)
	}
}

func TestSelectionFallbackAndDistribution(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "drift", Type: "linear", Duration: 10,
		Distribution: animation.Distribution{Mode: "relative"},
		Parameters: motion.Params{
			"startPosition": position.Zero,
			"endPosition":   position.New(0, 0, 10),
		}})
	if err := f.set.Select([]string{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	f.schedule(t, Request{AnimationID: "drift"})
	frame := f.o.Tick(at(5))
	// Offsets from the centroid (2,2.5,0) ride along the path.
	if !near(frame.Positions["b"], position.New(-2, 2.5, 5)) || !near(frame.Positions["c"], position.New(2, -2.5, 5)) {
		t.Fatalf("positions = %v", frame.Positions)
	}
}

func TestStatefulStateCleared(t *testing.T) {
	f := newFixture(t)
	f.put(t, &animation.Animation{ID: "swing", Type: "pendulum", Duration: 5})
	id := f.schedule(t, Request{AnimationID: "swing", TrackIDs: []string{"a", "b"},
		Priority: PriorityEmergency})
	for i := 1; i <= 10; i++ {
		f.o.Tick(at(float64(i) / 10))
	}
	if f.o.states.Len() == 0 {
		t.Fatalf("pendulum kept no state")
	}
	f.o.Stop(id, true)
	if n := f.o.states.Len(); n != 0 {
		t.Fatalf("%d states left after stop", n)
	}
}

func TestStatusAndUnsubscribe(t *testing.T) {
	f := newFixture(t)
	var n int
	unsub := f.o.Subscribe(func(Event) { n++ })
	f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
	f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"b"}})
	unsub()
	unsub()
	f.o.StopAll(true)
	if n != 2 {
		t.Fatalf("subscriber saw %d events, want 2", n)
	}
	f.o.RecordDelivery(3, nil)
	f.o.RecordDelivery(3, errors.New("port closed"))
	s := f.o.Status()
	if s.PeakConcurrency != 2 || s.Active != 0 || s.TotalCompleted != 2 || s.BatchesSent != 1 ||
		s.TransportErrors != 1 || s.LastTransportError != "port closed" {
		t.Fatalf("status = %+v", s)
	}
}

func TestHistoryPruned(t *testing.T) {
	f := newFixture(t, WithHistory(2))
	for i := 0; i < 5; i++ {
		id := f.schedule(t, Request{AnimationID: "slide", TrackIDs: []string{"a"}})
		f.o.Stop(id, true)
	}
	f.o.Tick(at(1))
	if n := len(f.o.List()); n != 2 {
		t.Fatalf("%d playbacks kept, want 2", n)
	}
}

func TestParse(t *testing.T) {
	if p, err := ParsePriority("HIGH"); err != nil || p != PriorityHigh {
		t.Fatalf("ParsePriority = %v, %v", p, err)
	}
	if s, err := ParseStrategy("priority-based"); err != nil || s != PriorityBased {
		t.Fatalf("ParseStrategy = %v, %v", s, err)
	}
	if w, err := ParseWritePolicy(""); err != nil || w != LastWriteWins {
		t.Fatalf("ParseWritePolicy = %v, %v", w, err)
	}
	if _, err := ParseWritePolicy("average"); err == nil {
		t.Fatalf("unknown policy accepted")
	}
}
