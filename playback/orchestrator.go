// Package playback runs animations on tracks. The Orchestrator owns every
// playback's state machine, the track ownership map and the stateful model
// store; only its own methods mutate them, under one lock.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matt-g-everett/spatx/animation"
	"github.com/matt-g-everett/spatx/distribute"
	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/metrics"
	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/registry"
	"github.com/matt-g-everett/spatx/tracks"
	"github.com/matt-g-everett/spatx/util"
)

// Animations looks up stored animations.
type Animations interface {
	Get(id string) (*animation.Animation, error)
}

// Models looks up motion models by type.
type Models interface {
	Model(typ string) (motion.Model, error)
}

// Tracks resolves the track set of a request and reports home positions.
type Tracks interface {
	Resolve(a *animation.Animation, requested []string) ([]string, error)
	Participants(ids []string) ([]distribute.Track, error)
}

// Frame is the output of one tick: the final position of every track
// written by a running playback.
type Frame struct {
	Time      time.Time                    `json:"time"`
	Positions map[string]position.Position `json:"positions"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStrategy sets the default conflict strategy.
func WithStrategy(s ConflictStrategy) Option { return func(o *Orchestrator) { o.strategy = s } }

// WithWritePolicy sets how concurrent writes to one track combine.
func WithWritePolicy(p WritePolicy) Option { return func(o *Orchestrator) { o.policy = p } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(o *Orchestrator) { o.log = logging.OrNoop(l) } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTracer sets the tracer used for Schedule spans.
func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithClock replaces time.Now for operations that are not given a time.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.clock = now } }

// WithHistory sets how many finished playbacks are kept for inspection.
func WithHistory(n int) Option { return func(o *Orchestrator) { o.history = n } }

type playback struct {
	info     Info
	model    motion.Model
	params   motion.Params
	plan     *distribute.Plan
	home     map[string]position.Position
	fade     animation.Fade
	loop     Loop
	pingPong bool
	dir      float64
	plays    int
	ended    bool

	startAt     time.Time
	last        time.Time
	fadeElapsed float64
	fadeFrom    float64
	resumeTo    State
	out         map[string]position.Position
}

// Orchestrator schedules and advances playbacks.
type Orchestrator struct {
	mu         sync.Mutex
	animations Animations
	models     Models
	tracks     Tracks
	strategy   ConflictStrategy
	policy     WritePolicy
	log        logging.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
	clock      func() time.Time
	history    int

	playbacks map[string]*playback
	order     []string
	owners    map[string][]string
	states    *motion.StateStore
	actions   map[string]*ScheduledAction
	queue     *actionQueue
	frame     Frame

	totalScheduled int64
	totalCompleted int64
	totalErrors    int64
	totalRejected  int64
	latencySum     time.Duration
	peak           int
	batches        int64
	transportErrs  int64
	lastTransport  string

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an Orchestrator.
func New(anims Animations, models Models, trks Tracks, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		animations: anims,
		models:     models,
		tracks:     trks,
		strategy:   StopExisting,
		policy:     LastWriteWins,
		log:        logging.Noop(),
		tracer:     otel.Tracer("github.com/matt-g-everett/spatx/playback"),
		clock:      time.Now,
		history:    128,
		playbacks:  make(map[string]*playback),
		owners:     make(map[string][]string),
		states:     motion.NewStateStore(),
		actions:    make(map[string]*ScheduledAction),
		queue:      newActionQueue(),
		subs:       make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Schedule validates req, resolves track conflicts and creates a playback.
// The playback starts immediately unless req.Delay is set.
//
// Playbacks stopped by a conflict hand their tracks to the new playback at
// once. One with a fade-out still runs it to STOPPED, but its writes no
// longer reach the output.
func (o *Orchestrator) Schedule(ctx context.Context, req Request) (string, error) {
	ctx, span := o.tracer.Start(ctx, "playback.schedule", trace.WithAttributes(
		attribute.String("animation.id", req.AnimationID),
		attribute.String("source", req.Source),
	))
	defer span.End()

	start := time.Now()
	o.mu.Lock()
	p, evs, err := o.admit(o.clock(), req)
	if err != nil {
		o.totalRejected++
	} else {
		o.totalScheduled++
		o.latencySum += time.Since(start)
	}
	o.updateCounts()
	o.mu.Unlock()
	o.metrics.ObserveSchedule(time.Since(start))
	o.dispatch(evs)

	if err != nil {
		o.metrics.Reject(rejectReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.Warn(ctx, "playback rejected",
			logging.String("animation_id", req.AnimationID), logging.Err(err))
		return "", err
	}
	span.SetAttributes(attribute.String("playback.id", p.info.ID))
	o.log.Info(ctx, "playback scheduled",
		logging.Playback(p.info.ID),
		logging.String("animation_id", req.AnimationID),
		logging.Strings("tracks", p.info.TrackIDs),
		logging.String("state", string(p.info.State)))
	return p.info.ID, nil
}

// ScheduleAt queues req until at. The request is validated when it runs.
func (o *Orchestrator) ScheduleAt(ctx context.Context, req Request, at time.Time) (string, error) {
	if req.Priority != 0 && !req.Priority.valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidPriority, req.Priority)
	}
	a := &ScheduledAction{
		ID:        uuid.NewString(),
		Request:   req,
		ExecuteAt: at,
		CreatedAt: o.clock(),
	}
	o.mu.Lock()
	o.actions[a.ID] = a
	o.queue.add(a)
	o.updateCounts()
	o.mu.Unlock()
	o.log.Debug(ctx, "action queued", logging.String("action_id", a.ID), logging.Any("execute_at", at))
	return a.ID, nil
}

// CancelAction cancels a pending action and reports whether it was pending.
func (o *Orchestrator) CancelAction(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.actions[id]
	if !ok {
		return false
	}
	a.Cancelled = true
	o.queue.remove(a)
	delete(o.actions, id)
	o.updateCounts()
	return true
}

// Actions returns the pending actions in execution order.
func (o *Orchestrator) Actions() []ScheduledAction {
	o.mu.Lock()
	out := make([]ScheduledAction, 0, len(o.actions))
	for _, a := range o.actions {
		out = append(out, *a)
	}
	o.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out
}

func (o *Orchestrator) admit(now time.Time, req Request) (*playback, []Event, error) {
	if req.Priority == 0 {
		req.Priority = PriorityNormal
	}
	if !req.Priority.valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidPriority, req.Priority)
	}
	if req.Speed == 0 {
		req.Speed = 1
	}
	if req.Speed < 0 || math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0) {
		return nil, nil, fmt.Errorf("%w: speed %v", ErrInvalidRequest, req.Speed)
	}
	if req.Delay < 0 || math.IsNaN(req.Delay) {
		return nil, nil, fmt.Errorf("%w: delay %v", ErrInvalidRequest, req.Delay)
	}
	if req.Strategy == "" {
		req.Strategy = o.strategy
	} else if _, err := ParseStrategy(string(req.Strategy)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.AnimationID == "" {
		return nil, nil, ErrAnimationNotFound
	}

	anim, err := o.animations.Get(req.AnimationID)
	if err != nil {
		if errors.Is(err, animation.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrAnimationNotFound, req.AnimationID)
		}
		return nil, nil, err
	}
	model, err := o.models.Model(anim.Type)
	if err != nil {
		return nil, nil, err
	}
	mode, err := distribute.ParseMode(anim.Distribution.Mode)
	if err != nil {
		return nil, nil, err
	}
	if err := distribute.CheckCompatibility(mode, model.Describe()); err != nil {
		return nil, nil, err
	}
	ids, err := o.tracks.Resolve(anim, req.TrackIDs)
	if err != nil {
		return nil, nil, err
	}
	parts, err := o.tracks.Participants(ids)
	if err != nil {
		return nil, nil, err
	}
	plan, err := distribute.NewPlan(mode, parts, anim.Distribution.Options)
	if err != nil {
		return nil, nil, err
	}

	fade := anim.Fade
	if req.Fade != nil {
		fade = *req.Fade
	}
	if fade.In < 0 || fade.Out < 0 {
		return nil, nil, fmt.Errorf("%w: negative fade", ErrInvalidRequest)
	}
	loop := Loop{Enabled: anim.Loop}
	if req.Loop != nil {
		loop = *req.Loop
	}
	if loop.Count < 0 {
		return nil, nil, fmt.Errorf("%w: negative loop count", ErrInvalidRequest)
	}

	holders := o.holders(ids)
	switch req.Strategy {
	case RejectNew:
		if len(holders) > 0 {
			return nil, nil, &ConflictError{Strategy: RejectNew, Tracks: ids, Holders: holders}
		}
	case PriorityBased:
		for _, h := range holders {
			if o.playbacks[h].info.Priority > req.Priority {
				return nil, nil, &ConflictError{Strategy: PriorityBased, Tracks: ids, Holders: holders}
			}
		}
	}

	var evs []Event
	if req.Strategy != AllowConcurrent {
		for _, h := range holders {
			hp := o.playbacks[h]
			immediate := req.Strategy == PriorityBased || hp.fade.Out <= 0
			o.log.Info(context.Background(), "stopping playback for conflict",
				logging.Playback(h), logging.String("strategy", string(req.Strategy)))
			evs = append(evs, o.stop(now, hp, immediate)...)
			o.release(h)
		}
	}

	p := &playback{
		model:    model,
		params:   motion.DefaultsFor(model, plan.Reference()).Merge(anim.Params()),
		plan:     plan,
		home:     make(map[string]position.Position, len(parts)),
		fade:     fade,
		loop:     loop,
		pingPong: anim.PingPong || (loop.Enabled && req.Reverse),
		dir:      1,
	}
	for _, tr := range parts {
		p.home[tr.ID] = tr.Position
	}
	p.info = Info{
		ID:          uuid.NewString(),
		Request:     req,
		AnimationID: anim.ID,
		Type:        anim.Type,
		TrackIDs:    ids,
		Priority:    req.Priority,
		CreatedAt:   now,
		Duration:    anim.Duration,
		Speed:       req.Speed,
	}
	if req.Reverse {
		p.dir = -1
		p.info.CurrentTime = math.Max(anim.Duration, 0)
		p.info.Reversed = true
	}

	o.playbacks[p.info.ID] = p
	o.order = append(o.order, p.info.ID)
	o.claim(p.info.ID, ids)

	if req.Delay > 0 {
		p.startAt = now.Add(time.Duration(req.Delay * float64(time.Second)))
		evs = append(evs, o.transition(p, StateScheduled, now))
	} else {
		evs = append(evs, o.enter(p, now))
	}
	return p, evs, nil
}

func (o *Orchestrator) enter(p *playback, at time.Time) Event {
	p.info.StartTime = at
	p.last = at
	p.fadeElapsed = 0
	if p.fade.In > 0 {
		return o.transition(p, StateStarting, at)
	}
	return o.transition(p, StatePlaying, at)
}

func (o *Orchestrator) transition(p *playback, to State, now time.Time) Event {
	from := p.info.State
	p.info.State = to
	o.metrics.Transition(string(to))
	if to.Terminal() {
		p.info.Fade = FadeStatus{}
		o.release(p.info.ID)
		o.states.ClearPlayback(p.info.ID)
		if to == StateStopped {
			o.totalCompleted++
		}
	}
	return Event{Type: EventState, PlaybackID: p.info.ID, From: from, To: to, Time: now}
}

func (o *Orchestrator) stop(now time.Time, p *playback, immediate bool) []Event {
	switch {
	case p.info.State.Terminal():
		return nil
	case immediate || p.fade.Out <= 0 || p.info.State == StateScheduled:
		return []Event{o.transition(p, StateStopped, now)}
	case p.info.State == StateStopping:
		return nil
	}
	p.beginFadeOut(now)
	return []Event{o.transition(p, StateStopping, now)}
}

// beginFadeOut starts the fade-out from the weight p is currently at, so a
// stop during the fade-in turns back without a jump.
func (p *playback) beginFadeOut(now time.Time) {
	p.fadeFrom = 1
	if p.fade.In > 0 && (p.info.State == StateStarting || (p.info.State == StatePaused && p.resumeTo == StateStarting)) {
		p.fadeFrom = util.Ease(p.fade.Curve, util.Clamp(p.fadeElapsed/p.fade.In, 0, 1))
	}
	p.fadeElapsed = 0
	p.last = now
}

func (o *Orchestrator) fail(ctx context.Context, p *playback, now time.Time, err error) []Event {
	re := &RuntimeError{PlaybackID: p.info.ID, Err: err}
	p.info.Err = re.Error()
	o.totalErrors++
	o.log.Error(ctx, "playback failed", logging.Playback(p.info.ID), logging.Err(err))
	return []Event{
		o.transition(p, StateError, now),
		{Type: EventError, PlaybackID: p.info.ID, Err: re.Error(), Time: now},
	}
}

// holders returns the active playbacks owning any of ids, in creation order.
func (o *Orchestrator) holders(ids []string) []string {
	set := make(map[string]bool)
	for _, t := range ids {
		for _, id := range o.owners[t] {
			set[id] = true
		}
	}
	var out []string
	for _, id := range o.order {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) claim(id string, ids []string) {
	for _, t := range ids {
		o.owners[t] = append(o.owners[t], id)
	}
}

func (o *Orchestrator) release(id string) {
	p, ok := o.playbacks[id]
	if !ok {
		return
	}
	for _, t := range p.info.TrackIDs {
		owners := slices.DeleteFunc(o.owners[t], func(s string) bool { return s == id })
		if len(owners) == 0 {
			delete(o.owners, t)
		} else {
			o.owners[t] = owners
		}
	}
}

func (o *Orchestrator) owns(track, id string) bool {
	return slices.Contains(o.owners[track], id)
}

// Tick runs due actions, advances every playback to now and returns the
// resulting frame. Evaluation errors move only the failing playback to
// ERROR. Events are delivered after the lock is released.
func (o *Orchestrator) Tick(now time.Time) Frame {
	start := time.Now()
	ctx := context.Background()

	o.mu.Lock()
	evs := o.runDue(ctx, now)
	acc := newAccumulator(o.policy)
	for _, id := range o.order {
		p := o.playbacks[id]
		if p.info.State.Terminal() {
			continue
		}
		finished, tevs := o.advance(p, now)
		evs = append(evs, tevs...)

		var out map[string]position.Position
		switch p.info.State {
		case StateScheduled:
			continue
		case StatePaused:
			out = p.out
		default:
			var err error
			if out, err = o.evaluate(p); err != nil {
				evs = append(evs, o.fail(ctx, p, now, err)...)
				continue
			}
		}
		for _, t := range p.info.TrackIDs {
			if pos, ok := out[t]; ok && o.owns(t, id) {
				acc.add(t, pos)
			}
		}
		if finished {
			evs = append(evs, o.transition(p, StateStopped, now))
		}
	}
	o.frame = Frame{Time: now, Positions: acc.result()}
	frame := o.frame
	o.prune()
	o.updateCounts()
	o.mu.Unlock()

	o.metrics.ObserveTick(time.Since(start))
	o.dispatch(evs)
	return frame
}

func (o *Orchestrator) runDue(ctx context.Context, now time.Time) []Event {
	var evs []Event
	for _, a := range o.queue.due(now) {
		delete(o.actions, a.ID)
		if a.Cancelled {
			continue
		}
		a.Executed = true
		p, pevs, err := o.admit(now, a.Request)
		evs = append(evs, pevs...)
		ev := Event{Type: EventAction, ActionID: a.ID, Time: now}
		if err != nil {
			o.totalRejected++
			o.metrics.Reject(rejectReason(err))
			a.Err = err.Error()
			ev.Err = a.Err
			o.log.Warn(ctx, "scheduled action failed", logging.String("action_id", a.ID), logging.Err(err))
		} else {
			o.totalScheduled++
			a.PlaybackID = p.info.ID
			ev.PlaybackID = p.info.ID
		}
		evs = append(evs, ev)
	}
	return evs
}

// advance moves p's clock to now. finished reports that p reached its end
// this tick and should stop once its final position is written.
func (o *Orchestrator) advance(p *playback, now time.Time) (finished bool, evs []Event) {
	switch p.info.State {
	case StateScheduled:
		if now.Before(p.startAt) {
			return false, nil
		}
		evs = append(evs, o.enter(p, p.startAt))
	case StatePaused:
		return false, nil
	}

	dt := now.Sub(p.last).Seconds()
	if dt < 0 {
		dt = 0
	} else {
		p.last = now
	}

	switch p.info.State {
	case StateStarting:
		p.fadeElapsed += dt
		if p.fadeElapsed >= p.fade.In {
			p.fadeElapsed = 0
			evs = append(evs, o.transition(p, StatePlaying, now))
		}
	case StateStopping:
		p.fadeElapsed += dt
		if p.fadeElapsed >= p.fade.Out {
			finished = true
		}
	}

	if p.step(dt*p.info.Speed) && p.info.State != StateStopping {
		if p.fade.Out > 0 {
			p.beginFadeOut(now)
			evs = append(evs, o.transition(p, StateStopping, now))
		} else {
			finished = true
		}
	}
	return finished, evs
}

// step advances the animation clock by adv seconds, applying the loop
// policy at each boundary. It reports whether the last play has ended.
func (p *playback) step(adv float64) bool {
	if p.ended {
		return true
	}
	d := p.info.Duration
	p.info.Elapsed += adv
	if d <= 0 {
		p.ended = true
		return true
	}

	t := p.info.CurrentTime + p.dir*adv
	over := t - d
	if p.dir < 0 {
		over = -t
	}
	if over < 0 {
		p.info.CurrentTime = t
		return false
	}

	// Boundaries crossed by this advance, the current play's end included.
	crossed := 1 + math.Floor(over/d)
	if !p.loop.Enabled || (p.loop.Count > 0 && float64(p.plays)+crossed >= float64(p.loop.Count)) {
		n := 1
		if p.loop.Enabled {
			n = p.loop.Count - p.plays
		}
		p.plays += n
		p.info.Iteration += n - 1
		if p.pingPong && (n-1)%2 != 0 {
			p.dir = -p.dir
		}
		p.info.CurrentTime = 0
		if p.dir > 0 {
			p.info.CurrentTime = d
		}
		p.ended = true
		return true
	}

	p.plays += int(crossed)
	p.info.Iteration += int(crossed)
	if p.pingPong && math.Mod(crossed, 2) != 0 {
		p.dir = -p.dir
	}
	rem := math.Mod(over, d)
	p.info.CurrentTime = rem
	if p.dir < 0 {
		p.info.CurrentTime = d - rem
	}
	p.info.Reversed = p.dir < 0
	return false
}

// evaluate computes the final position of every track of p at its current
// time, including any fade. Model panics are reported as errors.
func (o *Orchestrator) evaluate(p *playback) (out map[string]position.Position, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model %s panicked: %v", p.info.Type, r)
		}
	}()

	parts := p.plan.Tracks()
	eval := func(t float64, k int) (position.Position, error) {
		ctx := &motion.Context{
			Mode:          motion.ModePlayback,
			PlaybackID:    p.info.ID,
			TrackIndex:    k,
			TrackCount:    len(parts),
			TrackPosition: p.plan.Reference(),
			Iteration:     p.info.Iteration,
			States:        o.states,
		}
		if k >= 0 {
			ctx.TrackID = parts[k].ID
			ctx.TrackPosition = parts[k].Position
		}
		return p.model.Calculate(p.params, t, p.info.Duration, ctx)
	}
	var rot distribute.Rotation
	if r, ok := p.model.(motion.Rotator); ok {
		rot = func(t float64) (float64, position.Position) {
			return r.Rotation(p.params, t, p.info.Duration)
		}
	}

	as, err := p.plan.DistributeAt(distribute.Clock{
		Time:      p.info.CurrentTime,
		Duration:  p.info.Duration,
		Iteration: p.info.Iteration,
		PingPong:  p.pingPong,
		Reverse:   p.info.Request.Reverse,
	}, eval, rot)
	if err != nil {
		return nil, err
	}
	w, fading := p.fadeWeight()
	out = make(map[string]position.Position, len(as))
	for _, a := range as {
		pos := a.Position
		if !pos.IsFinite() {
			return nil, fmt.Errorf("track %s: non-finite position %v", a.TrackID, pos)
		}
		if fading {
			pos = p.home[a.TrackID].Lerp(pos, w)
		}
		out[a.TrackID] = pos
	}
	p.out = out
	return out, nil
}

// fadeWeight returns how much of the animated position to use, and whether
// a fade is running.
func (p *playback) fadeWeight() (float64, bool) {
	switch p.info.State {
	case StateStarting:
		progress := util.Clamp(p.fadeElapsed/p.fade.In, 0, 1)
		p.info.Fade = FadeStatus{Fading: true, Direction: "in", Progress: progress}
		return util.Ease(p.fade.Curve, progress), true
	case StateStopping:
		progress := 1.0
		if p.fade.Out > 0 {
			progress = util.Clamp(p.fadeElapsed/p.fade.Out, 0, 1)
		}
		p.info.Fade = FadeStatus{Fading: true, Direction: "out", Progress: progress}
		return p.fadeFrom * (1 - util.Ease(p.fade.Curve, progress)), true
	}
	p.info.Fade = FadeStatus{}
	return 1, false
}

// Pause freezes a playback's clock. It reports false, with a warning, when
// id is unknown or the playback cannot be paused.
func (o *Orchestrator) Pause(id string) bool {
	o.mu.Lock()
	p, ok := o.playbacks[id]
	if !ok || p.info.State.Terminal() || p.info.State == StatePaused || p.info.State == StateScheduled {
		o.mu.Unlock()
		o.log.Warn(context.Background(), "pause ignored", logging.Playback(id), logging.Bool("known", ok))
		return false
	}
	p.resumeTo = p.info.State
	ev := o.transition(p, StatePaused, o.clock())
	o.updateCounts()
	o.mu.Unlock()
	o.dispatch([]Event{ev})
	return true
}

// Resume restarts a paused playback from where it stopped.
func (o *Orchestrator) Resume(id string) bool {
	o.mu.Lock()
	p, ok := o.playbacks[id]
	if !ok || p.info.State != StatePaused {
		o.mu.Unlock()
		o.log.Warn(context.Background(), "resume ignored", logging.Playback(id), logging.Bool("known", ok))
		return false
	}
	now := o.clock()
	p.last = now
	ev := o.transition(p, p.resumeTo, now)
	o.updateCounts()
	o.mu.Unlock()
	o.dispatch([]Event{ev})
	return true
}

// Stop stops a playback. A non-immediate stop fades out when the playback
// has a fade-out; an immediate stop releases its tracks at once.
func (o *Orchestrator) Stop(id string, immediate bool) error {
	o.mu.Lock()
	p, ok := o.playbacks[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPlayback, id)
	}
	evs := o.stop(o.clock(), p, immediate)
	o.updateCounts()
	o.mu.Unlock()
	o.dispatch(evs)
	return nil
}

// StopAll stops every active playback and returns how many were affected.
func (o *Orchestrator) StopAll(immediate bool) int {
	o.mu.Lock()
	now := o.clock()
	var evs []Event
	n := 0
	for _, id := range o.order {
		if p := o.playbacks[id]; p.info.State.Active() {
			evs = append(evs, o.stop(now, p, immediate)...)
			n++
		}
	}
	o.updateCounts()
	o.mu.Unlock()
	o.dispatch(evs)
	return n
}

// Seek moves a playback to t seconds into its animation.
func (o *Orchestrator) Seek(id string, t float64) error {
	if math.IsNaN(t) {
		return fmt.Errorf("%w: seek to NaN", ErrInvalidRequest)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.playbacks[id]
	if !ok || p.info.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrUnknownPlayback, id)
	}
	p.info.CurrentTime = util.Clamp(t, 0, math.Max(p.info.Duration, 0))
	if p.info.State != StateStopping {
		p.ended = false
	}
	return nil
}

// SetSpeed changes a playback's time scale.
func (o *Orchestrator) SetSpeed(id string, speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: speed %v", ErrInvalidRequest, speed)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.playbacks[id]
	if !ok || p.info.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrUnknownPlayback, id)
	}
	p.info.Speed = speed
	return nil
}

// Get returns a snapshot of one playback.
func (o *Orchestrator) Get(id string) (Info, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.playbacks[id]
	if !ok {
		return Info{}, false
	}
	return p.snapshot(), true
}

// List returns snapshots of every known playback in creation order.
func (o *Orchestrator) List() []Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Info, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.playbacks[id].snapshot())
	}
	return out
}

func (p *playback) snapshot() Info {
	in := p.info
	in.TrackIDs = slices.Clone(p.info.TrackIDs)
	in.Request.TrackIDs = slices.Clone(p.info.Request.TrackIDs)
	return in
}

// LastFrame returns the frame produced by the most recent Tick.
func (o *Orchestrator) LastFrame() Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := Frame{Time: o.frame.Time, Positions: make(map[string]position.Position, len(o.frame.Positions))}
	for k, v := range o.frame.Positions {
		f.Positions[k] = v
	}
	return f
}

// RecordDelivery records the outcome of sending one batch of n messages.
// Transport failures never change playback state.
func (o *Orchestrator) RecordDelivery(n int, err error) {
	o.mu.Lock()
	if err != nil {
		o.transportErrs++
		o.lastTransport = err.Error()
	} else {
		o.batches++
	}
	o.mu.Unlock()
	if err != nil {
		o.metrics.TransportError()
	} else {
		o.metrics.Sent(n)
	}
}

// Status returns aggregate counters.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		PendingActions:     len(o.actions),
		TotalScheduled:     o.totalScheduled,
		TotalCompleted:     o.totalCompleted,
		TotalErrors:        o.totalErrors,
		TotalRejected:      o.totalRejected,
		PeakConcurrency:    o.peak,
		BatchesSent:        o.batches,
		TransportErrors:    o.transportErrs,
		LastTransportError: o.lastTransport,
	}
	if o.totalScheduled > 0 {
		s.AvgScheduleLatency = o.latencySum / time.Duration(o.totalScheduled)
	}
	for _, p := range o.playbacks {
		switch p.info.State {
		case StatePlaying:
			s.Playing++
		case StatePaused:
			s.Paused++
		case StateScheduled:
			s.Scheduled++
		}
		if p.info.State.Active() && p.info.State != StateScheduled {
			s.Active++
		}
	}
	return s
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn runs on the goroutine that caused the event.
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, id)
			o.subMu.Unlock()
		})
	}
}

func (o *Orchestrator) dispatch(evs []Event) {
	if len(evs) == 0 {
		return
	}
	o.subMu.Lock()
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = o.subs[id]
	}
	o.subMu.Unlock()

	for _, ev := range evs {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// updateCounts refreshes gauges and the peak concurrency. Callers hold mu.
func (o *Orchestrator) updateCounts() {
	active := 0
	for _, p := range o.playbacks {
		if p.info.State.Active() && p.info.State != StateScheduled {
			active++
		}
	}
	o.peak = max(o.peak, active)
	o.metrics.SetCounts(active, len(o.actions))
}

// prune forgets the oldest finished playbacks beyond the history limit.
func (o *Orchestrator) prune() {
	done := 0
	for _, id := range o.order {
		if o.playbacks[id].info.State.Terminal() {
			done++
		}
	}
	if done <= o.history {
		return
	}
	excess := done - o.history
	kept := o.order[:0]
	for _, id := range o.order {
		if excess > 0 && o.playbacks[id].info.State.Terminal() {
			delete(o.playbacks, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	o.order = kept
}

func rejectReason(err error) string {
	var ce *ConflictError
	var nf *registry.ModelNotFoundError
	var pe *motion.ParameterError
	switch {
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &nf):
		return "model"
	case errors.As(err, &pe):
		return "parameter"
	case errors.Is(err, ErrAnimationNotFound):
		return "animation"
	case errors.Is(err, ErrNoTracks), errors.Is(err, tracks.ErrUnknownTrack):
		return "tracks"
	case errors.Is(err, ErrInvalidPriority):
		return "priority"
	case errors.Is(err, distribute.ErrIncompatible):
		return "incompatible"
	}
	return "invalid"
}

// accumulator combines the writes of one tick.
type accumulator struct {
	policy WritePolicy
	sum    map[string]position.Position
	n      map[string]int
}

func newAccumulator(policy WritePolicy) *accumulator {
	return &accumulator{
		policy: policy,
		sum:    make(map[string]position.Position),
		n:      make(map[string]int),
	}
}

func (a *accumulator) add(track string, p position.Position) {
	if a.policy == Blend {
		a.sum[track] = a.sum[track].Add(p)
		a.n[track]++
		return
	}
	a.sum[track] = p
	a.n[track] = 1
}

func (a *accumulator) result() map[string]position.Position {
	out := make(map[string]position.Position, len(a.sum))
	for t, s := range a.sum {
		out[t] = s.Scale(1 / float64(a.n[t]))
	}
	return out
}
