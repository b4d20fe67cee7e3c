// Package registry holds the motion models available to playbacks and
// editors. A Registry is an ordinary value: build one with New, register the
// built-ins with RegisterBuiltins, and observe changes with Subscribe.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
)

var (
	ErrDuplicate = errors.New("model type already registered")
	ErrBuiltIn   = errors.New("built-in models cannot be removed")
	ErrInvalid   = errors.New("model failed validation")
)

// ModelNotFoundError is returned for an unknown model type.
type ModelNotFoundError struct {
	Type string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found", e.Type)
}

// Entry is one registered model.
type Entry struct {
	Model      motion.Model      `json:"-"`
	Descriptor motion.Descriptor `json:"descriptor"`
	BuiltIn    bool              `json:"builtIn"`
	Active     bool              `json:"active"`
	// Source records where the model came from: "builtin", "code", or the
	// path or URL of a descriptor.
	Source string `json:"source"`
}

// Type returns the model type key.
func (e Entry) Type() string { return e.Descriptor.Metadata.Type }

// Options control Register.
type Options struct {
	Override bool
	// SkipValidation is honoured for built-in registrations only.
	SkipValidation bool
	Inactive       bool
	Source         string
}

// EventType names a registry change.
type EventType string

const (
	EventRegister   EventType = "register"
	EventUnregister EventType = "unregister"
	EventActivate   EventType = "activate"
	EventDeactivate EventType = "deactivate"
	EventUpdate     EventType = "update"
)

// Event is delivered to subscribers after a change is applied.
type Event struct {
	Type      EventType `json:"type"`
	ModelType string    `json:"modelType"`
}

// Registry maps model types to models.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	cacheMu sync.Mutex
	paths   map[string]map[string][]position.Position

	log    logging.Logger
	tracer trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.log = logging.OrNoop(l) }
}

// WithTracer sets the tracer used for descriptor loading spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		subs:    make(map[int]func(Event)),
		paths:   make(map[string]map[string][]position.Position),
		log:     logging.Noop(),
		tracer:  otel.Tracer("github.com/matt-g-everett/spatx/registry"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterBuiltins registers every model of motion.Builtins as a built-in.
func (r *Registry) RegisterBuiltins() error {
	for _, m := range motion.Builtins() {
		if _, err := r.register(m, Options{SkipValidation: true, Source: "builtin"}, true); err != nil {
			return err
		}
	}
	return nil
}

// Register adds m. A type that is already registered is rejected unless
// opts.Override is set; built-ins can be overridden but stay protected from
// Unregister. The returned Validation is populated even on failure.
func (r *Registry) Register(m motion.Model, opts Options) (Validation, error) {
	if opts.Source == "" {
		opts.Source = "code"
	}
	return r.register(m, opts, false)
}

func (r *Registry) register(m motion.Model, opts Options, builtIn bool) (Validation, error) {
	var v Validation
	if !(builtIn && opts.SkipValidation) {
		v = Validate(m)
		if !v.Valid {
			return v, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(v.Errors, "; "))
		}
	} else {
		v.Valid = true
	}

	desc := m.Describe()
	typ := desc.Metadata.Type

	r.mu.Lock()
	prev, exists := r.entries[typ]
	if exists && !opts.Override {
		r.mu.Unlock()
		return v, fmt.Errorf("%w: %s", ErrDuplicate, typ)
	}
	e := &Entry{
		Model:      m,
		Descriptor: desc,
		BuiltIn:    builtIn || (exists && prev.BuiltIn),
		Active:     !opts.Inactive,
		Source:     opts.Source,
	}
	r.entries[typ] = e
	r.mu.Unlock()

	r.clearCache(typ)
	ev := EventRegister
	if exists {
		ev = EventUpdate
	}
	r.log.Debug(context.Background(), "model registered",
		logging.String("type", typ), logging.String("source", opts.Source), logging.Bool("override", exists))
	r.emit(Event{Type: ev, ModelType: typ})
	return v, nil
}

// Unregister removes a non-built-in model and reports whether it did.
func (r *Registry) Unregister(typ string) bool {
	r.mu.Lock()
	e, ok := r.entries[typ]
	if !ok || e.BuiltIn {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, typ)
	r.mu.Unlock()

	r.clearCache(typ)
	r.emit(Event{Type: EventUnregister, ModelType: typ})
	return true
}

// Get returns a snapshot of the entry for typ.
func (r *Registry) Get(typ string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typ]
	if !ok {
		return Entry{}, &ModelNotFoundError{Type: typ}
	}
	return *e, nil
}

// Model resolves typ to its model. Inactive models still resolve: activation
// only controls what selection lists show.
func (r *Registry) Model(typ string) (motion.Model, error) {
	e, err := r.Get(typ)
	if err != nil {
		return nil, err
	}
	return e.Model, nil
}

// All lists every entry ordered by type.
func (r *Registry) All() []Entry {
	return r.filter(func(*Entry) bool { return true })
}

// Active lists the active entries ordered by type.
func (r *Registry) Active() []Entry {
	return r.filter(func(e *Entry) bool { return e.Active })
}

// ByCategory groups every entry by its metadata category.
func (r *Registry) ByCategory() map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range r.All() {
		cat := e.Descriptor.Metadata.Category
		out[cat] = append(out[cat], e)
	}
	return out
}

// Search matches query case-insensitively against name, type, description
// and tags. An empty query matches everything.
func (r *Registry) Search(query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	return r.filter(func(e *Entry) bool {
		if q == "" {
			return true
		}
		md := e.Descriptor.Metadata
		if strings.Contains(strings.ToLower(md.Name), q) ||
			strings.Contains(strings.ToLower(md.Type), q) ||
			strings.Contains(strings.ToLower(md.Description), q) {
			return true
		}
		return slices.ContainsFunc(md.Tags, func(tag string) bool {
			return strings.Contains(strings.ToLower(tag), q)
		})
	})
}

func (r *Registry) filter(keep func(*Entry) bool) []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// Activate makes typ visible to selection lists.
func (r *Registry) Activate(typ string) error {
	return r.setActive(typ, true)
}

// Deactivate hides typ from selection lists and drops its cached paths.
func (r *Registry) Deactivate(typ string) error {
	return r.setActive(typ, false)
}

func (r *Registry) setActive(typ string, active bool) error {
	r.mu.Lock()
	e, ok := r.entries[typ]
	if !ok {
		r.mu.Unlock()
		return &ModelNotFoundError{Type: typ}
	}
	changed := e.Active != active
	e.Active = active
	r.mu.Unlock()

	if !active {
		r.clearCache(typ)
	}
	if changed {
		ev := EventActivate
		if !active {
			ev = EventDeactivate
		}
		r.emit(Event{Type: ev, ModelType: typ})
	}
	return nil
}

// Subscribe registers fn for every future event. Call the returned function
// to unsubscribe. fn runs synchronously on the goroutine making the change
// and must not call back into Subscribe.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}
}

func (r *Registry) emit(ev Event) {
	r.subMu.Lock()
	fns := make([]func(Event), 0, len(r.subs))
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// PreviewPath samples the path of typ for drawing. Results are cached per
// type and parameter set until the model changes or is deactivated.
func (r *Registry) PreviewPath(typ string, p motion.Params, duration float64, segments int) ([]position.Position, error) {
	m, err := r.Model(typ)
	if err != nil {
		return nil, err
	}
	key, kerr := cacheKey(p, duration, segments)
	if kerr == nil {
		r.cacheMu.Lock()
		cached, ok := r.paths[typ][key]
		r.cacheMu.Unlock()
		if ok {
			return slices.Clone(cached), nil
		}
	}

	// Surface structural parameter errors instead of an empty path.
	if _, err := m.Calculate(p, 0, duration, &motion.Context{Mode: motion.ModePreview}); err != nil {
		return nil, err
	}
	pts := slices.Collect(motion.GeneratePath(m, p, duration, segments))

	if kerr == nil {
		r.cacheMu.Lock()
		if r.paths[typ] == nil {
			r.paths[typ] = make(map[string][]position.Position)
		}
		r.paths[typ][key] = pts
		r.cacheMu.Unlock()
	}
	return slices.Clone(pts), nil
}

// CachedPaths returns how many paths are cached for typ.
func (r *Registry) CachedPaths(typ string) int {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	return len(r.paths[typ])
}

func (r *Registry) clearCache(typ string) {
	r.cacheMu.Lock()
	delete(r.paths, typ)
	r.cacheMu.Unlock()
}

func cacheKey(p motion.Params, duration float64, segments int) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%g|%d", b, duration, segments), nil
}
