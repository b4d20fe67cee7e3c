// Package api is the command surface: an HTTP API with a websocket feed,
// plus OSC and MQTT command listeners that share one command translator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/matt-g-everett/spatx/animation"
	"github.com/matt-g-everett/spatx/distribute"
	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/metrics"
	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/registry"
	"github.com/matt-g-everett/spatx/tracks"
)

const maxBody = 1 << 20

// ColorSyncer is told when a track colour changes.
type ColorSyncer interface {
	SyncColors()
}

// Deps are the components the API serves.
type Deps struct {
	Orchestrator *playback.Orchestrator
	Library      *animation.Library
	Registry     *registry.Registry
	Tracks       *tracks.Set
	Commands     *Commander
	Hub          *Hub
	Metrics      *metrics.Collector
	Colors       ColorSyncer
	Logger       logging.Logger
	// StaticDir, when set, is served at /.
	StaticDir string
}

type Api struct {
	deps   Deps
	log    logging.Logger
	router chi.Router
}

func NewApi(deps Deps) *Api {
	a := &Api{deps: deps, log: logging.OrNoop(deps.Logger), router: chi.NewRouter()}
	if a.deps.Commands == nil {
		a.deps.Commands = NewCommander(deps.Orchestrator, deps.Tracks, a.log)
	}
	a.routes()
	return a
}

func (a *Api) routes() {
	r := a.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLog)

	r.Handle("/metrics", a.deps.Metrics.Handler())
	if a.deps.Hub != nil {
		r.Handle("/ws", a.deps.Hub)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.status)
		r.Post("/commands", a.command)

		r.Route("/playbacks", func(r chi.Router) {
			r.Get("/", a.listPlaybacks)
			r.Post("/", a.schedule)
			r.Delete("/", a.stopAll)
			r.Get("/{id}", a.getPlayback)
			r.Post("/{id}/pause", a.pause)
			r.Post("/{id}/resume", a.resume)
			r.Post("/{id}/stop", a.stop)
			r.Post("/{id}/seek", a.seek)
			r.Post("/{id}/speed", a.speed)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", a.listActions)
			r.Post("/", a.scheduleAt)
			r.Delete("/{id}", a.cancelAction)
		})

		r.Route("/animations", func(r chi.Router) {
			r.Get("/", a.listAnimations)
			r.Post("/", a.putAnimation)
			r.Get("/{id}", a.getAnimation)
			r.Put("/{id}", a.putAnimation)
			r.Delete("/{id}", a.deleteAnimation)
			r.Post("/{id}/lock", a.lockAnimation)
		})

		r.Route("/tracks", func(r chi.Router) {
			r.Get("/", a.listTracks)
			r.Get("/selection", a.selection)
			r.Put("/selection", a.setSelection)
			r.Patch("/{id}", a.updateTrack)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", a.listModels)
			r.Post("/", a.loadModels)
			r.Get("/categories", a.modelCategories)
			r.Get("/{type}", a.getModel)
			r.Delete("/{type}", a.unregisterModel)
			r.Post("/{type}/activate", a.setModelActive(true))
			r.Post("/{type}/deactivate", a.setModelActive(false))
			r.Post("/{type}/preview", a.previewPath)
		})
	})

	if a.deps.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(a.deps.StaticDir)))
	}
}

// Handler returns the instrumented root handler.
func (a *Api) Handler() http.Handler {
	return otelhttp.NewHandler(a.router, "spatx.api")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (a *Api) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "api listening", logging.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *Api) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug(r.Context(), "request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Any("elapsed", time.Since(start)),
			logging.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	var conflict *playback.ConflictError
	var notFound *registry.ModelNotFoundError
	switch {
	case errors.As(err, &conflict),
		errors.Is(err, animation.ErrLocked),
		errors.Is(err, registry.ErrDuplicate),
		errors.Is(err, registry.ErrBuiltIn):
		return http.StatusConflict
	case errors.As(err, &notFound),
		errors.Is(err, playback.ErrUnknownPlayback),
		errors.Is(err, playback.ErrAnimationNotFound),
		errors.Is(err, animation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, distribute.ErrIncompatible),
		errors.Is(err, playback.ErrNoTracks),
		errors.Is(err, tracks.ErrUnknownTrack),
		errors.Is(err, playback.ErrInvalidPriority),
		errors.Is(err, playback.ErrInvalidRequest),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, ErrArguments):
		return http.StatusBadRequest
	}
	var pe *motion.ParameterError
	if errors.As(err, &pe) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return errors.Join(playback.ErrInvalidRequest, err)
	}
	return nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func (a *Api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Orchestrator.Status())
}

type commandRequest struct {
	Command string `json:"command"`
	Args    []any  `json:"args"`
}

func (a *Api) command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.deps.Commands.Dispatch(r.Context(), "http", req.Command, req.Args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *Api) listPlaybacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Orchestrator.List())
}

func (a *Api) schedule(w http.ResponseWriter, r *http.Request) {
	var req playback.Request
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Source == "" {
		req.Source = "http"
	}
	id, err := a.deps.Orchestrator.Schedule(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	info, _ := a.deps.Orchestrator.Get(id)
	writeJSON(w, http.StatusCreated, info)
}

func (a *Api) stopAll(w http.ResponseWriter, r *http.Request) {
	n := a.deps.Orchestrator.StopAll(queryBool(r, "immediate"))
	writeJSON(w, http.StatusOK, map[string]int{"stopped": n})
}

func (a *Api) getPlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := a.deps.Orchestrator.Get(id)
	if !ok {
		writeError(w, errors.Join(playback.ErrUnknownPlayback, errors.New(id)))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *Api) pause(w http.ResponseWriter, r *http.Request) {
	a.toggle(w, r, a.deps.Orchestrator.Pause)
}

func (a *Api) resume(w http.ResponseWriter, r *http.Request) {
	a.toggle(w, r, a.deps.Orchestrator.Resume)
}

func (a *Api) toggle(w http.ResponseWriter, r *http.Request, fn func(string) bool) {
	id := chi.URLParam(r, "id")
	if !fn(id) {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false})
		return
	}
	info, _ := a.deps.Orchestrator.Get(id)
	writeJSON(w, http.StatusOK, info)
}

func (a *Api) stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.deps.Orchestrator.Stop(id, queryBool(r, "immediate")); err != nil {
		writeError(w, err)
		return
	}
	info, _ := a.deps.Orchestrator.Get(id)
	writeJSON(w, http.StatusOK, info)
}

func (a *Api) seek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time float64 `json:"time"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	a.adjust(w, r, func(id string) error { return a.deps.Orchestrator.Seek(id, body.Time) })
}

func (a *Api) speed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	a.adjust(w, r, func(id string) error { return a.deps.Orchestrator.SetSpeed(id, body.Speed) })
}

func (a *Api) adjust(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(id); err != nil {
		writeError(w, err)
		return
	}
	info, _ := a.deps.Orchestrator.Get(id)
	writeJSON(w, http.StatusOK, info)
}

type actionRequest struct {
	Request   playback.Request `json:"request"`
	ExecuteAt time.Time        `json:"executeAt"`
	// In is an alternative to ExecuteAt, in seconds from now.
	In float64 `json:"in"`
}

func (a *Api) listActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Orchestrator.Actions())
}

func (a *Api) scheduleAt(w http.ResponseWriter, r *http.Request) {
	var body actionRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	at := body.ExecuteAt
	if at.IsZero() {
		at = time.Now().Add(time.Duration(body.In * float64(time.Second)))
	}
	if body.Request.Source == "" {
		body.Request.Source = "http"
	}
	id, err := a.deps.Orchestrator.ScheduleAt(r.Context(), body.Request, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "executeAt": at})
}

func (a *Api) cancelAction(w http.ResponseWriter, r *http.Request) {
	if !a.deps.Orchestrator.CancelAction(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending action"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) listAnimations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Library.List())
}

func (a *Api) getAnimation(w http.ResponseWriter, r *http.Request) {
	anim, err := a.deps.Library.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anim)
}

func (a *Api) putAnimation(w http.ResponseWriter, r *http.Request) {
	var anim animation.Animation
	if err := decode(r, &anim); err != nil {
		writeError(w, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		anim.ID = id
	}
	if _, err := a.deps.Registry.Model(anim.Type); err != nil {
		writeError(w, err)
		return
	}
	id, err := a.deps.Library.Put(&anim)
	if err != nil {
		writeError(w, err)
		return
	}
	stored, _ := a.deps.Library.Get(id)
	writeJSON(w, http.StatusOK, stored)
}

func (a *Api) deleteAnimation(w http.ResponseWriter, r *http.Request) {
	if !a.deps.Library.Remove(chi.URLParam(r, "id")) {
		writeError(w, animation.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) lockAnimation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackIDs []string `json:"trackIds"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	for _, id := range body.TrackIDs {
		if _, ok := a.deps.Tracks.Get(id); !ok {
			writeError(w, errors.Join(tracks.ErrUnknownTrack, errors.New(id)))
			return
		}
	}
	id := chi.URLParam(r, "id")
	if err := a.deps.Library.Lock(id, body.TrackIDs); err != nil {
		writeError(w, err)
		return
	}
	anim, _ := a.deps.Library.Get(id)
	writeJSON(w, http.StatusOK, anim)
}

type trackView struct {
	tracks.Track
	Color string `json:"color"`
}

func (a *Api) listTracks(w http.ResponseWriter, r *http.Request) {
	list := a.deps.Tracks.List()
	out := make([]trackView, len(list))
	for i, t := range list {
		out[i] = trackView{Track: t, Color: t.Hex()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *Api) selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"trackIds": a.deps.Tracks.Selected()})
}

func (a *Api) setSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackIDs []string `json:"trackIds"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := a.deps.Tracks.Select(body.TrackIDs); err != nil {
		writeError(w, err)
		return
	}
	a.selection(w, r)
}

func (a *Api) updateTrack(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Position *position.Position `json:"position"`
		Color    string             `json:"color"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if body.Position != nil {
		if err := position.Validate(*body.Position); err != nil {
			writeError(w, errors.Join(playback.ErrInvalidRequest, err))
			return
		}
		if err := a.deps.Tracks.SetPosition(id, *body.Position); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Color != "" {
		if err := a.deps.Tracks.SetColor(id, body.Color); err != nil {
			writeError(w, err)
			return
		}
		if a.deps.Colors != nil {
			a.deps.Colors.SyncColors()
		}
	}
	t, _ := a.deps.Tracks.Get(id)
	writeJSON(w, http.StatusOK, trackView{Track: t, Color: t.Hex()})
}

func (a *Api) listModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var entries []registry.Entry
	switch {
	case q.Get("q") != "":
		entries = a.deps.Registry.Search(q.Get("q"))
	case queryBool(r, "active"):
		entries = a.deps.Registry.Active()
	default:
		entries = a.deps.Registry.All()
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *Api) modelCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Registry.ByCategory())
}

func (a *Api) getModel(w http.ResponseWriter, r *http.Request) {
	e, err := a.deps.Registry.Get(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// loadModels registers model descriptors from a JSON body.
func (a *Api) loadModels(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, err)
		return
	}
	types, err := a.deps.Registry.LoadJSON(r.Context(), data, "http")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"types": types})
}

func (a *Api) unregisterModel(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	if _, err := a.deps.Registry.Get(typ); err != nil {
		writeError(w, err)
		return
	}
	if !a.deps.Registry.Unregister(typ) {
		writeError(w, registry.ErrBuiltIn)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) setModelActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := chi.URLParam(r, "type")
		var err error
		if active {
			err = a.deps.Registry.Activate(typ)
		} else {
			err = a.deps.Registry.Deactivate(typ)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		a.getModel(w, r)
	}
}

type previewRequest struct {
	Parameters motion.Params `json:"parameters"`
	Duration   float64       `json:"duration"`
	Segments   int           `json:"segments"`
}

func (a *Api) previewPath(w http.ResponseWriter, r *http.Request) {
	var body previewRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Segments <= 0 {
		body.Segments = 64
	}
	if body.Duration <= 0 {
		body.Duration = 10
	}
	pts, err := a.deps.Registry.PreviewPath(chi.URLParam(r, "type"), body.Parameters, body.Duration, body.Segments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": pts})
}
