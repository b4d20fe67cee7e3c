package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
)

// ErrExecutable rejects descriptors that try to ship code.
var ErrExecutable = errors.New("model descriptors cannot carry executable code")

// Descriptor is the JSON form of a user model. It never carries code: it
// names a registered base model and overrides its metadata, parameter
// schema and defaults.
//
//	{
//	  "base": "circular",
//	  "metadata": {"name": "Slow halo", "type": "slow-halo", "category": "preset"},
//	  "defaults": {"radius": 3, "period": 20}
//	}
type Descriptor struct {
	Base          string            `json:"base"`
	Metadata      motion.Metadata   `json:"metadata"`
	Parameters    []motion.Field    `json:"parameters,omitempty"`
	Defaults      motion.Params     `json:"defaults,omitempty"`
	ControlPoints []string          `json:"controlPoints,omitempty"`
	Active        *bool             `json:"active,omitempty"`
	Override      bool              `json:"override,omitempty"`
	Code          map[string]string `json:"-"`
}

func (d *Descriptor) UnmarshalJSON(b []byte) error {
	type plain Descriptor
	var aux struct {
		plain
		Calculate        json.RawMessage `json:"calculate"`
		MultiTrack       json.RawMessage `json:"multiTrackHandlers"`
		Visualization    json.RawMessage `json:"visualization"`
		DefaultParamCode json.RawMessage `json:"getDefaultParameters"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*d = Descriptor(aux.plain)
	d.Code = map[string]string{}
	for name, raw := range map[string]json.RawMessage{
		"calculate": aux.Calculate, "multiTrackHandlers": aux.MultiTrack,
		"visualization": aux.Visualization, "getDefaultParameters": aux.DefaultParamCode,
	} {
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			d.Code[name] = string(raw)
		}
	}
	return nil
}

// LoadJSON registers the descriptor (or array of descriptors) in data and
// returns the registered types. Every descriptor goes through Validate.
func (r *Registry) LoadJSON(ctx context.Context, data []byte, source string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "registry.LoadJSON")
	defer span.End()
	span.SetAttributes(attribute.String("spatx.model.source", source))

	var descs []Descriptor
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &descs); err != nil {
			return nil, r.fail(span, fmt.Errorf("parse %s: %w", source, err))
		}
	} else {
		var d Descriptor
		if err := json.Unmarshal(trimmed, &d); err != nil {
			return nil, r.fail(span, fmt.Errorf("parse %s: %w", source, err))
		}
		descs = append(descs, d)
	}

	var types []string
	for _, d := range descs {
		typ, err := r.registerDescriptor(d, source)
		if err != nil {
			return types, r.fail(span, err)
		}
		types = append(types, typ)
	}
	r.log.Info(ctx, "model descriptors loaded",
		logging.String("source", source), logging.Strings("types", types))
	return types, nil
}

// LoadFile reads and registers a descriptor file.
func (r *Registry) LoadFile(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model descriptor: %w", err)
	}
	return r.LoadJSON(ctx, data, path)
}

// LoadURL fetches and registers a descriptor over HTTP.
func (r *Registry) LoadURL(ctx context.Context, client *http.Client, url string) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch model descriptor: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch model descriptor: %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch model descriptor: %w", err)
	}
	return r.LoadJSON(ctx, data, url)
}

func (r *Registry) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (r *Registry) registerDescriptor(d Descriptor, source string) (string, error) {
	for name := range d.Code {
		return "", fmt.Errorf("%w: field %q", ErrExecutable, name)
	}
	if d.Base == "" {
		return "", fmt.Errorf("%w: descriptor %q has no base model", ErrInvalid, d.Metadata.Type)
	}
	base, err := r.Model(d.Base)
	if err != nil {
		return "", err
	}
	m := derive(base, d)
	opts := Options{Override: d.Override, Source: source}
	if d.Active != nil && !*d.Active {
		opts.Inactive = true
	}
	if _, err := r.Register(m, opts); err != nil {
		return "", err
	}
	return m.Type(), nil
}

// derived is a model defined by a descriptor on top of a base model.
type derived struct {
	base motion.Model
	desc motion.Descriptor
	defs motion.Params
}

func derive(base motion.Model, d Descriptor) motion.Model {
	desc := base.Describe()
	md := d.Metadata
	if md.Name == "" {
		md.Name = desc.Metadata.Name
	}
	if md.Version == "" {
		md.Version = "1.0.0"
	}
	if md.Category == "" {
		md.Category = desc.Metadata.Category
	}
	if md.Description == "" {
		md.Description = desc.Metadata.Description
	}
	if md.Tags == nil {
		md.Tags = desc.Metadata.Tags
	}
	desc.Metadata = md

	fields := make([]motion.Field, len(desc.Fields))
	copy(fields, desc.Fields)
	for _, f := range d.Parameters {
		replaced := false
		for i := range fields {
			if fields[i].Key == f.Key {
				fields[i] = f
				replaced = true
			}
		}
		if !replaced {
			fields = append(fields, f)
		}
	}
	for i := range fields {
		if v, ok := d.Defaults[fields[i].Key]; ok {
			fields[i].Default = v
		}
	}
	desc.Fields = fields
	if d.ControlPoints != nil {
		desc.ControlPoints = d.ControlPoints
	}

	dm := derived{base: base, desc: desc, defs: d.Defaults.Clone()}
	if _, ok := base.(motion.Rotator); ok {
		return derivedRotator{dm}
	}
	return dm
}

func (d derived) Type() string                         { return d.desc.Metadata.Type }
func (d derived) Describe() motion.Descriptor          { return d.desc }
func (d derived) Stateful() bool                       { return motion.IsStateful(d.base) }
func (d derived) params(p motion.Params) motion.Params { return d.defs.Merge(p) }

func (d derived) Calculate(p motion.Params, t, duration float64, ctx *motion.Context) (position.Position, error) {
	return d.base.Calculate(d.params(p), t, duration, ctx)
}

func (d derived) DefaultParameters(track position.Position) motion.Params {
	return motion.DefaultsFor(d.base, track).Merge(d.defs)
}

type derivedRotator struct{ derived }

func (d derivedRotator) Rotation(p motion.Params, t, duration float64) (float64, position.Position) {
	return d.base.(motion.Rotator).Rotation(d.params(p), t, duration)
}
