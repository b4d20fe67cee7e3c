package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/matt-g-everett/spatx/animation"
	"github.com/matt-g-everett/spatx/api"
	"github.com/matt-g-everett/spatx/config"
	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/metrics"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/registry"
	"github.com/matt-g-everett/spatx/stream"
	"github.com/matt-g-everett/spatx/tracing"
	"github.com/matt-g-everett/spatx/tracks"
)

type app struct {
	Config   *config.Config
	Log      logging.Logger
	Metrics  *metrics.Collector
	Registry *registry.Registry
	Library  *animation.Library
	Tracks   *tracks.Set
	Orch     *playback.Orchestrator
	Output   stream.Transport
	Streamer *stream.Streamer
	Hub      *api.Hub
	Commands *api.Commander
	Client   mqtt.Client
	MQTTCmds *api.MQTTCommands
}

func newApp(cfg *config.Config) *app {
	a := new(app)
	a.Config = cfg
	a.Log = logging.New(cfg.Log)
	return a
}

func (a *app) handleOnConnect(client mqtt.Client) {
	a.Log.Info(context.Background(), "mqtt connected")
	if err := a.MQTTCmds.Subscribe(); err != nil {
		a.Log.Error(context.Background(), "mqtt command subscription failed", logging.Err(err))
	}
}

func (a *app) build(ctx context.Context) error {
	cfg := a.Config
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	a.Metrics = m

	a.Registry = registry.New(
		registry.WithLogger(a.Log.With(logging.String("component", "registry"))),
		registry.WithTracer(otel.Tracer("spatx/registry")))
	if err := a.Registry.RegisterBuiltins(); err != nil {
		return err
	}
	for _, path := range cfg.Models.Paths {
		if _, err := a.Registry.LoadFile(ctx, path); err != nil {
			return fmt.Errorf("models %s: %w", path, err)
		}
	}
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 10 * time.Second}
	for _, url := range cfg.Models.URLs {
		if _, err := a.Registry.LoadURL(ctx, client, url); err != nil {
			return fmt.Errorf("models %s: %w", url, err)
		}
	}

	a.Library = animation.NewLibrary()
	if cfg.Library.Path != "" {
		n, err := a.Library.Load(cfg.Library.Path)
		if err != nil {
			return err
		}
		a.Log.Info(ctx, "animation library loaded", logging.String("path", cfg.Library.Path), logging.Int("animations", n))
	}

	if a.Tracks, err = cfg.TrackSet(); err != nil {
		return err
	}

	strategy, _ := playback.ParseStrategy(cfg.Playback.ConflictStrategy)
	policy, _ := playback.ParseWritePolicy(cfg.Playback.ConcurrentWrite)
	a.Orch = playback.New(a.Library, a.Registry, a.Tracks,
		playback.WithStrategy(strategy),
		playback.WithWritePolicy(policy),
		playback.WithHistory(cfg.Playback.History),
		playback.WithLogger(a.Log.With(logging.String("component", "playback"))),
		playback.WithMetrics(m),
		playback.WithTracer(otel.Tracer("spatx/playback")))

	if a.Output, err = stream.Dial(cfg.Output); err != nil {
		return err
	}
	coords, _ := stream.ParseCoordinates(cfg.Output.Coordinates)
	a.Streamer = stream.NewStreamer(a.Orch, stream.NewEncoder(a.Tracks, coords), a.Output,
		stream.WithRate(cfg.Output.RateHz),
		stream.WithRecorder(a.Orch),
		stream.WithColors(a.Tracks),
		stream.WithLogger(a.Log.With(logging.String("component", "stream"))),
		stream.WithMetrics(m))

	a.Hub = api.NewHub(a.Orch, a.Log.With(logging.String("component", "feed")))
	a.Commands = api.NewCommander(a.Orch, a.Tracks, a.Log.With(logging.String("component", "commands")))

	if cfg.Commands.MQTTTopic != "" {
		mc := cfg.Output.MQTT
		mc.ClientID += "-commands"
		a.Client = stream.NewMQTTClient(mc, a.handleOnConnect)
		a.MQTTCmds = api.NewMQTTCommands(a.Client, cfg.Commands.MQTTTopic, a.Commands, a.Log)
	}
	return nil
}

func (a *app) run(parent context.Context) error {
	cfg := a.Config
	var oc *api.OSCCommands
	if cfg.Commands.OSCListen != "" {
		var err error
		oc, err = api.NewOSCCommands(cfg.Commands.OSCListen, a.Commands, a.Log.With(logging.String("component", "osc")))
		if err != nil {
			return err
		}
	}
	if a.Client != nil {
		if err := stream.Connect(a.Client, 10*time.Second); err != nil {
			return err
		}
		defer a.Client.Disconnect(250)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	var wg sync.WaitGroup
	errc := make(chan error, 4)
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	spawn("output", func() error { return a.Streamer.Run(ctx) })
	spawn("feed", func() error { a.Hub.Run(ctx, cfg.Playback.VisualRateHz); return nil })

	server := api.NewApi(api.Deps{
		Orchestrator: a.Orch,
		Library:      a.Library,
		Registry:     a.Registry,
		Tracks:       a.Tracks,
		Commands:     a.Commands,
		Hub:          a.Hub,
		Metrics:      a.Metrics,
		Colors:       a.Streamer,
		Logger:       a.Log.With(logging.String("component", "api")),
		StaticDir:    cfg.API.StaticDir,
	})
	spawn("api", func() error { return server.Serve(ctx, cfg.API.Listen) })

	if oc != nil {
		spawn("osc commands", func() error { return oc.Serve(ctx) })
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	a.Log.Info(context.Background(), "shutting down")
	a.Orch.StopAll(true)
	cancel()
	wg.Wait()
	a.Output.Close()

	if cfg.Library.Path != "" {
		if serr := a.Library.Save(cfg.Library.Path); serr != nil {
			a.Log.Error(context.Background(), "saving animation library failed", logging.Err(serr))
		}
	}
	return err
}

func start(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a := newApp(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Init(ctx, cfg.Tracing, a.Log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background(), shutdown, a.Log)

	if err := a.build(ctx); err != nil {
		return err
	}
	a.Log.Info(ctx, "spatx started",
		logging.Int("tracks", len(a.Tracks.List())),
		logging.Int("animations", a.Library.Len()),
		logging.String("transport", cfg.Output.Transport))
	return a.run(ctx)
}

func main() {
	mqtt.ERROR = log.New(os.Stdout, "", 0)

	// Parse command line parameters
	configPath := flag.String("config", "config.yaml", "YAML config file.")
	flag.Parse()

	if err := start(*configPath); err != nil {
		log.Fatal(err)
	}
}
