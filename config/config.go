// Package config loads the spatx configuration from a YAML file with
// SPATX_ environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/stream"
	"github.com/matt-g-everett/spatx/tracing"
	"github.com/matt-g-everett/spatx/tracks"
)

type Config struct {
	Output   stream.Config  `koanf:"output"`
	Playback PlaybackConfig `koanf:"playback"`
	API      APIConfig      `koanf:"api"`
	Commands CommandsConfig `koanf:"commands"`
	Log      logging.Config `koanf:"log"`
	Tracing  tracing.Config `koanf:"tracing"`
	Library  LibraryConfig  `koanf:"library"`
	Models   ModelsConfig   `koanf:"models"`
	Tracks   []TrackConfig  `koanf:"tracks"`
}

type PlaybackConfig struct {
	ConflictStrategy string  `koanf:"conflict_strategy"`
	ConcurrentWrite  string  `koanf:"concurrent_write"` // last-write-wins | blend
	VisualRateHz     float64 `koanf:"visual_rate_hz"`
	History          int     `koanf:"history"`
}

type APIConfig struct {
	Listen    string `koanf:"listen"`
	StaticDir string `koanf:"static_dir"`
}

// CommandsConfig enables the inbound command surfaces. Empty values
// disable them.
type CommandsConfig struct {
	OSCListen string `koanf:"osc_listen"`
	MQTTTopic string `koanf:"mqtt_topic"`
}

type LibraryConfig struct {
	Path string `koanf:"path"`
}

// ModelsConfig lists model descriptor files and URLs loaded at start.
type ModelsConfig struct {
	Paths []string `koanf:"paths"`
	URLs  []string `koanf:"urls"`
}

type TrackConfig struct {
	ID       string            `koanf:"id"`
	Index    int               `koanf:"index"`
	Name     string            `koanf:"name"`
	Position position.Position `koanf:"position"`
	Color    string            `koanf:"color"`
}

var defaults = map[string]interface{}{
	"output.rate_hz":             30.0,
	"output.transport":           "osc",
	"output.coordinates":         "xyz",
	"output.osc.host":            "127.0.0.1",
	"output.osc.port":            4003,
	"output.mqtt.client_id":      "spatx",
	"output.mqtt.topic":          "spatx/stream",
	"output.mqtt.timeout":        "1s",
	"playback.conflict_strategy": string(playback.StopExisting),
	"playback.concurrent_write":  string(playback.LastWriteWins),
	"playback.visual_rate_hz":    15.0,
	"playback.history":           128,
	"api.listen":                 ":3000",
	"log.level":                  "info",
	"log.format":                 "text",
	"tracing.exporter":           "stdout",
	"tracing.service_name":       "spatx",
	"tracing.sample_ratio":       1.0,
	"library.path":               "animations.yaml",
}

// Load reads path (a missing file is fine), applies SPATX_ environment
// overrides and fills defaults. SPATX_OUTPUT__RATE_HZ sets output.rate_hz.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("SPATX_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SPATX_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := playback.ParseStrategy(c.Playback.ConflictStrategy); err != nil {
		return fmt.Errorf("playback.conflict_strategy: %w", err)
	}
	if _, err := playback.ParseWritePolicy(c.Playback.ConcurrentWrite); err != nil {
		return fmt.Errorf("playback.concurrent_write: %w", err)
	}
	if _, err := stream.ParseCoordinates(c.Output.Coordinates); err != nil {
		return fmt.Errorf("output.coordinates: %w", err)
	}
	if c.Output.RateHz <= 0 {
		return fmt.Errorf("output.rate_hz must be positive, got %v", c.Output.RateHz)
	}
	return nil
}

// TrackSet builds the track set. Tracks without an index are numbered by
// their position in the list.
func (c *Config) TrackSet() (*tracks.Set, error) {
	ts := make([]tracks.Track, 0, len(c.Tracks))
	for i, tc := range c.Tracks {
		t := tracks.Track{ID: tc.ID, Index: tc.Index, Name: tc.Name, Position: tc.Position}
		if t.Index == 0 {
			t.Index = i + 1
		}
		if err := position.Validate(t.Position); err != nil {
			return nil, fmt.Errorf("track %s: %w", tc.ID, err)
		}
		ts = append(ts, t)
	}
	set, err := tracks.NewSet(ts...)
	if err != nil {
		return nil, err
	}
	for _, tc := range c.Tracks {
		if tc.Color != "" {
			if err := set.SetColor(tc.ID, tc.Color); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}
