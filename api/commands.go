package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/tracks"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArguments      = errors.New("bad command arguments")
)

// Commander translates named commands with positional arguments into
// orchestrator calls. It is shared by the HTTP, OSC and MQTT surfaces.
//
//	play <animation> [track...]
//	pause <playback>
//	resume <playback>
//	stop <playback> [immediate]
//	seek <playback> <seconds>
//	speed <playback> <factor>
//	select [track...]
//	stopall [immediate]
type Commander struct {
	orch   *playback.Orchestrator
	tracks *tracks.Set
	log    logging.Logger
}

// NewCommander creates a Commander.
func NewCommander(orch *playback.Orchestrator, trks *tracks.Set, log logging.Logger) *Commander {
	return &Commander{orch: orch, tracks: trks, log: logging.OrNoop(log)}
}

// Result is what a command returns to its caller.
type Result struct {
	Command    string   `json:"command"`
	PlaybackID string   `json:"playbackId,omitempty"`
	Stopped    int      `json:"stopped,omitempty"`
	Selected   []string `json:"selected,omitempty"`
	OK         bool     `json:"ok"`
}

// Dispatch runs one command. source tags scheduled playbacks with where the
// command came from.
func (c *Commander) Dispatch(ctx context.Context, source, name string, args []any) (Result, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	res := Result{Command: name}
	c.log.Debug(ctx, "command", logging.String("source", source), logging.String("command", name), logging.Int("args", len(args)))

	switch name {
	case "play":
		anim, err := stringArg(args, 0)
		if err != nil {
			return res, err
		}
		ids := make([]string, 0, len(args)-1)
		for i := 1; i < len(args); i++ {
			id, err := stringArg(args, i)
			if err != nil {
				return res, err
			}
			ids = append(ids, id)
		}
		id, err := c.orch.Schedule(ctx, playback.Request{AnimationID: anim, TrackIDs: ids, Source: source})
		if err != nil {
			return res, err
		}
		res.PlaybackID, res.OK = id, true

	case "pause", "resume":
		id, err := stringArg(args, 0)
		if err != nil {
			return res, err
		}
		res.PlaybackID = id
		if name == "pause" {
			res.OK = c.orch.Pause(id)
		} else {
			res.OK = c.orch.Resume(id)
		}

	case "stop":
		id, err := stringArg(args, 0)
		if err != nil {
			return res, err
		}
		immediate, err := optionalBool(args, 1)
		if err != nil {
			return res, err
		}
		if err := c.orch.Stop(id, immediate); err != nil {
			return res, err
		}
		res.PlaybackID, res.OK = id, true

	case "seek", "speed":
		id, err := stringArg(args, 0)
		if err != nil {
			return res, err
		}
		v, err := floatArg(args, 1)
		if err != nil {
			return res, err
		}
		if name == "seek" {
			err = c.orch.Seek(id, v)
		} else {
			err = c.orch.SetSpeed(id, v)
		}
		if err != nil {
			return res, err
		}
		res.PlaybackID, res.OK = id, true

	case "select":
		ids := make([]string, 0, len(args))
		for i := range args {
			id, err := stringArg(args, i)
			if err != nil {
				return res, err
			}
			ids = append(ids, id)
		}
		if err := c.tracks.Select(ids); err != nil {
			return res, err
		}
		res.Selected, res.OK = c.tracks.Selected(), true

	case "stopall":
		immediate, err := optionalBool(args, 0)
		if err != nil {
			return res, err
		}
		res.Stopped, res.OK = c.orch.StopAll(immediate), true

	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return res, nil
}

// stringArg accepts strings and whole numbers, so OSC senders can address
// tracks and playbacks by either.
func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrArguments, i+1)
	}
	switch v := args[i].(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: argument %d is empty", ErrArguments, i+1)
		}
		return v, nil
	case int32:
		return strconv.Itoa(int(v)), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return "", fmt.Errorf("%w: argument %d is %T, want string", ErrArguments, i+1, args[i])
}

func floatArg(args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrArguments, i+1)
	}
	switch v := args[i].(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: argument %d is %v, want number", ErrArguments, i+1, args[i])
}

func optionalBool(args []any, i int) (bool, error) {
	if i >= len(args) {
		return false, nil
	}
	switch v := args[i].(type) {
	case bool:
		return v, nil
	case int32:
		return v != 0, nil
	case float32:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("%w: argument %d is %v, want bool", ErrArguments, i+1, args[i])
}
