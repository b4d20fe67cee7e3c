package stream

import (
	"fmt"
	"sort"
	"strings"

	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/tracks"
)

// Coordinates selects the position message format.
type Coordinates string

const (
	XYZ Coordinates = "xyz"
	AED Coordinates = "aed"
)

// ParseCoordinates accepts xyz or aed. Empty means xyz.
func ParseCoordinates(s string) (Coordinates, error) {
	switch Coordinates(strings.ToLower(s)) {
	case "", XYZ:
		return XYZ, nil
	case AED:
		return AED, nil
	}
	return "", fmt.Errorf("unknown coordinate format %q", s)
}

// Indexer maps track IDs to output indices.
type Indexer interface {
	Index(id string) (int, bool)
}

// Encoder turns frames into track messages.
type Encoder struct {
	tracks Indexer
	coords Coordinates
}

// NewEncoder creates an Encoder.
func NewEncoder(tracks Indexer, coords Coordinates) *Encoder {
	if coords == "" {
		coords = XYZ
	}
	return &Encoder{tracks: tracks, coords: coords}
}

// Positions returns one message per track in the frame, ordered by track
// index. Positions are clamped to the renderer's range; tracks without an
// index are skipped.
func (e *Encoder) Positions(f playback.Frame) []Message {
	type indexed struct {
		index int
		pos   position.Position
	}
	items := make([]indexed, 0, len(f.Positions))
	for id, p := range f.Positions {
		if idx, ok := e.tracks.Index(id); ok {
			items = append(items, indexed{idx, position.Clamp(p)})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].index < items[j].index })

	out := make([]Message, len(items))
	for i, it := range items {
		out[i] = e.position(it.index, it.pos)
	}
	return out
}

func (e *Encoder) position(index int, p position.Position) Message {
	if e.coords == AED {
		a := position.ToAED(p)
		return Message{
			Address: fmt.Sprintf("/track/%d/aed", index),
			Args:    []float32{float32(a.Azimuth), float32(a.Elevation), float32(a.Distance)},
		}
	}
	return Message{
		Address: fmt.Sprintf("/track/%d/xyz", index),
		Args:    []float32{float32(p.X), float32(p.Y), float32(p.Z)},
	}
}

// Colors returns a colour message for every track.
func Colors(ts []tracks.Track) []Message {
	out := make([]Message, 0, len(ts))
	for _, t := range ts {
		r, g, b := t.Color.Clamped().RGB255()
		out = append(out, Message{
			Address: fmt.Sprintf("/track/%d/color", t.Index),
			Args:    []float32{float32(r) / 255, float32(g) / 255, float32(b) / 255},
		})
	}
	return out
}
