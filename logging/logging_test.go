package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Config{Level: "debug", Format: "json"}).With(String("component", "test"))
	l.Warn(context.Background(), "pause ignored", Playback("abc"), Err(errors.New("unknown playback")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if rec["level"] != "WARN" || rec["msg"] != "pause ignored" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["component"] != "test" || rec["playback_id"] != "abc" || rec["error"] != "unknown playback" {
		t.Fatalf("missing fields in %v", rec)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Config{Level: "warn"})
	l.Info(context.Background(), "hidden")
	l.Error(nil, "shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filtering failed: %q", buf.String())
	}
}

func TestOrNoop(t *testing.T) {
	OrNoop(nil).Info(context.Background(), "dropped")
	if _, ok := OrNoop(nil).(noopLogger); !ok {
		t.Fatalf("OrNoop(nil) should be the noop logger")
	}
}
