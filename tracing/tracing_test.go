package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a sampled span")
	}
	span.End()
	Shutdown(context.Background(), shutdown, nil)
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := initWith(context.Background(), Config{Enabled: true, Exporter: "stdout"}, &buf, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "playback.schedule")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "playback.schedule") {
		t.Fatalf("span not exported: %s", buf.String())
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("unknown exporter accepted")
	}
}
