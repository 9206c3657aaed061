package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewProviderWritesSpansToStdoutExporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	provider, err := NewProvider(Options{
		Exporter:    "STDOUT",
		Version:     "1.2.3",
		Environment: "test",
		SampleRatio: 1,
		Output:      &buf,
		Syncer:      true,
	})
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}

	_, span := provider.Tracer("regioncd/test").Start(context.Background(), "registry.fetch")
	span.End()

	if err := Shutdown(context.Background(), provider); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"Name":"registry.fetch"`, "regioncd", "1.2.3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected exported span to contain %s, got %s", want, out)
		}
	}
}

func TestNewProviderWithoutExporterStillSamples(t *testing.T) {
	t.Parallel()

	provider, err := NewProvider(Options{Exporter: ExporterNone, SampleRatio: 1})
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown(context.Background(), provider) })

	_, span := provider.Tracer("regioncd/test").Start(context.Background(), "work")
	defer span.End()

	if !span.SpanContext().IsValid() || !span.SpanContext().IsSampled() {
		t.Fatalf("expected a sampled span context, got %+v", span.SpanContext())
	}
}

func TestNewProviderRejectsBadOptions(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider(Options{Exporter: "zipkin", SampleRatio: 1}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	if _, err := NewProvider(Options{SampleRatio: 2}); err == nil {
		t.Fatal("expected error for sample ratio above one")
	}
}

func TestShutdownIgnoresNilProvider(t *testing.T) {
	t.Parallel()

	if err := Shutdown(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
