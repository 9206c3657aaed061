package tracing

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Options configures the tracer provider.
type Options struct {
	// Exporter is "none" or "stdout"; empty means none.
	Exporter    string
	ServiceName string
	Version     string
	Environment string
	// SampleRatio applies to root spans; children follow their parent.
	SampleRatio float64
	// Output receives stdout spans; os.Stdout when nil.
	Output io.Writer
	// Syncer exports every span as it ends instead of batching.
	Syncer bool
}

// NewProvider builds an SDK tracer provider. Without an exporter spans are
// still created and sampled so trace ids reach the logs.
func NewProvider(opts Options) (*sdktrace.TracerProvider, error) {
	if opts.SampleRatio < 0 || opts.SampleRatio > 1 {
		return nil, eris.Errorf("sample ratio must be between 0 and 1, got %v", opts.SampleRatio)
	}

	name := opts.ServiceName
	if name == "" {
		name = "regioncd"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if opts.Version != "" {
		attrs = append(attrs, attribute.String("service.version", opts.Version))
	}
	if opts.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", opts.Environment))
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	}

	switch exporter := strings.ToLower(strings.TrimSpace(opts.Exporter)); exporter {
	case "", ExporterNone:
	case ExporterStdout:
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, eris.Wrap(err, "creating stdout span exporter")
		}
		if opts.Syncer {
			providerOpts = append(providerOpts, sdktrace.WithSyncer(exp))
		} else {
			providerOpts = append(providerOpts, sdktrace.WithBatcher(exp))
		}
	default:
		return nil, eris.Errorf("unsupported trace exporter: %s", exporter)
	}

	return sdktrace.NewTracerProvider(providerOpts...), nil
}

// Shutdown flushes pending spans; a nil provider is ignored.
func Shutdown(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}
	return eris.Wrap(provider.Shutdown(ctx), "shutting down tracer provider")
}
