// Package tracing sets up OpenTelemetry for the server and tags spans with
// the wiki, tool and write protocol they belong to.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "mediawiki-mcp-server"

// Config selects where spans go. With no Endpoint and Stdout unset, tracing is off.
type Config struct {
	ServiceVersion string

	// Endpoint is an OTLP/HTTP collector. A bare host:port is spoken to over
	// plain HTTP; a full URL is used as given.
	Endpoint string

	// Stdout pretty-prints spans to Writer, which defaults to os.Stderr.
	// Standard output is never used: it carries the stdio MCP transport.
	Stdout bool
	Writer io.Writer

	SampleRate float64 // fraction of root spans kept, clamped to [0, 1]
}

// ConfigFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_ENABLED and
// OTEL_TRACES_SAMPLER_ARG.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Endpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		SampleRate: 1,
	}
	if v := getenv("OTEL_ENABLED"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("OTEL_ENABLED: %w", err)
		}
		cfg.Stdout = on && cfg.Endpoint == ""
	}
	if v := getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.SampleRate = rate
	}
	return cfg, nil
}

// Enabled reports whether Setup will install an exporter.
func (c Config) Enabled() bool {
	return c.Endpoint != "" || c.Stdout
}

// Setup installs the global tracer provider and returns its shutdown function.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(tracerName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch {
	case strings.Contains(cfg.Endpoint, "://"):
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	case cfg.Endpoint != "":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	default:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	}
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// AddToolAttributes tags a span with the MCP tool being served.
func AddToolAttributes(span trace.Span, toolName, category string) {
	span.SetAttributes(
		attribute.String("mcp.tool.name", toolName),
		attribute.String("mcp.tool.category", category),
	)
}

// AddWikiAttributes tags a span with the wiki it targets and the operation.
func AddWikiAttributes(span trace.Span, wikiKey, operation, title string) {
	span.SetAttributes(
		attribute.String("wiki.key", wikiKey),
		attribute.String("wiki.operation", operation),
	)
	if title != "" {
		span.SetAttributes(attribute.String("wiki.page.title", title))
	}
}

// AddWriteAttributes records which protocol served a write and its correlation ID.
func AddWriteAttributes(span trace.Span, protocol, writeID string) {
	span.SetAttributes(
		attribute.String("wiki.write.protocol", protocol),
		attribute.String("wiki.write.id", writeID),
	)
}

// RecordError marks span failed with err. A nil err leaves the span untouched.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
