// Package telemetry exports gate runs as OpenTelemetry traces and a
// Prometheus textfile.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
)

const (
	serviceName       = "prgate"
	tracerName        = "prgate/gate"
	connectionTimeout = 10 * time.Second
)

// Options configures telemetry export
type Options struct {
	// Endpoint is the OTLP/gRPC collector (host:port). Empty disables tracing.
	Endpoint string
	// Insecure dials the collector without TLS
	Insecure bool
	// ServiceVersion is reported as service.version
	ServiceVersion string

	// MetricsPath is the Prometheus textfile written on Close. Empty disables metrics.
	MetricsPath string

	Logger interfaces.Logger
}

// Telemetry records spans and gate metrics for one run
type Telemetry struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	metrics  *gateMetrics
	logger   interfaces.Logger
}

// New creates the exporters selected by opts. Without an endpoint spans go to
// a no-op tracer.
func New(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Endpoint == "" {
		return newTelemetry(nil, opts), nil
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(dialCtx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return newTelemetry(provider, opts), nil
}

func newTelemetry(provider *sdktrace.TracerProvider, opts Options) *Telemetry {
	t := &Telemetry{
		provider: provider,
		logger:   interfaces.OrNoOp(opts.Logger),
	}
	if provider != nil {
		t.tracer = provider.Tracer(tracerName)
	} else {
		t.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if opts.MetricsPath != "" {
		t.metrics = newGateMetrics(opts.MetricsPath)
	}
	return t
}

// StartSpan opens a span named name; the returned func ends it
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// RecordScan annotates the current scanner span and records its duration
func (t *Telemetry) RecordScan(ctx context.Context, tool entities.ToolName, findings uint, elapsed time.Duration) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("prgate.tool", string(tool)),
		attribute.Int("prgate.findings", int(findings)),
		attribute.Float64("prgate.duration_seconds", elapsed.Seconds()),
	)
	if t.metrics != nil {
		t.metrics.recordScan(tool, elapsed)
	}
}

// RecordRun annotates the run span with the gate decision and sets the gauges
func (t *Telemetry) RecordRun(ctx context.Context, outcomes entities.Outcomes, result entities.GateResult) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("prgate.trivy.critical", int(outcomes.Trivy.Critical)),
		attribute.Int("prgate.trivy.high", int(outcomes.Trivy.High)),
		attribute.Int("prgate.checkov.critical", int(outcomes.Checkov.Critical)),
		attribute.Int("prgate.checkov.high", int(outcomes.Checkov.High)),
		attribute.Int("prgate.opa.deny_count", int(outcomes.OPA.DenyCount)),
		attribute.Bool("prgate.blocking", result.Blocking),
	)
	if result.Blocking {
		span.SetStatus(codes.Error, "merge blocked")
	}
	if t.metrics != nil {
		t.metrics.recordRun(outcomes, result)
	}
}

// Close writes the metrics file and flushes pending spans. Both are attempted
// even when one fails.
func (t *Telemetry) Close(ctx context.Context) error {
	var errs []error
	if t.metrics != nil {
		if err := t.metrics.write(); err != nil {
			errs = append(errs, err)
		} else {
			t.logger.Debug("Wrote gate metrics", interfaces.F("path", t.metrics.path))
		}
	}
	if t.provider != nil {
		if err := t.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}
	return errors.Join(errs...)
}
