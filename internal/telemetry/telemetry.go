// Package telemetry installs the OpenTelemetry providers and exposes the
// tracer and the domain counters. Until Setup runs the global no-op
// implementations are used, so instrumentation is always safe to call.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "ajeyam"

// Exporters understood by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Options configures Setup.
type Options struct {
	Exporter    string
	ServiceName string

	// Writer receives stdout exporter output; os.Stdout when nil.
	Writer io.Writer
	// MetricInterval is the metric export period; one minute when zero.
	MetricInterval time.Duration
}

// Setup installs the global tracer and meter providers for the chosen
// exporter. The returned function flushes pending telemetry and stops the
// providers. ExporterNone installs nothing.
func Setup(opts Options) (func(context.Context) error, error) {
	switch opts.Exporter {
	case "", ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", opts.Exporter)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	interval := opts.MetricInterval
	if interval <= 0 {
		interval = time.Minute
	}
	name := opts.ServiceName
	if name == "" {
		name = instrumentationName
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", name)))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Metrics holds the domain metric instruments.
type Metrics struct {
	Transitions    metric.Int64Counter
	TransitionErrs metric.Int64Counter
	Toggles        metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func instruments() *Metrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)

		transitions, _ := meter.Int64Counter("ajeyam.moderation.transitions",
			metric.WithDescription("Moderation transitions applied"),
			metric.WithUnit("{transition}"),
		)
		transitionErrs, _ := meter.Int64Counter("ajeyam.moderation.rejected_transitions",
			metric.WithDescription("Moderation transitions refused by the state machine"),
			metric.WithUnit("{transition}"),
		)
		toggles, _ := meter.Int64Counter("ajeyam.ledger.toggles",
			metric.WithDescription("Membership toggles applied"),
			metric.WithUnit("{toggle}"),
		)

		metrics = &Metrics{
			Transitions:    transitions,
			TransitionErrs: transitionErrs,
			Toggles:        toggles,
		}
	})
	return metrics
}

// RecordTransition counts a moderation transition attempt.
func RecordTransition(ctx context.Context, kind, action, to string, err error) {
	m := instruments()
	if err != nil {
		m.TransitionErrs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("action", action),
		))
		return
	}
	m.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("action", action),
		attribute.String("to", to),
	))
}

// RecordToggle counts a membership toggle.
func RecordToggle(ctx context.Context, relation string, added bool) {
	instruments().Toggles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation", relation),
		attribute.Bool("added", added),
	))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
