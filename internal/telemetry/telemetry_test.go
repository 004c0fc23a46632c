package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func resetProviders(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(Options{Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jaeger")
}

func TestSetupNoneInstallsNothing(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		shutdown, err := Setup(Options{Exporter: exporter})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupStdoutExportsSpans(t *testing.T) {
	resetProviders(t)
	var buf bytes.Buffer

	shutdown, err := Setup(Options{Exporter: ExporterStdout, ServiceName: "ajeyam-test", Writer: &buf})
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "telemetry.check")
	assert.True(t, span.IsRecording())
	EndSpan(span, errors.New("boom"))

	require.NoError(t, shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "telemetry.check")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "ajeyam-test")
}
