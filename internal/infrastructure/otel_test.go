package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/SorenAcevedo/uao-etl/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTelConfigFromSettings(t *testing.T) {
	cfg := OTelConfigFromSettings(config.Default().Telemetry)

	assert.Equal(t, config.AppName, cfg.ServiceName)
	assert.Equal(t, config.AppVersion, cfg.ServiceVersion)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}

func TestInitializeOTel_Disabled(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
	}, discardLogger())
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.Registry)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)

	err = providers.WriteMetricsFile(filepath.Join(t.TempDir(), "m.prom"))
	assert.ErrorContains(t, err, "prometheus exporter is disabled")
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_UnsupportedExporters(t *testing.T) {
	_, err := InitializeOTel(&OTelConfig{TraceExporter: "jaeger", MetricExporter: "none"}, discardLogger())
	assert.ErrorContains(t, err, "unsupported trace exporter")

	_, err = InitializeOTel(&OTelConfig{TraceExporter: "none", MetricExporter: "statsd"}, discardLogger())
	assert.ErrorContains(t, err, "unsupported metric exporter")
}

func TestInitializeOTel_StdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "none",
		TraceWriter:    &buf,
		SampleRatio:    1.0,
	}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)

	ctx, span := providers.Tracer.Start(context.Background(), "etl.job")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	RecordError(ctx, errors.New("boom"))
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, providers.Shutdown(ctx))

	assert.Contains(t, buf.String(), "etl.job")
	assert.Contains(t, buf.String(), "boom")
}

func TestETLMetrics_WriteMetricsFile(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
	}, discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())
	require.NotNil(t, providers.Registry)

	metrics, err := CreateETLMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	RecordActiveJobChange(ctx, metrics, 1)
	RecordTransformMetrics(ctx, metrics, "internet_fijo", "filter_by_year_range", 10*time.Millisecond, nil)
	RecordTransformMetrics(ctx, metrics, "internet_fijo", "transform_internet_fijo", time.Millisecond, errors.New("x"))
	RecordJobMetrics(ctx, metrics, "internet_fijo", "success", 2*time.Second, 120, 80)
	RecordActiveJobChange(ctx, metrics, -1)

	path := filepath.Join(t.TempDir(), "metrics", "etl.prom")
	require.NoError(t, providers.WriteMetricsFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, "etl_jobs_total")
	assert.Contains(t, out, `dataset="internet_fijo"`)
	assert.Contains(t, out, `stage="extracted"`)
	assert.Contains(t, out, `stage="loaded"`)
	assert.Contains(t, out, "etl_job_duration_seconds")
	assert.Contains(t, out, "etl_transform_errors_total")
}

func TestRecordHelpers_NilMetrics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordJobMetrics(ctx, nil, "d", "failure", time.Second, 1, 0)
		RecordTransformMetrics(ctx, nil, "d", "t", time.Second, nil)
		RecordActiveJobChange(ctx, nil, 1)
	})

	metrics, err := CreateETLMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		RecordJobMetrics(ctx, metrics, "d", "failure", time.Second, 1, 0)
	})
}

func TestRuntimeMetrics_Collect(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
	}, discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	rm, err := NewRuntimeMetrics(providers.Meter)
	require.NoError(t, err)

	stats := rm.Collect(context.Background(), time.Now().Add(-time.Minute))
	assert.Positive(t, stats.GoRoutines)
	assert.Positive(t, stats.MemorySystem)
	assert.GreaterOrEqual(t, stats.Uptime, time.Minute)

	path := filepath.Join(t.TempDir(), "etl.prom")
	require.NoError(t, providers.WriteMetricsFile(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "etl_runtime_goroutines")
	assert.Contains(t, string(content), "etl_run_duration_seconds")
}
