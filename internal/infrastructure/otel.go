package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/SorenAcevedo/uao-etl/internal/config"
)

const (
	MeterName = "uao-etl"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string    // "stdout", "none"
	MetricExporter string    // "prometheus", "none"
	TraceWriter    io.Writer // destination of the stdout exporter, stderr when nil
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	// Registry receives every instrument when the prometheus exporter is active
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// OTelConfigFromSettings converts the telemetry section of the configuration.
func OTelConfigFromSettings(cfg config.TelemetryConfig) *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.AppVersion,
		Environment:    env,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
		SampleRatio:    1.0,
	}
}

// InitializeOTel initializes tracing and metrics and installs them as the
// global providers. Exporters set to "none" leave the no-op globals in place.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = OTelConfigFromSettings(config.Default().Telemetry)
	}
	if logger == nil {
		logger = GetLogger()
	}

	ctx := context.Background()

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Tracer: otel.Tracer(MeterName),
		Meter:  otel.Meter(MeterName),
		Logger: logger,
	}

	if err := initializeTracing(ctx, cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.DebugContext(ctx, "OpenTelemetry initialization complete",
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.String("metric_exporter", cfg.MetricExporter))

	return providers, nil
}

func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		w := cfg.TraceWriter
		if w == nil {
			// stdout carries the run summary
			w = os.Stderr
		}
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithPrettyPrint(),
		)
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)

	providers.Logger.DebugContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.Registry = registry
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetMeterProvider(mp)

	case "none", "":
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.DebugContext(ctx, "Metrics initialized",
		slog.String("exporter", cfg.MetricExporter))

	return nil
}

// WriteMetricsFile dumps the collected metrics in Prometheus text format,
// suitable for the node_exporter textfile collector.
func (p *OTelProviders) WriteMetricsFile(path string) error {
	if p.Registry == nil {
		return fmt.Errorf("metrics file requested but prometheus exporter is disabled")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, p.Registry); err != nil {
		return fmt.Errorf("failed to write metrics file %s: %w", path, err)
	}
	return nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.DebugContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// ETLMetrics groups the instruments recorded for each dataset job
type ETLMetrics struct {
	JobsTotal         metric.Int64Counter
	JobDuration       metric.Float64Histogram
	ActiveJobs        metric.Int64UpDownCounter
	RowsTotal         metric.Int64Counter
	TransformDuration metric.Float64Histogram
	TransformErrors   metric.Int64Counter
}

// CreateETLMetrics registers the pipeline instruments on meter
func CreateETLMetrics(meter metric.Meter) (*ETLMetrics, error) {
	jobsTotal, err := meter.Int64Counter(
		"etl_jobs_total",
		metric.WithDescription("Total number of dataset jobs by final status"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"etl_job_duration_seconds",
		metric.WithDescription("Dataset job duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeJobs, err := meter.Int64UpDownCounter(
		"etl_active_jobs",
		metric.WithDescription("Number of dataset jobs currently running"),
	)
	if err != nil {
		return nil, err
	}

	rowsTotal, err := meter.Int64Counter(
		"etl_rows_total",
		metric.WithDescription("Rows seen per dataset and stage (extracted, loaded)"),
	)
	if err != nil {
		return nil, err
	}

	transformDuration, err := meter.Float64Histogram(
		"etl_transform_duration_seconds",
		metric.WithDescription("Single transform duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	transformErrors, err := meter.Int64Counter(
		"etl_transform_errors_total",
		metric.WithDescription("Total number of failed transforms"),
	)
	if err != nil {
		return nil, err
	}

	return &ETLMetrics{
		JobsTotal:         jobsTotal,
		JobDuration:       jobDuration,
		ActiveJobs:        activeJobs,
		RowsTotal:         rowsTotal,
		TransformDuration: transformDuration,
		TransformErrors:   transformErrors,
	}, nil
}

// RecordJobMetrics records the outcome of one dataset job
func RecordJobMetrics(ctx context.Context, metrics *ETLMetrics, dataset, status string, duration time.Duration, rowsExtracted, rowsLoaded int) {
	if metrics == nil {
		return
	}

	datasetAttr := attribute.String("dataset", dataset)

	metrics.JobsTotal.Add(ctx, 1, metric.WithAttributes(datasetAttr, attribute.String("status", status)))
	metrics.JobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(datasetAttr, attribute.String("status", status)))
	metrics.RowsTotal.Add(ctx, int64(rowsExtracted), metric.WithAttributes(datasetAttr, attribute.String("stage", "extracted")))
	if rowsLoaded > 0 {
		metrics.RowsTotal.Add(ctx, int64(rowsLoaded), metric.WithAttributes(datasetAttr, attribute.String("stage", "loaded")))
	}
}

// RecordTransformMetrics records a single transform application
func RecordTransformMetrics(ctx context.Context, metrics *ETLMetrics, dataset, transform string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("transform", transform),
	)
	metrics.TransformDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		metrics.TransformErrors.Add(ctx, 1, attrs)
	}
}

// RecordActiveJobChange records changes in the running job count
func RecordActiveJobChange(ctx context.Context, metrics *ETLMetrics, delta int64) {
	if metrics == nil {
		return
	}
	metrics.ActiveJobs.Add(ctx, delta)
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from context
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}
