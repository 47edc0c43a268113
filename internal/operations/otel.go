package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/SorenAcevedo/uao-etl/internal/infrastructure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "uao-etl/operations"
)

// JobTracer provides OpenTelemetry instrumentation for dataset jobs
type JobTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.ETLMetrics
}

// NewJobTracer creates a tracer bound to the given providers. A nil
// providers value yields a tracer on the global (no-op by default) provider
// that records no metrics.
func NewJobTracer(providers *infrastructure.OTelProviders) (*JobTracer, error) {
	if providers == nil {
		return defaultJobTracer(), nil
	}

	metrics, err := infrastructure.CreateETLMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create ETL metrics: %w", err)
	}

	tracer := providers.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	return &JobTracer{
		tracer:  tracer,
		metrics: metrics,
	}, nil
}

func defaultJobTracer() *JobTracer {
	return &JobTracer{tracer: otel.Tracer(TracerName)}
}

// StartJob opens the etl.job span
func (jt *JobTracer) StartJob(ctx context.Context, job Job) (context.Context, trace.Span) {
	ctx, span := jt.tracer.Start(ctx, "etl.job",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("etl.dataset", job.Dataset.Name),
			attribute.String("etl.run_id", job.RunID),
			attribute.String("etl.input_path", job.Dataset.InputPath),
			attribute.Int("etl.transforms", len(job.Dataset.Transforms)),
		),
	)

	infrastructure.RecordActiveJobChange(ctx, jt.metrics, 1)
	return ctx, span
}

// EndJob records the job result on span and in metrics, then ends the span
func (jt *JobTracer) EndJob(ctx context.Context, span trace.Span, result JobResult) {
	defer span.End()

	infrastructure.RecordActiveJobChange(ctx, jt.metrics, -1)
	infrastructure.RecordJobMetrics(ctx, jt.metrics, result.Dataset, string(result.Outcome.Status),
		result.Stats.Duration(), result.Stats.RowsRead, result.Stats.RowsWritten)

	span.SetAttributes(
		attribute.String("etl.status", string(result.Outcome.Status)),
		attribute.String("etl.state", string(result.State)),
		attribute.Int("etl.rows_read", result.Stats.RowsRead),
		attribute.Int("etl.rows_written", result.Stats.RowsWritten),
		attribute.Float64("etl.duration_seconds", result.Stats.Duration().Seconds()),
	)
	if result.Stats.OutputPath != "" {
		span.SetAttributes(attribute.String("etl.output_path", result.Stats.OutputPath))
	}

	if result.Outcome.OK() {
		span.SetStatus(codes.Ok, "job succeeded")
		return
	}
	if result.Err != nil {
		span.RecordError(result.Err, trace.WithAttributes(
			attribute.String("error.type", string(GetErrorType(result.Err))),
		))
	}
	span.SetStatus(codes.Error, result.Outcome.Message)
}

// StartTransform opens an etl.transform span as a child of the job span
func (jt *JobTracer) StartTransform(ctx context.Context, dataset, transform string, rows int) (context.Context, trace.Span) {
	return jt.tracer.Start(ctx, "etl.transform",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("etl.dataset", dataset),
			attribute.String("etl.transform", transform),
			attribute.Int("etl.rows_before", rows),
		),
	)
}

// EndTransform closes a transform span
func (jt *JobTracer) EndTransform(ctx context.Context, span trace.Span, dataset, transform string, rowsAfter int, duration time.Duration, err error) {
	defer span.End()

	infrastructure.RecordTransformMetrics(ctx, jt.metrics, dataset, transform, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("etl.rows_after", rowsAfter))
	span.SetStatus(codes.Ok, "")
}
