package operations

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/SorenAcevedo/uao-etl/internal/config"
	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
)

// Runner executes the extract, transform and load steps of a single dataset
type Runner struct {
	extractor Extractor
	loader    Loader
	paths     *config.Paths
	now       func() time.Time
	tracer    *JobTracer
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithClock sets the clock used for output timestamps and job stats
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTracer sets the job tracer
func WithTracer(tracer *JobTracer) RunnerOption {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRunner creates a job runner writing outputs under paths.ProcessedDir
func NewRunner(extractor Extractor, loader Loader, paths *config.Paths, opts ...RunnerOption) *Runner {
	r := &Runner{
		extractor: extractor,
		loader:    loader,
		paths:     paths,
		now:       time.Now,
		tracer:    defaultJobTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunJob runs extract, the transforms in order and load for one dataset.
// It never panics and always returns exactly one result; any failure is
// reported in the result's Outcome and detailed in the dataset log.
func (r *Runner) RunJob(ctx context.Context, job Job) (result JobResult) {
	ds := job.Dataset
	logger := job.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	state := NewJobState(ds.Name)
	result = JobResult{
		Dataset: ds.Name,
		State:   state.Status(),
		Stats:   JobStats{StartedAt: r.now()},
	}

	ctx, span := r.tracer.StartJob(ctx, job)
	defer func() {
		if rec := recover(); rec != nil {
			err := NewUnexpectedError(ds.Name, state.Status().Step(), fmt.Errorf("panic: %v", rec))
			result = r.fail(ctx, logger, state, result, err)
		}
		r.tracer.EndJob(ctx, span, result)
	}()

	logger.InfoContext(ctx, "etl started",
		slog.String("run_id", job.RunID),
		slog.String("input", ds.InputPath),
		slog.Any("transforms", ds.TransformNames()),
	)

	// Extract
	r.advance(ctx, logger, state, JobStatusExtracting)
	table, err := r.extractor.Extract(ctx, ds.InputPath)
	if err != nil {
		return r.fail(ctx, logger, state, result, NewExtractionError(ds.Name, ds.InputPath, err))
	}
	if table == nil {
		return r.fail(ctx, logger, state, result,
			NewExtractionError(ds.Name, ds.InputPath, fmt.Errorf("failed to load %s: no data returned", ds.InputPath)))
	}
	result.Stats.RowsRead = table.Len()
	logger.InfoContext(ctx, "data extracted",
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)),
	)

	// Transform
	r.advance(ctx, logger, state, JobStatusTransforming)
	for _, t := range ds.Transforms {
		before := table.Len()
		started := time.Now()

		tctx, tspan := r.tracer.StartTransform(ctx, ds.Name, t.Name(), before)
		next, err := applyTransform(t, table)
		elapsed := time.Since(started)
		rowsAfter := 0
		if next != nil {
			rowsAfter = next.Len()
		}
		r.tracer.EndTransform(tctx, tspan, ds.Name, t.Name(), rowsAfter, elapsed, err)

		if err != nil {
			return r.fail(ctx, logger, state, result, NewTransformError(ds.Name, t.Name(), err))
		}

		logger.InfoContext(ctx, "transform applied",
			slog.String("transform", t.Name()),
			slog.Int("rows_before", before),
			slog.Int("rows_after", rowsAfter),
		)
		result.Stats.Transforms = append(result.Stats.Transforms, TransformStat{
			Name:       t.Name(),
			RowsBefore: before,
			RowsAfter:  rowsAfter,
			Duration:   elapsed,
		})
		table = next
	}

	// Load
	r.advance(ctx, logger, state, JobStatusLoading)
	outputPath := r.paths.GetProcessedPath(ds.OutputName, r.now())
	if err := r.loader.Load(ctx, table, outputPath); err != nil {
		return r.fail(ctx, logger, state, result, NewLoadError(ds.Name, outputPath, err))
	}

	r.advance(ctx, logger, state, JobStatusSucceeded)
	result.State = state.Status()
	result.Outcome = Success()
	result.Stats.RowsWritten = table.Len()
	result.Stats.OutputPath = outputPath
	result.Stats.FinishedAt = r.now()

	logger.InfoContext(ctx, "data saved",
		slog.String("path", outputPath),
		slog.Int("rows", table.Len()),
		slog.Duration("duration", result.Stats.Duration()),
	)
	return result
}

// applyTransform runs t, turning a panic or a nil table into an error
func applyTransform(t dataprocessing.Transform, table *dataprocessing.Table) (out *dataprocessing.Table, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()

	out, err = t.Apply(table)
	if err == nil && out == nil {
		err = fmt.Errorf("transform returned no table")
	}
	return out, err
}

func (r *Runner) advance(ctx context.Context, logger *slog.Logger, state *JobState, to JobStatus) {
	from := state.Status()
	if err := state.Transition(to); err != nil {
		logger.WarnContext(ctx, "job state not changed", slog.String("error", err.Error()))
		return
	}
	logger.DebugContext(ctx, "job state changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, state *JobState, result JobResult, err *PipelineError) JobResult {
	step := err.Step
	if step == "" {
		step = state.Status().Step()
	}
	_ = state.Transition(JobStatusFailed)

	result.State = state.Status()
	result.Outcome = Failure(err.Error())
	result.Err = err
	result.Stats.FinishedAt = r.now()

	attrs := []any{
		slog.String("step", step),
		slog.String("error_type", string(err.Type)),
		slog.String("error", err.Error()),
	}
	if err.Path != "" {
		attrs = append(attrs, slog.String("path", err.Path))
	}
	if err.Transform != "" {
		attrs = append(attrs, slog.String("transform", err.Transform))
	}
	logger.ErrorContext(ctx, "etl failed", attrs...)
	return result
}
