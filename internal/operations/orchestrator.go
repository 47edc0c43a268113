package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/SorenAcevedo/uao-etl/internal/config"
	"github.com/SorenAcevedo/uao-etl/internal/infrastructure"
)

// Orchestrator runs every dataset job on a bounded worker pool and collects
// one summary entry per dataset in completion order.
type Orchestrator struct {
	runner    JobRunner
	loggers   LoggerProvider
	recorder  Recorder
	workers   int
	heartbeat time.Duration
	runID     string
	logger    *slog.Logger
}

// OrchestratorOption customizes an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithWorkers sets the pool size; values below 1 keep the default
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRecorder stores every job result through rec
func WithRecorder(rec Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recorder = rec
	}
}

// WithHeartbeat logs the still-pending datasets every interval; zero disables it
func WithHeartbeat(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.heartbeat = interval
	}
}

// WithRunID fixes the run identifier instead of taking it from the context
func WithRunID(id string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithLogger sets the application logger
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator. loggers may be nil, in which case
// jobs log to the application logger.
func NewOrchestrator(runner JobRunner, loggers LoggerProvider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		runner:  runner,
		loggers: loggers,
		workers: config.DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = infrastructure.WithComponent(o.logger, "orchestrator")
	return o
}

// RunAll runs one job per dataset and returns the summary in completion
// order. The only error is a validation error, returned before any job starts;
// job failures are reported in the entries.
func (o *Orchestrator) RunAll(ctx context.Context, datasets []DatasetConfig) ([]SummaryEntry, error) {
	if err := ValidateDatasets(datasets); err != nil {
		return nil, err
	}

	runID := o.runID
	if runID == "" {
		ctx = infrastructure.EnsureTraceID(ctx)
		runID = infrastructure.GetTraceID(ctx)
	} else {
		ctx = infrastructure.WithTraceID(ctx, runID)
	}

	o.logger.InfoContext(ctx, "etl run started",
		slog.String("run_id", runID),
		slog.Int("datasets", len(datasets)),
		slog.Int("workers", o.workers),
	)
	started := time.Now()

	results := make(chan SummaryEntry, len(datasets))

	var g errgroup.Group
	g.SetLimit(o.workers)
	go func() {
		for _, ds := range datasets {
			g.Go(func() error {
				results <- o.runOne(ctx, runID, ds)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	pending := make(map[string]struct{}, len(datasets))
	for _, ds := range datasets {
		pending[ds.Name] = struct{}{}
	}

	var tick <-chan time.Time
	if o.heartbeat > 0 {
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	entries := make([]SummaryEntry, 0, len(datasets))
	for {
		select {
		case entry, ok := <-results:
			if !ok {
				o.logger.InfoContext(ctx, "etl run finished",
					slog.String("run_id", runID),
					slog.Int("succeeded", len(entries)-CountFailures(entries)),
					slog.Int("failed", CountFailures(entries)),
					slog.Duration("duration", time.Since(started)),
				)
				return entries, nil
			}
			delete(pending, entry.Dataset)
			entries = append(entries, entry)
			o.logger.InfoContext(ctx, "dataset finished",
				slog.String("dataset", entry.Dataset),
				slog.String("outcome", entry.Outcome.String()),
			)
		case <-tick:
			o.logger.InfoContext(ctx, "waiting for datasets",
				slog.Any("pending", sortedNames(pending)),
				slog.Int("completed", len(entries)),
			)
		}
	}
}

// runOne runs a single job. Anything that escapes the runner, including a
// panic, becomes an "unexpected error" entry.
func (o *Orchestrator) runOne(ctx context.Context, runID string, ds DatasetConfig) (entry SummaryEntry) {
	entry.Dataset = ds.Name

	defer func() {
		if rec := recover(); rec != nil {
			err := NewUnexpectedError(ds.Name, "", fmt.Errorf("%v", rec))
			o.logger.ErrorContext(ctx, "job could not be completed",
				slog.String("dataset", ds.Name),
				slog.String("error", err.Error()),
			)
			entry.Outcome = Failure(err.Error())
		}
	}()

	logger, err := o.datasetLogger(ds.Name)
	if err != nil {
		uerr := NewUnexpectedError(ds.Name, "", err)
		o.logger.ErrorContext(ctx, "dataset logger unavailable",
			slog.String("dataset", ds.Name),
			slog.String("error", err.Error()),
		)
		entry.Outcome = Failure(uerr.Error())
		return entry
	}

	result := o.runner.RunJob(ctx, Job{Dataset: ds, Logger: logger, RunID: runID})
	entry.Outcome = result.Outcome

	if o.recorder != nil {
		if err := o.recorder.RecordResult(ctx, runID, result); err != nil {
			o.logger.WarnContext(ctx, "failed to record job result",
				slog.String("dataset", ds.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	return entry
}

func (o *Orchestrator) datasetLogger(name string) (*slog.Logger, error) {
	if o.loggers == nil {
		return o.logger.With("dataset", name), nil
	}
	return o.loggers.Get(name)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// ValidateDatasets checks every dataset config and rejects duplicate names
func ValidateDatasets(datasets []DatasetConfig) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	seen := make(map[string]struct{}, len(datasets))
	for _, ds := range datasets {
		if err := validate.Struct(ds); err != nil {
			return NewValidationError(ds.Name, fmt.Sprintf("invalid dataset %q: %s", ds.Name, describeValidation(err)))
		}
		if _, dup := seen[ds.Name]; dup {
			return NewValidationError(ds.Name, fmt.Sprintf("duplicate dataset name %q", ds.Name))
		}
		seen[ds.Name] = struct{}{}
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s item(s)", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// FormatSummary renders the console summary, one line per dataset
func FormatSummary(entries []SummaryEntry) string {
	var b strings.Builder
	b.WriteString("ETL run summary:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Dataset, e.Outcome)
	}
	return b.String()
}

// CountFailures returns how many entries did not succeed
func CountFailures(entries []SummaryEntry) int {
	n := 0
	for _, e := range entries {
		if !e.Outcome.OK() {
			n++
		}
	}
	return n
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
