package operations

import (
	"context"
	"log/slog"
	"time"

	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
)

// DatasetConfig describes one dataset job. Name is the unique key within a run.
type DatasetConfig struct {
	Name       string                     `validate:"required"`
	InputPath  string                     `validate:"required"`
	OutputName string                     `validate:"required"`
	Transforms []dataprocessing.Transform `validate:"min=1,dive,required"`
}

// TransformNames returns the transform labels in application order
func (c DatasetConfig) TransformNames() []string {
	names := make([]string, len(c.Transforms))
	for i, t := range c.Transforms {
		names[i] = t.Name()
	}
	return names
}

// Job is a dataset bound to its log sink for one run
type Job struct {
	Dataset DatasetConfig
	Logger  *slog.Logger
	RunID   string
}

// OutcomeStatus is the final verdict of a job
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailure OutcomeStatus = "failure"
)

// Outcome is what the summary reports for a dataset
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message,omitempty"`
}

// Success returns a successful outcome
func Success() Outcome {
	return Outcome{Status: StatusSuccess}
}

// Failure returns a failed outcome carrying message
func Failure(message string) Outcome {
	return Outcome{Status: StatusFailure, Message: message}
}

// OK reports whether the outcome is a success
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) String() string {
	if o.OK() {
		return "success"
	}
	return "error: " + o.Message
}

// TransformStat records the row count change of one transform
type TransformStat struct {
	Name       string        `json:"name"`
	RowsBefore int           `json:"rows_before"`
	RowsAfter  int           `json:"rows_after"`
	Duration   time.Duration `json:"duration"`
}

// JobStats are the counters gathered while a job runs
type JobStats struct {
	RowsRead    int             `json:"rows_read"`
	RowsWritten int             `json:"rows_written"`
	OutputPath  string          `json:"output_path,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Transforms  []TransformStat `json:"transforms,omitempty"`
}

// Duration returns how long the job ran
func (s JobStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// JobResult is produced exactly once per job
type JobResult struct {
	Dataset string    `json:"dataset"`
	Outcome Outcome   `json:"outcome"`
	Stats   JobStats  `json:"stats"`
	State   JobStatus `json:"state"`
	// Err is the failure behind a non-successful outcome
	Err error `json:"-"`
}

// SummaryEntry is one line of the run summary
type SummaryEntry struct {
	Dataset string  `json:"dataset"`
	Outcome Outcome `json:"outcome"`
}

// Extractor reads a dataset source into a table
type Extractor interface {
	Extract(ctx context.Context, path string) (*dataprocessing.Table, error)
}

// Loader persists a table to path
type Loader interface {
	Load(ctx context.Context, table *dataprocessing.Table, path string) error
}

// JobRunner executes one job and always returns a result
type JobRunner interface {
	RunJob(ctx context.Context, job Job) JobResult
}

// LoggerProvider hands out the log sink for a dataset
type LoggerProvider interface {
	Get(name string) (*slog.Logger, error)
}

// Recorder persists job results, for example to the run history
type Recorder interface {
	RecordResult(ctx context.Context, runID string, result JobResult) error
}
