package operations

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus is the lifecycle position of a single dataset job
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTransforming JobStatus = "transforming"
	JobStatusLoading      JobStatus = "loading"
	JobStatusSucceeded    JobStatus = "succeeded"
	JobStatusFailed       JobStatus = "failed"
)

// ErrInvalidTransition is returned when a job is moved out of order
var ErrInvalidTransition = errors.New("invalid job state transition")

// nextStates lists the forward move allowed from each running state.
// Every non-terminal state may also move to failed.
var nextStates = map[JobStatus]JobStatus{
	JobStatusPending:      JobStatusExtracting,
	JobStatusExtracting:   JobStatusTransforming,
	JobStatusTransforming: JobStatusLoading,
	JobStatusLoading:      JobStatusSucceeded,
}

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Step returns the pipeline step a status belongs to, or "" outside a step
func (s JobStatus) Step() string {
	switch s {
	case JobStatusExtracting:
		return StepExtract
	case JobStatusTransforming:
		return StepTransform
	case JobStatusLoading:
		return StepLoad
	default:
		return ""
	}
}

// JobState tracks one job through its lifecycle. It is owned by the
// goroutine running the job and is not safe for concurrent use.
type JobState struct {
	Dataset   string
	status    JobStatus
	changedAt time.Time
}

// NewJobState creates a job state in pending
func NewJobState(dataset string) *JobState {
	return &JobState{
		Dataset:   dataset,
		status:    JobStatusPending,
		changedAt: time.Now(),
	}
}

// Status returns the current status
func (s *JobState) Status() JobStatus {
	return s.status
}

// ChangedAt returns when the status last changed
func (s *JobState) ChangedAt() time.Time {
	return s.changedAt
}

// Transition moves the job to the given status if the lifecycle allows it
func (s *JobState) Transition(to JobStatus) error {
	if s.status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s.status)
	}
	if to != JobStatusFailed && nextStates[s.status] != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, to)
	}

	s.status = to
	s.changedAt = time.Now()
	return nil
}
