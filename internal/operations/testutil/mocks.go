// Package testutil provides test doubles for the operations package
package testutil

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
	"github.com/SorenAcevedo/uao-etl/internal/operations"
)

// MockExtractor returns canned tables keyed by path
type MockExtractor struct {
	Tables map[string]*dataprocessing.Table
	// ExtractFunc, when set, replaces the table lookup
	ExtractFunc func(ctx context.Context, path string) (*dataprocessing.Table, error)

	mu    sync.Mutex
	Calls []string
}

// Extract implements operations.Extractor
func (m *MockExtractor) Extract(ctx context.Context, path string) (*dataprocessing.Table, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, path)
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, path)
	}
	t, ok := m.Tables[path]
	if !ok {
		return nil, errors.New("failed to load " + path + ": no such file or directory")
	}
	return t.Clone(), nil
}

// LoadCall records one Load invocation
type LoadCall struct {
	Path  string
	Table *dataprocessing.Table
}

// MockLoader records every table it is asked to write
type MockLoader struct {
	Err      error
	LoadFunc func(ctx context.Context, table *dataprocessing.Table, path string) error

	mu    sync.Mutex
	Calls []LoadCall
}

// Load implements operations.Loader
func (m *MockLoader) Load(ctx context.Context, table *dataprocessing.Table, path string) error {
	if m.LoadFunc != nil {
		if err := m.LoadFunc(ctx, table, path); err != nil {
			return err
		}
	}
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, LoadCall{Path: path, Table: table.Clone()})
	return nil
}

// LoadCalls returns a copy of the recorded calls
func (m *MockLoader) LoadCalls() []LoadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LoadCall(nil), m.Calls...)
}

// RecordingTransform appends its label to a shared trace before running Fn
type RecordingTransform struct {
	Label string
	Fn    func(*dataprocessing.Table) (*dataprocessing.Table, error)
	Trace *[]string

	mu *sync.Mutex
}

// NewRecordingTransform creates a transform that records calls into trace
func NewRecordingTransform(label string, trace *[]string, mu *sync.Mutex, fn func(*dataprocessing.Table) (*dataprocessing.Table, error)) *RecordingTransform {
	return &RecordingTransform{Label: label, Fn: fn, Trace: trace, mu: mu}
}

// Name implements dataprocessing.Transform
func (r *RecordingTransform) Name() string {
	return r.Label
}

// Apply implements dataprocessing.Transform
func (r *RecordingTransform) Apply(t *dataprocessing.Table) (*dataprocessing.Table, error) {
	if r.Trace != nil {
		if r.mu != nil {
			r.mu.Lock()
			defer r.mu.Unlock()
		}
		*r.Trace = append(*r.Trace, r.Label)
	}
	if r.Fn == nil {
		return t.Clone(), nil
	}
	return r.Fn(t)
}

// MockRunner is a JobRunner driven by a function
type MockRunner struct {
	RunFunc func(ctx context.Context, job operations.Job) operations.JobResult
	Delay   time.Duration

	mu      sync.Mutex
	active  int
	MaxSeen int
	Jobs    []string
}

// RunJob implements operations.JobRunner and tracks peak concurrency
func (m *MockRunner) RunJob(ctx context.Context, job operations.Job) operations.JobResult {
	m.mu.Lock()
	m.active++
	if m.active > m.MaxSeen {
		m.MaxSeen = m.active
	}
	m.Jobs = append(m.Jobs, job.Dataset.Name)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.RunFunc != nil {
		return m.RunFunc(ctx, job)
	}
	return operations.JobResult{Dataset: job.Dataset.Name, Outcome: operations.Success()}
}

// Peak returns the highest number of jobs seen running at once
func (m *MockRunner) Peak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MaxSeen
}

// MockRecorder keeps recorded results in memory
type MockRecorder struct {
	Err error

	mu      sync.Mutex
	Results []operations.JobResult
	RunIDs  []string
}

// RecordResult implements operations.Recorder
func (m *MockRecorder) RecordResult(_ context.Context, runID string, result operations.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results = append(m.Results, result)
	m.RunIDs = append(m.RunIDs, runID)
	return m.Err
}

// StaticLoggers hands out the same logger for every dataset, or fails for
// the names listed in Fail.
type StaticLoggers struct {
	Logger *slog.Logger
	Fail   map[string]error
}

// Get implements operations.LoggerProvider
func (s *StaticLoggers) Get(name string) (*slog.Logger, error) {
	if err, ok := s.Fail[name]; ok {
		return nil, err
	}
	return s.Logger.With("dataset", name), nil
}
