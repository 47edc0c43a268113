package infrastructure

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/SorenAcevedo/uao-etl/internal/config"
)

// DatasetLoggers hands out one append-only logger per dataset, each writing
// to <dir>/etl_<name>.log. A logger is created on first request and reused
// afterwards; Close releases every file opened so far.
type DatasetLoggers struct {
	dir    string
	format string
	level  slog.Level

	mu      sync.Mutex
	files   map[string]*os.File
	loggers map[string]*slog.Logger
}

// NewDatasetLoggers creates a factory for dataset log sinks under dir.
// Format and level are taken from cfg (DatasetFormat, Level).
func NewDatasetLoggers(dir string, cfg config.LoggingConfig) *DatasetLoggers {
	return &DatasetLoggers{
		dir:     dir,
		format:  cfg.DatasetFormat,
		level:   parseLogLevel(cfg.Level),
		files:   make(map[string]*os.File),
		loggers: make(map[string]*slog.Logger),
	}
}

// Path returns the log file used for a dataset
func (d *DatasetLoggers) Path(name string) string {
	return filepath.Join(d.dir, config.DatasetLogPrefix+name+".log")
}

// Get returns the logger for a dataset, creating its file when needed.
// A newly created file starts with a single "# ETL log for <name>" line.
func (d *DatasetLoggers) Get(name string) (*slog.Logger, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid dataset name %q for log file", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if logger, ok := d.loggers[name]; ok {
		return logger, nil
	}

	file, err := openDatasetLogFile(d.Path(name), name)
	if err != nil {
		return nil, err
	}

	handler := newHandler(d.format, file, &slog.HandlerOptions{Level: d.level})
	logger := slog.New(&traceHandler{Handler: handler}).With(slog.String("dataset", name))

	d.files[name] = file
	d.loggers[name] = logger
	return logger, nil
}

// Close closes every log file handed out so far
func (d *DatasetLoggers) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, f := range d.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log for %s: %w", name, err))
		}
		delete(d.files, name)
		delete(d.loggers, name)
	}
	return errors.Join(errs...)
}

// openDatasetLogFile opens path for appending. The header line is written
// only by the call that creates the file.
func openDatasetLogFile(path, name string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(path), err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_APPEND|os.O_WRONLY, 0644)
	if err == nil {
		if _, err := fmt.Fprintf(file, "# ETL log for %s\n", name); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write log header %s: %w", path, err)
		}
		return file, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	return openLogFile(path)
}
