package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paths contains every resolved file system location used by a run.
// All fields are absolute.
type Paths struct {
	BaseDir      string
	RawDir       string
	ProcessedDir string
	LogsDir      string
	HistoryDB    string
	MetricsFile  string
	AppLogFile   string
}

// GetPaths resolves the configured paths against BaseDir, falling back to
// the current working directory when BaseDir is empty.
func GetPaths(cfg *Config) (*Paths, error) {
	base := cfg.Paths.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}

	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory %s: %w", base, err)
	}

	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	return &Paths{
		BaseDir:      base,
		RawDir:       resolve(cfg.Paths.RawDir),
		ProcessedDir: resolve(cfg.Paths.ProcessedDir),
		LogsDir:      resolve(cfg.Paths.LogsDir),
		HistoryDB:    resolve(cfg.Paths.HistoryDB),
		MetricsFile:  resolve(cfg.Paths.MetricsFile),
		AppLogFile:   resolve(cfg.Logging.FilePath),
	}, nil
}

// Resolve joins a relative path onto BaseDir. Absolute paths are returned as is.
func (p *Paths) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.BaseDir, path)
}

// EnsureDirectories creates the output directories if they don't exist.
// The raw directory is input only and is never created.
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.ProcessedDir,
		p.LogsDir,
	}
	if p.HistoryDB != "" {
		directories = append(directories, filepath.Dir(p.HistoryDB))
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// GetRawPath returns the path of a raw input file
func (p *Paths) GetRawPath(filename string) string {
	return filepath.Join(p.RawDir, filename)
}

// GetDatasetLogPath returns the log file for a dataset (e.g., logs/etl_internet_fijo.log)
func (p *Paths) GetDatasetLogPath(dataset string) string {
	return filepath.Join(p.LogsDir, DatasetLogPrefix+dataset+".log")
}

// GetProcessedPath returns the versioned output path for a dataset, e.g.
// data/processed/internet_fijo_procesado_20240115_093000.csv. Only the base
// name of output is kept; any directory or extension it carries is dropped.
func (p *Paths) GetProcessedPath(output string, at time.Time) string {
	return filepath.Join(p.ProcessedDir, OutputFileName(output, at))
}

// OutputFileName builds "<base>_<YYYYMMDD_HHMMSS>.csv" from an output name.
func OutputFileName(output string, at time.Time) string {
	base := filepath.Base(output)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s.csv", base, at.Format(OutputTimestampLayout))
}

// LogPathResolution logs the resolved paths for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		return
	}

	logger.Debug("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("raw", p.RawDir),
			slog.String("processed", p.ProcessedDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("files",
			slog.String("history_db", p.HistoryDB),
			slog.String("metrics", p.MetricsFile),
			slog.String("app_log", p.AppLogFile),
		))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
