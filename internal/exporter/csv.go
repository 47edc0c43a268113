package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SorenAcevedo/uao-etl/internal/config"
	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes tables as UTF-8 CSV files
type CSVWriter struct {
	paths *config.Paths
}

// NewCSVWriter creates a new CSV writer. Relative destinations are resolved
// against paths.ProcessedDir; paths may be nil when only absolute paths are used.
func NewCSVWriter(paths *config.Paths) *CSVWriter {
	return &CSVWriter{paths: paths}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// Load writes table to path with a header row and no index column. The
// parent directory is created when missing. Errors mention the destination.
func (w *CSVWriter) Load(ctx context.Context, table *dataprocessing.Table, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("failed to save %s: nil table", path)
	}

	if err := w.WriteCSV(path, WriteOptions{
		Headers: table.Columns,
		Records: table.Rows,
	}); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WriteCSV writes headers and records to filePath. The data goes to a
// temporary file in the same directory that is renamed into place once
// complete, so a failed write never leaves a partial file behind.
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) (err error) {
	fullPath := w.resolvePath(filePath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if options.BOMPrefix {
		if _, err := tmp.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(tmp)

	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}

// resolvePath returns absolute paths as is and joins relative ones onto the
// processed directory
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.paths == nil {
		return filePath
	}
	return filepath.Join(w.paths.ProcessedDir, filePath)
}
