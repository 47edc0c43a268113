// Package exporter persists processed tables.
//
// CSVWriter is the load step of the pipeline: it writes a table as a UTF-8
// CSV file with a header row and no index column, creating the destination
// directory when needed. Files are written to a temporary name and renamed
// into place, so readers never observe a half-written output.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(paths)
//	out := paths.GetProcessedPath("internet_fijo_procesado", time.Now())
//	if err := w.Load(ctx, table, out); err != nil {
//	    return err
//	}
package exporter
