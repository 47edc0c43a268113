package dataprocessing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for input files that are neither CSV nor XLSX
var ErrUnsupportedFormat = errors.New("unsupported file format")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ctxCheckInterval is how many rows are read between cancellation checks
const ctxCheckInterval = 4096

// FileExtractor reads a whole tabular file into a Table. The format is chosen
// from the extension: .csv (UTF-8, header row) or .xlsx (first sheet unless
// Sheet is set).
type FileExtractor struct {
	Sheet string
}

// NewFileExtractor creates an extractor with default settings
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

// Extract loads path into memory. Errors always mention the path.
func (e *FileExtractor) Extract(ctx context.Context, path string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		table *Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		table, err = readCSVFile(ctx, path)
	case ".xlsx", ".xlsm":
		table, err = e.readExcelFile(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		// os errors already name the path
		if strings.Contains(err.Error(), path) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

func readCSVFile(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadCSV(ctx, f)
}

// ReadCSV parses a UTF-8 CSV stream whose first record is the header.
// A leading BOM is skipped. Short records are padded with empty cells;
// records with more fields than the header are rejected.
func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := checkUTF8(header, 1); err != nil {
		return nil, err
	}

	columns := dedupeColumns(header)
	var rows [][]string
	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if len(record) > len(columns) {
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(columns), len(record))
		}
		if err := checkUTF8(record, line); err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}

	return NewTable(columns, rows), nil
}

func (e *FileExtractor) readExcelFile(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheet := e.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty: no header row", sheet)
	}

	columns := dedupeColumns(rows[0])
	data := make([][]string, 0, len(rows)-1)
	for i, r := range rows[1:] {
		if isBlank(r) {
			continue
		}
		if len(r) > len(columns) {
			return nil, fmt.Errorf("sheet %q row %d: expected %d fields, saw %d", sheet, i+2, len(columns), len(r))
		}
		data = append(data, r)
	}

	return NewTable(columns, data), nil
}

// dedupeColumns suffixes repeated header names: A, A -> A, A.1
func dedupeColumns(header []string) []string {
	used := make(map[string]bool, len(header))
	suffix := make(map[string]int)
	out := make([]string, len(header))
	for i, h := range header {
		name := h
		for used[name] {
			suffix[h]++
			name = h + "." + strconv.Itoa(suffix[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func checkUTF8(record []string, line int) error {
	for _, v := range record {
		if !utf8.ValidString(v) {
			return fmt.Errorf("line %d: invalid UTF-8 data", line)
		}
	}
	return nil
}

func isBlank(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
