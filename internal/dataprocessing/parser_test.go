package dataprocessing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileExtractor_CSV(t *testing.T) {
	path := writeFile(t, "internet_fijo.csv",
		"\xEF\xBB\xBFAÑO,MUNICIPIO,ACCESOS\n"+
			"2019,\"bogotá, d.c.\",10\n"+
			"2020,medellín\n"+
			"\n"+
			"2021,cali,3\n")

	table, err := NewFileExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AÑO", "MUNICIPIO", "ACCESOS"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"2019", "bogotá, d.c.", "10"}, table.Rows[0])
	assert.Equal(t, []string{"2020", "medellín", ""}, table.Rows[1])
}

func TestFileExtractor_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    filepath.Join(dir, "data", "raw", "nope.csv"),
			wantErr: "no such file",
		},
		{
			name:    "empty file",
			path:    writeFile(t, "empty.csv", ""),
			wantErr: "no header row",
		},
		{
			name:    "too many fields",
			path:    writeFile(t, "wide.csv", "a,b\n1,2\n1,2,3\n"),
			wantErr: "line 3: expected 2 fields, saw 3",
		},
		{
			name:    "invalid utf-8",
			path:    writeFile(t, "latin1.csv", "a,b\n1,Bogot\xe1\n"),
			wantErr: "invalid UTF-8",
		},
		{
			name:    "unsupported extension",
			path:    writeFile(t, "data.parquet", "x"),
			wantErr: "unsupported file format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileExtractor().Extract(context.Background(), tt.path)
			require.Error(t, err)
			assert.Equal(t, 1, strings.Count(err.Error(), tt.path), "path named exactly once: %s", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFileExtractor_Cancelled(t *testing.T) {
	path := writeFile(t, "x.csv", "a\n1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileExtractor().Extract(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCSV_DuplicateHeaders(t *testing.T) {
	table, err := ReadCSV(context.Background(), strings.NewReader("A,A,A.1,A\n1,2,3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A.1", "A.1.1", "A.2"}, table.Columns)
}

func TestFileExtractor_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"AÑO", "NRO_ANO", "COD_DANE_REV_IN"},
		{"2019", "2019", "5001"},
		{},
		{"2020", "2020"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	path := filepath.Join(t.TempDir(), "revistas.xlsx")
	require.NoError(t, f.SaveAs(path))

	table, err := NewFileExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AÑO", "NRO_ANO", "COD_DANE_REV_IN"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"2020", "2020", ""}, table.Rows[1])

	_, err = (&FileExtractor{Sheet: "Missing"}).Extract(context.Background(), path)
	assert.ErrorContains(t, err, `sheet "Missing"`)
}
