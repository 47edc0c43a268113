package operations_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorenAcevedo/uao-etl/internal/config"
	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
	"github.com/SorenAcevedo/uao-etl/internal/exporter"
	"github.com/SorenAcevedo/uao-etl/internal/operations"
	"github.com/SorenAcevedo/uao-etl/internal/operations/testutil"
)

const internetFijoCSV = "AÑO,TRIMESTRE,COD_DEPARTAMENTO,DEPARTAMENTO,COD_MUNICIPIO,MUNICIPIO,ACCESOS\n" +
	"2014,4,5,ANTIOQUIA,5001,MEDELLÍN,10\n" +
	"2015,1,5,ANTIOQUIA,5001,MEDELLÍN,11\n" +
	"2022,2,11,BOGOTÁ D.C.,11001,BOGOTÁ D.C.,12\n" +
	"2023,1,11,BOGOTÁ D.C.,11001,BOGOTÁ D.C.,13\n" +
	"2019,3,0,COLOMBIA,0,TOTAL,99\n"

const internetFijoProcessed = "AÑO,TRIMESTRE,COD_DEPARTAMENTO,DEPARTAMENTO,COD_MUNICIPIO,MUNICIPIO,ACCESOS,Llave,AÑO_TRIMESTRE\n" +
	"2015,1,5,antioquia,5001,medellin,11,0005_5001,2015_1\n" +
	"2022,2,11,bogota d.c.,11001,bogota d.c.,12,0011_11001,2022_2\n"

// steppingClock returns a clock that advances one second per call
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

type fixture struct {
	paths  *config.Paths
	runner *operations.Runner
	logs   *bytes.Buffer
	logger *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	paths := &config.Paths{
		BaseDir:      base,
		RawDir:       filepath.Join(base, "data", "raw"),
		ProcessedDir: filepath.Join(base, "data", "processed"),
		LogsDir:      filepath.Join(base, "logs"),
	}
	require.NoError(t, os.MkdirAll(paths.RawDir, 0755))

	logs := &bytes.Buffer{}
	clock := steppingClock(time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC))
	return &fixture{
		paths:  paths,
		runner: operations.NewRunner(dataprocessing.NewFileExtractor(), exporter.NewCSVWriter(nil), paths, operations.WithClock(clock)),
		logs:   logs,
		logger: slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func (f *fixture) writeRaw(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.paths.RawDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *fixture) processedFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.paths.ProcessedDir, "*.csv"))
	require.NoError(t, err)
	return matches
}

func internetFijoDataset(input string) operations.DatasetConfig {
	return operations.DatasetConfig{
		Name:       "internet_fijo",
		InputPath:  input,
		OutputName: "internet_fijo_procesado",
		Transforms: []dataprocessing.Transform{
			dataprocessing.InternetFijo(),
			dataprocessing.FilterByYearRange(2015, 2022),
		},
	}
}

func TestRunJob_Success(t *testing.T) {
	f := newFixture(t)
	input := f.writeRaw(t, "internet_fijo.csv", internetFijoCSV)

	result := f.runner.RunJob(context.Background(), operations.Job{
		Dataset: internetFijoDataset(input),
		Logger:  f.logger,
		RunID:   "run-1",
	})

	require.True(t, result.Outcome.OK(), result.Outcome.Message)
	assert.Equal(t, "internet_fijo", result.Dataset)
	assert.Equal(t, operations.JobStatusSucceeded, result.State)
	assert.NoError(t, result.Err)

	wantPath := filepath.Join(f.paths.ProcessedDir, "internet_fijo_procesado_20240305_143001.csv")
	assert.Equal(t, wantPath, result.Stats.OutputPath)
	assert.Equal(t, 5, result.Stats.RowsRead)
	assert.Equal(t, 2, result.Stats.RowsWritten)
	require.Len(t, result.Stats.Transforms, 2)
	assert.Equal(t, operations.TransformStat{Name: dataprocessing.TransformInternetFijo, RowsBefore: 5, RowsAfter: 4},
		withoutDuration(result.Stats.Transforms[0]))
	assert.Equal(t, operations.TransformStat{Name: dataprocessing.TransformFilterByYearRange, RowsBefore: 4, RowsAfter: 2},
		withoutDuration(result.Stats.Transforms[1]))
	assert.Equal(t, 2*time.Second, result.Stats.Duration())

	content, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	assert.Equal(t, internetFijoProcessed, string(content))

	logs := f.logs.String()
	for _, msg := range []string{"etl started", "data extracted", "transform applied", "data saved"} {
		assert.Contains(t, logs, msg)
	}
	assert.Contains(t, logs, "rows_before=4 rows_after=2")
	assert.NotContains(t, logs, "level=ERROR")
}

func withoutDuration(s operations.TransformStat) operations.TransformStat {
	s.Duration = 0
	return s
}

func TestRunJob_MissingInput(t *testing.T) {
	f := newFixture(t)
	missing := filepath.Join(f.paths.RawDir, "internet_fijo.csv")

	result := f.runner.RunJob(context.Background(), operations.Job{
		Dataset: internetFijoDataset(missing),
		Logger:  f.logger,
	})

	assert.False(t, result.Outcome.OK())
	assert.Equal(t, operations.StatusFailure, result.Outcome.Status)
	assert.True(t, strings.HasPrefix(result.Outcome.Message, "extraction failed: open "+missing+": "), result.Outcome.Message)
	assert.Equal(t, 1, strings.Count(result.Outcome.Message, missing), "path named exactly once")
	assert.Equal(t, operations.ErrorTypeExtraction, operations.GetErrorType(result.Err))
	assert.Equal(t, operations.JobStatusFailed, result.State)
	assert.ErrorIs(t, result.Err, os.ErrNotExist)

	assert.Empty(t, f.processedFiles(t))
	assert.Contains(t, f.logs.String(), "etl failed")
	assert.Contains(t, f.logs.String(), "level=ERROR")
	assert.Contains(t, f.logs.String(), "step=extract")
}

func TestRunJob_MissingColumnWritesNothing(t *testing.T) {
	f := newFixture(t)
	input := f.writeRaw(t, "revistas_indexadas.csv", "NME_REVISTA,COD_DANE_REV_IN\nRevista,5001\n")

	result := f.runner.RunJob(context.Background(), operations.Job{
		Dataset: operations.DatasetConfig{
			Name:       "revistas_indexadas",
			InputPath:  input,
			OutputName: "revistas_indexadas_procesado",
			Transforms: []dataprocessing.Transform{
				dataprocessing.RevistasIndexadas(),
				dataprocessing.FilterByYearRange(2015, 2022),
			},
		},
		Logger: f.logger,
	})

	require.False(t, result.Outcome.OK())
	assert.Contains(t, result.Outcome.Message, "missing column")
	assert.Contains(t, result.Outcome.Message, dataprocessing.TransformRevistasIndexadas)
	assert.ErrorIs(t, result.Err, dataprocessing.ErrMissingColumn)
	assert.Equal(t, operations.ErrorTypeTransform, operations.GetErrorType(result.Err))
	assert.Empty(t, f.processedFiles(t), "no partial output on transform failure")
	assert.Contains(t, f.logs.String(), "transform="+dataprocessing.TransformRevistasIndexadas)
}

func TestRunJob_TransformsRunInOrder(t *testing.T) {
	var (
		trace []string
		mu    sync.Mutex
	)
	table := dataprocessing.NewTable([]string{"AÑO"}, [][]string{{"2015"}, {"2016"}, {"2017"}})
	extractor := &testutil.MockExtractor{Tables: map[string]*dataprocessing.Table{"in.csv": table}}
	loader := &testutil.MockLoader{}

	dropFirst := func(t *dataprocessing.Table) (*dataprocessing.Table, error) {
		out := t.Clone()
		out.Rows = out.Rows[1:]
		return out, nil
	}

	runner := operations.NewRunner(extractor, loader, &config.Paths{ProcessedDir: "/out"})
	result := runner.RunJob(context.Background(), operations.Job{
		Dataset: operations.DatasetConfig{
			Name:       "ordered",
			InputPath:  "in.csv",
			OutputName: "ordered",
			Transforms: []dataprocessing.Transform{
				testutil.NewRecordingTransform("first", &trace, &mu, dropFirst),
				testutil.NewRecordingTransform("second", &trace, &mu, nil),
				testutil.NewRecordingTransform("third", &trace, &mu, dropFirst),
			},
		},
	})

	require.True(t, result.Outcome.OK(), result.Outcome.Message)
	assert.Equal(t, []string{"first", "second", "third"}, trace)

	calls := loader.LoadCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, [][]string{{"2017"}}, calls[0].Table.Rows)
	assert.Equal(t, "/out", filepath.Dir(calls[0].Path))
	assert.Equal(t, 3, table.Len(), "extracted table is not modified")
}

func TestRunJob_RecoversPanics(t *testing.T) {
	table := dataprocessing.NewTable([]string{"a"}, [][]string{{"1"}})

	tests := []struct {
		name     string
		extract  func(context.Context, string) (*dataprocessing.Table, error)
		apply    func(*dataprocessing.Table) (*dataprocessing.Table, error)
		wantType operations.ErrorType
		wantStep string
	}{
		{
			name: "transform panic",
			apply: func(*dataprocessing.Table) (*dataprocessing.Table, error) {
				panic("boom")
			},
			wantType: operations.ErrorTypeTransform,
			wantStep: operations.StepTransform,
		},
		{
			name: "extractor panic",
			extract: func(context.Context, string) (*dataprocessing.Table, error) {
				panic("disk on fire")
			},
			wantType: operations.ErrorTypeUnexpected,
			wantStep: operations.StepExtract,
		},
		{
			name: "transform returns nil table",
			apply: func(*dataprocessing.Table) (*dataprocessing.Table, error) {
				return nil, nil
			},
			wantType: operations.ErrorTypeTransform,
			wantStep: operations.StepTransform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &testutil.MockExtractor{
				Tables:      map[string]*dataprocessing.Table{"in.csv": table},
				ExtractFunc: tt.extract,
			}
			loader := &testutil.MockLoader{}
			runner := operations.NewRunner(extractor, loader, &config.Paths{ProcessedDir: t.TempDir()})

			var result operations.JobResult
			require.NotPanics(t, func() {
				result = runner.RunJob(context.Background(), operations.Job{
					Dataset: operations.DatasetConfig{
						Name:       "x",
						InputPath:  "in.csv",
						OutputName: "x",
						Transforms: []dataprocessing.Transform{testutil.NewRecordingTransform("bad", nil, nil, tt.apply)},
					},
				})
			})

			assert.False(t, result.Outcome.OK())
			assert.Equal(t, operations.JobStatusFailed, result.State)
			assert.Equal(t, tt.wantType, operations.GetErrorType(result.Err))

			var pErr *operations.PipelineError
			require.True(t, errors.As(result.Err, &pErr))
			assert.Equal(t, tt.wantStep, pErr.Step)
			assert.Empty(t, loader.LoadCalls())
		})
	}
}

func TestRunJob_LoadFailure(t *testing.T) {
	table := dataprocessing.NewTable([]string{"a"}, [][]string{{"1"}})
	extractor := &testutil.MockExtractor{Tables: map[string]*dataprocessing.Table{"in.csv": table}}
	loader := &testutil.MockLoader{Err: errors.New("permission denied")}
	runner := operations.NewRunner(extractor, loader, &config.Paths{ProcessedDir: "/readonly"},
		operations.WithClock(func() time.Time { return time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC) }))

	result := runner.RunJob(context.Background(), operations.Job{
		Dataset: operations.DatasetConfig{
			Name:       "grupo_investigacion",
			InputPath:  "in.csv",
			OutputName: "grupo_investigacion_procesado",
			Transforms: []dataprocessing.Transform{testutil.NewRecordingTransform("noop", nil, nil, nil)},
		},
	})

	require.False(t, result.Outcome.OK())
	assert.Equal(t, operations.ErrorTypeLoad, operations.GetErrorType(result.Err))
	assert.Contains(t, result.Outcome.Message, filepath.Join("/readonly", "grupo_investigacion_procesado_20230102_030405.csv"))
	assert.Contains(t, result.Outcome.Message, "permission denied")
	assert.Equal(t, 1, result.Stats.RowsRead)
	assert.Zero(t, result.Stats.RowsWritten)
}

func TestRunJob_RerunProducesNewIdenticalFile(t *testing.T) {
	f := newFixture(t)
	input := f.writeRaw(t, "internet_fijo.csv", internetFijoCSV)
	job := operations.Job{Dataset: internetFijoDataset(input), Logger: f.logger}

	first := f.runner.RunJob(context.Background(), job)
	second := f.runner.RunJob(context.Background(), job)
	require.True(t, first.Outcome.OK())
	require.True(t, second.Outcome.OK())

	assert.NotEqual(t, first.Stats.OutputPath, second.Stats.OutputPath)
	assert.Len(t, f.processedFiles(t), 2)

	a, err := os.ReadFile(first.Stats.OutputPath)
	require.NoError(t, err)
	b, err := os.ReadFile(second.Stats.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
