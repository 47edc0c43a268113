package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorenAcevedo/uao-etl/internal/operations"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "etl_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	ok := operations.JobResult{
		Dataset: "internet_fijo",
		Outcome: operations.Success(),
		State:   operations.JobStatusSucceeded,
		Stats: operations.JobStats{
			RowsRead:    10,
			RowsWritten: 7,
			OutputPath:  "data/processed/internet_fijo_procesado_20240305_143001.csv",
			StartedAt:   start,
			FinishedAt:  start.Add(1500 * time.Millisecond),
		},
	}
	failed := operations.JobResult{
		Dataset: "revistas_indexadas",
		Outcome: operations.Failure("extraction failed: open data/raw/revistas_indexadas.csv: no such file or directory"),
		State:   operations.JobStatusFailed,
		Stats:   operations.JobStats{StartedAt: start, FinishedAt: start},
	}

	require.NoError(t, s.RecordResult(ctx, "run-1", ok))
	require.NoError(t, s.RecordResult(ctx, "run-1", failed))

	records, err := s.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := records[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "internet_fijo", got.Dataset)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, "succeeded", got.State)
	assert.Equal(t, 10, got.RowsRead)
	assert.Equal(t, 7, got.RowsWritten)
	assert.Equal(t, ok.Stats.OutputPath, got.OutputPath)
	assert.True(t, start.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.FinishedAt.Sub(got.StartedAt))

	assert.Equal(t, "failure", records[1].Status)
	assert.Contains(t, records[1].Error, "revistas_indexadas.csv")
}

func TestStore_ListByDataset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, 500 * time.Millisecond, time.Second, 2 * time.Hour} {
		rec := &RunRecord{
			RunID:      "run",
			Dataset:    "cobertura_movil",
			Status:     "success",
			RowsRead:   i,
			StartedAt:  base.Add(offset),
			FinishedAt: base.Add(offset),
		}
		require.NoError(t, s.Record(ctx, rec))
	}
	require.NoError(t, s.Record(ctx, &RunRecord{RunID: "run", Dataset: "other", Status: "success", StartedAt: base, FinishedAt: base}))

	records, err := s.ListByDataset(ctx, "cobertura_movil", 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{records[0].RowsRead, records[1].RowsRead, records[2].RowsRead})

	none, err := s.ListByDataset(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var mode string
	require.NoError(t, s.conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, &RunRecord{RunID: "r", Dataset: "d", Status: "success", StartedAt: time.Now(), FinishedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.ListByDataset(ctx, "d", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

var _ operations.Recorder = (*Store)(nil)
