package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/errors"
	testdb "github.com/teranos/tabula/internal/testing"
	"github.com/teranos/tabula/processing"
)

func TestRunStore_SaveListGet(t *testing.T) {
	store := NewRunStore(testdb.CreateTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	spec := testSpec()

	older := &Result{
		RunID: "run-old", Success: false, Message: "Aggregation failed",
		TotalChunks: 2, FailedChunks: 2, FailedChunkIndices: []int{0, 1},
		ErrorCategory: "aggregation", ErrorDetails: "no chunk produced data",
		StartedAt: base, FinishedAt: base.Add(time.Second),
	}
	newer := &Result{
		RunID: "run-new", Success: true, Message: "ok",
		TotalChunks: 3, ProcessedChunks: 3, SuccessRate: 100, OutputRows: 25,
		Artifact:  &artifact.Ref{ID: "a1", Path: "/tmp/a1.csv"},
		StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Second),
	}
	require.NoError(t, store.Save(ctx, "old.csv", &spec, older))
	require.NoError(t, store.Save(ctx, "new.csv", nil, newer))

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-new", list[0].RunID)
	assert.Equal(t, "/tmp/a1.csv", list[0].ArtifactPath)
	assert.Empty(t, list[0].FailedChunkIndices)
	assert.Equal(t, "{}", list[0].Spec)

	assert.Equal(t, []int{0, 1}, list[1].FailedChunkIndices)
	assert.Equal(t, "aggregation", list[1].ErrorCategory)
	assert.True(t, list[1].StartedAt.Equal(base))
	assert.Contains(t, list[1].Spec, `"chunk_size":10`)

	got, err := store.Get(ctx, "run-old")
	require.NoError(t, err)
	assert.Equal(t, "old.csv", got.Source)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunStore_SaveError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO pipeline_runs").WillReturnError(assert.AnError)

	err = NewRunStore(conn).Save(context.Background(), "x.csv", &processing.Spec{}, &Result{RunID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save run r1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
