package artifact

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New([]string{"name", "note"}, [][]string{
		{"Ada", "likes, commas"},
		{"李雷", ""},
	})
	require.NoError(t, err)
	return tbl
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "artifacts"), 0o755)
	require.NoError(t, err)
	return s
}

func TestSaveCSV(t *testing.T) {
	s := newStore(t)

	ref, err := s.Save(sampleTable(t), "")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, ref.Format)
	assert.Equal(t, 2, ref.Rows)
	assert.Equal(t, "processed_result.csv", ref.DownloadName())

	f, got, err := s.Open(ref.ID)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, ref.Path, got.Path)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "name,note\nAda,\"likes, commas\"\n李雷,\n", string(data))
}

func TestSaveXLSX(t *testing.T) {
	s := newStore(t)

	ref, err := s.Save(sampleTable(t), "XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, ref.Format)
	assert.Contains(t, ref.ContentType(), "spreadsheetml")

	f, err := excelize.OpenFile(ref.Path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "note"}, rows[0])
	assert.Equal(t, []string{"Ada", "likes, commas"}, rows[1])
	assert.Equal(t, "李雷", rows[2][0])
}

func TestSave_UnsupportedFormat(t *testing.T) {
	_, err := newStore(t).Save(sampleTable(t), "parquet")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestLookupErrors(t *testing.T) {
	s := newStore(t)

	_, err := s.Lookup("../../etc/passwd")
	assert.True(t, errors.Is(err, ErrInvalidID))

	_, err = s.Lookup(uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemove(t *testing.T) {
	s := newStore(t)
	ref, err := s.Save(sampleTable(t), FormatCSV)
	require.NoError(t, err)

	require.NoError(t, s.Remove(ref.ID))
	_, err = os.Stat(ref.Path)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, errors.Is(s.Remove(ref.ID), ErrNotFound))
}

func TestSweep(t *testing.T) {
	s := newStore(t)
	old, err := s.Save(sampleTable(t), FormatCSV)
	require.NoError(t, err)
	fresh, err := s.Save(sampleTable(t), FormatXLSX)
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, stale, stale))

	unrelated := filepath.Join(s.Dir(), "notes.csv")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, stale, stale))

	removed, err := s.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Lookup(old.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Lookup(fresh.ID)
	assert.NoError(t, err)
	assert.FileExists(t, unrelated)
}
