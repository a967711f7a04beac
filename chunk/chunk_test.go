package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/table"
)

func numbered(t *testing.T, rows int) *table.Table {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("n,label\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%d,row-%d\n", i, i)
	}
	tbl, err := table.Load(sb.String())
	require.NoError(t, err)
	return tbl
}

func TestSplit_Properties(t *testing.T) {
	for _, rows := range []int{1, 2, 9, 10, 11, 25, 100} {
		for _, size := range []int{1, 3, 10, 1000} {
			t.Run(fmt.Sprintf("rows=%d size=%d", rows, size), func(t *testing.T) {
				tbl := numbered(t, rows)
				chunks, err := Split(tbl, size)
				require.NoError(t, err)

				assert.Len(t, chunks, (rows+size-1)/size)
				assert.Equal(t, Count(rows, size), len(chunks))

				var rebuilt []string
				for i, c := range chunks {
					assert.Equal(t, i, c.Index)
					assert.LessOrEqual(t, c.Data.NumRows(), size)
					assert.Equal(t, tbl.Columns(), c.Data.Columns())
					rebuilt = append(rebuilt, c.Data.Column("n")...)
				}
				assert.Equal(t, tbl.Column("n"), rebuilt)
			})
		}
	}
}

func TestSplit_TwentyFiveByTen(t *testing.T) {
	chunks, err := Split(numbered(t, 25), 10)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, 10, chunks[0].Data.NumRows())
	assert.Equal(t, 10, chunks[1].Data.NumRows())
	assert.Equal(t, 5, chunks[2].Data.NumRows())
	assert.Equal(t, 3, chunks[2].Number())
}

func TestSplit_EmptyTable(t *testing.T) {
	empty, err := table.New([]string{"a"}, nil)
	require.NoError(t, err)

	chunks, err := Split(empty, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_InvalidSize(t *testing.T) {
	_, err := Split(numbered(t, 3), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestEstimateSerializedSize(t *testing.T) {
	tbl, err := table.Load("名,v\n甲,1\n")
	require.NoError(t, err)
	// characters, not bytes
	assert.Equal(t, len([]rune("名,v\n甲,1\n")), EstimateSerializedSize(tbl))
}

func TestValidateChunkSize(t *testing.T) {
	tbl := numbered(t, 50)

	ok, err := ValidateChunkSize(tbl, 10, 3000)
	require.NoError(t, err)
	assert.True(t, ok.Valid)
	assert.Zero(t, ok.Suggested)

	estimated := EstimateSerializedSize(tbl.Head(40))
	tight, err := ValidateChunkSize(tbl, 40, 100)
	require.NoError(t, err)
	assert.False(t, tight.Valid)
	assert.Equal(t, estimated, tight.Estimated)
	assert.Equal(t, int(40.0*100/float64(estimated)*0.8), tight.Suggested)

	floor, err := ValidateChunkSize(tbl, 40, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, floor.Suggested)

	assert.NoError(t, ok.Err())
	sizingErr := tight.Err()
	assert.True(t, errors.Is(sizingErr, ErrChunkTooLarge))
	assert.True(t, errors.Is(sizingErr, errors.ErrConfig))
	assert.Contains(t, errors.FlattenHints(sizingErr), fmt.Sprintf("use chunk_size %d", tight.Suggested))
}

func TestValidateChunkSize_Empty(t *testing.T) {
	empty, err := table.New([]string{"a"}, nil)
	require.NoError(t, err)

	_, err = ValidateChunkSize(empty, 10, 100)
	assert.True(t, errors.Is(err, table.ErrEmptyInput))
}

func TestOutcome(t *testing.T) {
	rows := numbered(t, 2)
	ok := Succeeded(1, rows, 2)
	assert.True(t, ok.OK())

	bad := Failed(2, "", errors.New("retry budget exhausted"), 3)
	assert.False(t, bad.OK())
	assert.Equal(t, "retry budget exhausted", bad.Reason)
	assert.Equal(t, 3, bad.Attempts)
}
