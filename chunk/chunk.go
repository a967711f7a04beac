// Package chunk splits a table into bounded work units and sizes them
// against the generation service's input budget.
package chunk

import (
	"unicode/utf8"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/table"
)

// ErrInvalidChunkSize is returned for a non-positive chunk size.
var ErrInvalidChunkSize = errors.Sentinel("chunk size must be positive", errors.ErrConfig)

// ErrChunkTooLarge is returned by Sizing.Err when a chunk exceeds the budget.
var ErrChunkTooLarge = errors.Sentinel("chunk exceeds size budget", errors.ErrConfig)

// Chunk is a contiguous slice of the source table. Index is its 0-based
// position and the only ordering key used at aggregation.
type Chunk struct {
	Index int
	Data  *table.Table
}

// Number is the 1-based position used in human-facing messages.
func (c Chunk) Number() int { return c.Index + 1 }

// Count returns ceil(rows / size).
func Count(rows, size int) int {
	if size <= 0 || rows <= 0 {
		return 0
	}
	return (rows + size - 1) / size
}

// Split cuts t into ceil(rows/size) chunks of at most size rows, keeping row
// order. An empty table yields no chunks.
func Split(t *table.Table, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidChunkSize, "got %d", size)
	}
	rows := t.NumRows()
	chunks := make([]Chunk, 0, Count(rows, size))
	for start := 0; start < rows; start += size {
		chunks = append(chunks, Chunk{
			Index: start / size,
			Data:  t.Slice(start, start+size),
		})
	}
	return chunks, nil
}

// EstimateSerializedSize counts the characters of the chunk rendered as
// delimited text, header included. One unit per character.
func EstimateSerializedSize(data *table.Table) int {
	return utf8.RuneCountInString(data.CSV())
}

// Sizing is the result of a pre-flight chunk size check.
type Sizing struct {
	Valid     bool
	Estimated int
	MaxSize   int
	Suggested int // set only when Valid is false
}

// Err is nil for a valid sizing, otherwise ErrChunkTooLarge with the
// suggested chunk size as a hint.
func (s Sizing) Err() error {
	if s.Valid {
		return nil
	}
	err := errors.Wrapf(ErrChunkTooLarge, "first chunk is %d characters, limit is %d", s.Estimated, s.MaxSize)
	return errors.WithHintf(err, "use chunk_size %d", s.Suggested)
}

// ValidateChunkSize estimates the first chunk's size. When it exceeds
// maxSize the suggestion is floor(size*maxSize/estimated*0.8), at least 1.
// The suggestion is advisory.
func ValidateChunkSize(t *table.Table, size, maxSize int) (Sizing, error) {
	if size <= 0 {
		return Sizing{}, errors.Wrapf(ErrInvalidChunkSize, "got %d", size)
	}
	if t.NumRows() == 0 {
		return Sizing{}, errors.Wrap(table.ErrEmptyInput, "nothing to size")
	}

	estimated := EstimateSerializedSize(t.Head(size))
	s := Sizing{Valid: true, Estimated: estimated, MaxSize: maxSize}
	if estimated <= maxSize {
		return s, nil
	}

	s.Valid = false
	s.Suggested = int(float64(size) * float64(maxSize) / float64(estimated) * 0.8)
	if s.Suggested < 1 {
		s.Suggested = 1
	}
	return s, nil
}
