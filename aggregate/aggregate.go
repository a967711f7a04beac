// Package aggregate collects per-chunk results and concatenates them into
// the final table in chunk index order.
package aggregate

import (
	"slices"
	"sync"

	"github.com/teranos/tabula/chunk"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/table"
)

var (
	// ErrNoData means no chunk survived.
	ErrNoData = errors.Sentinel("no chunk produced data", errors.ErrAggregation)

	// ErrSchemaMismatch means the concatenated table does not have exactly
	// the expected columns.
	ErrSchemaMismatch = errors.Sentinel("aggregated schema mismatch", errors.ErrAggregation)

	// ErrAlreadyRecorded is returned when a chunk index is recorded twice.
	ErrAlreadyRecorded = errors.New("chunk already recorded")

	// ErrUnknownChunk is returned for an index outside the run.
	ErrUnknownChunk = errors.New("chunk index out of range")
)

// NotProcessed is the failure reason of chunks never recorded.
const NotProcessed = "not processed"

// Aggregator is safe for concurrent Record calls.
type Aggregator struct {
	mu       sync.Mutex
	expected []string
	total    int
	results  map[int]*table.Table
	failed   map[int]string
}

// New creates an aggregator for total chunks whose output must have exactly
// the expected columns.
func New(expected []string, total int) *Aggregator {
	return &Aggregator{
		expected: slices.Clone(expected),
		total:    total,
		results:  make(map[int]*table.Table),
		failed:   make(map[int]string),
	}
}

// Record stores a chunk outcome. Successful rows are projected onto the
// expected columns: absent ones are filled with empty values, surplus ones
// dropped, and missing-value markers normalised to "".
func (a *Aggregator) Record(o chunk.Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if o.Index < 0 || o.Index >= a.total {
		return errors.Wrapf(ErrUnknownChunk, "index %d of %d", o.Index, a.total)
	}
	if a.recorded(o.Index) {
		return errors.Wrapf(ErrAlreadyRecorded, "index %d", o.Index)
	}

	if !o.OK() {
		a.failed[o.Index] = o.Reason
		return nil
	}

	projected, err := o.Rows.Project(a.expected, table.NormalizeMissing)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "reconcile chunk %d", o.Index+1), errors.ErrAggregation)
	}
	a.results[o.Index] = projected
	return nil
}

func (a *Aggregator) recorded(index int) bool {
	if _, ok := a.results[index]; ok {
		return true
	}
	_, ok := a.failed[index]
	return ok
}

// Pending returns the indices not yet recorded, ascending.
func (a *Aggregator) Pending() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []int
	for i := 0; i < a.total; i++ {
		if !a.recorded(i) {
			out = append(out, i)
		}
	}
	return out
}

// Counts returns processed and failed chunk counts so far.
func (a *Aggregator) Counts() (processed, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results), len(a.failed)
}

// Summary is the outcome of Finalize.
type Summary struct {
	Table         *table.Table
	TotalChunks   int
	Processed     int
	Failed        int
	FailedIndices []int
	Reasons       map[int]string
	SuccessRate   float64 // percent
}

// Finalize concatenates the successful chunks by ascending index. Chunks
// never recorded count as failed. The summary is returned with counts even
// when Finalize fails.
func (a *Aggregator) Finalize() (*Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &Summary{
		TotalChunks: a.total,
		Processed:   len(a.results),
		Reasons:     make(map[int]string),
	}
	for i := 0; i < a.total; i++ {
		if _, ok := a.results[i]; ok {
			continue
		}
		reason, ok := a.failed[i]
		if !ok {
			reason = NotProcessed
		}
		s.FailedIndices = append(s.FailedIndices, i)
		s.Reasons[i] = reason
	}
	s.Failed = len(s.FailedIndices)
	if done := s.Processed + s.Failed; done > 0 {
		s.SuccessRate = float64(s.Processed) / float64(done) * 100
	}

	if s.Processed == 0 {
		return s, errors.Wrapf(ErrNoData, "all %d chunks failed", s.Failed)
	}

	indices := make([]int, 0, len(a.results))
	for i := range a.results {
		indices = append(indices, i)
	}
	slices.Sort(indices)

	var rows [][]string
	for _, i := range indices {
		part := a.results[i]
		if !slices.Equal(part.Columns(), a.expected) {
			return s, errors.Wrapf(ErrSchemaMismatch, "chunk %d has columns %v", i+1, part.Columns())
		}
		rows = append(rows, part.Rows()...)
	}

	final, err := table.New(a.expected, rows)
	if err != nil {
		return s, errors.Mark(errors.Wrap(err, "assemble final table"), errors.ErrAggregation)
	}
	if final.NumColumns() != len(a.expected) {
		return s, errors.Wrapf(ErrSchemaMismatch, "expected %d columns, got %d", len(a.expected), final.NumColumns())
	}
	s.Table = final
	return s, nil
}
