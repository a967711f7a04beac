package chunk

import "github.com/teranos/tabula/table"

// Outcome is the result of processing one chunk: either rows or a failure
// reason. It is produced once per chunk.
type Outcome struct {
	Index    int
	Rows     *table.Table
	Reason   string
	Err      error
	Attempts int
}

// Succeeded builds a success outcome.
func Succeeded(index int, rows *table.Table, attempts int) Outcome {
	return Outcome{Index: index, Rows: rows, Attempts: attempts}
}

// Failed builds a failure outcome. Reason defaults to err's message.
func Failed(index int, reason string, err error, attempts int) Outcome {
	if reason == "" && err != nil {
		reason = err.Error()
	}
	return Outcome{Index: index, Reason: reason, Err: err, Attempts: attempts}
}

// OK reports whether the chunk produced rows.
func (o Outcome) OK() bool { return o.Rows != nil }
