package table

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/teranos/tabula/errors"
)

// WriteCSV writes the header and rows as comma-separated text. Values
// containing commas, quotes or newlines are quoted.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.columns); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i+1)
		}
	}
	writer.Flush()
	return writer.Error()
}

// CSV renders the table as comma-separated text.
func (t *Table) CSV() string {
	var sb strings.Builder
	// strings.Builder never fails a write
	_ = t.WriteCSV(&sb)
	return sb.String()
}
