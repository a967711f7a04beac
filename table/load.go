package table

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/teranos/tabula/errors"
)

const utf8BOM = "\uFEFF"

// Load parses comma-separated text with a header row into a Table.
// Blank lines are skipped. Quoting is strict: a stray or unterminated quote
// fails with ErrMalformedInput. A header with no data rows fails with
// ErrEmptyInput.
func Load(text string) (*Table, error) {
	text = strings.TrimPrefix(text, utf8BOM)
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrap(ErrEmptyInput, "no content")
	}

	records, err := readAll(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrap(ErrEmptyInput, "no header row")
	}

	header := records[0]
	if len(records) == 1 {
		if err := validateColumns(header); err != nil {
			return nil, err
		}
		return nil, errors.Wrap(ErrEmptyInput, "no data rows")
	}
	return New(header, records[1:])
}

func readAll(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = false

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, errors.Wrap(ErrMalformedInput, err.Error())
		}
		records = append(records, record)
	}
}
