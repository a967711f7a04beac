package pipeline

import (
	"github.com/teranos/tabula/table"
)

// Preview decodes raw bytes and samples the first n rows. It loads the
// table only and shares nothing with Run.
func Preview(data []byte, n int) (*table.Preview, error) {
	text, encoding, err := table.Decode(data)
	if err != nil {
		return nil, err
	}
	return table.PreviewText(text, encoding, n)
}
