package table

// FileInfo summarises a loaded source table.
type FileInfo struct {
	Rows        int      `json:"rows"`
	Columns     int      `json:"columns"`
	ColumnNames []string `json:"column_names"`
	Encoding    string   `json:"encoding,omitempty"`
}

// Preview is the read-only sample returned to collaborators.
type Preview struct {
	ColumnNames []string   `json:"column_names"`
	SampleRows  [][]string `json:"sample_data"`
	FileInfo    FileInfo   `json:"file_info"`
}

// Info describes the table.
func (t *Table) Info(encoding string) FileInfo {
	return FileInfo{
		Rows:        t.NumRows(),
		Columns:     t.NumColumns(),
		ColumnNames: t.Columns(),
		Encoding:    encoding,
	}
}

// PreviewText loads text and returns its first n rows. n <= 0 yields no
// sample rows.
func PreviewText(text, encoding string, n int) (*Preview, error) {
	t, err := Load(text)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	return &Preview{
		ColumnNames: t.Columns(),
		SampleRows:  t.Head(n).Rows(),
		FileInfo:    t.Info(encoding),
	}, nil
}
