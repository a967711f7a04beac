// Package artifact stores final tables as downloadable files. Files stay
// on disk until removed or swept; the pipeline never deletes them.
package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/table"
)

// Formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const sheetName = "Result"

var (
	// ErrNotFound is returned for an unknown artifact id.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID is returned for ids that are not artifact ids.
	ErrInvalidID = errors.New("invalid artifact id")

	// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
	ErrUnsupportedFormat = errors.Sentinel("unsupported artifact format", errors.ErrConfig)
)

// Ref identifies a stored artifact.
type Ref struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	Rows      int       `json:"rows"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// DownloadName is the file name offered to clients.
func (r Ref) DownloadName() string {
	return "processed_result." + r.Format
}

// ContentType is the MIME type of the artifact.
func (r Ref) ContentType() string {
	if r.Format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Store keeps artifacts in one directory as <id>.<format>.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string, perm os.FileMode) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "tabula")
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return nil, errors.Wrapf(err, "failed to create artifact directory %s", dir)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// NormalizeFormat lowercases format and defaults it to csv.
func NormalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}
}

// Save writes t in format and returns its reference.
func (s *Store) Save(t *table.Table, format string) (*Ref, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+"."+format)
	tmp := path + ".partial"

	switch format {
	case FormatXLSX:
		err = writeXLSX(tmp, t)
	default:
		err = writeCSV(tmp, t)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, errors.Wrap(err, "failed to publish artifact")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat artifact")
	}
	return &Ref{
		ID:        id,
		Path:      path,
		Format:    format,
		Rows:      t.NumRows(),
		Size:      info.Size(),
		CreatedAt: s.now().UTC(),
	}, nil
}

func writeCSV(path string, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create artifact")
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write csv artifact")
	}
	return errors.Wrap(f.Close(), "failed to close artifact")
}

func writeXLSX(path string, t *table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return errors.Wrap(err, "failed to name sheet")
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return errors.Wrap(err, "failed to open sheet writer")
	}

	writeRow := func(r int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}

	if err := writeRow(1, t.Columns()); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i := 0; i < t.NumRows(); i++ {
		if err := writeRow(i+2, t.Row(i)); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i+1)
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush sheet")
	}
	return errors.Wrap(f.SaveAs(path), "failed to save xlsx artifact")
}

// Lookup finds the artifact with id.
func (s *Store) Lookup(id string) (*Ref, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(ErrInvalidID, "%q", id)
	}
	for _, format := range []string{FormatCSV, FormatXLSX} {
		path := filepath.Join(s.dir, id+"."+format)
		info, err := os.Stat(path)
		if err == nil {
			return &Ref{ID: id, Path: path, Format: format, Size: info.Size(), CreatedAt: info.ModTime().UTC()}, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to stat artifact %s", id)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", id)
}

// Open returns the artifact file for reading.
func (s *Store) Open(id string) (*os.File, *Ref, error) {
	ref, err := s.Lookup(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open artifact %s", id)
	}
	return f, ref, nil
}

// Remove deletes the artifact with id.
func (s *Store) Remove(id string) error {
	ref, err := s.Lookup(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.Remove(ref.Path), "failed to remove artifact %s", id)
}

// Sweep removes artifacts and abandoned partial files older than maxAge
// and returns how many files it deleted.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list artifacts")
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrapf(err, "failed to remove %s", e.Name())
		}
		removed++
	}
	return removed, nil
}

func isArtifactName(name string) bool {
	name = strings.TrimSuffix(name, ".partial")
	ext := filepath.Ext(name)
	if ext != "."+FormatCSV && ext != "."+FormatXLSX {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(name, ext))
	return err == nil
}
