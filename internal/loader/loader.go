package loader

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"faq-rag/internal/models"
)

const noRow = -1

// ErrUnsupportedFormat is wrapped by LoadError for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// LoadError is returned when the knowledge base cannot be read or a row
// cannot be parsed. Row is the 0-based data row, or -1 when the failure is
// not tied to a row.
type LoadError struct {
	Path string
	Row  int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("load %s: row %d: %v", e.Path, e.Row, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type Option func(*Loader)

// WithDelimiter sets the field delimiter for delimited text files.
func WithDelimiter(r rune) Option {
	return func(l *Loader) {
		if r != 0 {
			l.delimiter = r
		}
	}
}

// WithSheet selects a worksheet by name; the first sheet is used otherwise.
func WithSheet(name string) Option {
	return func(l *Loader) { l.sheet = name }
}

// WithMarkdown flattens markdown cell values to plain text.
func WithMarkdown() Option {
	return func(l *Loader) { l.markdown = true }
}

// Loader reads a tabular knowledge base into records. Every column is
// serialized into the record content and the key column becomes its source.
type Loader struct {
	path         string
	sourceColumn string
	delimiter    rune
	sheet        string
	markdown     bool
}

func New(path, sourceColumn string, opts ...Option) *Loader {
	l := &Loader{
		path:         path,
		sourceColumn: sourceColumn,
		delimiter:    ',',
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Path() string { return l.path }

// Records returns a lazy sequence of records. Iteration stops after the
// first error.
func (l *Loader) Records() iter.Seq2[models.Record, error] {
	ext := strings.ToLower(filepath.Ext(l.path))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return l.csvRecords()
	case ".xlsx":
		return l.xlsxRecords()
	case ".xlsm", ".xltx", ".xltm":
		return l.excelizeRecords()
	default:
		return func(yield func(models.Record, error) bool) {
			yield(models.Record{}, l.fail(noRow, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)))
		}
	}
}

// LoadAll drains a record sequence.
func LoadAll(seq iter.Seq2[models.Record, error]) ([]models.Record, error) {
	var records []models.Record
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *Loader) fail(row int, err error) *LoadError {
	return &LoadError{Path: l.path, Row: row, Err: err}
}

// header resolves the key column and normalizes header names.
func (l *Loader) header(raw []string) ([]string, int, error) {
	header := make([]string, len(raw))
	sourceIdx := -1
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		header[i] = h
		if h == l.sourceColumn && sourceIdx < 0 {
			sourceIdx = i
		}
	}
	if sourceIdx < 0 {
		return nil, -1, l.fail(noRow, fmt.Errorf("key column %q not found in header %v", l.sourceColumn, header))
	}
	return header, sourceIdx, nil
}

// record serializes one row as "header: value" lines. ok is false for rows
// with no content at all.
func (l *Loader) record(header []string, sourceIdx int, cells []string, row int) (models.Record, bool, error) {
	if len(cells) > len(header) {
		for _, extra := range cells[len(header):] {
			if strings.TrimSpace(extra) != "" {
				return models.Record{}, false, l.fail(row, fmt.Errorf("row has %d cells, header has %d", len(cells), len(header)))
			}
		}
	}

	var (
		b     strings.Builder
		empty = true
	)
	values := make([]string, len(header))
	for i := range header {
		if i < len(cells) {
			values[i] = strings.TrimSpace(cells[i])
		}
		if l.markdown && values[i] != "" {
			flat, err := flattenMarkdown(values[i])
			if err != nil {
				return models.Record{}, false, l.fail(row, err)
			}
			values[i] = flat
		}
		if values[i] != "" {
			empty = false
		}
	}
	if empty {
		return models.Record{}, false, nil
	}

	for i, h := range header {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(h)
		b.WriteString(": ")
		b.WriteString(values[i])
	}
	return models.Record{
		Content: b.String(),
		Source:  values[sourceIdx],
		Row:     row,
	}, true, nil
}
