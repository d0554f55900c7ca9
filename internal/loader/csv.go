package loader

import (
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"os"

	"faq-rag/internal/models"
)

func (l *Loader) csvRecords() iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		f, err := os.Open(l.path)
		if err != nil {
			yield(models.Record{}, l.fail(noRow, err))
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Comma = l.delimiter

		raw, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("file is empty")
			}
			yield(models.Record{}, l.fail(noRow, err))
			return
		}
		header, sourceIdx, err := l.header(raw)
		if err != nil {
			yield(models.Record{}, err)
			return
		}
		r.FieldsPerRecord = len(raw)

		for row := 0; ; row++ {
			cells, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(models.Record{}, l.fail(row, err))
				return
			}
			rec, ok, err := l.record(header, sourceIdx, cells, row)
			if err != nil {
				yield(models.Record{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
