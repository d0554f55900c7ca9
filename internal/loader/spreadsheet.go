package loader

import (
	"errors"
	"fmt"
	"iter"

	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"faq-rag/internal/models"
)

var errNoSheet = errors.New("workbook has no sheets")

func (l *Loader) xlsxRecords() iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		f, err := xlsx.OpenFile(l.path)
		if err != nil {
			yield(models.Record{}, l.fail(noRow, err))
			return
		}

		var sheet *xlsx.Sheet
		if l.sheet != "" {
			sheet = f.Sheet[l.sheet]
			if sheet == nil {
				yield(models.Record{}, l.fail(noRow, fmt.Errorf("sheet %q not found", l.sheet)))
				return
			}
		} else if len(f.Sheets) > 0 {
			sheet = f.Sheets[0]
		}
		if sheet == nil || len(sheet.Rows) == 0 {
			yield(models.Record{}, l.fail(noRow, errNoSheet))
			return
		}

		cellsOf := func(row *xlsx.Row) []string {
			if row == nil {
				return nil
			}
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				cells[i] = cell.String()
			}
			return cells
		}

		header, sourceIdx, err := l.header(cellsOf(sheet.Rows[0]))
		if err != nil {
			yield(models.Record{}, err)
			return
		}
		for i, row := range sheet.Rows[1:] {
			rec, ok, err := l.record(header, sourceIdx, cellsOf(row), i)
			if err != nil {
				yield(models.Record{}, err)
				return
			}
			if ok && !yield(rec, nil) {
				return
			}
		}
	}
}

// excelizeRecords streams rows so macro-enabled and template workbooks are
// never fully materialized.
func (l *Loader) excelizeRecords() iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		f, err := excelize.OpenFile(l.path)
		if err != nil {
			yield(models.Record{}, l.fail(noRow, err))
			return
		}
		defer f.Close()

		sheet := l.sheet
		if sheet == "" {
			list := f.GetSheetList()
			if len(list) == 0 {
				yield(models.Record{}, l.fail(noRow, errNoSheet))
				return
			}
			sheet = list[0]
		}

		rows, err := f.Rows(sheet)
		if err != nil {
			yield(models.Record{}, l.fail(noRow, err))
			return
		}
		defer rows.Close()

		if !rows.Next() {
			yield(models.Record{}, l.fail(noRow, errNoSheet))
			return
		}
		raw, err := rows.Columns()
		if err != nil {
			yield(models.Record{}, l.fail(noRow, err))
			return
		}
		header, sourceIdx, err := l.header(raw)
		if err != nil {
			yield(models.Record{}, err)
			return
		}

		for row := 0; rows.Next(); row++ {
			cells, err := rows.Columns()
			if err != nil {
				yield(models.Record{}, l.fail(row, err))
				return
			}
			rec, ok, err := l.record(header, sourceIdx, cells, row)
			if err != nil {
				yield(models.Record{}, err)
				return
			}
			if ok && !yield(rec, nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(models.Record{}, l.fail(noRow, err))
		}
	}
}
