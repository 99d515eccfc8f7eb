package loader

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// ReadFile reads an export file into a Table, dispatching on the file
// extension: .xlsx goes through the spreadsheet reader, everything
// else is treated as CSV.
func ReadFile(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSXFile(path, "")
	}
	return ReadCSVFile(path)
}

// ReadCSVFile reads a CSV export with a header row. Semicolon
// delimited files, common in European spreadsheet exports, are
// detected from the header line.
func ReadCSVFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeLoadFailed, "opening export file").
			WithContext("path", path)
	}
	defer file.Close()
	return ReadCSV(file, filepath.Base(path))
}

// ReadCSV reads a headered CSV stream into a Table.
func ReadCSV(r io.Reader, source string) (*Table, error) {
	log := logger.WithComponent("loader").WithField("source", source)

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New(errors.CategoryParse, errors.CodeInvalidFormat, "export file is empty").
				WithContext("source", source).
				WithSuggestion("the file must contain a header row followed by data rows")
		}
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "reading header row").
			WithContext("source", source)
	}
	if len(headers) == 1 && strings.Contains(headers[0], ";") {
		// Semicolon delimited; re-split the header and switch the reader.
		headers = strings.Split(headers[0], ";")
		reader.Comma = ';'
	}

	t := &Table{Source: source, Headers: headers}
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "reading export rows").
				WithContext("source", source).
				WithContext("row", len(t.Rows)+2)
		}
		t.Rows = append(t.Rows, cells)
	}

	log.WithFields(logger.Fields{"headers": len(t.Headers), "rows": len(t.Rows)}).
		Debug("csv export read")
	return t, nil
}

// ReadXLSXFile reads one sheet of a spreadsheet export into a Table.
// An empty sheet name selects the first sheet. The first non-empty row
// is the header row.
func ReadXLSXFile(path, sheet string) (*Table, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeLoadFailed, "opening spreadsheet").
			WithContext("path", path)
	}
	defer book.Close()

	if sheet == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New(errors.CategoryParse, errors.CodeInvalidFormat, "spreadsheet has no sheets").
				WithContext("path", path)
		}
		sheet = sheets[0]
	}

	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "reading sheet").
			WithContext("path", path).
			WithContext("sheet", sheet)
	}

	t := &Table{Source: filepath.Base(path) + "#" + sheet}
	for _, cells := range rows {
		if t.Headers == nil {
			if isEmptyRow(cells) {
				continue
			}
			t.Headers = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if t.Headers == nil {
		return nil, errors.New(errors.CategoryParse, errors.CodeInvalidFormat, "sheet has no header row").
			WithContext("path", path).
			WithContext("sheet", sheet)
	}

	logger.WithComponent("loader").WithFields(logger.Fields{
		"source": t.Source,
		"rows":   len(t.Rows),
	}).Debug("spreadsheet export read")
	return t, nil
}
