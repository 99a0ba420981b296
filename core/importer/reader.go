package importer

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

var (
	// errors
	ErrNoRows      = errors.New("the file has no data rows")
	ErrUnreadable  = errors.New("unreadable spreadsheet")
	ErrUnsupported = errors.New("unsupported file type, expected .xlsx or .csv")
)

// ReadRows parses the first sheet of an .xlsx file, or a .csv file, into rows keyed by the header row.
// Blank rows are dropped. A file without data rows is ErrNoRows.
func ReadRows(r io.Reader, filename string) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r)
	case ".csv":
		records, err = readCSV(r)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, errors.Wrap(ErrUnreadable, err.Error())
	}
	return toRows(records)
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff") // excel's UTF-8 BOM
	}
	return records, nil
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) < 2 {
		return nil, ErrNoRows
	}
	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, h := range header {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		if !row.IsBlank() {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}
