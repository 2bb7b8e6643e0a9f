package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/finance-importer/internal/domain"
)

// maxSpreadsheetRows bounds how many rows are read from a legacy workbook.
const maxSpreadsheetRows = 100000

// ParseSpreadsheet reads the first sheet of an XLSX or legacy XLS workbook and
// applies the same column rules as ParseDelimitedText.
func ParseSpreadsheet(data []byte) domain.ParseResult {
	rows, err := readSheetRows(data)
	if err != nil {
		return failed(fmt.Sprintf("unreadable spreadsheet: %v", err))
	}

	var nonBlank [][]string
	for _, r := range rows {
		if !blankRow(r) {
			nonBlank = append(nonBlank, r)
		}
	}
	if len(nonBlank) == 0 {
		return failed("file is empty")
	}
	if len(nonBlank) < 2 {
		return failed("file has no data rows")
	}

	table := make([]tableRow, 0, len(nonBlank)-1)
	for i, r := range nonBlank[1:] {
		table = append(table, tableRow{number: i + 2, cells: r})
	}
	return parseTable(nonBlank[0], table)
}

func readSheetRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err == nil {
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
		}
		return rows, nil
	}

	rows, xlsErr := readLegacyRows(data)
	if xlsErr != nil {
		return nil, fmt.Errorf("not xlsx (%v) and not xls (%v)", err, xlsErr)
	}
	return rows, nil
}

// readLegacyRows converts panics from the XLS decoder into errors.
func readLegacyRows(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed workbook: %v", r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	return wb.ReadAllCells(maxSpreadsheetRows), nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
