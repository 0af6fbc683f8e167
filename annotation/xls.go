package annotation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/extrame/xls"
)

// ReadXLS returns the header and data rows of one worksheet of a legacy Excel
// workbook. An empty sheet name selects the first sheet. Rows the workbook
// does not store are skipped.
func ReadXLS(path string, data []byte, sheetName string) ([]string, [][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}
	if workbook == nil {
		return nil, nil, pfx.Err(fmt.Errorf("%s: no workbook stream found", path))
	}

	sheet, err := findSheet(workbook, sheetName)
	if err != nil {
		return nil, nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	var header []string
	var rows [][]string
	for rowID := 0; rowID <= int(sheet.MaxRow); rowID++ {
		row := sheetRow(sheet, rowID)
		if row == nil {
			continue
		}

		values := make([]string, 0, row.LastCol()+1)
		for colID := 0; colID <= row.LastCol(); colID++ {
			values = append(values, row.Col(colID))
		}

		if header == nil {
			header = trimTrailingBlank(values)
			for k := range header {
				header[k] = strings.TrimSpace(header[k])
			}
			continue
		}

		if len(values) > len(header) {
			values = values[:len(header)]
		}
		rows = append(rows, values)
	}

	return header, rows, nil
}

func findSheet(workbook *xls.WorkBook, name string) (*xls.WorkSheet, error) {
	if workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	if name == "" {
		return workbook.GetSheet(0), nil
	}

	var names []string
	for i := 0; i < workbook.NumSheets(); i++ {
		sheet := workbook.GetSheet(i)
		if sheet == nil {
			continue
		}
		if sheet.Name == name {
			return sheet, nil
		}
		names = append(names, sheet.Name)
	}

	return nil, fmt.Errorf("no sheet named %q (have %q)", name, names)
}

// sheetRow is WorkSheet.Row, which panics instead of returning nil for a row
// the file does not store.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()

	return sheet.Row(i)
}

func trimTrailingBlank(values []string) []string {
	end := len(values)
	for end > 0 && strings.TrimSpace(values[end-1]) == "" {
		end--
	}

	return values[:end]
}
