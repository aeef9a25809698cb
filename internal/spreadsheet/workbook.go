package spreadsheet

import (
	"bytes"
	"fmt"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"

	"gagyebu/internal/core"
)

// decodeXLSX reads the first worksheet as displayed text. Date cells come
// back in their number format; General-formatted dates stay serial numbers
// and are resolved by the date parser.
func decodeXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", core.ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", core.ErrUnsupportedFormat, sheets[0], err)
	}
	return rows, nil
}

func decodeXLS(data []byte) (grid [][]string, err error) {
	// malformed BIFF streams can panic inside the decoder
	defer func() {
		if r := recover(); r != nil {
			grid, err = nil, fmt.Errorf("%w: decode xls: %v", core.ErrUnsupportedFormat, r)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xls: %v", core.ErrUnsupportedFormat, err)
	}
	if workbook.GetNumberSheets() == 0 {
		return nil, core.ErrEmptyFile
	}
	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("%w: read xls sheet: %v", core.ErrUnsupportedFormat, err)
	}

	for _, row := range sheet.GetRows() {
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		var cells []string
		for _, col := range row.GetCols() {
			cells = append(cells, col.GetString())
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
