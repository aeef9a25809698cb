// Package export renders the transactions of one import as a downloadable
// spreadsheet.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"gagyebu/internal/core"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

const sheetName = "Transactions"

// ParseFormat accepts xlsx or csv, case-insensitively. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("export format %q: %w", s, core.ErrUnsupportedFormat)
}

// Document is a rendered export.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Row is one exported transaction.
type Row struct {
	Date     string `csv:"date"`
	Merchant string `csv:"merchant"`
	Amount   string `csv:"amount"`
	Type     string `csv:"type"`
	Memo     string `csv:"memo"`
	Account  string `csv:"account"`
	Card     string `csv:"card"`
	Row      int    `csv:"source_row"`
	ImportID string `csv:"import_id"`
}

var columns = []string{"date", "merchant", "amount", "type", "memo", "account", "card", "source_row", "import_id"}

func Rows(file core.ImportFile, txs []core.StoredTransaction) []Row {
	rows := make([]Row, len(txs))
	for i, t := range txs {
		rows[i] = Row{
			Date:     t.Date.String(),
			Merchant: t.Merchant,
			Amount:   core.FormatAmount(t.Amount),
			Type:     string(t.Type),
			Memo:     t.Memo,
			Account:  t.AccountName,
			Card:     t.CardName,
			Row:      t.Row,
			ImportID: file.ID,
		}
	}
	return rows
}

// Render builds the export document for one import.
func Render(format Format, file core.ImportFile, txs []core.StoredTransaction) (Document, error) {
	rows := Rows(file, txs)
	base := strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename))
	if base == "" || base == "." {
		base = "import"
	}

	switch format {
	case FormatCSV:
		body, err := renderCSV(rows)
		if err != nil {
			return Document{}, err
		}
		return Document{
			Filename:    base + "_export.csv",
			ContentType: "text/csv; charset=utf-8",
			Body:        body,
		}, nil
	case FormatXLSX:
		body, err := renderXLSX(rows)
		if err != nil {
			return Document{}, err
		}
		return Document{
			Filename:    base + "_export.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        body,
		}, nil
	}
	return Document{}, fmt.Errorf("export format %q: %w", format, core.ErrUnsupportedFormat)
}

// renderCSV writes a UTF-8 BOM first; Excel otherwise guesses the wrong
// encoding for Hangul.
func renderCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	if len(rows) == 0 {
		buf.WriteString(strings.Join(columns, ",") + "\n")
		return buf.Bytes(), nil
	}
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csv.NewWriter(&buf))); err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{r.Date, r.Merchant, amountCell(r.Amount), r.Type, r.Memo, r.Account, r.Card, r.Row, r.ImportID}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// amountCell keeps amounts numeric in the workbook so they can be summed.
func amountCell(s string) any {
	d, err := core.ParseAmount(s)
	if err != nil {
		return s
	}
	return d.InexactFloat64()
}
