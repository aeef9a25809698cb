// Package spreadsheet decodes uploaded statement files into a header row and
// raw rows. Workbooks (.xlsx, .xls) and delimited text (.csv, .tsv exported as
// .csv) are supported; only the first worksheet of a workbook is read.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"gagyebu/internal/core"
)

type Kind string

const (
	KindXLSX Kind = "xlsx"
	KindXLS  Kind = "xls"
	KindCSV  Kind = "csv"
)

// AllowedExtensions are the upload extensions accepted at the boundary.
var AllowedExtensions = []string{".xlsx", ".xls", ".csv"}

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Sheet is the decoded grid. Every row has len(Headers) cells.
type Sheet struct {
	Headers  []string
	Rows     []core.RawRow
	RowCount int
}

// Preview returns at most n leading rows.
func (s *Sheet) Preview(n int) []core.RawRow {
	if n < 0 || n >= len(s.Rows) {
		return s.Rows
	}
	return s.Rows[:n]
}

// KindFromFilename maps an upload name to its declared kind.
func KindFromFilename(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".xlsx":
		return KindXLSX, nil
	case ".xls":
		return KindXLS, nil
	case ".csv":
		return KindCSV, nil
	}
	return "", fmt.Errorf("%w: %q (allowed: %s)", core.ErrUnsupportedFormat, filepath.Ext(name), strings.Join(AllowedExtensions, ", "))
}

// Sniff guesses the kind from magic bytes. Anything that is not a zip or an
// OLE2 compound document is treated as text.
func Sniff(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return KindXLSX
	case bytes.HasPrefix(data, ole2Magic):
		return KindXLS
	default:
		return KindCSV
	}
}

// Read decodes data as the declared kind, falling back to the sniffed kind
// when the declared one does not fit (bank portals often serve tab-separated
// text under a .xls name).
func Read(data []byte, kind Kind) (*Sheet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, core.ErrEmptyFile
	}

	grid, err := decode(data, kind)
	if err != nil && !errors.Is(err, core.ErrEmptyFile) {
		if sniffed := Sniff(data); sniffed != kind {
			if alt, altErr := decode(data, sniffed); altErr == nil {
				grid, err = alt, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return buildSheet(grid)
}

func decode(data []byte, kind Kind) ([][]string, error) {
	switch kind {
	case KindXLSX:
		return decodeXLSX(data)
	case KindXLS:
		return decodeXLS(data)
	case KindCSV:
		return decodeDelimited(data)
	}
	return nil, fmt.Errorf("%w: kind %q", core.ErrUnsupportedFormat, kind)
}

func buildSheet(grid [][]string) (*Sheet, error) {
	start := -1
	for i, row := range grid {
		if !isBlank(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, core.ErrEmptyFile
	}

	raw := trimTrailingEmpty(grid[start])
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = normalizeHeader(h)
	}

	width := len(headers)
	var rows []core.RawRow
	for _, row := range grid[start+1:] {
		if isBlank(row) {
			continue
		}
		cells := trimTrailingEmpty(row)
		if len(cells) > width {
			width = len(cells)
		}
		rows = append(rows, core.RawRow(append([]string(nil), cells...)))
	}
	if len(rows) == 0 {
		return nil, core.ErrEmptyFile
	}

	for len(headers) < width {
		headers = append(headers, "")
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}

	return &Sheet{Headers: headers, Rows: rows, RowCount: len(rows)}, nil
}

// normalizeHeader trims and composes header text. Files saved on macOS often
// carry decomposed Hangul which would never match the synonym tables.
func normalizeHeader(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// trimTrailingEmpty drops trailing cells that hold no text at all. Cells with
// whitespace are cell content and stay as read.
func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}
