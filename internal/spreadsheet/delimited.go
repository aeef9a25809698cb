package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"

	"gagyebu/internal/core"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// candidate delimiters in preference order when counts tie
var delimiters = []rune{',', '\t', ';', '|'}

func decodeDelimited(data []byte) ([][]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse delimited text: %v", core.ErrUnsupportedFormat, err)
	}
	return records, nil
}

// decodeText turns raw bytes into UTF-8. Korean banks still export CP949, and
// Excel's "Unicode text" export is UTF-16 with a BOM.
func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf16LEBOM), bytes.HasPrefix(data, utf16BEBOM):
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: decode utf-16: %v", core.ErrUnsupportedFormat, err)
		}
		data = decoded
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	}

	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", core.ErrUnsupportedFormat)
	}

	if !utf8.Valid(data) {
		decoded, err := korean.EUCKR.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: decode euc-kr: %v", core.ErrUnsupportedFormat, err)
		}
		data = decoded
	}

	text := string(data)
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", fmt.Errorf("%w: undecodable text", core.ErrUnsupportedFormat)
	}
	return text, nil
}

// sniffDelimiter picks the delimiter occurring most often on the first
// non-blank line, ignoring quoted sections.
func sniffDelimiter(text string) rune {
	line := ""
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := delimiters[0], 0
	for _, d := range delimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
