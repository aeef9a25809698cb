package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gagyebu/internal/core"
)

var errUnparseableDate = errors.New("unparseable date")

// dateLayouts are tried in order. Month-first is preferred over day-first for
// slash dates, matching what US-issued card exports produce.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"06-01-02",
	"06/01/02",
	"06.01.02",
	"01/02/2006",
	"02/01/2006",
	"1/2/2006",
	"01-02-2006",
	// two-digit-year month-first, as Excel renders its built-in date formats
	"01-02-06",
	"1/2/06",
}

var (
	koreanDate = regexp.MustCompile(`^(\d{2,4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	// "2025. 1. 15." as Korean-locale Excel and banking sites print dates
	spacedDots = regexp.MustCompile(`^(\d{2,4})\.\s+(\d{1,2})\.\s+(\d{1,2})(\.|\s|$)`)
	timeSuffix = regexp.MustCompile(`[ T]+((오전|오후)\s*)?\d{1,2}:\d{2}(:\d{2})?(\.\d+)?\s*([aApP][mM]|오전|오후)?(Z|[+-]\d{2}:?\d{2})?$`)
	serialDate = regexp.MustCompile(`^\d{5}(\.\d+)?$`)
)

// Excel serials outside this range are more likely amounts or ids than dates.
const (
	minExcelSerial = 20000 // 1954-10-03
	maxExcelSerial = 80000 // 2119-01-10
)

// ParseDate normalizes statement date text to a calendar date.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, errUnparseableDate
	}

	if m := koreanDate.FindStringSubmatch(s); m != nil {
		return fromParts(m[1], m[2], m[3])
	}
	if m := spacedDots.FindStringSubmatch(s); m != nil {
		return fromParts(m[1], m[2], m[3])
	}

	s = timeSuffix.ReplaceAllString(s, "")
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")

	if serialDate.MatchString(s) {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= minExcelSerial && v <= maxExcelSerial {
			t, err := excelize.ExcelDateToTime(v, false)
			if err == nil {
				return core.DateOf(t), nil
			}
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("%w: %q", errUnparseableDate, s)
}

func fromParts(y, m, d string) (core.Date, error) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	if year < 100 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return core.Date{}, fmt.Errorf("%w: %04d-%02d-%02d out of range", errUnparseableDate, year, month, day)
	}
	return core.DateOf(t), nil
}
