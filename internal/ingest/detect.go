package ingest

import (
	"strings"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
)

type matchKey struct {
	date     string
	merchant string
	amount   string
}

func keyOf(d core.Date, merchant string, amount decimal.Decimal) matchKey {
	return matchKey{
		date:     d.String(),
		merchant: strings.TrimSpace(merchant),
		// String drops trailing zeros, so 5000 and 5000.00 share a key.
		amount: amount.String(),
	}
}

// Detect pairs every candidate with each existing record that has the same
// calendar date, the same merchant text and the same amount. There is no date
// tolerance and no fuzzy merchant matching; callers narrow existing to the
// batch's date span only to keep the index small.
func Detect(candidates []core.NormalizedTransaction, existing []core.ExistingTransaction) []core.DuplicateMatch {
	if len(candidates) == 0 || len(existing) == 0 {
		return nil
	}

	index := make(map[matchKey][]core.ExistingTransaction, len(existing))
	for _, e := range existing {
		k := keyOf(e.Date, e.Merchant, e.Amount)
		index[k] = append(index[k], e)
	}

	var matches []core.DuplicateMatch
	for _, c := range candidates {
		for _, e := range index[keyOf(c.Date, c.Merchant, c.Amount)] {
			matches = append(matches, core.DuplicateMatch{Candidate: c, Existing: e})
		}
	}
	return matches
}

// DuplicateRows returns the source row numbers of candidates that appear in
// matches, i.e. the rows a commit must not insert.
func DuplicateRows(matches []core.DuplicateMatch) map[int]bool {
	rows := make(map[int]bool, len(matches))
	for _, m := range matches {
		rows[m.Candidate.Row] = true
	}
	return rows
}
