package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
)

func candidate(row int, date core.Date, merchant string, amount int64) core.NormalizedTransaction {
	return core.NormalizedTransaction{
		Date:     date,
		Merchant: merchant,
		Amount:   decimal.NewFromInt(amount),
		Type:     core.Expense,
		Row:      row,
	}
}

func existing(id int64, date core.Date, merchant string, amount int64) core.ExistingTransaction {
	return core.ExistingTransaction{
		ID:       id,
		Date:     date,
		Merchant: merchant,
		Amount:   decimal.NewFromInt(amount),
		Type:     core.Expense,
	}
}

func TestDetectScenarios(t *testing.T) {
	jan15 := core.NewDate(2025, 1, 15)

	tests := []struct {
		name     string
		merchant string
		existing core.ExistingTransaction
		want     int
	}{
		{"identical record", "스타벅스", existing(1, jan15, "스타벅스", 5000), 1},
		{"everything differs", "스타벅스", existing(2, core.NewDate(2025, 1, 16), "투썸플레이스", 6000), 0},
		{"merchant differs", "스타벅스", existing(3, jan15, "투썸플레이스", 5000), 0},
		{"amount differs", "스타벅스", existing(4, jan15, "스타벅스", 6000), 0},
		{"date differs by five days", "스타벅스", existing(5, core.NewDate(2025, 1, 20), "스타벅스", 5000), 0},
		{"date differs by one day", "스타벅스", existing(6, core.NewDate(2025, 1, 16), "스타벅스", 5000), 0},
		{"merchant case differs", "Starbucks", existing(7, jan15, "STARBUCKS", 5000), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate(1, jan15, tt.merchant, 5000)

			matches := Detect([]core.NormalizedTransaction{c}, []core.ExistingTransaction{tt.existing})

			require.Len(t, matches, tt.want)
			if tt.want == 1 {
				assert.Equal(t, c, matches[0].Candidate)
				assert.Equal(t, tt.existing.ID, matches[0].Existing.ID)
			}
		})
	}
}

func TestDetectTripleProperty(t *testing.T) {
	base := candidate(1, core.NewDate(2024, 12, 31), "쿠팡", 19900)
	same := existing(9, base.Date, base.Merchant, 19900)

	variants := []func(e *core.ExistingTransaction){
		func(e *core.ExistingTransaction) { e.Date = core.NewDate(2025, 1, 1) },
		func(e *core.ExistingTransaction) { e.Merchant = "쿠팡이츠" },
		func(e *core.ExistingTransaction) { e.Amount = decimal.NewFromInt(19901) },
	}

	assert.Len(t, Detect([]core.NormalizedTransaction{base}, []core.ExistingTransaction{same}), 1)
	for i, mutate := range variants {
		e := same
		mutate(&e)
		assert.Empty(t, Detect([]core.NormalizedTransaction{base}, []core.ExistingTransaction{e}), "variant %d", i)
	}
}

func TestDetectNumericAmountEquality(t *testing.T) {
	c := candidate(1, core.NewDate(2025, 1, 15), "스타벅스", 5000)
	e := existing(1, c.Date, c.Merchant, 0)
	e.Amount = decimal.RequireFromString("5000.00")

	assert.Len(t, Detect([]core.NormalizedTransaction{c}, []core.ExistingTransaction{e}), 1)
}

func TestDetectTrimsMerchant(t *testing.T) {
	c := candidate(1, core.NewDate(2025, 1, 15), "스타벅스 ", 5000)
	e := existing(1, c.Date, " 스타벅스", 5000)

	assert.Len(t, Detect([]core.NormalizedTransaction{c}, []core.ExistingTransaction{e}), 1)
}

func TestDetectEmptyMerchantsMatch(t *testing.T) {
	c := candidate(1, core.NewDate(2025, 1, 15), "", 5000)
	e := existing(1, c.Date, "", 5000)

	assert.Len(t, Detect([]core.NormalizedTransaction{c}, []core.ExistingTransaction{e}), 1)
}

func TestDetectReturnsEveryPairInCandidateOrder(t *testing.T) {
	d := core.NewDate(2025, 1, 15)
	candidates := []core.NormalizedTransaction{
		candidate(1, d, "이마트", 32000),
		candidate(2, d, "스타벅스", 5000),
		candidate(3, d, "GS25", 900),
	}
	stored := []core.ExistingTransaction{
		existing(10, d, "스타벅스", 5000),
		existing(11, d, "스타벅스", 5000),
		existing(12, d, "이마트", 32000),
	}

	matches := Detect(candidates, stored)

	require.Len(t, matches, 3)
	assert.Equal(t, 1, matches[0].Candidate.Row)
	assert.Equal(t, int64(12), matches[0].Existing.ID)
	assert.Equal(t, int64(10), matches[1].Existing.ID)
	assert.Equal(t, int64(11), matches[2].Existing.ID)

	rows := DuplicateRows(matches)
	assert.Equal(t, map[int]bool{1: true, 2: true}, rows)
}

func TestDetectEmptyInputs(t *testing.T) {
	c := candidate(1, core.NewDate(2025, 1, 15), "스타벅스", 5000)
	assert.Empty(t, Detect(nil, []core.ExistingTransaction{existing(1, c.Date, c.Merchant, 5000)}))
	assert.Empty(t, Detect([]core.NormalizedTransaction{c}, nil))
}
