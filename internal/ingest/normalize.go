package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
)

// RowError describes a row dropped during normalization.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

func (e RowError) Unwrap() error {
	return core.ErrMalformedRow
}

type Result struct {
	Transactions []core.NormalizedTransaction
	Skipped      []RowError
}

// Normalizer converts raw rows into canonical transactions.
type Normalizer struct {
	// CreditType is assigned to negative amounts when no type column is mapped.
	CreditType core.TxType
}

func NewNormalizer(creditType core.TxType) *Normalizer {
	if creditType != core.Income {
		creditType = core.Refund
	}
	return &Normalizer{CreditType: creditType}
}

// Normalize applies m to rows. Rows missing a usable date or amount are
// dropped and reported in Result.Skipped; the batch itself only fails when the
// mapping is invalid for headers.
func (n *Normalizer) Normalize(headers []string, rows []core.RawRow, m core.ColumnMapping) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	cols, err := m.Resolve(headers)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, row := range rows {
		tx, reason := n.normalizeRow(row, cols)
		if reason != "" {
			res.Skipped = append(res.Skipped, RowError{Row: i + 1, Reason: reason})
			continue
		}
		tx.Row = i + 1
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

func (n *Normalizer) normalizeRow(row core.RawRow, cols map[core.Field]int) (core.NormalizedTransaction, string) {
	cell := func(f core.Field) string {
		idx, ok := cols[f]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	tx := core.NormalizedTransaction{Original: row}

	dateText := cell(core.FieldDate)
	if dateText == "" {
		return tx, "missing date"
	}
	date, err := ParseDate(dateText)
	if err != nil {
		return tx, fmt.Sprintf("unparseable date %q", dateText)
	}
	tx.Date = date

	amount, direction, reason := amountOf(cell)
	if reason != "" {
		return tx, reason
	}
	tx.Amount = amount.Abs()

	switch {
	case hasColumn(cols, core.FieldType) && cell(core.FieldType) != "":
		tx.Type = InferType(cell(core.FieldType))
	case direction != "":
		tx.Type = direction
	case amount.IsNegative():
		tx.Type = n.CreditType
	default:
		tx.Type = core.Expense
	}

	tx.Merchant = cell(core.FieldMerchant)
	tx.Memo = cell(core.FieldMemo)
	tx.Account = cell(core.FieldAccount)
	return tx, ""
}

// amountOf prefers the amount column and falls back to split
// withdrawal/deposit columns, which also fix the direction.
func amountOf(cell func(core.Field) string) (decimal.Decimal, core.TxType, string) {
	if text := cell(core.FieldAmount); text != "" {
		d, err := core.ParseAmount(text)
		if err != nil {
			return decimal.Zero, "", fmt.Sprintf("unparseable amount %q", text)
		}
		return d, "", ""
	}

	for _, split := range []struct {
		field core.Field
		dir   core.TxType
	}{
		{core.FieldWithdrawal, core.Expense},
		{core.FieldDeposit, core.Income},
	} {
		text := cell(split.field)
		if text == "" {
			continue
		}
		d, err := core.ParseAmount(text)
		if err != nil {
			return decimal.Zero, "", fmt.Sprintf("unparseable %s %q", split.field, text)
		}
		if d.IsZero() {
			continue
		}
		return d, split.dir, ""
	}
	return decimal.Zero, "", "missing amount"
}

func hasColumn(cols map[core.Field]int, f core.Field) bool {
	_, ok := cols[f]
	return ok
}

// InferType classifies a type/status cell. Cancellations and refunds win over
// income keywords; anything unrecognised is an expense.
func InferType(hint string) core.TxType {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case containsAny(h, "취소", "환불", "refund", "cancel"):
		return core.Refund
	case containsAny(h, "입금", "수입", "income", "deposit"):
		return core.Income
	}
	return core.Expense
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CompleteSplitAmounts maps unmapped headers mentioning 출금/입금 to the
// withdrawal/deposit fields, so bank exports with separate columns work with
// a mapping that only names the date.
func CompleteSplitAmounts(headers []string, m core.ColumnMapping) core.ColumnMapping {
	out := m.Clone()
	used := make(map[int]bool)
	if cols, err := m.Resolve(headers); err == nil {
		for _, idx := range cols {
			used[idx] = true
		}
	}
	for i, h := range headers {
		if used[i] {
			continue
		}
		label := normalizeLabel(h)
		var field core.Field
		switch {
		case strings.Contains(label, "출금"):
			field = core.FieldWithdrawal
		case strings.Contains(label, "입금"):
			field = core.FieldDeposit
		default:
			continue
		}
		if out.Has(field) {
			continue
		}
		idx := i
		out[field] = core.ColumnRef{Header: h, Index: &idx}
		used[i] = true
	}
	return out
}
