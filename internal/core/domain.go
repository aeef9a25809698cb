package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Expense TxType = "expense"
	Income  TxType = "income"
	Refund  TxType = "refund"
)

const (
	AccountCard AccountType = "card"
	AccountBank AccountType = "bank"
)

// DefaultAccountName is used when neither the caller nor the file names an account.
const DefaultAccountName = "기본 계정"

// StatusConfirmed is the status of every transaction inserted by an import.
const StatusConfirmed = "confirmed"

const dateLayout = "2006-01-02"

type (
	TxType      string
	AccountType string

	Date struct {
		time.Time
	}

	// RawRow is one row of cell text aligned to the sheet header.
	RawRow []string

	NormalizedTransaction struct {
		Date     Date            `json:"date"`
		Merchant string          `json:"merchant,omitempty"`
		Amount   decimal.Decimal `json:"amount"`
		Type     TxType          `json:"type"`
		Memo     string          `json:"memo,omitempty"`
		Account  string          `json:"account,omitempty"`
		Original RawRow          `json:"original"`
		Row      int             `json:"row"`
	}

	ExistingTransaction struct {
		ID           int64           `json:"id"`
		AccountID    int64           `json:"account_id"`
		SourceFileID string          `json:"source_file_id,omitempty"`
		Date         Date            `json:"date"`
		Merchant     string          `json:"merchant,omitempty"`
		Amount       decimal.Decimal `json:"amount"`
		Type         TxType          `json:"type"`
		Memo         string          `json:"memo,omitempty"`
	}

	// StoredTransaction is a persisted transaction with the details an export
	// or mirror needs.
	StoredTransaction struct {
		ExistingTransaction
		UserID      string `json:"user_id"`
		AccountName string `json:"account_name"`
		CardName    string `json:"card_name,omitempty"`
		Status      string `json:"status"`
		Original    RawRow `json:"original"`
		Row         int    `json:"row"`
	}

	// DuplicateMatch pairs an import candidate with the persisted record it repeats.
	DuplicateMatch struct {
		Candidate NormalizedTransaction `json:"candidate"`
		Existing  ExistingTransaction   `json:"existing"`
	}

	Account struct {
		ID     int64       `json:"id"`
		UserID string      `json:"user_id"`
		Name   string      `json:"name"`
		Type   AccountType `json:"type"`
	}

	// ImportFile is the provenance record of one commit.
	ImportFile struct {
		ID                string    `json:"id"`
		UserID            string    `json:"user_id"`
		Filename          string    `json:"filename"`
		OriginalHeaders   []string  `json:"original_headers"`
		RowCount          int       `json:"row_count"`
		Imported          int       `json:"imported"`
		DuplicatesSkipped int       `json:"duplicates_skipped"`
		RowsSkipped       int       `json:"rows_skipped"`
		AccountID         int64     `json:"account_id"`
		CreatedAt         time.Time `json:"created_at"`
	}

	// ImportBatch is everything a commit persists in one transaction.
	ImportBatch struct {
		File         ImportFile
		Account      Account
		CardName     string
		Transactions []NormalizedTransaction
	}
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file contains no data rows")
	ErrNoValidRows       = errors.New("no valid transactions")
	ErrMalformedRow      = errors.New("malformed row")
	ErrInvalidMapping    = errors.New("invalid column mapping")
	ErrNotFound          = errors.New("not found")
	ErrInvalidType       = errors.New("invalid transaction type")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseISODate parses YYYY-MM-DD.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Equal compares calendar days.
func (d Date) Equal(o Date) bool {
	return d.String() == o.String()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// ParseTxType accepts the canonical lowercase names.
func ParseTxType(s string) (TxType, error) {
	switch TxType(strings.ToLower(strings.TrimSpace(s))) {
	case Expense:
		return Expense, nil
	case Income:
		return Income, nil
	case Refund:
		return Refund, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// AccountTypeFor derives the account type from its display name.
func AccountTypeFor(name string) AccountType {
	if strings.Contains(name, "은행") || strings.Contains(name, "뱅크") {
		return AccountBank
	}
	return AccountCard
}

// Span returns the earliest and latest dates of txs. ok is false for an empty slice.
func Span(txs []NormalizedTransaction) (from, to Date, ok bool) {
	for i, tx := range txs {
		if i == 0 || tx.Date.Before(from.Time) {
			from = tx.Date
		}
		if i == 0 || tx.Date.After(to.Time) {
			to = tx.Date
		}
	}
	return from, to, len(txs) > 0
}

func (t NormalizedTransaction) Validate() error {
	if t.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	if t.Amount.IsNegative() {
		return errors.New("amount cannot be negative")
	}
	typ, err := ParseTxType(string(t.Type))
	if err != nil {
		return err
	}
	if typ != t.Type {
		return fmt.Errorf("%w: %q is not canonical", ErrInvalidType, t.Type)
	}
	return nil
}
