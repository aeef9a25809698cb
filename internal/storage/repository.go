package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gagyebu/internal/core"

	_ "modernc.org/sqlite"
)

// MaxMirrorAttempts bounds how often the worker retries mirroring one import.
const MaxMirrorAttempts = 5

// fixed width so timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// PendingMirror is an import whose downstream copy has not been written yet.
type PendingMirror struct {
	ImportFileID string
	Attempts     int
	LastError    string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Writers wait for each other instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListTransactionsInRange returns the user's transactions dated within
// [from, to], both inclusive.
func (r *SQLiteRepository) ListTransactionsInRange(ctx context.Context, userID string, from, to core.Date) ([]core.ExistingTransaction, error) {
	rows, err := r.queries.ListTransactionsInRange(ctx, userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions in range: %w", err)
	}
	out := make([]core.ExistingTransaction, 0, len(rows))
	for _, row := range rows {
		tx, err := toExisting(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// CommitImport persists one import atomically: the account is found or
// created, then the provenance row, every transaction and the mirror
// bookkeeping row are inserted in a single SQL transaction.
func (r *SQLiteRepository) CommitImport(ctx context.Context, batch core.ImportBatch) (core.ImportFile, core.Account, error) {
	now := r.now()
	stamp := now.Format(timeLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	// A write first, so SQLite takes the write lock up front.
	if err := q.InsertAccount(ctx, InsertAccountParams{
		UserID:    batch.Account.UserID,
		Name:      batch.Account.Name,
		Type:      string(batch.Account.Type),
		CreatedAt: stamp,
	}); err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	acc, err := q.GetAccountByName(ctx, batch.Account.UserID, batch.Account.Name)
	if err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("get account: %w", err)
	}

	file := batch.File
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	file.AccountID = acc.ID
	file.CreatedAt = now
	headers, err := json.Marshal(nonNil(file.OriginalHeaders))
	if err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("encode headers: %w", err)
	}
	if err := q.CreateImportFile(ctx, ImportFile{
		ID:                file.ID,
		UserID:            file.UserID,
		Filename:          file.Filename,
		OriginalHeaders:   string(headers),
		RowCount:          int64(file.RowCount),
		Imported:          int64(file.Imported),
		DuplicatesSkipped: int64(file.DuplicatesSkipped),
		RowsSkipped:       int64(file.RowsSkipped),
		AccountID:         acc.ID,
		CreatedAt:         stamp,
	}); err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("create import file: %w", err)
	}

	for _, t := range batch.Transactions {
		if err := t.Validate(); err != nil {
			return core.ImportFile{}, core.Account{}, fmt.Errorf("validate transaction row %d: %w", t.Row, err)
		}
		original, err := json.Marshal(nonNil(t.Original))
		if err != nil {
			return core.ImportFile{}, core.Account{}, fmt.Errorf("encode original row %d: %w", t.Row, err)
		}
		if _, err := q.CreateTransaction(ctx, Transaction{
			UserID:       file.UserID,
			AccountID:    acc.ID,
			SourceFileID: sql.NullString{String: file.ID, Valid: true},
			Date:         t.Date.String(),
			Merchant:     t.Merchant,
			Amount:       t.Amount.String(),
			Type:         string(t.Type),
			Memo:         t.Memo,
			CardName:     batch.CardName,
			Status:       core.StatusConfirmed,
			Original:     string(original),
			SourceRow:    int64(t.Row),
			CreatedAt:    stamp,
		}); err != nil {
			return core.ImportFile{}, core.Account{}, fmt.Errorf("insert transaction row %d: %w", t.Row, err)
		}
	}

	if err := q.CreateImportMirror(ctx, file.ID, stamp); err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("create import mirror: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.ImportFile{}, core.Account{}, fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Import saved to SQLite",
		"import_file_id", file.ID,
		"account_id", acc.ID,
		"transactions", len(batch.Transactions))

	return file, toAccount(acc), nil
}

// ListImportFiles returns the user's imports, newest first.
func (r *SQLiteRepository) ListImportFiles(ctx context.Context, userID string) ([]core.ImportFile, error) {
	rows, err := r.queries.ListImportFiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list import files: %w", err)
	}
	out := make([]core.ImportFile, 0, len(rows))
	for _, row := range rows {
		f, err := toImportFile(row)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// GetImportFile returns core.ErrNotFound when the import does not exist or
// belongs to another user.
func (r *SQLiteRepository) GetImportFile(ctx context.Context, userID, id string) (core.ImportFile, error) {
	row, err := r.queries.GetImportFile(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportFile{}, fmt.Errorf("import %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ImportFile{}, fmt.Errorf("get import file: %w", err)
	}
	if userID != "" && row.UserID != userID {
		return core.ImportFile{}, fmt.Errorf("import %s: %w", id, core.ErrNotFound)
	}
	return toImportFile(row)
}

// ListImportTransactions returns the transactions an import inserted, in
// source row order.
func (r *SQLiteRepository) ListImportTransactions(ctx context.Context, importFileID string) ([]core.StoredTransaction, error) {
	rows, err := r.queries.ListTransactionsByImport(ctx, importFileID)
	if err != nil {
		return nil, fmt.Errorf("list import transactions: %w", err)
	}

	names := make(map[int64]string)
	out := make([]core.StoredTransaction, 0, len(rows))
	for _, row := range rows {
		existing, err := toExisting(row)
		if err != nil {
			return nil, err
		}
		name, ok := names[row.AccountID]
		if !ok {
			acc, err := r.queries.GetAccount(ctx, row.AccountID)
			if err != nil {
				return nil, fmt.Errorf("get account %d: %w", row.AccountID, err)
			}
			name = acc.Name
			names[row.AccountID] = name
		}
		var original core.RawRow
		if err := json.Unmarshal([]byte(row.Original), &original); err != nil {
			return nil, fmt.Errorf("decode original of transaction %d: %w", row.ID, err)
		}
		out = append(out, core.StoredTransaction{
			ExistingTransaction: existing,
			UserID:              row.UserID,
			AccountName:         name,
			CardName:            row.CardName,
			Status:              row.Status,
			Original:            original,
			Row:                 int(row.SourceRow),
		})
	}
	return out, nil
}

// PendingMirrors lists imports not yet copied downstream, oldest first.
func (r *SQLiteRepository) PendingMirrors(ctx context.Context, limit int) ([]PendingMirror, error) {
	rows, err := r.queries.ListPendingMirrors(ctx, MaxMirrorAttempts, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending mirrors: %w", err)
	}
	out := make([]PendingMirror, len(rows))
	for i, m := range rows {
		out[i] = PendingMirror{
			ImportFileID: m.ImportFileID,
			Attempts:     int(m.Attempts),
			LastError:    m.LastError,
		}
	}
	return out, nil
}

// MirrorStatus reports the mirror state of one import.
func (r *SQLiteRepository) MirrorStatus(ctx context.Context, importFileID string) (string, error) {
	m, err := r.queries.GetImportMirror(ctx, importFileID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("mirror %s: %w", importFileID, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get import mirror: %w", err)
	}
	return m.Status, nil
}

func (r *SQLiteRepository) MarkMirrored(ctx context.Context, importFileID string) error {
	n, err := r.queries.MarkMirrored(ctx, importFileID, r.now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("mark import mirrored: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mirror %s: %w", importFileID, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Import marked as mirrored", "import_file_id", importFileID)
	return nil
}

func (r *SQLiteRepository) MarkMirrorError(ctx context.Context, importFileID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	n, err := r.queries.MarkMirrorError(ctx, importFileID, msg, r.now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("mark import mirror error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mirror %s: %w", importFileID, core.ErrNotFound)
	}
	slog.WarnContext(ctx, "Import marked with mirror error", "import_file_id", importFileID, "error", msg)
	return nil
}

func toExisting(row Transaction) (core.ExistingTransaction, error) {
	date, err := core.ParseISODate(row.Date)
	if err != nil {
		return core.ExistingTransaction{}, fmt.Errorf("transaction %d date: %w", row.ID, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.ExistingTransaction{}, fmt.Errorf("transaction %d amount: %w", row.ID, err)
	}
	return core.ExistingTransaction{
		ID:           row.ID,
		AccountID:    row.AccountID,
		SourceFileID: row.SourceFileID.String,
		Date:         date,
		Merchant:     row.Merchant,
		Amount:       amount,
		Type:         core.TxType(row.Type),
		Memo:         row.Memo,
	}, nil
}

func toImportFile(row ImportFile) (core.ImportFile, error) {
	var headers []string
	if err := json.Unmarshal([]byte(row.OriginalHeaders), &headers); err != nil {
		return core.ImportFile{}, fmt.Errorf("decode headers of import %s: %w", row.ID, err)
	}
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return core.ImportFile{}, fmt.Errorf("parse created_at of import %s: %w", row.ID, err)
	}
	return core.ImportFile{
		ID:                row.ID,
		UserID:            row.UserID,
		Filename:          row.Filename,
		OriginalHeaders:   headers,
		RowCount:          int(row.RowCount),
		Imported:          int(row.Imported),
		DuplicatesSkipped: int(row.DuplicatesSkipped),
		RowsSkipped:       int(row.RowsSkipped),
		AccountID:         row.AccountID,
		CreatedAt:         created,
	}, nil
}

func toAccount(a Account) core.Account {
	return core.Account{
		ID:     a.ID,
		UserID: a.UserID,
		Name:   a.Name,
		Type:   core.AccountType(a.Type),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
