package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Account struct {
	ID        int64
	UserID    string
	Name      string
	Type      string
	CreatedAt string
}

type ImportFile struct {
	ID                string
	UserID            string
	Filename          string
	OriginalHeaders   string
	RowCount          int64
	Imported          int64
	DuplicatesSkipped int64
	RowsSkipped       int64
	AccountID         int64
	CreatedAt         string
}

type Transaction struct {
	ID           int64
	UserID       string
	AccountID    int64
	SourceFileID sql.NullString
	Date         string
	Merchant     string
	Amount       string
	Type         string
	Memo         string
	CardName     string
	Status       string
	Original     string
	SourceRow    int64
	CreatedAt    string
}

type ImportMirror struct {
	ImportFileID string
	Status       string
	Attempts     int64
	LastError    string
	MirroredAt   sql.NullString
	UpdatedAt    string
}

const insertAccount = `INSERT INTO accounts (user_id, name, type, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, name) DO NOTHING`

type InsertAccountParams struct {
	UserID    string
	Name      string
	Type      string
	CreatedAt string
}

func (q *Queries) InsertAccount(ctx context.Context, arg InsertAccountParams) error {
	_, err := q.db.ExecContext(ctx, insertAccount, arg.UserID, arg.Name, arg.Type, arg.CreatedAt)
	return err
}

const getAccountByName = `SELECT id, user_id, name, type, created_at FROM accounts
WHERE user_id = ? AND name = ?`

func (q *Queries) GetAccountByName(ctx context.Context, userID, name string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByName, userID, name)
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.CreatedAt)
	return a, err
}

const getAccount = `SELECT id, user_id, name, type, created_at FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccount, id)
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.CreatedAt)
	return a, err
}

const createImportFile = `INSERT INTO import_files (
    id, user_id, filename, original_headers, row_count, imported,
    duplicates_skipped, rows_skipped, account_id, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateImportFile(ctx context.Context, arg ImportFile) error {
	_, err := q.db.ExecContext(ctx, createImportFile,
		arg.ID,
		arg.UserID,
		arg.Filename,
		arg.OriginalHeaders,
		arg.RowCount,
		arg.Imported,
		arg.DuplicatesSkipped,
		arg.RowsSkipped,
		arg.AccountID,
		arg.CreatedAt,
	)
	return err
}

const importFileColumns = `id, user_id, filename, original_headers, row_count, imported,
    duplicates_skipped, rows_skipped, account_id, created_at`

func scanImportFile(s interface{ Scan(...any) error }) (ImportFile, error) {
	var f ImportFile
	err := s.Scan(
		&f.ID,
		&f.UserID,
		&f.Filename,
		&f.OriginalHeaders,
		&f.RowCount,
		&f.Imported,
		&f.DuplicatesSkipped,
		&f.RowsSkipped,
		&f.AccountID,
		&f.CreatedAt,
	)
	return f, err
}

const getImportFile = `SELECT ` + importFileColumns + ` FROM import_files WHERE id = ?`

func (q *Queries) GetImportFile(ctx context.Context, id string) (ImportFile, error) {
	return scanImportFile(q.db.QueryRowContext(ctx, getImportFile, id))
}

const listImportFiles = `SELECT ` + importFileColumns + ` FROM import_files
WHERE user_id = ?
ORDER BY created_at DESC, id`

func (q *Queries) ListImportFiles(ctx context.Context, userID string) ([]ImportFile, error) {
	rows, err := q.db.QueryContext(ctx, listImportFiles, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportFile
	for rows.Next() {
		f, err := scanImportFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const createTransaction = `INSERT INTO transactions (
    user_id, account_id, source_file_id, date, merchant, amount, type, memo,
    card_name, status, original, source_row, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, arg Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, createTransaction,
		arg.UserID,
		arg.AccountID,
		arg.SourceFileID,
		arg.Date,
		arg.Merchant,
		arg.Amount,
		arg.Type,
		arg.Memo,
		arg.CardName,
		arg.Status,
		arg.Original,
		arg.SourceRow,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const transactionColumns = `id, user_id, account_id, source_file_id, date, merchant, amount, type,
    memo, card_name, status, original, source_row, created_at`

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.AccountID,
			&t.SourceFileID,
			&t.Date,
			&t.Merchant,
			&t.Amount,
			&t.Type,
			&t.Memo,
			&t.CardName,
			&t.Status,
			&t.Original,
			&t.SourceRow,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const listTransactionsInRange = `SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND date BETWEEN ? AND ?
ORDER BY date, id`

func (q *Queries) ListTransactionsInRange(ctx context.Context, userID, from, to string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsInRange, userID, from, to)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const listTransactionsByImport = `SELECT ` + transactionColumns + ` FROM transactions
WHERE source_file_id = ?
ORDER BY source_row, id`

func (q *Queries) ListTransactionsByImport(ctx context.Context, importFileID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByImport, importFileID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const createImportMirror = `INSERT INTO import_mirrors (import_file_id, status, updated_at)
VALUES (?, 'pending', ?)`

func (q *Queries) CreateImportMirror(ctx context.Context, importFileID, now string) error {
	_, err := q.db.ExecContext(ctx, createImportMirror, importFileID, now)
	return err
}

const listPendingMirrors = `SELECT m.import_file_id, m.status, m.attempts, m.last_error, m.mirrored_at, m.updated_at
FROM import_mirrors m
JOIN import_files f ON f.id = m.import_file_id
WHERE m.status IN ('pending', 'error') AND m.attempts < ?
ORDER BY f.created_at, f.id
LIMIT ?`

func (q *Queries) ListPendingMirrors(ctx context.Context, maxAttempts, limit int64) ([]ImportMirror, error) {
	rows, err := q.db.QueryContext(ctx, listPendingMirrors, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportMirror
	for rows.Next() {
		var m ImportMirror
		if err := rows.Scan(&m.ImportFileID, &m.Status, &m.Attempts, &m.LastError, &m.MirroredAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const getImportMirror = `SELECT import_file_id, status, attempts, last_error, mirrored_at, updated_at
FROM import_mirrors WHERE import_file_id = ?`

func (q *Queries) GetImportMirror(ctx context.Context, importFileID string) (ImportMirror, error) {
	var m ImportMirror
	err := q.db.QueryRowContext(ctx, getImportMirror, importFileID).
		Scan(&m.ImportFileID, &m.Status, &m.Attempts, &m.LastError, &m.MirroredAt, &m.UpdatedAt)
	return m, err
}

const markMirrored = `UPDATE import_mirrors
SET status = 'mirrored', attempts = attempts + 1, last_error = '', mirrored_at = ?, updated_at = ?
WHERE import_file_id = ?`

func (q *Queries) MarkMirrored(ctx context.Context, importFileID, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markMirrored, now, now, importFileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markMirrorError = `UPDATE import_mirrors
SET status = 'error', attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE import_file_id = ?`

func (q *Queries) MarkMirrorError(ctx context.Context, importFileID, msg, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markMirrorError, msg, now, importFileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
