package services

import (
	"context"
	"fmt"
	"log/slog"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/export"
	"gagyebu/internal/ingest"
	applog "gagyebu/internal/log"
	"gagyebu/internal/spreadsheet"
)

const DefaultPreviewRows = 50

// ImportStore is the persistence the import pipeline needs.
type ImportStore interface {
	ListTransactionsInRange(ctx context.Context, userID string, from, to core.Date) ([]core.ExistingTransaction, error)
	CommitImport(ctx context.Context, batch core.ImportBatch) (core.ImportFile, core.Account, error)
	ListImportFiles(ctx context.Context, userID string) ([]core.ImportFile, error)
	GetImportFile(ctx context.Context, userID, id string) (core.ImportFile, error)
	ListImportTransactions(ctx context.Context, importFileID string) ([]core.StoredTransaction, error)
}

// EventPublisher announces committed imports to downstream consumers.
type EventPublisher interface {
	PublishImportCommitted(ctx context.Context, msg *amqp.ImportCommittedMessage) error
}

type ImportConfig struct {
	PreviewRows int
	// CreditType is the type given to negative amounts without a type column.
	CreditType core.TxType
}

// ImportService runs statement previews and commits.
//
// Commits are not coordinated with each other. Duplicate detection only sees
// transactions that were committed before the existing records were read, so
// two concurrent commits of overlapping files can both insert the same rows.
type ImportService struct {
	store      ImportStore
	publisher  EventPublisher
	normalizer *ingest.Normalizer
	cfg        ImportConfig
}

// NewImportService creates the service. publisher may be nil, in which case
// commits are not announced.
func NewImportService(store ImportStore, publisher EventPublisher, cfg ImportConfig) *ImportService {
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	return &ImportService{
		store:      store,
		publisher:  publisher,
		normalizer: ingest.NewNormalizer(cfg.CreditType),
		cfg:        cfg,
	}
}

type PreviewResult struct {
	Filename         string                 `json:"filename"`
	Headers          []string               `json:"headers"`
	RowCount         int                    `json:"rowCount"`
	Preview          []core.RawRow          `json:"preview"`
	SuggestedMapping core.ColumnMapping     `json:"suggestedMapping"`
	Confidence       map[core.Field]float64 `json:"confidence"`
	Unmapped         []string               `json:"unmapped"`
}

type CommitRequest struct {
	Data        []byte
	Filename    string
	Mapping     core.ColumnMapping
	UserID      string
	AccountName string
}

type CommitResult struct {
	Imported          int               `json:"imported"`
	DuplicatesSkipped int               `json:"duplicatesSkipped"`
	RowsSkipped       int               `json:"rowsSkipped"`
	ImportFileID      string            `json:"importFileId"`
	AccountID         int64             `json:"accountId"`
	AccountName       string            `json:"accountName"`
	Skipped           []ingest.RowError `json:"skipped,omitempty"`
}

func readSheet(data []byte, filename string) (*spreadsheet.Sheet, error) {
	kind, err := spreadsheet.KindFromFilename(filename)
	if err != nil {
		return nil, err
	}
	sheet, err := spreadsheet.Read(data, kind)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return sheet, nil
}

// suggest returns the mapping Preview proposes for headers.
func suggest(headers []string) (core.ColumnMapping, ingest.Suggestion) {
	suggestion := ingest.Suggest(headers)
	mapping := suggestion.Mapping
	if !mapping.Has(core.FieldAmount) {
		mapping = ingest.CompleteSplitAmounts(headers, mapping)
	}
	return mapping, suggestion
}

// Preview decodes the file and suggests a mapping. It has no side effects.
func (s *ImportService) Preview(ctx context.Context, data []byte, filename string) (PreviewResult, error) {
	sheet, err := readSheet(data, filename)
	if err != nil {
		return PreviewResult{}, err
	}

	mapping, suggestion := suggest(sheet.Headers)

	slog.DebugContext(ctx, "Previewed statement",
		"filename", filename,
		"rows", sheet.RowCount,
		"mapped_fields", len(mapping))

	return PreviewResult{
		Filename:         filename,
		Headers:          sheet.Headers,
		RowCount:         sheet.RowCount,
		Preview:          sheet.Preview(s.cfg.PreviewRows),
		SuggestedMapping: mapping,
		Confidence:       suggestion.Confidence,
		Unmapped:         suggestion.Unmapped,
	}, nil
}

// Commit normalizes the file with the confirmed mapping and stores every
// transaction that does not exactly repeat one already stored for the user.
// Provenance and transactions are written in one database transaction.
func (s *ImportService) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if err := req.Mapping.Validate(); err != nil {
		return CommitResult{}, err
	}

	sheet, err := readSheet(req.Data, req.Filename)
	if err != nil {
		return CommitResult{}, err
	}
	return s.commitSheet(ctx, req, sheet)
}

// CommitSuggested commits with the mapping Preview would suggest for the
// file, ignoring req.Mapping. The file is decoded once.
func (s *ImportService) CommitSuggested(ctx context.Context, req CommitRequest) (CommitResult, error) {
	sheet, err := readSheet(req.Data, req.Filename)
	if err != nil {
		return CommitResult{}, err
	}

	req.Mapping, _ = suggest(sheet.Headers)
	if err := req.Mapping.Validate(); err != nil {
		return CommitResult{}, fmt.Errorf("suggested mapping: %w", err)
	}
	return s.commitSheet(ctx, req, sheet)
}

func (s *ImportService) commitSheet(ctx context.Context, req CommitRequest, sheet *spreadsheet.Sheet) (CommitResult, error) {
	normalized, err := s.normalizer.Normalize(sheet.Headers, sheet.Rows, req.Mapping)
	if err != nil {
		return CommitResult{}, err
	}
	if len(normalized.Transactions) == 0 {
		return CommitResult{}, fmt.Errorf("%d of %d rows skipped: %w", len(normalized.Skipped), sheet.RowCount, core.ErrNoValidRows)
	}

	accountName := ingest.ResolveAccountName(req.AccountName, req.Filename, sheet.Headers, normalized.Transactions)

	from, to, _ := core.Span(normalized.Transactions)
	existing, err := s.store.ListTransactionsInRange(ctx, req.UserID, from, to)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load existing transactions: %w", err)
	}

	matches := ingest.Detect(normalized.Transactions, existing)
	duplicates := ingest.DuplicateRows(matches)
	fresh := make([]core.NormalizedTransaction, 0, len(normalized.Transactions)-len(duplicates))
	for _, tx := range normalized.Transactions {
		if !duplicates[tx.Row] {
			fresh = append(fresh, tx)
		}
	}

	file, account, err := s.store.CommitImport(ctx, core.ImportBatch{
		File: core.ImportFile{
			UserID:            req.UserID,
			Filename:          req.Filename,
			OriginalHeaders:   sheet.Headers,
			RowCount:          sheet.RowCount,
			Imported:          len(fresh),
			DuplicatesSkipped: len(duplicates),
			RowsSkipped:       len(normalized.Skipped),
		},
		Account: core.Account{
			UserID: req.UserID,
			Name:   accountName,
			Type:   core.AccountTypeFor(accountName),
		},
		CardName:     accountName,
		Transactions: fresh,
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit import: %w", err)
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogImportCommitted(ctx,
		file.ID, req.UserID, account.Name, len(fresh), len(duplicates), len(normalized.Skipped))

	s.publishCommitted(ctx, amqp.NewImportCommittedMessage(file.ID, req.UserID, account.ID, len(fresh)))

	return CommitResult{
		Imported:          len(fresh),
		DuplicatesSkipped: len(duplicates),
		RowsSkipped:       len(normalized.Skipped),
		ImportFileID:      file.ID,
		AccountID:         account.ID,
		AccountName:       account.Name,
		Skipped:           normalized.Skipped,
	}, nil
}

// publishCommitted never fails the commit: the data is already stored and
// the worker's pending scan picks up lost announcements.
func (s *ImportService) publishCommitted(ctx context.Context, msg *amqp.ImportCommittedMessage) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping import committed message")
		return
	}
	if err := s.publisher.PublishImportCommitted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish import committed message",
			"import_file_id", msg.ImportFileID,
			"error", err)
	}
}

// ListImports returns the user's imports, newest first.
func (s *ImportService) ListImports(ctx context.Context, userID string) ([]core.ImportFile, error) {
	files, err := s.store.ListImportFiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return files, nil
}

// ExportImport renders the transactions of one of the user's imports.
func (s *ImportService) ExportImport(ctx context.Context, userID, importFileID string, format export.Format) (export.Document, error) {
	file, err := s.store.GetImportFile(ctx, userID, importFileID)
	if err != nil {
		return export.Document{}, err
	}
	txs, err := s.store.ListImportTransactions(ctx, file.ID)
	if err != nil {
		return export.Document{}, fmt.Errorf("load import transactions: %w", err)
	}
	doc, err := export.Render(format, file, txs)
	if err != nil {
		return export.Document{}, fmt.Errorf("render export: %w", err)
	}
	return doc, nil
}
