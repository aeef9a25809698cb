package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/sheets"
	"gagyebu/internal/storage"
)

const statusMirrored = "mirrored"

// Store is the bookkeeping the mirror worker reads and updates.
type Store interface {
	ListImportTransactions(ctx context.Context, importFileID string) ([]core.StoredTransaction, error)
	PendingMirrors(ctx context.Context, limit int) ([]storage.PendingMirror, error)
	MirrorStatus(ctx context.Context, importFileID string) (string, error)
	MarkMirrored(ctx context.Context, importFileID string) error
	MarkMirrorError(ctx context.Context, importFileID string, cause error) error
}

// MirrorWorker copies committed imports to the spreadsheet mirror.
type MirrorWorker struct {
	store     Store
	mirror    sheets.TransactionMirror
	batchSize int
}

func NewMirrorWorker(store Store, mirror sheets.TransactionMirror, batchSize int) *MirrorWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &MirrorWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleImportCommitted mirrors the announced import. Redelivered messages
// for imports that are already mirrored are acknowledged without writing.
func (w *MirrorWorker) HandleImportCommitted(ctx context.Context, msg *amqp.ImportCommittedMessage) error {
	slog.InfoContext(ctx, "Processing import committed message",
		"import_file_id", msg.ImportFileID,
		"user_id", msg.UserID,
		"imported", msg.Imported)

	status, err := w.store.MirrorStatus(ctx, msg.ImportFileID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Unknown import, dropping message", "import_file_id", msg.ImportFileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get mirror status: %w", err)
	}
	if status == statusMirrored {
		slog.DebugContext(ctx, "Import already mirrored", "import_file_id", msg.ImportFileID)
		return nil
	}

	return w.mirrorImport(ctx, msg.ImportFileID)
}

// ProcessPending mirrors imports whose announcement was lost or whose
// previous attempt failed.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupCheck drains a larger batch of pending imports when the worker starts.
func (w *MirrorWorker) StartupCheck(ctx context.Context) error {
	total, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	if total == 0 {
		slog.InfoContext(ctx, "No pending imports found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup mirror check completed",
		"total", total,
		"mirrored", total-failed,
		"errors", failed)
	return nil
}

func (w *MirrorWorker) processPending(ctx context.Context, limit int) (total, failed int, err error) {
	pending, err := w.store.PendingMirrors(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending imports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending imports", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return total, failed, ctx.Err()
		}
		total++
		if err := w.mirrorImport(ctx, p.ImportFileID); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror import",
				"import_file_id", p.ImportFileID,
				"attempts", p.Attempts+1,
				"error", err)
			failed++
		}
	}
	return total, failed, nil
}

func (w *MirrorWorker) mirrorImport(ctx context.Context, importFileID string) error {
	txs, err := w.store.ListImportTransactions(ctx, importFileID)
	if err != nil {
		return w.fail(ctx, importFileID, fmt.Errorf("load transactions: %w", err))
	}

	ref, err := w.mirror.AppendImport(ctx, importFileID, txs)
	if err != nil {
		return w.fail(ctx, importFileID, fmt.Errorf("append to mirror: %w", err))
	}

	// the rows are written; a bookkeeping failure only means a later no-op retry
	if err := w.store.MarkMirrored(ctx, importFileID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark import mirrored", "import_file_id", importFileID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully mirrored import",
		"import_file_id", importFileID,
		"mirror_ref", ref,
		"rows", len(txs))
	return nil
}

func (w *MirrorWorker) fail(ctx context.Context, importFileID string, cause error) error {
	if err := w.store.MarkMirrorError(ctx, importFileID, cause); err != nil {
		slog.ErrorContext(ctx, "Failed to mark mirror error", "import_file_id", importFileID, "error", err)
	}
	return cause
}
