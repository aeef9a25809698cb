package sheets

import (
	"context"

	"gagyebu/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror copies the transactions of one import to a
	// downstream spreadsheet. Mirroring the same import twice must not
	// duplicate rows.
	TransactionMirror interface {
		AppendImport(ctx context.Context, importFileID string, txs []core.StoredTransaction) (rowRef string, err error)
	}
)
