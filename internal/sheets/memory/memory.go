package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gagyebu/internal/core"
	ports "gagyebu/internal/sheets"
)

// Store is an in-process mirror used when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	order   []string
	imports map[string][]core.StoredTransaction
}

var _ ports.TransactionMirror = (*Store)(nil)

func New() *Store {
	return &Store{imports: make(map[string][]core.StoredTransaction)}
}

// AppendImport keeps txs in memory and returns a synthetic reference.
func (s *Store) AppendImport(ctx context.Context, importFileID string, txs []core.StoredTransaction) (string, error) {
	if importFileID == "" {
		return "", fmt.Errorf("import file id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.imports[importFileID]; !ok {
		s.order = append(s.order, importFileID)
		s.imports[importFileID] = append([]core.StoredTransaction(nil), txs...)
	}
	slog.InfoContext(ctx, "Import mirrored in memory", "import_file_id", importFileID, "rows", len(txs))
	return fmt.Sprintf("mem:%d", len(s.order)), nil
}

// Imports returns mirrored import ids in first-mirrored order.
func (s *Store) Imports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Store) Transactions(importFileID string) []core.StoredTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.StoredTransaction(nil), s.imports[importFileID]...)
}
