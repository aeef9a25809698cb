package memory

import (
	"context"
	"testing"

	"gagyebu/internal/core"
)

func TestStoreAppendImport(t *testing.T) {
	s := New()
	txs := []core.StoredTransaction{{AccountName: "신한카드"}, {AccountName: "신한카드"}}

	ref, err := s.AppendImport(context.Background(), "imp-1", txs)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if got := s.Transactions("imp-1"); len(got) != 2 {
		t.Fatalf("expected 2 mirrored transactions, got %d", len(got))
	}

	// mirroring again keeps the first copy
	ref, err = s.AppendImport(context.Background(), "imp-1", txs[:1])
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected re-append: ref=%q err=%v", ref, err)
	}
	if got := s.Transactions("imp-1"); len(got) != 2 {
		t.Errorf("re-append changed stored rows: %d", len(got))
	}

	if _, err := s.AppendImport(context.Background(), "imp-2", nil); err != nil {
		t.Fatalf("append empty import: %v", err)
	}
	if got := s.Imports(); len(got) != 2 || got[0] != "imp-1" || got[1] != "imp-2" {
		t.Errorf("unexpected import order: %v", got)
	}
}

func TestStoreRejectsEmptyID(t *testing.T) {
	if _, err := New().AppendImport(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty import id")
	}
}
