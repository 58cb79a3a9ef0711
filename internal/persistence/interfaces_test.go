package persistence

import (
	"errors"
	"inboxdigest/internal/core"
	"testing"
	"time"
)

func TestChunkBlocks(t *testing.T) {
	blocks := make([]core.Block, 150)
	chunks := ChunkBlocks(blocks, BlockBatchSize)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 50 {
		t.Errorf("Expected chunk sizes 100 and 50, got %d and %d", len(chunks[0]), len(chunks[1]))
	}

	if got := ChunkBlocks(nil, BlockBatchSize); len(got) != 0 {
		t.Errorf("Expected no chunks for empty input, got %d", len(got))
	}
	if got := ChunkBlocks(make([]core.Block, 200), 0); len(got) != 2 {
		t.Errorf("Expected default batch size for size 0, got %d chunks", len(got))
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	err := &StoreError{Op: "update status", ID: "p1", Err: ErrNotFound}
	if !errors.Is(err, ErrNotFound) {
		t.Error("Expected StoreError to unwrap to ErrNotFound")
	}
	if err.Error() != "store update status p1: not found" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{
		Start: time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC),
	}
	if !r.Contains(time.Date(2025, 1, 19, 22, 0, 0, 0, time.UTC)) {
		t.Error("Expected end day to be inclusive")
	}
	if r.Contains(time.Date(2025, 1, 12, 23, 59, 0, 0, time.UTC)) {
		t.Error("Expected day before start to be excluded")
	}
}
