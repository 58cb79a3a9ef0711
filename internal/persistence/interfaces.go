// Package persistence defines the storage contracts for saved items and digest reports
package persistence

import (
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"time"
)

// BlockBatchSize is the most blocks a store accepts in a single write.
const BlockBatchSize = 100

// ErrNotFound is returned when a lookup by identifier has no match.
var ErrNotFound = errors.New("not found")

// StoreError wraps a failure reported by the backing store.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := core.Day(t)
	return !d.Before(core.Day(r.Start)) && !d.After(core.Day(r.End))
}

// ItemStore handles saved item persistence operations
type ItemStore interface {
	// QueryPending lists items awaiting processing
	QueryPending(ctx context.Context) ([]core.Item, error)

	// FindByCanonicalURL returns the item owning a canonical URL, or nil when none does
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Item, error)

	// QueryReadyForDigest lists ready items created inside the range.
	// Private items are omitted unless includePrivate is set.
	QueryReadyForDigest(ctx context.Context, r DateRange, includePrivate bool) ([]core.Item, error)

	// QueryPendingReview lists items held back for manual review
	QueryPendingReview(ctx context.Context) ([]core.Item, error)

	// UpdateStatus transitions an item and records a note explaining why
	UpdateStatus(ctx context.Context, id string, status core.Status, note string) error

	// SetClassification stores classifier output on an item
	SetClassification(ctx context.Context, id string, c core.Classification) error

	// SetTitle replaces the item's display name
	SetTitle(ctx context.Context, id, title, note string) error

	// SetDuplicateOf marks an item as a duplicate of ownerID and excludes it
	SetDuplicateOf(ctx context.Context, id, ownerID, note string) error

	// SetSummary stores the display summary and the resulting status
	SetSummary(ctx context.Context, id, summary string, status core.Status) error

	// SetItemKind records the routing classification
	SetItemKind(ctx context.Context, id string, kind core.ItemKind) error

	// SetContentType records the detected content type
	SetContentType(ctx context.Context, id string, ct core.ContentType) error

	// HasContentBlocks reports whether the item carries any body content.
	// Any returned block counts, including empty paragraphs.
	HasContentBlocks(ctx context.Context, id string) (bool, error)

	// CreateDigestPage writes an ad-hoc digest page. It returns an empty id
	// when the store has no place configured for such pages.
	CreateDigestPage(ctx context.Context, title string, blocks []core.Block, metadata map[string]string) (string, error)
}

// ReportStore handles digest report persistence operations
type ReportStore interface {
	// FindReport returns the newest report of a type starting on start, or nil when none exists
	FindReport(ctx context.Context, reportType core.ReportType, start time.Time) (*core.Report, error)

	// QueryReportsInRange lists reports of a type whose start falls in [start, end], ascending by start
	QueryReportsInRange(ctx context.Context, reportType core.ReportType, start, end time.Time) ([]core.Report, error)

	// CreateReport persists a report with its provenance and returns the new id
	CreateReport(ctx context.Context, report *core.Report, sourceItemIDs, sourceReportIDs []string) (string, error)
}

// ChunkBlocks splits blocks into consecutive batches of at most size blocks.
func ChunkBlocks(blocks []core.Block, size int) [][]core.Block {
	if size <= 0 {
		size = BlockBatchSize
	}
	var chunks [][]core.Block
	for start := 0; start < len(blocks); start += size {
		end := start + size
		if end > len(blocks) {
			end = len(blocks)
		}
		chunks = append(chunks, blocks[start:end])
	}
	return chunks
}
