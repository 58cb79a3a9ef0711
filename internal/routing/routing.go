// Package routing decides which processing flow a saved item takes.
package routing

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"strings"
)

const (
	ReasonHasURL      = "Has URL"
	ReasonHasBlocks   = "Has content blocks but no URL"
	ReasonEmptyRecord = "No URL and no content blocks"
)

// BlockChecker reports whether a record carries body content.
type BlockChecker interface {
	HasContentBlocks(ctx context.Context, id string) (bool, error)
}

// Router classifies items as URL resources, notes, or empty records.
type Router struct {
	blocks BlockChecker
}

// NewRouter creates a Router backed by a block checker.
func NewRouter(blocks BlockChecker) *Router {
	return &Router{blocks: blocks}
}

// ClassifyItem returns the item's kind and the reason for it. The block
// check is only made when the item has no URL.
func (r *Router) ClassifyItem(ctx context.Context, item core.Item) (core.ItemKind, string, error) {
	if strings.TrimSpace(item.URL) != "" {
		return core.KindURLResource, ReasonHasURL, nil
	}

	hasBlocks, err := r.blocks.HasContentBlocks(ctx, item.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check content blocks for %s: %w", item.ID, err)
	}
	if hasBlocks {
		return core.KindNoteContent, ReasonHasBlocks, nil
	}
	return core.KindEmptyInvalid, ReasonEmptyRecord, nil
}
