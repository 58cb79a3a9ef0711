package pipeline

import (
	"context"
	"inboxdigest/internal/core"
)

// Store is the subset of the item store the pipeline reads and writes.
type Store interface {
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Item, error)
	UpdateStatus(ctx context.Context, id string, status core.Status, note string) error
	SetClassification(ctx context.Context, id string, c core.Classification) error
	SetTitle(ctx context.Context, id, title, note string) error
	SetDuplicateOf(ctx context.Context, id, ownerID, note string) error
	SetSummary(ctx context.Context, id, summary string, status core.Status) error
}

// ContentFetcher retrieves content from URLs
type ContentFetcher interface {
	// FetchContent returns the readable text of a page. Anti-bot and login
	// walls are reported as fetch.ErrBlocked.
	FetchContent(ctx context.Context, url string) (string, error)

	// FetchTitle returns the page title
	FetchTitle(ctx context.Context, url string) (string, error)
}

// Summarizer classifies and summarizes fetched text
type Summarizer interface {
	// Classify assigns tags, sensitivity and a confidence score
	Classify(ctx context.Context, text string) (core.Classification, error)

	// Summarize produces a TL;DR with optional insights
	Summarize(ctx context.Context, text string) (core.Summary, error)
}
