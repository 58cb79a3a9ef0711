// Package pipeline ingests pending items: deduplicates, fetches, classifies,
// summarizes and gates them into ready or pending-review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/dedupe"
	"inboxdigest/internal/fetch"
	"inboxdigest/internal/preprocess"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of processing one item.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeError       Outcome = "error"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeUnprocessed Outcome = "unprocessed"
)

// Status notes persisted with error and unprocessed outcomes.
const (
	ReasonAttachmentOnly = "Attachment stored; no URL; OCR out of scope; excluded from digests"
	ReasonAttachmentURL  = "Attachment stored; OCR out of scope; excluded from digests"
	ReasonMissingURL     = "missing url"
	ReasonInvalidTweet   = "invalid tweet url"
	ReasonBlocked        = "fetch blocked: JS/anti-bot page returned; retry in logged-in browser"
	ReasonNoContent      = "no content"
	NoteTitleFromSummary = "Backfilled Name from summary"
)

var unprocessableSuffixes = []string{".pdf", ".png", ".jpg", ".jpeg", ".gif", ".webp"}

// Config holds pipeline configuration
type Config struct {
	// ConfidenceThreshold sends classifications scoring strictly below it to review
	ConfidenceThreshold float64

	// SourceStatus overrides the accepted status per capture source
	SourceStatus map[core.Source]core.Status

	// Workers bounds concurrent item processing; 1 processes sequentially
	Workers int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.5, Workers: 1}
}

// Pipeline processes pending items one at a time or with bounded concurrency.
type Pipeline struct {
	store      Store
	fetcher    ContentFetcher
	summarizer Summarizer
	dedupe     *dedupe.Deduplicator
	config     Config
	logger     zerolog.Logger
}

// New creates a pipeline over the given collaborators.
func New(store Store, fetcher ContentFetcher, summarizer Summarizer, config Config) *Pipeline {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Pipeline{
		store:      store,
		fetcher:    fetcher,
		summarizer: summarizer,
		dedupe:     dedupe.NewDeduplicator(store),
		config:     config,
		logger:     zerolog.Nop(),
	}
}

// WithLogger sets the pipeline logger.
func (p *Pipeline) WithLogger(l zerolog.Logger) *Pipeline {
	p.logger = l
	return p
}

// ProcessItem runs one item through dedupe, fetch, classification and
// summarization. Per-item failures are persisted as a status with a reason
// and reported through the outcome; the returned error is reserved for
// store writes that could not record that status.
func (p *Pipeline) ProcessItem(ctx context.Context, item core.Item) (Outcome, error) {
	log := p.logger.With().Str("item_id", item.ID).Str("url", item.URL).Logger()

	if !item.HasURL() {
		if len(item.Attachments) > 0 {
			return p.mark(ctx, item.ID, core.StatusUnprocessed, ReasonAttachmentOnly, OutcomeUnprocessed)
		}
		return p.mark(ctx, item.ID, core.StatusError, ReasonMissingURL, OutcomeError)
	}
	rawURL := strings.TrimSpace(item.URL)

	canonical, err := dedupe.Canonicalize(rawURL)
	if err != nil {
		if errors.Is(err, dedupe.ErrInvalidPlatformURL) {
			return p.mark(ctx, item.ID, core.StatusError, ReasonInvalidTweet, OutcomeError)
		}
		return p.mark(ctx, item.ID, core.StatusError, fmt.Sprintf("invalid url: %v", err), OutcomeError)
	}

	owner, err := p.dedupe.FindOwner(ctx, canonical, item.ID)
	if err != nil {
		return OutcomeError, err
	}
	if owner != "" {
		log.Info().Str("owner_id", owner).Str("canonical_url", canonical).Msg("duplicate item")
		if err := p.store.SetDuplicateOf(ctx, item.ID, owner, "Duplicate of "+owner); err != nil {
			return OutcomeError, fmt.Errorf("failed to mark duplicate: %w", err)
		}
		return OutcomeDuplicate, nil
	}

	// The claim on canonical is only kept once the classification carrying it
	// has been written.
	persisted := false
	defer func() {
		if !persisted {
			p.dedupe.Release(canonical, item.ID)
		}
	}()

	if hasUnprocessableSuffix(rawURL) {
		return p.mark(ctx, item.ID, core.StatusUnprocessed, ReasonAttachmentURL, OutcomeUnprocessed)
	}

	text, err := p.fetcher.FetchContent(ctx, rawURL)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed")
		if errors.Is(err, fetch.ErrBlocked) {
			return p.mark(ctx, item.ID, core.StatusError, ReasonBlocked, OutcomeError)
		}
		return p.mark(ctx, item.ID, core.StatusError, "fetch failed: "+err.Error(), OutcomeError)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.mark(ctx, item.ID, core.StatusError, ReasonNoContent, OutcomeError)
	}
	if fetch.IsBlockedText(text) {
		return p.mark(ctx, item.ID, core.StatusError, ReasonBlocked, OutcomeError)
	}

	classification, err := p.summarizer.Classify(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("classification failed")
		return p.mark(ctx, item.ID, core.StatusError, "classification failed: "+err.Error(), OutcomeError)
	}
	classification.RawContent = text
	classification.CanonicalURL = canonical
	classification.Source = item.Source
	if classification.Source == "" {
		classification.Source = core.SourceManual
	}
	if err := p.store.SetClassification(ctx, item.ID, classification); err != nil {
		return OutcomeError, fmt.Errorf("failed to store classification: %w", err)
	}
	persisted = true
	p.dedupe.Keep(canonical, item.ID)

	summary, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("summarization failed")
		return p.mark(ctx, item.ID, core.StatusError, "summarization failed: "+err.Error(), OutcomeError)
	}

	status := p.acceptedStatus(classification)
	if err := p.store.SetSummary(ctx, item.ID, summary.Display(), status); err != nil {
		return OutcomeError, fmt.Errorf("failed to store summary: %w", err)
	}

	if !preprocess.IsMeaningfulTitle(item.Title, rawURL) {
		if title := preprocess.FirstLine(summary.TLDR); title != "" {
			if err := p.store.SetTitle(ctx, item.ID, title, NoteTitleFromSummary); err != nil {
				return OutcomeError, fmt.Errorf("failed to backfill title: %w", err)
			}
		}
	}

	log.Debug().Str("status", string(status)).Float64("confidence", classification.Confidence).Strs("tags", classification.Tags).Msg("item processed")
	return OutcomeSuccess, nil
}

// acceptedStatus gates on confidence: strictly below the threshold goes to
// review, everything else is ready or the source's configured status.
func (p *Pipeline) acceptedStatus(c core.Classification) core.Status {
	if c.Confidence < p.config.ConfidenceThreshold {
		return core.StatusPendingReview
	}
	if status, ok := p.config.SourceStatus[c.Source]; ok && status != "" {
		return status
	}
	return core.StatusReady
}

func (p *Pipeline) mark(ctx context.Context, id string, status core.Status, reason string, outcome Outcome) (Outcome, error) {
	if err := p.store.UpdateStatus(ctx, id, status, reason); err != nil {
		return OutcomeError, fmt.Errorf("failed to set status %s: %w", status, err)
	}
	return outcome, nil
}

func hasUnprocessableSuffix(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, suffix := range unprocessableSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Counters tallies outcomes over a batch.
type Counters struct {
	Success     int
	Error       int
	Duplicate   int
	Unprocessed int
}

func (c *Counters) add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		c.Success++
	case OutcomeDuplicate:
		c.Duplicate++
	case OutcomeUnprocessed:
		c.Unprocessed++
	default:
		c.Error++
	}
}

// Total returns the number of items counted.
func (c Counters) Total() int {
	return c.Success + c.Error + c.Duplicate + c.Unprocessed
}

// ProcessBatch processes items and logs the totals. A failing item never
// stops the batch. With more than one worker, items run concurrently and
// canonical URL ownership is settled through the in-process claim set.
func (p *Pipeline) ProcessBatch(ctx context.Context, items []core.Item) Counters {
	var (
		mu       sync.Mutex
		counters Counters
	)
	record := func(item core.Item, outcome Outcome, err error) {
		if err != nil {
			p.logger.Error().Err(err).Str("item_id", item.ID).Msg("item failed")
			outcome = OutcomeError
		}
		mu.Lock()
		counters.add(outcome)
		mu.Unlock()
	}

	if p.config.Workers <= 1 {
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			outcome, err := p.ProcessItem(ctx, item)
			record(item, outcome, err)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.config.Workers)
		for _, item := range items {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				outcome, err := p.ProcessItem(gctx, item)
				record(item, outcome, err)
				return nil
			})
		}
		_ = g.Wait()
	}

	p.logger.Info().
		Int("success", counters.Success).
		Int("error", counters.Error).
		Int("duplicate", counters.Duplicate).
		Int("unprocessed", counters.Unprocessed).
		Msg("ingest complete")
	return counters
}
