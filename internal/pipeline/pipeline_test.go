package pipeline

import (
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/fetch"
	"inboxdigest/test/mocks"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func withConfidence(conf float64) *mocks.Summarizer {
	return &mocks.Summarizer{
		ClassifyFunc: func(ctx context.Context, text string) (core.Classification, error) {
			return core.Classification{Tags: []string{"Go"}, Sensitivity: core.SensitivityPublic, Confidence: conf, RuleVersion: "r1", PromptVersion: "p1"}, nil
		},
	}
}

func TestProcessItemSuccess(t *testing.T) {
	item := core.Item{ID: "1", URL: "https://Example.com/post?utm_source=x#top", Title: "Go 1.24"}
	store := mocks.NewItemStore(item)
	fetcher := mocks.NewFetcher()
	fetcher.Pages[item.URL] = "Go 1.24 is out."

	outcome, err := New(store, fetcher, withConfidence(0.9), DefaultConfig()).ProcessItem(context.Background(), item)
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("Expected success, got %s, %v", outcome, err)
	}

	got := store.Get("1")
	if got.Status != core.StatusReady {
		t.Errorf("Expected ready, got %s", got.Status)
	}
	if got.CanonicalURL != "https://example.com/post" {
		t.Errorf("Expected canonical url stored, got %q", got.CanonicalURL)
	}
	if got.RawContent != "Go 1.24 is out." || got.Source != core.SourceManual {
		t.Errorf("Expected raw content and default source, got %q %q", got.RawContent, got.Source)
	}
	if got.Summary != "Mock summary\n- Mock insight" {
		t.Errorf("Unexpected summary %q", got.Summary)
	}
	if got.Title != "Go 1.24" {
		t.Errorf("Expected title untouched, got %q", got.Title)
	}
}

func TestConfidenceGating(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       core.Status
	}{
		{"below threshold", 0.49, core.StatusPendingReview},
		{"exactly threshold", 0.5, core.StatusReady},
		{"above threshold", 0.51, core.StatusReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := core.Item{ID: "1", URL: "https://example.com/a", Title: "A"}
			store := mocks.NewItemStore(item)
			fetcher := mocks.NewFetcher()
			fetcher.Pages[item.URL] = "content"

			outcome, err := New(store, fetcher, withConfidence(tt.confidence), Config{ConfidenceThreshold: 0.5}).ProcessItem(context.Background(), item)
			if err != nil || outcome != OutcomeSuccess {
				t.Fatalf("Expected success, got %s, %v", outcome, err)
			}
			if got := store.Get("1").Status; got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSourceStatusOverride(t *testing.T) {
	item := core.Item{ID: "1", URL: "https://example.com/a", Title: "A", Source: core.SourcePlugin}
	store := mocks.NewItemStore(item)
	fetcher := mocks.NewFetcher()
	fetcher.Pages[item.URL] = "content"
	cfg := Config{ConfidenceThreshold: 0.5, SourceStatus: map[core.Source]core.Status{core.SourcePlugin: core.StatusPendingReview}}

	if _, err := New(store, fetcher, withConfidence(0.9), cfg).ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}
	if got := store.Get("1"); got.Status != core.StatusPendingReview || got.Source != core.SourcePlugin {
		t.Errorf("Expected plugin items routed to review, got %s from %s", got.Status, got.Source)
	}
}

func TestProcessItemFailures(t *testing.T) {
	tests := []struct {
		name    string
		item    core.Item
		fetch   func(f *mocks.Fetcher)
		outcome Outcome
		status  core.Status
		reason  string
	}{
		{
			name:    "attachment without url",
			item:    core.Item{ID: "1", Attachments: []string{"scan.png"}},
			outcome: OutcomeUnprocessed, status: core.StatusUnprocessed,
			reason: "Attachment stored; no URL; OCR out of scope; excluded from digests",
		},
		{
			name:    "missing url",
			item:    core.Item{ID: "1", URL: "  "},
			outcome: OutcomeError, status: core.StatusError, reason: "missing url",
		},
		{
			name:    "tweet without id",
			item:    core.Item{ID: "1", URL: "https://x.com/someone"},
			outcome: OutcomeError, status: core.StatusError, reason: "invalid tweet url",
		},
		{
			name:    "image url",
			item:    core.Item{ID: "1", URL: "https://example.com/photo.JPG"},
			outcome: OutcomeUnprocessed, status: core.StatusUnprocessed,
			reason: "Attachment stored; OCR out of scope; excluded from digests",
		},
		{
			name: "fetch error",
			item: core.Item{ID: "1", URL: "https://example.com/a"},
			fetch: func(f *mocks.Fetcher) {
				f.Errs["https://example.com/a"] = &fetch.FetchError{URL: "https://example.com/a", Status: 500, Err: errors.New("Internal Server Error")}
			},
			outcome: OutcomeError, status: core.StatusError, reason: "fetch failed: fetch https://example.com/a: HTTP 500: Internal Server Error",
		},
		{
			name: "blocked",
			item: core.Item{ID: "1", URL: "https://example.com/a"},
			fetch: func(f *mocks.Fetcher) {
				f.Errs["https://example.com/a"] = &fetch.FetchError{URL: "https://example.com/a", Err: fetch.ErrLoginWall}
			},
			outcome: OutcomeError, status: core.StatusError, reason: ReasonBlocked,
		},
		{
			name:    "blocked text",
			item:    core.Item{ID: "1", URL: "https://example.com/a"},
			fetch:   func(f *mocks.Fetcher) { f.Pages["https://example.com/a"] = "Please enable JavaScript to continue" },
			outcome: OutcomeError, status: core.StatusError, reason: ReasonBlocked,
		},
		{
			name:    "no content",
			item:    core.Item{ID: "1", URL: "https://example.com/a"},
			fetch:   func(f *mocks.Fetcher) { f.Pages["https://example.com/a"] = " \n " },
			outcome: OutcomeError, status: core.StatusError, reason: "no content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewItemStore(tt.item)
			fetcher := mocks.NewFetcher()
			if tt.fetch != nil {
				tt.fetch(fetcher)
			}

			outcome, err := New(store, fetcher, &mocks.Summarizer{}, DefaultConfig()).ProcessItem(context.Background(), tt.item)
			if err != nil {
				t.Fatalf("Expected persisted failure, got error %v", err)
			}
			if outcome != tt.outcome {
				t.Errorf("Expected outcome %s, got %s", tt.outcome, outcome)
			}
			got := store.Get("1")
			if got.Status != tt.status || got.Summary != tt.reason {
				t.Errorf("Expected %s %q, got %s %q", tt.status, tt.reason, got.Status, got.Summary)
			}
			if store.CallCount("SetClassification") != 0 {
				t.Error("Expected no classification on failure")
			}
		})
	}
}

func TestStoreWriteErrorReturned(t *testing.T) {
	item := core.Item{ID: "1", URL: "https://example.com/a"}
	store := mocks.NewItemStore(item)
	store.Errs["SetClassification"] = errors.New("rate limited")
	fetcher := mocks.NewFetcher()
	fetcher.Pages[item.URL] = "content"

	outcome, err := New(store, fetcher, &mocks.Summarizer{}, DefaultConfig()).ProcessItem(context.Background(), item)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Expected store error, got %v", err)
	}
	if outcome != OutcomeError {
		t.Errorf("Expected error outcome, got %s", outcome)
	}
}

func TestTitleBackfilledFromSummary(t *testing.T) {
	item := core.Item{ID: "1", URL: "https://example.com/a", Title: "example.com"}
	store := mocks.NewItemStore(item)
	fetcher := mocks.NewFetcher()
	fetcher.Pages[item.URL] = "content"
	summarizer := &mocks.Summarizer{SummarizeFunc: func(ctx context.Context, text string) (core.Summary, error) {
		return core.Summary{TLDR: "A useful sentence."}, nil
	}}

	if _, err := New(store, fetcher, summarizer, DefaultConfig()).ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem failed: %v", err)
	}
	if got := store.Get("1").Title; got != "A useful sentence." {
		t.Errorf("Expected title from summary, got %q", got)
	}
}

func TestTwitterDuplicateEndToEnd(t *testing.T) {
	first := core.Item{ID: "A", URL: "https://twitter.com/alice/status/1234567890?s=20", Title: "Tweet"}
	second := core.Item{ID: "B", URL: "https://mobile.x.com/bob/status/1234567890", Title: "Same tweet"}
	store := mocks.NewItemStore(first, second)
	fetcher := mocks.NewFetcher()
	fetcher.Pages[first.URL] = "Shipping the new parser today"
	p := New(store, fetcher, withConfidence(0.8), DefaultConfig())

	counters := p.ProcessBatch(context.Background(), []core.Item{first, second})

	if counters.Success != 1 || counters.Duplicate != 1 {
		t.Fatalf("Expected one success and one duplicate, got %+v", counters)
	}
	a, b := store.Get("A"), store.Get("B")
	if a.CanonicalURL != "https://x.com/i/web/status/1234567890" {
		t.Errorf("Unexpected canonical url %q", a.CanonicalURL)
	}
	if b.Status != core.StatusExcluded || b.DuplicateOf != "A" || b.Summary != "Duplicate of A" {
		t.Errorf("Expected B excluded as duplicate of A, got %+v", b)
	}
	if fetcher.Calls(second.URL) != 0 {
		t.Error("Expected duplicate not to be fetched")
	}
}

func TestConcurrentBatchDedupe(t *testing.T) {
	var items []core.Item
	for i := 0; i < 8; i++ {
		items = append(items, core.Item{ID: fmt.Sprintf("i%d", i), URL: fmt.Sprintf("https://example.com/post?utm_campaign=%d", i), Title: "Post"})
	}
	store := mocks.NewItemStore(items...)
	var fetches int32
	fetcher := mocks.NewFetcher()
	fetcher.FetchContentFunc = func(ctx context.Context, url string) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "content", nil
	}

	cfg := DefaultConfig()
	cfg.Workers = 4
	counters := New(store, fetcher, withConfidence(0.9), cfg).ProcessBatch(context.Background(), items)

	if counters.Success != 1 || counters.Duplicate != 7 {
		t.Errorf("Expected exactly one owner, got %+v", counters)
	}
	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("Expected a single fetch, got %d", got)
	}
}

func TestFailedOwnerReleasesClaim(t *testing.T) {
	first := core.Item{ID: "A", URL: "https://example.com/a?utm_source=1"}
	second := core.Item{ID: "B", URL: "https://example.com/a?utm_source=2", Title: "B"}
	store := mocks.NewItemStore(first, second)
	calls := 0
	fetcher := mocks.NewFetcher()
	fetcher.FetchContentFunc = func(ctx context.Context, url string) (string, error) {
		calls++
		if calls == 1 {
			return "", &fetch.FetchError{URL: url, Err: errors.New("timeout")}
		}
		return "content", nil
	}

	counters := New(store, fetcher, withConfidence(0.9), DefaultConfig()).ProcessBatch(context.Background(), []core.Item{first, second})
	if counters.Error != 1 || counters.Success != 1 || counters.Duplicate != 0 {
		t.Errorf("Expected the second item to take over the canonical url, got %+v", counters)
	}
}

func TestInFlightDuplicateWaitsForOwnerOutcome(t *testing.T) {
	a := core.Item{ID: "A", URL: "https://example.com/a?utm_source=1", Title: "A"}
	b := core.Item{ID: "B", URL: "https://example.com/a?utm_source=2", Title: "B"}
	c := core.Item{ID: "C", URL: "https://example.com/a", Title: "C"}
	store := mocks.NewItemStore(a, b, c)

	fetchingA := make(chan struct{})
	failA := make(chan struct{})
	fetcher := mocks.NewFetcher()
	fetcher.FetchContentFunc = func(ctx context.Context, url string) (string, error) {
		if url == a.URL {
			close(fetchingA)
			<-failA
			return "", &fetch.FetchError{URL: url, Err: errors.New("timeout")}
		}
		return "content", nil
	}

	cfg := DefaultConfig()
	cfg.Workers = 2
	p := New(store, fetcher, withConfidence(0.9), cfg)
	ctx := context.Background()

	doneA := make(chan Outcome, 1)
	go func() {
		outcome, _ := p.ProcessItem(ctx, a)
		doneA <- outcome
	}()
	<-fetchingA

	doneB := make(chan Outcome, 1)
	go func() {
		outcome, _ := p.ProcessItem(ctx, b)
		doneB <- outcome
	}()
	select {
	case outcome := <-doneB:
		t.Fatalf("Expected B to wait while A holds the claim, got %s", outcome)
	case <-time.After(20 * time.Millisecond):
	}

	close(failA)
	if outcome := <-doneA; outcome != OutcomeError {
		t.Errorf("Expected A to fail, got %s", outcome)
	}
	if outcome := <-doneB; outcome != OutcomeSuccess {
		t.Errorf("Expected B to take over the canonical url, got %s", outcome)
	}
	if outcome, err := p.ProcessItem(ctx, c); err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("Expected C to be a duplicate, got %s, %v", outcome, err)
	}

	if got := store.Get("B"); got.Status != core.StatusReady || got.DuplicateOf != "" {
		t.Errorf("Expected B ready and not a duplicate, got %s dupOf=%q", got.Status, got.DuplicateOf)
	}
	if got := store.Get("C"); got.DuplicateOf != "B" {
		t.Errorf("Expected C to point at B, got %q", got.DuplicateOf)
	}
	if got := store.Get("A"); got.Status != core.StatusError {
		t.Errorf("Expected A in error, got %s", got.Status)
	}
}

func TestBatchCountsStoreErrors(t *testing.T) {
	item := core.Item{ID: "1"}
	store := mocks.NewItemStore(item)
	store.Errs["UpdateStatus"] = errors.New("down")

	counters := New(store, mocks.NewFetcher(), &mocks.Summarizer{}, DefaultConfig()).ProcessBatch(context.Background(), []core.Item{item, item})
	if counters.Error != 2 || counters.Total() != 2 {
		t.Errorf("Expected both items counted as errors, got %+v", counters)
	}
}
