package mocks

import (
	"context"
	"inboxdigest/internal/core"
	"sync"
)

// Fetcher is a func-field content fetcher. Pages maps URLs to text and
// Titles maps URLs to titles; Errs injects per-URL failures.
type Fetcher struct {
	mu     sync.Mutex
	Pages  map[string]string
	Titles map[string]string
	Errs   map[string]error
	calls  map[string]int

	FetchContentFunc func(ctx context.Context, url string) (string, error)
}

// NewFetcher returns an empty fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Pages:  make(map[string]string),
		Titles: make(map[string]string),
		Errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Calls returns how many fetches hit url.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *Fetcher) FetchContent(ctx context.Context, url string) (string, error) {
	if f.FetchContentFunc != nil {
		return f.FetchContentFunc(ctx, url)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err := f.Errs[url]; err != nil {
		return "", err
	}
	return f.Pages[url], nil
}

func (f *Fetcher) FetchTitle(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err := f.Errs[url]; err != nil {
		return "", err
	}
	return f.Titles[url], nil
}

// Summarizer is a func-field classifier and summarizer.
type Summarizer struct {
	ClassifyFunc  func(ctx context.Context, text string) (core.Classification, error)
	SummarizeFunc func(ctx context.Context, text string) (core.Summary, error)
}

func (m *Summarizer) Classify(ctx context.Context, text string) (core.Classification, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text)
	}
	return core.Classification{
		Tags:          []string{"Mock"},
		Sensitivity:   core.SensitivityPublic,
		Confidence:    0.9,
		RuleVersion:   "rule-test",
		PromptVersion: "prompt-test",
	}, nil
}

func (m *Summarizer) Summarize(ctx context.Context, text string) (core.Summary, error) {
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, text)
	}
	return core.Summary{TLDR: "Mock summary", Insights: []string{"- Mock insight"}}, nil
}

// ContentTypeClassifier returns a fixed content type per URL.
type ContentTypeClassifier struct {
	Types map[string]core.ContentType
}

func (c *ContentTypeClassifier) Classify(ctx context.Context, url string) (core.ContentType, string) {
	if ct, ok := c.Types[url]; ok {
		return ct, "mock: " + string(ct)
	}
	return core.ContentHTML, "mock default"
}
