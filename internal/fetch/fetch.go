// Package fetch downloads saved URLs and extracts their title and readable text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/contenttype"
	"inboxdigest/internal/core"
	"inboxdigest/internal/retry"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 5 << 20

var (
	// ErrBlocked is returned when a site served an anti-bot or JavaScript wall
	// instead of content. It is distinct from timeouts and never retried.
	ErrBlocked = errors.New("blocked by anti-bot page")

	// ErrLoginWall is a blocked page that demands a signed-in session.
	ErrLoginWall = fmt.Errorf("login wall: %w", ErrBlocked)
)

// FetchError describes a failed page fetch.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Blocked reports whether the failure was an anti-bot or login wall.
func (e *FetchError) Blocked() bool { return errors.Is(e.Err, ErrBlocked) }

// Page is the extracted content of a fetched URL.
type Page struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Options configures a Fetcher.
type Options struct {
	Timeout        time.Duration
	ContentRetries int
	TitleRetries   int
	UserAgent      string
	Locale         string
	HTTPClient     *http.Client
	Cache          Cache
	Registry       *Registry
	Logger         *zerolog.Logger
}

// Fetcher retrieves pages over HTTP with retries and an injected cache.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	locale        string
	cache         Cache
	registry      *Registry
	contentPolicy retry.Policy
	titlePolicy   retry.Policy
	logger        zerolog.Logger
}

// NewFetcher builds a Fetcher. A nil cache disables caching.
func NewFetcher(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	cache := opts.Cache
	if cache == nil {
		cache = noCache{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	contentPolicy := retry.FromRetries("page fetch", opts.ContentRetries)
	titlePolicy := retry.FromRetries("page title", opts.TitleRetries)
	contentPolicy.Logger = &logger
	titlePolicy.Logger = &logger

	return &Fetcher{
		client:        client,
		userAgent:     opts.UserAgent,
		locale:        opts.Locale,
		cache:         cache,
		registry:      registry,
		contentPolicy: contentPolicy,
		titlePolicy:   titlePolicy,
		logger:        logger,
	}
}

// WithPolicies overrides the retry policies, mainly for tests.
func (f *Fetcher) WithPolicies(content, title retry.Policy) *Fetcher {
	f.contentPolicy = content
	f.titlePolicy = title
	return f
}

// FetchContent returns the readable text of rawURL.
func (f *Fetcher) FetchContent(ctx context.Context, rawURL string) (string, error) {
	page, err := f.fetch(ctx, rawURL, f.contentPolicy)
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// FetchTitle returns the page title of rawURL.
func (f *Fetcher) FetchTitle(ctx context.Context, rawURL string) (string, error) {
	page, err := f.fetch(ctx, rawURL, f.titlePolicy)
	if err != nil {
		return "", err
	}
	return page.Title, nil
}

// Fetch returns both the title and text of rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	return f.fetch(ctx, rawURL, f.contentPolicy)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, policy retry.Policy) (Page, error) {
	if page, ok := f.cache.Get(rawURL); ok {
		f.logger.Debug().Str("url", rawURL).Msg("page cache hit")
		return page, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Page{}, &FetchError{URL: rawURL, Err: fmt.Errorf("invalid url: %v", err)}
	}

	var page Page
	err = policy.Do(ctx, func(ctx context.Context) error {
		p, err := f.fetchOnce(ctx, u)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && !errors.Is(err, retry.ErrRetriesExhausted) {
			return Page{}, fe
		}
		return Page{}, &FetchError{URL: rawURL, Err: err}
	}

	f.cache.Put(rawURL, page)
	return page, nil
}

// fetchOnce performs a single attempt. Errors that retrying cannot fix are
// wrapped with retry.Permanent.
func (f *Fetcher) fetchOnce(ctx context.Context, u *url.URL) (Page, error) {
	rawURL := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, retry.Permanent(&FetchError{URL: rawURL, Err: err})
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.locale != "" {
		req.Header.Set("Accept-Language", f.locale)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		fe := &FetchError{URL: rawURL, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return Page{}, fe
		}
		return Page{}, retry.Permanent(fe)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	ct := contenttype.FromMIME(resp.Header.Get("Content-Type"))
	if ct == core.ContentText || ct == core.ContentJSON {
		text := strings.TrimSpace(string(body))
		return Page{Title: firstLine(text), Text: text}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Page{}, retry.Permanent(&FetchError{URL: rawURL, Err: fmt.Errorf("failed to parse HTML: %w", err)})
	}

	handler := f.registry.For(u)
	page, err := handler.Extract(doc)
	if err != nil {
		return Page{}, retry.Permanent(&FetchError{URL: rawURL, Status: resp.StatusCode, Err: err})
	}
	if IsBlockedText(page.Text) {
		return Page{}, retry.Permanent(&FetchError{URL: rawURL, Status: resp.StatusCode, Err: ErrBlocked})
	}

	f.logger.Debug().Str("url", rawURL).Str("handler", handler.Name()).Int("text_len", len(page.Text)).Msg("page fetched")
	return page, nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return core.Truncate(line, 140)
		}
	}
	return ""
}
