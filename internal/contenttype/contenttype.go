// Package contenttype detects what kind of content a URL serves so the
// pipeline can route it before fetching the body.
package contenttype

import (
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxRedirects = 5
)

var mimeTypes = map[string]core.ContentType{
	"text/html":                core.ContentHTML,
	"application/xhtml+xml":    core.ContentHTML,
	"application/pdf":          core.ContentPDF,
	"application/json":         core.ContentJSON,
	"text/json":                core.ContentJSON,
	"text/plain":               core.ContentText,
	"application/octet-stream": core.ContentBinary,
}

var mimePrefixes = []struct {
	prefix string
	ct     core.ContentType
}{
	{"image/", core.ContentImage},
	{"video/", core.ContentVideo},
	{"audio/", core.ContentAudio},
}

var extensions = map[string]core.ContentType{
	".html":  core.ContentHTML,
	".htm":   core.ContentHTML,
	".xhtml": core.ContentHTML,
	".pdf":   core.ContentPDF,
	".jpg":   core.ContentImage,
	".jpeg":  core.ContentImage,
	".png":   core.ContentImage,
	".gif":   core.ContentImage,
	".webp":  core.ContentImage,
	".svg":   core.ContentImage,
	".ico":   core.ContentImage,
	".bmp":   core.ContentImage,
	".mp4":   core.ContentVideo,
	".webm":  core.ContentVideo,
	".avi":   core.ContentVideo,
	".mov":   core.ContentVideo,
	".mkv":   core.ContentVideo,
	".mp3":   core.ContentAudio,
	".wav":   core.ContentAudio,
	".ogg":   core.ContentAudio,
	".flac":  core.ContentAudio,
	".m4a":   core.ContentAudio,
	".json":  core.ContentJSON,
	".txt":   core.ContentText,
	".md":    core.ContentText,
	".csv":   core.ContentText,
}

// DefaultTextDomains lists hosts that always serve readable pages even when
// they refuse HEAD requests.
var DefaultTextDomains = []string{
	"x.com",
	"twitter.com",
	"github.com",
	"medium.com",
	"substack.com",
	"news.ycombinator.com",
	"reddit.com",
	"wikipedia.org",
}

// Options configures a Classifier.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	TextDomains  []string
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
}

// Classifier detects content types by probing URLs.
type Classifier struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	domains   []string
	logger    zerolog.Logger
}

// NewClassifier builds a Classifier. Zero option values take the package defaults.
func NewClassifier(opts Options) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.TextDomains == nil {
		opts.TextDomains = DefaultTextDomains
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxRedirects := opts.MaxRedirects
	probe := *client
	probe.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Classifier{
		client:    &probe,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		domains:   opts.TextDomains,
		logger:    logger,
	}
}

// Classify returns the content type of rawURL with a human-readable reason.
// Network failures never escape; they degrade to extension and domain hints.
func (c *Classifier) Classify(ctx context.Context, rawURL string) (core.ContentType, string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return c.fallback(rawURL, fmt.Sprintf("invalid URL: %v", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cause := fmt.Sprintf("HEAD error: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			cause = "HEAD timeout"
		}
		c.logger.Debug().Err(err).Str("url", rawURL).Msg("content type probe failed")
		return c.fallback(rawURL, cause)
	}
	resp.Body.Close()

	header := resp.Header.Get("Content-Type")
	if ct := FromMIME(header); ct != core.ContentUnknown {
		return ct, "Content-Type: " + header
	}
	if ct := FromExtension(rawURL); ct != core.ContentUnknown {
		return ct, "Inferred from extension (no Content-Type header)"
	}
	if resp.StatusCode < http.StatusBadRequest {
		return core.ContentHTML, "Assumed HTML (successful response, no Content-Type)"
	}
	if c.isTextDomain(rawURL) {
		return core.ContentHTML, fmt.Sprintf("Known text domain (HTTP %d)", resp.StatusCode)
	}
	return core.ContentUnknown, fmt.Sprintf("HTTP %d, no Content-Type", resp.StatusCode)
}

func (c *Classifier) fallback(rawURL, cause string) (core.ContentType, string) {
	if ct := FromExtension(rawURL); ct != core.ContentUnknown {
		return ct, fmt.Sprintf("Inferred from extension (%s)", cause)
	}
	if c.isTextDomain(rawURL) {
		return core.ContentHTML, fmt.Sprintf("Known text domain (%s)", cause)
	}
	return core.ContentUnknown, cause
}

func (c *Classifier) isTextDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range c.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// FromMIME maps a Content-Type header value to a content type.
func FromMIME(header string) core.ContentType {
	if strings.TrimSpace(header) == "" {
		return core.ContentUnknown
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(header, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	if ct, ok := mimeTypes[mediaType]; ok {
		return ct
	}
	for _, p := range mimePrefixes {
		if strings.HasPrefix(mediaType, p.prefix) {
			return p.ct
		}
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return core.ContentText
	case strings.HasPrefix(mediaType, "application/"):
		return core.ContentBinary
	}
	return core.ContentUnknown
}

// FromExtension infers a content type from the URL path's file extension.
func FromExtension(rawURL string) core.ContentType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return core.ContentUnknown
	}
	p := strings.ToLower(u.Path)
	dot := strings.LastIndex(p, ".")
	if dot < 0 || strings.Contains(p[dot:], "/") {
		return core.ContentUnknown
	}
	if ct, ok := extensions[p[dot:]]; ok {
		return ct
	}
	return core.ContentUnknown
}

// UnprocessableReason explains why a content type is skipped.
func UnprocessableReason(ct core.ContentType) string {
	reason := fmt.Sprintf("ContentType '%s' not processable yet", ct)
	if ct.FutureSupport() {
		reason += " (future support planned)"
	}
	return reason
}
