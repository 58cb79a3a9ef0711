package fetch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Handler extracts a page from a parsed document for the hosts it matches.
type Handler interface {
	Name() string
	Matches(u *url.URL) bool
	Extract(doc *goquery.Document) (Page, error)
}

// Registry holds host-specific handlers in priority order. The first match
// wins; the generic handler serves every other URL.
type Registry struct {
	handlers []Handler
	fallback Handler
}

// NewRegistry creates a registry with the given handlers ahead of the generic one.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers, fallback: GenericHandler{}}
}

// DefaultRegistry returns the registry used for ordinary fetching.
func DefaultRegistry() *Registry {
	return NewRegistry(TwitterHandler{})
}

// Register appends a handler after the existing ones.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// For returns the handler responsible for u.
func (r *Registry) For(u *url.URL) Handler {
	for _, h := range r.handlers {
		if h.Matches(u) {
			return h
		}
	}
	return r.fallback
}

// GenericHandler extracts title and main text from ordinary HTML pages.
type GenericHandler struct{}

func (GenericHandler) Name() string            { return "generic" }
func (GenericHandler) Matches(u *url.URL) bool { return true }

func (GenericHandler) Extract(doc *goquery.Document) (Page, error) {
	title := extractTitle(doc)
	return Page{Title: title, Text: extractText(doc)}, nil
}

var tweetBody = regexp.MustCompile(`:\s*["']?(.+?)["']?\s*/\s*X$`)

// TwitterHandler reads x.com and twitter.com posts from the oEmbed link and
// Open Graph metadata the server renders for crawlers.
type TwitterHandler struct{}

func (TwitterHandler) Name() string { return "twitter" }

func (TwitterHandler) Matches(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, h := range []string{"x.com", "twitter.com"} {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (TwitterHandler) Extract(doc *goquery.Document) (Page, error) {
	var page Page

	// goquery decodes entities, so the title is already plain text.
	if title, ok := doc.Find("link[type='application/json+oembed']").First().Attr("title"); ok {
		page.Title = strings.TrimSpace(title)
		page.Text = tweetText(page.Title)
	}
	if page.Title == "" {
		og, _ := doc.Find("meta[property='og:title']").First().Attr("content")
		if og == "" {
			og, _ = doc.Find("meta[name='og:title']").First().Attr("content")
		}
		page.Title = strings.TrimSpace(og)
		if page.Text == "" {
			page.Text = tweetText(page.Title)
		}
	}

	if len(page.Text) < 10 {
		var parts []string
		doc.Find("div[data-testid='tweetText']").Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			page.Text = strings.Join(parts, "\n")
		}
	}

	if page.Text == "" {
		if doc.Find("[data-testid='login']").Length() > 0 {
			return page, ErrLoginWall
		}
		if IsBlockedText(doc.Find("body").Text()) {
			return page, ErrBlocked
		}
	}
	return page, nil
}

// tweetText pulls the post body out of an "<author> on X: "<body>" / X" title.
func tweetText(title string) string {
	m := tweetBody.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return strings.Trim(strings.TrimSpace(m[1]), `"'`)
}
