package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockMarkers are phrases that only appear on anti-bot or login interstitials.
var blockMarkers = []string{
	"javascript is disabled",
	"enable javascript",
	"continue using x.com",
	"登录后查看",
	"sign in to x",
	"we've detected that javascript is disabled",
	"something went wrong",
}

// blockCheckLimit bounds how long a page can be and still be treated as an
// interstitial; real articles quoting a marker phrase are longer than this.
const blockCheckLimit = 1500

// placeholderTitles are substrings of titles served by loading or error shells.
var placeholderTitles = []string{"something went wrong", "error", "loading"}

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// IsBlockedText reports whether text looks like an anti-bot or login page.
func IsBlockedText(text string) bool {
	if len([]rune(text)) > blockCheckLimit {
		return false
	}
	lower := strings.ToLower(text)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// extractTitle picks the first usable title from meta tags and the document.
// Placeholder titles are skipped unless nothing else exists.
func extractTitle(doc *goquery.Document) string {
	var candidates []string
	push := func(v string) {
		if v = strings.TrimSpace(v); v != "" {
			candidates = append(candidates, v)
		}
	}
	meta := func(key string) string {
		if v, ok := doc.Find("meta[property='" + key + "']").First().Attr("content"); ok {
			return v
		}
		v, _ := doc.Find("meta[name='" + key + "']").First().Attr("content")
		return v
	}

	push(meta("og:title"))
	push(meta("twitter:title"))
	push(meta("title"))
	push(doc.Find("head title").First().Text())
	push(doc.Find("h1").First().Text())

	for _, c := range candidates {
		if !isPlaceholderTitle(c) {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func isPlaceholderTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, p := range placeholderTitles {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// extractText pulls readable text out of an HTML document, preferring the
// main content container over the whole body.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner").Remove()

	const blocks = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"
	collect := func(sel *goquery.Selection) string {
		var b strings.Builder
		sel.Find(blocks).Each(func(_ int, item *goquery.Selection) {
			if text := strings.TrimSpace(item.Text()); text != "" {
				b.WriteString(text)
				b.WriteString("\n\n")
			}
		})
		return b.String()
	}

	mainContentSelectors := []string{
		"article", "main", ".main-content", ".entry-content", ".post-content",
		".post-body", ".article-body", "[role='main']", ".content", "#content",
	}

	var text string
	for _, selector := range mainContentSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			if text = collect(sel); text != "" {
				break
			}
		}
	}
	if text == "" {
		text = collect(doc.Find("body"))
	}
	if text == "" {
		text = doc.Find("body").Text()
	}

	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n"))
}
