package core

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind is the routing classification of a saved item.
type ItemKind string

const (
	KindURLResource  ItemKind = "URL_RESOURCE"
	KindNoteContent  ItemKind = "NOTE_CONTENT"
	KindEmptyInvalid ItemKind = "EMPTY_INVALID"
)

// ParseItemKind decodes a stored kind label.
func ParseItemKind(s string) (ItemKind, error) {
	switch k := ItemKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindURLResource, KindNoteContent, KindEmptyInvalid:
		return k, nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

// ContentType is the detected media type of a URL resource.
type ContentType string

const (
	ContentHTML    ContentType = "html"
	ContentPDF     ContentType = "pdf"
	ContentImage   ContentType = "image"
	ContentVideo   ContentType = "video"
	ContentAudio   ContentType = "audio"
	ContentJSON    ContentType = "json"
	ContentText    ContentType = "text"
	ContentBinary  ContentType = "binary"
	ContentUnknown ContentType = "unknown"
)

// Processable reports whether the pipeline can extract text from this type.
func (c ContentType) Processable() bool {
	switch c {
	case ContentHTML, ContentText, ContentJSON:
		return true
	}
	return false
}

// FutureSupport reports whether the type is skipped today but expected to be
// handled once extraction for it exists.
func (c ContentType) FutureSupport() bool {
	switch c {
	case ContentPDF, ContentImage, ContentVideo, ContentAudio:
		return true
	}
	return false
}

// ParseContentType decodes a stored content type label. Unrecognized labels
// decode to ContentUnknown.
func ParseContentType(s string) ContentType {
	switch c := ContentType(strings.ToLower(strings.TrimSpace(s))); c {
	case ContentHTML, ContentPDF, ContentImage, ContentVideo, ContentAudio,
		ContentJSON, ContentText, ContentBinary:
		return c
	}
	return ContentUnknown
}

// Status is the lifecycle state of an item in the store.
type Status string

const (
	StatusToProcess     Status = "to-process"
	StatusPendingReview Status = "pending-review"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
	StatusUnprocessed   Status = "unprocessed"
	StatusExcluded      Status = "excluded"
)

var allStatuses = []Status{
	StatusToProcess, StatusPendingReview, StatusReady,
	StatusError, StatusUnprocessed, StatusExcluded,
}

// ParseStatus decodes a canonical status label.
func ParseStatus(s string) (Status, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, st := range allStatuses {
		if string(st) == needle {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Sensitivity controls whether an item may appear in digests.
type Sensitivity string

const (
	SensitivityPublic   Sensitivity = "public"
	SensitivityInternal Sensitivity = "internal"
	SensitivityPrivate  Sensitivity = "private"
)

// ParseSensitivity decodes a sensitivity label. Empty input decodes to public.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch v := Sensitivity(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return SensitivityPublic, nil
	case SensitivityPublic, SensitivityInternal, SensitivityPrivate:
		return v, nil
	}
	return "", fmt.Errorf("unknown sensitivity %q", s)
}

// Source names where an item was captured from.
type Source string

const (
	SourceManual Source = "manual"
	SourcePlugin Source = "plugin"
)

// Item is a single saved record: a URL, a free-form note, or an attachment.
type Item struct {
	ID            string      `json:"id"`             // Store identifier
	URL           string      `json:"url"`            // Saved URL, may be empty
	Title         string      `json:"title"`          // Display name
	RawContent    string      `json:"raw_content"`    // Text captured with or extracted for the item
	Attachments   []string    `json:"attachments"`    // Attached file names
	Tags          []string    `json:"tags"`           // Classification tags
	Sensitivity   Sensitivity `json:"sensitivity"`    // public, internal or private
	Confidence    float64     `json:"confidence"`     // Classifier confidence in [0,1]
	HasConfidence bool        `json:"has_confidence"` // Confidence is only meaningful after classification
	Status        Status      `json:"status"`         // Lifecycle state
	Source        Source      `json:"source"`         // Capture source
	Kind          ItemKind    `json:"kind"`           // Routing classification, empty until preprocessed
	ContentType   ContentType `json:"content_type"`   // Detected content type, empty until preprocessed
	CanonicalURL  string      `json:"canonical_url"`  // Normalized identity URL
	DuplicateOf   string      `json:"duplicate_of"`   // ID of the item owning the canonical URL
	Summary       string      `json:"summary"`        // Display summary or status note
	PageURL       string      `json:"page_url"`       // Link to the record in the store
	CreatedAt     time.Time   `json:"created_at"`     // Capture time
}

// HasURL reports whether the item carries a usable URL.
func (i Item) HasURL() bool {
	return strings.TrimSpace(i.URL) != ""
}

// Link returns the best link for the item in rendered output: the store page
// when known, otherwise the original URL.
func (i Item) Link() string {
	if i.PageURL != "" {
		return i.PageURL
	}
	return i.URL
}

// Classification is the result of classifying fetched item content.
type Classification struct {
	Tags          []string    `json:"tags"`
	Sensitivity   Sensitivity `json:"sensitivity"`
	Confidence    float64     `json:"confidence"`
	RuleVersion   string      `json:"rule_version"`
	PromptVersion string      `json:"prompt_version"`
	RawContent    string      `json:"raw_content"`
	CanonicalURL  string      `json:"canonical_url"`
	Source        Source      `json:"source"`
}

// Summary is the summarizer output for one item.
type Summary struct {
	TLDR     string   `json:"tldr"`
	Insights []string `json:"insights"`
}

// Display joins the TL;DR and insights into the text persisted on the item.
func (s Summary) Display() string {
	parts := []string{strings.TrimSpace(s.TLDR)}
	for _, insight := range s.Insights {
		if insight = strings.TrimSpace(insight); insight != "" {
			parts = append(parts, insight)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// ReportType is the aggregation level of a digest report.
type ReportType string

const (
	ReportDaily   ReportType = "Daily"
	ReportWeekly  ReportType = "Weekly"
	ReportMonthly ReportType = "Monthly"
)

// ParseReportType decodes a report type label, case-insensitively.
func ParseReportType(s string) (ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return ReportDaily, nil
	case "weekly":
		return ReportWeekly, nil
	case "monthly":
		return ReportMonthly, nil
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ReportPeriod is an inclusive date range covered by a report.
type ReportPeriod struct {
	Type  ReportType `json:"type"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// Title renders the report title for the period.
func (p ReportPeriod) Title() string {
	switch p.Type {
	case ReportWeekly:
		year, week := p.Start.ISOWeek()
		return fmt.Sprintf("Weekly Digest - W%02d %d", week, year)
	case ReportMonthly:
		return fmt.Sprintf("Monthly Digest - %s %d", p.Start.Month(), p.Start.Year())
	default:
		return fmt.Sprintf("Daily Digest - %s", p.Start.Format("2006-01-02"))
	}
}

// Contains reports whether t falls on a day inside the period.
func (p ReportPeriod) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Highlight is one linked line in a report's highlights, trends or themes.
type Highlight struct {
	Text   string `json:"text"`
	Link   string `json:"link"`
	Date   string `json:"date,omitempty"`
	Source string `json:"source,omitempty"`
}

// Subgroup is the second level of a daily report's category grouping.
type Subgroup struct {
	Name    string   `json:"name"`
	ItemIDs []string `json:"item_ids"`
}

// CategoryGroup is the first level of a daily report's category grouping.
type CategoryGroup struct {
	Name      string     `json:"name"`
	Subgroups []Subgroup `json:"subgroups"`
}

// Count returns the number of items placed in the group.
func (g CategoryGroup) Count() int {
	n := 0
	for _, sg := range g.Subgroups {
		n += len(sg.ItemIDs)
	}
	return n
}

// Report is a generated digest at one aggregation level.
type Report struct {
	ID         string          `json:"id"`          // Store identifier, empty until persisted
	Period     ReportPeriod    `json:"period"`      // Covered range
	Title      string          `json:"title"`       // Rendered title
	Overview   string          `json:"overview"`    // Short narrative summary
	Highlights []Highlight     `json:"highlights"`  // Highlights, trends or themes
	SourceIDs  []string        `json:"source_ids"`  // Items for daily, lower-level reports otherwise
	Categories []CategoryGroup `json:"categories"`  // Daily grouping, empty for weekly and monthly
	Blocks     []Block         `json:"blocks"`      // Rich body content
	PageURL    string          `json:"page_url"`    // Link to the report in the store
	CreatedAt  time.Time       `json:"created_at"`  // Generation time
}

// HighlightTexts returns the plain highlight strings.
func (r Report) HighlightTexts() []string {
	out := make([]string, 0, len(r.Highlights))
	for _, h := range r.Highlights {
		out = append(out, h.Text)
	}
	return out
}

// BlockKind enumerates the rich content blocks a report body is made of.
type BlockKind string

const (
	BlockHeading2  BlockKind = "heading_2"
	BlockHeading3  BlockKind = "heading_3"
	BlockParagraph BlockKind = "paragraph"
	BlockBullet    BlockKind = "bulleted_list_item"
	BlockDivider   BlockKind = "divider"
	BlockCallout   BlockKind = "callout"
)

const (
	maxHeadingLen = 100
	maxTextLen    = 2000
)

// Block is a store-neutral rich content block.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Link string    `json:"link,omitempty"`
	Icon string    `json:"icon,omitempty"`
	Bold bool      `json:"bold,omitempty"`
}

// NewBlock builds a block, truncating text to the limit for its kind.
func NewBlock(kind BlockKind, text string) Block {
	limit := maxTextLen
	if kind == BlockHeading2 || kind == BlockHeading3 {
		limit = maxHeadingLen
	}
	return Block{Kind: kind, Text: Truncate(text, limit)}
}

// Divider returns a divider block.
func Divider() Block {
	return Block{Kind: BlockDivider}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
