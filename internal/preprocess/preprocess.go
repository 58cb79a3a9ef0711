// Package preprocess fills gaps in newly saved items before ingestion:
// routing kind, content type, and a usable display name.
package preprocess

import (
	"context"
	"fmt"
	"inboxdigest/internal/contenttype"
	"inboxdigest/internal/core"
	"inboxdigest/internal/routing"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Action is the outcome of preprocessing a single item.
type Action string

const (
	ActionSkip        Action = "skip"
	ActionBackfilled  Action = "backfilled"
	ActionReady       Action = "ready"
	ActionUnprocessed Action = "unprocessed"
	ActionError       Action = "error"
)

const (
	NoteBackfilled    = "Backfilled Name from URL"
	NoteGeneratedName = "Auto-generated note name"
	NoteContent       = "Content note"
	ReasonNoTitle     = "unable to backfill Name from URL"

	maxTitleLen = 140
)

// Result describes what Preprocess did to an item.
type Result struct {
	Action      Action
	Kind        core.ItemKind
	ContentType core.ContentType
	Title       string
	Reason      string
}

// Store is the subset of the item store preprocessing writes to.
type Store interface {
	routing.BlockChecker
	SetItemKind(ctx context.Context, id string, kind core.ItemKind) error
	SetContentType(ctx context.Context, id string, ct core.ContentType) error
	SetTitle(ctx context.Context, id, title, note string) error
	UpdateStatus(ctx context.Context, id string, status core.Status, note string) error
	SetSummary(ctx context.Context, id, summary string, status core.Status) error
}

// ContentTypeClassifier detects the media type behind a URL.
type ContentTypeClassifier interface {
	Classify(ctx context.Context, url string) (core.ContentType, string)
}

// PageFetcher retrieves titles and text for title backfill.
type PageFetcher interface {
	FetchTitle(ctx context.Context, url string) (string, error)
	FetchContent(ctx context.Context, url string) (string, error)
}

// Preprocessor routes items and backfills their kind, content type and title.
type Preprocessor struct {
	store      Store
	router     *routing.Router
	classifier ContentTypeClassifier
	fetcher    PageFetcher
	location   *time.Location
	now        func() time.Time
	logger     zerolog.Logger
}

// New creates a Preprocessor. Note names use dates in loc.
func New(store Store, classifier ContentTypeClassifier, fetcher PageFetcher, loc *time.Location) *Preprocessor {
	if loc == nil {
		loc = time.UTC
	}
	return &Preprocessor{
		store:      store,
		router:     routing.NewRouter(store),
		classifier: classifier,
		fetcher:    fetcher,
		location:   loc,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
}

// WithLogger sets the logger used for per-item messages.
func (p *Preprocessor) WithLogger(l zerolog.Logger) *Preprocessor {
	p.logger = l
	return p
}

// WithClock overrides the time source used for note names.
func (p *Preprocessor) WithClock(now func() time.Time) *Preprocessor {
	p.now = now
	return p
}

// Preprocess handles one item. seq numbers generated note names within a batch.
func (p *Preprocessor) Preprocess(ctx context.Context, item core.Item, seq int) (Result, error) {
	kind, reason, err := p.router.ClassifyItem(ctx, item)
	if err != nil {
		return Result{Action: ActionError}, err
	}
	if err := p.store.SetItemKind(ctx, item.ID, kind); err != nil {
		return Result{Action: ActionError, Kind: kind}, fmt.Errorf("failed to set item kind: %w", err)
	}

	switch kind {
	case core.KindURLResource:
		return p.processURL(ctx, item)
	case core.KindNoteContent:
		return p.processNote(ctx, item, seq)
	default:
		if err := p.store.UpdateStatus(ctx, item.ID, core.StatusError, reason); err != nil {
			return Result{Action: ActionError, Kind: kind}, fmt.Errorf("failed to mark empty item: %w", err)
		}
		return Result{Action: ActionError, Kind: kind, Reason: reason}, nil
	}
}

func (p *Preprocessor) processURL(ctx context.Context, item core.Item) (Result, error) {
	res := Result{Kind: core.KindURLResource}

	ct, why := p.classifier.Classify(ctx, item.URL)
	res.ContentType = ct
	p.logger.Debug().Str("item_id", item.ID).Str("url", item.URL).Str("content_type", string(ct)).Str("reason", why).Msg("content type detected")
	if err := p.store.SetContentType(ctx, item.ID, ct); err != nil {
		res.Action = ActionError
		return res, fmt.Errorf("failed to set content type: %w", err)
	}

	if !ct.Processable() && ct != core.ContentUnknown {
		res.Reason = contenttype.UnprocessableReason(ct)
		if err := p.store.UpdateStatus(ctx, item.ID, core.StatusUnprocessed, res.Reason); err != nil {
			res.Action = ActionError
			return res, fmt.Errorf("failed to mark unprocessed: %w", err)
		}
		res.Action = ActionUnprocessed
		return res, nil
	}

	if IsMeaningfulTitle(item.Title, item.URL) {
		res.Action = ActionSkip
		return res, nil
	}

	title := p.deriveTitle(ctx, item)
	if title == "" {
		res.Reason = ReasonNoTitle
		if err := p.store.UpdateStatus(ctx, item.ID, core.StatusError, ReasonNoTitle); err != nil {
			res.Action = ActionError
			return res, fmt.Errorf("failed to mark backfill error: %w", err)
		}
		res.Action = ActionError
		return res, nil
	}

	if err := p.store.SetTitle(ctx, item.ID, title, NoteBackfilled); err != nil {
		res.Action = ActionError
		return res, fmt.Errorf("failed to set title: %w", err)
	}
	res.Action = ActionBackfilled
	res.Title = title
	return res, nil
}

// deriveTitle walks the backfill chain: fetched page title, first line of
// fetched text, first line of stored content, first attachment name, and
// finally the URL's host.
func (p *Preprocessor) deriveTitle(ctx context.Context, item core.Item) string {
	if title, err := p.fetcher.FetchTitle(ctx, item.URL); err != nil {
		p.logger.Warn().Err(err).Str("item_id", item.ID).Str("url", item.URL).Msg("title fetch failed")
	} else if title = strings.TrimSpace(title); title != "" {
		return core.Truncate(title, maxTitleLen)
	}

	if text, err := p.fetcher.FetchContent(ctx, item.URL); err != nil {
		p.logger.Warn().Err(err).Str("item_id", item.ID).Str("url", item.URL).Msg("content fetch failed")
	} else if line := FirstLine(text); line != "" {
		return line
	}

	if line := FirstLine(item.RawContent); line != "" {
		return line
	}

	if len(item.Attachments) > 0 {
		name := item.Attachments[0]
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		if name = strings.TrimSpace(name); name != "" {
			return core.Truncate(name, maxTitleLen)
		}
	}

	if host := hostOf(item.URL); host != "" {
		return core.Truncate("Bookmark:"+host, maxTitleLen)
	}
	return ""
}

func (p *Preprocessor) processNote(ctx context.Context, item core.Item, seq int) (Result, error) {
	res := Result{Kind: core.KindNoteContent}

	if !IsMeaningfulTitle(item.Title, "") {
		res.Title = NoteName(p.now().In(p.location), seq)
		if err := p.store.SetTitle(ctx, item.ID, res.Title, NoteGeneratedName); err != nil {
			res.Action = ActionError
			return res, fmt.Errorf("failed to set note name: %w", err)
		}
	}

	if err := p.store.SetSummary(ctx, item.ID, NoteContent, core.StatusReady); err != nil {
		res.Action = ActionError
		return res, fmt.Errorf("failed to mark note ready: %w", err)
	}
	res.Action = ActionReady
	return res, nil
}

// Counters tallies preprocessing actions over a batch.
type Counters struct {
	Backfilled  int
	Ready       int
	Skip        int
	Unprocessed int
	Error       int
}

func (c *Counters) add(a Action) {
	switch a {
	case ActionBackfilled:
		c.Backfilled++
	case ActionReady:
		c.Ready++
	case ActionUnprocessed:
		c.Unprocessed++
	case ActionError:
		c.Error++
	default:
		c.Skip++
	}
}

// Total returns the number of items counted.
func (c Counters) Total() int {
	return c.Backfilled + c.Ready + c.Skip + c.Unprocessed + c.Error
}

// PreprocessBatch preprocesses items in order. The note sequence starts at 1
// and advances after each note marked ready. Failures are logged and counted;
// they never stop the batch.
func (p *Preprocessor) PreprocessBatch(ctx context.Context, items []core.Item) Counters {
	var counters Counters
	seq := 1

	for _, item := range items {
		if ctx.Err() != nil {
			p.logger.Warn().Err(ctx.Err()).Msg("preprocess batch cancelled")
			break
		}
		res, err := p.Preprocess(ctx, item, seq)
		if err != nil {
			p.logger.Error().Err(err).Str("item_id", item.ID).Msg("preprocess failed")
			counters.add(ActionError)
			continue
		}
		counters.add(res.Action)
		if res.Kind == core.KindNoteContent && res.Action == ActionReady {
			seq++
		}
		p.logger.Debug().Str("item_id", item.ID).Str("action", string(res.Action)).Str("kind", string(res.Kind)).Msg("item preprocessed")
	}

	p.logger.Info().
		Int("backfilled", counters.Backfilled).
		Int("ready", counters.Ready).
		Int("skip", counters.Skip).
		Int("unprocessed", counters.Unprocessed).
		Int("error", counters.Error).
		Msg("preprocess complete")
	return counters
}

var placeholderNames = map[string]bool{
	"untitled":   true,
	"new page":   true,
	"bookmark":   true,
	"default":    true,
	"image clip": true,
}

// IsMeaningfulTitle reports whether title is a real name rather than a
// placeholder, an auto-generated image name, or the item's own URL or host.
func IsMeaningfulTitle(title, rawURL string) bool {
	cleaned := strings.TrimSpace(title)
	if cleaned == "" {
		return false
	}
	lower := strings.ToLower(cleaned)
	if placeholderNames[lower] || strings.HasPrefix(lower, "image-") {
		return false
	}
	if host := hostOf(rawURL); host != "" && (cleaned == host || strings.HasPrefix(cleaned, "http")) {
		return false
	}
	return true
}

// NoteName renders the generated name for the seq-th note of day.
func NoteName(day time.Time, seq int) string {
	return fmt.Sprintf("NOTE-%s-%d", day.Format("20060102"), seq)
}

// FirstLine returns the first non-blank line of text, truncated to 140 characters.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return core.Truncate(line, maxTitleLen)
		}
	}
	return ""
}

func hostOf(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
