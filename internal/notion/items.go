package notion

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"sort"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

func (s *Store) statusFilter(status core.Status) notionapi.PropertyFilter {
	return notionapi.PropertyFilter{
		Property: s.props.Status,
		Status:   &notionapi.StatusFilterCondition{Equals: s.label(status)},
	}
}

var createdAscending = []notionapi.SortObject{{
	Timestamp: notionapi.TimestampCreated,
	Direction: notionapi.SortOrderASC,
}}

func (s *Store) QueryPending(ctx context.Context) ([]core.Item, error) {
	return s.queryItems(ctx, "query pending", s.statusFilter(core.StatusToProcess))
}

func (s *Store) QueryPendingReview(ctx context.Context) ([]core.Item, error) {
	return s.queryItems(ctx, "query pending review", s.statusFilter(core.StatusPendingReview))
}

func (s *Store) FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Item, error) {
	items, err := s.queryItems(ctx, "find by canonical url", notionapi.PropertyFilter{
		Property: s.props.CanonicalURL,
		RichText: &notionapi.TextFilterCondition{Equals: canonicalURL},
	})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// QueryReadyForDigest narrows by creation time on the server and then
// re-checks each item's calendar day in the configured zone.
func (s *Store) QueryReadyForDigest(ctx context.Context, r persistence.DateRange, includePrivate bool) ([]core.Item, error) {
	filters := notionapi.AndCompoundFilter{s.statusFilter(core.StatusReady)}
	if !r.Start.IsZero() {
		since := notionapi.Date(s.startOfDay(r.Start).Add(-24 * time.Hour).UTC())
		filters = append(filters, notionapi.TimestampFilter{
			Timestamp:   notionapi.TimestampCreated,
			CreatedTime: &notionapi.DateFilterCondition{OnOrAfter: &since},
		})
	}
	items, err := s.queryItems(ctx, "query ready for digest", filters)
	if err != nil {
		return nil, err
	}

	var out []core.Item
	for _, item := range items {
		if !includePrivate && item.Sensitivity == core.SensitivityPrivate {
			continue
		}
		day := core.Day(item.CreatedAt.In(s.loc))
		if !r.Start.IsZero() && day.Before(core.Day(r.Start)) {
			continue
		}
		if day.After(core.Day(r.End)) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Store) queryItems(ctx context.Context, op string, filter notionapi.Filter) ([]core.Item, error) {
	pages, err := s.queryAll(ctx, op, s.databaseID, &notionapi.DatabaseQueryRequest{
		Filter: filter,
		Sorts:  createdAscending,
	})
	if err != nil {
		return nil, err
	}

	items := make([]core.Item, 0, len(pages))
	for _, page := range pages {
		item, err := s.decodeItem(page)
		if err != nil {
			s.logger.Warn().Err(err).Str("item_id", string(page.ID)).Msg("skipping undecodable item")
			continue
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s *Store) decodeItem(page notionapi.Page) (core.Item, error) {
	p := page.Properties
	item := core.Item{
		ID:           string(page.ID),
		URL:          strings.TrimSpace(readURL(p, s.props.URL)),
		Title:        readTitle(p, s.props.Title),
		RawContent:   readText(p, s.props.RawContent),
		Attachments:  readFiles(p, s.props.Attachments),
		Tags:         readMultiSelect(p, s.props.Tags),
		Source:       core.Source(strings.ToLower(readSelect(p, s.props.Source))),
		CanonicalURL: readText(p, s.props.CanonicalURL),
		DuplicateOf:  readRelation(p, s.props.DuplicateOf),
		Summary:      readText(p, s.props.Summary),
		PageURL:      page.URL,
		CreatedAt:    page.CreatedTime,
	}

	var err error
	if item.Status, err = s.statusFromLabel(readSelect(p, s.props.Status)); err != nil {
		return item, err
	}
	item.Sensitivity = core.SensitivityPublic
	if v := readSelect(p, s.props.Sensitivity); v != "" {
		if item.Sensitivity, err = core.ParseSensitivity(v); err != nil {
			return item, err
		}
	}
	if v := readSelect(p, s.props.ItemType); v != "" {
		if item.Kind, err = core.ParseItemKind(v); err != nil {
			return item, err
		}
	}
	if v := readSelect(p, s.props.ContentType); v != "" {
		item.ContentType = core.ParseContentType(v)
	}
	if c, ok := readNumber(p, s.props.Confidence); ok {
		item.Confidence = c
		item.HasConfidence = c > 0
	}
	return item, nil
}

// UpdateStatus moves an item to status. A non-empty note is written to the
// summary property, the only free text column reviewers see.
func (s *Store) UpdateStatus(ctx context.Context, id string, status core.Status, note string) error {
	props := notionapi.Properties{
		s.props.Status: notionapi.StatusProperty{Status: notionapi.Status{Name: s.label(status)}},
	}
	if note != "" {
		props[s.props.Summary] = textProp(core.Truncate(note, maxNoteLen))
	}
	return s.updatePage(ctx, "update status", id, props)
}

func (s *Store) SetClassification(ctx context.Context, id string, c core.Classification) error {
	props := notionapi.Properties{
		s.props.Tags:          multiSelectProp(c.Tags),
		s.props.Sensitivity:   selectProp(string(c.Sensitivity)),
		s.props.Confidence:    notionapi.NumberProperty{Number: c.Confidence},
		s.props.RuleVersion:   textProp(c.RuleVersion),
		s.props.PromptVersion: textProp(c.PromptVersion),
		s.props.RawContent:    textProp(c.RawContent),
		s.props.CanonicalURL:  textProp(c.CanonicalURL),
	}
	if c.Source != "" {
		props[s.props.Source] = selectProp(string(c.Source))
	}
	return s.updatePage(ctx, "set classification", id, props)
}

func (s *Store) SetTitle(ctx context.Context, id, title, note string) error {
	s.logger.Debug().Str("item_id", id).Str("title", title).Str("note", note).Msg("setting title")
	return s.updatePage(ctx, "set title", id, notionapi.Properties{s.props.Title: titleProp(title)})
}

func (s *Store) SetDuplicateOf(ctx context.Context, id, ownerID, note string) error {
	return s.updatePage(ctx, "set duplicate", id, notionapi.Properties{
		s.props.Status:      notionapi.StatusProperty{Status: notionapi.Status{Name: s.label(core.StatusExcluded)}},
		s.props.DuplicateOf: relationProp([]string{ownerID}),
		s.props.Summary:     textProp(core.Truncate(note, maxNoteLen)),
	})
}

func (s *Store) SetSummary(ctx context.Context, id, summary string, status core.Status) error {
	return s.updatePage(ctx, "set summary", id, notionapi.Properties{
		s.props.Status:  notionapi.StatusProperty{Status: notionapi.Status{Name: s.label(status)}},
		s.props.Summary: textProp(core.Truncate(summary, maxNoteLen)),
	})
}

func (s *Store) SetItemKind(ctx context.Context, id string, kind core.ItemKind) error {
	return s.updatePage(ctx, "set item kind", id, notionapi.Properties{
		s.props.ItemType: selectProp(strings.ToLower(string(kind))),
	})
}

func (s *Store) SetContentType(ctx context.Context, id string, ct core.ContentType) error {
	return s.updatePage(ctx, "set content type", id, notionapi.Properties{
		s.props.ContentType: selectProp(string(ct)),
	})
}

// HasContentBlocks asks for a single child block. Any returned block counts,
// empty paragraphs included, so a note is never discarded as empty by mistake.
func (s *Store) HasContentBlocks(ctx context.Context, id string) (bool, error) {
	resp, err := s.blocks.GetChildren(ctx, notionapi.BlockID(id), &notionapi.Pagination{PageSize: 1})
	if err != nil {
		return false, &persistence.StoreError{Op: "has content blocks", ID: id, Err: err}
	}
	return len(resp.Results) > 0, nil
}

// CreateDigestPage writes an ad-hoc digest as a child of the digest parent
// page, with the metadata listed after the body. Without a parent page it
// returns an empty ID.
func (s *Store) CreateDigestPage(ctx context.Context, title string, blocks []core.Block, metadata map[string]string) (string, error) {
	if s.digestParentID == "" {
		return "", nil
	}

	body := append([]core.Block(nil), blocks...)
	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		body = append(body, core.Divider())
		for _, k := range keys {
			body = append(body, core.NewBlock(core.BlockParagraph, fmt.Sprintf("%s: %s", k, metadata[k])))
		}
	}

	page, err := s.createPage(ctx, "create digest page", &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{Type: notionapi.ParentTypePageID, PageID: notionapi.PageID(s.digestParentID)},
		Properties: notionapi.Properties{
			"title": titleProp(strings.TrimSpace(title)),
		},
	}, body)
	if page == nil {
		return "", err
	}
	return string(page.ID), err
}
