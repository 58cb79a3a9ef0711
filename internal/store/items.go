package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var (
	_ persistence.ItemStore   = (*Store)(nil)
	_ persistence.ReportStore = (*Store)(nil)
)

var itemColumns = []string{
	"id", "url", "title", "raw_content", "attachments", "tags", "sensitivity",
	"confidence", "status", "source", "kind", "content_type", "canonical_url",
	"duplicate_of", "summary", "created_at",
}

// SaveItem inserts a captured item and returns its ID. Empty ID, status and
// capture time are filled in. HasBlocks marks a note whose body is stored
// with the item.
func (s *Store) SaveItem(ctx context.Context, item core.Item, hasBlocks bool) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = core.StatusToProcess
	}
	if item.Sensitivity == "" {
		item.Sensitivity = core.SensitivityPublic
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	attachments, err := json.Marshal(nonNil(item.Attachments))
	if err != nil {
		return "", fmt.Errorf("failed to marshal attachments: %w", err)
	}
	tags, err := json.Marshal(nonNil(item.Tags))
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}

	var confidence sql.NullFloat64
	if item.HasConfidence {
		confidence = sql.NullFloat64{Float64: item.Confidence, Valid: true}
	}

	insert := s.sb.Insert("items").
		Columns("id", "url", "title", "raw_content", "attachments", "tags", "sensitivity",
			"confidence", "status", "source", "kind", "content_type", "canonical_url",
			"duplicate_of", "summary", "has_blocks", "created_day", "created_at", "updated_at").
		Values(item.ID, item.URL, item.Title, item.RawContent, string(attachments), string(tags), string(item.Sensitivity),
			confidence, string(item.Status), string(item.Source), string(item.Kind), string(item.ContentType), item.CanonicalURL,
			item.DuplicateOf, item.Summary, hasBlocks, s.day(item.CreatedAt), item.CreatedAt.UTC(), s.now().UTC())
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return "", &persistence.StoreError{Op: "save item", ID: item.ID, Err: err}
	}
	return item.ID, nil
}

// GetItem loads one item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*core.Item, error) {
	items, err := s.selectItems(ctx, "get item", sq.Eq{"id": id}, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &persistence.StoreError{Op: "get item", ID: id, Err: persistence.ErrNotFound}
	}
	return &items[0], nil
}

func (s *Store) QueryPending(ctx context.Context) ([]core.Item, error) {
	return s.selectItems(ctx, "query pending", sq.Eq{"status": string(core.StatusToProcess)}, 0)
}

func (s *Store) QueryPendingReview(ctx context.Context) ([]core.Item, error) {
	return s.selectItems(ctx, "query pending review", sq.Eq{"status": string(core.StatusPendingReview)}, 0)
}

func (s *Store) FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Item, error) {
	items, err := s.selectItems(ctx, "find by canonical url", sq.Eq{"canonical_url": canonicalURL}, 1)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (s *Store) QueryReadyForDigest(ctx context.Context, r persistence.DateRange, includePrivate bool) ([]core.Item, error) {
	where := sq.And{
		sq.Eq{"status": string(core.StatusReady)},
		sq.LtOrEq{"created_day": r.End.Format(dayLayout)},
	}
	if !r.Start.IsZero() {
		where = append(where, sq.GtOrEq{"created_day": r.Start.Format(dayLayout)})
	}
	if !includePrivate {
		where = append(where, sq.NotEq{"sensitivity": string(core.SensitivityPrivate)})
	}
	return s.selectItems(ctx, "query ready for digest", where, 0)
}

func (s *Store) selectItems(ctx context.Context, op string, where sq.Sqlizer, limit uint64) ([]core.Item, error) {
	q := s.sb.Select(itemColumns...).From("items").Where(where).OrderBy("created_at", "id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, &persistence.StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, &persistence.StoreError{Op: op, Err: err}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &persistence.StoreError{Op: op, Err: err}
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (core.Item, error) {
	var (
		item                        core.Item
		attachments, tags           string
		sensitivity, status, source string
		kind, contentType           string
		confidence                  sql.NullFloat64
	)
	err := row.Scan(&item.ID, &item.URL, &item.Title, &item.RawContent, &attachments, &tags, &sensitivity,
		&confidence, &status, &source, &kind, &contentType, &item.CanonicalURL,
		&item.DuplicateOf, &item.Summary, &item.CreatedAt)
	if err != nil {
		return item, fmt.Errorf("failed to scan item: %w", err)
	}

	if err := json.Unmarshal([]byte(attachments), &item.Attachments); err != nil {
		return item, fmt.Errorf("failed to decode attachments of %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return item, fmt.Errorf("failed to decode tags of %s: %w", item.ID, err)
	}
	if item.Sensitivity, err = core.ParseSensitivity(sensitivity); err != nil {
		return item, err
	}
	if item.Status, err = core.ParseStatus(status); err != nil {
		return item, err
	}
	if kind != "" {
		if item.Kind, err = core.ParseItemKind(kind); err != nil {
			return item, err
		}
	}
	if contentType != "" {
		item.ContentType = core.ParseContentType(contentType)
	}
	item.Source = core.Source(source)
	item.Confidence = confidence.Float64
	item.HasConfidence = confidence.Valid
	return item, nil
}

// update applies fields to one item, reporting ErrNotFound when no row matched.
func (s *Store) update(ctx context.Context, op, id string, fields map[string]any) error {
	fields["updated_at"] = s.now().UTC()
	res, err := s.exec(ctx, s.db, s.sb.Update("items").SetMap(fields).Where(sq.Eq{"id": id}))
	if err != nil {
		return &persistence.StoreError{Op: op, ID: id, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &persistence.StoreError{Op: op, ID: id, Err: persistence.ErrNotFound}
	}
	return nil
}

// UpdateStatus moves an item to status. A non-empty note replaces the
// summary so the reason is visible next to the item.
func (s *Store) UpdateStatus(ctx context.Context, id string, status core.Status, note string) error {
	fields := map[string]any{"status": string(status), "note": note}
	if note != "" {
		fields["summary"] = note
	}
	return s.update(ctx, "update status", id, fields)
}

func (s *Store) SetClassification(ctx context.Context, id string, c core.Classification) error {
	tags, err := json.Marshal(nonNil(c.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	fields := map[string]any{
		"tags":           string(tags),
		"sensitivity":    string(c.Sensitivity),
		"confidence":     c.Confidence,
		"rule_version":   c.RuleVersion,
		"prompt_version": c.PromptVersion,
		"raw_content":    c.RawContent,
		"canonical_url":  c.CanonicalURL,
	}
	if c.Source != "" {
		fields["source"] = string(c.Source)
	}
	return s.update(ctx, "set classification", id, fields)
}

func (s *Store) SetTitle(ctx context.Context, id, title, note string) error {
	return s.update(ctx, "set title", id, map[string]any{"title": title, "note": note})
}

func (s *Store) SetDuplicateOf(ctx context.Context, id, ownerID, note string) error {
	return s.update(ctx, "set duplicate", id, map[string]any{
		"status":       string(core.StatusExcluded),
		"duplicate_of": ownerID,
		"note":         note,
		"summary":      note,
	})
}

func (s *Store) SetSummary(ctx context.Context, id, summary string, status core.Status) error {
	return s.update(ctx, "set summary", id, map[string]any{"summary": summary, "status": string(status)})
}

func (s *Store) SetItemKind(ctx context.Context, id string, kind core.ItemKind) error {
	return s.update(ctx, "set item kind", id, map[string]any{"kind": string(kind)})
}

func (s *Store) SetContentType(ctx context.Context, id string, ct core.ContentType) error {
	return s.update(ctx, "set content type", id, map[string]any{"content_type": string(ct)})
}

// HasContentBlocks reports whether a note body was stored with the item.
func (s *Store) HasContentBlocks(ctx context.Context, id string) (bool, error) {
	row, err := s.queryRow(ctx, s.sb.Select("has_blocks").From("items").Where(sq.Eq{"id": id}))
	if err != nil {
		return false, &persistence.StoreError{Op: "has content blocks", ID: id, Err: err}
	}
	var has bool
	if err := row.Scan(&has); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, &persistence.StoreError{Op: "has content blocks", ID: id, Err: persistence.ErrNotFound}
		}
		return false, &persistence.StoreError{Op: "has content blocks", ID: id, Err: err}
	}
	return has, nil
}

// CreateDigestPage stores an ad-hoc digest. The SQL store always has room
// for one, so the returned ID is never empty on success.
func (s *Store) CreateDigestPage(ctx context.Context, title string, blocks []core.Block, metadata map[string]string) (string, error) {
	body, err := json.Marshal(nonNil(blocks))
	if err != nil {
		return "", fmt.Errorf("failed to marshal blocks: %w", err)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	id := uuid.NewString()
	insert := s.sb.Insert("digest_pages").
		Columns("id", "title", "blocks", "metadata", "created_at").
		Values(id, strings.TrimSpace(title), string(body), string(meta), s.now().UTC())
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return "", &persistence.StoreError{Op: "create digest page", Err: err}
	}
	return id, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
