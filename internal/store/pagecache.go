package store

import (
	"context"
	"database/sql"
	"errors"
	"inboxdigest/internal/fetch"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	defaultCacheMaxAge = 24 * time.Hour
	cacheOpTimeout     = 5 * time.Second
)

var _ fetch.Cache = (*PageCache)(nil)

// PageCache is a fetch.Cache persisted in the page_cache table so fetched
// pages survive between runs. Entries older than maxAge count as misses.
// Database errors are logged and treated as misses.
type PageCache struct {
	s      *Store
	maxAge time.Duration
}

// PageCache returns a page cache backed by the store. A non-positive maxAge
// selects the 24 hour default.
func (s *Store) PageCache(maxAge time.Duration) *PageCache {
	if maxAge <= 0 {
		maxAge = defaultCacheMaxAge
	}
	return &PageCache{s: s, maxAge: maxAge}
}

func (c *PageCache) Get(url string) (fetch.Page, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	row, err := c.s.queryRow(ctx, c.s.sb.Select("title", "text", "fetched_at").From("page_cache").Where(sq.Eq{"url": url}))
	if err != nil {
		c.s.logger.Warn().Err(err).Str("url", url).Msg("page cache lookup failed")
		return fetch.Page{}, false
	}

	var (
		page      fetch.Page
		fetchedAt time.Time
	)
	if err := row.Scan(&page.Title, &page.Text, &fetchedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.s.logger.Warn().Err(err).Str("url", url).Msg("page cache lookup failed")
		}
		return fetch.Page{}, false
	}
	if c.s.now().Sub(fetchedAt) > c.maxAge {
		return fetch.Page{}, false
	}
	return page, true
}

func (c *PageCache) Put(url string, page fetch.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	upsert := c.s.sb.Insert("page_cache").
		Columns("url", "title", "text", "fetched_at").
		Values(url, page.Title, page.Text, c.s.now().UTC()).
		Suffix("ON CONFLICT (url) DO UPDATE SET title = excluded.title, text = excluded.text, fetched_at = excluded.fetched_at")
	if _, err := c.s.exec(ctx, c.s.db, upsert); err != nil {
		c.s.logger.Warn().Err(err).Str("url", url).Msg("page cache write failed")
	}
}

// Prune deletes entries older than the cache's max age and returns how many
// were removed.
func (c *PageCache) Prune(ctx context.Context) (int64, error) {
	cutoff := c.s.now().Add(-c.maxAge).UTC()
	res, err := c.s.exec(ctx, c.s.db, c.s.sb.Delete("page_cache").Where(sq.Lt{"fetched_at": cutoff}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
