package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/fetch"
	"inboxdigest/internal/persistence"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

var fixedNow = time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.DSN == "" {
		opts.DSN = filepath.Join(t.TempDir(), "data", "inbox.db")
	}
	s, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.WithClock(func() time.Time { return fixedNow })
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "inbox.db")

	s := newTestStore(t, Options{DSN: dsn})
	if s.Driver() != DriverSQLite {
		t.Errorf("Expected driver %s, got %s", DriverSQLite, s.Driver())
	}
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("Expected database file to be created: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"})
	if err == nil {
		t.Fatal("Expected error for unsupported driver")
	}
}

func TestPlaceholderFor(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{DriverSQLite, "SELECT id FROM items WHERE id = ?"},
		{DriverPostgres, "SELECT id FROM items WHERE id = $1"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			p, err := placeholderFor(tt.driver)
			if err != nil {
				t.Fatalf("placeholderFor(%q) failed: %v", tt.driver, err)
			}
			query, _, err := sq.StatementBuilder.PlaceholderFormat(p).
				Select("id").From("items").Where(sq.Eq{"id": "a"}).ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			if query != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, query)
			}
		})
	}

	if _, err := placeholderFor("mysql"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestOpen_PostgresUnreachable(t *testing.T) {
	_, err := Open(context.Background(), Options{
		Driver: DriverPostgres,
		DSN:    "postgres://inbox@127.0.0.1:1/inbox?sslmode=disable&connect_timeout=1",
	})
	if err == nil {
		t.Fatal("Expected error for unreachable database")
	}
	if !strings.Contains(err.Error(), "failed to ping database") {
		t.Errorf("Expected ping failure, got %v", err)
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "inbox.db")

	first := newTestStore(t, Options{DSN: dsn})
	if _, err := first.SaveItem(context.Background(), core.Item{ID: "a", Title: "kept"}, false); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	_ = first.Close()

	second := newTestStore(t, Options{DSN: dsn})
	item, err := second.GetItem(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetItem after reopen failed: %v", err)
	}
	if item.Title != "kept" {
		t.Errorf("Expected title to survive reopen, got %q", item.Title)
	}

	applied, err := newMigrator(second).appliedVersions(context.Background())
	if err != nil {
		t.Fatalf("appliedVersions failed: %v", err)
	}
	if len(applied) != 1 || !applied[1] {
		t.Errorf("Expected only migration 1 applied, got %v", applied)
	}
}

func TestFindPendingMigrations(t *testing.T) {
	available := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	pending := findPendingMigrations(available, map[int]bool{1: true, 3: true})
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("Expected only version 2 pending, got %+v", pending)
	}
}

func TestLoadMigrations(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverPostgres} {
		m := newMigrator(&Store{driver: driver, logger: zerolog.Nop()})
		migrations, err := m.loadMigrations()
		if err != nil {
			t.Fatalf("%s: loadMigrations failed: %v", driver, err)
		}
		if len(migrations) == 0 {
			t.Fatalf("%s: expected embedded migrations", driver)
		}
		if migrations[0].Version != 1 || migrations[0].Description != "initial schema" {
			t.Errorf("%s: unexpected first migration %d %q", driver, migrations[0].Version, migrations[0].Description)
		}
		if !strings.Contains(migrations[0].SQL, "CREATE TABLE IF NOT EXISTS items") {
			t.Errorf("%s: expected items table in initial schema", driver)
		}
	}
}

func TestSaveAndGetItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	id, err := s.SaveItem(ctx, core.Item{
		URL:         "https://example.com/post",
		Title:       "Post",
		Attachments: []string{"notes.pdf"},
		Source:      core.SourcePlugin,
	}, true)
	if err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected generated ID")
	}

	item, err := s.GetItem(ctx, id)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.Status != core.StatusToProcess {
		t.Errorf("Expected default status %s, got %s", core.StatusToProcess, item.Status)
	}
	if item.Sensitivity != core.SensitivityPublic {
		t.Errorf("Expected default sensitivity public, got %s", item.Sensitivity)
	}
	if len(item.Attachments) != 1 || item.Attachments[0] != "notes.pdf" {
		t.Errorf("Unexpected attachments %v", item.Attachments)
	}
	if item.HasConfidence {
		t.Error("Expected no confidence before classification")
	}
	if !item.CreatedAt.Equal(fixedNow) {
		t.Errorf("Expected created at %v, got %v", fixedNow, item.CreatedAt)
	}

	has, err := s.HasContentBlocks(ctx, id)
	if err != nil {
		t.Fatalf("HasContentBlocks failed: %v", err)
	}
	if !has {
		t.Error("Expected content blocks to be recorded")
	}
}

func TestGetItem_NotFound(t *testing.T) {
	s := newTestStore(t, Options{})

	_, err := s.GetItem(context.Background(), "missing")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.HasContentBlocks(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from HasContentBlocks, got %v", err)
	}
}

func TestUpdates_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	updates := map[string]func() error{
		"status":         func() error { return s.UpdateStatus(ctx, "missing", core.StatusReady, "") },
		"title":          func() error { return s.SetTitle(ctx, "missing", "t", "") },
		"summary":        func() error { return s.SetSummary(ctx, "missing", "s", core.StatusReady) },
		"kind":           func() error { return s.SetItemKind(ctx, "missing", core.KindURLResource) },
		"content type":   func() error { return s.SetContentType(ctx, "missing", core.ContentHTML) },
		"duplicate":      func() error { return s.SetDuplicateOf(ctx, "missing", "owner", "dup") },
		"classification": func() error { return s.SetClassification(ctx, "missing", core.Classification{}) },
	}
	for name, update := range updates {
		var storeErr *persistence.StoreError
		err := update()
		if !errors.As(err, &storeErr) || !errors.Is(err, persistence.ErrNotFound) {
			t.Errorf("%s: expected StoreError wrapping ErrNotFound, got %v", name, err)
		}
	}
}

func TestQueryPendingAndReview(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	seed := []core.Item{
		{ID: "p1", Title: "pending", CreatedAt: fixedNow.Add(-2 * time.Hour)},
		{ID: "p2", Title: "pending later", CreatedAt: fixedNow.Add(-time.Hour)},
		{ID: "r1", Title: "review", Status: core.StatusPendingReview},
		{ID: "d1", Title: "done", Status: core.StatusReady},
	}
	for _, item := range seed {
		if _, err := s.SaveItem(ctx, item, false); err != nil {
			t.Fatalf("SaveItem %s failed: %v", item.ID, err)
		}
	}

	pending, err := s.QueryPending(ctx)
	if err != nil {
		t.Fatalf("QueryPending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "p1" || pending[1].ID != "p2" {
		t.Errorf("Expected p1, p2 in capture order, got %+v", pending)
	}

	review, err := s.QueryPendingReview(ctx)
	if err != nil {
		t.Fatalf("QueryPendingReview failed: %v", err)
	}
	if len(review) != 1 || review[0].ID != "r1" {
		t.Errorf("Expected r1 pending review, got %+v", review)
	}
}

func TestClassificationAndStatusUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	if _, err := s.SaveItem(ctx, core.Item{ID: "a", URL: "https://Example.com/x?utm_source=y"}, false); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	err := s.SetClassification(ctx, "a", core.Classification{
		Tags:          []string{"go", "tools"},
		Sensitivity:   core.SensitivityInternal,
		Confidence:    0.8,
		RuleVersion:   "r1",
		PromptVersion: "p1",
		RawContent:    "body",
		CanonicalURL:  "https://example.com/x",
	})
	if err != nil {
		t.Fatalf("SetClassification failed: %v", err)
	}
	if err := s.SetSummary(ctx, "a", "TL;DR: useful", core.StatusReady); err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}

	item, err := s.GetItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !item.HasConfidence || item.Confidence != 0.8 {
		t.Errorf("Expected confidence 0.8, got %v (set %v)", item.Confidence, item.HasConfidence)
	}
	if len(item.Tags) != 2 || item.Sensitivity != core.SensitivityInternal {
		t.Errorf("Unexpected classification on item: %+v", item)
	}
	if item.Status != core.StatusReady || item.Summary != "TL;DR: useful" {
		t.Errorf("Expected ready with summary, got %s %q", item.Status, item.Summary)
	}

	// An empty note keeps the summary in place.
	if err := s.UpdateStatus(ctx, "a", core.StatusPendingReview, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	item, _ = s.GetItem(ctx, "a")
	if item.Summary != "TL;DR: useful" {
		t.Errorf("Expected summary kept for empty note, got %q", item.Summary)
	}

	if err := s.UpdateStatus(ctx, "a", core.StatusError, "Error: fetch failed"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	item, _ = s.GetItem(ctx, "a")
	if item.Status != core.StatusError || item.Summary != "Error: fetch failed" {
		t.Errorf("Expected error status with note, got %s %q", item.Status, item.Summary)
	}
}

func TestFindByCanonicalURLAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	for _, item := range []core.Item{
		{ID: "owner", CanonicalURL: "https://example.com/a", CreatedAt: fixedNow.Add(-time.Hour)},
		{ID: "dup", CanonicalURL: "https://example.com/a"},
	} {
		if _, err := s.SaveItem(ctx, item, false); err != nil {
			t.Fatalf("SaveItem failed: %v", err)
		}
	}

	found, err := s.FindByCanonicalURL(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("FindByCanonicalURL failed: %v", err)
	}
	if found == nil || found.ID != "owner" {
		t.Errorf("Expected earliest item to own the URL, got %+v", found)
	}

	none, err := s.FindByCanonicalURL(ctx, "https://example.com/other")
	if err != nil || none != nil {
		t.Errorf("Expected nil for unknown URL, got %+v, %v", none, err)
	}

	if err := s.SetDuplicateOf(ctx, "dup", "owner", "Duplicate of owner"); err != nil {
		t.Fatalf("SetDuplicateOf failed: %v", err)
	}
	dup, _ := s.GetItem(ctx, "dup")
	if dup.Status != core.StatusExcluded || dup.DuplicateOf != "owner" {
		t.Errorf("Expected excluded duplicate of owner, got %s %q", dup.Status, dup.DuplicateOf)
	}
}

func TestQueryReadyForDigest(t *testing.T) {
	ctx := context.Background()
	jst := time.FixedZone("JST", 9*60*60)
	s := newTestStore(t, Options{Location: jst})

	seed := []core.Item{
		// 21:00 UTC on the 15th is the 16th in JST.
		{ID: "late", Status: core.StatusReady, CreatedAt: fixedNow},
		{ID: "on-day", Status: core.StatusReady, CreatedAt: time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)},
		{ID: "private", Status: core.StatusReady, Sensitivity: core.SensitivityPrivate, CreatedAt: time.Date(2025, 1, 15, 4, 0, 0, 0, time.UTC)},
		{ID: "older", Status: core.StatusReady, CreatedAt: time.Date(2025, 1, 10, 4, 0, 0, 0, time.UTC)},
		{ID: "pending", CreatedAt: time.Date(2025, 1, 15, 5, 0, 0, 0, time.UTC)},
	}
	for _, item := range seed {
		if _, err := s.SaveItem(ctx, item, false); err != nil {
			t.Fatalf("SaveItem %s failed: %v", item.ID, err)
		}
	}

	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name           string
		r              persistence.DateRange
		includePrivate bool
		want           []string
	}{
		{"single day public", persistence.DateRange{Start: day, End: day}, false, []string{"on-day"}},
		{"single day with private", persistence.DateRange{Start: day, End: day}, true, []string{"on-day", "private"}},
		{"open start", persistence.DateRange{End: day.AddDate(0, 0, 1)}, false, []string{"older", "on-day", "late"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := s.QueryReadyForDigest(ctx, tt.r, tt.includePrivate)
			if err != nil {
				t.Fatalf("QueryReadyForDigest failed: %v", err)
			}
			var got []string
			for _, item := range items {
				got = append(got, item.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCreateDigestPage(t *testing.T) {
	s := newTestStore(t, Options{})

	id, err := s.CreateDigestPage(context.Background(), " Digest (1d) ", []core.Block{core.NewBlock(core.BlockParagraph, "hi")},
		map[string]string{"window": "1d"})
	if err != nil {
		t.Fatalf("CreateDigestPage failed: %v", err)
	}
	if id == "" {
		t.Error("Expected a page ID from the SQL store")
	}
}

func sampleReport(start time.Time, title string, blocks int) *core.Report {
	r := &core.Report{
		Period:     core.ReportPeriod{Type: core.ReportDaily, Start: start, End: start},
		Title:      title,
		Overview:   "overview of " + title,
		Highlights: []core.Highlight{{Text: "first", Link: "https://example.com/1"}},
		SourceIDs:  []string{"a", "b"},
		Categories: []core.CategoryGroup{{Name: "Go", Subgroups: []core.Subgroup{{Name: "General", ItemIDs: []string{"a"}}}}},
	}
	for i := 0; i < blocks; i++ {
		r.Blocks = append(r.Blocks, core.NewBlock(core.BlockBullet, fmt.Sprintf("block %d", i)))
	}
	return r
}

func TestCreateReport_BlocksInBatches(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	s := newTestStore(t, Options{Logger: &logger})

	id, err := s.CreateReport(ctx, sampleReport(fixedNow, "big", 150), []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}

	blocks, err := s.ReportBlocks(ctx, id)
	if err != nil {
		t.Fatalf("ReportBlocks failed: %v", err)
	}
	if len(blocks) != 150 {
		t.Fatalf("Expected 150 blocks, got %d", len(blocks))
	}
	for i, b := range blocks {
		if b.Text != fmt.Sprintf("block %d", i) {
			t.Fatalf("Block %d out of order: %q", i, b.Text)
		}
	}
	if !strings.Contains(logs.String(), `"batches":2`) {
		t.Errorf("Expected blocks written in 2 batches, logs: %s", logs.String())
	}

	items, reports, err := s.ReportSources(ctx, id)
	if err != nil {
		t.Fatalf("ReportSources failed: %v", err)
	}
	if len(items) != 2 || len(reports) != 0 {
		t.Errorf("Unexpected provenance items=%v reports=%v", items, reports)
	}
}

func TestFindReport_Newest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	if r, err := s.FindReport(ctx, core.ReportDaily, day); err != nil || r != nil {
		t.Fatalf("Expected no report yet, got %+v, %v", r, err)
	}

	if _, err := s.CreateReport(ctx, sampleReport(day, "first", 1), nil, nil); err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}
	secondID, err := s.CreateReport(ctx, sampleReport(day, "second", 1), nil, nil)
	if err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}

	found, err := s.FindReport(ctx, core.ReportDaily, day)
	if err != nil {
		t.Fatalf("FindReport failed: %v", err)
	}
	if found == nil || found.ID != secondID || found.Title != "second" {
		t.Fatalf("Expected newest report, got %+v", found)
	}
	if !found.Period.Start.Equal(day) || found.Period.Type != core.ReportDaily {
		t.Errorf("Unexpected period %+v", found.Period)
	}
	if len(found.Highlights) != 1 || found.Highlights[0].Link != "https://example.com/1" {
		t.Errorf("Expected highlights round trip, got %+v", found.Highlights)
	}
	if len(found.Categories) != 1 || found.Categories[0].Count() != 1 {
		t.Errorf("Expected categories round trip, got %+v", found.Categories)
	}

	if r, _ := s.FindReport(ctx, core.ReportWeekly, day); r != nil {
		t.Errorf("Expected report type to be matched, got %+v", r)
	}
}

func TestQueryReportsInRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	monday := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	for _, offset := range []int{3, -1, 0, 7, 6} {
		day := monday.AddDate(0, 0, offset)
		if _, err := s.CreateReport(ctx, sampleReport(day, day.Format("01-02"), 0), nil, nil); err != nil {
			t.Fatalf("CreateReport failed: %v", err)
		}
	}

	reports, err := s.QueryReportsInRange(ctx, core.ReportDaily, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("QueryReportsInRange failed: %v", err)
	}
	var titles []string
	for _, r := range reports {
		titles = append(titles, r.Title)
	}
	if got := strings.Join(titles, ","); got != "01-13,01-16,01-19" {
		t.Errorf("Expected reports inside the week in ascending order, got %s", got)
	}
}

func TestPageCache(t *testing.T) {
	s := newTestStore(t, Options{})
	cache := s.PageCache(time.Hour)

	if _, ok := cache.Get("https://example.com"); ok {
		t.Fatal("Expected miss on empty cache")
	}

	cache.Put("https://example.com", fetch.Page{Title: "Example", Text: "body"})
	page, ok := cache.Get("https://example.com")
	if !ok || page.Title != "Example" || page.Text != "body" {
		t.Fatalf("Expected cached page, got %+v (hit %v)", page, ok)
	}

	cache.Put("https://example.com", fetch.Page{Title: "Updated"})
	if page, _ := cache.Get("https://example.com"); page.Title != "Updated" {
		t.Errorf("Expected upsert to replace entry, got %q", page.Title)
	}

	s.WithClock(func() time.Time { return fixedNow.Add(2 * time.Hour) })
	if _, ok := cache.Get("https://example.com"); ok {
		t.Error("Expected stale entry to miss")
	}
	n, err := cache.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", n)
	}
}

func TestPageCache_DefaultMaxAge(t *testing.T) {
	s := newTestStore(t, Options{})
	if got := s.PageCache(0).maxAge; got != 24*time.Hour {
		t.Errorf("Expected 24h default max age, got %v", got)
	}
}
