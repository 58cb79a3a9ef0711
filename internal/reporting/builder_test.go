package reporting

import (
	"context"
	"errors"
	"inboxdigest/internal/categorization"
	"inboxdigest/internal/core"
	"strings"
	"testing"
	"time"
)

type fakeCategorizer struct {
	grouping categorization.Grouping
	err      error
	calls    int
}

func (f *fakeCategorizer) Categorize(ctx context.Context, items []core.Item) (categorization.Grouping, error) {
	f.calls++
	return f.grouping, f.err
}

var fixedNow = time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sampleItems() []core.Item {
	return []core.Item{
		{ID: "a", Title: "Attention is all you need", Tags: []string{"AI"}, Summary: "**TLDR:** Transformers explained.\n- attention", PageURL: "https://store.test/a"},
		{ID: "b", Title: "Go 1.24 released", Tags: []string{"Programming"}, Summary: "New Go release.", URL: "https://go.dev/blog/go1.24"},
		{ID: "c", Title: "Zero trust networks", Tags: []string{"AI", "Security"}, Summary: "", URL: "https://example.com/zt"},
	}
}

func blockTexts(blocks []core.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}

func findBlock(blocks []core.Block, text string) (core.Block, bool) {
	for _, b := range blocks {
		if b.Text == text {
			return b, true
		}
	}
	return core.Block{}, false
}

func TestDailyBuildEmpty(t *testing.T) {
	b := NewDailyBuilder(nil, nil)
	report, err := b.Build(context.Background(), nil, DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Overview != "No new items today." {
		t.Errorf("Unexpected empty overview %q", report.Overview)
	}
	if len(report.Highlights) != 0 || len(report.SourceIDs) != 0 || len(report.Blocks) != 0 || len(report.Categories) != 0 {
		t.Errorf("Expected empty report, got %+v", report)
	}
	if report.Title != "Daily Digest - 2025-01-15" {
		t.Errorf("Unexpected title %q", report.Title)
	}
}

func TestDailyBuildFlatGroupingFallback(t *testing.T) {
	items := sampleItems()
	items = append(items, core.Item{ID: "d", Title: "Untagged note"})

	report, err := NewDailyBuilder(nil, nil).Build(context.Background(), items, DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantGroups := []string{"AI", "Programming", "Uncategorized"}
	if len(report.Categories) != len(wantGroups) {
		t.Fatalf("Expected %d groups, got %+v", len(wantGroups), report.Categories)
	}
	for i, name := range wantGroups {
		if report.Categories[i].Name != name {
			t.Errorf("Group %d = %s, want %s", i, report.Categories[i].Name, name)
		}
	}
	if got := report.Categories[0].Subgroups[0].ItemIDs; len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Expected AI to hold a and c, got %v", got)
	}

	if report.Overview != "Collected 4 items across 3 categories: AI, Programming, Uncategorized." {
		t.Errorf("Unexpected fallback overview %q", report.Overview)
	}
	if len(report.Highlights) != 4 {
		t.Fatalf("Expected 4 title highlights, got %d", len(report.Highlights))
	}
	if h := report.Highlights[0]; h.Text != "Attention is all you need" || h.Link != "https://store.test/a" {
		t.Errorf("Expected store page link, got %+v", h)
	}
	if h := report.Highlights[1]; h.Link != "https://go.dev/blog/go1.24" {
		t.Errorf("Expected URL link when no page exists, got %+v", h)
	}
	if len(report.SourceIDs) != 4 {
		t.Errorf("Expected every item as a source, got %v", report.SourceIDs)
	}
}

func TestDailyBuildBlocks(t *testing.T) {
	cat := &fakeCategorizer{grouping: categorization.Grouping{
		{Name: "Technology", Subgroups: []categorization.Subgroup{
			{Name: "AI", Indices: []int{0, 2}},
			{Name: "Programming", Indices: []int{1, 1, 7}},
		}},
	}}
	report, err := NewDailyBuilder(cat, nil).Build(context.Background(), sampleItems(), DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	texts := blockTexts(report.Blocks)
	want := []string{
		"📊 Stats (3 items)",
		"Technology: 3 (AI, Programming)",
		"",
		"⭐ Highlights",
		"Attention is all you need",
		"Go 1.24 released",
		"Zero trust networks",
		"",
		"📁 Technology (3)",
		"▸ AI (2)",
		"📌 Transformers explained",
		"📌 Zero trust networks",
		"▸ Programming (1)",
		"📌 New Go release",
		"",
	}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("Unexpected blocks:\n got %q\nwant %q", texts, want)
	}

	if b, ok := findBlock(report.Blocks, "📌 Transformers explained"); !ok || b.Link != "https://store.test/a" || b.Kind != core.BlockBullet {
		t.Errorf("Expected linked item bullet, got %+v", b)
	}
	if b, _ := findBlock(report.Blocks, "▸ AI (2)"); b.Kind != core.BlockHeading3 {
		t.Errorf("Expected subcategory heading_3, got %s", b.Kind)
	}
	if report.Blocks[2].Kind != core.BlockDivider {
		t.Errorf("Expected divider after stats, got %s", report.Blocks[2].Kind)
	}
}

func TestDailyBuildUnplacedItemsGoToOther(t *testing.T) {
	cat := &fakeCategorizer{grouping: categorization.Grouping{
		{Name: "Technology", Subgroups: []categorization.Subgroup{{Name: "AI", Indices: []int{0}}}},
	}}
	report, err := NewDailyBuilder(cat, nil).Build(context.Background(), sampleItems(), DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	last := report.Categories[len(report.Categories)-1]
	if last.Name != categorization.OtherCategory || last.Subgroups[0].Name != categorization.UncategorizedSubcategory {
		t.Fatalf("Expected Other / Uncategorized, got %+v", last)
	}
	if got := last.Subgroups[0].ItemIDs; len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Expected b and c unplaced, got %v", got)
	}
}

func TestDailyBuildCategorizerFailure(t *testing.T) {
	cat := &fakeCategorizer{err: errors.New("model unavailable")}
	report, err := NewDailyBuilder(cat, nil).Build(context.Background(), sampleItems(), DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build should degrade, got %v", err)
	}
	if cat.calls != 1 {
		t.Errorf("Expected one categorizer call, got %d", cat.calls)
	}
	if report.Categories[0].Name != "AI" {
		t.Errorf("Expected tag grouping fallback, got %+v", report.Categories)
	}
}

func TestDailyBuildMergesModelHighlights(t *testing.T) {
	overview := func(ctx context.Context, items []core.Item) (string, []string, error) {
		return "A day about models.", []string{"Transformers", "Go release", "Zero trust", "Extra point"}, nil
	}
	items := sampleItems()[:2]
	report, err := NewDailyBuilder(nil, overview).Build(context.Background(), items, DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Overview != "A day about models." {
		t.Errorf("Unexpected overview %q", report.Overview)
	}
	if len(report.Highlights) != 4 {
		t.Fatalf("Expected 4 highlights, got %d", len(report.Highlights))
	}
	if report.Highlights[0].Link != "https://store.test/a" || report.Highlights[1].Link != "https://go.dev/blog/go1.24" {
		t.Errorf("Expected highlights linked by index, got %+v", report.Highlights[:2])
	}
	if report.Highlights[2].Link != "" || report.Highlights[3].Link != "" {
		t.Errorf("Expected extra highlights unlinked, got %+v", report.Highlights[2:])
	}
}

func TestDailyBuildOverviewFailureFallsBack(t *testing.T) {
	overview := func(ctx context.Context, items []core.Item) (string, []string, error) {
		return "", nil, errors.New("quota exceeded")
	}
	report, err := NewDailyBuilder(nil, overview).Build(context.Background(), sampleItems(), DailyRange(fixedNow))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.HasPrefix(report.Overview, "Collected 3 items across 2 categories") {
		t.Errorf("Expected fallback overview, got %q", report.Overview)
	}
}

func dailyReport(id string, day int, overview string, highlights ...string) core.Report {
	r := core.Report{
		ID:       id,
		Period:   DailyRange(date(2025, 1, day)),
		Overview: overview,
		PageURL:  "https://store.test/" + id,
	}
	r.Title = r.Period.Title()
	for _, h := range highlights {
		r.Highlights = append(r.Highlights, core.Highlight{Text: h})
	}
	return r
}

func TestWeeklyBuild(t *testing.T) {
	dailies := []core.Report{
		dailyReport("d1", 13, "Monday was about agents.", "Agents", "Evals", "Tooling"),
		dailyReport("d2", 14, strings.Repeat("x", 300), "Rust", "Go", "Zig"),
	}
	b := NewWeeklyBuilder(nil)
	b.now = fixedClock
	report, err := b.Build(context.Background(), dailies, WeeklyRange(date(2025, 1, 15)))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if report.Overview != "2 days recorded this week." {
		t.Errorf("Unexpected fallback overview %q", report.Overview)
	}
	if report.Title != "Weekly Digest - W03 2025" {
		t.Errorf("Unexpected title %q", report.Title)
	}
	if len(report.Highlights) != 5 {
		t.Fatalf("Expected trends capped at 5, got %d", len(report.Highlights))
	}
	if h := report.Highlights[3]; h.Text != "Rust" || h.Link != "https://store.test/d2" || h.Date != "2025-01-14" {
		t.Errorf("Unexpected trend %+v", h)
	}
	if len(report.SourceIDs) != 2 || report.SourceIDs[0] != "d1" {
		t.Errorf("Unexpected sources %v", report.SourceIDs)
	}

	if report.Blocks[0].Text != "📅 Week at a glance (2 days)" {
		t.Errorf("Unexpected heading %q", report.Blocks[0].Text)
	}
	callout := report.Blocks[1]
	if callout.Kind != core.BlockCallout || callout.Text != "2025-01-13: Daily Digest - 2025-01-13" ||
		callout.Icon != "📋" || callout.Link != "https://store.test/d1" || !callout.Bold {
		t.Errorf("Unexpected callout %+v", callout)
	}
	if report.Blocks[2].Text != "  Monday was about agents." || report.Blocks[3].Text != "" {
		t.Errorf("Expected summary and spacer, got %q %q", report.Blocks[2].Text, report.Blocks[3].Text)
	}
	if got := len([]rune(report.Blocks[5].Text)); got != 202 {
		t.Errorf("Expected summary capped at 200 chars plus indent, got %d", got)
	}
	if b, ok := findBlock(report.Blocks, "Rust (2025-01-14)"); !ok || b.Link != "https://store.test/d2" {
		t.Errorf("Expected linked trend bullet, got %+v", b)
	}
	if _, ok := findBlock(report.Blocks, "📈 Trends"); !ok {
		t.Error("Expected trends heading")
	}
}

func TestWeeklyBuildUsesModelTrends(t *testing.T) {
	overview := func(ctx context.Context, reports []core.Report) (string, []string, error) {
		return "An agent-heavy week.", []string{"Agents everywhere"}, nil
	}
	b := NewWeeklyBuilder(overview)
	report, err := b.Build(context.Background(), []core.Report{dailyReport("d1", 13, "x", "Agents")}, WeeklyRange(date(2025, 1, 13)))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Overview != "An agent-heavy week." {
		t.Errorf("Unexpected overview %q", report.Overview)
	}
	if len(report.Highlights) != 1 || report.Highlights[0].Text != "Agents everywhere" {
		t.Errorf("Expected model trends, got %+v", report.Highlights)
	}
	if b, ok := findBlock(report.Blocks, "Agents (2025-01-13)"); !ok || b.Link == "" {
		t.Error("Expected body to keep linked trends from the dailies")
	}
}

func TestMonthlyBuild(t *testing.T) {
	w1 := core.Report{ID: "w1", Period: WeeklyRange(date(2025, 1, 6)), Overview: "Week one.", PageURL: "https://store.test/w1",
		Highlights: []core.Highlight{{Text: "Agents"}}}
	w1.Title = w1.Period.Title()
	w2 := core.Report{ID: "w2", Period: WeeklyRange(date(2025, 1, 13)), Highlights: []core.Highlight{{Text: "Evals"}}}
	w2.Title = w2.Period.Title()

	report, err := NewMonthlyBuilder(nil).Build(context.Background(), []core.Report{w1, w2}, MonthlyRange(date(2025, 1, 15)))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Overview != "2 weeks recorded this month." {
		t.Errorf("Unexpected fallback overview %q", report.Overview)
	}
	if report.Title != "Monthly Digest - January 2025" {
		t.Errorf("Unexpected title %q", report.Title)
	}
	if report.Blocks[0].Text != "📆 Month at a glance (2 weeks)" {
		t.Errorf("Unexpected heading %q", report.Blocks[0].Text)
	}
	if c := report.Blocks[1]; c.Text != "Weekly Digest - W02 2025" || c.Icon != "📅" {
		t.Errorf("Unexpected callout %+v", c)
	}
	if b, ok := findBlock(report.Blocks, "Agents (Weekly Digest - W02 2025)"); !ok || b.Link != "https://store.test/w1" {
		t.Errorf("Expected theme with source title, got %+v", b)
	}
	if _, ok := findBlock(report.Blocks, "Evals"); !ok {
		t.Error("Expected unlinked theme without source suffix")
	}
	if report.Highlights[0].Source != "Weekly Digest - W02 2025" {
		t.Errorf("Expected theme source, got %+v", report.Highlights[0])
	}
}
