// Package reporting builds and persists daily, weekly and monthly digest
// reports, each level summarizing the one below it.
package reporting

import (
	"context"
	"fmt"
	"inboxdigest/internal/categorization"
	"inboxdigest/internal/core"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxLinkedHighlights = 5
	maxTrends           = 5
	highlightTitleLen   = 80
	calloutSummaryLen   = 200
	overviewCategories  = 5

	emptyDailyOverview   = "No new items today."
	emptyWeeklyOverview  = "No daily reports recorded this week."
	emptyMonthlyOverview = "No weekly reports recorded this month."
)

// Categorizer places items into a two-level grouping by index.
type Categorizer interface {
	Categorize(ctx context.Context, items []core.Item) (categorization.Grouping, error)
}

// DailyOverviewFunc writes a day's overview and its highlights.
type DailyOverviewFunc func(ctx context.Context, items []core.Item) (string, []string, error)

// ReportOverviewFunc writes an overview of lower-level reports and the
// trends or themes running through them.
type ReportOverviewFunc func(ctx context.Context, reports []core.Report) (string, []string, error)

// DailyBuilder turns a day's ready items into a daily report.
type DailyBuilder struct {
	categorizer Categorizer
	overview    DailyOverviewFunc
	now         func() time.Time
	logger      zerolog.Logger
}

// NewDailyBuilder creates a daily builder. Either dependency may be nil.
func NewDailyBuilder(categorizer Categorizer, overview DailyOverviewFunc) *DailyBuilder {
	return &DailyBuilder{categorizer: categorizer, overview: overview, now: time.Now, logger: zerolog.Nop()}
}

// WithLogger sets the logger used for degraded-mode warnings.
func (b *DailyBuilder) WithLogger(logger zerolog.Logger) *DailyBuilder {
	b.logger = logger
	return b
}

// Build groups items, writes the overview and renders the report body.
func (b *DailyBuilder) Build(ctx context.Context, items []core.Item, period core.ReportPeriod) (*core.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &core.Report{Period: period, Title: period.Title(), CreatedAt: b.now()}
	if len(items) == 0 {
		report.Overview = emptyDailyOverview
		return report, nil
	}

	for _, item := range items {
		if item.ID != "" {
			report.SourceIDs = append(report.SourceIDs, item.ID)
		}
	}

	grouping := b.group(ctx, items)
	report.Categories = toCategoryGroups(grouping, items)

	linked := itemHighlights(items)
	var ok bool
	if b.overview != nil {
		overview, highlights, err := b.overview(ctx, items)
		if err != nil {
			b.logger.Warn().Err(err).Str("report_type", string(period.Type)).Msg("overview generation failed, using fallback")
		} else if overview != "" {
			report.Overview = overview
			report.Highlights = mergeHighlights(highlights, linked)
			ok = true
		}
	}
	if !ok {
		report.Overview = dailyFallbackOverview(len(items), grouping)
		report.Highlights = linked
	}

	report.Blocks = dailyBlocks(items, grouping, report.Highlights)
	return report, nil
}

// group asks the categorizer for a grouping and falls back to the first tag
// of each item when none is configured or it fails.
func (b *DailyBuilder) group(ctx context.Context, items []core.Item) categorization.Grouping {
	if b.categorizer != nil {
		grouping, err := b.categorizer.Categorize(ctx, items)
		if err == nil {
			return categorization.Normalize(grouping, len(items))
		}
		b.logger.Warn().Err(err).Msg("categorization failed, grouping by tag")
	}
	return groupByFirstTag(items)
}

func groupByFirstTag(items []core.Item) categorization.Grouping {
	var grouping categorization.Grouping
	pos := make(map[string]int)
	for i, item := range items {
		name := categorization.UncategorizedSubcategory
		if len(item.Tags) > 0 && strings.TrimSpace(item.Tags[0]) != "" {
			name = strings.TrimSpace(item.Tags[0])
		}
		p, ok := pos[name]
		if !ok {
			p = len(grouping)
			pos[name] = p
			grouping = append(grouping, categorization.Group{
				Name:      name,
				Subgroups: []categorization.Subgroup{{Name: categorization.GeneralSubcategory}},
			})
		}
		grouping[p].Subgroups[0].Indices = append(grouping[p].Subgroups[0].Indices, i)
	}
	return grouping
}

func toCategoryGroups(grouping categorization.Grouping, items []core.Item) []core.CategoryGroup {
	out := make([]core.CategoryGroup, 0, len(grouping))
	for _, g := range grouping {
		cg := core.CategoryGroup{Name: g.Name}
		for _, sub := range g.Subgroups {
			sg := core.Subgroup{Name: sub.Name}
			for _, idx := range sub.Indices {
				sg.ItemIDs = append(sg.ItemIDs, items[idx].ID)
			}
			cg.Subgroups = append(cg.Subgroups, sg)
		}
		out = append(out, cg)
	}
	return out
}

// itemHighlights links the first item titles to their pages.
func itemHighlights(items []core.Item) []core.Highlight {
	var out []core.Highlight
	for _, item := range items {
		if len(out) == maxLinkedHighlights {
			break
		}
		if title := strings.TrimSpace(item.Title); title != "" {
			out = append(out, core.Highlight{Text: core.Truncate(title, highlightTitleLen), Link: item.Link()})
		}
	}
	return out
}

// mergeHighlights pairs model highlight i with the link of item highlight i.
// Highlights beyond the linked ones stay unlinked.
func mergeHighlights(texts []string, linked []core.Highlight) []core.Highlight {
	out := make([]core.Highlight, 0, len(texts))
	for i, text := range texts {
		h := core.Highlight{Text: text}
		if i < len(linked) {
			h.Link = linked[i].Link
		}
		out = append(out, h)
	}
	return out
}

func dailyFallbackOverview(count int, grouping categorization.Grouping) string {
	names := make([]string, 0, overviewCategories)
	for _, g := range grouping {
		if len(names) == overviewCategories {
			break
		}
		names = append(names, g.Name)
	}
	return fmt.Sprintf("Collected %d items across %d categories: %s.", count, len(grouping), strings.Join(names, ", "))
}

func dailyBlocks(items []core.Item, grouping categorization.Grouping, highlights []core.Highlight) []core.Block {
	var blocks []core.Block

	blocks = append(blocks, core.NewBlock(core.BlockHeading2, fmt.Sprintf("📊 Stats (%d items)", len(items))))
	for _, g := range grouping {
		subs := make([]string, 0, len(g.Subgroups))
		for _, sub := range g.Subgroups {
			subs = append(subs, sub.Name)
		}
		blocks = append(blocks, core.NewBlock(core.BlockBullet,
			fmt.Sprintf("%s: %d (%s)", g.Name, groupSize(g), strings.Join(subs, ", "))))
	}
	blocks = append(blocks, core.Divider())

	if len(highlights) > 0 {
		blocks = append(blocks, core.NewBlock(core.BlockHeading2, "⭐ Highlights"))
		for _, h := range highlights {
			blocks = append(blocks, linkedBullet(h.Text, h.Link))
		}
		blocks = append(blocks, core.Divider())
	}

	for _, g := range grouping {
		blocks = append(blocks, core.NewBlock(core.BlockHeading2, fmt.Sprintf("📁 %s (%d)", g.Name, groupSize(g))))
		for _, sub := range g.Subgroups {
			if len(sub.Indices) == 0 {
				continue
			}
			blocks = append(blocks, core.NewBlock(core.BlockHeading3, fmt.Sprintf("▸ %s (%d)", sub.Name, len(sub.Indices))))
			for _, idx := range sub.Indices {
				item := items[idx]
				text := CleanSummary(item.Summary)
				if text == "" {
					text = core.Truncate(item.Title, highlightTitleLen)
				}
				blocks = append(blocks, linkedBullet("📌 "+text, item.Link()))
			}
		}
		blocks = append(blocks, core.Divider())
	}
	return blocks
}

func groupSize(g categorization.Group) int {
	n := 0
	for _, sub := range g.Subgroups {
		n += len(sub.Indices)
	}
	return n
}

func linkedBullet(text, link string) core.Block {
	b := core.NewBlock(core.BlockBullet, text)
	b.Link = link
	return b
}

// WeeklyBuilder turns a week's daily reports into a weekly report.
type WeeklyBuilder struct {
	overview ReportOverviewFunc
	now      func() time.Time
	logger   zerolog.Logger
}

// NewWeeklyBuilder creates a weekly builder. A nil overview selects the fallback text.
func NewWeeklyBuilder(overview ReportOverviewFunc) *WeeklyBuilder {
	return &WeeklyBuilder{overview: overview, now: time.Now, logger: zerolog.Nop()}
}

// WithLogger sets the logger used for degraded-mode warnings.
func (b *WeeklyBuilder) WithLogger(logger zerolog.Logger) *WeeklyBuilder {
	b.logger = logger
	return b
}

// Build summarizes daily reports into trends and a per-day outline.
func (b *WeeklyBuilder) Build(ctx context.Context, dailies []core.Report, period core.ReportPeriod) (*core.Report, error) {
	return buildRollup(ctx, rollup{
		period:   period,
		sources:  dailies,
		overview: b.overview,
		now:      b.now,
		logger:   b.logger,
		empty:    emptyWeeklyOverview,
		fallback: func(n int) string { return fmt.Sprintf("%d days recorded this week.", n) },
		heading:  func(n int) string { return fmt.Sprintf("📅 Week at a glance (%d days)", n) },
		callout: func(r core.Report) (string, string) {
			return r.Period.Start.Format(dateLayout) + ": " + r.Title, "📋"
		},
		listHeading: "📈 Trends",
		annotate: func(r core.Report, h *core.Highlight) {
			h.Date = r.Period.Start.Format(dateLayout)
		},
		render: func(h core.Highlight) string { return fmt.Sprintf("%s (%s)", h.Text, h.Date) },
	})
}

// MonthlyBuilder turns a month's weekly reports into a monthly report.
type MonthlyBuilder struct {
	overview ReportOverviewFunc
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMonthlyBuilder creates a monthly builder. A nil overview selects the fallback text.
func NewMonthlyBuilder(overview ReportOverviewFunc) *MonthlyBuilder {
	return &MonthlyBuilder{overview: overview, now: time.Now, logger: zerolog.Nop()}
}

// WithLogger sets the logger used for degraded-mode warnings.
func (b *MonthlyBuilder) WithLogger(logger zerolog.Logger) *MonthlyBuilder {
	b.logger = logger
	return b
}

// Build summarizes weekly reports into themes and a per-week outline.
func (b *MonthlyBuilder) Build(ctx context.Context, weeklies []core.Report, period core.ReportPeriod) (*core.Report, error) {
	return buildRollup(ctx, rollup{
		period:   period,
		sources:  weeklies,
		overview: b.overview,
		now:      b.now,
		logger:   b.logger,
		empty:    emptyMonthlyOverview,
		fallback: func(n int) string { return fmt.Sprintf("%d weeks recorded this month.", n) },
		heading:  func(n int) string { return fmt.Sprintf("📆 Month at a glance (%d weeks)", n) },
		callout: func(r core.Report) (string, string) {
			return r.Title, "📅"
		},
		listHeading: "🎯 Themes",
		annotate: func(r core.Report, h *core.Highlight) {
			h.Source = r.Title
		},
		render: func(h core.Highlight) string {
			if h.Link == "" {
				return h.Text
			}
			return fmt.Sprintf("%s (%s)", h.Text, h.Source)
		},
	})
}

// rollup describes how one level of reports is folded into the next.
type rollup struct {
	period      core.ReportPeriod
	sources     []core.Report
	overview    ReportOverviewFunc
	now         func() time.Time
	logger      zerolog.Logger
	empty       string
	fallback    func(n int) string
	heading     func(n int) string
	callout     func(r core.Report) (text, icon string)
	listHeading string
	annotate    func(r core.Report, h *core.Highlight)
	render      func(h core.Highlight) string
}

func buildRollup(ctx context.Context, r rollup) (*core.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &core.Report{Period: r.period, Title: r.period.Title(), CreatedAt: r.now()}
	if len(r.sources) == 0 {
		report.Overview = r.empty
		return report, nil
	}

	for _, src := range r.sources {
		if src.ID != "" {
			report.SourceIDs = append(report.SourceIDs, src.ID)
		}
	}

	// Lower-level highlights keep a link back to the report they came from.
	var linked []core.Highlight
	for _, src := range r.sources {
		for _, h := range src.Highlights {
			if len(linked) == maxTrends {
				break
			}
			lh := core.Highlight{Text: h.Text, Link: src.PageURL}
			r.annotate(src, &lh)
			linked = append(linked, lh)
		}
	}

	var ok bool
	if r.overview != nil {
		overview, list, err := r.overview(ctx, r.sources)
		if err != nil {
			r.logger.Warn().Err(err).Str("report_type", string(r.period.Type)).Msg("overview generation failed, using fallback")
		} else if overview != "" {
			report.Overview = overview
			if len(list) > 0 {
				for _, text := range list {
					report.Highlights = append(report.Highlights, core.Highlight{Text: text})
				}
			} else {
				report.Highlights = linked
			}
			ok = true
		}
	}
	if !ok {
		report.Overview = r.fallback(len(r.sources))
		report.Highlights = linked
	}

	var blocks []core.Block
	blocks = append(blocks, core.NewBlock(core.BlockHeading2, r.heading(len(r.sources))))
	for _, src := range r.sources {
		text, icon := r.callout(src)
		callout := core.NewBlock(core.BlockCallout, text)
		callout.Icon = icon
		callout.Link = src.PageURL
		callout.Bold = true
		blocks = append(blocks, callout)
		if summary := core.Truncate(src.Overview, calloutSummaryLen); summary != "" {
			blocks = append(blocks, core.NewBlock(core.BlockParagraph, "  "+summary))
		}
		blocks = append(blocks, core.NewBlock(core.BlockParagraph, ""))
	}
	blocks = append(blocks, core.Divider())

	if len(linked) > 0 {
		blocks = append(blocks, core.NewBlock(core.BlockHeading2, r.listHeading))
		for _, h := range linked {
			blocks = append(blocks, linkedBullet(r.render(h), h.Link))
		}
		blocks = append(blocks, core.Divider())
	}

	report.Blocks = blocks
	return report, nil
}
