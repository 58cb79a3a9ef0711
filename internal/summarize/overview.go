package summarize

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/llm"
	"regexp"
	"sort"
	"strings"
)

const (
	maxHighlights      = 5
	maxHighlightLen    = 30
	maxFallbackLen     = 200
	emptyBatchOverview = "Nothing new in this batch."
)

type overviewResponse struct {
	Overview   string   `json:"overview"`
	Highlights []string `json:"highlights"`
	Trends     []string `json:"trends"`
	Themes     []string `json:"dominant_themes"`
}

// DailyOverview writes a day's overview and one highlight per leading item.
func (s *Summarizer) DailyOverview(ctx context.Context, items []core.Item) (string, []string, error) {
	if len(items) == 0 {
		return "", nil, nil
	}
	var resp overviewResponse
	if err := s.generateJSON(ctx, BuildDailyOverviewPrompt(items), overviewSchema("highlights"), &resp); err != nil {
		return "", nil, fmt.Errorf("failed to generate daily overview: %w", err)
	}
	return strings.TrimSpace(resp.Overview), cleanList(resp.Highlights), nil
}

// WeeklyOverview synthesizes daily reports into an overview and trends.
func (s *Summarizer) WeeklyOverview(ctx context.Context, dailies []core.Report) (string, []string, error) {
	if len(dailies) == 0 {
		return "", nil, nil
	}
	var resp overviewResponse
	if err := s.generateJSON(ctx, BuildReportOverviewPrompt("week", dailies, "trends"), overviewSchema("trends"), &resp); err != nil {
		return "", nil, fmt.Errorf("failed to generate weekly overview: %w", err)
	}
	return strings.TrimSpace(resp.Overview), cleanList(resp.Trends), nil
}

// MonthlyOverview synthesizes weekly reports into an overview and dominant themes.
func (s *Summarizer) MonthlyOverview(ctx context.Context, weeklies []core.Report) (string, []string, error) {
	if len(weeklies) == 0 {
		return "", nil, nil
	}
	var resp overviewResponse
	if err := s.generateJSON(ctx, BuildReportOverviewPrompt("month", weeklies, "dominant_themes"), overviewSchema("dominant_themes"), &resp); err != nil {
		return "", nil, fmt.Errorf("failed to generate monthly overview: %w", err)
	}
	return strings.TrimSpace(resp.Overview), cleanList(resp.Themes), nil
}

// BatchOverview writes a free-form overview for an ad-hoc digest, falling
// back to FallbackOverview when the model fails.
func (s *Summarizer) BatchOverview(ctx context.Context, items []core.Item) string {
	if len(items) == 0 {
		return emptyBatchOverview
	}
	text, err := s.llmClient.GenerateText(ctx, BuildBatchOverviewPrompt(items), llm.TextGenerationOptions{
		MaxTokens:   s.options.MaxTokens,
		Temperature: s.options.Temperature,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn().Err(err).Msg("batch overview generation failed, using fallback")
		return FallbackOverview(items)
	}
	return strings.TrimSpace(text)
}

// FallbackOverview summarizes a batch without a model: item count, the most
// common tags and the first titles, capped at 200 characters.
func FallbackOverview(items []core.Item) string {
	if len(items) == 0 {
		return emptyBatchOverview
	}

	counts := make(map[string]int)
	var order []string
	for _, item := range items {
		for _, tag := range item.Tags {
			if counts[tag] == 0 {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > 3 {
		order = order[:3]
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d items", len(items)))
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, tag := range order {
			parts[i] = fmt.Sprintf("%s (%d)", tag, counts[tag])
		}
		b.WriteString(", mainly " + strings.Join(parts, ", "))
	}
	b.WriteString(".")

	var titles []string
	for _, item := range items {
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, core.Truncate(t, 40))
		}
		if len(titles) == 2 {
			break
		}
	}
	if len(titles) > 0 {
		b.WriteString(" Key items include: " + strings.Join(titles, "; ") + ".")
	}
	return core.Truncate(b.String(), maxFallbackLen)
}

var (
	listMarker  = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.、)])\s*`)
	labelPrefix = regexp.MustCompile(`(?i)^(?:insights?|highlights?|tl;?dr|要点|洞察)\s*[:：]\s*`)
)

// ParseHighlights splits bullet or numbered insight text into at most five
// short highlights, dropping labels and blank lines.
func ParseHighlights(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = cleanListItem(line)
		if line == "" {
			continue
		}
		out = append(out, core.Truncate(line, maxHighlightLen))
		if len(out) == maxHighlights {
			break
		}
	}
	return out
}

func cleanListItem(s string) string {
	s = strings.TrimSpace(s)
	s = labelPrefix.ReplaceAllString(s, "")
	s = listMarker.ReplaceAllString(s, "")
	s = labelPrefix.ReplaceAllString(s, "")
	s = strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
	return s
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = cleanListItem(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxHighlights {
			break
		}
	}
	return out
}
