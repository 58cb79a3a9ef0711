package reporting

import (
	"inboxdigest/internal/core"
	"regexp"
	"strings"
)

const cleanSummaryLen = 100

var (
	tldrLabel    = regexp.MustCompile(`(?i)^\s*tl;?dr\s*[:：]?\s*`)
	summaryBreak = regexp.MustCompile(`(?i)\n|\binsights?\b\s*[:：]?|(?:^|\s)\d+\.(?:\s|$)`)
)

// CleanSummary reduces a stored item summary to its first statement for a
// digest bullet: markdown bold and the TL;DR label are removed, and the text
// is cut at the first line break, "Insights" label or numbered point.
func CleanSummary(summary string) string {
	s := strings.ReplaceAll(summary, "**", "")
	s = tldrLabel.ReplaceAllString(strings.TrimSpace(s), "")
	if loc := summaryBreak.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.Trim(s, ".:;,\n ")
	return core.Truncate(s, cleanSummaryLen)
}
