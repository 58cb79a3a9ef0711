package summarize

import (
	"fmt"
	"inboxdigest/internal/core"
	"strings"
	"unicode/utf8"

	"google.golang.org/genai"
)

const (
	// PromptVersion identifies the Gemini prompt set recorded on classified items.
	PromptVersion = "gemini-prompt-v1"

	// RuleVersion identifies the post-processing rules applied to model output.
	RuleVersion = "rule-v1"
)

// BuildClassificationPrompt asks for tags, a sensitivity label and a confidence score.
func BuildClassificationPrompt(content string) string {
	var prompt strings.Builder

	prompt.WriteString("Classify this saved item for a personal reading inbox.\n\n")
	prompt.WriteString(fmt.Sprintf("**Content:**\n%s\n\n", truncateContent(content, 6000)))

	prompt.WriteString("**Instructions:**\n")
	prompt.WriteString("1. tags: 1-5 short topic tags (e.g. \"AI\", \"Go\", \"Security\"), most specific first\n")
	prompt.WriteString("2. sensitivity: one of \"public\", \"internal\", \"private\"\n")
	prompt.WriteString("   - private: personal data, credentials, health, finance, private conversations\n")
	prompt.WriteString("   - internal: work material not meant for sharing\n")
	prompt.WriteString("   - public: everything published openly\n")
	prompt.WriteString("3. confidence: a number between 0 and 1 describing how sure you are of the tags\n")
	prompt.WriteString("   Use a low score when the content is a fragment, a login page, or ambiguous.\n")

	return prompt.String()
}

// BuildSummaryPrompt asks for a one-sentence TL;DR plus a few insights.
func BuildSummaryPrompt(content string) string {
	var prompt strings.Builder

	prompt.WriteString("Summarize this saved item with CONCRETE FACTS.\n\n")
	prompt.WriteString(fmt.Sprintf("**Content:**\n%s\n\n", truncateContent(content, 8000)))

	prompt.WriteString("**Instructions:**\n")
	prompt.WriteString("- tldr: one sentence, at most 40 words, stating what the item is and why it matters\n")
	prompt.WriteString("- insights: 2-4 short bullet points with specific details (numbers, names, versions)\n")
	prompt.WriteString("- Write in the language of the content\n")
	prompt.WriteString("- No meta-commentary like \"This article discusses\"\n")

	return prompt.String()
}

// BuildDailyOverviewPrompt lists the day's items by index.
func BuildDailyOverviewPrompt(items []core.Item) string {
	var prompt strings.Builder

	prompt.WriteString("You are writing the overview of a daily reading digest.\n\n")
	prompt.WriteString("**Items:**\n")
	for i, item := range items {
		prompt.WriteString(fmt.Sprintf("[%d] %s", i, item.Title))
		if len(item.Tags) > 0 {
			prompt.WriteString(fmt.Sprintf(" (tags: %s)", strings.Join(item.Tags, ", ")))
		}
		prompt.WriteString("\n")
		if item.Summary != "" {
			prompt.WriteString(fmt.Sprintf("    %s\n", truncateContent(item.Summary, 300)))
		}
	}

	prompt.WriteString("\n**Instructions:**\n")
	prompt.WriteString("- overview: 2-4 sentences connecting the main threads of the day\n")
	prompt.WriteString("- highlights: up to 5 short lines, highlight i describes item [i], in item order\n")

	return prompt.String()
}

// BuildReportOverviewPrompt lists lower-level reports for a weekly or monthly synthesis.
func BuildReportOverviewPrompt(level string, reports []core.Report, listKey string) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are writing the overview of a %s reading digest built from these reports.\n\n", level))
	for _, r := range reports {
		prompt.WriteString(fmt.Sprintf("### %s\n", r.Title))
		if r.Overview != "" {
			prompt.WriteString(truncateContent(r.Overview, 600))
			prompt.WriteString("\n")
		}
		for _, h := range r.Highlights {
			prompt.WriteString(fmt.Sprintf("- %s\n", h.Text))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("**Instructions:**\n")
	prompt.WriteString(fmt.Sprintf("- overview: 3-5 sentences on how interests developed over the %s\n", level))
	prompt.WriteString(fmt.Sprintf("- %s: up to 5 recurring topics, one short line each\n", listKey))

	return prompt.String()
}

// BuildBatchOverviewPrompt is used for ad-hoc digests over arbitrary windows.
func BuildBatchOverviewPrompt(items []core.Item) string {
	var prompt strings.Builder

	prompt.WriteString("Write a 100-150 word overview connecting these saved items.\n\n")
	for _, item := range items {
		prompt.WriteString(fmt.Sprintf("- %s", item.Title))
		if item.Summary != "" {
			prompt.WriteString(": " + truncateContent(item.Summary, 200))
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nReturn only the overview text.\n")

	return prompt.String()
}

func classificationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"tags": {
				Type:        genai.TypeArray,
				Description: "Topic tags, most specific first",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"sensitivity": {
				Type:        genai.TypeString,
				Description: "public, internal or private",
				Enum:        []string{"public", "internal", "private"},
			},
			"confidence": {
				Type:        genai.TypeNumber,
				Description: "Confidence between 0 and 1",
			},
		},
		Required: []string{"tags", "sensitivity", "confidence"},
	}
}

func summarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"tldr": {
				Type:        genai.TypeString,
				Description: "One sentence summary",
			},
			"insights": {
				Type:        genai.TypeArray,
				Description: "Short specific insights",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"tldr"},
	}
}

func overviewSchema(listKey string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"overview": {
				Type:        genai.TypeString,
				Description: "Narrative overview",
			},
			listKey: {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"overview", listKey},
	}
}

// truncateContent cuts content to maxChars runes, marking the cut.
func truncateContent(content string, maxChars int) string {
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	return core.Truncate(content, maxChars) + "..."
}
