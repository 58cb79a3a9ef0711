package summarize

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"regexp"
	"strings"
)

// HeuristicVersion is recorded as the prompt version of offline classifications.
const HeuristicVersion = "heuristic-v1"

// heuristicConfidence sits at the default review threshold, so offline
// classifications are accepted unless the threshold is raised.
const heuristicConfidence = 0.5

// keywordTags maps a tag to the lowercase keywords that imply it.
var keywordTags = []struct {
	Tag      string
	Keywords []string
}{
	{"AI", []string{"llm", "gpt", "machine learning", "neural", "model", "gemini", "claude", "openai", "agent"}},
	{"Programming", []string{"golang", "python", "rust", "javascript", "typescript", "compiler", "api", "library", "github"}},
	{"Security", []string{"vulnerability", "exploit", "cve", "security", "breach", "malware", "encryption"}},
	{"Infrastructure", []string{"kubernetes", "docker", "cloud", "aws", "database", "postgres", "latency"}},
	{"Research", []string{"paper", "arxiv", "study", "research", "benchmark", "experiment"}},
	{"Business", []string{"startup", "funding", "revenue", "acquisition", "market", "ipo"}},
	{"Productivity", []string{"workflow", "habit", "notes", "productivity", "focus"}},
}

var privateMarkers = []string{"password", "passport", "invoice", "bank account", "medical", "diagnosis", "social security", "confidential"}

var sentenceEnd = regexp.MustCompile(`([.!?。！？])\s+`)

// Heuristic classifies and summarizes without a model. It lets the pipeline
// run offline when no Gemini key is configured.
type Heuristic struct{}

// NewHeuristic returns the offline summarizer.
func NewHeuristic() Heuristic { return Heuristic{} }

// Classify tags text by keyword match.
func (Heuristic) Classify(_ context.Context, text string) (core.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return core.Classification{}, fmt.Errorf("no content to classify")
	}
	lower := strings.ToLower(text)

	var tags []string
	for _, kt := range keywordTags {
		for _, kw := range kt.Keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, kt.Tag)
				break
			}
		}
		if len(tags) == 3 {
			break
		}
	}

	sensitivity := core.SensitivityPublic
	for _, marker := range privateMarkers {
		if strings.Contains(lower, marker) {
			sensitivity = core.SensitivityPrivate
			break
		}
	}

	return core.Classification{
		Tags:          tags,
		Sensitivity:   sensitivity,
		Confidence:    heuristicConfidence,
		RuleVersion:   RuleVersion,
		PromptVersion: HeuristicVersion,
	}, nil
}

// Summarize uses the first sentence as TL;DR and the next two as insights.
func (Heuristic) Summarize(_ context.Context, text string) (core.Summary, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return core.Summary{}, fmt.Errorf("no content to summarize")
	}
	summary := core.Summary{TLDR: core.Truncate(sentences[0], 200)}
	for _, s := range sentences[1:] {
		summary.Insights = append(summary.Insights, "- "+core.Truncate(s, 160))
		if len(summary.Insights) == 2 {
			break
		}
	}
	return summary, nil
}

func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	marked := sentenceEnd.ReplaceAllString(text, "$1\n")
	var out []string
	for _, s := range strings.Split(marked, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
