package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/llm"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// LLMClient defines the interface for LLM operations
type LLMClient interface {
	GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error)
}

// Options configures the Gemini-backed summarizer.
type Options struct {
	MaxTokens   int32
	Temperature float32
	MaxTags     int
	MaxInsights int
	Logger      *zerolog.Logger
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: 0.3,
		MaxTags:     5,
		MaxInsights: 4,
	}
}

// Summarizer classifies and summarizes item text with an LLM and generates
// report overviews.
type Summarizer struct {
	llmClient LLMClient
	options   Options
	logger    zerolog.Logger
}

// NewSummarizer creates a new summarizer with the given LLM client
func NewSummarizer(llmClient LLMClient, options Options) *Summarizer {
	defaults := DefaultOptions()
	if options.MaxTags <= 0 {
		options.MaxTags = defaults.MaxTags
	}
	if options.MaxInsights <= 0 {
		options.MaxInsights = defaults.MaxInsights
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = defaults.MaxTokens
	}
	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}
	return &Summarizer{llmClient: llmClient, options: options, logger: logger}
}

type classificationResponse struct {
	Tags        []string `json:"tags"`
	Sensitivity string   `json:"sensitivity"`
	Confidence  float64  `json:"confidence"`
}

// Classify assigns tags, sensitivity and a confidence score to text.
func (s *Summarizer) Classify(ctx context.Context, text string) (core.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return core.Classification{}, fmt.Errorf("no content to classify")
	}

	var resp classificationResponse
	if err := s.generateJSON(ctx, BuildClassificationPrompt(text), classificationSchema(), &resp); err != nil {
		return core.Classification{}, fmt.Errorf("failed to classify content: %w", err)
	}

	sensitivity, err := core.ParseSensitivity(resp.Sensitivity)
	if err != nil {
		s.logger.Warn().Str("sensitivity", resp.Sensitivity).Msg("unknown sensitivity from model, using internal")
		sensitivity = core.SensitivityInternal
	}

	return core.Classification{
		Tags:          normalizeTags(resp.Tags, s.options.MaxTags),
		Sensitivity:   sensitivity,
		Confidence:    clamp(resp.Confidence),
		RuleVersion:   RuleVersion,
		PromptVersion: PromptVersion,
	}, nil
}

type summaryResponse struct {
	TLDR     string   `json:"tldr"`
	Insights []string `json:"insights"`
}

// Summarize produces a TL;DR and a short list of insights for text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (core.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return core.Summary{}, fmt.Errorf("no content to summarize")
	}

	var resp summaryResponse
	if err := s.generateJSON(ctx, BuildSummaryPrompt(text), summarySchema(), &resp); err != nil {
		return core.Summary{}, fmt.Errorf("failed to summarize content: %w", err)
	}
	if strings.TrimSpace(resp.TLDR) == "" {
		return core.Summary{}, fmt.Errorf("model returned an empty summary")
	}

	summary := core.Summary{TLDR: strings.TrimSpace(resp.TLDR)}
	for _, insight := range resp.Insights {
		if insight = cleanListItem(insight); insight != "" {
			summary.Insights = append(summary.Insights, "- "+insight)
		}
		if len(summary.Insights) == s.options.MaxInsights {
			break
		}
	}
	return summary, nil
}

func (s *Summarizer) generateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any) error {
	opts := llm.TextGenerationOptions{
		MaxTokens:      s.options.MaxTokens,
		Temperature:    s.options.Temperature,
		ResponseSchema: schema,
	}

	text, err := s.llmClient.GenerateText(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(text)), out); err != nil {
		return fmt.Errorf("failed to parse model response: %w", err)
	}
	return nil
}

func normalizeTags(tags []string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == max {
			break
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
