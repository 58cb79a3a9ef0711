package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-flash-lite-latest"

	// DefaultMaxTokens bounds a single response.
	DefaultMaxTokens = int32(1024)
)

// Client represents a client for interacting with Gemini.
type Client struct {
	modelName string
	timeout   time.Duration
	gClient   *genai.Client
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	ResponseSchema *genai.Schema // Optional: schema for JSON output
}

// NewClient creates a new Gemini client. The API key comes from configuration;
// an empty key is an error so callers can fall back to offline heuristics.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key in the config file")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{modelName: modelName, gClient: gClient}, nil
}

// ModelName returns the default model of the client.
func (c *Client) ModelName() string {
	return c.modelName
}

// WithTimeout bounds each generation request. Zero leaves requests bounded
// only by the caller's context.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// GenerateText sends a single-turn prompt and returns the response text.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, buildConfig(options))
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from LLM")
	}
	if options.ResponseSchema != nil {
		text = CleanJSON(text)
	}
	return text, nil
}

func buildConfig(options TextGenerationOptions) *genai.GenerateContentConfig {
	if options.MaxTokens <= 0 && options.Temperature <= 0 && options.ResponseSchema == nil {
		return nil
	}
	config := &genai.GenerateContentConfig{}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = options.MaxTokens
	}
	if options.Temperature > 0 {
		temp := options.Temperature
		config.Temperature = &temp
	}
	if options.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = options.ResponseSchema
	}
	return config
}

// CleanJSON strips markdown code fences that models sometimes wrap around
// JSON output.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
