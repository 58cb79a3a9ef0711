package summarize

import (
	"context"
	"inboxdigest/internal/core"
	"testing"
)

func TestHeuristicClassify(t *testing.T) {
	h := NewHeuristic()

	c, err := h.Classify(context.Background(), "A new LLM benchmark paper on arXiv compares agent frameworks.")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(c.Tags) != 2 || c.Tags[0] != "AI" || c.Tags[1] != "Research" {
		t.Errorf("Expected [AI Research], got %v", c.Tags)
	}
	if c.Confidence != 0.5 {
		t.Errorf("Expected confidence 0.5, got %v", c.Confidence)
	}
	if c.Sensitivity != core.SensitivityPublic {
		t.Errorf("Expected public, got %s", c.Sensitivity)
	}
	if c.PromptVersion != HeuristicVersion {
		t.Errorf("Expected heuristic prompt version, got %q", c.PromptVersion)
	}

	c, _ = h.Classify(context.Background(), "Scan of my passport and bank account details")
	if c.Sensitivity != core.SensitivityPrivate {
		t.Errorf("Expected private, got %s", c.Sensitivity)
	}

	if _, err := h.Classify(context.Background(), " "); err == nil {
		t.Error("Expected error for empty text")
	}
}

func TestHeuristicSummarize(t *testing.T) {
	s, err := NewHeuristic().Summarize(context.Background(), "Go 1.24 is out.  It adds type aliases!\nMaps are faster. Tooling improved.")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.TLDR != "Go 1.24 is out." {
		t.Errorf("Unexpected TL;DR %q", s.TLDR)
	}
	if len(s.Insights) != 2 || s.Insights[0] != "- It adds type aliases!" || s.Insights[1] != "- Maps are faster." {
		t.Errorf("Unexpected insights %v", s.Insights)
	}

	if _, err := NewHeuristic().Summarize(context.Background(), "\n\n"); err == nil {
		t.Error("Expected error for empty text")
	}
}
