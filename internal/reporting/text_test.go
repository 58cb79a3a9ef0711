package reporting

import (
	"strings"
	"testing"
)

func TestCleanSummary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"labels and numbered insights", "**TLDR:** Some text.\n**Insights:**\n1. Point one\n2. Point two", "Some text"},
		{"plain first line", "Go 1.24 ships generic aliases.\n- faster maps", "Go 1.24 ships generic aliases"},
		{"inline insights label", "TL;DR: Short take. Insights: more", "Short take"},
		{"inline numbered point", "Three changes 1. first 2. second", "Three changes"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanSummary(tt.in); got != tt.want {
				t.Errorf("CleanSummary(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanSummaryTruncates(t *testing.T) {
	got := CleanSummary(strings.Repeat("word ", 60))
	if n := len([]rune(got)); n != cleanSummaryLen {
		t.Errorf("Expected %d runes, got %d", cleanSummaryLen, n)
	}
}
