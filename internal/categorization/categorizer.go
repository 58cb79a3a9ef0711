package categorization

import (
	"context"
	"encoding/json"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/llm"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// LLMClient defines the interface for LLM operations needed by the categorizer
type LLMClient interface {
	GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error)
}

// Subgroup is a second-level category holding item indices.
type Subgroup struct {
	Name    string `json:"name"`
	Indices []int  `json:"items"`
}

// Group is a main category with its subcategories.
type Group struct {
	Name      string     `json:"name"`
	Subgroups []Subgroup `json:"subcategories"`
}

// Grouping is an ordered two-level assignment of item indices.
type Grouping []Group

// Categorizer assigns items to two-level categories using an LLM, or keyword
// rules when no client is configured.
type Categorizer struct {
	llmClient  LLMClient
	categories []Category
	logger     zerolog.Logger
}

// NewCategorizer creates a new item categorizer. A nil client selects the
// keyword rules.
func NewCategorizer(llmClient LLMClient, categories []Category, logger *zerolog.Logger) *Categorizer {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Categorizer{llmClient: llmClient, categories: categories, logger: l}
}

// Categorize groups items by index. The result is normalized: every index in
// range appears exactly once.
func (c *Categorizer) Categorize(ctx context.Context, items []core.Item) (Grouping, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if c.llmClient == nil {
		return Normalize(c.heuristicCategorize(items), len(items)), nil
	}

	text, err := c.llmClient.GenerateText(ctx, c.buildCategorizationPrompt(items), llm.TextGenerationOptions{
		Temperature:    0.2,
		ResponseSchema: groupingSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to categorize items: %w", err)
	}

	var resp struct {
		Categories Grouping `json:"categories"`
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse categorization response: %w", err)
	}
	c.logger.Debug().Int("items", len(items)).Int("categories", len(resp.Categories)).Msg("items categorized")
	return Normalize(resp.Categories, len(items)), nil
}

// buildCategorizationPrompt creates the LLM prompt for categorization
func (c *Categorizer) buildCategorizationPrompt(items []core.Item) string {
	var prompt strings.Builder

	prompt.WriteString("Group these saved items into main categories and subcategories.\n\n")
	prompt.WriteString("**Main categories:**\n")
	for _, cat := range c.sorted() {
		prompt.WriteString(fmt.Sprintf("- **%s**: %s", cat.Name, cat.Description))
		if len(cat.Subcategories) > 0 {
			prompt.WriteString(fmt.Sprintf(" (suggested subcategories: %s)", strings.Join(cat.Subcategories, ", ")))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n**Items:**\n")
	for i, item := range items {
		prompt.WriteString(fmt.Sprintf("[%d] %s", i, item.Title))
		if len(item.Tags) > 0 {
			prompt.WriteString(fmt.Sprintf(" (tags: %s)", strings.Join(item.Tags, ", ")))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n**Instructions:**\n")
	prompt.WriteString("1. Use the main categories above; add a new one only if nothing fits\n")
	prompt.WriteString("2. Subcategories are short topic names within the main category\n")
	prompt.WriteString("3. Reference items by their [index]; place every item exactly once\n")

	return prompt.String()
}

func groupingSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"categories": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": {Type: genai.TypeString},
						"subcategories": {
							Type: genai.TypeArray,
							Items: &genai.Schema{
								Type: genai.TypeObject,
								Properties: map[string]*genai.Schema{
									"name":  {Type: genai.TypeString},
									"items": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeInteger}},
								},
								Required: []string{"name", "items"},
							},
						},
					},
					Required: []string{"name", "subcategories"},
				},
			},
		},
		Required: []string{"categories"},
	}
}

// heuristicCategorize matches keywords against titles, tags and summaries.
// The subcategory is the first tag that names one of the category's
// subcategories, else the first tag, else "General".
func (c *Categorizer) heuristicCategorize(items []core.Item) Grouping {
	type key struct{ main, sub string }
	placed := make(map[key][]int)
	var order []key

	for i, item := range items {
		cat := c.matchCategory(item)
		if cat == nil {
			continue
		}
		k := key{cat.Name, subcategoryFor(*cat, item.Tags)}
		if _, ok := placed[k]; !ok {
			order = append(order, k)
		}
		placed[k] = append(placed[k], i)
	}

	var grouping Grouping
	for _, cat := range c.sorted() {
		g := Group{Name: cat.Name}
		for _, k := range order {
			if k.main == cat.Name {
				g.Subgroups = append(g.Subgroups, Subgroup{Name: k.sub, Indices: placed[k]})
			}
		}
		if len(g.Subgroups) > 0 {
			grouping = append(grouping, g)
		}
	}
	return grouping
}

func (c *Categorizer) matchCategory(item core.Item) *Category {
	text := strings.ToLower(item.Title + " " + strings.Join(item.Tags, " ") + " " + item.Summary)
	for _, cat := range c.sorted() {
		for _, tag := range item.Tags {
			for _, sub := range cat.Subcategories {
				if strings.EqualFold(tag, sub) {
					return &cat
				}
			}
		}
		for _, kw := range cat.Keywords {
			if containsWord(text, strings.ToLower(kw)) {
				return &cat
			}
		}
	}
	return nil
}

func subcategoryFor(cat Category, tags []string) string {
	for _, tag := range tags {
		for _, sub := range cat.Subcategories {
			if strings.EqualFold(tag, sub) {
				return sub
			}
		}
	}
	if len(tags) > 0 {
		return tags[0]
	}
	return GeneralSubcategory
}

// containsWord reports whether kw appears in text at word boundaries.
func containsWord(text, kw string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(kw)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func (c *Categorizer) sorted() []Category {
	cats := make([]Category, len(c.categories))
	copy(cats, c.categories)
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Priority < cats[j].Priority })
	return cats
}

// Normalize drops out-of-range and repeated indices, removes empty groups,
// merges groups that share a name, and places every unassigned index under
// Other / Uncategorized.
func Normalize(g Grouping, n int) Grouping {
	assigned := make([]bool, n)
	var out Grouping
	groupAt := make(map[string]int)

	for _, group := range g {
		name := strings.TrimSpace(group.Name)
		if name == "" {
			name = OtherCategory
		}
		for _, sub := range group.Subgroups {
			var indices []int
			for _, idx := range sub.Indices {
				if idx < 0 || idx >= n || assigned[idx] {
					continue
				}
				assigned[idx] = true
				indices = append(indices, idx)
			}
			if len(indices) == 0 {
				continue
			}
			subName := strings.TrimSpace(sub.Name)
			if subName == "" {
				subName = GeneralSubcategory
			}
			pos, ok := groupAt[name]
			if !ok {
				pos = len(out)
				groupAt[name] = pos
				out = append(out, Group{Name: name})
			}
			out[pos].Subgroups = appendSubgroup(out[pos].Subgroups, subName, indices)
		}
	}

	var unassigned []int
	for i, ok := range assigned {
		if !ok {
			unassigned = append(unassigned, i)
		}
	}
	if len(unassigned) > 0 {
		pos, ok := groupAt[OtherCategory]
		if !ok {
			pos = len(out)
			out = append(out, Group{Name: OtherCategory})
		}
		out[pos].Subgroups = appendSubgroup(out[pos].Subgroups, UncategorizedSubcategory, unassigned)
	}
	return out
}

func appendSubgroup(subs []Subgroup, name string, indices []int) []Subgroup {
	for i := range subs {
		if subs[i].Name == name {
			subs[i].Indices = append(subs[i].Indices, indices...)
			return subs
		}
	}
	return append(subs, Subgroup{Name: name, Indices: indices})
}
