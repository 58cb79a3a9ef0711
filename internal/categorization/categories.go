package categorization

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OtherCategory and UncategorizedSubcategory receive items the categorizer
// did not place. GeneralSubcategory holds items with no better subcategory.
const (
	OtherCategory            = "Other"
	UncategorizedSubcategory = "Uncategorized"
	GeneralSubcategory       = "General"
)

// Category represents a main digest category with metadata
type Category struct {
	Name          string   `yaml:"name"`
	Icon          string   `yaml:"icon"`
	Description   string   `yaml:"description"`
	Priority      int      `yaml:"priority"` // Lower number = higher priority in display
	Keywords      []string `yaml:"keywords"`
	Subcategories []string `yaml:"subcategories"`
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCategories returns the standard category set
func DefaultCategories() []Category {
	return []Category{
		{
			Name:          "Technology",
			Icon:          "💻",
			Description:   "Software, AI, infrastructure, developer tools and product releases",
			Priority:      1,
			Keywords:      []string{"ai", "llm", "software", "programming", "infrastructure", "security", "release", "open source"},
			Subcategories: []string{"AI", "Programming", "Infrastructure", "Security"},
		},
		{
			Name:          "Research",
			Icon:          "📊",
			Description:   "Academic papers, studies, benchmarks and research findings",
			Priority:      2,
			Keywords:      []string{"paper", "study", "research", "arxiv", "benchmark", "survey"},
			Subcategories: []string{"Papers", "Studies"},
		},
		{
			Name:          "Learning",
			Icon:          "🎓",
			Description:   "How-to guides, tutorials, courses and walkthroughs",
			Priority:      3,
			Keywords:      []string{"how to", "guide", "tutorial", "walkthrough", "getting started", "course"},
			Subcategories: []string{"Tutorials", "Guides"},
		},
		{
			Name:          "Business",
			Icon:          "📈",
			Description:   "Companies, markets, funding and strategy",
			Priority:      4,
			Keywords:      []string{"startup", "funding", "market", "revenue", "acquisition", "strategy"},
			Subcategories: []string{"Companies", "Markets"},
		},
		{
			Name:          "Life",
			Icon:          "🌱",
			Description:   "Productivity, health, culture and personal notes",
			Priority:      5,
			Keywords:      []string{"productivity", "habit", "health", "book", "travel", "note"},
			Subcategories: []string{"Productivity", "Culture", "Notes"},
		},
	}
}

// LoadCategories reads a YAML taxonomy file. An empty path returns the defaults.
func LoadCategories(path string) ([]Category, error) {
	if path == "" {
		return DefaultCategories(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse categories file %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("categories file %s defines no categories", path)
	}
	for i, c := range file.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d in %s has no name", i, path)
		}
	}
	return file.Categories, nil
}

// GetCategoryByName returns a category by its name, or nil if not found
func GetCategoryByName(name string, categories []Category) *Category {
	for _, cat := range categories {
		if cat.Name == name {
			return &cat
		}
	}
	return nil
}
