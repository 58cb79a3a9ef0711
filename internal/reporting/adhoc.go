package reporting

import (
	"context"
	"fmt"
	"inboxdigest/internal/categorization"
	"inboxdigest/internal/core"
	"inboxdigest/internal/summarize"
	"strings"
)

const entryFallbackLen = 30

// BatchOverviewFunc writes a free-form overview for an ad-hoc digest.
type BatchOverviewFunc func(ctx context.Context, items []core.Item) string

// DigestEntry is one item inside a tag group of an ad-hoc digest.
type DigestEntry struct {
	Title      string
	URL        string
	Highlights []string
}

// TagGroup lists the entries carrying one tag.
type TagGroup struct {
	Tag     string
	Entries []DigestEntry
}

// AdHocDigest is a manually triggered digest over every ready item.
type AdHocDigest struct {
	Overview  string
	Groups    []TagGroup
	Citations []string
}

// BuildAdHocDigest groups items by tag. An item with several tags appears in
// each of their groups; untagged items fall under "Uncategorized". Citations
// list each item ID once, in first-seen order.
func BuildAdHocDigest(ctx context.Context, items []core.Item, overview BatchOverviewFunc) AdHocDigest {
	var d AdHocDigest
	if overview != nil {
		d.Overview = overview(ctx, items)
	} else {
		d.Overview = summarize.FallbackOverview(items)
	}
	if len(items) == 0 {
		return d
	}

	pos := make(map[string]int)
	seen := make(map[string]bool)
	for _, item := range items {
		tags := item.Tags
		if len(tags) == 0 {
			tags = []string{categorization.UncategorizedSubcategory}
		}
		entry := digestEntry(item)
		for _, tag := range tags {
			p, ok := pos[tag]
			if !ok {
				p = len(d.Groups)
				pos[tag] = p
				d.Groups = append(d.Groups, TagGroup{Tag: tag})
			}
			d.Groups[p].Entries = append(d.Groups[p].Entries, entry)
		}
		if item.ID != "" && !seen[item.ID] {
			seen[item.ID] = true
			d.Citations = append(d.Citations, item.ID)
		}
	}
	return d
}

func digestEntry(item core.Item) DigestEntry {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Untitled"
	}
	highlights := summarize.ParseHighlights(item.Summary)
	if len(highlights) == 0 && item.Summary != "" {
		highlights = []string{core.Truncate(item.Summary, entryFallbackLen)}
	}
	return DigestEntry{Title: title, URL: item.URL, Highlights: highlights}
}

// Blocks renders the digest body.
func (d AdHocDigest) Blocks() []core.Block {
	blocks := []core.Block{
		core.NewBlock(core.BlockHeading2, "📰 Overview"),
		core.NewBlock(core.BlockParagraph, d.Overview),
		core.Divider(),
	}
	for _, g := range d.Groups {
		blocks = append(blocks, core.NewBlock(core.BlockHeading2, fmt.Sprintf("🏷️ %s (%d)", g.Tag, len(g.Entries))))
		for _, e := range g.Entries {
			blocks = append(blocks, linkedBullet(e.Title, e.URL))
			for _, h := range e.Highlights {
				blocks = append(blocks, core.NewBlock(core.BlockParagraph, "    ↳ "+h))
			}
		}
		blocks = append(blocks, core.Divider())
	}
	if len(d.Citations) > 0 {
		blocks = append(blocks, core.NewBlock(core.BlockParagraph, fmt.Sprintf("Sources: %d items", len(d.Citations))))
	}
	return blocks
}
