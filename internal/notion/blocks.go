package notion

import (
	"inboxdigest/internal/core"
	"strings"

	"github.com/jomei/notionapi"
)

func richText(text string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: core.Truncate(text, maxRichText)},
	}}
}

func styledText(b core.Block) []notionapi.RichText {
	rt := richText(b.Text)
	if b.Link != "" {
		rt[0].Text.Link = &notionapi.Link{Url: b.Link}
	}
	if b.Bold {
		rt[0].Annotations = &notionapi.Annotations{Bold: true, Color: notionapi.ColorDefault}
	}
	return rt
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			sb.WriteString(r.PlainText)
		} else if r.Text != nil {
			sb.WriteString(r.Text.Content)
		}
	}
	return sb.String()
}

func toNotionBlocks(blocks []core.Block) []notionapi.Block {
	out := make([]notionapi.Block, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, toNotionBlock(b))
	}
	return out
}

func toNotionBlock(b core.Block) notionapi.Block {
	basic := func(t notionapi.BlockType) notionapi.BasicBlock {
		return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
	}
	switch b.Kind {
	case core.BlockHeading2:
		return &notionapi.Heading2Block{
			BasicBlock: basic(notionapi.BlockTypeHeading2),
			Heading2:   notionapi.Heading{RichText: styledText(b)},
		}
	case core.BlockHeading3:
		return &notionapi.Heading3Block{
			BasicBlock: basic(notionapi.BlockTypeHeading3),
			Heading3:   notionapi.Heading{RichText: styledText(b)},
		}
	case core.BlockBullet:
		return &notionapi.BulletedListItemBlock{
			BasicBlock:       basic(notionapi.BlockTypeBulletedListItem),
			BulletedListItem: notionapi.ListItem{RichText: styledText(b)},
		}
	case core.BlockDivider:
		return &notionapi.DividerBlock{
			BasicBlock: basic(notionapi.BlockTypeDivider),
			Divider:    notionapi.Divider{},
		}
	case core.BlockCallout:
		callout := notionapi.Callout{RichText: styledText(b)}
		if b.Icon != "" {
			emoji := notionapi.Emoji(b.Icon)
			callout.Icon = &notionapi.Icon{Type: "emoji", Emoji: &emoji}
		}
		return &notionapi.CalloutBlock{
			BasicBlock: basic(notionapi.BlockTypeCallout),
			Callout:    callout,
		}
	default:
		return &notionapi.ParagraphBlock{
			BasicBlock: basic(notionapi.BlockTypeParagraph),
			Paragraph:  notionapi.Paragraph{RichText: styledText(b)},
		}
	}
}

// Property constructors and readers. Reads tolerate missing properties and
// return zero values.

func titleProp(text string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Title: richText(text)}
}

func textProp(text string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{RichText: richText(text)}
}

func selectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: optionName(name)}}
}

func multiSelectProp(names []string) notionapi.MultiSelectProperty {
	options := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		if n = optionName(n); n != "" {
			options = append(options, notionapi.Option{Name: n})
		}
	}
	return notionapi.MultiSelectProperty{MultiSelect: options}
}

func relationProp(ids []string) notionapi.RelationProperty {
	rel := make([]notionapi.Relation, 0, len(ids))
	for _, id := range ids {
		rel = append(rel, notionapi.Relation{ID: notionapi.PageID(id)})
	}
	return notionapi.RelationProperty{Relation: rel}
}

// optionName makes a select option name acceptable to Notion, which rejects
// commas and limits names to 100 characters.
func optionName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, ",", " "))
	return core.Truncate(name, 100)
}

func readTitle(props notionapi.Properties, name string) string {
	if p, ok := props[name].(*notionapi.TitleProperty); ok {
		return plainText(p.Title)
	}
	return ""
}

func readText(props notionapi.Properties, name string) string {
	if p, ok := props[name].(*notionapi.RichTextProperty); ok {
		return plainText(p.RichText)
	}
	return ""
}

func readURL(props notionapi.Properties, name string) string {
	if p, ok := props[name].(*notionapi.URLProperty); ok {
		return p.URL
	}
	return ""
}

func readSelect(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	}
	return ""
}

func readMultiSelect(props notionapi.Properties, name string) []string {
	p, ok := props[name].(*notionapi.MultiSelectProperty)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(p.MultiSelect))
	for _, o := range p.MultiSelect {
		names = append(names, o.Name)
	}
	return names
}

func readNumber(props notionapi.Properties, name string) (float64, bool) {
	if p, ok := props[name].(*notionapi.NumberProperty); ok {
		return p.Number, true
	}
	return 0, false
}

func readFiles(props notionapi.Properties, name string) []string {
	p, ok := props[name].(*notionapi.FilesProperty)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		names = append(names, f.Name)
	}
	return names
}

func readRelation(props notionapi.Properties, name string) string {
	if p, ok := props[name].(*notionapi.RelationProperty); ok && len(p.Relation) > 0 {
		return string(p.Relation[0].ID)
	}
	return ""
}
