package handlers

import (
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"strings"

	"github.com/spf13/cobra"
)

// NewAddCmd creates the add command
func NewAddCmd() *cobra.Command {
	var (
		title  string
		note   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Capture a link or note into the local inbox",
		Long:  `Capture an item into the SQL store so the next run picks it up. Items in Notion are captured through Notion itself.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item := core.Item{
				Title:      strings.TrimSpace(title),
				RawContent: strings.TrimSpace(note),
				Source:     core.Source(strings.ToLower(source)),
			}
			if len(args) == 1 {
				item.URL = strings.TrimSpace(args[0])
			}
			if item.URL == "" && item.RawContent == "" {
				return errors.New("either a url or --note is required")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.sql == nil {
				return fmt.Errorf("add needs the sql store backend, configured backend is %q", a.cfg.Store.Backend)
			}

			id, err := a.sql.SaveItem(ctx, item, item.RawContent != "")
			if err != nil {
				return err
			}
			a.logger.Info().Str("item_id", id).Str("url", item.URL).Msg("item captured")
			fmt.Printf("Captured %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&note, "note", "", "note text stored as the item body")
	cmd.Flags().StringVar(&source, "source", string(core.SourceManual), "capture source (manual or plugin)")

	return cmd
}
