package handlers

import (
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/tui"

	"github.com/spf13/cobra"
)

// NewReviewCmd creates the review command
func NewReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Approve or exclude items held for manual review",
		Long:  `Open a terminal screen listing items in pending review. Approving keeps the stored summary and marks the item ready; excluding removes it from digests.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			decisions, err := tui.Run(ctx, a.store)
			if err != nil {
				return err
			}

			summary := runSummary{Title: "Review"}
			counts := map[core.Status]int{}
			for _, d := range decisions {
				counts[d.Status]++
			}
			summary.Rows = []summaryRow{
				{"Approved", counts[core.StatusReady]},
				{"Excluded", counts[core.StatusExcluded]},
			}
			a.logger.Info().Int("decisions", len(decisions)).Msg("review complete")
			fmt.Println(summary.Render())
			return nil
		},
	}
}
