package handlers

import (
	"fmt"
	"inboxdigest/internal/core"
	"time"

	"github.com/spf13/cobra"
)

const dateFlagLayout = "2006-01-02"

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	var (
		date  string
		force bool
	)

	cmd := &cobra.Command{
		Use:       "report daily|weekly|monthly",
		Short:     "Generate the daily, weekly or monthly report for a date",
		Long:      `Generate a report for the period containing --date (default today). An existing report for the period is reused unless --force is given, in which case an additional report is written.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"daily", "weekly", "monthly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			reportType, err := core.ParseReportType(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			target, err := parseTargetDate(date, time.Now(), a.loc)
			if err != nil {
				return err
			}

			_, opts, err := a.models(ctx)
			if err != nil {
				return err
			}
			id, created, err := a.reporting(opts).Generate(ctx, reportType, target, force)
			if err != nil {
				if id != "" {
					return fmt.Errorf("failed to generate %s report, incomplete page %s left behind (rerun with --force): %w", args[0], id, err)
				}
				return fmt.Errorf("failed to generate %s report: %w", args[0], err)
			}
			switch {
			case id == "":
				fmt.Printf("No items for the %s period of %s, nothing written.\n", args[0], target.Format(dateFlagLayout))
			case created:
				fmt.Printf("Created %s report %s\n", args[0], id)
			default:
				fmt.Printf("%s report already exists: %s\n", reportType, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "target date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&force, "force", false, "write a new report even if one exists for the period")

	return cmd
}

// parseTargetDate reads a YYYY-MM-DD flag in loc, defaulting to now.
func parseTargetDate(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return now.In(loc), nil
	}
	t, err := time.ParseInLocation(dateFlagLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}
