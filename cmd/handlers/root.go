/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"inboxdigest/internal/config"
	"inboxdigest/internal/core"
	"inboxdigest/internal/logger"
	"inboxdigest/internal/pipeline"
	"inboxdigest/internal/reporting"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	var (
		digestWindow   string
		preprocessOnly bool
	)

	rootCmd := &cobra.Command{
		Use:   "inboxdigest",
		Short: "Inboxdigest triages captured links and notes into daily, weekly and monthly digests.",
		Long: `Inboxdigest processes items waiting in the capture inbox. It first routes
new items, backfills titles and content types, and marks notes ready. The links
still pending are then deduplicated, fetched and summarized, and each one is
gated into ready or pending review by classifier confidence.

With --preprocess only the first step runs. With --digest it writes a digest
after the run: daily, weekly and monthly build the report for the current
period, any other window label builds an ad-hoc digest over every ready item.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInbox(cmd.Context(), preprocessOnly, digestWindow)
		},
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.inboxdigest.yaml or $HOME/.inboxdigest.yaml)")
	rootCmd.Flags().StringVar(&digestWindow, "digest", "", "write a digest after processing (daily, weekly, monthly or an ad-hoc window label such as 3d)")
	rootCmd.Flags().BoolVar(&preprocessOnly, "preprocess", false, "only route and backfill new items, skipping the ingest pipeline")

	rootCmd.AddCommand(NewReportCmd())
	rootCmd.AddCommand(NewReviewCmd())
	rootCmd.AddCommand(NewAddCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Configure(cfg.App.LogLevel, cfg.App.LogFormat)
}

func runInbox(ctx context.Context, preprocessOnly bool, digestWindow string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summarizer, reportOpts, err := a.models(ctx)
	if err != nil {
		return err
	}

	summary, err := a.run(ctx, summarizer, reportOpts, preprocessOnly, digestWindow)
	if err != nil {
		return err
	}
	fmt.Println(summary.Render())
	return nil
}

// run preprocesses every pending item and, unless preprocessOnly is set,
// sends the items still pending afterwards through the ingest pipeline.
func (a *app) run(ctx context.Context, summarizer pipeline.Summarizer, opts reporting.Options, preprocessOnly bool, digestWindow string) (runSummary, error) {
	items, err := a.store.QueryPending(ctx)
	if err != nil {
		return runSummary{}, fmt.Errorf("failed to query pending items: %w", err)
	}
	a.logger.Info().Int("items", len(items)).Bool("preprocess_only", preprocessOnly).Msg("starting run")

	pre := a.preprocessor().PreprocessBatch(ctx, items)
	summary := runSummary{
		Title: "Preprocess",
		Rows: []summaryRow{
			{"Backfilled", pre.Backfilled},
			{"Ready", pre.Ready},
			{"Skipped", pre.Skip},
			{"Unprocessed", pre.Unprocessed},
			{"Errors", pre.Error},
		},
	}

	if !preprocessOnly {
		// Notes marked ready by the preprocessor are no longer pending.
		items, err = a.store.QueryPending(ctx)
		if err != nil {
			return runSummary{}, fmt.Errorf("failed to query pending items: %w", err)
		}
		c := a.pipeline(summarizer).ProcessBatch(ctx, items)
		summary = runSummary{
			Title: "Inbox",
			Rows: []summaryRow{
				{"Notes ready", pre.Ready},
				{"Processed", c.Success},
				{"Duplicates", c.Duplicate},
				{"Unprocessed", pre.Unprocessed + c.Unprocessed},
				{"Errors", pre.Error + c.Error},
			},
		}
	}

	if digestWindow != "" {
		id, err := writeDigest(ctx, a, opts, digestWindow)
		if err != nil {
			return runSummary{}, err
		}
		summary.Footer = digestFooter(digestWindow, id)
	}
	return summary, nil
}

// writeDigest routes the daily, weekly and monthly windows to the report
// service and every other label to an ad-hoc digest page.
func writeDigest(ctx context.Context, a *app, opts reporting.Options, window string) (string, error) {
	service := a.reporting(opts)
	reportType, err := core.ParseReportType(window)
	if err != nil {
		return service.GenerateAdHoc(ctx, window)
	}
	id, _, err := service.Generate(ctx, reportType, time.Now().In(a.loc), false)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s report: %w", strings.ToLower(string(reportType)), err)
	}
	return id, nil
}

func digestFooter(window, id string) string {
	if id == "" {
		return fmt.Sprintf("Digest (%s): no page created", window)
	}
	return fmt.Sprintf("Digest (%s): %s", window, id)
}
