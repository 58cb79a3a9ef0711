package reporting

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxStoredHighlights  = 10
	maxHighlightChars    = 100
	maxOverviewChars     = 2000
	expectedDailies      = 7
	expectedWeeklies     = 4
	adHocTitleTimeLayout = "2006-01-02 15:04"
)

// Options configures a Service. Every field is optional.
type Options struct {
	Categorizer     Categorizer
	DailyOverview   DailyOverviewFunc
	WeeklyOverview  ReportOverviewFunc
	MonthlyOverview ReportOverviewFunc
	BatchOverview   BatchOverviewFunc
	IncludePrivate  bool
	Location        *time.Location
	Logger          *zerolog.Logger
}

// Service generates digest reports at each level and persists them.
// Generation is idempotent per (type, start date) unless forced.
type Service struct {
	items          persistence.ItemStore
	reports        persistence.ReportStore
	daily          *DailyBuilder
	weekly         *WeeklyBuilder
	monthly        *MonthlyBuilder
	batchOverview  BatchOverviewFunc
	includePrivate bool
	loc            *time.Location
	now            func() time.Time
	logger         zerolog.Logger
}

// NewService wires the builders to the item and report stores.
func NewService(items persistence.ItemStore, reports persistence.ReportStore, opts Options) *Service {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		items:          items,
		reports:        reports,
		daily:          NewDailyBuilder(opts.Categorizer, opts.DailyOverview).WithLogger(logger),
		weekly:         NewWeeklyBuilder(opts.WeeklyOverview).WithLogger(logger),
		monthly:        NewMonthlyBuilder(opts.MonthlyOverview).WithLogger(logger),
		batchOverview:  opts.BatchOverview,
		includePrivate: opts.IncludePrivate,
		loc:            loc,
		now:            time.Now,
		logger:         logger,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.daily.now = now
	s.weekly.now = now
	s.monthly.now = now
	return s
}

// Generate dispatches to the generator for reportType.
func (s *Service) Generate(ctx context.Context, reportType core.ReportType, target time.Time, force bool) (string, bool, error) {
	switch reportType {
	case core.ReportDaily:
		return s.GenerateDaily(ctx, target, force)
	case core.ReportWeekly:
		return s.GenerateWeekly(ctx, target, force)
	case core.ReportMonthly:
		return s.GenerateMonthly(ctx, target, force)
	}
	return "", false, fmt.Errorf("unknown report type %q", reportType)
}

// GenerateDaily builds the daily report for target's date from ready items.
// It returns the report ID and whether a new report was created. An empty ID
// means there was nothing to report.
func (s *Service) GenerateDaily(ctx context.Context, target time.Time, force bool) (string, bool, error) {
	period := DailyRange(target)
	log := s.runLogger(period)

	if id, done, err := s.existing(ctx, log, period, force); done || err != nil {
		return id, false, err
	}

	items, err := s.items.QueryReadyForDigest(ctx, persistence.DateRange{Start: period.Start, End: period.End}, s.includePrivate)
	if err != nil {
		return "", false, fmt.Errorf("failed to query items for %s: %w", FormatDateRange(period.Start, period.End), err)
	}
	log.Info().Int("items", len(items)).Msg("items found for daily digest")
	if len(items) == 0 {
		log.Warn().Msg("no items for daily digest, skipping")
		return "", false, nil
	}

	report, err := s.daily.Build(ctx, items, period)
	if err != nil {
		return "", false, err
	}
	return s.persist(ctx, log, report, report.SourceIDs, nil)
}

// GenerateWeekly builds the weekly report for the ISO week containing target
// from that week's daily reports.
func (s *Service) GenerateWeekly(ctx context.Context, target time.Time, force bool) (string, bool, error) {
	period := WeeklyRange(target)
	log := s.runLogger(period)

	if id, done, err := s.existing(ctx, log, period, force); done || err != nil {
		return id, false, err
	}

	dailies, err := s.reports.QueryReportsInRange(ctx, core.ReportDaily, period.Start, period.End)
	if err != nil {
		return "", false, fmt.Errorf("failed to query daily reports for %s: %w", FormatDateRange(period.Start, period.End), err)
	}
	if len(dailies) == 0 {
		log.Warn().Msg("no daily reports for weekly digest, skipping")
		return "", false, nil
	}
	if missing := expectedDailies - len(dailies); missing > 0 {
		log.Warn().Int("missing", missing).Msg("weekly digest built from a partial week")
	}

	report, err := s.weekly.Build(ctx, dailies, period)
	if err != nil {
		return "", false, err
	}
	return s.persist(ctx, log, report, nil, report.SourceIDs)
}

// GenerateMonthly builds the monthly report for target's month from the
// weekly reports starting inside it.
func (s *Service) GenerateMonthly(ctx context.Context, target time.Time, force bool) (string, bool, error) {
	period := MonthlyRange(target)
	log := s.runLogger(period)

	if id, done, err := s.existing(ctx, log, period, force); done || err != nil {
		return id, false, err
	}

	weeklies, err := s.reports.QueryReportsInRange(ctx, core.ReportWeekly, period.Start, period.End)
	if err != nil {
		return "", false, fmt.Errorf("failed to query weekly reports for %s: %w", period.Start.Format("2006-01"), err)
	}
	if len(weeklies) == 0 {
		log.Warn().Msg("no weekly reports for monthly digest, skipping")
		return "", false, nil
	}
	if len(weeklies) < expectedWeeklies {
		log.Warn().Int("weeklies", len(weeklies)).Msg("monthly digest built from a partial month")
	}

	report, err := s.monthly.Build(ctx, weeklies, period)
	if err != nil {
		return "", false, err
	}
	return s.persist(ctx, log, report, nil, report.SourceIDs)
}

func (s *Service) runLogger(period core.ReportPeriod) zerolog.Logger {
	return s.logger.With().
		Str("run_id", uuid.NewString()).
		Str("report_type", string(period.Type)).
		Str("period", FormatDateRange(period.Start, period.End)).
		Logger()
}

// existing looks up a report for the period. done is true when that report
// should be returned as is.
func (s *Service) existing(ctx context.Context, log zerolog.Logger, period core.ReportPeriod, force bool) (string, bool, error) {
	found, err := s.reports.FindReport(ctx, period.Type, period.Start)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s report: %w", strings.ToLower(string(period.Type)), err)
	}
	if found == nil {
		return "", false, nil
	}
	if force {
		log.Info().Str("previous_id", found.ID).Msg("report exists, forcing a new one")
		return "", false, nil
	}
	log.Info().Str("report_id", found.ID).Msg("report already exists")
	return found.ID, true, nil
}

func (s *Service) persist(ctx context.Context, log zerolog.Logger, report *core.Report, itemIDs, reportIDs []string) (string, bool, error) {
	capReport(report)
	id, err := s.reports.CreateReport(ctx, report, itemIDs, reportIDs)
	if err != nil {
		if id != "" {
			// The page exists but is missing blocks; regenerate with force.
			log.Error().Err(err).Str("report_id", id).Msg("report page is incomplete")
			report.ID = id
		}
		return id, false, fmt.Errorf("failed to create %s report: %w", strings.ToLower(string(report.Period.Type)), err)
	}
	report.ID = id
	log.Info().Str("report_id", id).Int("sources", len(report.SourceIDs)).Int("blocks", len(report.Blocks)).Msg("report created")
	return id, true, nil
}

// capReport bounds the fields stored as report properties.
func capReport(report *core.Report) {
	report.Overview = core.Truncate(report.Overview, maxOverviewChars)
	if len(report.Highlights) > maxStoredHighlights {
		report.Highlights = report.Highlights[:maxStoredHighlights]
	}
	for i := range report.Highlights {
		report.Highlights[i].Text = core.Truncate(report.Highlights[i].Text, maxHighlightChars)
	}
}

// GenerateAdHoc writes a digest page over every ready item, labelled with
// window. It returns an empty ID when the store has nowhere to put the page.
func (s *Service) GenerateAdHoc(ctx context.Context, window string) (string, error) {
	now := s.now().In(s.loc)
	runID := uuid.NewString()
	log := s.logger.With().Str("run_id", runID).Str("window", window).Logger()

	items, err := s.items.QueryReadyForDigest(ctx, persistence.DateRange{End: now}, s.includePrivate)
	if err != nil {
		return "", fmt.Errorf("failed to query ready items: %w", err)
	}

	digest := BuildAdHocDigest(ctx, items, s.batchOverview)
	log.Info().Int("groups", len(digest.Groups)).Int("citations", len(digest.Citations)).Msg("ad-hoc digest built")

	title := fmt.Sprintf("Digest (%s) %s", window, now.Format(adHocTitleTimeLayout))
	metadata := map[string]string{
		"window":       window,
		"generated_at": now.Format(time.RFC3339),
		"run_id":       runID,
		"citations":    strings.Join(digest.Citations, ","),
	}
	id, err := s.items.CreateDigestPage(ctx, title, digest.Blocks(), metadata)
	if err != nil {
		return "", fmt.Errorf("failed to create digest page: %w", err)
	}
	if id == "" {
		log.Warn().Msg("no digest parent configured, digest page not created")
		return "", nil
	}
	log.Info().Str("page_id", id).Msg("digest page created")
	return id, nil
}
