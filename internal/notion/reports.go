package notion

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"time"

	"github.com/jomei/notionapi"
)

// Property names of the reporting database.
const (
	reportPropTitle         = "Name"
	reportPropType          = "Type"
	reportPropDate          = "Date"
	reportPropPeriodEnd     = "Period End"
	reportPropSourceReports = "Source Reports"
	reportPropSourceItems   = "Source Items"
	reportPropSummary       = "Summary"
	reportPropHighlights    = "Highlights"
	reportPropStatus        = "Status"
	reportStatusPublished   = "published"
)

func dateFilter(cond notionapi.DateFilterCondition) notionapi.PropertyFilter {
	return notionapi.PropertyFilter{Property: reportPropDate, Date: &cond}
}

func typeFilter(reportType core.ReportType) notionapi.PropertyFilter {
	return notionapi.PropertyFilter{
		Property: reportPropType,
		Select:   &notionapi.SelectFilterCondition{Equals: string(reportType)},
	}
}

func notionDate(t time.Time) *notionapi.Date {
	d := notionapi.Date(core.Day(t))
	return &d
}

func (s *Store) FindReport(ctx context.Context, reportType core.ReportType, start time.Time) (*core.Report, error) {
	reports, err := s.queryReports(ctx, "find report", notionapi.AndCompoundFilter{
		typeFilter(reportType),
		dateFilter(notionapi.DateFilterCondition{Equals: notionDate(start)}),
	}, []notionapi.SortObject{{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderDESC}})
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return &reports[0], nil
}

func (s *Store) QueryReportsInRange(ctx context.Context, reportType core.ReportType, start, end time.Time) ([]core.Report, error) {
	return s.queryReports(ctx, "query reports in range", notionapi.AndCompoundFilter{
		typeFilter(reportType),
		dateFilter(notionapi.DateFilterCondition{OnOrAfter: notionDate(start)}),
		dateFilter(notionapi.DateFilterCondition{OnOrBefore: notionDate(end)}),
	}, []notionapi.SortObject{
		{Property: reportPropDate, Direction: notionapi.SortOrderASC},
		{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
	})
}

func (s *Store) queryReports(ctx context.Context, op string, filter notionapi.Filter, sorts []notionapi.SortObject) ([]core.Report, error) {
	pages, err := s.queryAll(ctx, op, s.reportingID, &notionapi.DatabaseQueryRequest{Filter: filter, Sorts: sorts})
	if err != nil {
		return nil, err
	}
	reports := make([]core.Report, 0, len(pages))
	for _, page := range pages {
		r, err := decodeReport(page)
		if err != nil {
			s.logger.Warn().Err(err).Str("report_id", string(page.ID)).Msg("skipping undecodable report")
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func decodeReport(page notionapi.Page) (core.Report, error) {
	p := page.Properties
	r := core.Report{
		ID:        string(page.ID),
		Title:     readTitle(p, reportPropTitle),
		Overview:  readText(p, reportPropSummary),
		PageURL:   page.URL,
		CreatedAt: page.CreatedTime,
	}
	var err error
	if r.Period.Type, err = core.ParseReportType(readSelect(p, reportPropType)); err != nil {
		return r, err
	}
	r.Period.Start = readDate(p, reportPropDate)
	r.Period.End = readDate(p, reportPropPeriodEnd)
	if r.Period.End.IsZero() {
		r.Period.End = r.Period.Start
	}
	for _, h := range readMultiSelect(p, reportPropHighlights) {
		r.Highlights = append(r.Highlights, core.Highlight{Text: h})
	}
	return r, nil
}

func readDate(props notionapi.Properties, name string) time.Time {
	p, ok := props[name].(*notionapi.DateProperty)
	if !ok || p.Date == nil || p.Date.Start == nil {
		return time.Time{}
	}
	return core.Day(time.Time(*p.Date.Start))
}

// CreateReport writes the report page into the reporting database. The body
// goes out in batches of persistence.BlockBatchSize blocks.
func (s *Store) CreateReport(ctx context.Context, report *core.Report, sourceItemIDs, sourceReportIDs []string) (string, error) {
	if s.reportingID == "" {
		return "", &persistence.StoreError{Op: "create report", Err: fmt.Errorf("reporting database id not configured")}
	}
	props := notionapi.Properties{
		reportPropTitle:     titleProp(report.Title),
		reportPropType:      selectProp(string(report.Period.Type)),
		reportPropDate:      notionapi.DateProperty{Date: &notionapi.DateObject{Start: notionDate(report.Period.Start)}},
		reportPropPeriodEnd: notionapi.DateProperty{Date: &notionapi.DateObject{Start: notionDate(report.Period.End)}},
		reportPropStatus:    selectProp(reportStatusPublished),
	}
	if report.Overview != "" {
		props[reportPropSummary] = textProp(report.Overview)
	}
	if len(report.Highlights) > 0 {
		props[reportPropHighlights] = multiSelectProp(report.HighlightTexts())
	}
	if len(sourceItemIDs) > 0 {
		props[reportPropSourceItems] = relationProp(sourceItemIDs)
	}
	if len(sourceReportIDs) > 0 {
		props[reportPropSourceReports] = relationProp(sourceReportIDs)
	}

	page, err := s.createPage(ctx, "create report", &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: s.reportingID},
		Properties: props,
	}, report.Blocks)
	if page == nil {
		return "", err
	}
	s.logger.Info().
		Str("report_id", string(page.ID)).
		Str("report_type", string(report.Period.Type)).
		Int("source_items", len(sourceItemIDs)).
		Int("source_reports", len(sourceReportIDs)).
		Msg("report page created")
	return string(page.ID), err
}
