package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var reportColumns = []string{
	"id", "report_type", "period_start", "period_end", "title", "overview",
	"highlights", "categories", "source_item_ids", "created_at",
}

func (s *Store) FindReport(ctx context.Context, reportType core.ReportType, start time.Time) (*core.Report, error) {
	q := s.sb.Select(reportColumns...).From("reports").
		Where(sq.Eq{"report_type": string(reportType), "period_start": start.Format(dayLayout)}).
		OrderBy("seq DESC").
		Limit(1)
	reports, err := s.selectReports(ctx, "find report", q)
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return &reports[0], nil
}

func (s *Store) QueryReportsInRange(ctx context.Context, reportType core.ReportType, start, end time.Time) ([]core.Report, error) {
	q := s.sb.Select(reportColumns...).From("reports").
		Where(sq.And{
			sq.Eq{"report_type": string(reportType)},
			sq.GtOrEq{"period_start": start.Format(dayLayout)},
			sq.LtOrEq{"period_start": end.Format(dayLayout)},
		}).
		OrderBy("period_start", "seq")
	return s.selectReports(ctx, "query reports in range", q)
}

func (s *Store) selectReports(ctx context.Context, op string, q sq.SelectBuilder) ([]core.Report, error) {
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, &persistence.StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	var reports []core.Report
	for rows.Next() {
		var (
			r                      core.Report
			reportType, start, end string
			highlights, categories string
			sourceIDs              string
		)
		if err := rows.Scan(&r.ID, &reportType, &start, &end, &r.Title, &r.Overview,
			&highlights, &categories, &sourceIDs, &r.CreatedAt); err != nil {
			return nil, &persistence.StoreError{Op: op, Err: fmt.Errorf("failed to scan report: %w", err)}
		}
		if err := decodeReport(&r, reportType, start, end, highlights, categories, sourceIDs); err != nil {
			return nil, &persistence.StoreError{Op: op, ID: r.ID, Err: err}
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &persistence.StoreError{Op: op, Err: err}
	}
	return reports, nil
}

func decodeReport(r *core.Report, reportType, start, end, highlights, categories, sourceIDs string) error {
	var err error
	if r.Period.Type, err = core.ParseReportType(reportType); err != nil {
		return err
	}
	if r.Period.Start, err = time.Parse(dayLayout, start); err != nil {
		return fmt.Errorf("invalid period start: %w", err)
	}
	if r.Period.End, err = time.Parse(dayLayout, end); err != nil {
		return fmt.Errorf("invalid period end: %w", err)
	}
	if err := json.Unmarshal([]byte(highlights), &r.Highlights); err != nil {
		return fmt.Errorf("failed to decode highlights: %w", err)
	}
	if err := json.Unmarshal([]byte(categories), &r.Categories); err != nil {
		return fmt.Errorf("failed to decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(sourceIDs), &r.SourceIDs); err != nil {
		return fmt.Errorf("failed to decode source ids: %w", err)
	}
	return nil
}

// CreateReport writes the report row and its body blocks in one transaction.
// Blocks are inserted in batches of persistence.BlockBatchSize rows.
func (s *Store) CreateReport(ctx context.Context, report *core.Report, sourceItemIDs, sourceReportIDs []string) (string, error) {
	id := uuid.NewString()

	encode := func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	highlights, err := encode(nonNil(report.Highlights))
	if err != nil {
		return "", fmt.Errorf("failed to marshal highlights: %w", err)
	}
	categories, err := encode(nonNil(report.Categories))
	if err != nil {
		return "", fmt.Errorf("failed to marshal categories: %w", err)
	}
	itemIDs, err := encode(nonNil(sourceItemIDs))
	if err != nil {
		return "", fmt.Errorf("failed to marshal source items: %w", err)
	}
	reportIDs, err := encode(nonNil(sourceReportIDs))
	if err != nil {
		return "", fmt.Errorf("failed to marshal source reports: %w", err)
	}

	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &persistence.StoreError{Op: "create report", Err: err}
	}
	defer tx.Rollback()

	insert := s.sb.Insert("reports").
		Columns("id", "report_type", "period_start", "period_end", "title", "overview",
			"highlights", "categories", "source_item_ids", "source_report_ids", "created_at").
		Values(id, string(report.Period.Type), report.Period.Start.Format(dayLayout), report.Period.End.Format(dayLayout),
			report.Title, report.Overview, highlights, categories, itemIDs, reportIDs, createdAt.UTC())
	if _, err := s.exec(ctx, tx, insert); err != nil {
		return "", &persistence.StoreError{Op: "create report", Err: err}
	}

	chunks := persistence.ChunkBlocks(report.Blocks, persistence.BlockBatchSize)
	position := 0
	for _, chunk := range chunks {
		batch := s.sb.Insert("report_blocks").Columns("report_id", "position", "kind", "text", "link", "icon", "bold")
		for _, b := range chunk {
			batch = batch.Values(id, position, string(b.Kind), b.Text, b.Link, b.Icon, b.Bold)
			position++
		}
		if _, err := s.exec(ctx, tx, batch); err != nil {
			return "", &persistence.StoreError{Op: "append report blocks", ID: id, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", &persistence.StoreError{Op: "create report", ID: id, Err: err}
	}
	s.logger.Debug().Str("report_id", id).Int("blocks", len(report.Blocks)).Int("batches", len(chunks)).Msg("report stored")
	return id, nil
}

// ReportBlocks returns the body blocks of a stored report in order.
func (s *Store) ReportBlocks(ctx context.Context, reportID string) ([]core.Block, error) {
	q := s.sb.Select("kind", "text", "link", "icon", "bold").From("report_blocks").
		Where(sq.Eq{"report_id": reportID}).
		OrderBy("position")
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, &persistence.StoreError{Op: "report blocks", ID: reportID, Err: err}
	}
	defer rows.Close()

	var blocks []core.Block
	for rows.Next() {
		var b core.Block
		var kind string
		if err := rows.Scan(&kind, &b.Text, &b.Link, &b.Icon, &b.Bold); err != nil {
			return nil, &persistence.StoreError{Op: "report blocks", ID: reportID, Err: err}
		}
		b.Kind = core.BlockKind(kind)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// ReportSources returns the provenance recorded for a report.
func (s *Store) ReportSources(ctx context.Context, reportID string) (itemIDs, reportIDs []string, err error) {
	row, err := s.queryRow(ctx, s.sb.Select("source_item_ids", "source_report_ids").From("reports").Where(sq.Eq{"id": reportID}))
	if err != nil {
		return nil, nil, &persistence.StoreError{Op: "report sources", ID: reportID, Err: err}
	}
	var items, reports string
	if err := row.Scan(&items, &reports); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrNotFound
		}
		return nil, nil, &persistence.StoreError{Op: "report sources", ID: reportID, Err: err}
	}
	if err := json.Unmarshal([]byte(items), &itemIDs); err != nil {
		return nil, nil, fmt.Errorf("failed to decode source items: %w", err)
	}
	if err := json.Unmarshal([]byte(reports), &reportIDs); err != nil {
		return nil, nil, fmt.Errorf("failed to decode source reports: %w", err)
	}
	return itemIDs, reportIDs, nil
}
