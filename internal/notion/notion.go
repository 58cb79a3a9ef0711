// Package notion stores items and digest reports in Notion databases.
//
// Items live in the inbox database, reports in a separate reporting
// database, and ad-hoc digests as child pages of a configured parent page.
// Property names and status labels are taken from configuration so the
// adapter works against an existing workspace schema.
package notion

import (
	"context"
	"fmt"
	"inboxdigest/internal/config"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
)

// Notion caps rich text content at 2000 characters per text object.
const (
	maxRichText   = 2000
	maxNoteLen    = 1900
	queryPageSize = 100
)

type databaseAPI interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type pageAPI interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

type blockAPI interface {
	GetChildren(ctx context.Context, id notionapi.BlockID, pagination *notionapi.Pagination) (*notionapi.GetChildrenResponse, error)
	AppendChildren(ctx context.Context, id notionapi.BlockID, req *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error)
}

// Options configures a Store.
type Options struct {
	Token               string
	DatabaseID          string
	ReportingDatabaseID string
	DigestParentID      string
	Timeout             time.Duration
	Properties          config.PropertyNames
	Status              config.StatusLabels
	Location            *time.Location
	Logger              *zerolog.Logger
}

// Store implements persistence.ItemStore and persistence.ReportStore on top
// of the Notion API.
type Store struct {
	databases databaseAPI
	pages     pageAPI
	blocks    blockAPI

	databaseID     notionapi.DatabaseID
	reportingID    notionapi.DatabaseID
	digestParentID string
	props          config.PropertyNames
	labels         config.StatusLabels
	loc            *time.Location
	logger         zerolog.Logger
}

var (
	_ persistence.ItemStore   = (*Store)(nil)
	_ persistence.ReportStore = (*Store)(nil)
)

// New creates a Store backed by the Notion API client.
func New(opts Options) (*Store, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("notion token is required")
	}
	if opts.DatabaseID == "" {
		return nil, fmt.Errorf("notion database id is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := notionapi.NewClient(notionapi.Token(opts.Token),
		notionapi.WithHTTPClient(&http.Client{Timeout: timeout}))
	return newStore(client.Database, client.Page, client.Block, opts), nil
}

func newStore(databases databaseAPI, pages pageAPI, blocks blockAPI, opts Options) *Store {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		databases:      databases,
		pages:          pages,
		blocks:         blocks,
		databaseID:     notionapi.DatabaseID(opts.DatabaseID),
		reportingID:    notionapi.DatabaseID(opts.ReportingDatabaseID),
		digestParentID: opts.DigestParentID,
		props:          opts.Properties,
		labels:         opts.Status,
		loc:            loc,
		logger:         logger,
	}
}

// queryAll follows query cursors until the database has no more results.
func (s *Store) queryAll(ctx context.Context, op string, db notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	if db == "" {
		return nil, &persistence.StoreError{Op: op, Err: fmt.Errorf("database id not configured")}
	}
	if req.PageSize == 0 {
		req.PageSize = queryPageSize
	}
	var pages []notionapi.Page
	for {
		resp, err := s.databases.Query(ctx, db, req)
		if err != nil {
			return nil, &persistence.StoreError{Op: op, Err: err}
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

func (s *Store) updatePage(ctx context.Context, op, id string, props notionapi.Properties) error {
	if _, err := s.pages.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return &persistence.StoreError{Op: op, ID: id, Err: err}
	}
	return nil
}

// createPage creates a page with the first batch of blocks and appends the
// rest in follow-up calls. A failed append leaves the page in place with the
// blocks written so far.
func (s *Store) createPage(ctx context.Context, op string, req *notionapi.PageCreateRequest, body []core.Block) (*notionapi.Page, error) {
	chunks := persistence.ChunkBlocks(body, persistence.BlockBatchSize)
	if len(chunks) > 0 {
		req.Children = toNotionBlocks(chunks[0])
	}
	page, err := s.pages.Create(ctx, req)
	if err != nil {
		return nil, &persistence.StoreError{Op: op, Err: err}
	}

	id := string(page.ID)
	for i, chunk := range chunks[min(1, len(chunks)):] {
		_, err := s.blocks.AppendChildren(ctx, notionapi.BlockID(id), &notionapi.AppendBlockChildrenRequest{
			Children: toNotionBlocks(chunk),
		})
		if err != nil {
			s.logger.Error().Err(err).Str("page_id", id).Int("batch", i+2).Int("batches", len(chunks)).
				Msg("block append failed, page is incomplete")
			return page, &persistence.StoreError{Op: op + " append blocks", ID: id, Err: err}
		}
	}
	s.logger.Debug().Str("page_id", id).Int("blocks", len(body)).Int("batches", len(chunks)).Msg("page created")
	return page, nil
}

func (s *Store) label(status core.Status) string {
	switch status {
	case core.StatusToProcess:
		return s.labels.ToProcess
	case core.StatusPendingReview:
		return s.labels.Pending
	case core.StatusReady:
		return s.labels.Ready
	case core.StatusError:
		return s.labels.Error
	case core.StatusUnprocessed:
		return s.labels.Unprocessed
	case core.StatusExcluded:
		return s.labels.Excluded
	}
	return string(status)
}

func (s *Store) statusFromLabel(label string) (core.Status, error) {
	for _, status := range []core.Status{
		core.StatusToProcess, core.StatusPendingReview, core.StatusReady,
		core.StatusError, core.StatusUnprocessed, core.StatusExcluded,
	} {
		if s.label(status) == label {
			return status, nil
		}
	}
	return core.ParseStatus(label)
}
