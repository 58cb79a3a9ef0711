package mocks

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"inboxdigest/internal/persistence"
	"sort"
	"sync"
	"time"
)

var (
	_ persistence.ItemStore   = (*ItemStore)(nil)
	_ persistence.ReportStore = (*ReportStore)(nil)
)

// DigestPage records an ad-hoc digest page written through CreateDigestPage.
type DigestPage struct {
	ID       string
	Title    string
	Blocks   []core.Block
	Metadata map[string]string
}

// ItemStore is an in-memory persistence.ItemStore that records every call.
// Errors can be injected per method name through Errs.
type ItemStore struct {
	mu sync.Mutex

	items map[string]*core.Item
	order []string

	Notes        map[string][]string
	Blocks       map[string]bool
	DigestPages  []DigestPage
	DigestParent bool
	Errs         map[string]error
	calls        map[string]int

	HasContentBlocksFunc func(ctx context.Context, id string) (bool, error)
}

// NewItemStore returns a store seeded with items.
func NewItemStore(items ...core.Item) *ItemStore {
	s := &ItemStore{
		items:        make(map[string]*core.Item),
		Notes:        make(map[string][]string),
		Blocks:       make(map[string]bool),
		Errs:         make(map[string]error),
		calls:        make(map[string]int),
		DigestParent: true,
	}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts or replaces an item.
func (s *ItemStore) Add(item core.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	it := item
	s.items[item.ID] = &it
}

// Get returns a copy of the stored item.
func (s *ItemStore) Get(id string) core.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		return *it
	}
	return core.Item{}
}

// CallCount returns how many times method was called.
func (s *ItemStore) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// record counts the call and returns the injected error for method, if any.
func (s *ItemStore) record(method string) error {
	s.calls[method]++
	return s.Errs[method]
}

func (s *ItemStore) lookup(op, id string) (*core.Item, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, &persistence.StoreError{Op: op, ID: id, Err: persistence.ErrNotFound}
	}
	return it, nil
}

func (s *ItemStore) filter(keep func(core.Item) bool) []core.Item {
	var out []core.Item
	for _, id := range s.order {
		if it := s.items[id]; keep(*it) {
			out = append(out, *it)
		}
	}
	return out
}

func (s *ItemStore) QueryPending(ctx context.Context) ([]core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("QueryPending"); err != nil {
		return nil, err
	}
	return s.filter(func(it core.Item) bool { return it.Status == core.StatusToProcess }), nil
}

func (s *ItemStore) FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindByCanonicalURL"); err != nil {
		return nil, err
	}
	for _, id := range s.order {
		if it := s.items[id]; it.CanonicalURL == canonicalURL {
			found := *it
			return &found, nil
		}
	}
	return nil, nil
}

func (s *ItemStore) QueryReadyForDigest(ctx context.Context, r persistence.DateRange, includePrivate bool) ([]core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("QueryReadyForDigest"); err != nil {
		return nil, err
	}
	return s.filter(func(it core.Item) bool {
		if it.Status != core.StatusReady || !r.Contains(it.CreatedAt) {
			return false
		}
		return includePrivate || it.Sensitivity != core.SensitivityPrivate
	}), nil
}

func (s *ItemStore) QueryPendingReview(ctx context.Context) ([]core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("QueryPendingReview"); err != nil {
		return nil, err
	}
	return s.filter(func(it core.Item) bool { return it.Status == core.StatusPendingReview }), nil
}

func (s *ItemStore) UpdateStatus(ctx context.Context, id string, status core.Status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpdateStatus"); err != nil {
		return err
	}
	it, err := s.lookup("update status", id)
	if err != nil {
		return err
	}
	it.Status = status
	if note != "" {
		it.Summary = note
		s.Notes[id] = append(s.Notes[id], note)
	}
	return nil
}

func (s *ItemStore) SetClassification(ctx context.Context, id string, c core.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetClassification"); err != nil {
		return err
	}
	it, err := s.lookup("set classification", id)
	if err != nil {
		return err
	}
	it.Tags = c.Tags
	it.Sensitivity = c.Sensitivity
	it.Confidence = c.Confidence
	it.HasConfidence = true
	it.RawContent = c.RawContent
	it.CanonicalURL = c.CanonicalURL
	if c.Source != "" {
		it.Source = c.Source
	}
	return nil
}

func (s *ItemStore) SetTitle(ctx context.Context, id, title, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetTitle"); err != nil {
		return err
	}
	it, err := s.lookup("set title", id)
	if err != nil {
		return err
	}
	it.Title = title
	if note != "" {
		s.Notes[id] = append(s.Notes[id], note)
	}
	return nil
}

func (s *ItemStore) SetDuplicateOf(ctx context.Context, id, ownerID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetDuplicateOf"); err != nil {
		return err
	}
	it, err := s.lookup("set duplicate", id)
	if err != nil {
		return err
	}
	it.DuplicateOf = ownerID
	it.Status = core.StatusExcluded
	it.Summary = note
	s.Notes[id] = append(s.Notes[id], note)
	return nil
}

func (s *ItemStore) SetSummary(ctx context.Context, id, summary string, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetSummary"); err != nil {
		return err
	}
	it, err := s.lookup("set summary", id)
	if err != nil {
		return err
	}
	it.Summary = summary
	it.Status = status
	return nil
}

func (s *ItemStore) SetItemKind(ctx context.Context, id string, kind core.ItemKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetItemKind"); err != nil {
		return err
	}
	it, err := s.lookup("set item kind", id)
	if err != nil {
		return err
	}
	it.Kind = kind
	return nil
}

func (s *ItemStore) SetContentType(ctx context.Context, id string, ct core.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetContentType"); err != nil {
		return err
	}
	it, err := s.lookup("set content type", id)
	if err != nil {
		return err
	}
	it.ContentType = ct
	return nil
}

func (s *ItemStore) HasContentBlocks(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if err := s.record("HasContentBlocks"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	fn := s.HasContentBlocksFunc
	has := s.Blocks[id]
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return has, nil
}

func (s *ItemStore) CreateDigestPage(ctx context.Context, title string, blocks []core.Block, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateDigestPage"); err != nil {
		return "", err
	}
	if !s.DigestParent {
		return "", nil
	}
	id := fmt.Sprintf("digest-%d", len(s.DigestPages)+1)
	s.DigestPages = append(s.DigestPages, DigestPage{ID: id, Title: title, Blocks: blocks, Metadata: metadata})
	return id, nil
}

// CreatedReport records a CreateReport call with its provenance.
type CreatedReport struct {
	Report          core.Report
	SourceItemIDs   []string
	SourceReportIDs []string
}

// ReportStore is an in-memory persistence.ReportStore.
type ReportStore struct {
	mu      sync.Mutex
	reports []core.Report
	Created []CreatedReport
	Errs    map[string]error
	calls   map[string]int

	// Partial makes an injected CreateReport error behave like a failed
	// block append: the report is stored and its ID returned with the error.
	Partial bool
}

// NewReportStore returns a store seeded with reports. Seeded reports without
// an ID get one assigned.
func NewReportStore(reports ...core.Report) *ReportStore {
	s := &ReportStore{Errs: make(map[string]error), calls: make(map[string]int)}
	for _, r := range reports {
		if r.ID == "" {
			r.ID = fmt.Sprintf("seed-%d", len(s.reports)+1)
		}
		s.reports = append(s.reports, r)
	}
	return s
}

// CallCount returns how many times method was called.
func (s *ReportStore) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Reports returns all stored reports in creation order.
func (s *ReportStore) Reports() []core.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Report(nil), s.reports...)
}

func (s *ReportStore) FindReport(ctx context.Context, reportType core.ReportType, start time.Time) (*core.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindReport"]++
	if err := s.Errs["FindReport"]; err != nil {
		return nil, err
	}
	for i := len(s.reports) - 1; i >= 0; i-- {
		r := s.reports[i]
		if r.Period.Type == reportType && r.Period.Start.Equal(core.Day(start)) {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *ReportStore) QueryReportsInRange(ctx context.Context, reportType core.ReportType, start, end time.Time) ([]core.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["QueryReportsInRange"]++
	if err := s.Errs["QueryReportsInRange"]; err != nil {
		return nil, err
	}
	var out []core.Report
	for _, r := range s.reports {
		d := r.Period.Start
		if r.Period.Type == reportType && !d.Before(core.Day(start)) && !d.After(core.Day(end)) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period.Start.Before(out[j].Period.Start) })
	return out, nil
}

func (s *ReportStore) CreateReport(ctx context.Context, report *core.Report, sourceItemIDs, sourceReportIDs []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateReport"]++
	err := s.Errs["CreateReport"]
	if err != nil && !s.Partial {
		return "", err
	}
	stored := *report
	stored.ID = fmt.Sprintf("report-%d", len(s.Created)+1)
	stored.PageURL = "https://store.test/" + stored.ID
	s.reports = append(s.reports, stored)
	s.Created = append(s.Created, CreatedReport{Report: stored, SourceItemIDs: sourceItemIDs, SourceReportIDs: sourceReportIDs})
	return stored.ID, err
}
