package handlers

import (
	"context"
	"fmt"
	"inboxdigest/internal/categorization"
	"inboxdigest/internal/config"
	"inboxdigest/internal/contenttype"
	"inboxdigest/internal/core"
	"inboxdigest/internal/fetch"
	"inboxdigest/internal/llm"
	"inboxdigest/internal/logger"
	"inboxdigest/internal/notion"
	"inboxdigest/internal/persistence"
	"inboxdigest/internal/pipeline"
	"inboxdigest/internal/preprocess"
	"inboxdigest/internal/reporting"
	"inboxdigest/internal/store"
	"inboxdigest/internal/summarize"
	"time"

	"github.com/rs/zerolog"
)

// backend is what every command needs from the configured store.
type backend interface {
	persistence.ItemStore
	persistence.ReportStore
}

// app holds the collaborators built from configuration for one command run.
type app struct {
	cfg        *config.Config
	loc        *time.Location
	store      backend
	sql        *store.Store
	fetcher    preprocess.PageFetcher
	classifier preprocess.ContentTypeClassifier
	logger     zerolog.Logger
	closers    []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Get()
	a := &app{
		cfg:    cfg,
		loc:    cfg.Location(),
		logger: *logger.Get(),
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	cache, err := a.pageCache()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.fetcher = fetch.NewFetcher(fetch.Options{
		Timeout:        config.Duration(cfg.Fetch.Timeout, 20*time.Second),
		ContentRetries: cfg.Fetch.ContentRetries,
		TitleRetries:   cfg.Fetch.TitleRetries,
		UserAgent:      cfg.Fetch.UserAgent,
		Locale:         cfg.Fetch.Locale,
		Cache:          cache,
		Registry:       fetch.DefaultRegistry(),
		Logger:         &a.logger,
	})
	a.classifier = contenttype.NewClassifier(contenttype.Options{
		Timeout:      config.Duration(cfg.Probe.Timeout, 10*time.Second),
		MaxRedirects: cfg.Probe.MaxRedirects,
		UserAgent:    cfg.Fetch.UserAgent,
		Logger:       &a.logger,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "notion":
		n := a.cfg.Notion
		s, err := notion.New(notion.Options{
			Token:               n.Token,
			DatabaseID:          n.DatabaseID,
			ReportingDatabaseID: n.ReportingDatabaseID,
			DigestParentID:      n.DigestParentID,
			Timeout:             config.Duration(n.Timeout, 30*time.Second),
			Properties:          n.Properties,
			Status:              n.Status,
			Location:            a.loc,
			Logger:              &a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open notion store: %w", err)
		}
		a.store = s
	case "sql":
		s, err := store.Open(ctx, store.Options{
			Driver:   a.cfg.Store.SQL.Driver,
			DSN:      a.cfg.Store.SQL.DSN,
			Location: a.loc,
			Logger:   &a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open sql store: %w", err)
		}
		a.store = s
		a.sql = s
		a.closers = append(a.closers, s.Close)
	default:
		return fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
	return nil
}

// pageCache builds the fetch cache. The sqlite cache lives in its own
// database file under the data directory, whatever the item store is.
func (a *app) pageCache() (fetch.Cache, error) {
	switch a.cfg.Fetch.Cache {
	case "memory":
		cache, err := fetch.NewMemoryCache(a.cfg.Fetch.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create page cache: %w", err)
		}
		return cache, nil
	case "sqlite":
		s, err := store.Open(context.Background(), store.Options{
			Driver: "sqlite3",
			DSN:    a.cfg.App.DataDir + "/pagecache.db",
			Logger: &a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open page cache: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		cache := s.PageCache(24 * time.Hour)
		if n, err := cache.Prune(context.Background()); err != nil {
			a.logger.Warn().Err(err).Msg("failed to prune page cache")
		} else if n > 0 {
			a.logger.Debug().Int64("pruned", n).Msg("page cache pruned")
		}
		return cache, nil
	}
	return nil, nil
}

// Close releases database handles opened for the run.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close store")
		}
	}
}

// models returns the summarizer and the report collaborators. Without a
// Gemini key the offline heuristics and fallback overviews are used.
func (a *app) models(ctx context.Context) (pipeline.Summarizer, reporting.Options, error) {
	cats := categorization.DefaultCategories()
	if path := a.cfg.Digest.CategoriesFile; path != "" {
		loaded, err := categorization.LoadCategories(path)
		if err != nil {
			return nil, reporting.Options{}, err
		}
		cats = loaded
	}
	opts := reporting.Options{
		IncludePrivate: a.cfg.Digest.IncludePrivate,
		Location:       a.loc,
		Logger:         &a.logger,
	}

	if !config.HasGemini() {
		a.logger.Info().Msg("no Gemini API key configured, using offline heuristics")
		opts.Categorizer = categorization.NewCategorizer(nil, cats, &a.logger)
		return summarize.NewHeuristic(), opts, nil
	}

	client, err := llm.NewClient(ctx, a.cfg.AI.Gemini.APIKey, a.cfg.AI.Gemini.Model)
	if err != nil {
		return nil, reporting.Options{}, err
	}
	client.WithTimeout(config.Duration(a.cfg.AI.Gemini.Timeout, 30*time.Second))
	a.logger.Debug().Str("model", client.ModelName()).Msg("using Gemini")
	s := summarize.NewSummarizer(client, summarize.Options{
		MaxTokens:   a.cfg.AI.Gemini.MaxTokens,
		Temperature: a.cfg.AI.Gemini.Temperature,
		MaxTags:     summarize.DefaultOptions().MaxTags,
		MaxInsights: summarize.DefaultOptions().MaxInsights,
		Logger:      &a.logger,
	})
	opts.Categorizer = categorization.NewCategorizer(client, cats, &a.logger)
	opts.DailyOverview = s.DailyOverview
	opts.WeeklyOverview = s.WeeklyOverview
	opts.MonthlyOverview = s.MonthlyOverview
	opts.BatchOverview = s.BatchOverview
	return s, opts, nil
}

func (a *app) pipeline(summarizer pipeline.Summarizer) *pipeline.Pipeline {
	cfg := pipeline.DefaultConfig()
	cfg.ConfidenceThreshold = a.cfg.Ingest.ConfidenceThreshold
	cfg.Workers = a.cfg.Ingest.Workers
	cfg.SourceStatus = make(map[core.Source]core.Status, len(a.cfg.Ingest.SourceStatus))
	for source, status := range a.cfg.Ingest.SourceStatus {
		st, err := core.ParseStatus(status)
		if err != nil {
			a.logger.Warn().Str("source", source).Str("status", status).Msg("ignoring unknown source status")
			continue
		}
		cfg.SourceStatus[core.Source(source)] = st
	}
	return pipeline.New(a.store, a.fetcher, summarizer, cfg).WithLogger(a.logger)
}

func (a *app) preprocessor() *preprocess.Preprocessor {
	return preprocess.New(a.store, a.classifier, a.fetcher, a.loc).WithLogger(a.logger)
}

func (a *app) reporting(opts reporting.Options) *reporting.Service {
	return reporting.NewService(a.store, a.store, opts)
}
