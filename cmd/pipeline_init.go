package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/manualstore"
	"github.com/lumenreach/visibility-cli/internal/pipeline"
	"github.com/lumenreach/visibility-cli/internal/store"
	anthropicpkg "github.com/lumenreach/visibility-cli/pkg/anthropic"
	"github.com/lumenreach/visibility-cli/pkg/crawler"
	"github.com/lumenreach/visibility-cli/pkg/notion"
	"github.com/lumenreach/visibility-cli/pkg/websearch"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// pipelineEnv holds the initialized store, clients, and pipeline shared by
// the run/schedule/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Manual   *manualstore.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, all API clients, the manual-publish
// fallback, and the pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	manual, err := manualstore.New(cfg.ManualStore.Dir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	crawlerClient := crawler.NewClient(cfg.Crawler.Key,
		crawler.WithBaseURL(cfg.Crawler.BaseURL),
		crawler.WithRateLimit(cfg.Crawler.RatePerSec))
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithRateLimit(cfg.Anthropic.RatePerSec))
	searchClient := websearch.NewClient(cfg.Search.Key,
		websearch.WithBaseURL(cfg.Search.BaseURL))
	wikidataClient := wikidata.NewClient(cfg.Wikidata.Token)

	// The review board is optional; the pipeline tolerates a nil client.
	var notionClient notion.Client
	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	} else {
		zap.L().Debug("notion not configured, review board disabled")
	}

	mapping, err := wikidata.LoadPropertyMapping(cfg.Wikidata.MappingPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load property mapping")
	}

	p := pipeline.New(cfg, st, manual, crawlerClient, anthropicClient, searchClient, wikidataClient, notionClient, mapping)

	return &pipelineEnv{
		Store:    st,
		Manual:   manual,
		Pipeline: p,
	}, nil
}
