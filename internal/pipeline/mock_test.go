package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/store"
	"github.com/lumenreach/visibility-cli/pkg/anthropic"
	"github.com/lumenreach/visibility-cli/pkg/crawler"
	"github.com/lumenreach/visibility-cli/pkg/notion"
	"github.com/lumenreach/visibility-cli/pkg/websearch"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// --- Crawler Mock ---

type mockCrawlerClient struct {
	mock.Mock
}

func (m *mockCrawlerClient) Extract(ctx context.Context, req crawler.ExtractRequest) (*crawler.ExtractResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crawler.ExtractResponse), args.Error(1)
}

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) Query(ctx context.Context, req anthropic.QueryRequest) (*anthropic.QueryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.QueryResponse), args.Error(1)
}

// --- Websearch Mock ---

type mockSearchClient struct {
	mock.Mock
}

func (m *mockSearchClient) Search(ctx context.Context, query string) (*websearch.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*websearch.SearchResponse), args.Error(1)
}

// --- Wikidata Mock ---

type mockWikidataClient struct {
	mock.Mock
}

func (m *mockWikidataClient) PublishEntity(ctx context.Context, entity wikidata.Entity, production bool) (*wikidata.PublishResponse, error) {
	args := m.Called(ctx, entity, production)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wikidata.PublishResponse), args.Error(1)
}

// --- Notion Mock ---

type mockNotionClient struct {
	mock.Mock
}

func (m *mockNotionClient) CreateReviewCard(ctx context.Context, dbID string, card notion.ReviewCard) error {
	args := m.Called(ctx, dbID, card)
	return args.Error(0)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateTeam(ctx context.Context, team *model.Team) error {
	return m.Called(ctx, team).Error(0)
}

func (m *mockStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Team), args.Error(1)
}

func (m *mockStore) CreateBusiness(ctx context.Context, b *model.Business) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Business), args.Error(1)
}

func (m *mockStore) ListBusinesses(ctx context.Context, filter store.BusinessFilter) ([]model.Business, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Business), args.Error(1)
}

func (m *mockStore) TransitionStatus(ctx context.Context, id string, from, to model.BusinessStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *mockStore) MarkError(ctx context.Context, id, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *mockStore) SaveCrawlData(ctx context.Context, id string, data *model.CrawlData) error {
	return m.Called(ctx, id, data).Error(0)
}

func (m *mockStore) SetPublished(ctx context.Context, id, qid string, publishedAt time.Time) error {
	return m.Called(ctx, id, qid, publishedAt).Error(0)
}

func (m *mockStore) CreateCrawlJob(ctx context.Context, businessID, jobType string) (*model.CrawlJob, error) {
	args := m.Called(ctx, businessID, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CrawlJob), args.Error(1)
}

func (m *mockStore) UpdateCrawlJob(ctx context.Context, jobID string, status model.CrawlJobStatus, progress int, errorMessage string) error {
	return m.Called(ctx, jobID, status, progress, errorMessage).Error(0)
}

func (m *mockStore) ListCrawlJobs(ctx context.Context, businessID string) ([]model.CrawlJob, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CrawlJob), args.Error(1)
}

func (m *mockStore) CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	return m.Called(ctx, fp).Error(0)
}

func (m *mockStore) GetLatestFingerprint(ctx context.Context, businessID string) (*model.Fingerprint, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Fingerprint), args.Error(1)
}

func (m *mockStore) CreateWikidataEntity(ctx context.Context, e *model.WikidataEntity) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockStore) GetWikidataEntity(ctx context.Context, businessID string) (*model.WikidataEntity, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WikidataEntity), args.Error(1)
}

func (m *mockStore) CreateRun(ctx context.Context, businessID string) (*model.PipelineRun, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PipelineRun), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stages []model.StageResult, runErr string) error {
	return m.Called(ctx, runID, status, stages, runErr).Error(0)
}

func (m *mockStore) GetCachedCrawl(ctx context.Context, url string) (*model.CrawlData, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CrawlData), args.Error(1)
}

func (m *mockStore) SetCachedCrawl(ctx context.Context, url string, data *model.CrawlData, ttl time.Duration) error {
	return m.Called(ctx, url, data, ttl).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// Interface conformance.
var (
	_ crawler.Client   = (*mockCrawlerClient)(nil)
	_ anthropic.Client = (*mockAnthropicClient)(nil)
	_ websearch.Client = (*mockSearchClient)(nil)
	_ wikidata.Client  = (*mockWikidataClient)(nil)
	_ notion.Client    = (*mockNotionClient)(nil)
	_ store.Store      = (*mockStore)(nil)
)
