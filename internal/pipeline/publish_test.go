package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/visibility-cli/internal/manualstore"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/pkg/anthropic"
	"github.com/lumenreach/visibility-cli/pkg/websearch"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

type testDeps struct {
	st      *mockStore
	crawler *mockCrawlerClient
	ai      *mockAnthropicClient
	search  *mockSearchClient
	wd      *mockWikidataClient
	notion  *mockNotionClient
	manual  *manualstore.Store
}

func newTestPipeline(t *testing.T) (*Pipeline, *testDeps) {
	t.Helper()
	manual, err := manualstore.New(t.TempDir())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Notion.ReviewDB = "review-db"

	deps := &testDeps{
		st:      &mockStore{},
		crawler: &mockCrawlerClient{},
		ai:      &mockAnthropicClient{},
		search:  &mockSearchClient{},
		wd:      &mockWikidataClient{},
		notion:  &mockNotionClient{},
		manual:  manual,
	}
	p := New(cfg, deps.st, manual, deps.crawler, deps.ai, deps.search, deps.wd, deps.notion, wikidata.DefaultPropertyMapping())
	return p, deps
}

// expectNotableSearch primes search and scoring mocks so notability comes out
// well above the publish threshold.
func expectNotableSearch(deps *testDeps) {
	deps.search.On("Search", mock.Anything, mock.Anything).Return(&websearch.SearchResponse{
		Results: []websearch.Result{
			{URL: "https://news.example/one", Title: "Feature one"},
			{URL: "https://news.example/two", Title: "Feature two"},
		},
	}, nil).Once()
	verdict := `{"serious": true, "publicly_available": true, "independent": true}`
	deps.ai.On("Query", mock.Anything, mock.Anything).
		Return(&anthropic.QueryResponse{Content: verdict}, nil).Times(2)
}

func TestPublishGateSuccess(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusGenerating

	expectNotableSearch(deps)
	deps.wd.On("PublishEntity", mock.Anything, mock.AnythingOfType("wikidata.Entity"), false).
		Return(&wikidata.PublishResponse{Success: true, QID: "Q4115189"}, nil).Once()
	deps.st.On("CreateWikidataEntity", mock.Anything, mock.AnythingOfType("*model.WikidataEntity")).Return(nil).Once()
	deps.st.On("SetPublished", mock.Anything, business.ID, "Q4115189", mock.Anything).Return(nil).Once()

	gate, err := p.PublishGate(context.Background(), business, true)
	require.NoError(t, err)

	assert.True(t, gate.CanPublish)
	assert.True(t, gate.Published)
	assert.Equal(t, "Q4115189", gate.QID)
	assert.Equal(t, model.StatusPublished, business.Status)
	require.NotNil(t, business.WikidataQID)
	assert.Equal(t, "Q4115189", *business.WikidataQID)

	// The snapshot is stored even for published entities.
	require.NotNil(t, gate.Stored)
	assert.True(t, gate.Stored.CanPublish)
	listed, err := deps.manual.List()
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	// Published entities skip the review board.
	deps.notion.AssertNotCalled(t, "CreateReviewCard", mock.Anything, mock.Anything, mock.Anything)
	deps.st.AssertExpectations(t)
	deps.wd.AssertExpectations(t)
}

func TestPublishGateRejectionPreservesEntity(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusGenerating

	expectNotableSearch(deps)
	deps.wd.On("PublishEntity", mock.Anything, mock.Anything, false).
		Return(&wikidata.PublishResponse{Success: false, Error: "invalid claim P968"}, nil).Once()
	deps.notion.On("CreateReviewCard", mock.Anything, "review-db", mock.AnythingOfType("notion.ReviewCard")).Return(nil).Once()

	gate, err := p.PublishGate(context.Background(), business, true)
	require.NoError(t, err)

	assert.True(t, gate.CanPublish)
	assert.False(t, gate.Published)
	assert.Contains(t, gate.Rejection, "invalid claim P968")
	// Status untouched: the orchestrator reverts generating, not the gate.
	assert.Equal(t, model.StatusGenerating, business.Status)

	// The rejected entity survives in manual storage.
	listed, err := deps.manual.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	entity, err := deps.manual.LoadEntity(listed[0].EntityFileName)
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", entity.Label("en"))

	deps.st.AssertNotCalled(t, "SetPublished", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.notion.AssertExpectations(t)
}

func TestPublishGateNotEligibleStoresForReview(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusGenerating

	// No qualifying references: confidence stays below review threshold.
	deps.search.On("Search", mock.Anything, mock.Anything).Return(&websearch.SearchResponse{
		Results: []websearch.Result{{URL: "https://dir.example/acme", Title: "Directory listing"}},
	}, nil).Once()
	deps.ai.On("Query", mock.Anything, mock.Anything).
		Return(&anthropic.QueryResponse{Content: `{"serious": false, "publicly_available": true, "independent": false}`}, nil).Once()
	deps.notion.On("CreateReviewCard", mock.Anything, "review-db", mock.Anything).Return(nil).Once()

	gate, err := p.PublishGate(context.Background(), business, true)
	require.NoError(t, err)

	assert.False(t, gate.CanPublish)
	assert.False(t, gate.Published)
	deps.wd.AssertNotCalled(t, "PublishEntity", mock.Anything, mock.Anything, mock.Anything)

	listed, err := deps.manual.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].CanPublish)
}

func TestPublishGatePermissionDenied(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusGenerating

	expectNotableSearch(deps)
	deps.notion.On("CreateReviewCard", mock.Anything, "review-db", mock.Anything).Return(nil).Once()

	gate, err := p.PublishGate(context.Background(), business, false)
	require.NoError(t, err)

	// Notable and confident, but the tier/user does not permit publishing.
	assert.True(t, gate.Notability.IsNotable)
	assert.False(t, gate.CanPublish)
	deps.wd.AssertNotCalled(t, "PublishEntity", mock.Anything, mock.Anything, mock.Anything)
}

func TestCanPublishPolicy(t *testing.T) {
	p, _ := newTestPipeline(t)

	tests := []struct {
		name         string
		notable      bool
		confidence   float64
		allowPublish bool
		want         bool
	}{
		{"notable above publish threshold", true, 0.8, true, true},
		{"notable below publish threshold", true, 0.6, true, false},
		{"non-notable above review threshold", false, 0.5, true, true},
		{"non-notable below review threshold", false, 0.3, true, false},
		{"permission denied", true, 0.9, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.canPublish(&model.NotabilityAssessment{
				IsNotable:  tt.notable,
				Confidence: tt.confidence,
			}, tt.allowPublish)
			assert.Equal(t, tt.want, got)
		})
	}
}

// saveReviewSnapshot puts a reviewable snapshot into manual storage.
func saveReviewSnapshot(t *testing.T, deps *testDeps, business *model.Business, entity *wikidata.Entity) *model.StoredManualEntity {
	t.Helper()
	stored, err := deps.manual.Save(manualstore.Snapshot{
		Business:   business,
		Entity:     entity,
		Notability: model.NotabilityAssessment{Confidence: 0.5, Recommendation: "review"},
		Reason:     "review",
	})
	require.NoError(t, err)
	return stored
}

func TestPublishReviewedWalksStateMachine(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusCrawled
	entity := wikidata.Entity{Labels: map[string]string{"en": "Acme Plumbing"}}
	stored := saveReviewSnapshot(t, deps, business, &entity)

	var calls []string
	deps.st.On("GetBusiness", mock.Anything, business.ID).Return(business, nil).Once()
	deps.st.On("TransitionStatus", mock.Anything, business.ID, model.StatusCrawled, model.StatusGenerating).
		Run(func(mock.Arguments) { calls = append(calls, "generating") }).Return(nil).Once()
	deps.wd.On("PublishEntity", mock.Anything, entity, false).
		Run(func(mock.Arguments) { calls = append(calls, "publish") }).
		Return(&wikidata.PublishResponse{Success: true, QID: "Q4115189"}, nil).Once()
	deps.st.On("CreateWikidataEntity", mock.Anything, mock.AnythingOfType("*model.WikidataEntity")).Return(nil).Once()
	deps.st.On("SetPublished", mock.Anything, business.ID, "Q4115189", mock.Anything).Return(nil).Once()

	qid, err := p.PublishReviewed(context.Background(), *stored, entity)
	require.NoError(t, err)
	assert.Equal(t, "Q4115189", qid)

	// generating is set before the publisher is called.
	assert.Equal(t, []string{"generating", "publish"}, calls)
	assert.Equal(t, model.StatusPublished, business.Status)

	listed, err := deps.manual.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
	deps.st.AssertExpectations(t)
}

func TestPublishReviewedFailureRevertsToCrawled(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusCrawled
	entity := wikidata.Entity{Labels: map[string]string{"en": "Acme Plumbing"}}
	stored := saveReviewSnapshot(t, deps, business, &entity)

	deps.st.On("GetBusiness", mock.Anything, business.ID).Return(business, nil).Once()
	deps.st.On("TransitionStatus", mock.Anything, business.ID, model.StatusCrawled, model.StatusGenerating).Return(nil).Once()
	deps.wd.On("PublishEntity", mock.Anything, entity, false).
		Return(&wikidata.PublishResponse{Success: false, Error: "invalid claim P968"}, nil).Once()
	deps.st.On("TransitionStatus", mock.Anything, business.ID, model.StatusGenerating, model.StatusCrawled).Return(nil).Once()

	_, err := p.PublishReviewed(context.Background(), *stored, entity)
	var rejection *PublisherRejectionError
	require.ErrorAs(t, err, &rejection)

	// The snapshot stays put for another attempt.
	listed, err := deps.manual.List()
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	deps.st.AssertNotCalled(t, "SetPublished", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.st.AssertExpectations(t)
}

func TestPublishReviewedRequiresCrawled(t *testing.T) {
	p, deps := newTestPipeline(t)
	business := testBusiness()
	business.Status = model.StatusPending
	entity := wikidata.Entity{Labels: map[string]string{"en": "Acme Plumbing"}}
	stored := saveReviewSnapshot(t, deps, business, &entity)

	deps.st.On("GetBusiness", mock.Anything, business.ID).Return(business, nil).Once()

	_, err := p.PublishReviewed(context.Background(), *stored, entity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires crawled")
	deps.st.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.wd.AssertNotCalled(t, "PublishEntity", mock.Anything, mock.Anything, mock.Anything)
}
