package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/pkg/anthropic"
	"github.com/lumenreach/visibility-cli/pkg/websearch"
)

func testConfig() *config.Config {
	return &config.Config{
		Search: config.SearchConfig{MaxResults: 10},
		Anthropic: config.AnthropicConfig{
			ScoringModels: []string{"model-a"},
			MaxTokens:     1024,
		},
		Pipeline: config.PipelineConfig{
			PublishThreshold: 0.7,
			ReviewThreshold:  0.4,
			MinNotableRefs:   2,
		},
	}
}

func TestDeriveAssessmentNotable(t *testing.T) {
	verdicts := []referenceVerdict{
		{Serious: true, PubliclyAvailable: true, Independent: true},
		{Serious: true, PubliclyAvailable: true, Independent: true},
		{Serious: true, PubliclyAvailable: false, Independent: true},
	}
	a := deriveAssessment(verdicts, 2, 0.4)

	assert.True(t, a.IsNotable)
	assert.Equal(t, 3, a.SeriousReferenceCount)
	assert.Equal(t, 2, a.PubliclyAvailableCount)
	assert.Equal(t, 3, a.IndependentCount)
	assert.Equal(t, "publish", a.Recommendation)
	// base = 1 (2 qualifying / min 2); partial = (1+1+2/3)/3 = 8/9
	assert.InDelta(t, 0.7+0.3*8.0/9.0, a.Confidence, 1e-9)
}

func TestDeriveAssessmentBorderline(t *testing.T) {
	verdicts := []referenceVerdict{
		{Serious: true, PubliclyAvailable: true, Independent: true},
		{Serious: true, PubliclyAvailable: true, Independent: false},
	}
	a := deriveAssessment(verdicts, 2, 0.4)

	assert.False(t, a.IsNotable)
	// base = 0.5 (1 qualifying / min 2); partial = (1 + 2/3)/2 = 5/6
	assert.InDelta(t, 0.35+0.25, a.Confidence, 1e-9)
	assert.Equal(t, "manual review", a.Recommendation)
}

func TestDeriveAssessmentInsufficient(t *testing.T) {
	verdicts := []referenceVerdict{
		{},
		{Serious: true},
	}
	a := deriveAssessment(verdicts, 2, 0.4)
	assert.False(t, a.IsNotable)
	assert.Less(t, a.Confidence, 0.4)
	assert.Equal(t, "insufficient references", a.Recommendation)
	// Confidence is continuous even when not notable.
	assert.Greater(t, a.Confidence, 0.0)
}

func TestAssessNotability(t *testing.T) {
	search := &mockSearchClient{}
	ai := &mockAnthropicClient{}
	business := testBusiness()

	search.On("Search", mock.Anything, "Acme Plumbing Portland").Return(&websearch.SearchResponse{
		Results: []websearch.Result{
			{URL: "https://news.example/acme-feature", Title: "Acme profiled", Snippet: "feature story"},
			{URL: "https://acmeplumbing.example/about", Title: "About us"},
			{URL: "https://reviews.example/acme", Title: "Acme reviews"},
		},
	}, nil).Once()

	// Only the two third-party references are scored; the business's own
	// site is skipped without a model call.
	verdict := `{"serious": true, "publicly_available": true, "independent": true}`
	ai.On("Query", mock.Anything, mock.Anything).
		Return(&anthropic.QueryResponse{Content: verdict}, nil).Times(2)

	a, err := AssessNotability(context.Background(), business, testConfig(), search, ai)
	require.NoError(t, err)

	assert.True(t, a.IsNotable)
	assert.Equal(t, 2, a.IndependentCount)
	ai.AssertNumberOfCalls(t, "Query", 2)
}

func TestAssessNotabilityNoReferences(t *testing.T) {
	search := &mockSearchClient{}
	search.On("Search", mock.Anything, mock.Anything).
		Return(&websearch.SearchResponse{}, nil).Once()

	a, err := AssessNotability(context.Background(), testBusiness(), testConfig(), search, &mockAnthropicClient{})
	require.NoError(t, err)
	assert.False(t, a.IsNotable)
	assert.Equal(t, 0.0, a.Confidence)
	assert.Equal(t, "insufficient references", a.Recommendation)
}

func TestAssessNotabilitySearchFailure(t *testing.T) {
	search := &mockSearchClient{}
	search.On("Search", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	_, err := AssessNotability(context.Background(), testBusiness(), testConfig(), search, &mockAnthropicClient{})
	assert.Error(t, err)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "acme.example", hostOf("https://www.acme.example/about?x=1"))
	assert.Equal(t, "acme.example", hostOf("http://acme.example"))
	assert.Equal(t, "", hostOf(""))
}
