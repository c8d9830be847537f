package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from BusinessStatus
		to   BusinessStatus
		want bool
	}{
		{"pending to crawling", StatusPending, StatusCrawling, true},
		{"crawling to crawled", StatusCrawling, StatusCrawled, true},
		{"crawled to generating", StatusCrawled, StatusGenerating, true},
		{"generating to published", StatusGenerating, StatusPublished, true},
		{"generating reverts to crawled", StatusGenerating, StatusCrawled, true},
		{"crawled re-crawl", StatusCrawled, StatusCrawling, true},
		{"error reset", StatusError, StatusPending, true},
		{"pending to error", StatusPending, StatusError, true},
		{"crawling to error", StatusCrawling, StatusError, true},
		{"generating to error", StatusGenerating, StatusError, true},

		{"no skip to published", StatusCrawling, StatusPublished, false},
		{"no pending to crawled", StatusPending, StatusCrawled, false},
		{"no pending to generating", StatusPending, StatusGenerating, false},
		{"published is terminal for error", StatusPublished, StatusError, false},
		{"no published to pending", StatusPublished, StatusPending, false},
		{"no published re-crawl", StatusPublished, StatusCrawling, false},
		{"no error to crawled", StatusError, StatusCrawled, false},
		{"no self transition", StatusCrawling, StatusCrawling, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPublishedHasNoSuccessors(t *testing.T) {
	// Leaving published would strand the QID on a non-published row.
	for _, to := range AllStatuses() {
		assert.False(t, CanTransition(StatusPublished, to), "published -> %s", to)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusPublished.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.True(t, StatusCrawled.IsTerminal())
	assert.False(t, StatusCrawling.IsTerminal())
	assert.False(t, StatusGenerating.IsTerminal())

	assert.True(t, StatusCrawling.MidPipeline())
	assert.True(t, StatusGenerating.MidPipeline())
	assert.False(t, StatusCrawled.MidPipeline())
	assert.False(t, StatusPending.MidPipeline())
}

func TestIsPublished(t *testing.T) {
	qid := "Q12345"
	b := &Business{Status: StatusPublished, WikidataQID: &qid}
	assert.True(t, b.IsPublished())

	// A fingerprinted business without a QID is never CFP-complete.
	b = &Business{Status: StatusCrawled}
	assert.False(t, b.IsPublished())

	b = &Business{Status: StatusPublished}
	assert.False(t, b.IsPublished())
}

func TestLeaderboardTotalMentions(t *testing.T) {
	lb := &CompetitiveLeaderboard{
		TargetBusiness: TargetStanding{Name: "Acme", MentionCount: 10},
		Competitors: []CompetitorStanding{
			{Name: "Rival", MentionCount: 5},
			{Name: "Other", MentionCount: 3},
		},
	}
	assert.Equal(t, 18, lb.TotalMentions())
}
