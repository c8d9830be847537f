package model

import "time"

// Fingerprint is a scored snapshot of a business's visibility across
// language-model outputs. Immutable once created; the latest row (by
// CreatedAt) is the current fingerprint.
type Fingerprint struct {
	ID              string                  `json:"id"`
	BusinessID      string                  `json:"business_id"`
	VisibilityScore float64                 `json:"visibility_score"` // 0-100
	MentionRate     float64                 `json:"mention_rate"`     // 0-100
	SentimentScore  float64                 `json:"sentiment_score"`  // 0-1
	AccuracyScore   float64                 `json:"accuracy_score"`   // 0-1
	AvgRankPosition *float64                `json:"avg_rank_position,omitempty"`
	LLMResults      []LLMResult             `json:"llm_results"`
	Leaderboard     *CompetitiveLeaderboard `json:"competitive_leaderboard,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

// LLMResult is one model's observation of the business in a recommendation
// query.
type LLMResult struct {
	Model       string              `json:"model"`
	Mentioned   bool                `json:"mentioned"`
	Rank        *int                `json:"rank,omitempty"`
	Sentiment   float64             `json:"sentiment"` // 0-1
	Accuracy    float64             `json:"accuracy"`  // 0-1
	Competitors []CompetitorMention `json:"competitors,omitempty"`
	TokensUsed  int                 `json:"tokens_used"`
}

// CompetitorMention is a raw, un-deduplicated competitor sighting in a
// single model observation.
type CompetitorMention struct {
	Name       string `json:"name"`
	Position   *int   `json:"position,omitempty"`
	WithTarget bool   `json:"with_target"`
}

// CompetitiveLeaderboard ranks the target business against deduplicated
// competitors by mention frequency.
type CompetitiveLeaderboard struct {
	TargetBusiness             TargetStanding       `json:"target_business"`
	Competitors                []CompetitorStanding `json:"competitors"`
	TotalRecommendationQueries int                  `json:"total_recommendation_queries"`
}

// TargetStanding is the target business's own leaderboard entry. The target
// carries a mention rate over queries, not a market share.
type TargetStanding struct {
	Name         string   `json:"name"`
	Rank         int      `json:"rank"`
	MentionCount int      `json:"mention_count"`
	AvgPosition  *float64 `json:"avg_position,omitempty"`
}

// CompetitorStanding is one deduplicated competitor on the leaderboard.
type CompetitorStanding struct {
	Name              string   `json:"name"`
	Rank              int      `json:"rank"`
	MentionCount      int      `json:"mention_count"`
	AvgPosition       *float64 `json:"avg_position,omitempty"`
	AppearsWithTarget bool     `json:"appears_with_target"`
	MarketShare       int      `json:"market_share"` // integer percent of total mentions
}

// TotalMentions sums target and competitor mention counts.
func (l *CompetitiveLeaderboard) TotalMentions() int {
	total := l.TargetBusiness.MentionCount
	for _, c := range l.Competitors {
		total += c.MentionCount
	}
	return total
}
