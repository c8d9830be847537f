package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/resilience"
	"github.com/lumenreach/visibility-cli/internal/store"
	"github.com/lumenreach/visibility-cli/pkg/anthropic"
)

const scoringSystemPrompt = `You simulate a consumer asking a language model for local business recommendations. Answer with strict JSON only, no prose.`

// modelObservation is the JSON shape each scoring model returns.
type modelObservation struct {
	Mentioned   bool    `json:"mentioned"`
	Rank        *int    `json:"rank"`
	Sentiment   float64 `json:"sentiment"`
	Accuracy    float64 `json:"accuracy"`
	Competitors []struct {
		Name       string `json:"name"`
		Position   *int   `json:"position"`
		WithTarget bool   `json:"with_target"`
	} `json:"competitors"`
}

// FingerprintStage queries each configured scoring model once, aggregates the
// observations into a Fingerprint, and persists it. Requires crawl data; the
// caller guarantees it is present.
func FingerprintStage(ctx context.Context, business *model.Business, cfg config.AnthropicConfig, retry resilience.RetryConfig, st store.Store, client anthropic.Client, breaker *resilience.Breaker) (*model.Fingerprint, error) {
	if business.CrawlData == nil {
		return nil, &ValidationError{Field: "crawl_data", Reason: "fingerprint requires a completed crawl"}
	}
	if len(cfg.ScoringModels) == 0 {
		return nil, &ValidationError{Field: "scoring_models", Reason: "no models configured"}
	}

	log := zap.L().With(zap.String("business_id", business.ID))
	prompt := buildScoringPrompt(business)

	results := make([]model.LLMResult, 0, len(cfg.ScoringModels))
	for _, scoringModel := range cfg.ScoringModels {
		retryCfg := retry
		retryCfg.OnRetry = resilience.RetryLogger("anthropic", "score")

		resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.QueryResponse, error) {
			return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*anthropic.QueryResponse, error) {
				callCtx := ctx
				if cfg.TimeoutSecs > 0 {
					var cancel context.CancelFunc
					callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSecs)*time.Second)
					defer cancel()
				}
				return client.Query(callCtx, anthropic.QueryRequest{
					Model:     scoringModel,
					Prompt:    prompt,
					System:    scoringSystemPrompt,
					MaxTokens: int64(cfg.MaxTokens),
				})
			})
		})
		if err != nil {
			return nil, eris.Wrapf(err, "fingerprint: query model %s", scoringModel)
		}

		obs, err := parseObservation(resp.Content)
		if err != nil {
			return nil, eris.Wrapf(err, "fingerprint: parse observation from %s", scoringModel)
		}
		results = append(results, observationToResult(scoringModel, resp.TokensUsed, obs))
	}

	fp := aggregateFingerprint(business.ID, results)
	fp.Leaderboard = BuildLeaderboard(targetName(business), results, len(results), nil)

	if err := st.CreateFingerprint(ctx, fp); err != nil {
		return nil, eris.Wrap(err, "fingerprint: persist")
	}

	log.Info("fingerprint: complete",
		zap.Float64("visibility_score", fp.VisibilityScore),
		zap.Float64("mention_rate", fp.MentionRate),
		zap.Int("models", len(results)),
	)
	return fp, nil
}

func buildScoringPrompt(business *model.Business) string {
	var b strings.Builder
	data := business.CrawlData
	fmt.Fprintf(&b, "A consumer asks for recommendations matching this business's category and area.\n\n")
	fmt.Fprintf(&b, "Target business: %s\n", targetName(business))
	if data.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", data.Description)
	}
	if len(data.Tags) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(data.Tags, ", "))
	}
	if data.Location.City != "" {
		loc := data.Location.City
		if data.Location.Region != "" {
			loc += ", " + data.Location.Region
		}
		fmt.Fprintf(&b, "Area: %s\n", loc)
	}
	b.WriteString(`
Produce the recommendation you would give, then report it as JSON:
{
  "mentioned": <true if the target business appears in your recommendation>,
  "rank": <1-based position of the target in your list, or null>,
  "sentiment": <0-1, tone toward the target when mentioned, else 0>,
  "accuracy": <0-1, how well your knowledge of the target matches the description above>,
  "competitors": [{"name": "...", "position": <1-based or null>, "with_target": <true if listed alongside the target>}]
}`)
	return b.String()
}

func targetName(business *model.Business) string {
	if business.CrawlData != nil && business.CrawlData.Name != "" {
		return business.CrawlData.Name
	}
	return business.Name
}

func parseObservation(content string) (*modelObservation, error) {
	var obs modelObservation
	if err := json.Unmarshal([]byte(cleanJSON(content)), &obs); err != nil {
		return nil, eris.Wrap(err, "unmarshal observation")
	}
	return &obs, nil
}

func observationToResult(scoringModel string, tokens int, obs *modelObservation) model.LLMResult {
	result := model.LLMResult{
		Model:      scoringModel,
		Mentioned:  obs.Mentioned,
		Rank:       obs.Rank,
		Sentiment:  clamp01(obs.Sentiment),
		Accuracy:   clamp01(obs.Accuracy),
		TokensUsed: tokens,
	}
	for _, c := range obs.Competitors {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		result.Competitors = append(result.Competitors, model.CompetitorMention{
			Name:       c.Name,
			Position:   c.Position,
			WithTarget: c.WithTarget,
		})
	}
	return result
}

// aggregateFingerprint folds per-model observations into the scored snapshot.
// Weights: mention 0.5, sentiment 0.2, accuracy 0.15, rank 0.15; when no
// model produced a rank the rank weight moves onto the mention component.
func aggregateFingerprint(businessID string, results []model.LLMResult) *model.Fingerprint {
	var mentioned int
	var sentimentSum, accuracySum float64
	var rankSum float64
	var rankCount int

	for _, r := range results {
		if r.Mentioned {
			mentioned++
			sentimentSum += r.Sentiment
		}
		accuracySum += r.Accuracy
		if r.Rank != nil {
			rankSum += float64(*r.Rank)
			rankCount++
		}
	}

	total := len(results)
	mentionRate := float64(mentioned) / float64(total) * 100

	var sentiment float64
	if mentioned > 0 {
		sentiment = sentimentSum / float64(mentioned)
	}
	accuracy := accuracySum / float64(total)

	var avgRank *float64
	mentionWeight := 0.65
	rankComponent := 0.0
	if rankCount > 0 {
		v := rankSum / float64(rankCount)
		avgRank = &v
		mentionWeight = 0.5
		rankComponent = 0.15 * rankToScore(v)
	}

	score := mentionWeight*mentionRate + 0.2*sentiment*100 + 0.15*accuracy*100 + rankComponent
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &model.Fingerprint{
		BusinessID:      businessID,
		VisibilityScore: score,
		MentionRate:     mentionRate,
		SentimentScore:  sentiment,
		AccuracyScore:   accuracy,
		AvgRankPosition: avgRank,
		LLMResults:      results,
	}
}

// rankToScore maps an average 1-based rank onto 0-100, rank 1 = 100, rank 11
// or worse = 0.
func rankToScore(avgRank float64) float64 {
	s := (11 - avgRank) / 10 * 100
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cleanJSON strips markdown fences and surrounding prose so model output can
// be unmarshaled directly.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
