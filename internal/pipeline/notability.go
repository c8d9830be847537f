package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/pkg/anthropic"
	"github.com/lumenreach/visibility-cli/pkg/websearch"
)

const referenceSystemPrompt = `You evaluate whether a web reference supports a business's notability for a public knowledge graph. Answer with strict JSON only.`

type referenceVerdict struct {
	Serious           bool `json:"serious"`
	PubliclyAvailable bool `json:"publicly_available"`
	Independent       bool `json:"independent"`
}

// AssessNotability searches for independent references to the business and
// scores each one for seriousness, public availability, and independence.
// Insufficiency is an outcome, not an error: a zero-reference business gets
// a zero-confidence, non-notable assessment.
func AssessNotability(ctx context.Context, business *model.Business, cfg *config.Config, search websearch.Client, ai anthropic.Client) (*model.NotabilityAssessment, error) {
	name := targetName(business)
	query := name
	if business.CrawlData != nil && business.CrawlData.Location.City != "" {
		query += " " + business.CrawlData.Location.City
	}

	resp, err := search.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "notability: search references")
	}

	refs := resp.Results
	if max := cfg.Search.MaxResults; max > 0 && len(refs) > max {
		refs = refs[:max]
	}

	minRefs := cfg.Pipeline.MinNotableRefs
	if minRefs <= 0 {
		minRefs = 2
	}
	if len(refs) == 0 {
		return &model.NotabilityAssessment{Recommendation: "insufficient references"}, nil
	}

	ownHost := hostOf(business.URL)
	verdicts := make([]referenceVerdict, len(refs))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ref := range refs {
		g.Go(func() error {
			// A hit on the business's own site is never independent.
			if ownHost != "" && strings.Contains(strings.ToLower(ref.URL), ownHost) {
				return nil
			}
			verdict, scoreErr := scoreReference(gCtx, name, ref, cfg.Anthropic, ai)
			if scoreErr != nil {
				zap.L().Warn("notability: reference scoring failed",
					zap.String("url", ref.URL), zap.Error(scoreErr))
				return nil
			}
			mu.Lock()
			verdicts[i] = *verdict
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "notability: score references")
	}

	assessment := deriveAssessment(verdicts, minRefs, cfg.Pipeline.ReviewThreshold)
	zap.L().Info("notability: assessed",
		zap.String("business_id", business.ID),
		zap.Bool("is_notable", assessment.IsNotable),
		zap.Float64("confidence", assessment.Confidence),
		zap.Int("references", len(refs)),
	)
	return assessment, nil
}

func scoreReference(ctx context.Context, name string, ref websearch.Result, cfg config.AnthropicConfig, ai anthropic.Client) (*referenceVerdict, error) {
	if len(cfg.ScoringModels) == 0 {
		return nil, eris.New("notability: no scoring models configured")
	}
	prompt := fmt.Sprintf(`Business: %s
Reference URL: %s
Reference title: %s
Reference snippet: %s

Report as JSON:
{"serious": <true if this is substantive coverage, not a bare directory listing>,
 "publicly_available": <true if the content is publicly readable>,
 "independent": <true if the source is editorially independent of the business>}`,
		name, ref.URL, ref.Title, ref.Snippet)

	resp, err := ai.Query(ctx, anthropic.QueryRequest{
		Model:     cfg.ScoringModels[0],
		Prompt:    prompt,
		System:    referenceSystemPrompt,
		MaxTokens: 256,
	})
	if err != nil {
		return nil, err
	}

	var verdict referenceVerdict
	if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), &verdict); err != nil {
		return nil, eris.Wrap(err, "notability: unmarshal verdict")
	}
	return &verdict, nil
}

// deriveAssessment folds the reference verdicts into a confidence score:
// 70% weight on references clearing all three bars relative to the minimum,
// 30% on the average partial credit across references.
func deriveAssessment(verdicts []referenceVerdict, minRefs int, reviewThreshold float64) *model.NotabilityAssessment {
	a := &model.NotabilityAssessment{}
	var partialSum float64
	var qualifying int
	for _, v := range verdicts {
		credit := 0
		if v.Serious {
			a.SeriousReferenceCount++
			credit++
		}
		if v.PubliclyAvailable {
			a.PubliclyAvailableCount++
			credit++
		}
		if v.Independent {
			a.IndependentCount++
			credit++
		}
		partialSum += float64(credit) / 3
		if credit == 3 {
			qualifying++
		}
	}

	base := float64(qualifying) / float64(minRefs)
	if base > 1 {
		base = 1
	}
	partial := partialSum / float64(len(verdicts))

	a.IsNotable = qualifying >= minRefs
	a.Confidence = 0.7*base + 0.3*partial

	switch {
	case a.IsNotable:
		a.Recommendation = "publish"
	case a.Confidence >= reviewThreshold:
		a.Recommendation = "manual review"
	default:
		a.Recommendation = "insufficient references"
	}
	return a
}

func hostOf(rawURL string) string {
	u := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(rawURL), "https://"), "http://")
	if idx := strings.IndexAny(u, "/?#"); idx >= 0 {
		u = u[:idx]
	}
	return strings.TrimPrefix(u, "www.")
}
