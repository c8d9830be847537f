package pipeline

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/lumenreach/visibility-cli/internal/model"
)

// NameNormalizer maps a raw competitor name onto a deduplication key. Kept
// pluggable so the heuristic can be strengthened without changing the
// aggregation contract.
type NameNormalizer func(string) string

var corporateSuffixes = []string{
	"inc", "inc.", "incorporated",
	"llc", "llc.", "l.l.c.",
	"ltd", "ltd.", "limited",
	"corp", "corp.", "corporation",
	"co", "co.", "company",
}

var foldCaser = cases.Fold()

// NormalizeName is the default normalizer: case-fold, drop a leading article,
// strip trailing corporate suffixes, collapse whitespace.
func NormalizeName(name string) string {
	folded := foldCaser.String(name)
	folded = strings.Map(func(r rune) rune {
		if r == ',' {
			return ' '
		}
		return r
	}, folded)
	words := strings.Fields(folded)

	if len(words) > 1 && words[0] == "the" {
		words = words[1:]
	}
	for len(words) > 1 {
		last := words[len(words)-1]
		if !isCorporateSuffix(last) {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isCorporateSuffix(word string) bool {
	for _, s := range corporateSuffixes {
		if word == s {
			return true
		}
	}
	return false
}

type mergedCompetitor struct {
	displayName string
	mentions    int
	positions   []int
	withTarget  bool
}

// BuildLeaderboard dedups competitor sightings across all model observations
// and ranks them by mention count. totalQueries is the number of
// recommendation queries issued (one per scoring model). A nil normalizer
// uses NormalizeName.
func BuildLeaderboard(target string, results []model.LLMResult, totalQueries int, normalize NameNormalizer) *model.CompetitiveLeaderboard {
	if normalize == nil {
		normalize = NormalizeName
	}

	merged := make(map[string]*mergedCompetitor)
	var order []string

	var targetMentions int
	var targetPositions []int
	targetKey := normalize(target)

	for _, r := range results {
		if r.Mentioned {
			targetMentions++
			if r.Rank != nil {
				targetPositions = append(targetPositions, *r.Rank)
			}
		}
		for _, c := range r.Competitors {
			key := normalize(c.Name)
			if key == "" || key == targetKey {
				continue
			}
			entry, ok := merged[key]
			if !ok {
				entry = &mergedCompetitor{displayName: c.Name}
				merged[key] = entry
				order = append(order, key)
			}
			entry.mentions++
			if c.Position != nil {
				entry.positions = append(entry.positions, *c.Position)
			}
			entry.withTarget = entry.withTarget || c.WithTarget
		}
	}

	totalMentions := targetMentions
	for _, e := range merged {
		totalMentions += e.mentions
	}

	competitors := make([]model.CompetitorStanding, 0, len(merged))
	for _, key := range order {
		e := merged[key]
		standing := model.CompetitorStanding{
			Name:              e.displayName,
			MentionCount:      e.mentions,
			AvgPosition:       meanPosition(e.positions),
			AppearsWithTarget: e.withTarget,
		}
		if totalMentions > 0 {
			standing.MarketShare = int(math.Round(float64(e.mentions) / float64(totalMentions) * 100))
		}
		competitors = append(competitors, standing)
	}

	sort.SliceStable(competitors, func(i, j int) bool {
		if competitors[i].MentionCount != competitors[j].MentionCount {
			return competitors[i].MentionCount > competitors[j].MentionCount
		}
		return competitors[i].Name < competitors[j].Name
	})
	for i := range competitors {
		competitors[i].Rank = i + 1
	}

	targetRank := 1
	for _, c := range competitors {
		if c.MentionCount > targetMentions {
			targetRank++
		}
	}

	return &model.CompetitiveLeaderboard{
		TargetBusiness: model.TargetStanding{
			Name:         target,
			Rank:         targetRank,
			MentionCount: targetMentions,
			AvgPosition:  meanPosition(targetPositions),
		},
		Competitors:                competitors,
		TotalRecommendationQueries: totalQueries,
	}
}

func meanPosition(positions []int) *float64 {
	if len(positions) == 0 {
		return nil
	}
	var sum int
	for _, p := range positions {
		sum += p
	}
	mean := float64(sum) / float64(len(positions))
	return &mean
}
