// Package automation derives scheduling policy from a team's subscription
// tier and decides, per business, whether automated crawl or publish work is
// due. The decisions are pure; the periodic driver performs the I/O.
package automation

import (
	"time"

	"github.com/lumenreach/visibility-cli/internal/model"
)

// Config is the automation policy derived from a team. It is a value object
// computed on demand, never persisted.
type Config struct {
	CrawlFrequency       time.Duration
	FingerprintFrequency time.Duration
	AutoPublish          bool
}

// Enabled reports whether the tier grants any automation at all.
func (c Config) Enabled() bool {
	return c.CrawlFrequency > 0
}

const (
	daily  = 24 * time.Hour
	weekly = 7 * daily
)

// ConfigForTeam maps tier and subscription status to the automation policy.
// Teams that stopped paying keep their data but lose automation.
func ConfigForTeam(team *model.Team) Config {
	if team == nil || team.SubscriptionStatus != model.SubscriptionActive {
		return Config{}
	}
	switch team.Tier {
	case model.TierStarter:
		return Config{CrawlFrequency: weekly, FingerprintFrequency: weekly}
	case model.TierPro, model.TierAgency:
		return Config{CrawlFrequency: daily, FingerprintFrequency: daily, AutoPublish: true}
	default:
		return Config{}
	}
}

// ShouldAutoCrawl reports whether the business is due for an automated crawl:
// automation granted and enabled, no run currently working the business, and
// the last crawl is older than the tier's frequency (or never happened).
func ShouldAutoCrawl(business *model.Business, team *model.Team, now time.Time) bool {
	cfg := ConfigForTeam(team)
	if !cfg.Enabled() || !business.AutomationEnabled {
		return false
	}
	if business.Status.MidPipeline() {
		return false
	}
	// A published business holds a QID and never re-enters the pipeline.
	if business.Status == model.StatusPublished {
		return false
	}
	if business.LastCrawledAt == nil {
		return true
	}
	return now.Sub(*business.LastCrawledAt) >= cfg.CrawlFrequency
}

// ShouldAutoPublish reports whether the business is waiting on an automated
// publish: it reached crawled, carries no QID yet, the tier permits
// publishing, and no unresolved error blocks it.
func ShouldAutoPublish(business *model.Business, team *model.Team) bool {
	cfg := ConfigForTeam(team)
	if !cfg.AutoPublish || !business.AutomationEnabled {
		return false
	}
	if business.Status != model.StatusCrawled {
		return false
	}
	if business.WikidataQID != nil {
		return false
	}
	return business.ErrorMessage == ""
}
