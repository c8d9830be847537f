package pipeline

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/resilience"
	"github.com/lumenreach/visibility-cli/internal/store"
	"github.com/lumenreach/visibility-cli/pkg/crawler"
)

// CrawlResult is the outcome of the crawl stage.
type CrawlResult struct {
	Data      *model.CrawlData
	JobID     string
	FromCache bool
}

// CrawlStage creates a crawl job, invokes the crawl service with retries, and
// persists the normalized snapshot. Cache hits within the TTL skip the
// service call entirely.
func CrawlStage(ctx context.Context, business *model.Business, cfg config.CrawlerConfig, retry resilience.RetryConfig, st store.Store, client crawler.Client, breaker *resilience.Breaker) (*CrawlResult, error) {
	if err := validateURL(business.URL); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("business_id", business.ID), zap.String("url", business.URL))

	job, err := st.CreateCrawlJob(ctx, business.ID, "site_extract")
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create job")
	}

	fail := func(cause error) (*CrawlResult, error) {
		if updateErr := st.UpdateCrawlJob(ctx, job.ID, model.CrawlJobFailed, 0, cause.Error()); updateErr != nil {
			log.Warn("crawl: failed to mark job failed", zap.Error(updateErr))
		}
		return nil, cause
	}

	if cached, cacheErr := st.GetCachedCrawl(ctx, business.URL); cacheErr == nil {
		log.Info("crawl: cache hit", zap.Time("crawled_at", cached.CrawledAt))
		if err := persistCrawl(ctx, st, business.ID, job.ID, cached); err != nil {
			return fail(err)
		}
		return &CrawlResult{Data: cached, JobID: job.ID, FromCache: true}, nil
	}

	if err := st.UpdateCrawlJob(ctx, job.ID, model.CrawlJobRunning, 10, ""); err != nil {
		log.Warn("crawl: failed to mark job running", zap.Error(err))
	}

	retryCfg := retry
	retryCfg.OnRetry = resilience.RetryLogger("crawler", "extract")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*crawler.ExtractResponse, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*crawler.ExtractResponse, error) {
			callCtx := ctx
			if cfg.TimeoutSecs > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSecs)*time.Second)
				defer cancel()
			}
			return client.Extract(callCtx, crawler.ExtractRequest{
				URL:      business.URL,
				MaxPages: cfg.MaxPages,
				MaxDepth: cfg.MaxDepth,
			})
		})
	})
	if err != nil {
		return fail(eris.Wrap(err, "crawl: extract"))
	}
	if !resp.Success {
		return fail(eris.Errorf("crawl: service reported failure: %s", resp.Error))
	}

	data := profileToCrawlData(resp.Data)
	if err := persistCrawl(ctx, st, business.ID, job.ID, data); err != nil {
		return fail(err)
	}

	if cfg.CacheTTLHours > 0 {
		ttl := time.Duration(cfg.CacheTTLHours) * time.Hour
		if cacheErr := st.SetCachedCrawl(ctx, business.URL, data, ttl); cacheErr != nil {
			log.Warn("crawl: failed to cache result", zap.Error(cacheErr))
		}
	}

	log.Info("crawl: complete", zap.Int("pages", data.PageCount))
	return &CrawlResult{Data: data, JobID: job.ID}, nil
}

func persistCrawl(ctx context.Context, st store.Store, businessID, jobID string, data *model.CrawlData) error {
	if err := st.SaveCrawlData(ctx, businessID, data); err != nil {
		return eris.Wrap(err, "crawl: save data")
	}
	if err := st.UpdateCrawlJob(ctx, jobID, model.CrawlJobCompleted, 100, ""); err != nil {
		return eris.Wrap(err, "crawl: complete job")
	}
	return nil
}

func profileToCrawlData(p crawler.SiteProfile) *model.CrawlData {
	return &model.CrawlData{
		Name:        p.Name,
		Description: p.Description,
		Email:       p.Email,
		Phone:       p.Phone,
		Location: model.Location{
			Street:     p.Street,
			City:       p.City,
			Region:     p.Region,
			PostalCode: p.PostalCode,
			Country:    p.Country,
		},
		SocialLinks: p.SocialLinks,
		Tags:        p.Tags,
		PageCount:   p.PageCount,
		CrawledAt:   time.Now().UTC(),
	}
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "url", Reason: "empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Reason: "missing host"}
	}
	return nil
}
