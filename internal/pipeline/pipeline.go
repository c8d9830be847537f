// Package pipeline implements the Crawl → Fingerprint → Publish orchestration
// for a single business: stage execution, status transitions, retry policy,
// and per-business single-flight locking.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/internal/manualstore"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/resilience"
	"github.com/lumenreach/visibility-cli/internal/store"
	"github.com/lumenreach/visibility-cli/pkg/anthropic"
	"github.com/lumenreach/visibility-cli/pkg/crawler"
	"github.com/lumenreach/visibility-cli/pkg/notion"
	"github.com/lumenreach/visibility-cli/pkg/websearch"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// Pipeline orchestrates the three CFP stages for one business at a time.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	manual    *manualstore.Store
	crawler   crawler.Client
	anthropic anthropic.Client
	search    websearch.Client
	wikidata  wikidata.Client
	notion    notion.Client
	mapping   wikidata.PropertyMapping

	flights        *flightRegistry
	crawlBreaker   *resilience.Breaker
	scoringBreaker *resilience.Breaker
}

// New creates a Pipeline with all dependencies. The notion client may be nil.
func New(
	cfg *config.Config,
	st store.Store,
	manual *manualstore.Store,
	crawlClient crawler.Client,
	aiClient anthropic.Client,
	searchClient websearch.Client,
	publisher wikidata.Client,
	notionClient notion.Client,
	mapping wikidata.PropertyMapping,
) *Pipeline {
	return &Pipeline{
		cfg:            cfg,
		store:          st,
		manual:         manual,
		crawler:        crawlClient,
		anthropic:      aiClient,
		search:         searchClient,
		wikidata:       publisher,
		notion:         notionClient,
		mapping:        mapping,
		flights:        newFlightRegistry(),
		crawlBreaker:   resilience.NewBreaker(resilience.BreakerConfig{}),
		scoringBreaker: resilience.NewBreaker(resilience.BreakerConfig{}),
	}
}

// RunResult summarizes one orchestrator invocation.
type RunResult struct {
	RunID       string
	Business    *model.Business
	Fingerprint *model.Fingerprint
	Gate        *GateResult
	Stages      []model.StageResult
}

// Run executes the full CFP pipeline for one business. allowPublish carries
// the automation/user permission into the publish gate. A second concurrent
// Run for the same business is rejected with ConflictError.
func (p *Pipeline) Run(ctx context.Context, businessID string, allowPublish bool) (*RunResult, error) {
	if !p.flights.acquire(businessID) {
		return nil, &ConflictError{BusinessID: businessID}
	}
	defer p.flights.release(businessID)

	business, err := p.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load business")
	}

	log := zap.L().With(zap.String("business_id", business.ID), zap.String("url", business.URL))
	log.Info("pipeline: starting run", zap.String("status", string(business.Status)))

	run, err := p.store.CreateRun(ctx, business.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	result := &RunResult{RunID: run.ID, Business: business}

	retryCfg := stageRetryConfig(p.cfg.Pipeline)
	stageTimeout := time.Duration(p.cfg.Pipeline.StageTimeoutSecs) * time.Second

	trackStage := func(name string, fn func(ctx context.Context) (map[string]any, error)) error {
		stageCtx := ctx
		if stageTimeout > 0 {
			var cancel context.CancelFunc
			stageCtx, cancel = context.WithTimeout(ctx, stageTimeout)
			defer cancel()
		}
		start := time.Now()
		meta, stageErr := fn(stageCtx)
		stage := model.StageResult{
			Name:       name,
			Status:     "complete",
			DurationMS: time.Since(start).Milliseconds(),
			Metadata:   meta,
		}
		if stageErr != nil {
			stage.Status = "failed"
			stage.Error = stageErr.Error()
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Error(stageErr))
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name), zap.Int64("duration_ms", stage.DurationMS))
		}
		result.Stages = append(result.Stages, stage)
		return stageErr
	}

	finish := func(status model.RunStatus, runErr error) {
		msg := ""
		if runErr != nil {
			msg = runErr.Error()
		}
		if err := p.store.CompleteRun(ctx, run.ID, status, result.Stages, msg); err != nil {
			log.Warn("pipeline: failed to record run outcome", zap.Error(err))
		}
	}

	// Optimistic status write before any I/O so observers see progress.
	if err := p.transitionToCrawling(ctx, business); err != nil {
		finish(model.RunStatusFailed, err)
		return result, err
	}

	// ===== Stage 1: Crawl =====
	var crawlResult *CrawlResult
	crawlErr := trackStage("crawl", func(ctx context.Context) (map[string]any, error) {
		cr, stageErr := CrawlStage(ctx, business, p.cfg.Crawler, retryCfg, p.store, p.crawler, p.crawlBreaker)
		if stageErr != nil {
			return nil, stageErr
		}
		crawlResult = cr
		return map[string]any{"pages": cr.Data.PageCount, "from_cache": cr.FromCache}, nil
	})
	if crawlErr != nil {
		p.failRun(ctx, business, crawlErr, log)
		finish(model.RunStatusFailed, crawlErr)
		return result, crawlErr
	}
	business.CrawlData = crawlResult.Data

	// ===== Stage 2: Fingerprint =====
	fingerprintErr := trackStage("fingerprint", func(ctx context.Context) (map[string]any, error) {
		fp, stageErr := FingerprintStage(ctx, business, p.cfg.Anthropic, retryCfg, p.store, p.anthropic, p.scoringBreaker)
		if stageErr != nil {
			return nil, stageErr
		}
		result.Fingerprint = fp
		return map[string]any{
			"visibility_score": fp.VisibilityScore,
			"models":           len(fp.LLMResults),
		}, nil
	})
	if fingerprintErr != nil {
		// Crawl data survives a fingerprint failure.
		p.failRun(ctx, business, fingerprintErr, log)
		finish(model.RunStatusFailed, fingerprintErr)
		return result, fingerprintErr
	}

	// Both crawl and fingerprint succeeded: one user-visible transition.
	if err := p.transition(ctx, business, model.StatusCrawling, model.StatusCrawled); err != nil {
		finish(model.RunStatusFailed, err)
		return result, err
	}

	// ===== Stage 3: Publish gate =====
	if err := p.transition(ctx, business, model.StatusCrawled, model.StatusGenerating); err != nil {
		finish(model.RunStatusFailed, err)
		return result, err
	}

	gateErr := trackStage("publish_gate", func(ctx context.Context) (map[string]any, error) {
		gate, stageErr := p.PublishGate(ctx, business, allowPublish)
		if gate != nil {
			result.Gate = gate
		}
		if stageErr != nil {
			return nil, stageErr
		}
		return map[string]any{
			"can_publish": gate.CanPublish,
			"published":   gate.Published,
			"is_notable":  gate.Notability.IsNotable,
		}, nil
	})

	// No business is ever left in generating: force published or crawled.
	if result.Gate == nil || !result.Gate.Published {
		if err := p.transition(ctx, business, model.StatusGenerating, model.StatusCrawled); err != nil {
			log.Error("pipeline: failed to return business to crawled", zap.Error(err))
		}
	}

	if gateErr != nil {
		// Gate failures leave the business at crawled, never error.
		finish(model.RunStatusFailed, gateErr)
		return result, gateErr
	}

	finish(model.RunStatusComplete, nil)
	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.String("final_status", string(business.Status)),
		zap.Bool("published", result.Gate.Published),
	)
	return result, nil
}

// transitionToCrawling moves the business into crawling from whichever legal
// predecessor it is in. Error rows must be reset to pending first. Published
// is terminal: the business already holds a QID and never re-enters the
// pipeline.
func (p *Pipeline) transitionToCrawling(ctx context.Context, business *model.Business) error {
	from := business.Status
	switch from {
	case model.StatusPending, model.StatusCrawled:
		return p.transition(ctx, business, from, model.StatusCrawling)
	case model.StatusError:
		if err := p.transition(ctx, business, model.StatusError, model.StatusPending); err != nil {
			return err
		}
		return p.transition(ctx, business, model.StatusPending, model.StatusCrawling)
	default:
		return eris.Wrapf(store.ErrStatusConflict, "cannot start run from status %s", from)
	}
}

// stageRetryConfig derives the provider retry policy from config, keeping
// package defaults for unset knobs.
func stageRetryConfig(cfg config.PipelineConfig) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		rc.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryBackoffSecs > 0 {
		rc.InitialBackoff = time.Duration(cfg.RetryBackoffSecs) * time.Second
	}
	return rc
}

func (p *Pipeline) transition(ctx context.Context, business *model.Business, from, to model.BusinessStatus) error {
	if err := p.store.TransitionStatus(ctx, business.ID, from, to); err != nil {
		return eris.Wrapf(err, "pipeline: transition %s -> %s", from, to)
	}
	business.Status = to
	return nil
}

// failRun records a non-retryable stage failure as error status. Published
// businesses are never downgraded; the store guards that.
func (p *Pipeline) failRun(ctx context.Context, business *model.Business, cause error, log *zap.Logger) {
	if err := p.store.MarkError(ctx, business.ID, cause.Error()); err != nil {
		log.Warn("pipeline: failed to record error status", zap.Error(err))
		return
	}
	business.Status = model.StatusError
	business.ErrorMessage = cause.Error()
}
