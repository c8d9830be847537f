package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/pipeline"
	"github.com/lumenreach/visibility-cli/internal/store"
)

// Runner submits one pipeline run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, businessID string, allowPublish bool) (*pipeline.RunResult, error)
}

// Directory is the read-only slice of the store the driver needs.
type Directory interface {
	ListBusinesses(ctx context.Context, filter store.BusinessFilter) ([]model.Business, error)
	GetTeam(ctx context.Context, id string) (*model.Team, error)
}

// Driver periodically sweeps all businesses, evaluates the automation policy
// for each, and submits due runs with bounded concurrency.
type Driver struct {
	cfg    *config.Config
	dir    Directory
	runner Runner
	cron   *cron.Cron
}

func NewDriver(cfg *config.Config, dir Directory, runner Runner) *Driver {
	return &Driver{cfg: cfg, dir: dir, runner: runner, cron: cron.New()}
}

// Start registers the sweep on the configured schedule and starts the
// scheduler in the background.
func (d *Driver) Start(ctx context.Context) error {
	_, err := d.cron.AddFunc(d.cfg.Automation.CronSpec, func() {
		if stats, sweepErr := d.Sweep(ctx); sweepErr != nil {
			zap.L().Error("automation: sweep failed", zap.Error(sweepErr))
		} else {
			zap.L().Info("automation: sweep complete",
				zap.Int("evaluated", stats.Evaluated),
				zap.Int("submitted", stats.Submitted),
				zap.Int("published", stats.Published),
				zap.Int("failed", stats.Failed),
			)
		}
	})
	if err != nil {
		return eris.Wrapf(err, "automation: invalid cron spec %q", d.cfg.Automation.CronSpec)
	}
	d.cron.Start()
	zap.L().Info("automation: driver started", zap.String("schedule", d.cfg.Automation.CronSpec))
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (d *Driver) Stop() {
	<-d.cron.Stop().Done()
}

// SweepStats summarizes one sweep over all businesses.
type SweepStats struct {
	Evaluated int
	Submitted int
	Published int
	Failed    int
}

// Sweep evaluates every business once and submits due runs onto a worker
// pool. Individual run failures are recorded in the stats, not propagated;
// single-flight rejections are expected and ignored.
func (d *Driver) Sweep(ctx context.Context) (SweepStats, error) {
	businesses, err := d.dir.ListBusinesses(ctx, store.BusinessFilter{})
	if err != nil {
		return SweepStats{}, eris.Wrap(err, "automation: list businesses")
	}

	now := time.Now().UTC()
	teams := make(map[string]*model.Team)
	stats := SweepStats{Evaluated: len(businesses)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := d.cfg.Automation.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i := range businesses {
		business := businesses[i]

		team, ok := teams[business.TeamID]
		if !ok {
			team, err = d.dir.GetTeam(ctx, business.TeamID)
			if err != nil {
				zap.L().Warn("automation: skipping business with unknown team",
					zap.String("business_id", business.ID),
					zap.String("team_id", business.TeamID),
					zap.Error(err))
				continue
			}
			teams[business.TeamID] = team
		}

		// A due crawl gets a full run; a crawled business waiting only on
		// its publish also goes through the pipeline, where the crawl cache
		// keeps the repeat fetch cheap.
		if !ShouldAutoCrawl(&business, team, now) && !ShouldAutoPublish(&business, team) {
			continue
		}
		allowPublish := ConfigForTeam(team).AutoPublish

		g.Go(func() error {
			result, runErr := d.runner.Run(gctx, business.ID, allowPublish)

			mu.Lock()
			defer mu.Unlock()
			if runErr != nil {
				var conflict *pipeline.ConflictError
				if errors.As(runErr, &conflict) {
					zap.L().Debug("automation: run already in flight",
						zap.String("business_id", business.ID))
					return nil
				}
				stats.Failed++
				zap.L().Warn("automation: run failed",
					zap.String("business_id", business.ID), zap.Error(runErr))
				return nil
			}
			stats.Submitted++
			if result.Gate != nil && result.Gate.Published {
				stats.Published++
			}
			return nil
		})
	}

	_ = g.Wait()
	return stats, nil
}
