package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lumenreach/visibility-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrStatusConflict is returned when a guarded status transition finds the
// business in a different state than expected, or the transition is illegal.
var ErrStatusConflict = eris.New("store: status conflict")

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Status         model.BusinessStatus `json:"status,omitempty"`
	TeamID         string               `json:"team_id,omitempty"`
	AutomationOnly bool                 `json:"automation_only,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
	Offset         int                  `json:"offset,omitempty"`
}

// Store defines the persistence contract for the CFP pipeline. Status is
// mutated only through the guarded transition methods so no caller can skip
// the state machine.
type Store interface {
	// Teams
	CreateTeam(ctx context.Context, team *model.Team) error
	GetTeam(ctx context.Context, id string) (*model.Team, error)

	// Businesses
	CreateBusiness(ctx context.Context, b *model.Business) error
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error)

	// TransitionStatus performs an atomic conditional update from the
	// expected status; ErrStatusConflict when the row is not in that state
	// or the transition is illegal.
	TransitionStatus(ctx context.Context, id string, from, to model.BusinessStatus) error
	// MarkError moves any non-terminal business to error with a cause.
	MarkError(ctx context.Context, id, message string) error
	// SaveCrawlData persists the crawl snapshot and stamps lastCrawledAt.
	SaveCrawlData(ctx context.Context, id string, data *model.CrawlData) error
	// SetPublished atomically transitions generating→published and records
	// the assigned QID and publish time.
	SetPublished(ctx context.Context, id, qid string, publishedAt time.Time) error

	// Crawl jobs (append-only history per business)
	CreateCrawlJob(ctx context.Context, businessID, jobType string) (*model.CrawlJob, error)
	UpdateCrawlJob(ctx context.Context, jobID string, status model.CrawlJobStatus, progress int, errorMessage string) error
	ListCrawlJobs(ctx context.Context, businessID string) ([]model.CrawlJob, error)

	// Fingerprints (immutable history, latest by created_at)
	CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error
	GetLatestFingerprint(ctx context.Context, businessID string) (*model.Fingerprint, error)

	// Wikidata entities (republish creates a new version)
	CreateWikidataEntity(ctx context.Context, e *model.WikidataEntity) error
	GetWikidataEntity(ctx context.Context, businessID string) (*model.WikidataEntity, error)

	// Pipeline runs
	CreateRun(ctx context.Context, businessID string) (*model.PipelineRun, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stages []model.StageResult, runErr string) error

	// Crawl cache
	GetCachedCrawl(ctx context.Context, url string) (*model.CrawlData, error)
	SetCachedCrawl(ctx context.Context, url string, data *model.CrawlData, ttl time.Duration) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
