package model

import (
	"encoding/json"
	"time"
)

// Business is the aggregate root of the CFP pipeline. Only the orchestrator
// mutates Status; all other layers read it.
type Business struct {
	ID                  string         `json:"id"`
	TeamID              string         `json:"team_id"`
	Name                string         `json:"name"`
	URL                 string         `json:"url"`
	Status              BusinessStatus `json:"status"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	CrawlData           *CrawlData     `json:"crawl_data,omitempty"`
	WikidataQID         *string        `json:"wikidata_qid,omitempty"`
	WikidataPublishedAt *time.Time     `json:"wikidata_published_at,omitempty"`
	AutomationEnabled   bool           `json:"automation_enabled"`
	LastCrawledAt       *time.Time     `json:"last_crawled_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// IsPublished reports CFP completion. A business with a fingerprint but no
// QID is not complete.
func (b *Business) IsPublished() bool {
	return b.Status == StatusPublished && b.WikidataQID != nil
}

// CrawlData is the normalized snapshot produced by a successful crawl.
type CrawlData struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Location    Location  `json:"location"`
	SocialLinks []string  `json:"social_links,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PageCount   int       `json:"page_count"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// Location holds the business's physical address, as far as the crawl
// could determine it.
type Location struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// CrawlJobStatus tracks a single crawl attempt's lifecycle.
type CrawlJobStatus string

const (
	CrawlJobQueued    CrawlJobStatus = "queued"
	CrawlJobRunning   CrawlJobStatus = "running"
	CrawlJobCompleted CrawlJobStatus = "completed"
	CrawlJobFailed    CrawlJobStatus = "failed"
)

// CrawlJob is one record per crawl attempt, append-only per business.
type CrawlJob struct {
	ID           string          `json:"id"`
	BusinessID   string          `json:"business_id"`
	JobType      string          `json:"job_type"`
	Status       CrawlJobStatus  `json:"status"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RunStatus is the outcome of one orchestrator invocation.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// PipelineRun records one orchestrator invocation and its per-stage outcomes.
type PipelineRun struct {
	ID         string        `json:"id"`
	BusinessID string        `json:"business_id"`
	Status     RunStatus     `json:"status"`
	Stages     []StageResult `json:"stages,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// StageResult is the outcome of a single pipeline stage within a run.
type StageResult struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
