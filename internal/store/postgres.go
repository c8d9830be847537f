package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lumenreach/visibility-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs, narrow enough for
// pgxmock to stand in during tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS teams (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	tier                TEXT NOT NULL DEFAULT 'free',
	subscription_status TEXT NOT NULL DEFAULT 'active',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS businesses (
	id                    TEXT PRIMARY KEY,
	team_id               TEXT NOT NULL REFERENCES teams(id),
	name                  TEXT NOT NULL,
	url                   TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	error_message         TEXT NOT NULL DEFAULT '',
	crawl_data            JSONB,
	wikidata_qid          TEXT,
	wikidata_published_at TIMESTAMPTZ,
	automation_enabled    BOOLEAN NOT NULL DEFAULT false,
	last_crawled_at       TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_businesses_team ON businesses(team_id);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id            TEXT PRIMARY KEY,
	business_id   TEXT NOT NULL REFERENCES businesses(id),
	job_type      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	progress      INTEGER NOT NULL DEFAULT 0,
	result        JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_crawl_jobs_business ON crawl_jobs(business_id, created_at DESC);

CREATE TABLE IF NOT EXISTS fingerprints (
	id                TEXT PRIMARY KEY,
	business_id       TEXT NOT NULL REFERENCES businesses(id),
	visibility_score  DOUBLE PRECISION NOT NULL,
	mention_rate      DOUBLE PRECISION NOT NULL,
	sentiment_score   DOUBLE PRECISION NOT NULL,
	accuracy_score    DOUBLE PRECISION NOT NULL,
	avg_rank_position DOUBLE PRECISION,
	llm_results       JSONB NOT NULL,
	leaderboard       JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_business ON fingerprints(business_id, created_at DESC);

CREATE TABLE IF NOT EXISTS wikidata_entities (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL REFERENCES businesses(id),
	qid              TEXT NOT NULL,
	entity_data      JSONB NOT NULL,
	published_to     TEXT NOT NULL,
	version          INTEGER NOT NULL,
	enrichment_level TEXT NOT NULL DEFAULT 'basic',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_wikidata_entities_business ON wikidata_entities(business_id, version DESC);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	status      TEXT NOT NULL DEFAULT 'running',
	stages      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crawl_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	data       JSONB NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateTeam(ctx context.Context, team *model.Team) error {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teams (id, name, tier, subscription_status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		team.ID, team.Name, team.Tier, team.SubscriptionStatus, team.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create team")
	}
	return nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, tier, subscription_status, created_at FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Tier, &t.SubscriptionStatus, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get team")
	}
	return &t, nil
}

func (s *PostgresStore) CreateBusiness(ctx context.Context, b *model.Business) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO businesses (id, team_id, name, url, status, automation_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.TeamID, b.Name, b.URL, b.Status, b.AutomationEnabled, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create business")
	}
	return nil
}

const businessColumns = `id, team_id, name, url, status, error_message, crawl_data, wikidata_qid, wikidata_published_at, automation_enabled, last_crawled_at, created_at, updated_at`

func scanBusiness(row pgx.Row) (*model.Business, error) {
	var b model.Business
	var crawlData []byte
	err := row.Scan(
		&b.ID, &b.TeamID, &b.Name, &b.URL, &b.Status, &b.ErrorMessage,
		&crawlData, &b.WikidataQID, &b.WikidataPublishedAt,
		&b.AutomationEnabled, &b.LastCrawledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(crawlData) > 0 {
		b.CrawlData = &model.CrawlData{}
		if err := json.Unmarshal(crawlData, b.CrawlData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal crawl data")
		}
	}
	return &b, nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
	b, err := scanBusiness(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get business")
	}
	return b, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE 1=1`
	args := []any{}
	i := 1
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", i)
		args = append(args, filter.Status)
		i++
	}
	if filter.TeamID != "" {
		query += fmt.Sprintf(" AND team_id = $%d", i)
		args = append(args, filter.TeamID)
		i++
	}
	if filter.AutomationOnly {
		query += " AND automation_enabled = true"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, filter.Limit)
		i++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", i)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses rows")
	}
	return out, nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to model.BusinessStatus) error {
	if !model.CanTransition(from, to) {
		return eris.Wrapf(ErrStatusConflict, "illegal transition %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET status = $1, error_message = '', updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: transition status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStatusConflict, "business %s not in %s", id, from)
	}
	return nil
}

func (s *PostgresStore) MarkError(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET status = $1, error_message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		model.StatusError, message, time.Now().UTC(), id, model.StatusPublished, model.StatusError,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark error")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStatusConflict, "business %s already terminal", id)
	}
	return nil
}

func (s *PostgresStore) SaveCrawlData(ctx context.Context, id string, data *model.CrawlData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal crawl data")
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET crawl_data = $1, last_crawled_at = $2, updated_at = $3 WHERE id = $4`,
		payload, now, now, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: save crawl data")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetPublished(ctx context.Context, id, qid string, publishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET status = $1, wikidata_qid = $2, wikidata_published_at = $3, error_message = '', updated_at = $4
		 WHERE id = $5 AND status = $6`,
		model.StatusPublished, qid, publishedAt, time.Now().UTC(), id, model.StatusGenerating,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set published")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStatusConflict, "business %s not in %s", id, model.StatusGenerating)
	}
	return nil
}

func (s *PostgresStore) CreateCrawlJob(ctx context.Context, businessID, jobType string) (*model.CrawlJob, error) {
	now := time.Now().UTC()
	job := &model.CrawlJob{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		JobType:    jobType,
		Status:     model.CrawlJobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_jobs (id, business_id, job_type, status, progress, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.BusinessID, job.JobType, job.Status, job.Progress, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create crawl job")
	}
	return job, nil
}

func (s *PostgresStore) UpdateCrawlJob(ctx context.Context, jobID string, status model.CrawlJobStatus, progress int, errorMessage string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET status = $1, progress = $2, error_message = $3, updated_at = $4 WHERE id = $5`,
		status, progress, errorMessage, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update crawl job")
	}
	return nil
}

func (s *PostgresStore) ListCrawlJobs(ctx context.Context, businessID string) ([]model.CrawlJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, job_type, status, progress, error_message, created_at, updated_at
		 FROM crawl_jobs WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list crawl jobs")
	}
	defer rows.Close()

	var out []model.CrawlJob
	for rows.Next() {
		var j model.CrawlJob
		if err := rows.Scan(&j.ID, &j.BusinessID, &j.JobType, &j.Status, &j.Progress, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan crawl job")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	if fp.ID == "" {
		fp.ID = uuid.NewString()
	}
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(fp.LLMResults)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal llm results")
	}
	var leaderboard []byte
	if fp.Leaderboard != nil {
		leaderboard, err = json.Marshal(fp.Leaderboard)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal leaderboard")
		}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO fingerprints (id, business_id, visibility_score, mention_rate, sentiment_score, accuracy_score, avg_rank_position, llm_results, leaderboard, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		fp.ID, fp.BusinessID, fp.VisibilityScore, fp.MentionRate, fp.SentimentScore,
		fp.AccuracyScore, fp.AvgRankPosition, results, leaderboard, fp.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create fingerprint")
	}
	return nil
}

func (s *PostgresStore) GetLatestFingerprint(ctx context.Context, businessID string) (*model.Fingerprint, error) {
	var fp model.Fingerprint
	var results, leaderboard []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, business_id, visibility_score, mention_rate, sentiment_score, accuracy_score, avg_rank_position, llm_results, leaderboard, created_at
		 FROM fingerprints WHERE business_id = $1 ORDER BY created_at DESC LIMIT 1`, businessID,
	).Scan(&fp.ID, &fp.BusinessID, &fp.VisibilityScore, &fp.MentionRate, &fp.SentimentScore,
		&fp.AccuracyScore, &fp.AvgRankPosition, &results, &leaderboard, &fp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest fingerprint")
	}
	if err := json.Unmarshal(results, &fp.LLMResults); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal llm results")
	}
	if len(leaderboard) > 0 {
		fp.Leaderboard = &model.CompetitiveLeaderboard{}
		if err := json.Unmarshal(leaderboard, fp.Leaderboard); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal leaderboard")
		}
	}
	return &fp, nil
}

func (s *PostgresStore) CreateWikidataEntity(ctx context.Context, e *model.WikidataEntity) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e.EntityData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entity data")
	}
	// Republishing appends a new version rather than mutating history.
	err = s.pool.QueryRow(ctx,
		`INSERT INTO wikidata_entities (id, business_id, qid, entity_data, published_to, version, enrichment_level, created_at)
		 VALUES ($1, $2, $3, $4, $5,
		         COALESCE((SELECT MAX(version) FROM wikidata_entities WHERE business_id = $2), 0) + 1,
		         $6, $7)
		 RETURNING version`,
		e.ID, e.BusinessID, e.QID, payload, e.PublishedTo, e.EnrichmentLevel, e.CreatedAt,
	).Scan(&e.Version)
	if err != nil {
		return eris.Wrap(err, "postgres: create wikidata entity")
	}
	return nil
}

func (s *PostgresStore) GetWikidataEntity(ctx context.Context, businessID string) (*model.WikidataEntity, error) {
	var e model.WikidataEntity
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, business_id, qid, entity_data, published_to, version, enrichment_level, created_at
		 FROM wikidata_entities WHERE business_id = $1 ORDER BY version DESC LIMIT 1`, businessID,
	).Scan(&e.ID, &e.BusinessID, &e.QID, &payload, &e.PublishedTo, &e.Version, &e.EnrichmentLevel, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get wikidata entity")
	}
	if err := json.Unmarshal(payload, &e.EntityData); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity data")
	}
	return &e, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, businessID string) (*model.PipelineRun, error) {
	now := time.Now().UTC()
	run := &model.PipelineRun{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Status:     model.RunStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, business_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.BusinessID, run.Status, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stages []model.StageResult, runErr string) error {
	payload, err := json.Marshal(stages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stages")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stages = $2, error = $3, updated_at = $4 WHERE id = $5`,
		status, payload, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete run")
	}
	return nil
}

func (s *PostgresStore) GetCachedCrawl(ctx context.Context, url string) (*model.CrawlData, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM crawl_cache WHERE url = $1 AND expires_at > now() ORDER BY crawled_at DESC LIMIT 1`, url,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached crawl")
	}
	var data model.CrawlData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached crawl")
	}
	return &data, nil
}

func (s *PostgresStore) SetCachedCrawl(ctx context.Context, url string, data *model.CrawlData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cached crawl")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawl_cache (id, url, data, crawled_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE SET data = $3, crawled_at = $4, expires_at = $5`,
		uuid.NewString(), url, payload, now, now.Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set cached crawl")
	}
	return nil
}
