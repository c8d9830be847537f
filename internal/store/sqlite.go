package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lumenreach/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suitable for local
// single-operator use; the Postgres store is the deployment target.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS teams (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	tier                TEXT NOT NULL DEFAULT 'free',
	subscription_status TEXT NOT NULL DEFAULT 'active',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS businesses (
	id                    TEXT PRIMARY KEY,
	team_id               TEXT NOT NULL REFERENCES teams(id),
	name                  TEXT NOT NULL,
	url                   TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	error_message         TEXT NOT NULL DEFAULT '',
	crawl_data            TEXT,
	wikidata_qid          TEXT,
	wikidata_published_at DATETIME,
	automation_enabled    INTEGER NOT NULL DEFAULT 0,
	last_crawled_at       DATETIME,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id            TEXT PRIMARY KEY,
	business_id   TEXT NOT NULL REFERENCES businesses(id),
	job_type      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	progress      INTEGER NOT NULL DEFAULT 0,
	result        TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fingerprints (
	id                TEXT PRIMARY KEY,
	business_id       TEXT NOT NULL REFERENCES businesses(id),
	visibility_score  REAL NOT NULL,
	mention_rate      REAL NOT NULL,
	sentiment_score   REAL NOT NULL,
	accuracy_score    REAL NOT NULL,
	avg_rank_position REAL,
	llm_results       TEXT NOT NULL,
	leaderboard       TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS wikidata_entities (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL REFERENCES businesses(id),
	qid              TEXT NOT NULL,
	entity_data      TEXT NOT NULL,
	published_to     TEXT NOT NULL,
	version          INTEGER NOT NULL,
	enrichment_level TEXT NOT NULL DEFAULT 'basic',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	status      TEXT NOT NULL DEFAULT 'running',
	stages      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS crawl_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	data       TEXT NOT NULL,
	crawled_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTeam(ctx context.Context, team *model.Team) error {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (id, name, tier, subscription_status, created_at) VALUES (?, ?, ?, ?, ?)`,
		team.ID, team.Name, team.Tier, team.SubscriptionStatus, team.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create team")
	}
	return nil
}

func (s *SQLiteStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tier, subscription_status, created_at FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Tier, &t.SubscriptionStatus, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get team")
	}
	return &t, nil
}

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b *model.Business) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO businesses (id, team_id, name, url, status, automation_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TeamID, b.Name, b.URL, b.Status, b.AutomationEnabled, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create business")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBusinessSQLite(row rowScanner) (*model.Business, error) {
	var b model.Business
	var crawlData sql.NullString
	var qid sql.NullString
	var publishedAt, lastCrawledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.TeamID, &b.Name, &b.URL, &b.Status, &b.ErrorMessage,
		&crawlData, &qid, &publishedAt,
		&b.AutomationEnabled, &lastCrawledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if crawlData.Valid && crawlData.String != "" {
		b.CrawlData = &model.CrawlData{}
		if err := json.Unmarshal([]byte(crawlData.String), b.CrawlData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal crawl data")
		}
	}
	if qid.Valid {
		b.WikidataQID = &qid.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		b.WikidataPublishedAt = &t
	}
	if lastCrawledAt.Valid {
		t := lastCrawledAt.Time
		b.LastCrawledAt = &t
	}
	return &b, nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id)
	b, err := scanBusinessSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get business")
	}
	return b, nil
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.TeamID != "" {
		query += " AND team_id = ?"
		args = append(args, filter.TeamID)
	}
	if filter.AutomationOnly {
		query += " AND automation_enabled = 1"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		b, err := scanBusinessSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, id string, from, to model.BusinessStatus) error {
	if !model.CanTransition(from, to) {
		return eris.Wrapf(ErrStatusConflict, "illegal transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET status = ?, error_message = '', updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: transition status")
	}
	return requireRowChanged(res, fmt.Sprintf("business %s not in %s", id, from))
}

func (s *SQLiteStore) MarkError(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		model.StatusError, message, time.Now().UTC(), id, model.StatusPublished, model.StatusError,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark error")
	}
	return requireRowChanged(res, fmt.Sprintf("business %s already terminal", id))
}

func requireRowChanged(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrStatusConflict, msg)
	}
	return nil
}

func (s *SQLiteStore) SaveCrawlData(ctx context.Context, id string, data *model.CrawlData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal crawl data")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET crawl_data = ?, last_crawled_at = ?, updated_at = ? WHERE id = ?`,
		string(payload), now, now, id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save crawl data")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetPublished(ctx context.Context, id, qid string, publishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET status = ?, wikidata_qid = ?, wikidata_published_at = ?, error_message = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.StatusPublished, qid, publishedAt, time.Now().UTC(), id, model.StatusGenerating,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set published")
	}
	return requireRowChanged(res, fmt.Sprintf("business %s not in %s", id, model.StatusGenerating))
}

func (s *SQLiteStore) CreateCrawlJob(ctx context.Context, businessID, jobType string) (*model.CrawlJob, error) {
	now := time.Now().UTC()
	job := &model.CrawlJob{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		JobType:    jobType,
		Status:     model.CrawlJobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_jobs (id, business_id, job_type, status, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.BusinessID, job.JobType, job.Status, job.Progress, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create crawl job")
	}
	return job, nil
}

func (s *SQLiteStore) UpdateCrawlJob(ctx context.Context, jobID string, status model.CrawlJobStatus, progress int, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET status = ?, progress = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, progress, errorMessage, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update crawl job")
	}
	return nil
}

func (s *SQLiteStore) ListCrawlJobs(ctx context.Context, businessID string) ([]model.CrawlJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, job_type, status, progress, error_message, created_at, updated_at
		 FROM crawl_jobs WHERE business_id = ? ORDER BY created_at DESC`, businessID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list crawl jobs")
	}
	defer rows.Close()

	var out []model.CrawlJob
	for rows.Next() {
		var j model.CrawlJob
		if err := rows.Scan(&j.ID, &j.BusinessID, &j.JobType, &j.Status, &j.Progress, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan crawl job")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	if fp.ID == "" {
		fp.ID = uuid.NewString()
	}
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(fp.LLMResults)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal llm results")
	}
	var leaderboard any
	if fp.Leaderboard != nil {
		payload, err := json.Marshal(fp.Leaderboard)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal leaderboard")
		}
		leaderboard = string(payload)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (id, business_id, visibility_score, mention_rate, sentiment_score, accuracy_score, avg_rank_position, llm_results, leaderboard, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fp.ID, fp.BusinessID, fp.VisibilityScore, fp.MentionRate, fp.SentimentScore,
		fp.AccuracyScore, fp.AvgRankPosition, string(results), leaderboard, fp.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create fingerprint")
	}
	return nil
}

func (s *SQLiteStore) GetLatestFingerprint(ctx context.Context, businessID string) (*model.Fingerprint, error) {
	var fp model.Fingerprint
	var results string
	var leaderboard sql.NullString
	var avgRank sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, visibility_score, mention_rate, sentiment_score, accuracy_score, avg_rank_position, llm_results, leaderboard, created_at
		 FROM fingerprints WHERE business_id = ? ORDER BY created_at DESC LIMIT 1`, businessID,
	).Scan(&fp.ID, &fp.BusinessID, &fp.VisibilityScore, &fp.MentionRate, &fp.SentimentScore,
		&fp.AccuracyScore, &avgRank, &results, &leaderboard, &fp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest fingerprint")
	}
	if avgRank.Valid {
		fp.AvgRankPosition = &avgRank.Float64
	}
	if err := json.Unmarshal([]byte(results), &fp.LLMResults); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal llm results")
	}
	if leaderboard.Valid && leaderboard.String != "" {
		fp.Leaderboard = &model.CompetitiveLeaderboard{}
		if err := json.Unmarshal([]byte(leaderboard.String), fp.Leaderboard); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal leaderboard")
		}
	}
	return &fp, nil
}

func (s *SQLiteStore) CreateWikidataEntity(ctx context.Context, e *model.WikidataEntity) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e.EntityData)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entity data")
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM wikidata_entities WHERE business_id = ?`, e.BusinessID,
	).Scan(&current); err != nil {
		return eris.Wrap(err, "sqlite: current entity version")
	}
	e.Version = int(current.Int64) + 1

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wikidata_entities (id, business_id, qid, entity_data, published_to, version, enrichment_level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BusinessID, e.QID, string(payload), e.PublishedTo, e.Version, e.EnrichmentLevel, e.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create wikidata entity")
	}
	return nil
}

func (s *SQLiteStore) GetWikidataEntity(ctx context.Context, businessID string) (*model.WikidataEntity, error) {
	var e model.WikidataEntity
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, qid, entity_data, published_to, version, enrichment_level, created_at
		 FROM wikidata_entities WHERE business_id = ? ORDER BY version DESC LIMIT 1`, businessID,
	).Scan(&e.ID, &e.BusinessID, &e.QID, &payload, &e.PublishedTo, &e.Version, &e.EnrichmentLevel, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get wikidata entity")
	}
	if err := json.Unmarshal([]byte(payload), &e.EntityData); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity data")
	}
	return &e, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, businessID string) (*model.PipelineRun, error) {
	now := time.Now().UTC()
	run := &model.PipelineRun{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Status:     model.RunStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, business_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.BusinessID, run.Status, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stages []model.StageResult, runErr string) error {
	payload, err := json.Marshal(stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stages = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, string(payload), runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete run")
	}
	return nil
}

func (s *SQLiteStore) GetCachedCrawl(ctx context.Context, url string) (*model.CrawlData, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM crawl_cache WHERE url = ? AND expires_at > ? ORDER BY crawled_at DESC LIMIT 1`,
		url, time.Now().UTC(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached crawl")
	}
	var data model.CrawlData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached crawl")
	}
	return &data, nil
}

func (s *SQLiteStore) SetCachedCrawl(ctx context.Context, url string, data *model.CrawlData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cached crawl")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_cache (id, url, data, crawled_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET data = excluded.data, crawled_at = excluded.crawled_at, expires_at = excluded.expires_at`,
		uuid.NewString(), url, string(payload), now, now.Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set cached crawl")
	}
	return nil
}
