package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/visibility-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestTransitionStatusGuarded(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE businesses SET status = \$1`).
		WithArgs(model.StatusCrawling, pgxmock.AnyArg(), "biz-1", model.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.TransitionStatus(context.Background(), "biz-1", model.StatusPending, model.StatusCrawling)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusConflictWhenRowMoved(t *testing.T) {
	s, mock := newMockStore(t)

	// Another worker moved the row out of pending first.
	mock.ExpectExec(`UPDATE businesses SET status = \$1`).
		WithArgs(model.StatusCrawling, pgxmock.AnyArg(), "biz-1", model.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TransitionStatus(context.Background(), "biz-1", model.StatusPending, model.StatusCrawling)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestTransitionStatusRejectsIllegalEdge(t *testing.T) {
	s, _ := newMockStore(t)

	// No SQL should run for a transition the state machine forbids.
	err := s.TransitionStatus(context.Background(), "biz-1", model.StatusPending, model.StatusPublished)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestMarkErrorSkipsTerminalStatuses(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE businesses SET status = \$1, error_message = \$2`).
		WithArgs(model.StatusError, "crawl failed", pgxmock.AnyArg(), "biz-1", model.StatusPublished, model.StatusError).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkError(context.Background(), "biz-1", "crawl failed")
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestSetPublishedRequiresGenerating(t *testing.T) {
	s, mock := newMockStore(t)
	publishedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE businesses SET status = \$1, wikidata_qid = \$2`).
		WithArgs(model.StatusPublished, "Q123456", publishedAt, pgxmock.AnyArg(), "biz-1", model.StatusGenerating).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetPublished(context.Background(), "biz-1", "Q123456", publishedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBusinessNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM businesses WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(assert.AnError)

	_, err := s.GetBusiness(context.Background(), "missing")
	assert.Error(t, err)
}

func TestCreateWikidataEntityIncrementsVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO wikidata_entities`).
		WithArgs(pgxmock.AnyArg(), "biz-1", "Q99", pgxmock.AnyArg(), "test", "basic", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(3))

	e := &model.WikidataEntity{BusinessID: "biz-1", QID: "Q99", PublishedTo: "test", EnrichmentLevel: "basic"}
	err := s.CreateWikidataEntity(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Version)
}

func TestCreateRunReturnsRunningRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO pipeline_runs`).
		WithArgs(pgxmock.AnyArg(), "biz-1", model.RunStatusRunning, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NotEmpty(t, run.ID)
}
