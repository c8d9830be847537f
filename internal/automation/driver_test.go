package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/visibility-cli/internal/config"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/pipeline"
	"github.com/lumenreach/visibility-cli/internal/store"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListBusinesses(ctx context.Context, filter store.BusinessFilter) ([]model.Business, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Business), args.Error(1)
}

func (m *mockDirectory) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Team), args.Error(1)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, businessID string, allowPublish bool) (*pipeline.RunResult, error) {
	args := m.Called(ctx, businessID, allowPublish)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.RunResult), args.Error(1)
}

func driverConfig() *config.Config {
	return &config.Config{
		Automation: config.AutomationConfig{CronSpec: "0 * * * *", MaxConcurrent: 2},
	}
}

func TestSweepSubmitsDueBusinesses(t *testing.T) {
	dir := &mockDirectory{}
	runner := &mockRunner{}
	d := NewDriver(driverConfig(), dir, runner)

	businesses := []model.Business{
		{ID: "due-pro", TeamID: "pro", Status: model.StatusCrawled, AutomationEnabled: true},
		{ID: "free-rider", TeamID: "free", Status: model.StatusCrawled, AutomationEnabled: true},
	}
	dir.On("ListBusinesses", mock.Anything, store.BusinessFilter{}).Return(businesses, nil).Once()
	dir.On("GetTeam", mock.Anything, "pro").Return(activeTeam(model.TierPro), nil).Once()
	dir.On("GetTeam", mock.Anything, "free").Return(activeTeam(model.TierFree), nil).Once()
	runner.On("Run", mock.Anything, "due-pro", true).Return(&pipeline.RunResult{}, nil).Once()

	stats, err := d.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Evaluated)
	assert.Equal(t, 1, stats.Submitted)
	assert.Equal(t, 0, stats.Failed)
	runner.AssertNotCalled(t, "Run", mock.Anything, "free-rider", mock.Anything)
	runner.AssertExpectations(t)
}

func TestSweepTeamLookupIsCached(t *testing.T) {
	dir := &mockDirectory{}
	runner := &mockRunner{}
	d := NewDriver(driverConfig(), dir, runner)

	businesses := []model.Business{
		{ID: "a", TeamID: "pro", Status: model.StatusPending, AutomationEnabled: true},
		{ID: "b", TeamID: "pro", Status: model.StatusPending, AutomationEnabled: true},
	}
	dir.On("ListBusinesses", mock.Anything, mock.Anything).Return(businesses, nil).Once()
	dir.On("GetTeam", mock.Anything, "pro").Return(activeTeam(model.TierPro), nil).Once()
	runner.On("Run", mock.Anything, mock.Anything, true).Return(&pipeline.RunResult{}, nil).Times(2)

	stats, err := d.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Submitted)
	dir.AssertExpectations(t)
}

func TestSweepPublishOnlyBusiness(t *testing.T) {
	dir := &mockDirectory{}
	runner := &mockRunner{}
	d := NewDriver(driverConfig(), dir, runner)

	// Crawled an hour ago (not due daily), no QID: publish work is pending.
	recent := time.Now().UTC().Add(-time.Hour)
	businesses := []model.Business{
		{ID: "waiting", TeamID: "pro", Status: model.StatusCrawled, AutomationEnabled: true, LastCrawledAt: &recent},
	}
	dir.On("ListBusinesses", mock.Anything, mock.Anything).Return(businesses, nil).Once()
	dir.On("GetTeam", mock.Anything, "pro").Return(activeTeam(model.TierPro), nil).Once()
	runner.On("Run", mock.Anything, "waiting", true).
		Return(&pipeline.RunResult{Gate: &pipeline.GateResult{Published: true, QID: "Q42"}}, nil).Once()

	stats, err := d.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Submitted)
	assert.Equal(t, 1, stats.Published)
}

func TestSweepToleratesFailures(t *testing.T) {
	dir := &mockDirectory{}
	runner := &mockRunner{}
	d := NewDriver(driverConfig(), dir, runner)

	businesses := []model.Business{
		{ID: "breaks", TeamID: "pro", Status: model.StatusPending, AutomationEnabled: true},
		{ID: "busy", TeamID: "pro", Status: model.StatusPending, AutomationEnabled: true},
		{ID: "works", TeamID: "pro", Status: model.StatusPending, AutomationEnabled: true},
	}
	dir.On("ListBusinesses", mock.Anything, mock.Anything).Return(businesses, nil).Once()
	dir.On("GetTeam", mock.Anything, "pro").Return(activeTeam(model.TierPro), nil).Once()
	runner.On("Run", mock.Anything, "breaks", true).Return(nil, assert.AnError).Once()
	runner.On("Run", mock.Anything, "busy", true).
		Return(nil, &pipeline.ConflictError{BusinessID: "busy"}).Once()
	runner.On("Run", mock.Anything, "works", true).Return(&pipeline.RunResult{}, nil).Once()

	stats, err := d.Sweep(context.Background())
	require.NoError(t, err)

	// Hard failures count; single-flight rejections are routine.
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Submitted)
	runner.AssertExpectations(t)
}

func TestSweepSkipsUnknownTeam(t *testing.T) {
	dir := &mockDirectory{}
	runner := &mockRunner{}
	d := NewDriver(driverConfig(), dir, runner)

	businesses := []model.Business{
		{ID: "orphan", TeamID: "gone", Status: model.StatusPending, AutomationEnabled: true},
	}
	dir.On("ListBusinesses", mock.Anything, mock.Anything).Return(businesses, nil).Once()
	dir.On("GetTeam", mock.Anything, "gone").Return(nil, store.ErrNotFound).Once()

	stats, err := d.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Submitted)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	cfg := driverConfig()
	cfg.Automation.CronSpec = "not a schedule"
	d := NewDriver(cfg, &mockDirectory{}, &mockRunner{})

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron spec")
}
