package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/core/services"
	"github.com/SscSPs/fin_model_app/internal/platform/lock"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockFinancialDataWriter is a mock of the section write service.
type MockFinancialDataWriter struct {
	mock.Mock
}

func (m *MockFinancialDataWriter) Upsert(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockFinancialDataWriter) Create(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockFinancialDataWriter) PartialUpdate(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockFinancialDataWriter) Delete(ctx context.Context, cmd domain.DeleteCommand) (int, error) {
	args := m.Called(ctx, cmd)
	return args.Int(0), args.Error(1)
}

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string, time.Duration) (lock.Lock, error) {
	return nil, lock.ErrNotObtained
}

func savedAt(version int) *domain.SaveResult {
	return &domain.SaveResult{
		Record:          &domain.SectionRecord{AuditFields: domain.AuditFields{Version: version}},
		ChangesDetected: true,
		Action:          domain.AuditUpdate,
	}
}

// --- Suite ---

type AutoSaveSchedulerTestSuite struct {
	suite.Suite
	clock     *fakeClock
	writer    *MockFinancialDataWriter
	scheduler *services.AutoSaveScheduler
	failures  []domain.SaveFailure
	failMu    sync.Mutex
	projectID string
	ctx       context.Context
}

func (suite *AutoSaveSchedulerTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.clock = newFakeClock()
	suite.writer = new(MockFinancialDataWriter)
	suite.failures = nil
	suite.projectID = uuid.NewString()
	suite.scheduler = services.NewAutoSaveScheduler(suite.writer, nil,
		services.WithClock(suite.clock.Clock()),
		services.WithAutoSaveDelay(2*time.Second),
		services.WithAutoSaveMetrics(metrics.New()),
		services.WithFailureHandler(func(f domain.SaveFailure) {
			suite.failMu.Lock()
			defer suite.failMu.Unlock()
			suite.failures = append(suite.failures, f)
		}),
	)
}

func (suite *AutoSaveSchedulerTestSuite) TearDownTest() {
	suite.scheduler.Shutdown()
}

// amountField is the field each section's test payload writes.
func amountField(section string) string {
	switch section {
	case domain.SectionCashFlow:
		return "net_income"
	case domain.SectionProfitLoss:
		return "revenue"
	default:
		return "cash"
	}
}

func (suite *AutoSaveSchedulerTestSuite) request(section string, amount int) portssvc.AutoSaveRequest {
	return portssvc.AutoSaveRequest{
		ProjectID: suite.projectID,
		Section:   section,
		Data:      domain.FieldValues{amountField(section): amount},
		UserID:    "user-1",
	}
}

func cashIs(want int) func(domain.UpsertCommand) bool {
	return func(cmd domain.UpsertCommand) bool {
		return cmd.Data["cash"] == want
	}
}

// hookLocker runs before ahead of the first Obtain only, then behaves like a local locker.
// before may obtain locks itself.
type hookLocker struct {
	inner  *lock.LocalLocker
	before func()
	mu     sync.Mutex
	fired  bool
}

func (h *hookLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	h.mu.Lock()
	run := !h.fired
	h.fired = true
	h.mu.Unlock()
	if run && h.before != nil {
		h.before()
	}
	return h.inner.Obtain(ctx, key, ttl)
}

// --- Test Cases ---

func (suite *AutoSaveSchedulerTestSuite) TestAutoSave_CoalescesBurstIntoLatestPayload() {
	suite.writer.On("Upsert", mock.Anything, mock.MatchedBy(cashIs(5))).Return(savedAt(2), nil).Once()

	for i := 1; i <= 5; i++ {
		status, err := suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, i))
		suite.Require().NoError(err)
		suite.True(status.Pending)
		suite.Equal(int64(2000), status.RemainingMs)
		suite.clock.Advance(500 * time.Millisecond)
	}
	suite.writer.AssertNotCalled(suite.T(), "Upsert", mock.Anything, mock.Anything)
	suite.Equal(1, suite.scheduler.PendingCount())

	suite.clock.Advance(1500 * time.Millisecond)

	suite.writer.AssertNumberOfCalls(suite.T(), "Upsert", 1)
	suite.writer.AssertExpectations(suite.T())
	suite.Equal(0, suite.scheduler.PendingCount())
	suite.Equal(0, suite.clock.Armed())
}

func (suite *AutoSaveSchedulerTestSuite) TestForceSave_DiscardsPendingPayload() {
	suite.writer.On("Upsert", mock.Anything, mock.MatchedBy(cashIs(99))).Return(savedAt(3), nil).Once()

	_, err := suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	suite.clock.Advance(time.Second)

	res, err := suite.scheduler.ForceSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 99))
	suite.Require().NoError(err)
	suite.Equal(3, res.Record.Version)

	suite.clock.Advance(10 * time.Second)
	suite.writer.AssertNumberOfCalls(suite.T(), "Upsert", 1)
	suite.writer.AssertExpectations(suite.T())
}

func (suite *AutoSaveSchedulerTestSuite) TestAutoSave_KeysAreIndependent() {
	suite.writer.On("Upsert", mock.Anything, mock.MatchedBy(func(cmd domain.UpsertCommand) bool {
		return cmd.Section == domain.SectionBalanceSheet
	})).Return(savedAt(1), nil).Once()
	suite.writer.On("Upsert", mock.Anything, mock.MatchedBy(func(cmd domain.UpsertCommand) bool {
		return cmd.Section == domain.SectionCashFlow
	})).Return(savedAt(1), nil).Once()

	_, err := suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	_, err = suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionCashFlow, 1))
	suite.Require().NoError(err)
	suite.Equal(2, suite.scheduler.PendingCount())

	suite.clock.Advance(2 * time.Second)
	suite.writer.AssertExpectations(suite.T())
	suite.Equal(0, suite.scheduler.PendingCount())
}

func (suite *AutoSaveSchedulerTestSuite) TestCancelPendingSaves_OnlyTouchesProject() {
	other := uuid.NewString()
	suite.writer.On("Upsert", mock.Anything, mock.MatchedBy(func(cmd domain.UpsertCommand) bool {
		return cmd.ProjectID == other
	})).Return(savedAt(1), nil).Once()

	_, err := suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	_, err = suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionCashFlow, 1))
	suite.Require().NoError(err)
	otherReq := suite.request(domain.SectionBalanceSheet, 1)
	otherReq.ProjectID = other
	_, err = suite.scheduler.AutoSave(suite.ctx, otherReq)
	suite.Require().NoError(err)

	suite.Equal(2, suite.scheduler.CancelPendingSaves(suite.projectID))
	suite.Equal(0, suite.scheduler.CancelPendingSaves(suite.projectID))

	suite.clock.Advance(2 * time.Second)
	suite.writer.AssertNumberOfCalls(suite.T(), "Upsert", 1)
	suite.writer.AssertExpectations(suite.T())
}

func (suite *AutoSaveSchedulerTestSuite) TestFlushLosingLockToForceSaveIsDropped() {
	suite.writer.On("Upsert", mock.Anything, mock.MatchedBy(cashIs(99))).Return(savedAt(7), nil).Once()

	var forced *domain.SaveResult
	var forceErr error
	var scheduler *services.AutoSaveScheduler
	locker := &hookLocker{inner: lock.NewLocalLocker()}
	locker.before = func() {
		// the timer already fired; a forced save gets the lock first
		forced, forceErr = scheduler.ForceSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 99))
	}
	scheduler = services.NewAutoSaveScheduler(suite.writer, nil,
		services.WithClock(suite.clock.Clock()),
		services.WithAutoSaveDelay(2*time.Second),
		services.WithLocker(locker),
		services.WithFailureHandler(func(f domain.SaveFailure) {
			suite.Failf("unexpected failure", "%v", f.Err)
		}),
	)
	defer scheduler.Shutdown()

	_, err := scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	suite.clock.Advance(2 * time.Second)

	suite.Require().NoError(forceErr)
	suite.Equal(7, forced.Record.Version)
	suite.writer.AssertNumberOfCalls(suite.T(), "Upsert", 1)
	suite.writer.AssertExpectations(suite.T())

	status, err := scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.Equal(7, status.LastVersion)
	suite.Empty(status.LastError)
}

func (suite *AutoSaveSchedulerTestSuite) TestSaveStatus_IdleKeysAreForgotten() {
	scheduler := services.NewAutoSaveScheduler(suite.writer, nil,
		services.WithClock(suite.clock.Clock()),
		services.WithStatusRetention(time.Minute),
	)
	defer scheduler.Shutdown()
	suite.writer.On("Upsert", mock.Anything, mock.Anything).Return(savedAt(1), nil)

	_, err := scheduler.ForceSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	status, err := scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.NotNil(status.LastSavedAt)

	suite.clock.Advance(2 * time.Minute)
	_, err = scheduler.ForceSave(suite.ctx, suite.request(domain.SectionCashFlow, 1))
	suite.Require().NoError(err)

	status, err = scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.Nil(status.LastSavedAt)
	suite.Zero(status.LastVersion)

	status, err = scheduler.GetSaveStatus(suite.projectID, domain.SectionCashFlow)
	suite.Require().NoError(err)
	suite.NotNil(status.LastSavedAt)

	suite.Equal(0, scheduler.CancelPendingSaves(suite.projectID))
	status, err = scheduler.GetSaveStatus(suite.projectID, domain.SectionCashFlow)
	suite.Require().NoError(err)
	suite.Nil(status.LastSavedAt, "cancelling a project forgets its statuses")
}

func (suite *AutoSaveSchedulerTestSuite) TestGetSaveStatus_ReportsPendingAndLastSave() {
	suite.writer.On("Upsert", mock.Anything, mock.Anything).Return(savedAt(4), nil).Once()

	status, err := suite.scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.False(status.Pending)
	suite.Nil(status.LastSavedAt)

	_, err = suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	suite.clock.Advance(500 * time.Millisecond)

	status, err = suite.scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.True(status.Pending)
	suite.Equal(int64(1500), status.RemainingMs)

	suite.clock.Advance(1500 * time.Millisecond)

	status, err = suite.scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.False(status.Pending)
	suite.Equal(4, status.LastVersion)
	suite.Require().NotNil(status.LastSavedAt)
	suite.Equal(suite.clock.Now(), *status.LastSavedAt)
	suite.Empty(status.LastError)

	_, err = suite.scheduler.GetSaveStatus(suite.projectID, "unknown")
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *AutoSaveSchedulerTestSuite) TestAutoSave_FailureIsObservableAndNotRetried() {
	suite.writer.On("Upsert", mock.Anything, mock.Anything).Return(nil, apperrors.ErrVersionConflict).Once()

	_, err := suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)
	suite.clock.Advance(2 * time.Second)
	suite.clock.Advance(10 * time.Second)

	suite.writer.AssertNumberOfCalls(suite.T(), "Upsert", 1)
	suite.Require().Len(suite.failures, 1)
	suite.Equal(suite.projectID, suite.failures[0].ProjectID)
	suite.Equal(domain.SectionBalanceSheet, suite.failures[0].Section)
	suite.ErrorIs(suite.failures[0].Err, apperrors.ErrVersionConflict)

	status, err := suite.scheduler.GetSaveStatus(suite.projectID, domain.SectionBalanceSheet)
	suite.Require().NoError(err)
	suite.Contains(status.LastError, "modified concurrently")
	suite.NotNil(status.LastErrorAt)
}

func (suite *AutoSaveSchedulerTestSuite) TestAutoSave_Validation() {
	_, err := suite.scheduler.AutoSave(suite.ctx, suite.request("unknown", 1))
	suite.ErrorIs(err, apperrors.ErrValidation)

	req := suite.request(domain.SectionBalanceSheet, 1)
	req.Data = domain.FieldValues{"not_a_field": 1}
	_, err = suite.scheduler.AutoSave(suite.ctx, req)
	suite.ErrorIs(err, apperrors.ErrValidation)

	req.ProjectID = ""
	_, err = suite.scheduler.ForceSave(suite.ctx, req)
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.Equal(0, suite.clock.Armed())
}

func (suite *AutoSaveSchedulerTestSuite) TestForceSave_LockBusy() {
	scheduler := services.NewAutoSaveScheduler(suite.writer, nil,
		services.WithClock(suite.clock.Clock()),
		services.WithLocker(busyLocker{}),
	)
	defer scheduler.Shutdown()

	_, err := scheduler.ForceSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.ErrorIs(err, apperrors.ErrUnavailable)
	suite.writer.AssertNotCalled(suite.T(), "Upsert", mock.Anything, mock.Anything)
}

func (suite *AutoSaveSchedulerTestSuite) TestShutdown_StopsTimers() {
	_, err := suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 1))
	suite.Require().NoError(err)

	suite.scheduler.Shutdown()
	suite.Equal(0, suite.clock.Armed())
	suite.clock.Advance(5 * time.Second)
	suite.writer.AssertNotCalled(suite.T(), "Upsert", mock.Anything, mock.Anything)

	_, err = suite.scheduler.AutoSave(suite.ctx, suite.request(domain.SectionBalanceSheet, 2))
	suite.ErrorIs(err, apperrors.ErrUnavailable)
}

func TestAutoSaveSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(AutoSaveSchedulerTestSuite))
}
