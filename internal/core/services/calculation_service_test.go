package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/core/services"
	"github.com/SscSPs/fin_model_app/internal/platform/scriptrunner"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockFinancialDataReader serves prerequisite lookups.
type MockFinancialDataReader struct {
	mock.Mock
}

func (m *MockFinancialDataReader) GetByProjectID(ctx context.Context, section, projectID string) (*domain.SectionRecord, error) {
	args := m.Called(ctx, section, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SectionRecord), args.Error(1)
}

func (m *MockFinancialDataReader) GetAuditHistory(ctx context.Context, section, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, section, projectID, filter)
	return entriesOf(args.Get(0)), args.Error(1)
}

func (m *MockFinancialDataReader) GetAuditStats(ctx context.Context, section, projectID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, section, projectID)
	return statsOf(args.Get(0)), args.Error(1)
}

func (m *MockFinancialDataReader) GetFieldHistory(ctx context.Context, section, projectID, field string, limit int) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, section, projectID, field, limit)
	return entriesOf(args.Get(0)), args.Error(1)
}

// --- Tracker ---

type CalculationTrackerTestSuite struct {
	suite.Suite
	repo    *MockCalculationRunRepository
	service portssvc.CalculationTrackerSvcFacade
	ctx     context.Context
}

func (suite *CalculationTrackerTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.repo = new(MockCalculationRunRepository)
	suite.service = services.NewCalculationTrackerService(suite.repo, services.WithDefaultKeepRuns(7))
}

func (suite *CalculationTrackerTestSuite) TestCreateRun_DefaultsRunName() {
	projectID := uuid.NewString()
	suite.repo.On("CreateRun", suite.ctx, mock.MatchedBy(func(in domain.NewCalculationRun) bool {
		return len(in.RunName) > len("kpi_run_") && in.RunName[:len("kpi_run_")] == "kpi_run_" && in.InputData != nil
	})).Return(&domain.CalculationRun{ID: "r1", CalculationType: domain.CalculationKPI, Status: domain.CalculationRunning}, nil).Once()

	run, err := suite.service.CreateRun(suite.ctx, domain.NewCalculationRun{ProjectID: projectID, CalculationType: domain.CalculationKPI})
	suite.Require().NoError(err)
	suite.Equal(domain.CalculationRunning, run.Status)
	suite.repo.AssertExpectations(suite.T())
}

func (suite *CalculationTrackerTestSuite) TestCreateRun_RejectsUnknownType() {
	_, err := suite.service.CreateRun(suite.ctx, domain.NewCalculationRun{ProjectID: uuid.NewString(), CalculationType: "npv"})
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *CalculationTrackerTestSuite) TestCompleteRun_OnlyFromRunning() {
	suite.repo.On("CompleteRun", suite.ctx, "r1", map[string]any{}, int64(120)).
		Return(nil, fmt.Errorf("%w: run r1 is completed", apperrors.ErrInvalidState)).Once()

	_, err := suite.service.CompleteRun(suite.ctx, "r1", nil, 120)
	suite.ErrorIs(err, apperrors.ErrInvalidState)

	_, err = suite.service.CompleteRun(suite.ctx, "r1", nil, -1)
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *CalculationTrackerTestSuite) TestGetRun_LoadsChildren() {
	suite.repo.On("FindRunByID", suite.ctx, "r1").Return(&domain.CalculationRun{ID: "r1"}, nil).Once()
	suite.repo.On("ListIterations", suite.ctx, "r1").Return([]domain.CalculationIteration{{IterationNumber: 1}}, nil).Once()
	suite.repo.On("ListSchedules", suite.ctx, "r1").Return([]domain.CalculationSchedule{{ScheduleType: "debt"}}, nil).Once()

	run, err := suite.service.GetRun(suite.ctx, "r1")
	suite.Require().NoError(err)
	suite.Len(run.Iterations, 1)
	suite.Len(run.Schedules, 1)
}

func (suite *CalculationTrackerTestSuite) TestSaveSchedules_Validation() {
	month := 13
	_, err := suite.service.SaveSchedules(suite.ctx, "r1", []domain.ScheduleInput{{ScheduleType: "debt", MonthNumber: &month}})
	suite.ErrorIs(err, apperrors.ErrValidation)

	_, err = suite.service.SaveSchedules(suite.ctx, "r1", nil)
	suite.ErrorIs(err, apperrors.ErrValidation)

	suite.repo.On("FindRunByID", suite.ctx, "missing").Return(nil, apperrors.ErrNotFound).Once()
	_, err = suite.service.SaveSchedules(suite.ctx, "missing", []domain.ScheduleInput{{ScheduleType: "debt"}})
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *CalculationTrackerTestSuite) TestCompareRuns() {
	suite.repo.On("FindRunByID", suite.ctx, "a").Return(&domain.CalculationRun{ID: "a", OutputData: map[string]any{"irr": 0.1}}, nil).Once()
	suite.repo.On("FindRunByID", suite.ctx, "b").Return(&domain.CalculationRun{ID: "b", OutputData: map[string]any{"irr": 0.12}}, nil).Once()

	cmp, err := suite.service.CompareRuns(suite.ctx, "a", "b")
	suite.Require().NoError(err)
	suite.Require().Len(cmp.Differences, 1)
	suite.Equal("irr", cmp.Differences[0].Field)
}

func (suite *CalculationTrackerTestSuite) TestCleanOldRuns_UsesDefaultKeep() {
	projectID := uuid.NewString()
	suite.repo.On("DeleteOldRuns", suite.ctx, projectID, domain.CalculationDebtSchedule, 7).Return(int64(3), nil).Once()

	deleted, err := suite.service.CleanOldRuns(suite.ctx, projectID, domain.CalculationDebtSchedule, 0)
	suite.Require().NoError(err)
	suite.Equal(int64(3), deleted)
	suite.repo.AssertExpectations(suite.T())
}

func (suite *CalculationTrackerTestSuite) TestGetHistory_DefaultLimit() {
	projectID := uuid.NewString()
	suite.repo.On("ListRunsByProject", suite.ctx, projectID, domain.CalculationType(""), 20).Return([]domain.CalculationRun{}, nil).Once()

	_, err := suite.service.GetHistory(suite.ctx, projectID, "", 0)
	suite.Require().NoError(err)
	suite.repo.AssertExpectations(suite.T())
}

func TestCalculationTrackerTestSuite(t *testing.T) {
	suite.Run(t, new(CalculationTrackerTestSuite))
}

// --- Executor ---

type CalculationExecutorTestSuite struct {
	suite.Suite
	data      *MockFinancialDataReader
	repo      *MockCalculationRunRepository
	auditRepo *MockAuditLogRepository
	runner    *MockRunner
	tracker   *fakeTracker
	service   portssvc.CalculationExecutorSvc
	projectID string
	ctx       context.Context
}

func (suite *CalculationExecutorTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.data = new(MockFinancialDataReader)
	suite.repo = new(MockCalculationRunRepository)
	suite.auditRepo = new(MockAuditLogRepository)
	suite.runner = new(MockRunner)
	suite.tracker = &fakeTracker{}
	suite.projectID = uuid.NewString()
	suite.service = services.NewCalculationExecutorService(
		suite.data,
		services.NewCalculationTrackerService(suite.repo),
		suite.repo,
		services.NewAuditService(suite.auditRepo),
		suite.runner,
		services.WithAnalytics(suite.tracker),
	)
}

func (suite *CalculationExecutorTestSuite) request(t domain.CalculationType) portssvc.CalculationRequest {
	return portssvc.CalculationRequest{
		ProjectID:       suite.projectID,
		CalculationType: t,
		Params:          map[string]any{"horizon": 5},
		UserID:          "user-1",
		IPAddress:       "127.0.0.1",
	}
}

func (suite *CalculationExecutorTestSuite) expectDebtPrerequisites() {
	suite.data.On("GetByProjectID", suite.ctx, domain.SectionDebtStructure, suite.projectID).Return(&domain.SectionRecord{}, nil).Once()
	suite.data.On("GetByProjectID", suite.ctx, domain.SectionBalanceSheet, suite.projectID).Return(&domain.SectionRecord{}, nil).Once()
	suite.repo.On("CreateRun", suite.ctx, mock.AnythingOfType("domain.NewCalculationRun")).
		Return(&domain.CalculationRun{ID: "run-1", Status: domain.CalculationRunning}, nil).Once()
}

func (suite *CalculationExecutorTestSuite) TestExecute_Success() {
	suite.expectDebtPrerequisites()
	values := map[string]any{"total_interest": 42}
	suite.runner.On("Run", suite.ctx, "calculate_debt_schedule.py", suite.projectID, "run-1").
		Return(&scriptrunner.Result{Success: true, Values: values}, nil).Once()
	suite.repo.On("CompleteRun", mock.Anything, "run-1", values, mock.AnythingOfType("int64")).
		Return(&domain.CalculationRun{ID: "run-1", Status: domain.CalculationCompleted}, nil).Once()
	suite.auditRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.AuditLogEntry) bool {
		return e.TableName == "calculation_runs" && e.RecordID == "run-1" &&
			e.Action == domain.AuditUpdate && e.ChangeReason == "debt_schedule calculation completed"
	}), suite.projectID).Return(nil).Once()

	out, err := suite.service.Execute(suite.ctx, suite.request(domain.CalculationDebtSchedule))

	suite.Require().NoError(err)
	suite.Equal(domain.CalculationCompleted, out.Run.Status)
	suite.Equal(values, out.Summary)
	suite.runner.AssertExpectations(suite.T())
	suite.repo.AssertExpectations(suite.T())
	suite.auditRepo.AssertExpectations(suite.T())

	events := suite.tracker.Events()
	suite.Require().Len(events, 1)
	suite.Equal("calculation_executed", events[0].Event)
	suite.Equal("completed", events[0].Properties["status"])
}

func (suite *CalculationExecutorTestSuite) TestExecute_ScriptReportedFailure() {
	suite.expectDebtPrerequisites()
	suite.runner.On("Run", suite.ctx, "calculate_debt_schedule.py", suite.projectID, "run-1").
		Return(&scriptrunner.Result{Success: false, Error: "no tranches"}, fmt.Errorf("%w: no tranches", scriptrunner.ErrScriptFailed)).Once()
	suite.repo.On("FailRun", mock.Anything, "run-1", mock.MatchedBy(func(msg string) bool { return msg != "" }), mock.Anything).
		Return(&domain.CalculationRun{ID: "run-1", Status: domain.CalculationFailed}, nil).Once()

	_, err := suite.service.Execute(suite.ctx, suite.request(domain.CalculationDebtSchedule))

	suite.ErrorIs(err, apperrors.ErrCalculationFailed)
	suite.repo.AssertExpectations(suite.T())
	suite.auditRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *CalculationExecutorTestSuite) TestExecute_RunnerUnavailable() {
	suite.expectDebtPrerequisites()
	suite.runner.On("Run", suite.ctx, "calculate_debt_schedule.py", suite.projectID, "run-1").
		Return(nil, fmt.Errorf("%w: circuit breaker is open", scriptrunner.ErrScriptUnavailable)).Once()
	suite.repo.On("FailRun", mock.Anything, "run-1", mock.Anything, mock.Anything).
		Return(&domain.CalculationRun{ID: "run-1", Status: domain.CalculationFailed}, nil).Once()

	_, err := suite.service.Execute(suite.ctx, suite.request(domain.CalculationDebtSchedule))

	suite.ErrorIs(err, apperrors.ErrUnavailable)
}

func (suite *CalculationExecutorTestSuite) TestExecute_MissingSectionPrerequisite() {
	suite.data.On("GetByProjectID", suite.ctx, domain.SectionBalanceSheet, suite.projectID).Return(nil, apperrors.ErrNotFound).Once()

	_, err := suite.service.Execute(suite.ctx, suite.request(domain.CalculationDepreciationSchedule))

	suite.ErrorIs(err, apperrors.ErrPrerequisite)
	suite.repo.AssertNotCalled(suite.T(), "CreateRun", mock.Anything, mock.Anything)
	suite.runner.AssertNotCalled(suite.T(), "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *CalculationExecutorTestSuite) TestExecute_KPINeedsConsolidatedRuns() {
	suite.repo.On("FindLatestRun", suite.ctx, suite.projectID, domain.CalculationConsolidatedMonthly, domain.CalculationCompleted).
		Return(&domain.CalculationRun{ID: "m"}, nil).Once()
	suite.repo.On("FindLatestRun", suite.ctx, suite.projectID, domain.CalculationConsolidatedQuarterly, domain.CalculationCompleted).
		Return(nil, apperrors.ErrNotFound).Once()

	_, err := suite.service.Execute(suite.ctx, suite.request(domain.CalculationKPI))

	suite.ErrorIs(err, apperrors.ErrPrerequisite)
	suite.Contains(err.Error(), "consolidated_quarterly")
}

func (suite *CalculationExecutorTestSuite) TestExecute_UnknownType() {
	_, err := suite.service.Execute(suite.ctx, suite.request("npv"))
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *CalculationExecutorTestSuite) TestValidate_ListsEveryMissingPrerequisite() {
	suite.repo.On("FindLatestRun", suite.ctx, suite.projectID, domain.CalculationConsolidatedMonthly, domain.CalculationCompleted).
		Return(&domain.CalculationRun{ID: "m"}, nil).Once()
	suite.repo.On("FindLatestRun", suite.ctx, suite.projectID, domain.CalculationConsolidatedQuarterly, domain.CalculationCompleted).
		Return(nil, apperrors.ErrNotFound).Once()
	suite.repo.On("FindLatestRun", suite.ctx, suite.projectID, domain.CalculationConsolidatedYearly, domain.CalculationCompleted).
		Return(nil, apperrors.ErrNotFound).Once()

	check, err := suite.service.Validate(suite.ctx, suite.projectID, domain.CalculationKPI)
	suite.Require().NoError(err)
	suite.False(check.IsValid)
	suite.Require().Len(check.Missing, 2)
	suite.Contains(check.Missing[0], "consolidated_quarterly")
	suite.Contains(check.Missing[1], "consolidated_yearly")
	suite.repo.AssertNotCalled(suite.T(), "CreateRun", mock.Anything, mock.Anything)

	suite.data.On("GetByProjectID", suite.ctx, domain.SectionDebtStructure, suite.projectID).Return(&domain.SectionRecord{}, nil).Once()
	suite.data.On("GetByProjectID", suite.ctx, domain.SectionBalanceSheet, suite.projectID).Return(&domain.SectionRecord{}, nil).Once()
	check, err = suite.service.Validate(suite.ctx, suite.projectID, domain.CalculationDebtSchedule)
	suite.Require().NoError(err)
	suite.True(check.IsValid)
	suite.NotNil(check.Missing)
	suite.Empty(check.Missing)

	_, err = suite.service.Validate(suite.ctx, suite.projectID, "npv")
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.runner.AssertNotCalled(suite.T(), "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *CalculationExecutorTestSuite) TestRestore_CopiesOutputAndSchedules() {
	month := 3
	elapsed := int64(1200)
	output := map[string]any{"total_interest": 42}
	source := &domain.CalculationRun{
		ID:              "src",
		ProjectID:       suite.projectID,
		RunName:         "Base case",
		CalculationType: domain.CalculationDebtSchedule,
		InputData:       map[string]any{"horizon": 5},
		OutputData:      output,
		Status:          domain.CalculationCompleted,
		ExecutionTimeMs: &elapsed,
	}
	suite.repo.On("FindRunByID", suite.ctx, "src").Return(source, nil).Once()
	suite.repo.On("ListSchedules", suite.ctx, "src").Return([]domain.CalculationSchedule{
		{ID: 1, RunID: "src", ScheduleType: "debt", MonthNumber: &month, ScheduleData: map[string]any{"payment": 10}},
	}, nil).Once()
	suite.repo.On("CreateRun", suite.ctx, mock.MatchedBy(func(in domain.NewCalculationRun) bool {
		return in.RunName == "Base case (restored)" &&
			in.CalculationType == domain.CalculationDebtSchedule &&
			in.InputData["restored_from_run_id"] == "src" &&
			in.InputData["horizon"] == 5 &&
			in.CreatedBy == "user-1"
	})).Return(&domain.CalculationRun{ID: "run-2", Status: domain.CalculationRunning}, nil).Once()
	suite.repo.On("FindRunByID", suite.ctx, "run-2").Return(&domain.CalculationRun{ID: "run-2", Status: domain.CalculationRunning}, nil).Once()
	suite.repo.On("CreateSchedules", suite.ctx, "run-2", mock.MatchedBy(func(in []domain.ScheduleInput) bool {
		return len(in) == 1 && in[0].ScheduleType == "debt" && *in[0].MonthNumber == 3
	})).Return([]domain.CalculationSchedule{{ID: 2, RunID: "run-2"}}, nil).Once()
	suite.repo.On("CompleteRun", suite.ctx, "run-2", output, elapsed).
		Return(&domain.CalculationRun{ID: "run-2", Status: domain.CalculationCompleted, OutputData: output}, nil).Once()
	suite.auditRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.AuditLogEntry) bool {
		return e.TableName == "calculation_runs" && e.RecordID == "run-2" &&
			e.Action == domain.AuditInsert && e.NewValues["restored_from_run_id"] == "src"
	}), suite.projectID).Return(nil).Once()

	run, err := suite.service.Restore(suite.ctx, portssvc.RestoreRequest{ProjectID: suite.projectID, RunID: "src", UserID: "user-1"})

	suite.Require().NoError(err)
	suite.Equal("run-2", run.ID)
	suite.Equal(domain.CalculationCompleted, run.Status)
	suite.repo.AssertExpectations(suite.T())
	suite.auditRepo.AssertExpectations(suite.T())
}

func (suite *CalculationExecutorTestSuite) TestRestore_RejectsForeignOrUnfinishedRuns() {
	suite.repo.On("FindRunByID", suite.ctx, "other").
		Return(&domain.CalculationRun{ID: "other", ProjectID: uuid.NewString(), Status: domain.CalculationCompleted}, nil).Once()
	suite.repo.On("FindRunByID", suite.ctx, "failed").
		Return(&domain.CalculationRun{ID: "failed", ProjectID: suite.projectID, Status: domain.CalculationFailed}, nil).Once()

	_, err := suite.service.Restore(suite.ctx, portssvc.RestoreRequest{ProjectID: suite.projectID, RunID: "other"})
	suite.ErrorIs(err, apperrors.ErrNotFound)

	_, err = suite.service.Restore(suite.ctx, portssvc.RestoreRequest{ProjectID: suite.projectID, RunID: "failed"})
	suite.ErrorIs(err, apperrors.ErrInvalidState)

	suite.repo.AssertNotCalled(suite.T(), "CreateRun", mock.Anything, mock.Anything)
}

func TestCalculationExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(CalculationExecutorTestSuite))
}
