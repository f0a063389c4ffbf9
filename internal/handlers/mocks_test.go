package handlers_test

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/stretchr/testify/mock"
)

// --- Mock FinancialDataService ---
type MockFinancialDataService struct {
	mock.Mock
}

func (m *MockFinancialDataService) GetByProjectID(ctx context.Context, section, projectID string) (*domain.SectionRecord, error) {
	args := m.Called(ctx, section, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SectionRecord), args.Error(1)
}

func (m *MockFinancialDataService) GetAuditHistory(ctx context.Context, section, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, section, projectID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func (m *MockFinancialDataService) GetAuditStats(ctx context.Context, section, projectID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, section, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditStat), args.Error(1)
}

func (m *MockFinancialDataService) GetFieldHistory(ctx context.Context, section, projectID, field string, limit int) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, section, projectID, field, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func (m *MockFinancialDataService) Upsert(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockFinancialDataService) Create(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockFinancialDataService) PartialUpdate(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockFinancialDataService) Delete(ctx context.Context, cmd domain.DeleteCommand) (int, error) {
	args := m.Called(ctx, cmd)
	return args.Int(0), args.Error(1)
}

var _ portssvc.FinancialDataSvcFacade = (*MockFinancialDataService)(nil)

// --- Mock AutoSaveService ---
type MockAutoSaveService struct {
	mock.Mock
}

func (m *MockAutoSaveService) AutoSave(ctx context.Context, req portssvc.AutoSaveRequest) (*domain.SaveStatus, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveStatus), args.Error(1)
}

func (m *MockAutoSaveService) ForceSave(ctx context.Context, req portssvc.AutoSaveRequest) (*domain.SaveResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveResult), args.Error(1)
}

func (m *MockAutoSaveService) CancelPendingSaves(projectID string) int {
	return m.Called(projectID).Int(0)
}

func (m *MockAutoSaveService) GetSaveStatus(projectID, section string) (*domain.SaveStatus, error) {
	args := m.Called(projectID, section)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SaveStatus), args.Error(1)
}

func (m *MockAutoSaveService) Shutdown() {
	m.Called()
}

var _ portssvc.AutoSaveSvc = (*MockAutoSaveService)(nil)

// --- Mock AuditService ---
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) GetRecordHistory(ctx context.Context, tableName, recordID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, tableName, recordID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditService) GetRecordStats(ctx context.Context, tableName, recordID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, tableName, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditStat), args.Error(1)
}

func (m *MockAuditService) GetProjectHistory(ctx context.Context, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, string, error) {
	args := m.Called(ctx, projectID, filter)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.String(1), args.Error(2)
}

func (m *MockAuditService) GetProjectStats(ctx context.Context, projectID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditStat), args.Error(1)
}

func (m *MockAuditService) CompareVersions(ctx context.Context, fromID, toID int64) (*domain.VersionComparison, error) {
	args := m.Called(ctx, fromID, toID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionComparison), args.Error(1)
}

func (m *MockAuditService) LogChange(ctx context.Context, change domain.AuditChange) (*domain.AuditLogEntry, error) {
	args := m.Called(ctx, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditService) LogChangeWith(ctx context.Context, repo portsrepo.AuditLogWriter, change domain.AuditChange) (*domain.AuditLogEntry, error) {
	args := m.Called(ctx, repo, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditService) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	args := m.Called(ctx, daysToKeep)
	return args.Get(0).(int64), args.Error(1)
}

var _ portssvc.AuditSvcFacade = (*MockAuditService)(nil)

// --- Mock CalculationTracker ---
type MockCalculationTracker struct {
	mock.Mock
}

func (m *MockCalculationTracker) GetRun(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationRun), args.Error(1)
}

func (m *MockCalculationTracker) GetHistory(ctx context.Context, projectID string, calcType domain.CalculationType, limit int) ([]domain.CalculationRun, error) {
	args := m.Called(ctx, projectID, calcType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationRun), args.Error(1)
}

func (m *MockCalculationTracker) CompareRuns(ctx context.Context, runID1, runID2 string) (*domain.RunComparison, error) {
	args := m.Called(ctx, runID1, runID2)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunComparison), args.Error(1)
}

func (m *MockCalculationTracker) GetStats(ctx context.Context, projectID string) ([]domain.CalculationStat, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationStat), args.Error(1)
}

func (m *MockCalculationTracker) CreateRun(ctx context.Context, in domain.NewCalculationRun) (*domain.CalculationRun, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationRun), args.Error(1)
}

func (m *MockCalculationTracker) CompleteRun(ctx context.Context, runID string, output map[string]any, executionTimeMs int64) (*domain.CalculationRun, error) {
	args := m.Called(ctx, runID, output, executionTimeMs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationRun), args.Error(1)
}

func (m *MockCalculationTracker) FailRun(ctx context.Context, runID string, errorMessage string, executionTimeMs *int64) (*domain.CalculationRun, error) {
	args := m.Called(ctx, runID, errorMessage, executionTimeMs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationRun), args.Error(1)
}

func (m *MockCalculationTracker) SaveIteration(ctx context.Context, iteration domain.CalculationIteration) (*domain.CalculationIteration, error) {
	args := m.Called(ctx, iteration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationIteration), args.Error(1)
}

func (m *MockCalculationTracker) SaveSchedules(ctx context.Context, runID string, schedules []domain.ScheduleInput) ([]domain.CalculationSchedule, error) {
	args := m.Called(ctx, runID, schedules)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationSchedule), args.Error(1)
}

func (m *MockCalculationTracker) CleanOldRuns(ctx context.Context, projectID string, calcType domain.CalculationType, keep int) (int64, error) {
	args := m.Called(ctx, projectID, calcType, keep)
	return args.Get(0).(int64), args.Error(1)
}

var _ portssvc.CalculationTrackerSvcFacade = (*MockCalculationTracker)(nil)

// --- Mock CalculationExecutor ---
type MockCalculationExecutor struct {
	mock.Mock
}

func (m *MockCalculationExecutor) Execute(ctx context.Context, req portssvc.CalculationRequest) (*domain.CalculationOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationOutcome), args.Error(1)
}

func (m *MockCalculationExecutor) Validate(ctx context.Context, projectID string, calcType domain.CalculationType) (*domain.PrerequisiteCheck, error) {
	args := m.Called(ctx, projectID, calcType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PrerequisiteCheck), args.Error(1)
}

func (m *MockCalculationExecutor) Restore(ctx context.Context, req portssvc.RestoreRequest) (*domain.CalculationRun, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationRun), args.Error(1)
}

var _ portssvc.CalculationExecutorSvc = (*MockCalculationExecutor)(nil)
