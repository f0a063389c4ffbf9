package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/utils/changedetect"
)

const (
	defaultRunHistoryLimit = 20
	defaultKeepRuns        = 10
)

type calculationTrackerService struct {
	BaseService
	runRepo  portsrepo.CalculationRunRepositoryWithTx
	keepRuns int
	now      func() time.Time
}

// CalculationTrackerOption configures the tracker.
type CalculationTrackerOption func(*calculationTrackerService)

// WithDefaultKeepRuns sets how many runs CleanOldRuns keeps when no count is given.
func WithDefaultKeepRuns(n int) CalculationTrackerOption {
	return func(s *calculationTrackerService) {
		if n > 0 {
			s.keepRuns = n
		}
	}
}

// NewCalculationTrackerService creates the calculation run tracker.
func NewCalculationTrackerService(runRepo portsrepo.CalculationRunRepositoryWithTx, opts ...CalculationTrackerOption) portssvc.CalculationTrackerSvcFacade {
	s := &calculationTrackerService{
		runRepo:  runRepo,
		keepRuns: defaultKeepRuns,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateCalculationType(t domain.CalculationType) error {
	if !t.IsValid() {
		return apperrors.NewValidationError("calculationType", fmt.Sprintf("unsupported calculation type %q", t))
	}
	return nil
}

// CreateRun starts a run in the running state.
func (s *calculationTrackerService) CreateRun(ctx context.Context, in domain.NewCalculationRun) (*domain.CalculationRun, error) {
	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, apperrors.NewValidationError("projectId", "is required")
	}
	if err := validateCalculationType(in.CalculationType); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.RunName) == "" {
		in.RunName = fmt.Sprintf("%s_run_%s", in.CalculationType, s.now().UTC().Format(time.RFC3339))
	}
	if in.InputData == nil {
		in.InputData = map[string]any{}
	}

	run, err := s.runRepo.CreateRun(ctx, in)
	if err != nil {
		s.LogError(ctx, err, "Failed to create calculation run",
			slog.String("project_id", in.ProjectID), slog.String("type", string(in.CalculationType)))
		return nil, err
	}
	s.LogInfo(ctx, "Calculation run started",
		slog.String("run_id", run.ID), slog.String("type", string(run.CalculationType)))
	return run, nil
}

// CompleteRun moves a running run to completed.
func (s *calculationTrackerService) CompleteRun(ctx context.Context, runID string, output map[string]any, executionTimeMs int64) (*domain.CalculationRun, error) {
	if runID == "" {
		return nil, apperrors.NewValidationError("runId", "is required")
	}
	if executionTimeMs < 0 {
		return nil, apperrors.NewValidationError("executionTimeMs", "must not be negative")
	}
	if output == nil {
		output = map[string]any{}
	}
	run, err := s.runRepo.CompleteRun(ctx, runID, output, executionTimeMs)
	if err != nil {
		s.logTransitionError(ctx, err, runID, "complete")
		return nil, err
	}
	s.LogInfo(ctx, "Calculation run completed",
		slog.String("run_id", runID), slog.Int64("execution_time_ms", executionTimeMs))
	return run, nil
}

// FailRun moves a running run to failed.
func (s *calculationTrackerService) FailRun(ctx context.Context, runID string, errorMessage string, executionTimeMs *int64) (*domain.CalculationRun, error) {
	if runID == "" {
		return nil, apperrors.NewValidationError("runId", "is required")
	}
	if strings.TrimSpace(errorMessage) == "" {
		errorMessage = "calculation failed"
	}
	run, err := s.runRepo.FailRun(ctx, runID, errorMessage, executionTimeMs)
	if err != nil {
		s.logTransitionError(ctx, err, runID, "fail")
		return nil, err
	}
	s.LogInfo(ctx, "Calculation run failed",
		slog.String("run_id", runID), slog.String("error_message", errorMessage))
	return run, nil
}

func (s *calculationTrackerService) logTransitionError(ctx context.Context, err error, runID, transition string) {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrInvalidState) {
		s.GetLogger(ctx).Warn("Rejected calculation run transition",
			slog.String("run_id", runID), slog.String("transition", transition), slog.String("reason", err.Error()))
		return
	}
	s.LogError(ctx, err, "Failed to transition calculation run",
		slog.String("run_id", runID), slog.String("transition", transition))
}

// SaveIteration records one iteration of a run.
func (s *calculationTrackerService) SaveIteration(ctx context.Context, iteration domain.CalculationIteration) (*domain.CalculationIteration, error) {
	if iteration.RunID == "" {
		return nil, apperrors.NewValidationError("runId", "is required")
	}
	if iteration.IterationNumber <= 0 {
		return nil, apperrors.NewValidationError("iterationNumber", "must be a positive number")
	}
	if iteration.InputChanges == nil {
		iteration.InputChanges = map[string]any{}
	}
	if iteration.OutputChanges == nil {
		iteration.OutputChanges = map[string]any{}
	}
	return s.runRepo.CreateIteration(ctx, iteration)
}

// SaveSchedules records schedule rows of a run. The run must exist.
func (s *calculationTrackerService) SaveSchedules(ctx context.Context, runID string, schedules []domain.ScheduleInput) ([]domain.CalculationSchedule, error) {
	if runID == "" {
		return nil, apperrors.NewValidationError("runId", "is required")
	}
	if len(schedules) == 0 {
		return nil, apperrors.NewValidationError("schedules", "at least one schedule is required")
	}
	for i, sch := range schedules {
		if strings.TrimSpace(sch.ScheduleType) == "" {
			return nil, apperrors.NewValidationError(fmt.Sprintf("schedules[%d].scheduleType", i), "is required")
		}
		if sch.MonthNumber != nil && (*sch.MonthNumber < 1 || *sch.MonthNumber > 12) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("schedules[%d].monthNumber", i), "must be between 1 and 12")
		}
	}
	if _, err := s.runRepo.FindRunByID(ctx, runID); err != nil {
		return nil, err
	}
	return s.runRepo.CreateSchedules(ctx, runID, schedules)
}

// GetRun returns a run with its iterations and schedules.
func (s *calculationTrackerService) GetRun(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	run, err := s.runRepo.FindRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Iterations, err = s.runRepo.ListIterations(ctx, runID); err != nil {
		return nil, err
	}
	if run.Schedules, err = s.runRepo.ListSchedules(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

// GetHistory lists runs of a project newest first.
func (s *calculationTrackerService) GetHistory(ctx context.Context, projectID string, calcType domain.CalculationType, limit int) ([]domain.CalculationRun, error) {
	if calcType != "" {
		if err := validateCalculationType(calcType); err != nil {
			return nil, err
		}
	}
	return s.runRepo.ListRunsByProject(ctx, projectID, calcType, clampLimit(limit, defaultRunHistoryLimit))
}

// CompareRuns diffs the outputs of two runs.
func (s *calculationTrackerService) CompareRuns(ctx context.Context, runID1, runID2 string) (*domain.RunComparison, error) {
	if runID1 == "" || runID2 == "" {
		return nil, apperrors.NewValidationError("run1", "both run ids are required")
	}
	run1, err := s.runRepo.FindRunByID(ctx, runID1)
	if err != nil {
		return nil, err
	}
	run2, err := s.runRepo.FindRunByID(ctx, runID2)
	if err != nil {
		return nil, err
	}
	return &domain.RunComparison{
		Run1:        run1,
		Run2:        run2,
		Differences: changedetect.Diff(run1.OutputData, run2.OutputData),
	}, nil
}

// GetStats aggregates runs of a project per type and status.
func (s *calculationTrackerService) GetStats(ctx context.Context, projectID string) ([]domain.CalculationStat, error) {
	return s.runRepo.StatsByProject(ctx, projectID)
}

// CleanOldRuns keeps the newest keep runs of a type and deletes the rest.
func (s *calculationTrackerService) CleanOldRuns(ctx context.Context, projectID string, calcType domain.CalculationType, keep int) (int64, error) {
	if err := validateCalculationType(calcType); err != nil {
		return 0, err
	}
	if keep <= 0 {
		keep = s.keepRuns
	}
	deleted, err := s.runRepo.DeleteOldRuns(ctx, projectID, calcType, keep)
	if err != nil {
		s.LogError(ctx, err, "Failed to clean old calculation runs",
			slog.String("project_id", projectID), slog.String("type", string(calcType)))
		return 0, err
	}
	s.LogInfo(ctx, "Old calculation runs cleaned",
		slog.String("project_id", projectID),
		slog.String("type", string(calcType)),
		slog.Int("keep", keep),
		slog.Int64("deleted", deleted))
	return deleted, nil
}
