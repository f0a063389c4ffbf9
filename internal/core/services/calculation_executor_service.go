package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/platform/analytics"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
	"github.com/SscSPs/fin_model_app/internal/platform/scriptrunner"
)

const calculationRunsTable = "calculation_runs"

var calculationScripts = map[domain.CalculationType]string{
	domain.CalculationDebtSchedule:          "calculate_debt_schedule.py",
	domain.CalculationDepreciationSchedule:  "calculate_depreciation_schedule.py",
	domain.CalculationConsolidatedMonthly:   "calculate_monthly_consolidated.py",
	domain.CalculationConsolidatedQuarterly: "calculate_quarterly_consolidated.py",
	domain.CalculationConsolidatedYearly:    "calculate_yearly_consolidated.py",
	domain.CalculationKPI:                   "calculate_kpis.py",
}

// prerequisite is what a calculation type needs before it can run.
type prerequisite struct {
	sections []string
	runs     []domain.CalculationType
}

var consolidationInputs = []domain.CalculationType{
	domain.CalculationDebtSchedule,
	domain.CalculationDepreciationSchedule,
}

var calculationPrerequisites = map[domain.CalculationType]prerequisite{
	domain.CalculationDebtSchedule:          {sections: []string{domain.SectionDebtStructure, domain.SectionBalanceSheet}},
	domain.CalculationDepreciationSchedule:  {sections: []string{domain.SectionBalanceSheet}},
	domain.CalculationConsolidatedMonthly:   {runs: consolidationInputs},
	domain.CalculationConsolidatedQuarterly: {runs: consolidationInputs},
	domain.CalculationConsolidatedYearly:    {runs: consolidationInputs},
	domain.CalculationKPI: {runs: []domain.CalculationType{
		domain.CalculationConsolidatedMonthly,
		domain.CalculationConsolidatedQuarterly,
		domain.CalculationConsolidatedYearly,
	}},
}

type calculationExecutorService struct {
	BaseService
	data      portssvc.FinancialDataReaderSvc
	tracker   portssvc.CalculationRunWriterSvc
	runs      portsrepo.CalculationRunReader
	audit     portssvc.AuditWriterSvc
	runner    scriptrunner.Runner
	metrics   *metrics.Metrics
	analytics analytics.Tracker
	now       func() time.Time
}

// CalculationExecutorOption configures the executor.
type CalculationExecutorOption func(*calculationExecutorService)

// WithCalculationMetrics records run outcomes and durations.
func WithCalculationMetrics(m *metrics.Metrics) CalculationExecutorOption {
	return func(s *calculationExecutorService) {
		s.metrics = m
	}
}

// WithAnalytics sends a calculation_executed event per run.
func WithAnalytics(t analytics.Tracker) CalculationExecutorOption {
	return func(s *calculationExecutorService) {
		s.analytics = t
	}
}

// NewCalculationExecutorService creates the calculation orchestrator.
func NewCalculationExecutorService(
	data portssvc.FinancialDataReaderSvc,
	tracker portssvc.CalculationRunWriterSvc,
	runs portsrepo.CalculationRunReader,
	audit portssvc.AuditWriterSvc,
	runner scriptrunner.Runner,
	opts ...CalculationExecutorOption,
) portssvc.CalculationExecutorSvc {
	s := &calculationExecutorService{
		data:    data,
		tracker: tracker,
		runs:    runs,
		audit:   audit,
		runner:  runner,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute checks prerequisites, runs the calculation script and records its outcome.
func (s *calculationExecutorService) Execute(ctx context.Context, req portssvc.CalculationRequest) (*domain.CalculationOutcome, error) {
	script, ok := calculationScripts[req.CalculationType]
	if !ok {
		return nil, apperrors.NewValidationError("calculationType", fmt.Sprintf("unsupported calculation type %q", req.CalculationType))
	}
	if err := s.checkPrerequisites(ctx, req.ProjectID, req.CalculationType); err != nil {
		return nil, err
	}

	run, err := s.tracker.CreateRun(ctx, domain.NewCalculationRun{
		ProjectID:       req.ProjectID,
		CalculationType: req.CalculationType,
		RunName:         req.RunName,
		InputData:       req.Params,
		CreatedBy:       req.UserID,
	})
	if err != nil {
		return nil, err
	}

	logger := s.GetLogger(ctx).With(
		slog.String("run_id", run.ID),
		slog.String("type", string(req.CalculationType)),
		slog.String("project_id", req.ProjectID),
	)

	start := s.now()
	res, runErr := s.runner.Run(ctx, script, req.ProjectID, run.ID)
	elapsed := s.now().Sub(start)
	elapsedMs := elapsed.Milliseconds()

	// the request context may already be cancelled by the script timeout
	bg := context.WithoutCancel(ctx)

	if runErr != nil {
		s.metrics.CalculationFinished(string(req.CalculationType), string(domain.CalculationFailed), elapsed)
		s.track(req, run.ID, string(domain.CalculationFailed), elapsedMs)
		if _, err := s.tracker.FailRun(bg, run.ID, runErr.Error(), &elapsedMs); err != nil {
			logger.Error("Failed to mark calculation run as failed", slog.String("error", err.Error()))
		}
		logger.Warn("Calculation failed", slog.String("error", runErr.Error()), slog.Int64("execution_time_ms", elapsedMs))

		if errors.Is(runErr, scriptrunner.ErrScriptFailed) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCalculationFailed, runErr)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, runErr)
	}

	completed, err := s.tracker.CompleteRun(bg, run.ID, res.Values, elapsedMs)
	if err != nil {
		return nil, err
	}
	s.metrics.CalculationFinished(string(req.CalculationType), string(domain.CalculationCompleted), elapsed)
	s.track(req, run.ID, string(domain.CalculationCompleted), elapsedMs)

	_, err = s.audit.LogChange(bg, domain.AuditChange{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		TableName: calculationRunsTable,
		RecordID:  run.ID,
		Action:    domain.AuditUpdate,
		OldValues: map[string]any{"status": string(domain.CalculationRunning)},
		NewValues: map[string]any{
			"status":            string(domain.CalculationCompleted),
			"execution_time_ms": elapsedMs,
		},
		ChangedFields: []string{"completed_at", "execution_time_ms", "output_data", "status"},
		ChangeReason:  fmt.Sprintf("%s calculation completed", req.CalculationType),
		IPAddress:     req.IPAddress,
	})
	if err != nil {
		// the run itself is already recorded as completed
		logger.Error("Failed to audit completed calculation", slog.String("error", err.Error()))
	}

	logger.Info("Calculation completed", slog.Int64("execution_time_ms", elapsedMs))
	return &domain.CalculationOutcome{Run: completed, Summary: res.Values}, nil
}

func (s *calculationExecutorService) checkPrerequisites(ctx context.Context, projectID string, calcType domain.CalculationType) error {
	missing, err := s.missingPrerequisites(ctx, projectID, calcType, true)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrPrerequisite, missing[0])
	}
	return nil
}

// missingPrerequisites describes each unmet prerequisite. With firstOnly it stops at the first one.
func (s *calculationExecutorService) missingPrerequisites(ctx context.Context, projectID string, calcType domain.CalculationType, firstOnly bool) ([]string, error) {
	var missing []string
	pre := calculationPrerequisites[calcType]
	for _, section := range pre.sections {
		if _, err := s.data.GetByProjectID(ctx, section, projectID); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			missing = append(missing, fmt.Sprintf("%s data is required before running %s", section, calcType))
			if firstOnly {
				return missing, nil
			}
		}
	}
	for _, required := range pre.runs {
		if _, err := s.runs.FindLatestRun(ctx, projectID, required, domain.CalculationCompleted); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			missing = append(missing, fmt.Sprintf("a completed %s run is required before running %s", required, calcType))
			if firstOnly {
				return missing, nil
			}
		}
	}
	return missing, nil
}

// Validate reports every missing prerequisite of calcType for the project.
func (s *calculationExecutorService) Validate(ctx context.Context, projectID string, calcType domain.CalculationType) (*domain.PrerequisiteCheck, error) {
	if _, ok := calculationScripts[calcType]; !ok {
		return nil, apperrors.NewValidationError("calculationType", fmt.Sprintf("unsupported calculation type %q", calcType))
	}
	missing, err := s.missingPrerequisites(ctx, projectID, calcType, false)
	if err != nil {
		s.LogError(ctx, err, "Failed to check calculation prerequisites",
			slog.String("project_id", projectID), slog.String("type", string(calcType)))
		return nil, err
	}
	if missing == nil {
		missing = []string{}
	}
	return &domain.PrerequisiteCheck{CalculationType: calcType, IsValid: len(missing) == 0, Missing: missing}, nil
}

// Restore copies the output and schedules of a completed run into a new completed run, which
// then counts as the latest result of its type.
func (s *calculationExecutorService) Restore(ctx context.Context, req portssvc.RestoreRequest) (*domain.CalculationRun, error) {
	source, err := s.runs.FindRunByID(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if source.ProjectID != req.ProjectID {
		return nil, fmt.Errorf("%w: calculation run %s does not belong to project %s", apperrors.ErrNotFound, req.RunID, req.ProjectID)
	}
	if source.Status != domain.CalculationCompleted {
		return nil, fmt.Errorf("%w: only completed runs can be restored, run %s is %s", apperrors.ErrInvalidState, req.RunID, source.Status)
	}
	schedules, err := s.runs.ListSchedules(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	input := make(map[string]any, len(source.InputData)+1)
	for k, v := range source.InputData {
		input[k] = v
	}
	input["restored_from_run_id"] = source.ID

	run, err := s.tracker.CreateRun(ctx, domain.NewCalculationRun{
		ProjectID:       req.ProjectID,
		CalculationType: source.CalculationType,
		RunName:         source.RunName + " (restored)",
		InputData:       input,
		CreatedBy:       req.UserID,
	})
	if err != nil {
		return nil, err
	}
	logger := s.GetLogger(ctx).With(
		slog.String("run_id", run.ID),
		slog.String("restored_from", source.ID),
		slog.String("project_id", req.ProjectID),
	)

	if len(schedules) > 0 {
		inputs := make([]domain.ScheduleInput, len(schedules))
		for i, sch := range schedules {
			inputs[i] = domain.ScheduleInput{
				ScheduleType: sch.ScheduleType,
				MonthNumber:  sch.MonthNumber,
				YearNumber:   sch.YearNumber,
				ScheduleData: sch.ScheduleData,
			}
		}
		if _, err := s.tracker.SaveSchedules(ctx, run.ID, inputs); err != nil {
			s.failRestore(ctx, logger, run.ID, err)
			return nil, err
		}
	}

	var elapsed int64
	if source.ExecutionTimeMs != nil {
		elapsed = *source.ExecutionTimeMs
	}
	restored, err := s.tracker.CompleteRun(ctx, run.ID, source.OutputData, elapsed)
	if err != nil {
		s.failRestore(ctx, logger, run.ID, err)
		return nil, err
	}

	_, err = s.audit.LogChange(context.WithoutCancel(ctx), domain.AuditChange{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		TableName: calculationRunsTable,
		RecordID:  run.ID,
		Action:    domain.AuditInsert,
		NewValues: map[string]any{
			"calculation_type":     string(source.CalculationType),
			"restored_from_run_id": source.ID,
			"schedules":            len(schedules),
		},
		ChangedFields: []string{"restored_from_run_id"},
		ChangeReason:  fmt.Sprintf("Restored from calculation run %s", source.ID),
		IPAddress:     req.IPAddress,
	})
	if err != nil {
		logger.Error("Failed to audit restored calculation", slog.String("error", err.Error()))
	}

	logger.Info("Calculation run restored", slog.Int("schedules", len(schedules)))
	return restored, nil
}

func (s *calculationExecutorService) failRestore(ctx context.Context, logger *slog.Logger, runID string, cause error) {
	if _, err := s.tracker.FailRun(context.WithoutCancel(ctx), runID, "restore failed: "+cause.Error(), nil); err != nil {
		logger.Error("Failed to mark restored run as failed", slog.String("error", err.Error()))
	}
}

func (s *calculationExecutorService) track(req portssvc.CalculationRequest, runID, status string, elapsedMs int64) {
	if s.analytics == nil {
		return
	}
	s.analytics.Enqueue(req.UserID, "calculation_executed", map[string]any{
		"project_id":        req.ProjectID,
		"calculation_type":  string(req.CalculationType),
		"run_id":            runID,
		"status":            status,
		"execution_time_ms": elapsedMs,
	})
}
