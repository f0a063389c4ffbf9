package services

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
)

// CalculationRunReaderSvc defines read operations for calculation runs
type CalculationRunReaderSvc interface {
	// GetRun returns a run with its iterations and schedules.
	GetRun(ctx context.Context, runID string) (*domain.CalculationRun, error)

	// GetHistory lists runs of a project newest first. An empty calcType matches all types.
	GetHistory(ctx context.Context, projectID string, calcType domain.CalculationType, limit int) ([]domain.CalculationRun, error)

	// CompareRuns diffs the outputs of two runs.
	CompareRuns(ctx context.Context, runID1, runID2 string) (*domain.RunComparison, error)

	// GetStats aggregates runs of a project per type and status.
	GetStats(ctx context.Context, projectID string) ([]domain.CalculationStat, error)
}

// CalculationRunWriterSvc defines the run lifecycle
type CalculationRunWriterSvc interface {
	// CreateRun starts a run in the running state.
	CreateRun(ctx context.Context, in domain.NewCalculationRun) (*domain.CalculationRun, error)

	// CompleteRun moves a running run to completed.
	CompleteRun(ctx context.Context, runID string, output map[string]any, executionTimeMs int64) (*domain.CalculationRun, error)

	// FailRun moves a running run to failed.
	FailRun(ctx context.Context, runID string, errorMessage string, executionTimeMs *int64) (*domain.CalculationRun, error)

	// SaveIteration records one iteration of a run.
	SaveIteration(ctx context.Context, iteration domain.CalculationIteration) (*domain.CalculationIteration, error)

	// SaveSchedules records schedule rows of a run.
	SaveSchedules(ctx context.Context, runID string, schedules []domain.ScheduleInput) ([]domain.CalculationSchedule, error)

	// CleanOldRuns keeps the newest keep runs of a type and deletes the rest.
	CleanOldRuns(ctx context.Context, projectID string, calcType domain.CalculationType, keep int) (int64, error)
}

// CalculationTrackerSvcFacade combines all calculation run interfaces
type CalculationTrackerSvcFacade interface {
	CalculationRunReaderSvc
	CalculationRunWriterSvc
}

// CalculationRequest asks for one external calculation.
type CalculationRequest struct {
	ProjectID       string
	CalculationType domain.CalculationType
	RunName         string
	Params          map[string]any
	UserID          string
	IPAddress       string
}

// RestoreRequest asks to make an earlier completed run the latest result again.
type RestoreRequest struct {
	ProjectID string
	RunID     string
	UserID    string
	IPAddress string
}

// CalculationExecutorSvc runs external calculations and tracks them.
type CalculationExecutorSvc interface {
	// Execute checks prerequisites, runs the calculation and records its outcome.
	Execute(ctx context.Context, req CalculationRequest) (*domain.CalculationOutcome, error)

	// Validate reports missing prerequisites without running anything.
	Validate(ctx context.Context, projectID string, calcType domain.CalculationType) (*domain.PrerequisiteCheck, error)

	// Restore copies a completed run of the project into a new completed run.
	Restore(ctx context.Context, req RestoreRequest) (*domain.CalculationRun, error)
}
