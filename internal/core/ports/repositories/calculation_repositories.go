package repositories

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// CalculationRunReader defines read operations for calculation runs
type CalculationRunReader interface {
	// FindRunByID retrieves a run without its children.
	FindRunByID(ctx context.Context, runID string) (*domain.CalculationRun, error)

	// FindLatestRun returns the newest run of a type in a given status, or ErrNotFound.
	FindLatestRun(ctx context.Context, projectID string, calcType domain.CalculationType, status domain.CalculationStatus) (*domain.CalculationRun, error)

	// ListRunsByProject lists runs newest first with their iteration count. An empty calcType matches all types.
	ListRunsByProject(ctx context.Context, projectID string, calcType domain.CalculationType, limit int) ([]domain.CalculationRun, error)

	// ListIterations lists the iterations of a run in iteration order.
	ListIterations(ctx context.Context, runID string) ([]domain.CalculationIteration, error)

	// ListSchedules lists the schedules of a run.
	ListSchedules(ctx context.Context, runID string) ([]domain.CalculationSchedule, error)

	// StatsByProject aggregates runs per type and status.
	StatsByProject(ctx context.Context, projectID string) ([]domain.CalculationStat, error)
}

// CalculationRunWriter defines write operations for calculation runs
type CalculationRunWriter interface {
	// CreateRun persists a new run in the running state.
	CreateRun(ctx context.Context, run domain.NewCalculationRun) (*domain.CalculationRun, error)

	// CompleteRun moves a running run to completed. Returns ErrInvalidState if it is not running.
	CompleteRun(ctx context.Context, runID string, output map[string]any, executionTimeMs int64) (*domain.CalculationRun, error)

	// FailRun moves a running run to failed. Returns ErrInvalidState if it is not running.
	FailRun(ctx context.Context, runID string, errorMessage string, executionTimeMs *int64) (*domain.CalculationRun, error)

	// CreateIteration persists one iteration of a run.
	CreateIteration(ctx context.Context, iteration domain.CalculationIteration) (*domain.CalculationIteration, error)

	// CreateSchedules persists schedule rows of a run.
	CreateSchedules(ctx context.Context, runID string, schedules []domain.ScheduleInput) ([]domain.CalculationSchedule, error)

	// DeleteOldRuns removes all but the newest keep runs of a type for a project.
	DeleteOldRuns(ctx context.Context, projectID string, calcType domain.CalculationType, keep int) (int64, error)
}

// CalculationRunRepositoryFacade combines all calculation run interfaces
type CalculationRunRepositoryFacade interface {
	CalculationRunReader
	CalculationRunWriter
}

// CalculationRunRepositoryWithTx extends CalculationRunRepositoryFacade with transaction capabilities
type CalculationRunRepositoryWithTx interface {
	CalculationRunRepositoryFacade
	TransactionManager

	// WithTx returns a repository bound to tx.
	WithTx(tx pgx.Tx) CalculationRunRepositoryFacade
}
