package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	"github.com/SscSPs/fin_model_app/internal/models"
	"github.com/SscSPs/fin_model_app/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxCalculationRunRepository implements the calculation run repositories using pgx.
type PgxCalculationRunRepository struct {
	BaseRepository
}

// newPgxCalculationRunRepository creates a new repository for calculation runs.
func newPgxCalculationRunRepository(pool *pgxpool.Pool) portsrepo.CalculationRunRepositoryWithTx {
	return &PgxCalculationRunRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.CalculationRunRepositoryWithTx = (*PgxCalculationRunRepository)(nil)

const (
	selectRunFields = `r.id::text AS id, r.project_id::text AS project_id, r.run_name, r.calculation_type,
		r.input_data, r.output_data, r.status, r.created_by, r.created_at, r.completed_at,
		r.execution_time_ms, r.error_message,
		(SELECT COUNT(*) FROM calculation_iterations i WHERE i.calculation_run_id = r.id)::int AS iteration_count`

	insertRunQuery = `INSERT INTO calculation_runs AS r (project_id, run_name, calculation_type, input_data, status, created_by)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		RETURNING ` + selectRunFields

	completeRunQuery = `UPDATE calculation_runs r
		SET status = 'completed', output_data = $2, execution_time_ms = $3, completed_at = NOW()
		WHERE r.id = $1::uuid AND r.status = 'running'
		RETURNING ` + selectRunFields

	failRunQuery = `UPDATE calculation_runs r
		SET status = 'failed', error_message = $2, execution_time_ms = $3, completed_at = NOW()
		WHERE r.id = $1::uuid AND r.status = 'running'
		RETURNING ` + selectRunFields

	selectIterationFields = `id, calculation_run_id::text AS calculation_run_id, iteration_number,
		input_changes, output_changes, created_by, created_at`

	insertIterationQuery = `INSERT INTO calculation_iterations (calculation_run_id, iteration_number, input_changes, output_changes, created_by)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING ` + selectIterationFields

	selectScheduleFields = `id, calculation_run_id::text AS calculation_run_id, schedule_type,
		month_number, year_number, schedule_data, created_at`

	insertScheduleQuery = `INSERT INTO calculation_schedules (calculation_run_id, schedule_type, month_number, year_number, schedule_data)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING ` + selectScheduleFields
)

// WithTx returns a repository bound to tx.
func (r *PgxCalculationRunRepository) WithTx(tx pgx.Tx) portsrepo.CalculationRunRepositoryFacade {
	return &PgxCalculationRunRepository{BaseRepository: r.withTx(tx)}
}

// CreateRun persists a new run in the running state.
func (r *PgxCalculationRunRepository) CreateRun(ctx context.Context, run domain.NewCalculationRun) (*domain.CalculationRun, error) {
	m, err := mapping.ToModelCalculationRun(run)
	if err != nil {
		return nil, err
	}
	rows, err := r.db().Query(ctx, insertRunQuery,
		m.ProjectID, m.RunName, m.CalculationType, m.InputData, m.Status, m.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s run for project %s: %w", run.CalculationType, run.ProjectID, err)
	}
	return collectRun(rows, "")
}

// FindRunByID retrieves a run without its children.
func (r *PgxCalculationRunRepository) FindRunByID(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	query := `SELECT ` + selectRunFields + ` FROM calculation_runs r WHERE r.id = $1::uuid`
	rows, err := r.db().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to find calculation run %s: %w", runID, err)
	}
	return collectRun(rows, runID)
}

// FindLatestRun returns the newest run of a type in a given status, or ErrNotFound.
func (r *PgxCalculationRunRepository) FindLatestRun(ctx context.Context, projectID string, calcType domain.CalculationType, status domain.CalculationStatus) (*domain.CalculationRun, error) {
	query := `SELECT ` + selectRunFields + `
		FROM calculation_runs r
		WHERE r.project_id = $1::uuid AND r.calculation_type = $2 AND r.status = $3
		ORDER BY r.created_at DESC
		LIMIT 1`
	rows, err := r.db().Query(ctx, query, projectID, string(calcType), string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to find latest %s run for project %s: %w", calcType, projectID, err)
	}
	return collectRun(rows, string(calcType))
}

// ListRunsByProject lists runs newest first with their iteration count. An empty calcType matches all types.
func (r *PgxCalculationRunRepository) ListRunsByProject(ctx context.Context, projectID string, calcType domain.CalculationType, limit int) ([]domain.CalculationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectRunFields + `
		FROM calculation_runs r
		WHERE r.project_id = $1::uuid AND ($2 = '' OR r.calculation_type = $2)
		ORDER BY r.created_at DESC
		LIMIT $3`
	rows, err := r.db().Query(ctx, query, projectID, string(calcType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculation runs for project %s: %w", projectID, err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CalculationRun])
	if err != nil {
		return nil, fmt.Errorf("failed to scan calculation runs: %w", err)
	}
	runs := make([]domain.CalculationRun, 0, len(ms))
	for _, m := range ms {
		run, err := mapping.ToDomainCalculationRun(m)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// CompleteRun moves a running run to completed.
func (r *PgxCalculationRunRepository) CompleteRun(ctx context.Context, runID string, output map[string]any, executionTimeMs int64) (*domain.CalculationRun, error) {
	data, err := mapping.EncodeJSONMap(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output of run %s: %w", runID, err)
	}
	rows, err := r.db().Query(ctx, completeRunQuery, runID, data, executionTimeMs)
	if err != nil {
		return nil, fmt.Errorf("failed to complete calculation run %s: %w", runID, err)
	}
	return r.transitioned(ctx, rows, runID)
}

// FailRun moves a running run to failed.
func (r *PgxCalculationRunRepository) FailRun(ctx context.Context, runID string, errorMessage string, executionTimeMs *int64) (*domain.CalculationRun, error) {
	rows, err := r.db().Query(ctx, failRunQuery, runID, errorMessage, executionTimeMs)
	if err != nil {
		return nil, fmt.Errorf("failed to fail calculation run %s: %w", runID, err)
	}
	return r.transitioned(ctx, rows, runID)
}

// transitioned resolves the result of a guarded status update. No row means the run
// is missing or already terminal.
func (r *PgxCalculationRunRepository) transitioned(ctx context.Context, rows pgx.Rows, runID string) (*domain.CalculationRun, error) {
	run, err := collectRun(rows, runID)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return run, err
	}
	existing, err := r.FindRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: calculation run %s is already %s", apperrors.ErrInvalidState, runID, existing.Status)
}

// CreateIteration persists one iteration of a run.
func (r *PgxCalculationRunRepository) CreateIteration(ctx context.Context, it domain.CalculationIteration) (*domain.CalculationIteration, error) {
	in, err := mapping.EncodeJSONMap(it.InputChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to encode iteration input: %w", err)
	}
	out, err := mapping.EncodeJSONMap(it.OutputChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to encode iteration output: %w", err)
	}
	rows, err := r.db().Query(ctx, insertIterationQuery, it.RunID, it.IterationNumber, in, out, nullableString(it.CreatedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to save iteration %d of run %s: %w", it.IterationNumber, it.RunID, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.CalculationIteration])
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return nil, fmt.Errorf("%w: iteration %d of run %s", apperrors.ErrDuplicate, it.IterationNumber, it.RunID)
		case pgForeignKeyViolation:
			return nil, fmt.Errorf("%w: calculation run %s", apperrors.ErrNotFound, it.RunID)
		}
		return nil, fmt.Errorf("failed to save iteration %d of run %s: %w", it.IterationNumber, it.RunID, err)
	}
	saved, err := mapping.ToDomainCalculationIteration(m)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListIterations lists the iterations of a run in iteration order.
func (r *PgxCalculationRunRepository) ListIterations(ctx context.Context, runID string) ([]domain.CalculationIteration, error) {
	query := `SELECT ` + selectIterationFields + `
		FROM calculation_iterations
		WHERE calculation_run_id = $1::uuid
		ORDER BY iteration_number`
	rows, err := r.db().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations of run %s: %w", runID, err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CalculationIteration])
	if err != nil {
		return nil, fmt.Errorf("failed to scan iterations: %w", err)
	}
	out := make([]domain.CalculationIteration, 0, len(ms))
	for _, m := range ms {
		it, err := mapping.ToDomainCalculationIteration(m)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// CreateSchedules persists schedule rows of a run in one batch.
func (r *PgxCalculationRunRepository) CreateSchedules(ctx context.Context, runID string, schedules []domain.ScheduleInput) ([]domain.CalculationSchedule, error) {
	if len(schedules) == 0 {
		return []domain.CalculationSchedule{}, nil
	}

	batch := &pgx.Batch{}
	for i, s := range schedules {
		data, err := mapping.EncodeJSONMap(s.ScheduleData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schedule %d: %w", i, err)
		}
		batch.Queue(insertScheduleQuery, runID, s.ScheduleType, s.MonthNumber, s.YearNumber, data)
	}

	br := r.db().SendBatch(ctx, batch)
	defer br.Close()

	out := make([]domain.CalculationSchedule, 0, len(schedules))
	for range schedules {
		rows, err := br.Query()
		if err != nil {
			return nil, fmt.Errorf("failed to save schedules of run %s: %w", runID, err)
		}
		m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.CalculationSchedule])
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return nil, fmt.Errorf("%w: calculation run %s", apperrors.ErrNotFound, runID)
			}
			return nil, fmt.Errorf("failed to save schedules of run %s: %w", runID, err)
		}
		s, err := mapping.ToDomainCalculationSchedule(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ListSchedules lists the schedules of a run.
func (r *PgxCalculationRunRepository) ListSchedules(ctx context.Context, runID string) ([]domain.CalculationSchedule, error) {
	query := `SELECT ` + selectScheduleFields + `
		FROM calculation_schedules
		WHERE calculation_run_id = $1::uuid
		ORDER BY schedule_type, year_number NULLS FIRST, month_number NULLS FIRST, id`
	rows, err := r.db().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules of run %s: %w", runID, err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CalculationSchedule])
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedules: %w", err)
	}
	out := make([]domain.CalculationSchedule, 0, len(ms))
	for _, m := range ms {
		s, err := mapping.ToDomainCalculationSchedule(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StatsByProject aggregates runs per type and status.
func (r *PgxCalculationRunRepository) StatsByProject(ctx context.Context, projectID string) ([]domain.CalculationStat, error) {
	query := `SELECT calculation_type, status,
			COUNT(*) AS run_count,
			AVG(execution_time_ms)::float8 AS avg_execution_time_ms,
			MAX(created_at) AS last_run_at
		FROM calculation_runs
		WHERE project_id = $1::uuid
		GROUP BY calculation_type, status
		ORDER BY calculation_type, status`
	rows, err := r.db().Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate calculation runs for project %s: %w", projectID, err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CalculationStat])
	if err != nil {
		return nil, fmt.Errorf("failed to scan calculation stats: %w", err)
	}
	return mapping.ToDomainCalculationStats(ms), nil
}

// DeleteOldRuns removes all but the newest keep runs of a type for a project.
// Iterations and schedules go with them through ON DELETE CASCADE.
func (r *PgxCalculationRunRepository) DeleteOldRuns(ctx context.Context, projectID string, calcType domain.CalculationType, keep int) (int64, error) {
	query := `DELETE FROM calculation_runs
		WHERE id IN (
			SELECT id FROM calculation_runs
			WHERE project_id = $1::uuid AND calculation_type = $2
			ORDER BY created_at DESC
			OFFSET $3
		)`
	tag, err := r.db().Exec(ctx, query, projectID, string(calcType), max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("failed to clean old %s runs for project %s: %w", calcType, projectID, err)
	}
	return tag.RowsAffected(), nil
}

// collectRun reads exactly one run row, mapping an empty result to ErrNotFound.
func collectRun(rows pgx.Rows, ref string) (*domain.CalculationRun, error) {
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.CalculationRun])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: calculation run %s", apperrors.ErrNotFound, ref)
		}
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, fmt.Errorf("%w: calculation run %s", apperrors.ErrDuplicate, ref)
		}
		return nil, fmt.Errorf("failed to read calculation run %s: %w", ref, err)
	}
	return mapping.ToDomainCalculationRun(m)
}
