package models

import "time"

// CalculationRun represents a row of calculation_runs.
type CalculationRun struct {
	ID              string     `db:"id"`
	ProjectID       string     `db:"project_id"`
	RunName         string     `db:"run_name"`
	CalculationType string     `db:"calculation_type"`
	InputData       []byte     `db:"input_data"`
	OutputData      []byte     `db:"output_data"`
	Status          string     `db:"status"`
	CreatedBy       *string    `db:"created_by"`
	CreatedAt       time.Time  `db:"created_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	ExecutionTimeMs *int64     `db:"execution_time_ms"`
	ErrorMessage    *string    `db:"error_message"`
	IterationCount  int        `db:"iteration_count"`
}

// CalculationIteration represents a row of calculation_iterations.
type CalculationIteration struct {
	ID              int64     `db:"id"`
	RunID           string    `db:"calculation_run_id"`
	IterationNumber int       `db:"iteration_number"`
	InputChanges    []byte    `db:"input_changes"`
	OutputChanges   []byte    `db:"output_changes"`
	CreatedBy       *string   `db:"created_by"`
	CreatedAt       time.Time `db:"created_at"`
}

// CalculationSchedule represents a row of calculation_schedules.
type CalculationSchedule struct {
	ID           int64     `db:"id"`
	RunID        string    `db:"calculation_run_id"`
	ScheduleType string    `db:"schedule_type"`
	MonthNumber  *int      `db:"month_number"`
	YearNumber   *int      `db:"year_number"`
	ScheduleData []byte    `db:"schedule_data"`
	CreatedAt    time.Time `db:"created_at"`
}

// CalculationStat is one aggregated row of run statistics.
type CalculationStat struct {
	CalculationType    string    `db:"calculation_type"`
	Status             string    `db:"status"`
	Count              int64     `db:"run_count"`
	AvgExecutionTimeMs *float64  `db:"avg_execution_time_ms"`
	LastRunAt          time.Time `db:"last_run_at"`
}
