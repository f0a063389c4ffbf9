package domain

import "time"

// CalculationType identifies an external calculation.
type CalculationType string

const (
	CalculationDebtSchedule          CalculationType = "debt_schedule"
	CalculationDepreciationSchedule  CalculationType = "depreciation_schedule"
	CalculationConsolidatedMonthly   CalculationType = "consolidated_monthly"
	CalculationConsolidatedQuarterly CalculationType = "consolidated_quarterly"
	CalculationConsolidatedYearly    CalculationType = "consolidated_yearly"
	CalculationKPI                   CalculationType = "kpi"
)

// CalculationTypes lists every supported calculation type.
func CalculationTypes() []CalculationType {
	return []CalculationType{
		CalculationDebtSchedule,
		CalculationDepreciationSchedule,
		CalculationConsolidatedMonthly,
		CalculationConsolidatedQuarterly,
		CalculationConsolidatedYearly,
		CalculationKPI,
	}
}

// IsValid reports whether t is a supported calculation type.
func (t CalculationType) IsValid() bool {
	for _, ct := range CalculationTypes() {
		if ct == t {
			return true
		}
	}
	return false
}

// CalculationStatus is the lifecycle state of a run.
type CalculationStatus string

const (
	CalculationRunning   CalculationStatus = "running"
	CalculationCompleted CalculationStatus = "completed"
	CalculationFailed    CalculationStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s CalculationStatus) IsTerminal() bool {
	return s == CalculationCompleted || s == CalculationFailed
}

// CalculationRun is one tracked invocation of an external calculation.
type CalculationRun struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"projectId"`
	RunName         string            `json:"runName"`
	CalculationType CalculationType   `json:"calculationType"`
	InputData       map[string]any    `json:"inputData"`
	OutputData      map[string]any    `json:"outputData"`
	Status          CalculationStatus `json:"status"`
	CreatedBy       string            `json:"createdBy"`
	CreatedAt       time.Time         `json:"createdAt"`
	CompletedAt     *time.Time        `json:"completedAt"`
	ExecutionTimeMs *int64            `json:"executionTimeMs"`
	ErrorMessage    *string           `json:"errorMessage"`
	IterationCount  int               `json:"iterationCount"`

	Iterations []CalculationIteration `json:"iterations,omitempty"`
	Schedules  []CalculationSchedule  `json:"schedules,omitempty"`
}

// CalculationIteration is a write-once record of one what-if iteration within a run.
type CalculationIteration struct {
	ID              int64          `json:"id"`
	RunID           string         `json:"runId"`
	IterationNumber int            `json:"iterationNumber"`
	InputChanges    map[string]any `json:"inputChanges"`
	OutputChanges   map[string]any `json:"outputChanges"`
	CreatedBy       string         `json:"createdBy"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// CalculationSchedule is a write-once schedule row produced by a run.
type CalculationSchedule struct {
	ID           int64          `json:"id"`
	RunID        string         `json:"runId"`
	ScheduleType string         `json:"scheduleType"`
	MonthNumber  *int           `json:"monthNumber"`
	YearNumber   *int           `json:"yearNumber"`
	ScheduleData map[string]any `json:"scheduleData"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// NewCalculationRun is the input for creating a run.
type NewCalculationRun struct {
	ProjectID       string
	CalculationType CalculationType
	RunName         string
	InputData       map[string]any
	CreatedBy       string
}

// ScheduleInput is one schedule row to save.
type ScheduleInput struct {
	ScheduleType string
	MonthNumber  *int
	YearNumber   *int
	ScheduleData map[string]any
}

// CalculationStat aggregates runs per type and status.
type CalculationStat struct {
	CalculationType    CalculationType   `json:"calculationType"`
	Status             CalculationStatus `json:"status"`
	Count              int64             `json:"count"`
	AvgExecutionTimeMs *float64          `json:"avgExecutionTimeMs"`
	LastRunAt          time.Time         `json:"lastRunAt"`
}

// RunComparison lists output differences between two runs.
type RunComparison struct {
	Run1        *CalculationRun   `json:"run1"`
	Run2        *CalculationRun   `json:"run2"`
	Differences []FieldDifference `json:"differences"`
}

// PrerequisiteCheck lists what a calculation type still needs before it can run.
type PrerequisiteCheck struct {
	CalculationType CalculationType `json:"calculationType"`
	IsValid         bool            `json:"isValid"`
	Missing         []string        `json:"missing"`
}

// CalculationOutcome is the parsed result of a calculation process.
type CalculationOutcome struct {
	Run     *CalculationRun `json:"run"`
	Summary map[string]any  `json:"summary"`
}
