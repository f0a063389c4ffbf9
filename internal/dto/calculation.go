package dto

import "github.com/SscSPs/fin_model_app/internal/core/domain"

// CreateRunRequest starts a calculation run.
type CreateRunRequest struct {
	CalculationType string         `json:"calculationType" binding:"required,calculation_type"`
	RunName         string         `json:"runName" binding:"max=255"`
	InputData       map[string]any `json:"inputData"`
}

// CompleteRunRequest completes a running calculation.
type CompleteRunRequest struct {
	OutputData      map[string]any `json:"outputData"`
	ExecutionTimeMs int64          `json:"executionTimeMs" binding:"min=0"`
}

// FailRunRequest fails a running calculation.
type FailRunRequest struct {
	ErrorMessage    string `json:"errorMessage"`
	ExecutionTimeMs *int64 `json:"executionTimeMs" binding:"omitempty,min=0"`
}

// SaveIterationRequest records one iteration of a run.
type SaveIterationRequest struct {
	IterationNumber int            `json:"iterationNumber" binding:"required,gt=0"`
	InputChanges    map[string]any `json:"inputChanges"`
	OutputChanges   map[string]any `json:"outputChanges"`
}

// ScheduleRequest is one schedule row.
type ScheduleRequest struct {
	ScheduleType string         `json:"scheduleType" binding:"required"`
	MonthNumber  *int           `json:"monthNumber" binding:"omitempty,min=1,max=12"`
	YearNumber   *int           `json:"yearNumber" binding:"omitempty,min=1"`
	ScheduleData map[string]any `json:"scheduleData"`
}

// SaveSchedulesRequest records schedule rows of a run.
type SaveSchedulesRequest struct {
	Schedules []ScheduleRequest `json:"schedules" binding:"required,min=1,dive"`
}

// ToDomain converts the rows to domain inputs.
func (r SaveSchedulesRequest) ToDomain() []domain.ScheduleInput {
	out := make([]domain.ScheduleInput, len(r.Schedules))
	for i, s := range r.Schedules {
		out[i] = domain.ScheduleInput{
			ScheduleType: s.ScheduleType,
			MonthNumber:  s.MonthNumber,
			YearNumber:   s.YearNumber,
			ScheduleData: s.ScheduleData,
		}
	}
	return out
}

// CalculationHistoryParams defines query parameters for run history.
type CalculationHistoryParams struct {
	Type  string `form:"type" binding:"omitempty,calculation_type"`
	Limit int    `form:"limit,default=20" binding:"min=0,max=500"`
}

// CompareRunsParams identifies two runs to compare.
type CompareRunsParams struct {
	Run1 string `form:"run1" binding:"required,uuid"`
	Run2 string `form:"run2" binding:"required,uuid"`
}

// CleanOldRunsParams defines query parameters for run cleanup.
type CleanOldRunsParams struct {
	Type string `form:"type" binding:"required,calculation_type"`
	Keep int    `form:"keep" binding:"min=0"`
}

// CleanOldRunsResponse reports a run cleanup.
type CleanOldRunsResponse struct {
	CalculationType string `json:"calculationType"`
	Deleted         int64  `json:"deleted"`
}

// ExecuteCalculationRequest is the optional body of the execute endpoint.
type ExecuteCalculationRequest struct {
	RunName string         `json:"runName" binding:"max=255"`
	Params  map[string]any `json:"params"`
}

// NonNilRuns returns runs, or an empty slice so it serializes as [].
func NonNilRuns(runs []domain.CalculationRun) []domain.CalculationRun {
	if runs == nil {
		return []domain.CalculationRun{}
	}
	return runs
}
