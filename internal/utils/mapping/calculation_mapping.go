package mapping

import (
	"fmt"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/models"
)

// ToDomainCalculationRun converts a model CalculationRun to a domain CalculationRun
func ToDomainCalculationRun(m models.CalculationRun) (*domain.CalculationRun, error) {
	input, err := DecodeJSONMap(m.InputData)
	if err != nil {
		return nil, fmt.Errorf("input_data of run %s: %w", m.ID, err)
	}
	var output map[string]any
	if m.OutputData != nil {
		output, err = DecodeJSONMap(m.OutputData)
		if err != nil {
			return nil, fmt.Errorf("output_data of run %s: %w", m.ID, err)
		}
	}
	return &domain.CalculationRun{
		ID:              m.ID,
		ProjectID:       m.ProjectID,
		RunName:         m.RunName,
		CalculationType: domain.CalculationType(m.CalculationType),
		InputData:       input,
		OutputData:      output,
		Status:          domain.CalculationStatus(m.Status),
		CreatedBy:       derefString(m.CreatedBy),
		CreatedAt:       m.CreatedAt,
		CompletedAt:     m.CompletedAt,
		ExecutionTimeMs: m.ExecutionTimeMs,
		ErrorMessage:    m.ErrorMessage,
		IterationCount:  m.IterationCount,
	}, nil
}

// ToModelCalculationRun converts the creation input to a row model.
func ToModelCalculationRun(in domain.NewCalculationRun) (models.CalculationRun, error) {
	input, err := EncodeJSONMap(in.InputData)
	if err != nil {
		return models.CalculationRun{}, fmt.Errorf("encode input_data: %w", err)
	}
	return models.CalculationRun{
		ProjectID:       in.ProjectID,
		RunName:         in.RunName,
		CalculationType: string(in.CalculationType),
		InputData:       input,
		Status:          string(domain.CalculationRunning),
		CreatedBy:       stringPtrOrNil(in.CreatedBy),
	}, nil
}

// ToDomainCalculationIteration converts a model CalculationIteration.
func ToDomainCalculationIteration(m models.CalculationIteration) (domain.CalculationIteration, error) {
	in, err := DecodeJSONMap(m.InputChanges)
	if err != nil {
		return domain.CalculationIteration{}, fmt.Errorf("input_changes of iteration %d: %w", m.ID, err)
	}
	out, err := DecodeJSONMap(m.OutputChanges)
	if err != nil {
		return domain.CalculationIteration{}, fmt.Errorf("output_changes of iteration %d: %w", m.ID, err)
	}
	return domain.CalculationIteration{
		ID:              m.ID,
		RunID:           m.RunID,
		IterationNumber: m.IterationNumber,
		InputChanges:    in,
		OutputChanges:   out,
		CreatedBy:       derefString(m.CreatedBy),
		CreatedAt:       m.CreatedAt,
	}, nil
}

// ToDomainCalculationSchedule converts a model CalculationSchedule.
func ToDomainCalculationSchedule(m models.CalculationSchedule) (domain.CalculationSchedule, error) {
	data, err := DecodeJSONMap(m.ScheduleData)
	if err != nil {
		return domain.CalculationSchedule{}, fmt.Errorf("schedule_data of schedule %d: %w", m.ID, err)
	}
	return domain.CalculationSchedule{
		ID:           m.ID,
		RunID:        m.RunID,
		ScheduleType: m.ScheduleType,
		MonthNumber:  m.MonthNumber,
		YearNumber:   m.YearNumber,
		ScheduleData: data,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// ToDomainCalculationStats converts aggregated stat rows.
func ToDomainCalculationStats(ms []models.CalculationStat) []domain.CalculationStat {
	out := make([]domain.CalculationStat, 0, len(ms))
	for _, m := range ms {
		out = append(out, domain.CalculationStat{
			CalculationType:    domain.CalculationType(m.CalculationType),
			Status:             domain.CalculationStatus(m.Status),
			Count:              m.Count,
			AvgExecutionTimeMs: m.AvgExecutionTimeMs,
			LastRunAt:          m.LastRunAt,
		})
	}
	return out
}
