package services

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
)

// FinancialDataReaderSvc defines read operations for section data
type FinancialDataReaderSvc interface {
	// GetByProjectID returns the latest record of a section, or ErrNotFound.
	GetByProjectID(ctx context.Context, section, projectID string) (*domain.SectionRecord, error)

	// GetAuditHistory returns the audit entries of the project's records in the section.
	GetAuditHistory(ctx context.Context, section, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error)

	// GetAuditStats aggregates the audit entries of the project's records in the section.
	GetAuditStats(ctx context.Context, section, projectID string) ([]domain.AuditStat, error)

	// GetFieldHistory returns the audit entries that changed one field.
	GetFieldHistory(ctx context.Context, section, projectID, field string, limit int) ([]domain.AuditLogEntry, error)
}

// FinancialDataWriterSvc defines write operations for section data
type FinancialDataWriterSvc interface {
	// Upsert inserts the first record or updates only the changed fields of the latest one.
	Upsert(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error)

	// Create inserts the first record. Returns ErrDuplicate when one exists.
	Create(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error)

	// PartialUpdate updates the latest record. Returns ErrNotFound when there is none.
	PartialUpdate(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error)

	// Delete removes the project's records of the section and audits each removal.
	Delete(ctx context.Context, cmd domain.DeleteCommand) (int, error)
}

// FinancialDataSvcFacade combines all section data service interfaces
type FinancialDataSvcFacade interface {
	FinancialDataReaderSvc
	FinancialDataWriterSvc
}
