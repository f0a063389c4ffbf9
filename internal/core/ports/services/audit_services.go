package services

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
)

// AuditReaderSvc defines read operations for the audit log
type AuditReaderSvc interface {
	// GetRecordHistory returns the entries of one record, newest first.
	GetRecordHistory(ctx context.Context, tableName, recordID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error)

	// GetRecordStats aggregates the entries of one record per action.
	GetRecordStats(ctx context.Context, tableName, recordID string) ([]domain.AuditStat, error)

	// GetProjectHistory returns one page of the project's entries and the token of the next page.
	GetProjectHistory(ctx context.Context, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, string, error)

	// GetProjectStats aggregates the project's entries per table and action.
	GetProjectStats(ctx context.Context, projectID string) ([]domain.AuditStat, error)

	// CompareVersions diffs the new values of two entries.
	CompareVersions(ctx context.Context, fromID, toID int64) (*domain.VersionComparison, error)
}

// AuditWriterSvc defines write operations for the audit log
type AuditWriterSvc interface {
	// LogChange appends an entry outside any transaction.
	LogChange(ctx context.Context, change domain.AuditChange) (*domain.AuditLogEntry, error)

	// LogChangeWith appends an entry through repo, typically bound to the data transaction.
	LogChangeWith(ctx context.Context, repo portsrepo.AuditLogWriter, change domain.AuditChange) (*domain.AuditLogEntry, error)

	// Cleanup archives and deletes entries older than daysToKeep days.
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)
}

// AuditSvcFacade combines all audit service interfaces
type AuditSvcFacade interface {
	AuditReaderSvc
	AuditWriterSvc
}
