package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// AuditLogReader defines read operations for the audit log
type AuditLogReader interface {
	// FindByID retrieves a single audit entry.
	FindByID(ctx context.Context, id int64) (*domain.AuditLogEntry, error)

	// ListByRecord returns the entries of one record, newest first.
	ListByRecord(ctx context.Context, tableName, recordID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error)

	// ListBySection returns the entries of a project's records in one section table, newest first.
	ListBySection(ctx context.Context, tableName, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error)

	// ListFieldHistory returns the entries of a project's section that changed field.
	ListFieldHistory(ctx context.Context, tableName, projectID, field string, limit int) ([]domain.AuditLogEntry, error)

	// ListByProject returns the entries of every record belonging to the project, newest first.
	ListByProject(ctx context.Context, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error)

	// StatsByRecord aggregates the entries of one record per action.
	StatsByRecord(ctx context.Context, tableName, recordID string) ([]domain.AuditStat, error)

	// StatsBySection aggregates the entries of a project's section per action.
	StatsBySection(ctx context.Context, tableName, projectID string) ([]domain.AuditStat, error)

	// StatsByProject aggregates the entries of a project per table and action.
	StatsByProject(ctx context.Context, projectID string) ([]domain.AuditStat, error)

	// ListOlderThan returns up to limit entries written before the cutoff, oldest first.
	ListOlderThan(ctx context.Context, before time.Time, limit int) ([]domain.AuditLogEntry, error)
}

// AuditLogWriter defines write operations for the audit log
type AuditLogWriter interface {
	// Create appends an entry and fills its ID and timestamp.
	Create(ctx context.Context, entry *domain.AuditLogEntry, projectID string) error

	// DeleteByIDs removes entries; used only by retention cleanup.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// AuditLogRepositoryFacade combines all audit log interfaces
type AuditLogRepositoryFacade interface {
	AuditLogReader
	AuditLogWriter
}

// AuditLogRepositoryWithTx extends AuditLogRepositoryFacade with transaction capabilities
type AuditLogRepositoryWithTx interface {
	AuditLogRepositoryFacade
	TransactionManager

	// WithTx returns a repository bound to tx.
	WithTx(tx pgx.Tx) AuditLogRepositoryFacade
}
