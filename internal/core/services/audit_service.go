package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/platform/archive"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
	"github.com/SscSPs/fin_model_app/internal/utils/changedetect"
	"github.com/SscSPs/fin_model_app/internal/utils/pagination"
)

const (
	defaultRecordAuditLimit  = 50
	defaultProjectAuditLimit = 100
	cleanupBatchSize         = 1000
)

type auditService struct {
	BaseService
	auditRepo portsrepo.AuditLogRepositoryWithTx
	archiver  archive.Archiver
	metrics   *metrics.Metrics
	now       func() time.Time
}

// AuditOption configures the audit service.
type AuditOption func(*auditService)

// WithArchiver sets where entries go before retention cleanup deletes them.
func WithArchiver(a archive.Archiver) AuditOption {
	return func(s *auditService) {
		if a != nil {
			s.archiver = a
		}
	}
}

// WithAuditMetrics records archived entries.
func WithAuditMetrics(m *metrics.Metrics) AuditOption {
	return func(s *auditService) {
		s.metrics = m
	}
}

// NewAuditService creates the audit trail service.
func NewAuditService(auditRepo portsrepo.AuditLogRepositoryWithTx, opts ...AuditOption) portssvc.AuditSvcFacade {
	s := &auditService{
		auditRepo: auditRepo,
		archiver:  archive.Noop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogChange appends an entry outside any transaction.
func (s *auditService) LogChange(ctx context.Context, change domain.AuditChange) (*domain.AuditLogEntry, error) {
	return s.LogChangeWith(ctx, s.auditRepo, change)
}

// LogChangeWith appends an entry through repo.
func (s *auditService) LogChangeWith(ctx context.Context, repo portsrepo.AuditLogWriter, change domain.AuditChange) (*domain.AuditLogEntry, error) {
	if change.TableName == "" || change.RecordID == "" {
		return nil, apperrors.NewValidationError("audit", "table name and record id are required")
	}
	if !change.Action.IsValid() {
		return nil, apperrors.NewValidationError("action", fmt.Sprintf("unknown audit action %q", change.Action))
	}

	reason := strings.TrimSpace(change.ChangeReason)
	if reason == "" {
		reason = domain.DefaultAuditChangeReason
	}
	changed := change.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	entry := &domain.AuditLogEntry{
		TableName:     change.TableName,
		RecordID:      change.RecordID,
		Action:        change.Action,
		OldValues:     emptyIfNil(change.OldValues),
		NewValues:     emptyIfNil(change.NewValues),
		ChangedFields: changed,
		ChangeReason:  reason,
		UserID:        change.UserID,
	}
	if change.IPAddress != "" {
		ip := change.IPAddress
		entry.IPAddress = &ip
	}

	if err := repo.Create(ctx, entry, change.ProjectID); err != nil {
		s.LogError(ctx, err, "Failed to write audit entry",
			slog.String("table", change.TableName),
			slog.String("record_id", change.RecordID),
			slog.String("action", string(change.Action)))
		return nil, err
	}
	return entry, nil
}

// validateAuditedRecord accepts the section tables and calculation runs.
func validateAuditedRecord(tableName, recordID string) error {
	if _, ok := domain.SectionByTable(tableName); !ok && tableName != calculationRunsTable {
		return apperrors.NewValidationError("table", fmt.Sprintf("unknown audited table %q", tableName))
	}
	if strings.TrimSpace(recordID) == "" {
		return apperrors.NewValidationError("recordId", "is required")
	}
	return nil
}

// GetRecordHistory returns the entries of one record, newest first.
func (s *auditService) GetRecordHistory(ctx context.Context, tableName, recordID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	if err := validateAuditedRecord(tableName, recordID); err != nil {
		return nil, err
	}
	if filter.Action != "" && !filter.Action.IsValid() {
		return nil, apperrors.NewValidationError("action", "must be one of INSERT, UPDATE, DELETE")
	}
	filter.Limit = clampLimit(filter.Limit, defaultRecordAuditLimit)
	return s.auditRepo.ListByRecord(ctx, tableName, recordID, filter)
}

// GetRecordStats aggregates the entries of one record per action.
func (s *auditService) GetRecordStats(ctx context.Context, tableName, recordID string) ([]domain.AuditStat, error) {
	if err := validateAuditedRecord(tableName, recordID); err != nil {
		return nil, err
	}
	return s.auditRepo.StatsByRecord(ctx, tableName, recordID)
}

// GetProjectHistory returns one page of the project's entries. The token is empty on the last page.
func (s *auditService) GetProjectHistory(ctx context.Context, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, string, error) {
	filter.Limit = clampLimit(filter.Limit, defaultProjectAuditLimit)
	entries, err := s.auditRepo.ListByProject(ctx, projectID, filter)
	if err != nil {
		s.LogError(ctx, err, "Failed to list project audit history", slog.String("project_id", projectID))
		return nil, "", err
	}

	var next string
	if len(entries) == filter.Limit {
		last := entries[len(entries)-1]
		next = pagination.EncodeToken(last.ChangeTimestamp, last.ID)
	}
	return entries, next, nil
}

// GetProjectStats aggregates the project's entries per table and action.
func (s *auditService) GetProjectStats(ctx context.Context, projectID string) ([]domain.AuditStat, error) {
	return s.auditRepo.StatsByProject(ctx, projectID)
}

// CompareVersions diffs the new values of two entries.
func (s *auditService) CompareVersions(ctx context.Context, fromID, toID int64) (*domain.VersionComparison, error) {
	if fromID <= 0 || toID <= 0 {
		return nil, apperrors.NewValidationError("from", "both audit entry ids must be positive")
	}
	from, err := s.auditRepo.FindByID(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.auditRepo.FindByID(ctx, toID)
	if err != nil {
		return nil, err
	}
	return &domain.VersionComparison{
		From:        from,
		To:          to,
		Differences: changedetect.Diff(from.NewValues, to.NewValues),
	}, nil
}

// Cleanup archives and deletes entries older than daysToKeep days, one batch at a time.
// An archive failure stops before the batch is deleted.
func (s *auditService) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, apperrors.NewValidationError("daysToKeep", "must be a positive number of days")
	}
	cutoff := s.now().AddDate(0, 0, -daysToKeep)
	logger := s.GetLogger(ctx).With(slog.Time("cutoff", cutoff))

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := s.auditRepo.ListOlderThan(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			logger.Error("Failed to list expired audit entries", slog.String("error", err.Error()))
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		key, err := s.archiver.ArchiveAuditEntries(ctx, batch)
		if err != nil {
			logger.Error("Failed to archive audit entries, nothing deleted",
				slog.Int("batch", len(batch)), slog.String("error", err.Error()))
			return total, err
		}

		ids := make([]int64, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		deleted, err := s.auditRepo.DeleteByIDs(ctx, ids)
		if err != nil {
			logger.Error("Failed to delete archived audit entries",
				slog.String("archive_key", key), slog.String("error", err.Error()))
			return total, err
		}
		total += deleted
		s.metrics.AuditArchived(deleted)
		logger.Info("Audit entries archived",
			slog.String("archive_key", key), slog.Int64("deleted", deleted))

		if len(batch) < cleanupBatchSize || deleted == 0 {
			break
		}
	}
	return total, nil
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
