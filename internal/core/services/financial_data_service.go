package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
	"github.com/SscSPs/fin_model_app/internal/utils/changedetect"
	"github.com/SscSPs/fin_model_app/internal/utils/mapping"
)

const (
	defaultSaveAttempts       = 3
	defaultSectionAuditLimit  = 50
	defaultFieldHistoryLimit  = 20
	maxHistoryLimit           = 500
	actionNone                = "NONE"
)

type saveMode int

const (
	saveUpsert saveMode = iota
	saveCreateOnly
	saveUpdateOnly
)

// financialDataService implements the versioned upsert shared by every section.
type financialDataService struct {
	BaseService
	sectionRepo  portsrepo.SectionRecordRepositoryWithTx
	auditRepo    portsrepo.AuditLogRepositoryWithTx
	auditWriter  portssvc.AuditWriterSvc
	metrics      *metrics.Metrics
	saveAttempts int
}

// FinancialDataOption configures the financial data service.
type FinancialDataOption func(*financialDataService)

// WithFinancialDataMetrics records save outcomes.
func WithFinancialDataMetrics(m *metrics.Metrics) FinancialDataOption {
	return func(s *financialDataService) {
		s.metrics = m
	}
}

// WithSaveAttempts sets how many times a save is retried after a version conflict.
func WithSaveAttempts(n int) FinancialDataOption {
	return func(s *financialDataService) {
		if n > 0 {
			s.saveAttempts = n
		}
	}
}

// NewFinancialDataService creates the section data service.
func NewFinancialDataService(
	sectionRepo portsrepo.SectionRecordRepositoryWithTx,
	auditRepo portsrepo.AuditLogRepositoryWithTx,
	auditWriter portssvc.AuditWriterSvc,
	opts ...FinancialDataOption,
) portssvc.FinancialDataSvcFacade {
	s := &financialDataService{
		sectionRepo:  sectionRepo,
		auditRepo:    auditRepo,
		auditWriter:  auditWriter,
		saveAttempts: defaultSaveAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func resolveSection(section string) (*domain.SectionSchema, error) {
	schema, ok := domain.SectionByName(section)
	if !ok {
		return nil, apperrors.NewValidationError("section", fmt.Sprintf("unknown section %q", section))
	}
	return schema, nil
}

// GetByProjectID returns the latest record of a section, or ErrNotFound.
func (s *financialDataService) GetByProjectID(ctx context.Context, section, projectID string) (*domain.SectionRecord, error) {
	schema, err := resolveSection(section)
	if err != nil {
		return nil, err
	}
	record, err := s.sectionRepo.FindLatestByProjectID(ctx, schema, projectID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to load section record",
				slog.String("section", section), slog.String("project_id", projectID))
		}
		return nil, err
	}
	return record, nil
}

// Upsert inserts the first record or updates only the changed fields of the latest one.
func (s *financialDataService) Upsert(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	return s.save(ctx, cmd, saveUpsert)
}

// Create inserts the first record. Returns ErrDuplicate when one exists.
func (s *financialDataService) Create(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	return s.save(ctx, cmd, saveCreateOnly)
}

// PartialUpdate updates the latest record. Returns ErrNotFound when there is none.
func (s *financialDataService) PartialUpdate(ctx context.Context, cmd domain.UpsertCommand) (*domain.SaveResult, error) {
	return s.save(ctx, cmd, saveUpdateOnly)
}

func (s *financialDataService) save(ctx context.Context, cmd domain.UpsertCommand, mode saveMode) (*domain.SaveResult, error) {
	schema, err := resolveSection(cmd.Section)
	if err != nil {
		return nil, err
	}
	incoming := schema.Normalize(schema.Filter(cmd.Data))
	if len(incoming) == 0 {
		return nil, apperrors.NewValidationError("data", "no updatable fields supplied")
	}

	logger := s.GetLogger(ctx).With(
		slog.String("section", schema.Section),
		slog.String("project_id", cmd.ProjectID),
	)

	var lastErr error
	for attempt := 1; attempt <= s.saveAttempts; attempt++ {
		current, err := s.sectionRepo.FindLatestByProjectID(ctx, schema, cmd.ProjectID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if mode == saveUpdateOnly {
				return nil, fmt.Errorf("%w: no %s data for project %s", apperrors.ErrNotFound, schema.Label, cmd.ProjectID)
			}
			result, err := s.insert(ctx, schema, cmd, incoming.Clone())
			if errors.Is(err, apperrors.ErrDuplicate) && mode == saveUpsert {
				// a concurrent writer created the record first; update it instead
				logger.Debug("Insert lost race, retrying as update", slog.Int("attempt", attempt))
				lastErr = err
				continue
			}
			return result, err
		case err != nil:
			logger.Error("Failed to load section record", slog.String("error", err.Error()))
			return nil, err
		}

		if mode == saveCreateOnly {
			return nil, fmt.Errorf("%w: %s data for project %s", apperrors.ErrDuplicate, schema.Label, cmd.ProjectID)
		}

		result, err := s.update(ctx, schema, cmd, current, incoming.Clone())
		if errors.Is(err, apperrors.ErrVersionConflict) {
			logger.Warn("Version conflict, retrying", slog.Int("attempt", attempt), slog.Int("version", current.Version))
			lastErr = err
			continue
		}
		return result, err
	}
	return nil, lastErr
}

func (s *financialDataService) insert(ctx context.Context, schema *domain.SectionSchema, cmd domain.UpsertCommand, incoming domain.FieldValues) (*domain.SaveResult, error) {
	if cmd.CalculateDerived && schema.Derive != nil {
		for k, v := range schema.Derive(incoming) {
			incoming[k] = v
		}
	}
	detected := changedetect.Detect(nil, incoming)
	coerced, err := schema.Coerce(incoming)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(cmd.ChangeReason)
	if reason == "" {
		reason = domain.DefaultInitialChangeReason
	}

	var (
		record *domain.SectionRecord
		entry  *domain.AuditLogEntry
	)
	err = s.inTx(ctx, func(sections portsrepo.SectionRecordRepositoryFacade, audit portsrepo.AuditLogRepositoryFacade) error {
		var err error
		record, err = sections.Insert(ctx, schema, cmd.ProjectID, coerced, cmd.UserID, reason)
		if err != nil {
			return err
		}
		entry, err = s.auditWriter.LogChangeWith(ctx, audit, domain.AuditChange{
			UserID:        cmd.UserID,
			ProjectID:     cmd.ProjectID,
			TableName:     schema.Table,
			RecordID:      strconv.FormatInt(record.ID, 10),
			Action:        domain.AuditInsert,
			NewValues:     mapping.ToSnapshot(record),
			ChangedFields: detected.ChangedFields,
			ChangeReason:  reason,
			IPAddress:     cmd.IPAddress,
		})
		return err
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrDuplicate) {
			s.LogError(ctx, err, "Failed to insert section record",
				slog.String("section", schema.Section), slog.String("project_id", cmd.ProjectID))
		}
		return nil, err
	}

	s.metrics.SectionSaved(schema.Section, string(domain.AuditInsert))
	s.LogInfo(ctx, "Section record created",
		slog.String("section", schema.Section),
		slog.String("project_id", cmd.ProjectID),
		slog.Int64("record_id", record.ID))

	return &domain.SaveResult{
		Record:          record,
		ChangesDetected: true,
		ChangedFields:   detected.ChangedFields,
		Action:          domain.AuditInsert,
		AuditEntryID:    entry.ID,
	}, nil
}

func (s *financialDataService) update(ctx context.Context, schema *domain.SectionSchema, cmd domain.UpsertCommand, current *domain.SectionRecord, incoming domain.FieldValues) (*domain.SaveResult, error) {
	if cmd.CalculateDerived && schema.Derive != nil {
		merged := current.Fields.Clone()
		for k, v := range incoming {
			merged[k] = v
		}
		for k, v := range schema.Derive(merged) {
			incoming[k] = v
		}
	}

	detected := changedetect.Detect(current.Fields, incoming)
	if !detected.Changed {
		s.metrics.SectionSaved(schema.Section, actionNone)
		s.LogDebug(ctx, "No changes detected",
			slog.String("section", schema.Section), slog.String("project_id", cmd.ProjectID))
		return &domain.SaveResult{
			Record:          current,
			ChangesDetected: false,
			ChangedFields:   []string{},
		}, nil
	}

	coerced, err := schema.Coerce(incoming.Subset(detected.ChangedFields))
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(cmd.ChangeReason)
	if reason == "" {
		reason = domain.DefaultAuditChangeReason
	}

	var (
		record *domain.SectionRecord
		entry  *domain.AuditLogEntry
	)
	err = s.inTx(ctx, func(sections portsrepo.SectionRecordRepositoryFacade, audit portsrepo.AuditLogRepositoryFacade) error {
		var err error
		record, err = sections.UpdateFields(ctx, schema, current.ID, current.Version, coerced, cmd.UserID, reason)
		if err != nil {
			return err
		}
		entry, err = s.auditWriter.LogChangeWith(ctx, audit, domain.AuditChange{
			UserID:        cmd.UserID,
			ProjectID:     cmd.ProjectID,
			TableName:     schema.Table,
			RecordID:      strconv.FormatInt(record.ID, 10),
			Action:        domain.AuditUpdate,
			OldValues:     mapping.ToSnapshot(current),
			NewValues:     mapping.ToSnapshot(record),
			ChangedFields: detected.ChangedFields,
			ChangeReason:  reason,
			IPAddress:     cmd.IPAddress,
		})
		return err
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrVersionConflict) {
			s.LogError(ctx, err, "Failed to update section record",
				slog.String("section", schema.Section), slog.String("project_id", cmd.ProjectID))
		}
		return nil, err
	}

	s.metrics.SectionSaved(schema.Section, string(domain.AuditUpdate))
	s.LogInfo(ctx, "Section record updated",
		slog.String("section", schema.Section),
		slog.String("project_id", cmd.ProjectID),
		slog.Int("version", record.Version),
		slog.Any("changed_fields", detected.ChangedFields))

	return &domain.SaveResult{
		Record:          record,
		ChangesDetected: true,
		ChangedFields:   detected.ChangedFields,
		Action:          domain.AuditUpdate,
		AuditEntryID:    entry.ID,
	}, nil
}

// Delete removes the project's records of the section and audits each removal.
func (s *financialDataService) Delete(ctx context.Context, cmd domain.DeleteCommand) (int, error) {
	schema, err := resolveSection(cmd.Section)
	if err != nil {
		return 0, err
	}
	reason := strings.TrimSpace(cmd.ChangeReason)
	if reason == "" {
		reason = domain.DefaultAuditChangeReason
	}

	var deleted []domain.SectionRecord
	err = s.inTx(ctx, func(sections portsrepo.SectionRecordRepositoryFacade, audit portsrepo.AuditLogRepositoryFacade) error {
		var err error
		deleted, err = sections.DeleteByProjectID(ctx, schema, cmd.ProjectID)
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return fmt.Errorf("%w: no %s data for project %s", apperrors.ErrNotFound, schema.Label, cmd.ProjectID)
		}
		for i := range deleted {
			_, err = s.auditWriter.LogChangeWith(ctx, audit, domain.AuditChange{
				UserID:        cmd.UserID,
				ProjectID:     cmd.ProjectID,
				TableName:     schema.Table,
				RecordID:      strconv.FormatInt(deleted[i].ID, 10),
				Action:        domain.AuditDelete,
				OldValues:     mapping.ToSnapshot(&deleted[i]),
				ChangedFields: []string{},
				ChangeReason:  reason,
				IPAddress:     cmd.IPAddress,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to delete section records",
				slog.String("section", schema.Section), slog.String("project_id", cmd.ProjectID))
		}
		return 0, err
	}

	s.metrics.SectionSaved(schema.Section, string(domain.AuditDelete))
	s.LogInfo(ctx, "Section records deleted",
		slog.String("section", schema.Section),
		slog.String("project_id", cmd.ProjectID),
		slog.Int("count", len(deleted)))
	return len(deleted), nil
}

// GetAuditHistory returns the audit entries of the project's records in the section.
func (s *financialDataService) GetAuditHistory(ctx context.Context, section, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	schema, err := resolveSection(section)
	if err != nil {
		return nil, err
	}
	if filter.Action != "" && !filter.Action.IsValid() {
		return nil, apperrors.NewValidationError("action", "must be one of INSERT, UPDATE, DELETE")
	}
	filter.Limit = clampLimit(filter.Limit, defaultSectionAuditLimit)
	return s.auditRepo.ListBySection(ctx, schema.Table, projectID, filter)
}

// GetAuditStats aggregates the audit entries of the project's records in the section.
func (s *financialDataService) GetAuditStats(ctx context.Context, section, projectID string) ([]domain.AuditStat, error) {
	schema, err := resolveSection(section)
	if err != nil {
		return nil, err
	}
	return s.auditRepo.StatsBySection(ctx, schema.Table, projectID)
}

// GetFieldHistory returns the audit entries that changed one field.
func (s *financialDataService) GetFieldHistory(ctx context.Context, section, projectID, field string, limit int) ([]domain.AuditLogEntry, error) {
	schema, err := resolveSection(section)
	if err != nil {
		return nil, err
	}
	if !schema.Allows(field) {
		return nil, apperrors.NewValidationError("fieldName", fmt.Sprintf("unknown field %q for %s, expected one of: %s",
			field, schema.Section, strings.Join(schema.FieldNames(), ", ")))
	}
	return s.auditRepo.ListFieldHistory(ctx, schema.Table, projectID, field, clampLimit(limit, defaultFieldHistoryLimit))
}

// inTx runs fn with section and audit repositories bound to one transaction.
func (s *financialDataService) inTx(ctx context.Context, fn func(portsrepo.SectionRecordRepositoryFacade, portsrepo.AuditLogRepositoryFacade) error) error {
	tx, err := s.sectionRepo.Begin(ctx)
	if err != nil {
		return err
	}
	defer s.rollback(ctx, s.sectionRepo, tx)

	if err := fn(s.sectionRepo.WithTx(tx), s.auditRepo.WithTx(tx)); err != nil {
		return err
	}
	return s.sectionRepo.Commit(ctx, tx)
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxHistoryLimit)
}
