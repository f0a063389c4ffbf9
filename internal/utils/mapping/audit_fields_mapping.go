package mapping

import (
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/models"
)

// ToDomainAuditFields converts a model AuditFields to a domain AuditFields
func ToDomainAuditFields(m models.AuditFields) domain.AuditFields {
	return domain.AuditFields{
		Version:      m.Version,
		CreatedBy:    derefString(m.CreatedBy),
		UpdatedBy:    derefString(m.UpdatedBy),
		ChangeReason: derefString(m.ChangeReason),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		LastModified: m.LastModified,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
