package dto

import "github.com/SscSPs/fin_model_app/internal/core/domain"

// AuditHistoryParams defines query parameters for section and record history.
type AuditHistoryParams struct {
	Limit  int    `form:"limit,default=50" binding:"min=0,max=500"`
	Offset int    `form:"offset,default=0" binding:"min=0"`
	Action string `form:"action" binding:"omitempty,audit_action"`
}

// ToFilter converts the params to a domain filter.
func (p AuditHistoryParams) ToFilter() domain.AuditHistoryFilter {
	return domain.AuditHistoryFilter{
		Limit:  p.Limit,
		Offset: p.Offset,
		Action: domain.AuditAction(p.Action),
	}
}

// ProjectAuditParams defines query parameters for project history.
type ProjectAuditParams struct {
	Limit     int     `form:"limit,default=100" binding:"min=0,max=500"`
	Offset    int     `form:"offset,default=0" binding:"min=0"`
	Action    string  `form:"action" binding:"omitempty,audit_action"`
	NextToken *string `form:"nextToken"`
}

// FieldHistoryParams defines query parameters for the history of one field.
type FieldHistoryParams struct {
	Limit int `form:"limit,default=20" binding:"min=0,max=500"`
}

// CompareVersionsParams identifies two audit entries to compare.
type CompareVersionsParams struct {
	From int64 `form:"from" binding:"required,gt=0"`
	To   int64 `form:"to" binding:"required,gt=0"`
}

// AuditCleanupRequest is the body of the retention cleanup endpoint.
type AuditCleanupRequest struct {
	DaysToKeep int `json:"daysToKeep" binding:"omitempty,gt=0"`
}

// ProjectAuditHistoryResponse is one page of project history.
type ProjectAuditHistoryResponse struct {
	Entries   []domain.AuditLogEntry `json:"entries"`
	NextToken *string                `json:"nextToken,omitempty"`
}

// AuditCleanupResponse reports a retention run.
type AuditCleanupResponse struct {
	DaysToKeep int   `json:"daysToKeep"`
	Deleted    int64 `json:"deleted"`
}

// NonNilEntries returns entries, or an empty slice so it serializes as [].
func NonNilEntries(entries []domain.AuditLogEntry) []domain.AuditLogEntry {
	if entries == nil {
		return []domain.AuditLogEntry{}
	}
	return entries
}
