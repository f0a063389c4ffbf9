package dto

import (
	"time"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/utils/mapping"
)

// UpsertSectionRequest is the body of POST and PUT on a section.
type UpsertSectionRequest struct {
	Data             map[string]any `json:"data" binding:"required"`
	ChangeReason     string         `json:"changeReason" binding:"max=500"`
	CalculateDerived bool           `json:"calculateDerived"`
}

// PatchSectionRequest is the body of PATCH on a section.
type PatchSectionRequest struct {
	FieldUpdates     map[string]any `json:"fieldUpdates" binding:"required"`
	ChangeReason     string         `json:"changeReason" binding:"max=500"`
	CalculateDerived bool           `json:"calculateDerived"`
}

// DeleteSectionRequest is the optional body of DELETE on a section.
type DeleteSectionRequest struct {
	ChangeReason string `json:"changeReason" binding:"max=500"`
}

// SectionRecordResponse is a section record as returned to clients.
type SectionRecordResponse struct {
	ID           int64          `json:"id"`
	ProjectID    string         `json:"projectId"`
	Section      string         `json:"section"`
	Data         map[string]any `json:"data"`
	Version      int            `json:"version"`
	CreatedBy    string         `json:"createdBy"`
	UpdatedBy    string         `json:"updatedBy"`
	ChangeReason string         `json:"changeReason"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	LastModified time.Time      `json:"lastModified"`
}

// AuditInfo summarises what a write did.
type AuditInfo struct {
	ChangesDetected bool     `json:"changesDetected"`
	ChangedFields   []string `json:"changedFields"`
	Action          string   `json:"action,omitempty"`
	Version         int      `json:"version"`
	AuditEntryID    int64    `json:"auditEntryId,omitempty"`
}

// ToSectionRecordResponse converts a domain.SectionRecord to SectionRecordResponse
func ToSectionRecordResponse(r *domain.SectionRecord) SectionRecordResponse {
	return SectionRecordResponse{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		Section:      r.Section,
		Data:         mapping.ToJSONValues(r.Fields),
		Version:      r.Version,
		CreatedBy:    r.CreatedBy,
		UpdatedBy:    r.UpdatedBy,
		ChangeReason: r.ChangeReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastModified: r.LastModified,
	}
}

// ToAuditInfo extracts the audit summary of a save.
func ToAuditInfo(res *domain.SaveResult) *AuditInfo {
	info := &AuditInfo{
		ChangesDetected: res.ChangesDetected,
		ChangedFields:   res.ChangedFields,
		Action:          string(res.Action),
		AuditEntryID:    res.AuditEntryID,
	}
	if info.ChangedFields == nil {
		info.ChangedFields = []string{}
	}
	if res.Record != nil {
		info.Version = res.Record.Version
	}
	return info
}

// ToSaveResponse builds the envelope of a section write.
func ToSaveResponse(res *domain.SaveResult) SuccessResponse {
	resp := SuccessResponse{Success: true, Audit: ToAuditInfo(res)}
	if res.Record != nil {
		resp.Data = ToSectionRecordResponse(res.Record)
	}
	if !res.ChangesDetected {
		resp.Message = "No changes detected"
	}
	return resp
}
