package domain

// SectionRecord is one row of a section table for a project.
type SectionRecord struct {
	ID        int64       `json:"id"`
	ProjectID string      `json:"projectId"`
	Section   string      `json:"section"`
	Fields    FieldValues `json:"fields"`
	AuditFields
}

// DefaultInitialChangeReason is used when the first write for a project carries no reason.
const DefaultInitialChangeReason = "Initial creation"

// SaveResult describes the outcome of an upsert.
type SaveResult struct {
	Record          *SectionRecord
	ChangesDetected bool
	ChangedFields   []string
	// Action is empty when nothing was written.
	Action AuditAction
	// AuditEntryID is zero when nothing was written.
	AuditEntryID int64
}

// UpsertCommand carries a write request against one section of a project.
type UpsertCommand struct {
	Section      string
	ProjectID    string
	Data         FieldValues
	UserID       string
	ChangeReason string
	IPAddress    string
	// CalculateDerived recomputes dependent totals before change detection.
	CalculateDerived bool
}

// DeleteCommand carries a delete request against one section of a project.
type DeleteCommand struct {
	Section      string
	ProjectID    string
	UserID       string
	ChangeReason string
	IPAddress    string
}
