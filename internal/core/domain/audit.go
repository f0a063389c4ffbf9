package domain

import "time"

// AuditAction is the kind of mutation recorded in the audit log.
type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// IsValid reports whether a is a known action.
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditInsert, AuditUpdate, AuditDelete:
		return true
	}
	return false
}

// UnknownIPAddress is the placeholder clients and proxies send when the address is not known.
// It is never stored.
const UnknownIPAddress = "Unknown"

// DefaultAuditChangeReason is stored when a change carries no reason.
const DefaultAuditChangeReason = "No reason provided"

// AuditLogEntry is an immutable row of the audit log.
type AuditLogEntry struct {
	ID              int64          `json:"id"`
	TableName       string         `json:"tableName"`
	RecordID        string         `json:"recordId"`
	Action          AuditAction    `json:"action"`
	OldValues       map[string]any `json:"oldValues"`
	NewValues       map[string]any `json:"newValues"`
	ChangedFields   []string       `json:"changedFields"`
	ChangeReason    string         `json:"changeReason"`
	UserID          string         `json:"userId"`
	IPAddress       *string        `json:"ipAddress"`
	ChangeTimestamp time.Time      `json:"changeTimestamp"`
}

// AuditChange is the input for writing one audit entry.
type AuditChange struct {
	UserID        string
	ProjectID     string
	TableName     string
	RecordID      string
	Action        AuditAction
	OldValues     map[string]any
	NewValues     map[string]any
	ChangedFields []string
	ChangeReason  string
	IPAddress     string
}

// AuditHistoryFilter narrows history queries.
type AuditHistoryFilter struct {
	Limit  int
	Offset int
	Action AuditAction
	// Before restricts results to entries strictly older than the cursor position.
	Before *AuditCursor
}

// AuditCursor is a keyset position in change_timestamp DESC, id DESC order.
type AuditCursor struct {
	Timestamp time.Time
	ID        int64
}

// AuditStat aggregates entries for one action (and table, for project scoped stats).
type AuditStat struct {
	TableName   string      `json:"tableName,omitempty"`
	Action      AuditAction `json:"action"`
	Count       int64       `json:"count"`
	FirstChange time.Time   `json:"firstChange"`
	LastChange  time.Time   `json:"lastChange"`
	UniqueUsers int64       `json:"uniqueUsers"`
}

// DifferenceKind classifies one field difference between two snapshots.
type DifferenceKind string

const (
	DifferenceAdded   DifferenceKind = "added"
	DifferenceRemoved DifferenceKind = "removed"
	DifferenceChanged DifferenceKind = "changed"
)

// FieldDifference is one field that differs between two snapshots.
type FieldDifference struct {
	Field    string         `json:"field"`
	Kind     DifferenceKind `json:"kind"`
	OldValue any            `json:"oldValue"`
	NewValue any            `json:"newValue"`
}

// VersionComparison is the result of comparing two audit snapshots.
type VersionComparison struct {
	From        *AuditLogEntry    `json:"from"`
	To          *AuditLogEntry    `json:"to"`
	Differences []FieldDifference `json:"differences"`
}
