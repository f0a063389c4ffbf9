package models

import "time"

// AuditLogEntry represents a row of data_entry_audit_log.
type AuditLogEntry struct {
	ID              int64     `db:"id"`
	TableName       string    `db:"table_name"`
	RecordID        string    `db:"record_id"`
	Action          string    `db:"action"`
	OldValues       []byte    `db:"old_values"`
	NewValues       []byte    `db:"new_values"`
	ChangedFields   []string  `db:"changed_fields"`
	ChangeReason    *string   `db:"change_reason"`
	UserID          *string   `db:"user_id"`
	IPAddress       *string   `db:"ip_address"`
	ChangeTimestamp time.Time `db:"change_timestamp"`
}

// AuditStat is one aggregated row of audit statistics.
type AuditStat struct {
	TableName   *string   `db:"table_name"`
	Action      string    `db:"action"`
	Count       int64     `db:"change_count"`
	FirstChange time.Time `db:"first_change"`
	LastChange  time.Time `db:"last_change"`
	UniqueUsers int64     `db:"unique_users"`
}
