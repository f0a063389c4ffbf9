package models

import "time"

// AuditFields holds the bookkeeping columns of a section row.
type AuditFields struct {
	Version      int       `db:"version"`
	CreatedBy    *string   `db:"created_by"`
	UpdatedBy    *string   `db:"updated_by"`
	ChangeReason *string   `db:"change_reason"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastModified time.Time `db:"last_modified"`
}
