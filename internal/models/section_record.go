package models

// SectionRow is a row of any section table. Field values are read back as text and
// typed by the section schema during mapping.
type SectionRow struct {
	ID        int64  `db:"id"`
	ProjectID string `db:"project_id"`
	AuditFields
	Values map[string]*string
}
