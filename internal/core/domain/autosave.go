package domain

import "time"

// SaveStatus reports the auto-save state of one project section.
type SaveStatus struct {
	ProjectID   string     `json:"projectId"`
	Section     string     `json:"section"`
	Pending     bool       `json:"pending"`
	RemainingMs int64      `json:"remainingMs"`
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
	LastVersion int        `json:"lastVersion,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	LastErrorAt *time.Time `json:"lastErrorAt,omitempty"`
}

// SaveFailure describes a debounced save that failed after its timer fired.
type SaveFailure struct {
	ProjectID string
	Section   string
	UserID    string
	Err       error
	At        time.Time
}
