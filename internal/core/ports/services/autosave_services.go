package services

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
)

// AutoSaveRequest is one debounced or forced save of a section.
type AutoSaveRequest struct {
	ProjectID    string
	Section      string
	Data         domain.FieldValues
	UserID       string
	ChangeReason string
	IPAddress    string
}

// AutoSaveSvc coalesces rapid edits into debounced saves.
type AutoSaveSvc interface {
	// AutoSave replaces any pending save for the key and arms a new timer.
	AutoSave(ctx context.Context, req AutoSaveRequest) (*domain.SaveStatus, error)

	// ForceSave discards any pending save for the key and saves immediately.
	ForceSave(ctx context.Context, req AutoSaveRequest) (*domain.SaveResult, error)

	// CancelPendingSaves discards every pending save of the project and returns how many there were.
	CancelPendingSaves(projectID string) int

	// GetSaveStatus reports the pending state and last outcome of one key.
	GetSaveStatus(projectID, section string) (*domain.SaveStatus, error)

	// Shutdown stops every timer.
	Shutdown()
}
