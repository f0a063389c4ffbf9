package dto

// AutoSaveRequest is the body of the auto-save and force-save endpoints.
type AutoSaveRequest struct {
	Data         map[string]any `json:"data" binding:"required"`
	ChangeReason string         `json:"changeReason" binding:"max=500"`
}

// CancelPendingSavesResponse reports how many pending saves were dropped.
type CancelPendingSavesResponse struct {
	ProjectID string `json:"projectId"`
	Cancelled int    `json:"cancelled"`
}
