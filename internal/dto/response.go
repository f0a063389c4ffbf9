package dto

// SuccessResponse is the envelope of every successful API response.
type SuccessResponse struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Audit   *AuditInfo `json:"audit,omitempty"`
	Message string     `json:"message,omitempty"`
}

// ErrorResponse is the envelope of every failed API response.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) SuccessResponse {
	return SuccessResponse{Success: true, Data: data}
}

// OKWithMessage wraps data and a human readable message in a success envelope.
func OKWithMessage(data any, message string) SuccessResponse {
	return SuccessResponse{Success: true, Data: data, Message: message}
}

// Fail builds an error envelope.
func Fail(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}
