// Package utils holds the JSON envelope shared by the planner endpoints.
package utils

import "time"

// APIResponse is the envelope for operational endpoints and error replies.
// Entity reads return the entity directly; everything else wraps its payload
// here so clients can branch on Success uniformly.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SuccessResponse wraps data in a positive envelope.
func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse wraps a failure. The human-readable message and the
// underlying error detail stay separate fields.
func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     detail,
		Timestamp: time.Now().UTC(),
	}
}
