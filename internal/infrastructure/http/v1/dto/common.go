// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// Response is the envelope of every API response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail wraps an error body in a failed envelope.
func Fail(code, message string, details map[string]any) Response {
	return Response{Success: false, Error: &ErrorBody{Code: code, Message: message, Details: details}}
}
