package errors

import (
	"fmt"
	"net/http"
)

// AppError is the error envelope the API returns: a stable machine code,
// a human message, optional detail, and the HTTP status handlers should
// respond with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// Machine-readable codes, one per constructor.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeConflict      = "CONFLICT"
	CodeInternalError = "INTERNAL_ERROR"
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnprocessable = "UNPROCESSABLE_ENTITY"
)

func newError(code string, status int, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details, Status: status}
}

// Validation flags request data that failed a domain rule.
func Validation(message, details string) *AppError {
	return newError(CodeValidation, http.StatusBadRequest, message, details)
}

// NotFound names the missing resource; the message is derived from it.
func NotFound(resource string) *AppError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), "")
}

func Unauthorized(message string) *AppError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, "")
}

func Forbidden(message string) *AppError {
	return newError(CodeForbidden, http.StatusForbidden, message, "")
}

func Conflict(message string) *AppError {
	return newError(CodeConflict, http.StatusConflict, message, "")
}

// Internal wraps unexpected failures; details carry the underlying error
// text for the logs, never shown to students.
func Internal(message, details string) *AppError {
	return newError(CodeInternalError, http.StatusInternalServerError, message, details)
}

func BadRequest(message string) *AppError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, "")
}

// Unprocessable rejects a well-formed request against a closed or
// expired resource.
func Unprocessable(message, details string) *AppError {
	return newError(CodeUnprocessable, http.StatusUnprocessableEntity, message, details)
}
