package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	searchErrors "github.com/gcbaptista/go-search-gateway/internal/errors"
)

// ErrorCode represents standardized error codes for the API
type ErrorCode string

const (
	// Client Error Codes (4xx)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeIndexNotFound           ErrorCode = "INDEX_NOT_FOUND"
	ErrorCodeBackendNotFound         ErrorCode = "BACKEND_NOT_FOUND"
	ErrorCodeDocumentNotFound        ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrorCodeRuleNotFound            ErrorCode = "RULE_NOT_FOUND"
	ErrorCodePromotionNotFound       ErrorCode = "PROMOTION_NOT_FOUND"
	ErrorCodeJobNotFound             ErrorCode = "JOB_NOT_FOUND"
	ErrorCodeAlreadyExists           ErrorCode = "ALREADY_EXISTS"
	ErrorCodeDefaultBackendProtected ErrorCode = "DEFAULT_BACKEND_PROTECTED"
	ErrorCodeJobInProgress           ErrorCode = "JOB_IN_PROGRESS"
	ErrorCodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidJSON             ErrorCode = "INVALID_JSON"
	ErrorCodeRequestCancelled        ErrorCode = "REQUEST_CANCELLED"

	// Server Error Codes (5xx)
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeBackendUnresolved  ErrorCode = "BACKEND_UNRESOLVED"
	ErrorCodeNoSearchCapability ErrorCode = "NO_SEARCH_CAPABILITY"
	ErrorCodeSearchFailed       ErrorCode = "SEARCH_FAILED"
	ErrorCodeIndexingFailed     ErrorCode = "INDEXING_FAILED"
)

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

// ErrorDetail provides additional context for an error
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError represents a standardized API error response
type APIError struct {
	Error     string        `json:"error"`
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIErrorResponse creates a standardized error response
func APIErrorResponse(code ErrorCode, message string, details ...ErrorDetail) *APIError {
	return &APIError{
		Error:     "Request failed",
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// SendError sends a standardized error response
func SendError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...ErrorDetail) {
	errorResponse := APIErrorResponse(code, message, details...)
	errorResponse.RequestID = c.GetString(requestIDKey)
	c.AbortWithStatusJSON(statusCode, errorResponse)
}

// SendValidationError sends every problem of a validation result at once.
func SendValidationError(c *gin.Context, result *ValidationResult) {
	details := make([]ErrorDetail, len(result.Errors))
	for i, err := range result.Errors {
		details[i] = ErrorDetail{
			Field:   err.Field,
			Message: err.Message,
			Code:    "VALIDATION_ERROR",
		}
	}

	SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, "Request validation failed", details...)
}

// SendInvalidJSONError sends an error for a body that could not be decoded.
func SendInvalidJSONError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON, "Invalid request body: "+err.Error())
}

// SendServiceError maps an error returned by a component to its HTTP status
// and error code. Anything unrecognised is reported as an internal error of
// operation.
func SendServiceError(c *gin.Context, operation string, err error) {
	var validation *searchErrors.ValidationError
	switch {
	case errors.As(err, &validation):
		details := ErrorDetail{Field: validation.Field, Message: validation.Message, Code: "VALIDATION_ERROR"}
		SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error(), details)
	case errors.Is(err, searchErrors.ErrInvalidInput):
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, searchErrors.ErrIndexNotFound):
		SendError(c, http.StatusNotFound, ErrorCodeIndexNotFound, err.Error())
	case errors.Is(err, searchErrors.ErrBackendNotFound):
		SendError(c, http.StatusNotFound, ErrorCodeBackendNotFound, err.Error())
	case errors.Is(err, searchErrors.ErrDocumentNotFound):
		SendError(c, http.StatusNotFound, ErrorCodeDocumentNotFound, err.Error())
	case errors.Is(err, searchErrors.ErrRuleNotFound):
		SendError(c, http.StatusNotFound, ErrorCodeRuleNotFound, err.Error())
	case errors.Is(err, searchErrors.ErrPromotionNotFound):
		SendError(c, http.StatusNotFound, ErrorCodePromotionNotFound, err.Error())
	case errors.Is(err, searchErrors.ErrJobNotFound):
		SendError(c, http.StatusNotFound, ErrorCodeJobNotFound, err.Error())
	case errors.Is(err, searchErrors.ErrIndexAlreadyExists), errors.Is(err, searchErrors.ErrBackendAlreadyExists):
		SendError(c, http.StatusConflict, ErrorCodeAlreadyExists, err.Error())
	case errors.Is(err, searchErrors.ErrDefaultBackendProtected):
		SendError(c, http.StatusConflict, ErrorCodeDefaultBackendProtected, err.Error())
	case errors.Is(err, searchErrors.ErrNoSearchCapability):
		SendError(c, http.StatusServiceUnavailable, ErrorCodeNoSearchCapability, err.Error())
	case errors.Is(err, searchErrors.ErrBackendNotResolved):
		SendError(c, http.StatusServiceUnavailable, ErrorCodeBackendUnresolved, err.Error())
	case errors.Is(err, context.Canceled):
		SendError(c, statusClientClosedRequest, ErrorCodeRequestCancelled, "Request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		SendError(c, http.StatusGatewayTimeout, ErrorCodeSearchFailed, "Request timed out during "+operation)
	default:
		SendInternalError(c, operation, err)
	}
}

// SendInternalError sends a standardized internal server error
func SendInternalError(c *gin.Context, operation string, err error) {
	SendError(c, http.StatusInternalServerError, ErrorCodeInternalError,
		"Internal error during "+operation+": "+err.Error())
}
