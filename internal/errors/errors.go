package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrIndexNotFound is returned when a logical index is not configured
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexAlreadyExists is returned when creating an index whose handle is taken
	ErrIndexAlreadyExists = errors.New("index already exists")

	// ErrBackendNotFound is returned when a configured backend is not found
	ErrBackendNotFound = errors.New("backend not found")

	// ErrBackendAlreadyExists is returned when creating a backend whose handle is taken
	ErrBackendAlreadyExists = errors.New("backend already exists")

	// ErrBackendNotResolved is returned when an index has no usable backend
	ErrBackendNotResolved = errors.New("no backend resolved for index")

	// ErrNoSearchCapability is returned when no requested index could be searched at all
	ErrNoSearchCapability = errors.New("no search capability available")

	// ErrDefaultBackendProtected is returned when deleting or disabling the default backend
	ErrDefaultBackendProtected = errors.New("default backend cannot be deleted or disabled")

	// ErrRuleNotFound is returned when a query rule is not found
	ErrRuleNotFound = errors.New("rule not found")

	// ErrPromotionNotFound is returned when a promotion is not found
	ErrPromotionNotFound = errors.New("promotion not found")

	// ErrDocumentNotFound is returned when a document is not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

// IndexNotFoundError represents an index not found error with context
type IndexNotFoundError struct {
	Handle string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index '%s' not found", e.Handle)
}

func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound
}

// NewIndexNotFoundError creates a new IndexNotFoundError
func NewIndexNotFoundError(handle string) *IndexNotFoundError {
	return &IndexNotFoundError{Handle: handle}
}

// AlreadyExistsError is returned when a catalog handle is already taken.
type AlreadyExistsError struct {
	Kind   string // "index" or "backend"
	Handle string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Kind, e.Handle)
}

func (e *AlreadyExistsError) Is(target error) bool {
	if e.Kind == "backend" {
		return target == ErrBackendAlreadyExists
	}
	return target == ErrIndexAlreadyExists
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(kind, handle string) *AlreadyExistsError {
	return &AlreadyExistsError{Kind: kind, Handle: handle}
}

// BackendNotFoundError represents a backend not found error with context
type BackendNotFoundError struct {
	Handle string
}

func (e *BackendNotFoundError) Error() string {
	return fmt.Sprintf("backend '%s' not found", e.Handle)
}

func (e *BackendNotFoundError) Is(target error) bool {
	return target == ErrBackendNotFound
}

// NewBackendNotFoundError creates a new BackendNotFoundError
func NewBackendNotFoundError(handle string) *BackendNotFoundError {
	return &BackendNotFoundError{Handle: handle}
}

// BackendNotResolvedError explains why an index could not be mapped to a backend.
type BackendNotResolvedError struct {
	IndexHandle string
	Reason      string
}

func (e *BackendNotResolvedError) Error() string {
	return fmt.Sprintf("no backend resolved for index '%s': %s", e.IndexHandle, e.Reason)
}

func (e *BackendNotResolvedError) Is(target error) bool {
	return target == ErrBackendNotResolved
}

// NewBackendNotResolvedError creates a new BackendNotResolvedError
func NewBackendNotResolvedError(indexHandle, reason string) *BackendNotResolvedError {
	return &BackendNotResolvedError{IndexHandle: indexHandle, Reason: reason}
}

// DefaultBackendProtectedError is returned by the catalog guard.
type DefaultBackendProtectedError struct {
	Handle string
}

func (e *DefaultBackendProtectedError) Error() string {
	return fmt.Sprintf("backend '%s' is the default backend and cannot be deleted or disabled", e.Handle)
}

func (e *DefaultBackendProtectedError) Is(target error) bool {
	return target == ErrDefaultBackendProtected
}

// NewDefaultBackendProtectedError creates a new DefaultBackendProtectedError
func NewDefaultBackendProtectedError(handle string) *DefaultBackendProtectedError {
	return &DefaultBackendProtectedError{Handle: handle}
}

// RuleNotFoundError represents a rule not found error with context
type RuleNotFoundError struct {
	RuleID string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("rule with ID '%s' not found", e.RuleID)
}

func (e *RuleNotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}

// NewRuleNotFoundError creates a new RuleNotFoundError
func NewRuleNotFoundError(ruleID string) *RuleNotFoundError {
	return &RuleNotFoundError{RuleID: ruleID}
}

// PromotionNotFoundError represents a promotion not found error with context
type PromotionNotFoundError struct {
	PromotionID string
}

func (e *PromotionNotFoundError) Error() string {
	return fmt.Sprintf("promotion with ID '%s' not found", e.PromotionID)
}

func (e *PromotionNotFoundError) Is(target error) bool {
	return target == ErrPromotionNotFound
}

// NewPromotionNotFoundError creates a new PromotionNotFoundError
func NewPromotionNotFoundError(promotionID string) *PromotionNotFoundError {
	return &PromotionNotFoundError{PromotionID: promotionID}
}

// DocumentNotFoundError represents a document not found error with context
type DocumentNotFoundError struct {
	Key         string
	IndexHandle string
}

func (e *DocumentNotFoundError) Error() string {
	if e.IndexHandle != "" {
		return fmt.Sprintf("document '%s' not found in index '%s'", e.Key, e.IndexHandle)
	}
	return fmt.Sprintf("document '%s' not found", e.Key)
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrDocumentNotFound
}

// NewDocumentNotFoundError creates a new DocumentNotFoundError
func NewDocumentNotFoundError(key string, indexHandle ...string) *DocumentNotFoundError {
	err := &DocumentNotFoundError{Key: key}
	if len(indexHandle) > 0 {
		err.IndexHandle = indexHandle[0]
	}
	return err
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
