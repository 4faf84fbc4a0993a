// Package api provides validation utilities for API request handling.
package api

import (
	"fmt"
	"strings"

	"github.com/gcbaptista/go-search-gateway/model"
)

// maxMultiSearchQueries bounds the queries one multi-search request may carry.
const maxMultiSearchQueries = 20

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidateHandle validates a backend or index handle taken from the path.
func ValidateHandle(field, handle string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if handle == "" {
		result.AddError(field, "Handle is required")
		return result
	}
	if !model.ValidHandle(handle) {
		result.AddError(field, "Handle may only contain letters, digits, '-' and '_'")
	}
	return result
}

// ValidateDocumentID validates a document ID
func ValidateDocumentID(documentID string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if documentID == "" {
		result.AddError("documentID", "Document ID is required")
		return result
	}

	if strings.TrimSpace(documentID) != documentID {
		result.AddError("documentID", "Document ID cannot have leading or trailing whitespace")
		return result
	}

	return result
}

// ValidateSearchRequest checks the shape of a search request. Query length
// and index existence are checked by the search service, which answers them
// with a rejected response rather than an error.
func ValidateSearchRequest(req *SearchRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(req.Indices) == 0 {
		result.AddError("indices", "At least one index is required")
	}
	for i, handle := range req.Indices {
		if strings.TrimSpace(handle) == "" {
			result.AddError(fmt.Sprintf("indices[%d]", i), "Index handle cannot be empty")
		}
	}
	if req.Limit != nil && *req.Limit < 0 {
		result.AddError("limit", "Limit cannot be negative")
	}
	if req.SiteID < 0 {
		result.AddError("site_id", "Site ID cannot be negative")
	}
	return result
}

// ValidateMultiSearchRequest validates every named query and their names.
func ValidateMultiSearchRequest(req *MultiSearchRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(req.Queries) == 0 {
		result.AddError("queries", "At least one query is required")
		return result
	}
	if len(req.Queries) > maxMultiSearchQueries {
		result.AddError("queries", fmt.Sprintf("At most %d queries are allowed", maxMultiSearchQueries))
		return result
	}

	names := make(map[string]bool, len(req.Queries))
	for i, q := range req.Queries {
		prefix := fmt.Sprintf("queries[%d]", i)
		if q.Name == "" {
			result.AddError(prefix+".name", "Query name is required")
		} else if names[q.Name] {
			result.AddError(prefix+".name", fmt.Sprintf("Duplicate query name '%s'", q.Name))
		}
		names[q.Name] = true

		inner := ValidateSearchRequest(&q.SearchRequest)
		for _, e := range inner.Errors {
			result.AddError(prefix+"."+e.Field, e.Message)
		}
	}
	return result
}

// ValidateDocuments checks a batch before it is sent to a backend.
func ValidateDocuments(docs []model.Document) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(docs) == 0 {
		result.AddError("documents", "At least one document is required")
		return result
	}
	for i, doc := range docs {
		if doc == nil {
			result.AddError(fmt.Sprintf("documents[%d]", i), "Document cannot be null")
		}
	}
	return result
}
