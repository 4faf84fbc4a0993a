package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIndexNotFoundError(t *testing.T) {
	err := NewIndexNotFoundError("products")

	expectedMsg := "index 'products' not found"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}

	if !errors.Is(err, ErrIndexNotFound) {
		t.Error("Expected error to match ErrIndexNotFound sentinel")
	}
	if errors.Is(err, ErrBackendNotFound) {
		t.Error("Error should not match ErrBackendNotFound")
	}
}

func TestAlreadyExistsError(t *testing.T) {
	backendErr := NewAlreadyExistsError("backend", "primary")
	if !errors.Is(backendErr, ErrBackendAlreadyExists) {
		t.Error("Expected backend error to match ErrBackendAlreadyExists")
	}
	if errors.Is(backendErr, ErrIndexAlreadyExists) {
		t.Error("Backend error should not match ErrIndexAlreadyExists")
	}

	indexErr := NewAlreadyExistsError("index", "docs")
	if !errors.Is(indexErr, ErrIndexAlreadyExists) {
		t.Error("Expected index error to match ErrIndexAlreadyExists")
	}
	if indexErr.Error() != "index 'docs' already exists" {
		t.Errorf("Unexpected message: %s", indexErr.Error())
	}
}

func TestBackendNotResolvedError(t *testing.T) {
	err := NewBackendNotResolvedError("docs", "backend 'es' is disabled")

	expectedMsg := "no backend resolved for index 'docs': backend 'es' is disabled"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
	if !errors.Is(err, ErrBackendNotResolved) {
		t.Error("Expected error to match ErrBackendNotResolved sentinel")
	}
}

func TestDocumentNotFoundError(t *testing.T) {
	err := NewDocumentNotFoundError("12:1")
	if err.Error() != "document '12:1' not found" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	err2 := NewDocumentNotFoundError("12:1", "docs")
	if err2.Error() != "document '12:1' not found in index 'docs'" {
		t.Errorf("Unexpected message: %s", err2.Error())
	}
	if !errors.Is(err2, ErrDocumentNotFound) {
		t.Error("Expected error to match ErrDocumentNotFound sentinel")
	}
}

func TestNotFoundErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"rule", NewRuleNotFoundError("r1"), ErrRuleNotFound, "rule with ID 'r1' not found"},
		{"promotion", NewPromotionNotFoundError("p1"), ErrPromotionNotFound, "promotion with ID 'p1' not found"},
		{"job", NewJobNotFoundError("j1"), ErrJobNotFound, "job with ID 'j1' not found"},
		{"backend", NewBackendNotFoundError("b1"), ErrBackendNotFound, "backend 'b1' not found"},
		{"default backend", NewDefaultBackendProtectedError("b1"), ErrDefaultBackendProtected, "backend 'b1' is the default backend and cannot be deleted or disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.message {
				t.Errorf("Expected message '%s', got '%s'", tt.message, tt.err.Error())
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("Expected %T to match its sentinel", tt.err)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("query", "query is too long")
	if err.Error() != "validation error for field 'query': query is too long" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	bare := NewValidationError("", "bad payload")
	if bare.Error() != "validation error: bad payload" {
		t.Errorf("Unexpected message: %s", bare.Error())
	}
	if !errors.Is(bare, ErrInvalidInput) {
		t.Error("Expected error to match ErrInvalidInput sentinel")
	}
}

func TestWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("search failed: %w", NewIndexNotFoundError("docs"))

	if !errors.Is(wrapped, ErrIndexNotFound) {
		t.Error("Expected wrapped error to match ErrIndexNotFound")
	}

	var target *IndexNotFoundError
	if !errors.As(wrapped, &target) {
		t.Fatal("Expected errors.As to find IndexNotFoundError")
	}
	if target.Handle != "docs" {
		t.Errorf("Expected handle 'docs', got '%s'", target.Handle)
	}
}
