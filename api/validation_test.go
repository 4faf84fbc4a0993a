package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gcbaptista/go-search-gateway/model"
)

func intPtr(i int) *int { return &i }

func TestValidationResult_AddError(t *testing.T) {
	result := &ValidationResult{Valid: true}
	assert.False(t, result.HasErrors())

	result.AddError("field1", "error message")

	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors())
	assert.Equal(t, []ValidationError{{Field: "field1", Message: "error message"}}, result.Errors)
}

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		name      string
		handle    string
		wantValid bool
	}{
		{name: "letters and digits", handle: "products2", wantValid: true},
		{name: "dash and underscore", handle: "help-center_en", wantValid: true},
		{name: "empty", handle: ""},
		{name: "space", handle: "bad handle"},
		{name: "slash", handle: "a/b"},
		{name: "dot", handle: "a.b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateHandle("handle", tt.handle)
			assert.Equal(t, tt.wantValid, !result.HasErrors(), result.Errors)
			if !tt.wantValid {
				assert.Equal(t, "handle", result.Errors[0].Field)
			}
		})
	}
}

func TestValidateDocumentID(t *testing.T) {
	tests := []struct {
		name       string
		documentID string
		wantValid  bool
	}{
		{name: "valid", documentID: "1234", wantValid: true},
		{name: "empty", documentID: ""},
		{name: "leading whitespace", documentID: " 1234"},
		{name: "trailing whitespace", documentID: "1234 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValid, !ValidateDocumentID(tt.documentID).HasErrors())
		})
	}
}

func TestValidateSearchRequest(t *testing.T) {
	tests := []struct {
		name       string
		req        SearchRequest
		wantFields []string
	}{
		{
			name: "valid",
			req:  SearchRequest{Indices: []string{"products"}, Query: "laptop", Limit: intPtr(0)},
		},
		{
			name: "empty query is left to the search service",
			req:  SearchRequest{Indices: []string{"products"}},
		},
		{
			name:       "no indices",
			req:        SearchRequest{Query: "laptop"},
			wantFields: []string{"indices"},
		},
		{
			name:       "blank index and negative numbers",
			req:        SearchRequest{Indices: []string{"products", " "}, Query: "laptop", Limit: intPtr(-5), SiteID: -1},
			wantFields: []string{"indices[1]", "limit", "site_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateSearchRequest(&tt.req)
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			if len(tt.wantFields) == 0 {
				assert.Empty(t, fields)
				return
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidateMultiSearchRequest(t *testing.T) {
	named := func(name string, indices ...string) NamedSearchRequest {
		return NamedSearchRequest{Name: name, SearchRequest: SearchRequest{Indices: indices, Query: "q"}}
	}

	tests := []struct {
		name       string
		req        MultiSearchRequest
		wantFields []string
	}{
		{
			name: "valid",
			req:  MultiSearchRequest{Queries: []NamedSearchRequest{named("a", "products"), named("b", "docs")}},
		},
		{
			name:       "empty",
			req:        MultiSearchRequest{},
			wantFields: []string{"queries"},
		},
		{
			name:       "missing name and duplicate",
			req:        MultiSearchRequest{Queries: []NamedSearchRequest{named("", "products"), named("a", "x"), named("a", "y")}},
			wantFields: []string{"queries[0].name", "queries[2].name"},
		},
		{
			name:       "inner errors are prefixed",
			req:        MultiSearchRequest{Queries: []NamedSearchRequest{named("a")}},
			wantFields: []string{"queries[0].indices"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateMultiSearchRequest(&tt.req)
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			if len(tt.wantFields) == 0 {
				assert.Empty(t, fields)
				return
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}

	t.Run("too many queries", func(t *testing.T) {
		req := MultiSearchRequest{}
		for i := 0; i <= maxMultiSearchQueries; i++ {
			req.Queries = append(req.Queries, named(string(rune('a'+i)), "products"))
		}
		assert.True(t, ValidateMultiSearchRequest(&req).HasErrors())
	})
}

func TestValidateDocuments(t *testing.T) {
	tests := []struct {
		name      string
		docs      []model.Document
		wantValid bool
	}{
		{name: "one document", docs: []model.Document{{"id": "1"}}, wantValid: true},
		{name: "empty batch"},
		{name: "null entry", docs: []model.Document{{"id": "1"}, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValid, !ValidateDocuments(tt.docs).HasErrors())
		})
	}
}
