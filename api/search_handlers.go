package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/services"
)

const debugTokenHeader = "X-Debug-Token"

// SearchRequest defines the structure for search queries.
type SearchRequest struct {
	Indices  []string `json:"indices"`
	Query    string   `json:"query"`
	Limit    *int     `json:"limit,omitempty"` // absent uses the default limit, 0 returns everything
	Type     string   `json:"type,omitempty"`
	SiteID   int      `json:"site_id,omitempty"`
	Language string   `json:"language,omitempty"`
}

// MultiSearchRequest represents the JSON request for multi-search
type MultiSearchRequest struct {
	Queries []NamedSearchRequest `json:"queries"`
}

// NamedSearchRequest represents a single named search query in the request
type NamedSearchRequest struct {
	Name string `json:"name"`
	SearchRequest
}

func (r *SearchRequest) searchContext(defaultLimit int) services.SearchContext {
	limit := defaultLimit
	if r.Limit != nil {
		limit = *r.Limit
	}
	return services.SearchContext{
		IndexHandles: r.Indices,
		Query:        r.Query,
		SiteID:       r.SiteID,
		Language:     r.Language,
		Options:      services.SearchOptions{Limit: limit, Type: r.Type},
	}
}

// SearchHandler runs a query through the full pipeline. Rejected input
// still answers 200 with an empty result and meta.rejected set.
func (api *API) SearchHandler(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateSearchRequest(&req); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	resp, err := api.search.Search(c.Request.Context(), req.searchContext(api.defaultLimit))
	if err != nil {
		SendServiceError(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, shapeResponse(resp, api.debugAuthorized(c)))
}

// MultiSearchHandler runs several named searches concurrently.
func (api *API) MultiSearchHandler(c *gin.Context) {
	var req MultiSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateMultiSearchRequest(&req); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	query := services.MultiSearchQuery{Queries: make([]services.NamedSearchQuery, len(req.Queries))}
	for i := range req.Queries {
		query.Queries[i] = services.NamedSearchQuery{
			Name:          req.Queries[i].Name,
			SearchContext: req.Queries[i].searchContext(api.defaultLimit),
		}
	}

	result, err := api.search.MultiSearch(c.Request.Context(), query)
	if err != nil {
		SendServiceError(c, "multi-search", err)
		return
	}

	debug := api.debugAuthorized(c)
	shaped := *result
	shaped.Results = make(map[string]*services.SearchResponse, len(result.Results))
	for name, resp := range result.Results {
		shaped.Results[name] = shapeResponse(resp, debug)
	}
	c.JSON(http.StatusOK, &shaped)
}

// debugAuthorized reports whether the caller asked for debug metadata and
// presented the configured token.
func (api *API) debugAuthorized(c *gin.Context) bool {
	if api.debugToken == "" || c.Query("debug") != "true" {
		return false
	}
	token := c.GetHeader(debugTokenHeader)
	return subtle.ConstantTimeCompare([]byte(token), []byte(api.debugToken)) == 1
}

// shapeResponse strips debug metadata for unauthorized callers. The
// response may be shared with concurrent callers, so it is copied.
func shapeResponse(resp *services.SearchResponse, debug bool) *services.SearchResponse {
	if debug || resp == nil {
		return resp
	}
	out := *resp
	out.Meta = resp.Meta.Public()
	return &out
}
