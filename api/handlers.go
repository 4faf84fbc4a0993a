package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/internal/catalog"
	"github.com/gcbaptista/go-search-gateway/internal/jobs"
	"github.com/gcbaptista/go-search-gateway/internal/promotions"
	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/internal/search"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// BackendStatusReporter reports the health of configured backends.
type BackendStatusReporter interface {
	StatusAll(ctx context.Context, defs []model.BackendDefinition) []services.BackendStatus
}

// Dependencies are the components the HTTP layer serves.
type Dependencies struct {
	Search     *search.Service
	Matcher    *rules.Matcher
	Rules      *rules.Store
	Promotions *promotions.Store
	Catalog    *catalog.Manager
	Backends   BackendStatusReporter
	Jobs       *jobs.Manager

	DebugToken   string // empty disables debug metadata
	DefaultLimit int    // applied when a search request carries no limit
	Logger       *slog.Logger
}

// API holds dependencies for API handlers.
type API struct {
	search       *search.Service
	matcher      *rules.Matcher
	rules        *rules.Store
	promotions   *promotions.Store
	catalog      *catalog.Manager
	backends     BackendStatusReporter
	jobs         *jobs.Manager
	debugToken   string
	defaultLimit int
	logger       *slog.Logger
}

// NewAPI creates a new API handler structure.
func NewAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		search:       deps.Search,
		matcher:      deps.Matcher,
		rules:        deps.Rules,
		promotions:   deps.Promotions,
		catalog:      deps.Catalog,
		backends:     deps.Backends,
		jobs:         deps.Jobs,
		debugToken:   deps.DebugToken,
		defaultLimit: deps.DefaultLimit,
		logger:       logger,
	}
}

// SetupRoutes defines all the API routes of the gateway.
func SetupRoutes(router *gin.Engine, api *API) {
	router.GET("/health", api.HealthCheckHandler)

	// Public search
	router.POST("/search", api.SearchHandler)
	router.POST("/multi-search", api.MultiSearchHandler)

	// Invalidation hooks
	router.POST("/cache/invalidate", api.InvalidateAllHandler)
	router.POST("/cache/invalidate/:handle", api.InvalidateIndexHandler)
	router.POST("/content/changed", api.ContentChangedHandler)

	ruleRoutes := router.Group("/rules")
	{
		ruleRoutes.GET("", api.ListRulesHandler)
		ruleRoutes.POST("", api.CreateRuleHandler)
		ruleRoutes.POST("/test", api.TestRuleHandler) // Preview which rules a query matches
		ruleRoutes.GET("/:ruleId", api.GetRuleHandler)
		ruleRoutes.PUT("/:ruleId", api.UpdateRuleHandler)
		ruleRoutes.DELETE("/:ruleId", api.DeleteRuleHandler)
		ruleRoutes.POST("/:ruleId/toggle", api.ToggleRuleHandler)
	}

	promotionRoutes := router.Group("/promotions")
	{
		promotionRoutes.GET("", api.ListPromotionsHandler)
		promotionRoutes.POST("", api.CreatePromotionHandler)
		promotionRoutes.GET("/:promotionId", api.GetPromotionHandler)
		promotionRoutes.PUT("/:promotionId", api.UpdatePromotionHandler)
		promotionRoutes.DELETE("/:promotionId", api.DeletePromotionHandler)
	}

	router.GET("/defaults", api.GetDefaultsHandler)
	router.PUT("/defaults", api.SetDefaultsHandler)

	backendRoutes := router.Group("/backends")
	{
		backendRoutes.GET("", api.ListBackendsHandler)
		backendRoutes.POST("", api.CreateBackendHandler)
		backendRoutes.GET("/status", api.BackendStatusHandler)
		backendRoutes.GET("/:handle", api.GetBackendHandler)
		backendRoutes.PUT("/:handle", api.UpdateBackendHandler)
		backendRoutes.DELETE("/:handle", api.DeleteBackendHandler)
	}

	indexRoutes := router.Group("/indexes")
	{
		indexRoutes.GET("", api.ListIndexesHandler)
		indexRoutes.POST("", api.CreateIndexHandler)
		indexRoutes.GET("/:handle", api.GetIndexHandler)
		indexRoutes.PUT("/:handle", api.UpdateIndexHandler)
		indexRoutes.DELETE("/:handle", api.DeleteIndexHandler)
		indexRoutes.GET("/:handle/stats", api.GetIndexStatsHandler)
		indexRoutes.GET("/:handle/jobs", api.ListJobsHandler)
		indexRoutes.POST("/:handle/rebuild", api.RebuildIndexHandler)

		docRoutes := indexRoutes.Group("/:handle/documents")
		{
			docRoutes.PUT("", api.AddDocumentsHandler)
			docRoutes.DELETE("/:documentId", api.DeleteDocumentHandler)
		}
	}

	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("", api.ListJobsHandler)
		jobRoutes.GET("/stats", api.GetJobStatsHandler)
		jobRoutes.GET("/:jobId", api.GetJobHandler)
	}
}

// HealthCheckHandler provides a simple health check endpoint
func (api *API) HealthCheckHandler(c *gin.Context) {
	snap := api.catalog.Snapshots().Load()
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         "go-search-gateway",
		"default_backend": snap.DefaultBackend,
		"indices":         len(snap.IndexHandles()),
		"timestamp":       time.Now().Unix(),
	})
}

// InvalidateAllHandler drops every cached search result.
func (api *API) InvalidateAllHandler(c *gin.Context) {
	if err := api.search.InvalidateAll(); err != nil {
		SendInternalError(c, "cache invalidation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "invalidated": []string{"*"}})
}

// InvalidateIndexHandler drops the cached results of one index.
func (api *API) InvalidateIndexHandler(c *gin.Context) {
	handle := c.Param("handle")
	if result := ValidateHandle("handle", handle); result.HasErrors() {
		SendValidationError(c, result)
		return
	}
	if err := api.search.InvalidateIndex(handle); err != nil {
		SendInternalError(c, "cache invalidation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "invalidated": []string{handle}})
}

// ContentChangedRequest announces a publish or unpublish of an element.
type ContentChangedRequest struct {
	ElementID string `json:"element_id" binding:"required"`
}

// ContentChangedHandler invalidates the indices whose promotions pin the element.
func (api *API) ContentChangedHandler(c *gin.Context) {
	var req ContentChangedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	handles, err := api.search.ContentChanged(req.ElementID)
	if err != nil {
		SendInternalError(c, "content change", err)
		return
	}
	if handles == nil {
		handles = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "invalidated": handles})
}

// invalidateScopes drops cached results for every scope an admin change
// touched. A nil scope is global.
func (api *API) invalidateScopes(scopes ...*string) {
	for _, scope := range scopes {
		if scope == nil {
			if err := api.search.InvalidateAll(); err != nil {
				api.logger.Warn("Failed to invalidate cache", "error", err)
			}
			return
		}
	}
	seen := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		if seen[*scope] {
			continue
		}
		seen[*scope] = true
		if err := api.search.InvalidateIndex(*scope); err != nil {
			api.logger.Warn("Failed to invalidate cache", "index", *scope, "error", err)
		}
	}
}
