package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/model"
)

// DefaultsRequest changes the catalog defaults. Empty fields are left alone.
type DefaultsRequest struct {
	DefaultBackend  string `json:"default_backend"`
	DefaultLanguage string `json:"default_language"`
}

// ListBackendsHandler handles GET /backends
func (api *API) ListBackendsHandler(c *gin.Context) {
	backends := api.catalog.Backends()
	c.JSON(http.StatusOK, gin.H{"backends": backends, "total": len(backends)})
}

// GetBackendHandler handles GET /backends/:handle
func (api *API) GetBackendHandler(c *gin.Context) {
	view, err := api.catalog.GetBackend(c.Param("handle"))
	if err != nil {
		SendServiceError(c, "get backend", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CreateBackendHandler handles POST /backends
func (api *API) CreateBackendHandler(c *gin.Context) {
	var def model.BackendDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if err := api.catalog.CreateBackend(def); err != nil {
		SendServiceError(c, "create backend", err)
		return
	}
	view, err := api.catalog.GetBackend(def.Handle)
	if err != nil {
		SendServiceError(c, "get backend", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// UpdateBackendHandler handles PUT /backends/:handle. Redacted settings
// echoed back unchanged keep their stored value.
func (api *API) UpdateBackendHandler(c *gin.Context) {
	var def model.BackendDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	def.Handle = c.Param("handle")
	if err := api.catalog.UpdateBackend(def); err != nil {
		SendServiceError(c, "update backend", err)
		return
	}
	view, err := api.catalog.GetBackend(def.Handle)
	if err != nil {
		SendServiceError(c, "get backend", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteBackendHandler handles DELETE /backends/:handle
func (api *API) DeleteBackendHandler(c *gin.Context) {
	handle := c.Param("handle")
	if err := api.catalog.DeleteBackend(handle); err != nil {
		SendServiceError(c, "delete backend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backend '" + handle + "' deleted successfully"})
}

// BackendStatusHandler handles GET /backends/status
func (api *API) BackendStatusHandler(c *gin.Context) {
	defs := api.catalog.Snapshots().Load().Backends()
	statuses := api.backends.StatusAll(c.Request.Context(), defs)
	c.JSON(http.StatusOK, gin.H{"backends": statuses, "total": len(statuses)})
}

// GetDefaultsHandler handles GET /defaults
func (api *API) GetDefaultsHandler(c *gin.Context) {
	snap := api.catalog.Snapshots().Load()
	c.JSON(http.StatusOK, DefaultsRequest{
		DefaultBackend:  snap.DefaultBackend,
		DefaultLanguage: snap.DefaultLanguage,
	})
}

// SetDefaultsHandler handles PUT /defaults
func (api *API) SetDefaultsHandler(c *gin.Context) {
	var req DefaultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if req.DefaultBackend == "" && req.DefaultLanguage == "" {
		result := &ValidationResult{Valid: true}
		result.AddError("default_backend", "Either default_backend or default_language is required")
		SendValidationError(c, result)
		return
	}
	if err := api.catalog.SetDefaults(req.DefaultBackend, req.DefaultLanguage); err != nil {
		SendServiceError(c, "set defaults", err)
		return
	}
	api.GetDefaultsHandler(c)
}
