package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/model"
)

// ListIndexesHandler handles GET /indexes
func (api *API) ListIndexesHandler(c *gin.Context) {
	indices := api.catalog.Indices()
	c.JSON(http.StatusOK, gin.H{"indexes": indices, "total": len(indices)})
}

// GetIndexHandler handles GET /indexes/:handle
func (api *API) GetIndexHandler(c *gin.Context) {
	view, err := api.catalog.GetIndex(c.Param("handle"))
	if err != nil {
		SendServiceError(c, "get index", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CreateIndexHandler handles POST /indexes
func (api *API) CreateIndexHandler(c *gin.Context) {
	var def model.IndexDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if err := api.catalog.CreateIndex(def); err != nil {
		SendServiceError(c, "create index", err)
		return
	}
	view, err := api.catalog.GetIndex(def.Handle)
	if err != nil {
		SendServiceError(c, "get index", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// UpdateIndexHandler handles PUT /indexes/:handle
func (api *API) UpdateIndexHandler(c *gin.Context) {
	var def model.IndexDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	def.Handle = c.Param("handle")
	if err := api.catalog.UpdateIndex(def); err != nil {
		SendServiceError(c, "update index", err)
		return
	}
	view, err := api.catalog.GetIndex(def.Handle)
	if err != nil {
		SendServiceError(c, "get index", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteIndexHandler handles DELETE /indexes/:handle. The documents stay on
// the backend; only the logical index goes away.
func (api *API) DeleteIndexHandler(c *gin.Context) {
	handle := c.Param("handle")
	if api.jobs.HasActiveJob(handle) {
		SendError(c, http.StatusConflict, ErrorCodeJobInProgress,
			"Index '"+handle+"' has a running job")
		return
	}
	if err := api.catalog.DeleteIndex(handle); err != nil {
		SendServiceError(c, "delete index", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Index '" + handle + "' deleted successfully"})
}
