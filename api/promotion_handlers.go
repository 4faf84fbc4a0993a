package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/model"
)

// PromotionResponse is the body of single promotion operations.
type PromotionResponse struct {
	Status    string           `json:"status"`
	Promotion *model.Promotion `json:"promotion"`
	Message   string           `json:"message,omitempty"`
}

// CreatePromotionHandler handles POST /promotions
func (api *API) CreatePromotionHandler(c *gin.Context) {
	var p model.Promotion
	if err := c.ShouldBindJSON(&p); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	p.ID = ""

	created, err := api.promotions.CreatePromotion(p)
	if err != nil {
		SendServiceError(c, "create promotion", err)
		return
	}
	api.invalidateScopes(created.IndexHandle)

	c.JSON(http.StatusCreated, PromotionResponse{
		Status:    "success",
		Promotion: created,
		Message:   "Promotion created successfully",
	})
}

// GetPromotionHandler handles GET /promotions/:promotionId
func (api *API) GetPromotionHandler(c *gin.Context) {
	p, err := api.promotions.GetPromotion(c.Param("promotionId"))
	if err != nil {
		SendServiceError(c, "get promotion", err)
		return
	}
	c.JSON(http.StatusOK, PromotionResponse{Status: "success", Promotion: p})
}

// UpdatePromotionHandler handles PUT /promotions/:promotionId
func (api *API) UpdatePromotionHandler(c *gin.Context) {
	var p model.Promotion
	if err := c.ShouldBindJSON(&p); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	p.ID = c.Param("promotionId")

	updated, previous, err := api.promotions.UpdatePromotion(p)
	if err != nil {
		SendServiceError(c, "update promotion", err)
		return
	}
	api.invalidateScopes(previous.IndexHandle, updated.IndexHandle)

	c.JSON(http.StatusOK, PromotionResponse{
		Status:    "success",
		Promotion: updated,
		Message:   "Promotion updated successfully",
	})
}

// DeletePromotionHandler handles DELETE /promotions/:promotionId
func (api *API) DeletePromotionHandler(c *gin.Context) {
	deleted, err := api.promotions.DeletePromotion(c.Param("promotionId"))
	if err != nil {
		SendServiceError(c, "delete promotion", err)
		return
	}
	api.invalidateScopes(deleted.IndexHandle)

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Promotion deleted successfully"})
}

// ListPromotionsHandler handles GET /promotions?index=<handle>
func (api *API) ListPromotionsHandler(c *gin.Context) {
	list, err := api.promotions.FilterPromotions(c.Query("index"))
	if err != nil {
		SendServiceError(c, "list promotions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "promotions": list, "count": len(list)})
}
