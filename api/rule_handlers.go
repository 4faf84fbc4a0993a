package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// RuleResponse represents the JSON response for single rule operations
type RuleResponse struct {
	Status  string           `json:"status"`
	Rule    *model.QueryRule `json:"rule"`
	Message string           `json:"message,omitempty"`
}

// RuleListResponse represents the JSON response for listing rules
type RuleListResponse struct {
	Status string             `json:"status"`
	Rules  []*model.QueryRule `json:"rules"`
	Count  int                `json:"count"`
}

// RuleTestRequest describes a query to preview rule matching for.
type RuleTestRequest struct {
	Query   string   `json:"query" binding:"required"`
	Indices []string `json:"indices"`
	SiteID  int      `json:"site_id,omitempty"`
}

// CreateRuleHandler handles POST /rules
func (api *API) CreateRuleHandler(c *gin.Context) {
	var rule model.QueryRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	rule.ID = ""

	created, err := api.rules.CreateRule(rule)
	if err != nil {
		SendServiceError(c, "create rule", err)
		return
	}
	api.invalidateScopes(created.IndexHandle)

	c.JSON(http.StatusCreated, RuleResponse{
		Status:  "success",
		Rule:    created,
		Message: "Rule created successfully",
	})
}

// GetRuleHandler handles GET /rules/:ruleId
func (api *API) GetRuleHandler(c *gin.Context) {
	rule, err := api.rules.GetRule(c.Param("ruleId"))
	if err != nil {
		SendServiceError(c, "get rule", err)
		return
	}
	c.JSON(http.StatusOK, RuleResponse{Status: "success", Rule: rule})
}

// UpdateRuleHandler handles PUT /rules/:ruleId
func (api *API) UpdateRuleHandler(c *gin.Context) {
	var rule model.QueryRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	rule.ID = c.Param("ruleId")

	updated, previous, err := api.rules.UpdateRule(rule)
	if err != nil {
		SendServiceError(c, "update rule", err)
		return
	}
	api.invalidateScopes(previous.IndexHandle, updated.IndexHandle)

	c.JSON(http.StatusOK, RuleResponse{
		Status:  "success",
		Rule:    updated,
		Message: "Rule updated successfully",
	})
}

// DeleteRuleHandler handles DELETE /rules/:ruleId
func (api *API) DeleteRuleHandler(c *gin.Context) {
	deleted, err := api.rules.DeleteRule(c.Param("ruleId"))
	if err != nil {
		SendServiceError(c, "delete rule", err)
		return
	}
	api.invalidateScopes(deleted.IndexHandle)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Rule deleted successfully",
	})
}

// ListRulesHandler handles GET /rules?index=<handle>&enabled=<bool>
func (api *API) ListRulesHandler(c *gin.Context) {
	var enabled *bool
	if raw := c.Query("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			result := &ValidationResult{Valid: true}
			result.AddError("enabled", "Must be true or false")
			SendValidationError(c, result)
			return
		}
		enabled = &v
	}

	list, err := api.rules.FilterRules(c.Query("index"), enabled)
	if err != nil {
		SendServiceError(c, "list rules", err)
		return
	}
	c.JSON(http.StatusOK, RuleListResponse{Status: "success", Rules: list, Count: len(list)})
}

// ToggleRuleHandler handles POST /rules/:ruleId/toggle
func (api *API) ToggleRuleHandler(c *gin.Context) {
	rule, err := api.rules.GetRule(c.Param("ruleId"))
	if err != nil {
		SendServiceError(c, "toggle rule", err)
		return
	}
	rule.Enabled = !rule.Enabled

	updated, _, err := api.rules.UpdateRule(*rule)
	if err != nil {
		SendServiceError(c, "toggle rule", err)
		return
	}
	api.invalidateScopes(updated.IndexHandle)

	status := "disabled"
	if updated.Enabled {
		status = "enabled"
	}
	c.JSON(http.StatusOK, RuleResponse{
		Status:  "success",
		Rule:    updated,
		Message: "Rule " + status + " successfully",
	})
}

// TestRuleHandler handles POST /rules/test. It reports which stored rules a
// query matches and the variants it would be dispatched as, without searching.
func (api *API) TestRuleHandler(c *gin.Context) {
	var req RuleTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}

	matched, err := api.matcher.Match(req.Query, req.Indices, req.SiteID)
	if err != nil {
		SendServiceError(c, "match rules", err)
		return
	}

	ids := make([]string, 0, len(matched))
	for _, r := range matched {
		ids = append(ids, r.ID)
	}
	out := gin.H{
		"status":        "success",
		"normalized":    rules.Normalize(req.Query),
		"matched_rules": ids,
		"variants":      rules.Expand(req.Query, matched),
	}
	if rule, action, ok := rules.FirstRedirect(matched); ok {
		out["redirect"] = gin.H{
			"rule_id":  rule.ID,
			"redirect": services.Redirect{URL: action.URL, ElementID: action.ElementID, ElementType: action.ElementType},
		}
	}
	c.JSON(http.StatusOK, out)
}
