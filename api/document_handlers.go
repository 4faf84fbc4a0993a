package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/internal/jobs"
	"github.com/gcbaptista/go-search-gateway/internal/search"
	"github.com/gcbaptista/go-search-gateway/model"
)

// RebuildRequest carries the full content an index is rebuilt from.
type RebuildRequest struct {
	Documents []model.Document `json:"documents"`
}

// AddDocumentsHandler handles PUT /indexes/:handle/documents. The body is a
// document object or an array of documents.
func (api *API) AddDocumentsHandler(c *gin.Context) {
	handle := c.Param("handle")

	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	docs, err := decodeDocuments(raw)
	if err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
		return
	}
	if result := ValidateDocuments(docs); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	report, err := api.search.IndexDocuments(c.Request.Context(), handle, docs)
	if err != nil {
		SendServiceError(c, "index documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d document(s) added/updated in index '%s'", report.Indexed, handle),
		"report":  report,
	})
}

// DeleteDocumentHandler handles DELETE /indexes/:handle/documents/:documentId?site_id=<n>
func (api *API) DeleteDocumentHandler(c *gin.Context) {
	handle := c.Param("handle")
	documentID := c.Param("documentId")
	if result := ValidateDocumentID(documentID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}
	siteID, ok := siteIDParam(c)
	if !ok {
		return
	}

	if err := api.search.DeleteDocument(c.Request.Context(), handle, documentID, siteID); err != nil {
		SendServiceError(c, "delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document '" + documentID + "' deleted from index '" + handle + "'"})
}

// RebuildIndexHandler handles POST /indexes/:handle/rebuild. The index is
// cleared and refilled in the background; the job id is returned at once.
func (api *API) RebuildIndexHandler(c *gin.Context) {
	handle := c.Param("handle")
	var req RebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if _, err := api.catalog.GetIndex(handle); err != nil {
		SendServiceError(c, "rebuild index", err)
		return
	}
	if api.jobs.HasActiveJob(handle) {
		SendError(c, http.StatusConflict, ErrorCodeJobInProgress,
			"Index '"+handle+"' already has a running job")
		return
	}

	docs := req.Documents
	jobType := model.JobTypeRebuild
	if len(docs) == 0 {
		jobType = model.JobTypeClearIndex
	}
	metadata := map[string]string{"documents": strconv.Itoa(len(docs))}
	jobID, err := api.jobs.Submit(jobType, handle, metadata, func(ctx context.Context, progress jobs.ProgressFunc) error {
		report, err := api.search.RebuildIndex(ctx, handle, docs, search.ProgressFunc(progress))
		if err != nil {
			return err
		}
		if len(report.Skipped) > 0 {
			api.logger.Info("Rebuild skipped documents", "index", handle, "skipped", len(report.Skipped))
		}
		return nil
	})
	if err != nil {
		SendServiceError(c, "submit rebuild", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":         "accepted",
		"message":        fmt.Sprintf("Rebuild started for index '%s' (%d documents)", handle, len(docs)),
		"job_id":         jobID,
		"document_count": len(docs),
	})
}

// GetIndexStatsHandler handles GET /indexes/:handle/stats?site_id=<n>
func (api *API) GetIndexStatsHandler(c *gin.Context) {
	siteID, ok := siteIDParam(c)
	if !ok {
		return
	}
	stats, err := api.search.Stats(c.Request.Context(), c.Param("handle"), siteID)
	if err != nil {
		SendServiceError(c, "index stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func decodeDocuments(raw json.RawMessage) ([]model.Document, error) {
	var docs []model.Document
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("expecting a document object or an array of documents")
	}
	return []model.Document{doc}, nil
}

// siteIDParam reads the optional site_id query parameter, 0 when absent.
// It writes the error response itself when the value is malformed.
func siteIDParam(c *gin.Context) (int, bool) {
	raw := c.Query("site_id")
	if raw == "" {
		return 0, true
	}
	siteID, err := strconv.Atoi(raw)
	if err != nil || siteID < 0 {
		result := &ValidationResult{Valid: true}
		result.AddError("site_id", "Must be a non-negative integer")
		SendValidationError(c, result)
		return 0, false
	}
	return siteID, true
}
