package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-search-gateway/model"
)

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	job, err := api.jobs.GetJob(c.Param("jobId"))
	if err != nil {
		SendServiceError(c, "get job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobsHandler lists jobs, newest first. Under /indexes/:handle/jobs
// only the jobs of that index are listed.
func (api *API) ListJobsHandler(c *gin.Context) {
	handle := c.Param("handle")
	if handle == "" {
		handle = c.Query("index")
	}

	var statusFilter *model.JobStatus
	if statusParam := c.Query("status"); statusParam != "" {
		status := model.JobStatus(statusParam)
		statusFilter = &status
	}

	list := api.jobs.ListJobs(handle, statusFilter)
	c.JSON(http.StatusOK, gin.H{
		"jobs":         list,
		"index_handle": handle,
		"total":        len(list),
	})
}

// GetJobStatsHandler reports job counters.
func (api *API) GetJobStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.jobs.Stats())
}
