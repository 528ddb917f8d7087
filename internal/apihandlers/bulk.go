package apihandlers

import (
	"encoding/json"
	"net/http"

	"crmai/internal/models"
	"crmai/internal/services"

	"github.com/gin-gonic/gin"
)

// BulkEmailRequest accepts filters either as a JSON object or as the JSON
// text of one, and test_mode as a bool or one of "true/false/1/0".
type BulkEmailRequest struct {
	Filters           json.RawMessage `json:"filters" form:"-"`
	FiltersForm       string          `json:"-" form:"filters"`
	Tone              string          `json:"tone" form:"tone"`
	AdditionalContext string          `json:"additional_context" form:"additional_context"`
	TestMode          json.RawMessage `json:"test_mode" form:"-"`
	TestModeForm      string          `json:"-" form:"test_mode"`
}

func (h *APIHandler) StartBulkHandler(c *gin.Context) {
	var req BulkEmailRequest
	if err := bind(c, &req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	testMode, err := services.ParseTestMode(rawString(req.TestMode, req.TestModeForm))
	if err != nil {
		RespondError(c, err)
		return
	}
	started, err := h.bulk.StartBulk(c.Request.Context(), services.BulkRequest{
		FilterJSON:        rawString(req.Filters, req.FiltersForm),
		Tone:              req.Tone,
		AdditionalContext: req.AdditionalContext,
		TestMode:          testMode,
		User:              h.user(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"message":     started.Message,
		"job_id":      started.JobID,
		"leads_count": started.LeadsCount,
	})
}

func (h *APIHandler) ListJobsHandler(c *gin.Context) {
	jobs, err := h.bulk.ListJobs(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jobs": jobs})
}

func (h *APIHandler) JobStatusHandler(c *gin.Context) {
	rec, err := h.bulk.GetJobStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if rec.Status == models.JobStatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"status":  models.JobStatusNotFound,
			"job_id":  rec.JobID,
			"message": "Job not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": rec})
}

func (h *APIHandler) LastLeadsHandler(c *gin.Context) {
	leads, err := h.bulk.GetLastBulkLeads(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "leads_count": len(leads), "leads": leads})
}

func (h *APIHandler) DebugJobHandler(c *gin.Context) {
	d, err := h.bulk.DebugFailedJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": d})
}
