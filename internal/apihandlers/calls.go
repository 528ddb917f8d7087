package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *APIHandler) CallLeadHandler(c *gin.Context) {
	if h.calls == nil {
		JSONError(c, http.StatusServiceUnavailable, "not_configured", "Voice calls are not configured")
		return
	}
	rec, err := h.calls.CallLead(c.Request.Context(), c.Param("name"), h.user(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Call placed successfully",
		"call_id": rec.CallID,
		"call":    rec,
	})
}

func (h *APIHandler) CallStatusHandler(c *gin.Context) {
	if h.calls == nil {
		JSONError(c, http.StatusServiceUnavailable, "not_configured", "Voice calls are not configured")
		return
	}
	rec, err := h.calls.GetCallStatus(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "call": rec})
}
