package apihandlers

import (
	"math/rand"
	"net/http"
	"strconv"

	"crmai/internal/dataviz"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *APIHandler) LeadStructureHandler(c *gin.Context) {
	fields, err := h.leads.GetLeadStructure(c.Request.Context(), c.Param("name"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lead_data": fields})
}

func (h *APIHandler) LogsHandler(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			BadRequest(c, "invalid limit: "+l)
			return
		}
		limit = parsed
	}
	entries, err := h.leads.GetAILogs(limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": entries})
}

// --- Dashboard ---

func (h *APIHandler) rng() *rand.Rand {
	return rand.New(rand.NewSource(h.now().UnixNano()))
}

func (h *APIHandler) HelloHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": dataviz.Hello(h.now())})
}

func (h *APIHandler) ForecastHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dataviz.SalesForecast(h.now(), h.rng()))
}

func (h *APIHandler) SegmentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dataviz.CustomerSegments(h.rng()))
}

func (h *APIHandler) SentimentHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dataviz.SentimentAnalysis(h.now(), h.rng()))
}

// --- Events ---

// EventsHandler streams realtime events as server-sent events until the
// client disconnects.
func (h *APIHandler) EventsHandler(c *gin.Context) {
	if h.events == nil {
		JSONError(c, http.StatusServiceUnavailable, "not_configured", "Realtime events are not available")
		return
	}
	msgs, err := h.events.Subscribe(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	log.Debug("Realtime client connected")
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("Realtime client disconnected")
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.SSEvent(msg.Event, msg.Data)
			c.Writer.Flush()
		}
	}
}
