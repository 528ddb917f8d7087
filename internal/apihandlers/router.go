package apihandlers

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with every route under /api/v1.
// allowedOrigins is a comma-separated list; empty disables CORS.
func NewRouter(h *APIHandler, allowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	if strings.TrimSpace(allowedOrigins) != "" {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = splitOrigins(allowedOrigins)
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", UserHeader}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/hello", h.HelloHandler)

	v1 := router.Group("/api/v1")
	{
		email := v1.Group("/email")
		{
			email.POST("/generate", h.GenerateEmailHandler)
			email.POST("/test", h.SendTestEmailHandler)
			email.POST("/send", h.SendAIEmailHandler)
			email.GET("/preference", h.GetEmailPreferenceHandler)
			email.PUT("/preference", h.SetEmailPreferenceHandler)
			email.GET("/api-status", h.APIStatusHandler)
			email.GET("/diagnostics", h.EmailDiagnosticsHandler)
			email.POST("/diagnostics/test", h.DiagnosticsTestHandler)
		}

		bulk := v1.Group("/bulk")
		{
			bulk.POST("", h.StartBulkHandler)
			bulk.GET("", h.ListJobsHandler)
			bulk.GET("/last-leads", h.LastLeadsHandler)
			bulk.GET("/:job_id", h.JobStatusHandler)
			bulk.GET("/:job_id/debug", h.DebugJobHandler)
		}

		v1.POST("/leads/:name/call", h.CallLeadHandler)
		v1.GET("/leads/:name/structure", h.LeadStructureHandler)
		v1.GET("/calls/:call_id", h.CallStatusHandler)
		v1.GET("/logs", h.LogsHandler)
		v1.GET("/events", h.EventsHandler)
		v1.GET("/hello", h.HelloHandler)

		dv := v1.Group("/dataviz")
		{
			dv.GET("/forecast", h.ForecastHandler)
			dv.GET("/segments", h.SegmentsHandler)
			dv.GET("/sentiment", h.SentimentHandler)
		}
	}
	return router
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
