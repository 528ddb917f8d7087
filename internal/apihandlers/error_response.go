package apihandlers

import (
	"errors"
	"net/http"

	"crmai/internal/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// errorResponse is the failure body every endpoint shares.
// Example: { "success": false, "code": "bad_request", "message": "Invalid filter format" }
type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSONError sends a structured error response
func JSONError(ctx *gin.Context, status int, code, msg string) {
	ctx.AbortWithStatusJSON(status, errorResponse{Success: false, Code: code, Message: msg})
}

// Convenience wrappers
func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func NotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, "not_found", msg)
}

func Internal(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusInternalServerError, "internal_error", msg)
}

func Conflict(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusConflict, "conflict", msg)
}

// RespondError maps a service error onto a status code by its sentinel.
func RespondError(ctx *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithField("path", ctx.FullPath()).Errorf("Request failed: %v", err)
	}
	JSONError(ctx, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidFilter),
		errors.Is(err, models.ErrNoLeads):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, models.ErrGenerationFailed), errors.Is(err, models.ErrDeliveryFailed):
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal_error"
}
