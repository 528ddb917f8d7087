package apihandlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"crmai/internal/logging"
	"crmai/internal/models"
	"crmai/internal/realtime"
	"crmai/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the acting CRM user's email, set by the CRM front end.
const UserHeader = "X-CRM-User"

type EmailAPI interface {
	GenerateEmailContent(ctx context.Context, leadName, tone, additionalContext, user string) (*services.GeneratedEmail, error)
	SendTestEmail(ctx context.Context, leadName, content, subject, recipient, user string) (string, error)
	SendAIEmail(ctx context.Context, p services.SendAIEmailParams) (string, error)
	GetEmailPreference(ctx context.Context) (*services.EmailPreference, error)
	SetEmailPreference(ctx context.Context, preference string) (string, error)
	GetAPIStatus() services.APIStatus
	EmailDiagnostics(ctx context.Context) *services.EmailDiagnostics
	SendTestEmailViaSystem(ctx context.Context, recipient, user string) (string, error)
}

type BulkAPI interface {
	StartBulk(ctx context.Context, req services.BulkRequest) (*services.BulkStarted, error)
	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
	ListJobs(ctx context.Context) ([]models.JobSummary, error)
	GetLastBulkLeads(ctx context.Context) ([]*models.Lead, error)
	DebugFailedJob(ctx context.Context, jobID string) (*services.JobDebug, error)
}

type CallAPI interface {
	CallLead(ctx context.Context, leadName, user string) (*models.CallRecord, error)
	GetCallStatus(ctx context.Context, callID string) (*models.CallRecord, error)
}

type LeadAPI interface {
	GetLeadStructure(ctx context.Context, leadName string) (map[string]interface{}, error)
	GetAILogs(limit int) ([]logging.Entry, error)
}

// EventSource streams realtime events.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan realtime.Message, error)
}

// Deps wires the handlers to the services. Calls and Events may be nil.
type Deps struct {
	Email       EmailAPI
	Bulk        BulkAPI
	Calls       CallAPI
	Leads       LeadAPI
	Events      EventSource
	DefaultUser string
	Now         func() time.Time
}

type APIHandler struct {
	email       EmailAPI
	bulk        BulkAPI
	calls       CallAPI
	leads       LeadAPI
	events      EventSource
	defaultUser string
	now         func() time.Time
}

func NewAPIHandler(deps Deps) *APIHandler {
	h := &APIHandler{
		email:       deps.Email,
		bulk:        deps.Bulk,
		calls:       deps.Calls,
		leads:       deps.Leads,
		events:      deps.Events,
		defaultUser: deps.DefaultUser,
		now:         deps.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// user returns the acting user from the request, or the configured default.
func (h *APIHandler) user(c *gin.Context) string {
	if u := strings.TrimSpace(c.GetHeader(UserHeader)); u != "" {
		return u
	}
	return h.defaultUser
}

// bind decodes a JSON body, form or query string. An empty body is not an error.
func bind(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBind(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// rawString reads a field that may arrive as a JSON string, a bare JSON
// value (object, bool, number) or a plain form value.
func rawString(raw json.RawMessage, form string) string {
	if form != "" {
		return form
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return trimmed
}
