package apihandlers

import (
	"net/http"

	"crmai/internal/services"

	"github.com/gin-gonic/gin"
)

type GenerateEmailRequest struct {
	LeadName          string `json:"lead_name" form:"lead_name"`
	Tone              string `json:"tone" form:"tone"`
	AdditionalContext string `json:"additional_context" form:"additional_context"`
}

type TestEmailRequest struct {
	LeadName       string `json:"lead_name" form:"lead_name"`
	Content        string `json:"email_content" form:"email_content"`
	Subject        string `json:"email_subject" form:"email_subject"`
	RecipientEmail string `json:"recipient_email" form:"recipient_email"`
}

type SendEmailRequest struct {
	Recipients string `json:"recipients" form:"recipients"`
	Subject    string `json:"subject" form:"subject"`
	Content    string `json:"content" form:"content"`
	Doctype    string `json:"doctype" form:"doctype"`
	Name       string `json:"name" form:"name"`
	CC         string `json:"cc" form:"cc"`
	BCC        string `json:"bcc" form:"bcc"`
}

type PreferenceRequest struct {
	Preference string `json:"preference" form:"preference"`
}

type DiagnosticsTestRequest struct {
	Recipient string `json:"recipient" form:"recipient"`
}

func (h *APIHandler) GenerateEmailHandler(c *gin.Context) {
	var req GenerateEmailRequest
	if err := bind(c, &req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.LeadName == "" {
		BadRequest(c, "lead_name is required")
		return
	}
	email, err := h.email.GenerateEmailContent(c.Request.Context(), req.LeadName, req.Tone, req.AdditionalContext, h.user(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"subject":    email.Subject,
		"content":    email.Content,
		"debug_info": email.DebugInfo,
	})
}

func (h *APIHandler) SendTestEmailHandler(c *gin.Context) {
	var req TestEmailRequest
	if err := bind(c, &req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.LeadName == "" || req.Content == "" || req.Subject == "" {
		BadRequest(c, "lead_name, email_content and email_subject are required")
		return
	}
	msg, err := h.email.SendTestEmail(c.Request.Context(), req.LeadName, req.Content, req.Subject, req.RecipientEmail, h.user(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *APIHandler) SendAIEmailHandler(c *gin.Context) {
	var req SendEmailRequest
	if err := bind(c, &req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	commID, err := h.email.SendAIEmail(c.Request.Context(), services.SendAIEmailParams{
		Recipients: req.Recipients,
		Subject:    req.Subject,
		Content:    req.Content,
		Doctype:    req.Doctype,
		Name:       req.Name,
		CC:         req.CC,
		BCC:        req.BCC,
		User:       h.user(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"message":          "Email queued for delivery",
		"communication_id": commID,
	})
}

func (h *APIHandler) GetEmailPreferenceHandler(c *gin.Context) {
	pref, err := h.email.GetEmailPreference(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                 true,
		"email_preference":        pref.EmailPreference,
		"frappe_email_configured": pref.FrappeEmailConfigured,
		"resend_configured":       pref.ResendConfigured,
	})
}

func (h *APIHandler) SetEmailPreferenceHandler(c *gin.Context) {
	var req PreferenceRequest
	if err := bind(c, &req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	channel, err := h.email.SetEmailPreference(c.Request.Context(), req.Preference)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"email_preference": channel,
		"message":          "Email preference set to " + channel,
	})
}

func (h *APIHandler) APIStatusHandler(c *gin.Context) {
	st := h.email.GetAPIStatus()
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"openai_configured": st.OpenAIConfigured,
		"resend_configured": st.ResendConfigured,
		"test_email":        st.TestEmail,
	})
}

func (h *APIHandler) EmailDiagnosticsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "diagnostics": h.email.EmailDiagnostics(c.Request.Context())})
}

func (h *APIHandler) DiagnosticsTestHandler(c *gin.Context) {
	var req DiagnosticsTestRequest
	if err := bind(c, &req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	msg, err := h.email.SendTestEmailViaSystem(c.Request.Context(), req.Recipient, h.user(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}
