package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AIUsageLog represents a record of AI API usage for cost tracking.
type AIUsageLog struct {
	ID           int64     `db:"id"`
	Timestamp    time.Time `db:"timestamp"`
	ProviderName string    `db:"provider_name"`
	ServiceType  string    `db:"service_type"` // e.g., "email_generation"
	ModelName    string    `db:"model_name"`
	InputTokens  int       `db:"input_tokens"`
	OutputTokens int       `db:"output_tokens"`
	Cost         float64   `db:"cost"`
	RelatedLead  *string   `db:"related_lead"`   // nullable
	RelatedJobID *string   `db:"related_job_id"` // nullable
}

// Lead mirrors the crm_leads table. CustomFields carries any site-specific
// columns so they still reach the prompt and the structure endpoint.
type Lead struct {
	Name         string          `db:"name" json:"name"`
	FirstName    string          `db:"first_name" json:"first_name"`
	LastName     string          `db:"last_name" json:"last_name"`
	LeadName     string          `db:"lead_name" json:"lead_name"`
	Email        string          `db:"email" json:"email"`
	MobileNo     string          `db:"mobile_no" json:"mobile_no"`
	Organization string          `db:"organization" json:"organization"`
	Industry     string          `db:"industry" json:"industry"`
	JobTitle     string          `db:"job_title" json:"job_title"`
	Website      string          `db:"website" json:"website"`
	Territory    string          `db:"territory" json:"territory"`
	Source       string          `db:"source" json:"source"`
	Status       string          `db:"status" json:"status"`
	CustomFields json.RawMessage `db:"custom_fields" json:"custom_fields,omitempty"`
	Owner        string          `db:"owner" json:"owner"`
	ModifiedBy   string          `db:"modified_by" json:"modified_by"`
	CreatedAt    time.Time       `db:"creation" json:"creation"`
	ModifiedAt   time.Time       `db:"modified" json:"modified"`
}

// FullName joins first and last name, falling back to lead_name.
func (l *Lead) FullName() string {
	full := strings.TrimSpace(l.FirstName + " " + l.LastName)
	if full == "" {
		return l.LeadName
	}
	return full
}

// Fields flattens the lead into a document-style map, the shape the prompt
// builder and the structure endpoint work with.
func (l *Lead) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"doctype":      "CRM Lead",
		"name":         l.Name,
		"first_name":   l.FirstName,
		"last_name":    l.LastName,
		"lead_name":    l.LeadName,
		"email":        l.Email,
		"mobile_no":    l.MobileNo,
		"organization": l.Organization,
		"industry":     l.Industry,
		"job_title":    l.JobTitle,
		"website":      l.Website,
		"territory":    l.Territory,
		"source":       l.Source,
		"status":       l.Status,
		"owner":        l.Owner,
		"modified_by":  l.ModifiedBy,
		"creation":     l.CreatedAt.Format(time.RFC3339),
		"modified":     l.ModifiedAt.Format(time.RFC3339),
	}
	if len(l.CustomFields) > 0 {
		var custom map[string]interface{}
		if err := json.Unmarshal(l.CustomFields, &custom); err == nil {
			for k, v := range custom {
				if _, exists := fields[k]; !exists {
					fields[k] = v
				}
			}
		}
	}
	return fields
}

// User is the sender of outgoing mail.
type User struct {
	Email       string `db:"email" json:"email"`
	FullName    string `db:"full_name" json:"full_name"`
	Designation string `db:"designation" json:"designation"`
	Phone       string `db:"phone" json:"phone"`
}

// Communication status values.
const (
	EmailStatusOpen  = "Open"
	EmailStatusSent  = "Sent"
	EmailStatusError = "Error"
)

// Communication is the audit record of one outgoing email, linked to the lead timeline.
type Communication struct {
	ID               string    `db:"id" json:"id"`
	Subject          string    `db:"subject" json:"subject"`
	Content          string    `db:"content" json:"content"`
	TextContent      string    `db:"text_content" json:"text_content"`
	Sender           string    `db:"sender" json:"sender"`
	SenderFullName   string    `db:"sender_full_name" json:"sender_full_name"`
	Recipients       string    `db:"recipients" json:"recipients"`
	CC               string    `db:"cc" json:"cc"`
	BCC              string    `db:"bcc" json:"bcc"`
	ReferenceDoctype string    `db:"reference_doctype" json:"reference_doctype"`
	ReferenceName    string    `db:"reference_name" json:"reference_name"`
	EmailStatus      string    `db:"email_status" json:"email_status"`
	Channel          string    `db:"channel" json:"channel"`
	ProviderID       *string   `db:"provider_id" json:"provider_id,omitempty"`
	Error            *string   `db:"error" json:"error,omitempty"`
	IsAIGenerated    bool      `db:"is_ai_generated" json:"is_ai_generated"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// BackgroundJob mirrors the background_jobs table, the durable audit of enqueued tasks.
type BackgroundJob struct {
	ID                int64           `db:"id"`
	JobID             string          `db:"job_id"` // Asynq task ID
	TaskType          string          `db:"task_type"`
	Payload           json.RawMessage `db:"payload"`
	Queue             string          `db:"queue"`
	Status            string          `db:"status"`
	RelatedEntityType *string         `db:"related_entity_type"`
	RelatedEntityID   *string         `db:"related_entity_id"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}
