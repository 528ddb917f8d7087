package store

import (
	"context"

	"crmai/internal/models"

	"github.com/hibiken/asynq"
)

// --- Job Client ---

type JobClient interface {
	// Enqueue includes related entity info for recording purposes
	Enqueue(ctx context.Context, task *asynq.Task, relatedEntityType, relatedEntityID string, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// --- Lead Store ---

type LeadStore interface {
	GetLead(ctx context.Context, name string) (*models.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter, limit int) ([]*models.Lead, error)
}

// --- User Store ---

type UserStore interface {
	GetUser(ctx context.Context, email string) (*models.User, error)
}

// --- Communication Store ---

type CommunicationStore interface {
	CreateCommunication(ctx context.Context, comm *models.Communication) error
	GetCommunication(ctx context.Context, id string) (*models.Communication, error)
	// UpdateCommunicationStatus sets email_status; providerID and errMsg are optional.
	UpdateCommunicationStatus(ctx context.Context, id, status string, providerID, errMsg *string) error
	ListCommunicationsForLead(ctx context.Context, leadName string, limit int) ([]*models.Communication, error)
}

// --- Settings Store ---

type SettingsStore interface {
	// GetSetting returns ErrNotFound when the key has never been set.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// --- Job Store ---

// JobRecordParams holds parameters for recording a job event.
type JobRecordParams struct {
	JobID             string
	TaskType          string
	Payload           []byte
	Queue             string
	Status            string
	RelatedEntityType string // Optional: e.g., "lead", "bulk_email"
	RelatedEntityID   string // Optional
}

type JobStore interface {
	RecordJobEnqueue(ctx context.Context, params JobRecordParams) error
	UpdateJobStatus(ctx context.Context, jobID, status string) error
	GetJob(ctx context.Context, jobID string) (*models.BackgroundJob, error)
}

// --- Cost Tracking Store ---

type CostTrackingStore interface {
	RecordUsage(ctx context.Context, log *models.AIUsageLog) error
	ListUsage(ctx context.Context, limit, offset int) ([]*models.AIUsageLog, error)
	GetUsageSummary(ctx context.Context) (totalCost float64, totalInputTokens, totalOutputTokens int64, err error)
}
