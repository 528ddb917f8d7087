package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crmai/internal/config"
	"crmai/internal/models"
	"crmai/internal/realtime"
	"crmai/internal/store"
	"crmai/internal/store/jobstate"
	"crmai/internal/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// JobStateStore is the cache of bulk job progress records.
type JobStateStore interface {
	Create(ctx context.Context, rec *models.JobStatus) error
	Get(ctx context.Context, jobID string) (*models.JobStatus, error)
	Update(ctx context.Context, jobID string, mutate func(*models.JobStatus)) (*models.JobStatus, error)
	List(ctx context.Context) ([]*models.JobStatus, error)
	CacheLeads(ctx context.Context, leads []*models.Lead) error
	LastLeads(ctx context.Context) ([]*models.Lead, error)
}

// TaskInspector is the part of the asynq Inspector used to read the queue's view of a task.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// LeadEmailer generates and sends the email for one lead.
type LeadEmailer interface {
	EmailLead(ctx context.Context, lead *models.Lead, opts LeadEmailOptions) (string, error)
}

type BulkServiceDeps struct {
	LeadStore store.LeadStore
	JobState  JobStateStore
	JobClient store.JobClient
	Inspector TaskInspector // optional
	Emailer   LeadEmailer
	Notifier  realtime.Notifier
	Config    *config.Config
}

// BulkService runs bulk email jobs: it starts them from a lead filter and
// processes them in the worker, one lead at a time.
type BulkService struct {
	leads     store.LeadStore
	state     JobStateStore
	jobs      store.JobClient
	inspector TaskInspector
	emailer   LeadEmailer
	notifier  realtime.Notifier

	maxLeads  int
	leadDelay time.Duration
	queue     string
	timeout   time.Duration
	retention time.Duration
}

func NewBulkService(deps BulkServiceDeps) *BulkService {
	s := &BulkService{
		leads:     deps.LeadStore,
		state:     deps.JobState,
		jobs:      deps.JobClient,
		inspector: deps.Inspector,
		emailer:   deps.Emailer,
		notifier:  deps.Notifier,
		maxLeads:  100,
		leadDelay: 500 * time.Millisecond,
		queue:     "long",
		timeout:   time.Hour,
		retention: 24 * time.Hour,
	}
	if cfg := deps.Config; cfg != nil {
		if cfg.Bulk.MaxLeads > 0 {
			s.maxLeads = cfg.Bulk.MaxLeads
		}
		if cfg.Bulk.LeadDelay >= 0 {
			s.leadDelay = cfg.Bulk.LeadDelay
		}
		if cfg.Bulk.Queue != "" {
			s.queue = cfg.Bulk.Queue
		}
		if cfg.Bulk.Timeout > 0 {
			s.timeout = cfg.Bulk.Timeout
		}
		if cfg.Bulk.JobTTL > 0 {
			s.retention = cfg.Bulk.JobTTL
		}
	}
	if s.notifier == nil {
		s.notifier = realtime.NopNotifier{}
	}
	return s
}

// ParseTestMode accepts the boolean spellings forms and query strings use.
// An empty value means true, matching the safe default.
func ParseTestMode(v string) (bool, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: test_mode must be true, false, 1 or 0", models.ErrValidation)
	}
	return b, nil
}

// --- Start ---

// BulkRequest is a request to email every lead matching a filter.
type BulkRequest struct {
	FilterJSON        string
	Tone              string
	AdditionalContext string
	TestMode          bool
	User              string
}

// BulkStarted is returned once the job is queued.
type BulkStarted struct {
	JobID      string `json:"job_id"`
	LeadsCount int    `json:"leads_count"`
	Message    string `json:"message"`
}

// StartBulk resolves the leads, creates the job record and enqueues the job.
// The record is written before enqueueing so a fast worker always finds it.
func (s *BulkService) StartBulk(ctx context.Context, req BulkRequest) (*BulkStarted, error) {
	filter, err := store.ParseLeadFilter(req.FilterJSON)
	if err != nil {
		log.Errorf("Invalid filter JSON: %v", err)
		return nil, err
	}
	if req.Tone == "" {
		req.Tone = "professional"
	}

	leads, err := s.leads.ListLeads(ctx, filter, s.maxLeads)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}
	if len(leads) == 0 {
		details, _ := json.MarshalIndent(filter, "", "  ")
		return nil, fmt.Errorf("%w matching the filters. Please check your selection or filters.\n\nFilter details: %s", models.ErrNoLeads, details)
	}

	if err := s.state.CacheLeads(ctx, leads); err != nil {
		log.Warnf("Failed to cache bulk email leads: %v", err)
	}

	jobID := uuid.NewString()
	rec := &models.JobStatus{
		JobID:             jobID,
		LeadsCount:        len(leads),
		Status:            models.JobStatusQueued,
		Tone:              req.Tone,
		TestMode:          req.TestMode,
		User:              req.User,
		AdditionalContext: req.AdditionalContext,
	}
	if err := s.state.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	task, err := tasks.NewBulkEmailTask(tasks.BulkEmailPayload{
		JobID:             jobID,
		Leads:             leads,
		Tone:              req.Tone,
		AdditionalContext: req.AdditionalContext,
		TestMode:          req.TestMode,
		User:              req.User,
	})
	if err != nil {
		s.failJob(ctx, jobID, err)
		return nil, err
	}
	_, err = s.jobs.Enqueue(ctx, task, "bulk_email", jobID,
		asynq.TaskID(jobID),
		asynq.Queue(s.queue),
		asynq.Timeout(s.timeout),
		asynq.MaxRetry(0),
		asynq.Retention(s.retention))
	if err != nil {
		s.failJob(ctx, jobID, err)
		return nil, fmt.Errorf("failed to enqueue bulk email job: %w", err)
	}

	log.WithField("job_id", jobID).Infof("Bulk email job queued for %d leads (test_mode: %t)", len(leads), req.TestMode)
	return &BulkStarted{
		JobID:      jobID,
		LeadsCount: len(leads),
		Message:    fmt.Sprintf("Bulk email generation started for %d leads. Check the logs for progress.", len(leads)),
	}, nil
}

// --- Process (worker) ---

// progressFor maps processed leads to a percentage that stays below 100 until completion.
func progressFor(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 99 {
		p = 99
	}
	return p
}

// describeLeadFailure prefixes the stage that failed.
func describeLeadFailure(err error) string {
	switch {
	case errors.Is(err, models.ErrGenerationFailed):
		return "Generation failed: " + strings.TrimPrefix(err.Error(), models.ErrGenerationFailed.Error()+": ")
	case errors.Is(err, models.ErrDeliveryFailed):
		return "Send failed: " + strings.TrimPrefix(err.Error(), models.ErrDeliveryFailed.Error()+": ")
	}
	return err.Error()
}

// ProcessBulk emails every lead in the payload. A failing lead is recorded and
// the batch moves on; only job-level problems return an error.
func (s *BulkService) ProcessBulk(ctx context.Context, p tasks.BulkEmailPayload) error {
	jobID := jobstate.NormalizeJobID(p.JobID)
	logger := log.WithField("job_id", jobID)
	total := len(p.Leads)
	logger.Infof("Starting bulk email processing for %d leads", total)
	if err := ctx.Err(); err != nil {
		return s.failJob(ctx, jobID, fmt.Errorf("job canceled before start: %w", err))
	}

	started := time.Now().UTC()
	_, err := s.state.Update(ctx, jobID, func(j *models.JobStatus) {
		j.Status = models.JobStatusRunning
		j.StartedAt = &started
		j.LeadsCount = total
	})
	if errors.Is(err, store.ErrNotFound) {
		// The record expired or was never written; recreate it so progress is visible.
		err = s.state.Create(ctx, &models.JobStatus{
			JobID:      jobID,
			LeadsCount: total,
			Status:     models.JobStatusRunning,
			Tone:       p.Tone,
			TestMode:   p.TestMode,
			User:       p.User,
			StartedAt:  &started,
		})
	}
	if err != nil {
		return s.failJob(ctx, jobID, fmt.Errorf("failed to mark job running: %w", err))
	}

	opts := LeadEmailOptions{
		Tone:              p.Tone,
		AdditionalContext: p.AdditionalContext,
		TestMode:          p.TestMode,
		User:              p.User,
		JobID:             jobID,
	}

	for i, lead := range p.Leads {
		if err := ctx.Err(); err != nil {
			return s.failJob(ctx, jobID, fmt.Errorf("job interrupted after %d of %d leads: %w", i, total, err))
		}
		processed := i + 1

		if lead == nil || lead.Name == "" {
			logger.Warnf("Skipping lead %d of %d: missing identifier", processed, total)
			if _, err := s.state.Update(ctx, jobID, func(j *models.JobStatus) {
				j.SkippedCount++
				j.Progress = progressFor(processed, total)
			}); err != nil {
				return s.failJob(ctx, jobID, fmt.Errorf("failed to record skipped lead: %w", err))
			}
			continue
		}

		logger.Infof("Processing lead %d of %d: %s", processed, total, lead.Name)
		commID, leadErr := s.emailer.EmailLead(ctx, lead, opts)
		outcome := models.LeadOutcome{Name: lead.Name, CommunicationID: commID}
		if leadErr != nil {
			outcome.Error = describeLeadFailure(leadErr)
			logger.Errorf("Lead %s failed: %s", lead.Name, outcome.Error)
		}

		rec, err := s.state.Update(ctx, jobID, func(j *models.JobStatus) {
			if leadErr != nil {
				j.FailedLeads = append(j.FailedLeads, outcome)
			} else {
				j.SuccessfulLeads = append(j.SuccessfulLeads, outcome)
			}
			j.Progress = progressFor(processed, total)
		})
		if err != nil {
			return s.failJob(ctx, jobID, fmt.Errorf("failed to record progress: %w", err))
		}

		event := map[string]interface{}{
			"lead":     lead.Name,
			"progress": rec.Progress,
			"status":   "success",
			"job_id":   jobID,
		}
		if leadErr != nil {
			event["status"] = "error"
			event["error"] = outcome.Error
		}
		s.notifier.Publish(ctx, realtime.EventBulkEmailProgress, event)

		if processed < total && s.leadDelay > 0 {
			select {
			case <-ctx.Done():
				return s.failJob(ctx, jobID, fmt.Errorf("job interrupted after %d of %d leads: %w", processed, total, ctx.Err()))
			case <-time.After(s.leadDelay):
			}
		}
	}

	completed := time.Now().UTC()
	rec, err := s.state.Update(ctx, jobID, func(j *models.JobStatus) {
		j.Status = models.JobStatusCompleted
		if len(j.FailedLeads) > 0 {
			j.Status = models.JobStatusCompletedWithErrors
		}
		j.Progress = 100
		j.CompletedAt = &completed
	})
	if err != nil {
		return s.failJob(ctx, jobID, fmt.Errorf("failed to mark job complete: %w", err))
	}

	s.notifier.Publish(ctx, realtime.EventBulkEmailComplete, map[string]interface{}{
		"job_id":           jobID,
		"status":           rec.Status,
		"successful_count": len(rec.SuccessfulLeads),
		"failed_count":     len(rec.FailedLeads),
		"processed_details": map[string]interface{}{
			"successful": rec.SuccessfulLeads,
			"failed":     rec.FailedLeads,
		},
	})
	logger.Infof("Bulk email job finished: %s (%d sent, %d failed, %d skipped)",
		rec.Status, len(rec.SuccessfulLeads), len(rec.FailedLeads), rec.SkippedCount)
	return nil
}

// failJob records a job-level error, announces it and returns the cause so the
// queue marks the task failed.
func (s *BulkService) failJob(ctx context.Context, jobID string, cause error) error {
	// The job context may already be cancelled; the error still has to be recorded.
	ctx = context.WithoutCancel(ctx)
	log.WithField("job_id", jobID).Errorf("Bulk email job failed: %v", cause)
	now := time.Now().UTC()
	if _, err := s.state.Update(ctx, jobID, func(j *models.JobStatus) {
		j.Status = models.JobStatusError
		j.Error = cause.Error()
		j.ErrorAt = &now
	}); err != nil {
		log.WithField("job_id", jobID).Errorf("Failed to record job error: %v", err)
	}
	s.notifier.Publish(ctx, realtime.EventBulkEmailError, map[string]interface{}{
		"job_id": jobID,
		"error":  cause.Error(),
	})
	return cause
}

// --- Status ---

func (s *BulkService) taskInfo(jobID string) *asynq.TaskInfo {
	if s.inspector == nil {
		return nil
	}
	info, err := s.inspector.GetTaskInfo(s.queue, jobID)
	if err != nil {
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			log.WithField("job_id", jobID).Debugf("Queue lookup failed: %v", err)
		}
		return nil
	}
	return info
}

// statusFromQueue maps a queue-only view to a job status.
func statusFromQueue(state asynq.TaskState) string {
	switch state {
	case asynq.TaskStateActive:
		return models.JobStatusRunning
	case asynq.TaskStateCompleted:
		return models.JobStatusCompleted
	case asynq.TaskStateArchived:
		return models.JobStatusError
	}
	return models.JobStatusQueued
}

// GetJobStatus merges the cached record with the queue's view of the task.
// An id neither source knows yields status not_found.
func (s *BulkService) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	id := jobstate.NormalizeJobID(jobID)
	if id == "" {
		return nil, fmt.Errorf("%w: Job ID is required", models.ErrValidation)
	}
	log.Debugf("Checking job status for ID: %s", jobID)

	rec, err := s.state.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("Error checking job status: %w", err)
		}
		rec = nil
	}
	info := s.taskInfo(id)

	switch {
	case rec == nil && info == nil:
		return &models.JobStatus{JobID: id, SimpleJobID: id, Status: models.JobStatusNotFound}, nil
	case rec == nil:
		rec = &models.JobStatus{JobID: id, SimpleJobID: id, Status: statusFromQueue(info.State), Error: info.LastErr}
	}

	if info != nil {
		rec.QueueState = info.State.String()
		// A task the queue gave up on (timeout, crash) never wrote its own error.
		if info.State == asynq.TaskStateArchived && !models.IsTerminalJobStatus(rec.Status) {
			rec.Status = models.JobStatusError
			if rec.Error == "" {
				rec.Error = info.LastErr
			}
		}
	}
	return rec, nil
}

// ListJobs returns job summaries, newest first.
func (s *BulkService) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	recs, err := s.state.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Error listing jobs: %w", err)
	}
	out := make([]models.JobSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	return out, nil
}

// GetLastBulkLeads returns the lead snapshot of the most recent bulk run.
func (s *BulkService) GetLastBulkLeads(ctx context.Context) ([]*models.Lead, error) {
	leads, err := s.state.LastLeads(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: No cached leads data found. Please run bulk email generation first.", models.ErrNotFound)
		}
		return nil, fmt.Errorf("Error retrieving leads data: %w", err)
	}
	return leads, nil
}

// JobDebug is the queue-side detail of one bulk job.
type JobDebug struct {
	JobID        string            `json:"job_id"`
	Status       string            `json:"status"`
	CreatedAt    *time.Time        `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at"`
	EndedAt      *time.Time        `json:"ended_at"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Function     string            `json:"function"`
	Args         string            `json:"args,omitempty"`
	Retried      int               `json:"retried"`
	MaxRetry     int               `json:"max_retry"`
	Meta         *models.JobStatus `json:"meta"`
}

// DebugFailedJob reports what the queue knows about a job plus its cached record.
func (s *BulkService) DebugFailedJob(ctx context.Context, jobID string) (*JobDebug, error) {
	id := jobstate.NormalizeJobID(jobID)
	log.Infof("Debugging job with ID: %s", jobID)
	info := s.taskInfo(id)
	if info == nil {
		return nil, fmt.Errorf("%w: Job not found in queue", models.ErrNotFound)
	}

	d := &JobDebug{
		JobID:        id,
		Status:       info.State.String(),
		ErrorMessage: info.LastErr,
		Function:     info.Type,
		Args:         string(info.Payload),
		Retried:      info.Retried,
		MaxRetry:     info.MaxRetry,
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		d.EndedAt = &t
	} else if !info.LastFailedAt.IsZero() {
		t := info.LastFailedAt
		d.EndedAt = &t
	}
	if rec, err := s.state.Get(ctx, id); err == nil {
		d.Meta = rec
		created := rec.CreatedAt
		d.CreatedAt = &created
		d.StartedAt = rec.StartedAt
		if d.EndedAt == nil {
			if rec.CompletedAt != nil {
				d.EndedAt = rec.CompletedAt
			} else {
				d.EndedAt = rec.ErrorAt
			}
		}
	}
	return d, nil
}
