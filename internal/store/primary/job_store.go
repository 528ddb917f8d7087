package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crmai/internal/models"
	"crmai/internal/store"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// --- Job Store Implementation ---

// RecordJobEnqueue inserts a record into the background_jobs table.
func (s *StoreImpl) RecordJobEnqueue(ctx context.Context, params store.JobRecordParams) error {
	query := `
		INSERT INTO background_jobs (job_id, task_type, payload, queue, status, related_entity_type, related_entity_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING id`

	now := time.Now()
	var insertedID int64

	payloadJSON := json.RawMessage("{}")
	if len(params.Payload) > 0 {
		payloadJSON = json.RawMessage(params.Payload)
	}

	var relatedType, relatedID *string
	if params.RelatedEntityType != "" {
		relatedType = &params.RelatedEntityType
	}
	if params.RelatedEntityID != "" {
		relatedID = &params.RelatedEntityID
	}

	err := s.db.QueryRow(ctx, query,
		params.JobID,
		params.TaskType,
		payloadJSON,
		params.Queue,
		params.Status,
		relatedType,
		relatedID,
		now,
		now,
	).Scan(&insertedID)
	if err != nil {
		// ON CONFLICT DO NOTHING returns no row when the job was already recorded.
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debugf("Job %s already recorded, skipping insertion.", params.JobID)
			return nil
		}
		return fmt.Errorf("failed to record job enqueue event for JobID %s: %w", params.JobID, err)
	}

	log.Debugf("Recorded job enqueue event for JobID %s with DB ID %d", params.JobID, insertedID)
	return nil
}

// UpdateJobStatus updates the status of a job given its task ID.
func (s *StoreImpl) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	query := `UPDATE background_jobs SET status = $1, updated_at = $2 WHERE job_id = $3`
	cmdTag, err := s.db.Exec(ctx, query, status, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status for job %s: %w", jobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetJob returns the audit row for a task ID.
func (s *StoreImpl) GetJob(ctx context.Context, jobID string) (*models.BackgroundJob, error) {
	query := `
		SELECT id, job_id, task_type, payload, queue, status, related_entity_type, related_entity_id, created_at, updated_at
		FROM background_jobs WHERE job_id = $1`
	var job models.BackgroundJob
	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.JobID,
		&job.TaskType,
		&job.Payload,
		&job.Queue,
		&job.Status,
		&job.RelatedEntityType,
		&job.RelatedEntityID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

var _ store.JobStore = (*StoreImpl)(nil)
