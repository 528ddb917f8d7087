package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmai/internal/models"
	"crmai/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const communicationColumns = `id, subject, content, text_content, sender, sender_full_name,
	recipients, cc, bcc, reference_doctype, reference_name, email_status, channel,
	provider_id, error, is_ai_generated, created_at, updated_at`

func scanCommunication(row pgx.Row, c *models.Communication) error {
	return row.Scan(
		&c.ID,
		&c.Subject,
		&c.Content,
		&c.TextContent,
		&c.Sender,
		&c.SenderFullName,
		&c.Recipients,
		&c.CC,
		&c.BCC,
		&c.ReferenceDoctype,
		&c.ReferenceName,
		&c.EmailStatus,
		&c.Channel,
		&c.ProviderID,
		&c.Error,
		&c.IsAIGenerated,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

// CreateCommunication inserts the record and fills in ID and timestamps.
func (s *StoreImpl) CreateCommunication(ctx context.Context, c *models.Communication) error {
	if c.ID == "" {
		c.ID = "COMM-" + uuid.NewString()
	}
	if c.EmailStatus == "" {
		c.EmailStatus = models.EmailStatusOpen
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO communications (` + communicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := s.db.Exec(ctx, query,
		c.ID, c.Subject, c.Content, c.TextContent, c.Sender, c.SenderFullName,
		c.Recipients, c.CC, c.BCC, c.ReferenceDoctype, c.ReferenceName, c.EmailStatus, c.Channel,
		c.ProviderID, c.Error, c.IsAIGenerated, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert communication: %w", err)
	}
	return nil
}

// GetCommunication fetches one communication by ID.
func (s *StoreImpl) GetCommunication(ctx context.Context, id string) (*models.Communication, error) {
	query := `SELECT ` + communicationColumns + ` FROM communications WHERE id = $1`
	var c models.Communication
	if err := scanCommunication(s.db.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get communication %s: %w", id, err)
	}
	return &c, nil
}

// UpdateCommunicationStatus records the delivery outcome.
func (s *StoreImpl) UpdateCommunicationStatus(ctx context.Context, id, status string, providerID, errMsg *string) error {
	query := `
		UPDATE communications
		SET email_status = $1,
		    provider_id = COALESCE($2, provider_id),
		    error = $3,
		    updated_at = $4
		WHERE id = $5`
	cmdTag, err := s.db.Exec(ctx, query, status, providerID, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update communication %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListCommunicationsForLead returns the lead's email timeline, newest first.
func (s *StoreImpl) ListCommunicationsForLead(ctx context.Context, leadName string, limit int) ([]*models.Communication, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + communicationColumns + `
		FROM communications
		WHERE reference_doctype = 'CRM Lead' AND reference_name = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, leadName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query communications: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows[*models.Communication](rows, func(row pgx.CollectableRow) (*models.Communication, error) {
		var c models.Communication
		if err := scanCommunication(row, &c); err != nil {
			return nil, fmt.Errorf("failed to scan communication: %w", err)
		}
		return &c, nil
	})
}

var _ store.CommunicationStore = (*StoreImpl)(nil)
