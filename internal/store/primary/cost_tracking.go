package primary

import (
	"context"
	"fmt"
	"time"

	"crmai/internal/models"
	"crmai/internal/store"

	"github.com/jackc/pgx/v5"
)

// usageColumns matches the db tags on models.AIUsageLog so rows map by name.
const usageColumns = `id, timestamp, provider_name, service_type, model_name,
	input_tokens, output_tokens, cost, related_lead, related_job_id`

// RecordUsage appends one priced LLM or voice call and fills in its id.
func (s *StoreImpl) RecordUsage(ctx context.Context, entry *models.AIUsageLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	args := pgx.NamedArgs{
		"ts":       entry.Timestamp,
		"provider": entry.ProviderName,
		"service":  entry.ServiceType,
		"model":    entry.ModelName,
		"in":       entry.InputTokens,
		"out":      entry.OutputTokens,
		"cost":     entry.Cost,
		"lead":     entry.RelatedLead,
		"job":      entry.RelatedJobID,
	}
	const insert = `INSERT INTO ai_usage_logs
		(timestamp, provider_name, service_type, model_name, input_tokens, output_tokens, cost, related_lead, related_job_id)
		VALUES (@ts, @provider, @service, @model, @in, @out, @cost, @lead, @job)
		RETURNING id`
	if err := s.db.QueryRow(ctx, insert, args).Scan(&entry.ID); err != nil {
		return fmt.Errorf("recording %s usage for %s: %w", entry.ServiceType, entry.ProviderName, err)
	}
	return nil
}

// ListUsage pages through usage entries, newest first.
func (s *StoreImpl) ListUsage(ctx context.Context, limit, offset int) ([]*models.AIUsageLog, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+usageColumns+` FROM ai_usage_logs ORDER BY timestamp DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing usage (limit %d, offset %d): %w", limit, offset, err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.AIUsageLog])
	if err != nil {
		return nil, fmt.Errorf("reading usage rows: %w", err)
	}
	return entries, nil
}

func (s *StoreImpl) GetUsageSummary(ctx context.Context) (totalCost float64, totalInputTokens, totalOutputTokens int64, err error) {
	row := s.db.QueryRow(ctx, `SELECT coalesce(sum(cost), 0)::float8,
		coalesce(sum(input_tokens), 0)::bigint,
		coalesce(sum(output_tokens), 0)::bigint
		FROM ai_usage_logs`)
	if err = row.Scan(&totalCost, &totalInputTokens, &totalOutputTokens); err != nil {
		return 0, 0, 0, fmt.Errorf("totalling usage: %w", err)
	}
	return totalCost, totalInputTokens, totalOutputTokens, nil
}

var _ store.CostTrackingStore = (*StoreImpl)(nil)
