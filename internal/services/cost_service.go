package services

import (
	"context"
	"fmt"

	"crmai/internal/models"
	"crmai/internal/store"
)

// CostService reports what email generation and voice calls have cost.
type CostService struct {
	store store.CostTrackingStore
}

// NewCostService creates a new CostService.
func NewCostService(store store.CostTrackingStore) *CostService {
	return &CostService{store: store}
}

// UsageSummary totals every recorded usage entry.
type UsageSummary struct {
	TotalCost         float64 `json:"total_cost"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
}

// ListUsage retrieves a page of usage entries, newest first.
func (s *CostService) ListUsage(ctx context.Context, limit, offset int) ([]*models.AIUsageLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := s.store.ListUsage(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs from store: %w", err)
	}
	return logs, nil
}

// GetSummary retrieves the total cost and token usage.
func (s *CostService) GetSummary(ctx context.Context) (*UsageSummary, error) {
	total, in, out, err := s.store.GetUsageSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage summary from store: %w", err)
	}
	return &UsageSummary{TotalCost: total, TotalInputTokens: in, TotalOutputTokens: out}, nil
}
