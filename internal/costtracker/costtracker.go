package costtracker

import (
	"context"
	"time"

	"crmai/internal/config"
	"crmai/internal/models"
	"crmai/internal/store"
)

// CostEvent represents a single AI usage event and its cost.
type CostEvent struct {
	Operation    string // e.g., "email_generation"
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	AmountUSD    float64
	RelatedLead  string
	RelatedJobID string
}

// CostTracker provides methods to record and report costs.
type CostTracker interface {
	RecordCost(ctx context.Context, event CostEvent) error
	TotalCost(ctx context.Context) (float64, error)
}

// Price computes the cost of a call from per-token pricing. ok is false when
// the model has no pricing entry.
func Price(pricing map[string]config.PricingInfo, model string, inputTokens, outputTokens int) (cost float64, ok bool) {
	info, ok := pricing[model]
	if !ok {
		return 0, false
	}
	return float64(inputTokens)*info.InputPerToken + float64(outputTokens)*info.OutputPerToken, true
}

// New returns a tracker that writes to costStore, or a no-op tracker when
// costStore is nil.
func New(costStore store.CostTrackingStore) CostTracker {
	if costStore == nil {
		return &noopCostTracker{}
	}
	return &storeCostTracker{store: costStore}
}

type storeCostTracker struct {
	store store.CostTrackingStore
}

func (t *storeCostTracker) RecordCost(ctx context.Context, event CostEvent) error {
	entry := &models.AIUsageLog{
		Timestamp:    time.Now().UTC(),
		ProviderName: event.Provider,
		ServiceType:  event.Operation,
		ModelName:    event.Model,
		InputTokens:  event.InputTokens,
		OutputTokens: event.OutputTokens,
		Cost:         event.AmountUSD,
	}
	if event.RelatedLead != "" {
		lead := event.RelatedLead
		entry.RelatedLead = &lead
	}
	if event.RelatedJobID != "" {
		jobID := event.RelatedJobID
		entry.RelatedJobID = &jobID
	}
	return t.store.RecordUsage(ctx, entry)
}

func (t *storeCostTracker) TotalCost(ctx context.Context) (float64, error) {
	total, _, _, err := t.store.GetUsageSummary(ctx)
	return total, err
}

type noopCostTracker struct{}

func (n *noopCostTracker) RecordCost(ctx context.Context, event CostEvent) error { return nil }
func (n *noopCostTracker) TotalCost(ctx context.Context) (float64, error)        { return 0, nil }
