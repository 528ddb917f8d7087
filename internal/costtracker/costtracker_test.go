package costtracker

import (
	"context"
	"testing"

	"crmai/internal/config"
	"crmai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCostStore struct {
	logs []*models.AIUsageLog
}

func (f *fakeCostStore) RecordUsage(ctx context.Context, log *models.AIUsageLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeCostStore) ListUsage(ctx context.Context, limit, offset int) ([]*models.AIUsageLog, error) {
	return f.logs, nil
}

func (f *fakeCostStore) GetUsageSummary(ctx context.Context) (float64, int64, int64, error) {
	var cost float64
	var in, out int64
	for _, l := range f.logs {
		cost += l.Cost
		in += int64(l.InputTokens)
		out += int64(l.OutputTokens)
	}
	return cost, in, out, nil
}

func TestPrice(t *testing.T) {
	pricing := map[string]config.PricingInfo{"openai/gpt-4o": {InputPerToken: 0.000005, OutputPerToken: 0.000015}}
	cost, ok := Price(pricing, "openai/gpt-4o", 1000, 100)
	require.True(t, ok)
	assert.InDelta(t, 0.0065, cost, 1e-9)

	_, ok = Price(pricing, "unknown", 1, 1)
	assert.False(t, ok)
}

func TestStoreCostTracker(t *testing.T) {
	fs := &fakeCostStore{}
	tracker := New(fs)
	ctx := context.Background()

	require.NoError(t, tracker.RecordCost(ctx, CostEvent{
		Operation: "email_generation", Provider: "openrouter", Model: "openai/gpt-4o",
		InputTokens: 10, OutputTokens: 5, AmountUSD: 0.5, RelatedLead: "CRM-LEAD-1",
	}))
	require.NoError(t, tracker.RecordCost(ctx, CostEvent{Operation: "email_generation", AmountUSD: 0.25, RelatedJobID: "job-1"}))

	require.Len(t, fs.logs, 2)
	require.NotNil(t, fs.logs[0].RelatedLead)
	assert.Equal(t, "CRM-LEAD-1", *fs.logs[0].RelatedLead)
	assert.Nil(t, fs.logs[0].RelatedJobID)
	require.NotNil(t, fs.logs[1].RelatedJobID)

	total, err := tracker.TotalCost(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, total, 1e-9)
}

func TestNoopTracker(t *testing.T) {
	tracker := New(nil)
	require.NoError(t, tracker.RecordCost(context.Background(), CostEvent{AmountUSD: 1}))
	total, err := tracker.TotalCost(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}
