package services

import (
	"context"
	"errors"
	"testing"

	"crmai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCostStore struct {
	mock.Mock
}

func (m *mockCostStore) RecordUsage(ctx context.Context, log *models.AIUsageLog) error {
	return m.Called(log).Error(0)
}

func (m *mockCostStore) ListUsage(ctx context.Context, limit, offset int) ([]*models.AIUsageLog, error) {
	args := m.Called(limit, offset)
	logs, _ := args.Get(0).([]*models.AIUsageLog)
	return logs, args.Error(1)
}

func (m *mockCostStore) GetUsageSummary(ctx context.Context) (float64, int64, int64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Get(1).(int64), args.Get(2).(int64), args.Error(3)
}

func TestCostService_ListUsage(t *testing.T) {
	st := &mockCostStore{}
	svc := NewCostService(st)
	st.On("ListUsage", 20, 0).Return([]*models.AIUsageLog{{ID: 1, Cost: 0.01}}, nil).Once()
	st.On("ListUsage", 5, 10).Return(nil, errors.New("db down")).Once()

	logs, err := svc.ListUsage(context.Background(), 0, -3)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = svc.ListUsage(context.Background(), 5, 10)
	assert.Error(t, err)
	st.AssertExpectations(t)
}

func TestCostService_GetSummary(t *testing.T) {
	st := &mockCostStore{}
	st.On("GetUsageSummary").Return(1.25, int64(1000), int64(400), nil).Once()

	sum, err := NewCostService(st).GetSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &UsageSummary{TotalCost: 1.25, TotalInputTokens: 1000, TotalOutputTokens: 400}, sum)
}
