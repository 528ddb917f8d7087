package dataviz

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC) // a Wednesday

func TestHello(t *testing.T) {
	assert.Equal(t, "Hello from the backend! Current time: 2025-03-12 09:30:00", Hello(fixedNow))
}

func TestMondayIndex(t *testing.T) {
	assert.Equal(t, 0, mondayIndex(time.Monday))
	assert.Equal(t, 5, mondayIndex(time.Saturday))
	assert.Equal(t, 6, mondayIndex(time.Sunday))
}

func TestSalesForecast(t *testing.T) {
	res := SalesForecast(fixedNow, rand.New(rand.NewSource(7)))

	require.Len(t, res.HistoricalData, 30)
	require.Len(t, res.ForecastData, 14)
	assert.Equal(t, "2025-02-10", res.HistoricalData[0].Date)
	assert.Equal(t, "2025-03-11", res.HistoricalData[29].Date)
	assert.Equal(t, "2025-03-13", res.ForecastData[0].Date)
	for _, p := range res.HistoricalData {
		assert.True(t, p.Actual)
		assert.Greater(t, p.Sales, 0.0)
	}

	prevSpread := 0.0
	for _, p := range res.ForecastData {
		assert.False(t, p.Actual)
		assert.LessOrEqual(t, p.LowerBound, p.Sales)
		assert.GreaterOrEqual(t, p.UpperBound, p.Sales)
		spread := (p.UpperBound - p.LowerBound) / p.Sales
		assert.Greater(t, spread, prevSpread, "bounds widen with the horizon")
		prevSpread = spread
	}

	in := res.Insights
	assert.GreaterOrEqual(t, in.ConfidenceScore, 70)
	assert.LessOrEqual(t, in.ConfidenceScore, 95)
	assert.GreaterOrEqual(t, in.BestDay.Sales, in.WorstDay.Sales)
	assert.Contains(t, []string{"Weekly", "No clear pattern"}, in.Seasonality)
	require.Len(t, res.Recommendations, 3)
	assert.Contains(t, []string{"warning", "success"}, res.Recommendations[0].Type)
	assert.Contains(t, res.Recommendations[1].Message, "best performing day")
}

func TestSalesForecast_Deterministic(t *testing.T) {
	a := SalesForecast(fixedNow, rand.New(rand.NewSource(1)))
	b := SalesForecast(fixedNow, rand.New(rand.NewSource(1)))
	assert.Equal(t, a, b)
}

func TestDominantPeriods(t *testing.T) {
	values := make([]float64, 28)
	for i := range values {
		values[i] = 100 + 50*math.Sin(2*math.Pi*float64(i)/7)
	}
	assert.Equal(t, 7, DominantPeriods(values, 1)[0])
	assert.Nil(t, DominantPeriods([]float64{1}, 3))
	assert.Len(t, DominantPeriods(values, 50), 14)
}

func TestCustomerSegments(t *testing.T) {
	res := CustomerSegments(rand.New(rand.NewSource(3)))
	require.Len(t, res.Segments, 5)

	total := 0
	pct := 0.0
	for _, s := range res.Segments {
		total += s.Count
		pct += s.Percentage
		assert.InDelta(t, float64(s.Count)*s.AvgRevenue, s.TotalRevenue, 0.01)
	}
	assert.Equal(t, res.TotalCustomers, total)
	assert.InDelta(t, 100, pct, 0.5)
	assert.Equal(t, "High Value", res.Segments[0].Name)
}

func TestSentimentAnalysis(t *testing.T) {
	res := SentimentAnalysis(fixedNow, rand.New(rand.NewSource(5)))
	require.Len(t, res.DailyData, 30)
	assert.Equal(t, "2025-02-10", res.DailyData[0].Date)

	sum := 0
	for _, d := range res.DailyData {
		assert.Equal(t, d.Interactions, d.Sentiments["Positive"]+d.Sentiments["Neutral"]+d.Sentiments["Negative"])
		ch := 0
		for _, n := range d.Channels {
			ch += n
		}
		assert.Equal(t, d.Interactions, ch)
		assert.Len(t, d.Channels, 5)
		sum += d.Interactions
	}
	assert.Equal(t, sum, res.TotalInteractions)
	assert.Len(t, res.CommonPhrases["positive"], 5)
	assert.Len(t, res.CommonPhrases["negative"], 5)
	assert.InDelta(t, 100, res.SentimentDistribution["Positive"]+res.SentimentDistribution["Neutral"]+res.SentimentDistribution["Negative"], 0.2)
}
