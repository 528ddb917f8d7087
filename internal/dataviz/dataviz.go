// Package dataviz produces the simulated dashboard data the CRM front end
// renders: a sales forecast, customer segments and interaction sentiment.
// Every generator takes the clock and random source so results are reproducible.
package dataviz

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// weeklyPattern is the sales multiplier per weekday, Monday first.
var weeklyPattern = [7]float64{1.2, 1.0, 0.9, 0.8, 1.1, 1.5, 0.7}

const baseSales = 1000.0

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round1(x float64) float64 { return math.Round(x*10) / 10 }

func uniform(rng *rand.Rand, lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

// randInt returns an int in [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int { return lo + rng.Intn(hi-lo+1) }

// mondayIndex maps a weekday to its position in a Monday-first week.
func mondayIndex(d time.Weekday) int { return (int(d) + 6) % 7 }

// Hello is the connectivity check message.
func Hello(now time.Time) string {
	return "Hello from the backend! Current time: " + now.Format("2006-01-02 15:04:05")
}

// --- Sales forecast ---

type HistoricalPoint struct {
	Date   string  `json:"date"`
	Sales  float64 `json:"sales"`
	Actual bool    `json:"actual"`
}

type ForecastPoint struct {
	Date       string  `json:"date"`
	Sales      float64 `json:"sales"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Actual     bool    `json:"actual"`
}

type DaySales struct {
	Date  string  `json:"date"`
	Sales float64 `json:"sales"`
}

type ForecastInsights struct {
	WeekOverWeekChange      float64  `json:"week_over_week_change"`
	BestDay                 DaySales `json:"best_day"`
	WorstDay                DaySales `json:"worst_day"`
	Seasonality             string   `json:"seasonality"`
	ProjectedMonthlyRevenue float64  `json:"projected_monthly_revenue"`
	ConfidenceScore         int      `json:"confidence_score"`
}

type Recommendation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type SalesForecastResult struct {
	HistoricalData  []HistoricalPoint `json:"historical_data"`
	ForecastData    []ForecastPoint   `json:"forecast_data"`
	Insights        ForecastInsights  `json:"insights"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// SalesForecast simulates 30 days of sales with a weekly pattern and a slight
// upward trend, then forecasts the next 14 days with widening bounds.
func SalesForecast(now time.Time, rng *rand.Rand) *SalesForecastResult {
	history := make([]HistoricalPoint, 0, 30)
	for i := 0; i < 30; i++ {
		day := now.AddDate(0, 0, -(30 - i))
		trend := 1 + float64(i)*0.005
		sales := baseSales * weeklyPattern[mondayIndex(day.Weekday())] * trend * uniform(rng, 0.85, 1.15)
		history = append(history, HistoricalPoint{Date: day.Format(dateLayout), Sales: round2(sales), Actual: true})
	}

	var histSum, recentSum float64
	for i, p := range history {
		histSum += p.Sales
		if i >= len(history)-7 {
			recentSum += p.Sales
		}
	}
	trendDirection := (recentSum / 7) / (histSum / float64(len(history)))

	forecast := make([]ForecastPoint, 0, 14)
	var projected float64
	for i := 0; i < 14; i++ {
		day := now.AddDate(0, 0, i+1)
		value := baseSales * weeklyPattern[mondayIndex(day.Weekday())] * trendDirection * (1 + float64(i)*0.02)
		spread := 0.05 * float64(i+1)
		forecast = append(forecast, ForecastPoint{
			Date:       day.Format(dateLayout),
			Sales:      round2(value),
			LowerBound: round2(value * (1 - spread)),
			UpperBound: round2(value * (1 + spread)),
		})
		projected += round2(value)
	}

	var thisWeek, lastWeek float64
	for _, p := range history[len(history)-7:] {
		thisWeek += p.Sales
	}
	for _, p := range history[len(history)-14 : len(history)-7] {
		lastWeek += p.Sales
	}
	wow := (thisWeek - lastWeek) / lastWeek * 100

	best, worst := history[0], history[0]
	for _, p := range history[1:] {
		if p.Sales > best.Sales {
			best = p
		}
		if p.Sales < worst.Sales {
			worst = p
		}
	}

	sales := make([]float64, len(history))
	for i, p := range history {
		sales[i] = p.Sales
	}
	seasonality := "No clear pattern"
	for _, p := range DominantPeriods(sales, 3) {
		if p >= 6 && p <= 8 {
			seasonality = "Weekly"
			break
		}
	}

	res := &SalesForecastResult{
		HistoricalData: history,
		ForecastData:   forecast,
		Insights: ForecastInsights{
			WeekOverWeekChange:      round2(wow),
			BestDay:                 DaySales{Date: best.Date, Sales: best.Sales},
			WorstDay:                DaySales{Date: worst.Date, Sales: worst.Sales},
			Seasonality:             seasonality,
			ProjectedMonthlyRevenue: round2(projected),
			ConfidenceScore:         randInt(rng, 70, 95),
		},
	}

	if wow < 0 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:    "warning",
			Message: fmt.Sprintf("Sales are down %g%% week-over-week. Consider launching a promotion.", math.Abs(round1(wow))),
		})
	} else {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:    "success",
			Message: fmt.Sprintf("Sales are up %g%% week-over-week. Great job!", round1(wow)),
		})
	}
	bestDay, _ := time.Parse(dateLayout, best.Date)
	worstDay, _ := time.Parse(dateLayout, worst.Date)
	res.Recommendations = append(res.Recommendations,
		Recommendation{Type: "info", Message: bestDay.Weekday().String() + " is typically your best performing day. Consider allocating more resources."},
		Recommendation{Type: "info", Message: worstDay.Weekday().String() + " is typically your worst performing day. Consider special promotions."},
	)
	return res
}

// DominantPeriods returns the periods, in samples, of the n strongest
// non-constant frequency components of a real series.
func DominantPeriods(values []float64, n int) []int {
	size := len(values)
	if size < 2 {
		return nil
	}
	type bin struct {
		k   int
		mag float64
	}
	bins := make([]bin, 0, size/2)
	for k := 1; k <= size/2; k++ {
		var sum complex128
		for t, v := range values {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(size)
			sum += complex(v, 0) * cmplx.Exp(complex(0, angle))
		}
		bins = append(bins, bin{k: k, mag: cmplx.Abs(sum)})
	}
	sort.SliceStable(bins, func(i, j int) bool { return bins[i].mag > bins[j].mag })
	if n > len(bins) {
		n = len(bins)
	}
	periods := make([]int, 0, n)
	for _, b := range bins[:n] {
		p := int(math.RoundToEven(float64(size) / float64(b.k)))
		if p > 0 && p <= size {
			periods = append(periods, p)
		}
	}
	return periods
}

// --- Customer segments ---

type Segment struct {
	Name              string  `json:"name"`
	Count             int     `json:"count"`
	AvgRevenue        float64 `json:"avg_revenue"`
	Percentage        float64 `json:"percentage"`
	TotalRevenue      float64 `json:"total_revenue"`
	RevenuePercentage float64 `json:"revenue_percentage"`
}

type SegmentsResult struct {
	Segments       []Segment `json:"segments"`
	TotalCustomers int       `json:"total_customers"`
	TotalRevenue   float64   `json:"total_revenue"`
}

type segmentRange struct {
	name               string
	minCount, maxCount int
	minRev, maxRev     float64
}

var segmentRanges = []segmentRange{
	{"High Value", 50, 150, 5000, 10000},
	{"Regular", 500, 1500, 1000, 3000},
	{"Occasional", 2000, 5000, 200, 800},
	{"New", 100, 400, 50, 200},
	{"At Risk", 20, 100, 1500, 4000},
}

// CustomerSegments simulates customer counts and revenue per segment.
func CustomerSegments(rng *rand.Rand) *SegmentsResult {
	res := &SegmentsResult{Segments: make([]Segment, 0, len(segmentRanges))}
	avg := make([]float64, len(segmentRanges))
	var totalRevenue float64
	for i, r := range segmentRanges {
		count := randInt(rng, r.minCount, r.maxCount)
		avg[i] = uniform(rng, r.minRev, r.maxRev)
		res.Segments = append(res.Segments, Segment{Name: r.name, Count: count})
		res.TotalCustomers += count
		totalRevenue += float64(count) * avg[i]
	}
	for i := range res.Segments {
		s := &res.Segments[i]
		s.Percentage = round1(float64(s.Count) / float64(res.TotalCustomers) * 100)
		s.AvgRevenue = round2(avg[i])
		s.TotalRevenue = round2(float64(s.Count) * s.AvgRevenue)
		s.RevenuePercentage = round1(s.TotalRevenue / totalRevenue * 100)
	}
	res.TotalRevenue = round2(totalRevenue)
	return res
}

// --- Sentiment ---

var sentimentChannels = []string{"Email", "Phone", "Chat", "Social Media", "In Person"}

type DailySentiment struct {
	Date         string         `json:"date"`
	Interactions int            `json:"interactions"`
	Sentiments   map[string]int `json:"sentiments"`
	Channels     map[string]int `json:"channels"`
}

type Phrase struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type SentimentResult struct {
	DailyData             []DailySentiment    `json:"daily_data"`
	OverallSentimentScore float64             `json:"overall_sentiment_score"`
	TotalInteractions     int                 `json:"total_interactions"`
	SentimentDistribution map[string]float64  `json:"sentiment_distribution"`
	CommonPhrases         map[string][]Phrase `json:"common_phrases"`
}

type phraseRange struct {
	text     string
	min, max int
}

var (
	positivePhrases = []phraseRange{
		{"excellent service", 30, 100}, {"very helpful", 25, 80}, {"great product", 20, 70},
		{"highly recommend", 15, 60}, {"thank you", 40, 120},
	}
	negativePhrases = []phraseRange{
		{"poor service", 5, 30}, {"not working", 10, 40}, {"disappointed", 8, 35},
		{"too expensive", 7, 25}, {"waiting too long", 6, 20},
	}
)

func phrases(rng *rand.Rand, ranges []phraseRange) []Phrase {
	out := make([]Phrase, len(ranges))
	for i, r := range ranges {
		out[i] = Phrase{Text: r.text, Count: randInt(rng, r.min, r.max)}
	}
	return out
}

// SentimentAnalysis simulates 30 days of customer interactions split by
// sentiment and channel. Daily sentiment and channel counts each sum to the
// day's interactions.
func SentimentAnalysis(now time.Time, rng *rand.Rand) *SentimentResult {
	res := &SentimentResult{DailyData: make([]DailySentiment, 0, 30)}
	var positive, neutral, negative int
	for i := 30; i >= 1; i-- {
		interactions := randInt(rng, 50, 200)
		counts := map[string]int{
			"Positive": int(float64(interactions) * 0.6 * uniform(rng, 0.9, 1.1)),
			"Neutral":  int(float64(interactions) * 0.3 * uniform(rng, 0.9, 1.1)),
			"Negative": int(float64(interactions) * 0.1 * uniform(rng, 0.9, 1.1)),
		}
		counts["Neutral"] += interactions - (counts["Positive"] + counts["Neutral"] + counts["Negative"])

		channels := make(map[string]int, len(sentimentChannels))
		remaining := interactions
		for _, ch := range sentimentChannels[:len(sentimentChannels)-1] {
			n := int(float64(remaining) * uniform(rng, 0.1, 0.3))
			channels[ch] = n
			remaining -= n
		}
		channels[sentimentChannels[len(sentimentChannels)-1]] = remaining

		res.DailyData = append(res.DailyData, DailySentiment{
			Date:         now.AddDate(0, 0, -i).Format(dateLayout),
			Interactions: interactions,
			Sentiments:   counts,
			Channels:     channels,
		})
		res.TotalInteractions += interactions
		positive += counts["Positive"]
		neutral += counts["Neutral"]
		negative += counts["Negative"]
	}

	total := float64(res.TotalInteractions)
	res.OverallSentimentScore = round1(float64(positive-negative) / total * 100)
	res.SentimentDistribution = map[string]float64{
		"Positive": round1(float64(positive) / total * 100),
		"Neutral":  round1(float64(neutral) / total * 100),
		"Negative": round1(float64(negative) / total * 100),
	}
	res.CommonPhrases = map[string][]Phrase{
		"positive": phrases(rng, positivePhrases),
		"negative": phrases(rng, negativePhrases),
	}
	return res
}
