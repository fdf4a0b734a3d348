package metrics

import (
	"math"
	"sort"

	"github.com/unson/lpops/internal/model"
)

// Rounding precision per field class. Percentages get one decimal, currency
// is whole units, statistical values get three decimals.
const (
	PercentagePlaces  = 1
	CurrencyPlaces    = 0
	StatisticalPlaces = 3
	ChartValuePlaces  = 1
)

// Fixed ratios used to estimate clicks/impressions when a data source only
// reports session counts. An approximation policy, not a defect.
const (
	clickToSessionRatio      = 1.2
	impressionToSessionRatio = 20.0
)

// RoundTo rounds value half-up to the given number of decimal places.
func RoundTo(value float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(value*mult) / mult
}

// CVR returns the conversion rate as a percentage with one decimal place.
// Zero sessions yields 0, by definition rather than error.
func CVR(conversions, sessions int) float64 {
	if sessions == 0 {
		return 0
	}
	return RoundTo(float64(conversions)/float64(sessions)*100, PercentagePlaces)
}

// CPA returns cost per acquisition rounded to the nearest whole unit.
// Zero conversions yields 0.
func CPA(cost float64, conversions int) float64 {
	if conversions == 0 {
		return 0
	}
	return math.Round(cost / float64(conversions))
}

// CTR returns the click-through rate as a percentage with one decimal place.
func CTR(clicks, impressions int) float64 {
	if impressions == 0 {
		return 0
	}
	return RoundTo(float64(clicks)/float64(impressions)*100, PercentagePlaces)
}

// ROAS returns return on ad spend with one decimal place.
func ROAS(revenue, cost float64) float64 {
	if cost == 0 {
		return 0
	}
	return RoundTo(revenue/cost, ChartValuePlaces)
}

// GrowthRate returns the percentage change from previous to current.
// A zero previous value yields 100 when current is positive and 0 otherwise,
// signalling "new growth from nothing" without dividing by zero.
func GrowthRate(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return RoundTo((current-previous)/previous*100, PercentagePlaces)
}

// MovingAverage returns the trailing moving average over the given period.
// Series shorter than the period yield an empty result.
func MovingAverage(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	result := make([]float64, 0, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		for _, v := range values[i-period+1 : i+1] {
			sum += v
		}
		result = append(result, RoundTo(sum/float64(period), ChartValuePlaces))
	}
	return result
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// DetectTrend compares only the first and last elements of the series:
// a change under 5% is stable, otherwise the sign decides. This is a cheap
// heuristic carried over from the production rules, not a regression fit.
func DetectTrend(values []float64) model.TrendDirection {
	if len(values) < 2 {
		return model.TrendStable
	}
	first := values[0]
	last := values[len(values)-1]
	changeRate := math.Abs((last-first)/first) * 100
	if changeRate < 5 {
		return model.TrendStable
	}
	if last > first {
		return model.TrendIncreasing
	}
	return model.TrendDecreasing
}

// Percentile returns the pth percentile using linear interpolation between
// closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := p / 100 * float64(len(sorted)-1)
	lower := math.Floor(index)
	if lower == index {
		return sorted[int(index)]
	}
	upper := math.Ceil(index)
	weight := index - lower
	return sorted[int(lower)] + weight*(sorted[int(upper)]-sorted[int(lower)])
}

// EstimateClicks derives a click count from sessions via a fixed ratio.
func EstimateClicks(sessions int) int {
	return int(math.Round(float64(sessions) * clickToSessionRatio))
}

// EstimateImpressions derives an impression count from sessions via a fixed ratio.
func EstimateImpressions(sessions int) int {
	return int(math.Round(float64(sessions) * impressionToSessionRatio))
}

// Summarize aggregates metric rows into report totals with averaged CVR/CPA.
func Summarize(rows []model.SessionMetrics) model.ReportSummary {
	var sessions, conversions int
	var revenue float64
	for _, r := range rows {
		sessions += r.Sessions
		conversions += r.Conversions
		revenue += r.Revenue
	}

	var avgCVR, avgCPA float64
	if sessions > 0 {
		avgCVR = RoundTo(float64(conversions)/float64(sessions)*100, PercentagePlaces)
	}
	if conversions > 0 {
		avgCPA = math.Round(revenue / float64(conversions))
	}

	return model.ReportSummary{
		TotalSessions:    sessions,
		TotalConversions: conversions,
		TotalRevenue:     revenue,
		AverageCVR:       avgCVR,
		AverageCPA:       avgCPA,
	}
}
