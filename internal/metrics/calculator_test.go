package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unson/lpops/internal/model"
)

func TestCVR(t *testing.T) {
	assert.Equal(t, 0.0, CVR(0, 0), "zero sessions is defined as 0, not an error")
	assert.Equal(t, 10.0, CVR(50, 500))
	assert.Equal(t, 3.3, CVR(1, 30), "rounds half-up to one decimal")
	assert.Equal(t, 100.0, CVR(10, 10))
}

func TestCPA(t *testing.T) {
	assert.Equal(t, 0.0, CPA(15000, 0))
	assert.Equal(t, 300.0, CPA(15000, 50))
	assert.Equal(t, 333.0, CPA(1000, 3), "rounds to nearest whole unit")
}

func TestCTRAndROAS(t *testing.T) {
	assert.Equal(t, 0.0, CTR(10, 0))
	assert.Equal(t, 5.0, CTR(50, 1000))
	assert.Equal(t, 0.0, ROAS(1000, 0))
	assert.Equal(t, 2.5, ROAS(2500, 1000))
}

func TestGrowthRate(t *testing.T) {
	assert.Equal(t, 0.0, GrowthRate(0, 0))
	assert.Equal(t, 100.0, GrowthRate(10, 0), "growth from nothing reports 100")
	assert.Equal(t, 20.0, GrowthRate(120, 100))
	assert.Equal(t, -25.0, GrowthRate(75, 100))
}

func TestDetectTrend(t *testing.T) {
	assert.Equal(t, model.TrendStable, DetectTrend([]float64{10}), "short series is stable")
	assert.Equal(t, model.TrendStable, DetectTrend([]float64{10, 10.1}))
	assert.Equal(t, model.TrendIncreasing, DetectTrend([]float64{10, 12}))
	assert.Equal(t, model.TrendDecreasing, DetectTrend([]float64{12, 10}))

	// Only the endpoints matter; the middle of the series is ignored.
	assert.Equal(t, model.TrendStable, DetectTrend([]float64{10, 50, 2, 10.2}))
}

func TestMovingAverage(t *testing.T) {
	assert.Nil(t, MovingAverage([]float64{1, 2}, 3), "series shorter than period")

	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	assert.Equal(t, []float64{2, 3, 4}, got)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{5, 5, 5}))
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, Percentile(values, 50))
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 5.0, Percentile(values, 100))
	assert.Equal(t, 4.5, Percentile(values, 87.5), "linear interpolation between ranks")
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 10.5, RoundTo(10.45, 1))
	assert.Equal(t, 10.0, RoundTo(10.44, 0))
	assert.Equal(t, 0.123, RoundTo(0.12345, 3))
}

func TestEstimates(t *testing.T) {
	assert.Equal(t, 1200, EstimateClicks(1000))
	assert.Equal(t, 20000, EstimateImpressions(1000))
}

func TestSummarize(t *testing.T) {
	rows := []model.SessionMetrics{
		{Sessions: 1000, Conversions: 100, Revenue: 30000},
		{Sessions: 500, Conversions: 25, Revenue: 10000},
	}
	sum := Summarize(rows)
	assert.Equal(t, 1500, sum.TotalSessions)
	assert.Equal(t, 125, sum.TotalConversions)
	assert.Equal(t, 40000.0, sum.TotalRevenue)
	assert.Equal(t, 8.3, sum.AverageCVR)
	assert.Equal(t, 320.0, sum.AverageCPA)

	empty := Summarize(nil)
	assert.Equal(t, 0.0, empty.AverageCVR)
	assert.Equal(t, 0.0, empty.AverageCPA)
}
