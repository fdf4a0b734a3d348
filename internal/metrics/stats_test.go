package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unson/lpops/internal/model"
)

func TestNormalCDF(t *testing.T) {
	assert.Equal(t, 0.5, NormalCDF(0))
	assert.Greater(t, NormalCDF(2), 0.95)
	assert.Less(t, NormalCDF(-2), 0.05)
	assert.InDelta(t, 1.0, NormalCDF(2)+NormalCDF(-2), 1e-9, "symmetric around zero")
}

func TestSignificance(t *testing.T) {
	// 12% vs 16% CVR over 1000 sessions each: a clear signal at the loose
	// p < 0.1 threshold.
	result := Significance(
		Proportion{Conversions: 120, Sessions: 1000},
		Proportion{Conversions: 160, Sessions: 1000},
	)
	assert.True(t, result.IsSignificant)
	assert.Less(t, result.PValue, 0.1)
	assert.Greater(t, result.ConfidenceLevel, 90.0)
	assert.Equal(t, "two-proportion z-test", result.TestType)
}

func TestSignificance_NoDifference(t *testing.T) {
	result := Significance(
		Proportion{Conversions: 100, Sessions: 1000},
		Proportion{Conversions: 101, Sessions: 1000},
	)
	assert.False(t, result.IsSignificant)
	assert.GreaterOrEqual(t, result.PValue, 0.1)
}

func cvrRows(cvrs ...float64) []model.SessionMetrics {
	rows := make([]model.SessionMetrics, len(cvrs))
	for i, v := range cvrs {
		rows[i] = model.SessionMetrics{SessionID: "s", CVR: v}
	}
	return rows
}

func TestDetectAnomalies_InsufficientSample(t *testing.T) {
	assert.Nil(t, DetectAnomalies(cvrRows(10, 25)), "fewer than 3 points yields empty, not error")
}

func TestDetectAnomalies_LowVariance(t *testing.T) {
	assert.Empty(t, DetectAnomalies(cvrRows(10, 11, 9, 10)))
}

func TestDetectAnomalies_SmallSeriesCannotExceedTwoSigma(t *testing.T) {
	// In a 4-point series no point can deviate more than sqrt(3) population
	// standard deviations from the mean, so the 2-sigma rule never fires.
	assert.Empty(t, DetectAnomalies(cvrRows(10, 10, 10, 25)))
}

func TestDetectAnomalies_Outlier(t *testing.T) {
	anomalies := DetectAnomalies(cvrRows(10, 10, 10, 10, 10, 10, 10, 25))
	require.Len(t, anomalies, 1)
	assert.Equal(t, "cvr", anomalies[0].Metric)
	assert.Equal(t, 25.0, anomalies[0].Value)
	assert.Greater(t, anomalies[0].Deviation, 2.0)
	assert.Contains(t, anomalies[0].Reason, "statistical outlier")
}

func TestDetectAnomalies_ZeroVariance(t *testing.T) {
	assert.Empty(t, DetectAnomalies(cvrRows(10, 10, 10)))
}
