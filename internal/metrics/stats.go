package metrics

import (
	"math"

	"github.com/unson/lpops/internal/model"
)

// significancePValue is the threshold below which a difference counts as
// significant. Looser than the conventional 0.05: the business prefers to
// catch signals earlier at the cost of more false positives.
const significancePValue = 0.1

// NormalCDF approximates the standard normal cumulative distribution using
// the same closed-form approximation the original reporting rules use.
func NormalCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	} else if x == 0 {
		sign = 0
	}
	return (1 + sign*math.Sqrt(1-math.Exp(-2*x*x/math.Pi))) / 2
}

// Proportion is one arm of a two-proportion comparison.
type Proportion struct {
	Conversions int
	Sessions    int
}

// Significance runs a two-proportion z-test between two sessions'
// conversion rates.
func Significance(a, b Proportion) model.SignificanceTest {
	p1 := float64(a.Conversions) / float64(a.Sessions)
	p2 := float64(b.Conversions) / float64(b.Sessions)
	pPool := float64(a.Conversions+b.Conversions) / float64(a.Sessions+b.Sessions)

	se := math.Sqrt(pPool * (1 - pPool) * (1/float64(a.Sessions) + 1/float64(b.Sessions)))
	z := math.Abs(p2-p1) / se

	pValue := 2 * (1 - NormalCDF(math.Abs(z)))
	return model.SignificanceTest{
		IsSignificant:   pValue < significancePValue,
		ConfidenceLevel: RoundTo((1-pValue)*100, PercentagePlaces),
		PValue:          RoundTo(pValue, StatisticalPlaces),
		TestType:        "two-proportion z-test",
	}
}

// DetectAnomalies flags rows whose CVR deviates more than two standard
// deviations from the set mean. Fewer than three rows is an insufficient
// sample and yields no anomalies rather than an error.
func DetectAnomalies(rows []model.SessionMetrics) []model.Anomaly {
	if len(rows) < 3 {
		return nil
	}

	values := make([]float64, len(rows))
	mean := 0.0
	for i, r := range rows {
		values[i] = r.CVR
		mean += r.CVR
	}
	mean /= float64(len(rows))
	stdDev := StdDev(values)
	if stdDev == 0 {
		return nil
	}

	var anomalies []model.Anomaly
	for _, r := range rows {
		deviation := math.Abs(r.CVR-mean) / stdDev
		if deviation > 2 {
			anomalies = append(anomalies, model.Anomaly{
				Metric:    "cvr",
				Value:     r.CVR,
				Expected:  mean,
				Deviation: deviation,
				Reason:    "statistical outlier detected",
			})
		}
	}
	return anomalies
}
