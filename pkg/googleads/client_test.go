package googleads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 18, 9, 30, 0, 0, time.UTC)
}

func TestMetrics_Deterministic(t *testing.T) {
	c := NewStub(WithClock(fixedClock), WithRateLimit(1000))

	a, err := c.Metrics(context.Background(), "camp-1")
	require.NoError(t, err)
	b, err := c.Metrics(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := c.Metrics(context.Background(), "camp-2")
	require.NoError(t, err)
	assert.NotEqual(t, a.Impressions, other.Impressions)
}

func TestMetrics_Shape(t *testing.T) {
	c := NewStub(WithClock(fixedClock), WithRateLimit(1000))

	m, err := c.Metrics(context.Background(), "camp-1")
	require.NoError(t, err)

	assert.Equal(t, "camp-1", m.CampaignID)
	assert.Greater(t, m.Impressions, m.Clicks)
	assert.GreaterOrEqual(t, m.Clicks, m.Conversions)
	assert.Greater(t, m.Cost, 0.0)
}

func TestMetrics_RequiresCampaignID(t *testing.T) {
	c := NewStub(WithClock(fixedClock))
	_, err := c.Metrics(context.Background(), "")
	require.Error(t, err)
}
