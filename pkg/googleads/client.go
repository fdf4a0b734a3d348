// Package googleads provides the ad platform capability used by campaign
// automation. Metrics reads are the only operation the automation layer
// needs; campaign mutation stays on the ad platform side.
package googleads

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// CampaignMetrics is the read-only snapshot the optimization analysis
// consumes.
type CampaignMetrics struct {
	CampaignID  string  `json:"campaign_id"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Conversions int     `json:"conversions"`
	Cost        float64 `json:"cost"`
}

// Client defines the ad platform operations.
type Client interface {
	// Metrics returns the current campaign performance snapshot.
	Metrics(ctx context.Context, campaignID string) (*CampaignMetrics, error)
}

// Option configures the stub client.
type Option func(*stubClient)

// WithRateLimit caps requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *stubClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *stubClient) {
		c.now = now
	}
}

type stubClient struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewStub creates a deterministic in-process client. Metrics are derived
// from the campaign ID and the current hour, so repeated calls within an
// hour return identical numbers and tests can pin the clock.
func NewStub(opts ...Option) Client {
	c := &stubClient{
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *stubClient) Metrics(ctx context.Context, campaignID string) (*CampaignMetrics, error) {
	if campaignID == "" {
		return nil, eris.New("googleads: campaign id required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "googleads: rate limit wait")
	}

	seed := c.seed(campaignID)
	impressions := 5000 + int(seed%20000)
	clicks := impressions / int(20+seed%30)
	conversions := clicks / int(10+seed%40)
	cost := float64(clicks) * float64(50+seed%200)

	return &CampaignMetrics{
		CampaignID:  campaignID,
		Impressions: impressions,
		Clicks:      clicks,
		Conversions: conversions,
		Cost:        cost,
	}, nil
}

func (c *stubClient) seed(campaignID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(campaignID))
	_, _ = h.Write([]byte(c.now().UTC().Format("2006010215")))
	return h.Sum64()
}
