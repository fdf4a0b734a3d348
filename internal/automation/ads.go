package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/unson/lpops/internal/metrics"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/pkg/lpsource"
)

// OptimizeGoogleAds analyzes campaign performance against the session's
// targets and records the bid/budget adjustments it would apply. Failures
// escalate to a severity-high alert on top of the failed execution record.
// The session's phase is never touched here.
func (e *Engine) OptimizeGoogleAds(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
	return e.run(ctx, model.ExecutionGoogleAdsOptimization, sessionID, true, func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error) {
		before := snapshot(s)

		campaign, err := e.ads.Metrics(ctx, campaignID(s))
		if err != nil {
			return nil, err
		}

		campaignCVR := metrics.CVR(campaign.Conversions, campaign.Clicks)
		campaignCPA := metrics.CPA(campaign.Cost, campaign.Conversions)

		var adjustments []string
		confidence := 0.6
		switch {
		case s.TargetCPA > 0 && campaignCPA > s.TargetCPA:
			adjustments = append(adjustments,
				fmt.Sprintf("lower max CPC bids 15%% (campaign CPA %.0f above target %.0f)", campaignCPA, s.TargetCPA))
			confidence = 0.75
		case s.TargetCVR > 0 && campaignCVR >= s.TargetCVR:
			adjustments = append(adjustments,
				fmt.Sprintf("raise daily budget 20%% (campaign CVR %.1f%% meets target %.1f%%)", campaignCVR, s.TargetCVR))
			confidence = 0.8
		default:
			adjustments = append(adjustments, "hold current bids, widen keyword match for volume")
		}
		if s.BudgetLimit > 0 && s.TotalSpend+campaign.Cost > s.BudgetLimit {
			adjustments = append(adjustments, "cap spend, budget limit within reach")
			confidence = 0.9
		}

		// Predicted effect of the adjustments, not a measurement.
		after := &model.MetricSnapshot{
			CVR: metrics.RoundTo(s.CurrentCVR*1.05, metrics.PercentagePlaces),
			CPA: metrics.RoundTo(s.CurrentCPA*0.95, metrics.CurrencyPlaces),
		}

		return &model.ExecutionResult{
			OutputData: map[string]any{
				"campaign_id":  campaign.CampaignID,
				"campaign_cvr": campaignCVR,
				"campaign_cpa": campaignCPA,
				"impressions":  campaign.Impressions,
				"clicks":       campaign.Clicks,
				"conversions":  campaign.Conversions,
				"cost":         campaign.Cost,
				"adjustments":  adjustments,
			},
			MetricsBefore: before,
			MetricsAfter:  after,
			AIReasoning:   "campaign " + campaign.CampaignID + ": " + strings.Join(adjustments, "; "),
			Confidence:    confidence,
		}, nil
	})
}

// GenerateLPImprovements fetches the landing page copy, proposes changes
// where the session is under its CVR target, and opens a PR when there is
// anything to apply.
func (e *Engine) GenerateLPImprovements(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
	return e.run(ctx, model.ExecutionLPContentOptimization, sessionID, false, func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error) {
		before := snapshot(s)

		content, err := e.lp.FetchContent(ctx, s.LPURL)
		if err != nil {
			return nil, err
		}

		suggestions := suggestImprovements(s, content)

		output := map[string]any{
			"lp_url":      s.LPURL,
			"suggestions": suggestions,
		}
		reasoning := fmt.Sprintf("CVR %.1f%% vs target %.1f%%, %d suggestions", s.CurrentCVR, s.TargetCVR, len(suggestions))
		confidence := 0.5
		if len(suggestions) > 0 {
			prURL, err := e.lp.CreatePR(ctx, s.LPURL, suggestions)
			if err != nil {
				return nil, err
			}
			output["pr_url"] = prURL
			reasoning += ", PR opened"
			confidence = 0.7
		}

		return &model.ExecutionResult{
			OutputData:    output,
			MetricsBefore: before,
			MetricsAfter:  before,
			AIReasoning:   reasoning,
			Confidence:    confidence,
		}, nil
	})
}

// suggestImprovements proposes copy changes for sessions below their CVR
// target. On-target sessions get nothing; the page is working.
func suggestImprovements(s *model.Session, content *lpsource.Content) []lpsource.Suggestion {
	if s.TargetCVR <= 0 || s.CurrentCVR >= s.TargetCVR {
		return nil
	}

	gap := s.TargetCVR - s.CurrentCVR
	suggestions := []lpsource.Suggestion{
		{
			Section:   "headline",
			Current:   content.Headline,
			Proposed:  content.Headline + " in 5 minutes",
			Rationale: fmt.Sprintf("CVR %.1f points under target, sharpen the promise", gap),
		},
		{
			Section:   "cta",
			Current:   content.CTA,
			Proposed:  "Get started free",
			Rationale: "lower-commitment CTA wording",
		},
	}
	if gap > 2 {
		suggestions = append(suggestions, lpsource.Suggestion{
			Section:   "hero",
			Current:   content.Hero,
			Proposed:  content.Hero + " Trusted by early teams.",
			Rationale: "large gap, add social proof above the fold",
		})
	}
	return suggestions
}
