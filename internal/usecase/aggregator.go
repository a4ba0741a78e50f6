package usecase

import (
	"DepthWatch/internal/domain/models"
)

// Spoof flags in one cycle at or above this count read as coordinated
// manipulation regardless of scores.
const manipulationSpoofCount = 3

// SignalAggregator folds classified entries plus flow metrics into one
// instrument-level verdict. Aggregate is a pure function: identical
// inputs always produce identical scores and verdict.
type SignalAggregator struct {
	params *Params
}

func NewSignalAggregator(params *Params) *SignalAggregator {
	return &SignalAggregator{params: params}
}

// Aggregate scores entries by side and decides the verdict.
//
// Per-entry score: weight (2.0 persistent, 1.0 otherwise) x impact
// bonus (1.5 when impact >= threshold) x notional/1e8, with sweeps
// worth an extra 1.5x. Spoofed entries contribute nothing but are
// counted separately.
func (a *SignalAggregator) Aggregate(entries []*models.TrackedEntry, cvdCum float64, oi, prevOI float64) models.AggregateResult {
	res := models.AggregateResult{
		CVDCum:              cvdCum,
		OI:                  oi,
		TrackedEntriesCount: len(entries),
		Verdict:             models.VerdictUnknown,
	}

	for _, e := range entries {
		if e.IsSpoof || e.Classification == models.ClassSpoof {
			res.SpoofCount++
			continue
		}

		weight := 1.0
		if e.IsPersistent {
			weight = 2.0
		}
		bonus := 1.0
		if e.ImpactRatio >= a.params.ImpactRatioThreshold {
			bonus = 1.5
		}
		score := weight * bonus * (e.Notional / 1e8)
		if e.Classification == models.ClassSweepBuy || e.Classification == models.ClassSweepSell {
			score *= 1.5
		}

		if e.Side == models.SideBid {
			res.BuyScore += score
		} else {
			res.SellScore += score
		}
	}

	if prevOI > 0 {
		res.OIChangePct = (oi - prevOI) / prevOI * 100
	}

	res.Verdict = a.decide(res)
	return res
}

// decide applies the decision ladder in priority order.
func (a *SignalAggregator) decide(r models.AggregateResult) models.Verdict {
	if r.SpoofCount >= manipulationSpoofCount {
		return models.VerdictManipulation
	}

	// Nothing tracked and no flow: nothing to say.
	if r.TrackedEntriesCount == 0 && r.CVDCum == 0 && r.OIChangePct == 0 {
		return models.VerdictUnknown
	}

	diff := r.BuyScore - r.SellScore
	margin := a.params.ScoreMargin

	// Scores too close to call: let flow break the tie.
	if diff < margin && diff > -margin {
		switch {
		case r.CVDCum > 0 && r.OIChangePct > 0:
			return models.VerdictAccumulateMarkup
		case r.CVDCum < 0 && r.OIChangePct < 0:
			return models.VerdictDistributionMarkdown
		default:
			return models.VerdictNeutral
		}
	}

	if diff >= margin {
		if r.CVDCum >= 0 {
			return models.VerdictAccumulateMarkup
		}
		// Bid walls dominating while sold flow leads: contradiction.
		return models.VerdictManipulation
	}

	// Sell side leads by at least the margin.
	if r.CVDCum <= 0 {
		return models.VerdictDistributionMarkdown
	}
	return models.VerdictManipulation
}
