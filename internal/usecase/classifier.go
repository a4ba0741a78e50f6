package usecase

import (
	"time"

	"DepthWatch/internal/domain/models"
)

// OrderClassifier labels tracked entries from their own lifecycle
// fields. Classification is a pure function of the entry state:
// reclassifying an unchanged list is a no-op.
type OrderClassifier struct {
	params *Params
}

func NewOrderClassifier(params *Params) *OrderClassifier {
	return &OrderClassifier{params: params}
}

// ClassifyBatch labels every entry in place.
//
//   - SPOOF: already flagged by the tracker; never relabeled.
//   - SWEEP: impact at or above threshold with rapid substantial
//     consumption.
//   - DEFENSIVE: persistent wall with low impact, never substantially
//     consumed.
//   - UNKNOWN: not enough history to say anything.
func (c *OrderClassifier) ClassifyBatch(entries []*models.TrackedEntry) {
	for _, e := range entries {
		c.classify(e)
	}
}

func (c *OrderClassifier) classify(e *models.TrackedEntry) {
	if e.IsSpoof {
		e.Classification = models.ClassSpoof
		return
	}

	filled := e.FilledRatio()

	if e.ImpactRatio >= c.params.ImpactRatioThreshold &&
		filled >= c.params.ConsumedRatio &&
		observedSpan(e) <= c.params.SweepWindow {
		if e.Side == models.SideBid {
			e.Classification = models.ClassSweepBuy
		} else {
			e.Classification = models.ClassSweepSell
		}
		return
	}

	if e.IsPersistent &&
		e.ImpactRatio < c.params.ImpactRatioThreshold &&
		filled < c.params.ConsumedRatio {
		if e.Side == models.SideBid {
			e.Classification = models.ClassDefensiveBuy
		} else {
			e.Classification = models.ClassDefensiveSell
		}
		return
	}

	e.Classification = models.ClassUnknown
}

// observedSpan is the entry's observed lifetime: creation to
// cancellation, or to the last snapshot it appeared in while active.
func observedSpan(e *models.TrackedEntry) time.Duration {
	if e.CanceledAt != nil {
		return e.CanceledAt.Sub(e.CreatedAt)
	}
	return e.LastSeenAt.Sub(e.CreatedAt)
}
