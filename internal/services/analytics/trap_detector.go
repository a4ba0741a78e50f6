package analytics

import (
	"math"
	"time"

	"DepthWatch/internal/domain/models"
)

// TrapParams are the trap-detector tunables. Thresholds are operating
// constants carried from production tuning.
type TrapParams struct {
	PersistenceThreshold time.Duration // entries alive at least this long count as persistent
	FlashThreshold       time.Duration // canceled entries under this lifespan count as flash
	FilledRatioThreshold float64
	CancelRatioThreshold float64
	MinConfidence        float64
}

func DefaultTrapParams() TrapParams {
	return TrapParams{
		PersistenceThreshold: 10 * time.Second,
		FlashThreshold:       3 * time.Second,
		FilledRatioThreshold: 0.30,
		CancelRatioThreshold: 0.80,
		MinConfidence:        0.60,
	}
}

// TrapInput is everything one detection cycle hands the detector.
type TrapInput struct {
	Entries      []*models.TrackedEntry
	CVDChange    float64
	OIChange     float64
	PriceChange  float64
	PriceHistory []float64
	CVDSeries    []float64
	OISeries     []float64
	Now          time.Time
}

type persistenceStats struct {
	persistentCount int
	flashCount      int
	avgDuration     time.Duration
	flashRatio      float64
}

type executionStats struct {
	filledCount    int
	canceledCount  int
	avgFilledRatio float64
	avgCancelRatio float64
	cvdAligned     bool
	oiAligned      bool
	priceAligned   bool
}

type temporalStats struct {
	synchronized  bool
	spikeDetected bool
	priceTrend    int
	cvdTrend      int
	oiTrend       int
}

// Extension is a detector outside the core pipeline. Its result is
// persisted under its name in the snapshot extension fields; the core
// verdict never depends on it.
type Extension interface {
	Name() string
	Evaluate(in TrapInput) any
}

// TrapDetector validates whether the tracked walls look like orders
// placed to mislead: flashed and pulled, barely filled, with flow and
// price refusing to follow the implied direction. Three independent
// checks feed a weighted composite score per side.
type TrapDetector struct {
	params TrapParams
}

func NewTrapDetector(params TrapParams) *TrapDetector {
	return &TrapDetector{params: params}
}

// Name identifies the detector in extension fields.
func (d *TrapDetector) Name() string { return "trap" }

// Detect runs the three checks and combines them. The dominant side by
// entry count decides which trap type is in play: misleading bid walls
// imply a bull trap, misleading ask walls a bear trap.
func (d *TrapDetector) Detect(in TrapInput) models.TrapResult {
	if len(in.Entries) == 0 {
		return models.TrapResult{Type: models.TrapNone}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	pers := d.checkPersistence(in.Entries, now)
	exec := d.checkExecution(in.Entries, in.CVDChange, in.OIChange, in.PriceChange)
	temp := d.checkTemporalSequence(in.PriceHistory, in.CVDSeries, in.OISeries)

	score := d.compositeScore(pers, exec, temp)

	var bidCount, askCount int
	for _, e := range in.Entries {
		if e.Side == models.SideBid {
			bidCount++
		} else {
			askCount++
		}
	}
	dominant := models.SideAsk
	if bidCount > askCount {
		dominant = models.SideBid
	}

	res := models.TrapResult{
		Type: models.TrapNone,
		Indicators: &models.TrapIndicators{
			AvgDuration:     pers.avgDuration,
			PersistentCount: pers.persistentCount,
			FlashCount:      pers.flashCount,
			FlashRatio:      pers.flashRatio,
			FilledRatio:     exec.avgFilledRatio,
			CancelRatio:     exec.avgCancelRatio,
			CVDAligned:      exec.cvdAligned,
			OIAligned:       exec.oiAligned,
			PriceAligned:    exec.priceAligned,
			Synchronized:    temp.synchronized,
			SpikeDetected:   temp.spikeDetected,
		},
	}

	if score >= d.params.MinConfidence {
		res.Detected = true
		res.Confidence = math.Round(score*100) / 100
		if dominant == models.SideBid {
			res.Type = models.TrapBull
		} else {
			res.Type = models.TrapBear
		}
	}
	return res
}

// checkPersistence splits entries into flash cancels and persistent
// walls.
func (d *TrapDetector) checkPersistence(entries []*models.TrackedEntry, now time.Time) persistenceStats {
	var s persistenceStats
	var total time.Duration
	for _, e := range entries {
		dur := e.Lifespan(now)
		if dur >= d.params.PersistenceThreshold {
			s.persistentCount++
		} else if e.CanceledAt != nil && dur <= d.params.FlashThreshold {
			s.flashCount++
		}
		total += dur
	}
	s.avgDuration = total / time.Duration(len(entries))
	s.flashRatio = float64(s.flashCount) / float64(len(entries))
	return s
}

// checkExecution measures how much of the walls actually traded and
// whether flow and price moved the way the dominant side implies.
func (d *TrapDetector) checkExecution(entries []*models.TrackedEntry, cvdChange, oiChange, priceChange float64) executionStats {
	var s executionStats
	var totalFilled, totalCanceled float64
	var bidCount, askCount int

	for _, e := range entries {
		if e.Side == models.SideBid {
			bidCount++
		} else {
			askCount++
		}
		if e.WasConsumed {
			s.filledCount++
			totalFilled += e.FilledRatio()
		}
		if e.CanceledAt != nil {
			s.canceledCount++
			totalCanceled += 1 - e.FilledRatio()
		}
	}
	if s.filledCount > 0 {
		s.avgFilledRatio = totalFilled / float64(s.filledCount)
	}
	if s.canceledCount > 0 {
		s.avgCancelRatio = totalCanceled / float64(s.canceledCount)
	}

	s.cvdAligned = (bidCount > 0 && cvdChange > 0) || (askCount > 0 && cvdChange < 0)
	s.oiAligned = oiChange != 0
	s.priceAligned = (bidCount > 0 && priceChange > 0) || (askCount > 0 && priceChange < 0)
	return s
}

// checkTemporalSequence compares price, CVD and OI trends for
// synchronization and looks for a spike-then-reversal.
func (d *TrapDetector) checkTemporalSequence(priceHistory, cvdSeries, oiSeries []float64) temporalStats {
	var s temporalStats
	if len(priceHistory) < 2 {
		return s
	}

	s.priceTrend = trend(priceHistory[0], priceHistory[len(priceHistory)-1])
	if len(cvdSeries) >= 2 {
		s.cvdTrend = trend(cvdSeries[0], cvdSeries[len(cvdSeries)-1])
	}
	if len(oiSeries) >= 2 {
		s.oiTrend = trend(oiSeries[0], oiSeries[len(oiSeries)-1])
	}

	s.synchronized = s.priceTrend == s.cvdTrend && s.priceTrend != 0

	if len(priceHistory) >= 3 {
		first := priceHistory[0]
		mid := priceHistory[len(priceHistory)/2]
		last := priceHistory[len(priceHistory)-1]
		if first > 0 {
			volatility := math.Abs(mid-first) / first
			reversal := (mid > first && last < mid) || (mid < first && last > mid)
			s.spikeDetected = volatility > 0.01 && reversal
		}
	}
	return s
}

// compositeScore weighs the individual signals. Weights sum to 1.0.
func (d *TrapDetector) compositeScore(pers persistenceStats, exec executionStats, temp temporalStats) float64 {
	score := 0.0
	if pers.flashCount > 0 && pers.flashRatio > 0.5 {
		score += 0.25
	}
	if exec.avgCancelRatio > d.params.CancelRatioThreshold {
		score += 0.30
	}
	if exec.avgFilledRatio < d.params.FilledRatioThreshold {
		score += 0.15
	}
	if !exec.cvdAligned {
		score += 0.15
	}
	if !exec.priceAligned {
		score += 0.10
	}
	if temp.spikeDetected {
		score += 0.05
	}
	return score
}

func trend(old, new float64) int {
	switch {
	case new > old:
		return 1
	case new < old:
		return -1
	default:
		return 0
	}
}
