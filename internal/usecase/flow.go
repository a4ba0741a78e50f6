package usecase

import (
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
)

type cvdSample struct {
	ts    time.Time
	delta float64
}

// FlowState holds the per-symbol rolling flow metrics: a bounded CVD
// sample window, the latest/previous OI reading, and bounded price,
// CVD and OI histories for temporal checks. Owned by the symbol's
// monitor goroutine; no locking.
type FlowState struct {
	params *Params

	cvdSeries []cvdSample
	cvdCum    float64

	oi     float64
	prevOI float64
	hasOI  bool

	priceHistory []float64
	cvdHistory   []float64
	oiHistory    []float64
}

func NewFlowState(params *Params) *FlowState {
	return &FlowState{params: params}
}

// ApplyKline folds one candle into the CVD window. The delta sign is
// approximated from the candle direction (close above open counts the
// volume as buying); a true trade-tape sign would replace this if a
// trade feed were wired in.
func (f *FlowState) ApplyKline(k drepo.Kline, now time.Time) {
	delta := k.Volume
	if k.Close <= k.Open {
		delta = -k.Volume
	}
	f.cvdSeries = append(f.cvdSeries, cvdSample{ts: now, delta: delta})

	// Recompute the cumulative value from the retained window instead
	// of adjusting incrementally, so expiry never drifts the sum.
	cutoff := now.Add(-f.params.CVDWindow)
	kept := f.cvdSeries[:0]
	sum := 0.0
	for _, s := range f.cvdSeries {
		if s.ts.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
		sum += s.delta
	}
	f.cvdSeries = kept
	f.cvdCum = sum

	f.cvdHistory = appendBounded(f.cvdHistory, f.cvdCum, f.params.PriceHistorySize)
}

// ApplyOI records a fresh open-interest reading.
func (f *FlowState) ApplyOI(oi float64) {
	if f.hasOI {
		f.prevOI = f.oi
	}
	f.oi = oi
	f.hasOI = true
	f.oiHistory = appendBounded(f.oiHistory, oi, f.params.PriceHistorySize)
}

// ApplyPrice records a mid-price observation.
func (f *FlowState) ApplyPrice(price float64) {
	if price <= 0 {
		return
	}
	f.priceHistory = appendBounded(f.priceHistory, price, f.params.PriceHistorySize)
}

func (f *FlowState) CVDCum() float64        { return f.cvdCum }
func (f *FlowState) OI() (float64, float64) { return f.oi, f.prevOI }

func (f *FlowState) PriceHistory() []float64 { return f.priceHistory }
func (f *FlowState) CVDHistory() []float64   { return f.cvdHistory }
func (f *FlowState) OIHistory() []float64    { return f.oiHistory }

// PriceChange is the relative move across the retained price history.
func (f *FlowState) PriceChange() float64 {
	if len(f.priceHistory) < 2 || f.priceHistory[0] == 0 {
		return 0
	}
	first := f.priceHistory[0]
	last := f.priceHistory[len(f.priceHistory)-1]
	return (last - first) / first
}

// CVDChange is the delta across the retained CVD history.
func (f *FlowState) CVDChange() float64 {
	if len(f.cvdHistory) < 2 {
		return 0
	}
	return f.cvdHistory[len(f.cvdHistory)-1] - f.cvdHistory[0]
}

// OIChange is the delta across the retained OI history.
func (f *FlowState) OIChange() float64 {
	if len(f.oiHistory) < 2 {
		return 0
	}
	return f.oiHistory[len(f.oiHistory)-1] - f.oiHistory[0]
}

// Status is the externally visible flow summary.
func (f *FlowState) Status() models.FlowStatus {
	return models.FlowStatus{
		CVDCum:  f.cvdCum,
		OI:      f.oi,
		PrevOI:  f.prevOI,
		Samples: len(f.cvdSeries),
	}
}

func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if max > 0 && len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
