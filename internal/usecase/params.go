package usecase

import (
	"strconv"
	"time"
)

// Params are the runtime-tunable detection parameters. Zero-value is
// never used; construct with DefaultParams and overlay the KV store.
type Params struct {
	NotionalThreshold    float64       // quote units, default 100M
	PersistSnapshots     int           // snapshots until an entry is persistent
	SpoofWindow          time.Duration // lifespan below which a canceled entry is a spoof
	ImpactRatioThreshold float64
	CVDWindow            time.Duration
	PriceTolerance       float64 // relative tolerance for trade-print matching
	MaxTrackedEntries    int
	TopDepthLevels       int
	ScoreMargin          float64 // buy/sell score margin for a directional verdict
	ConsumedRatio        float64 // filled fraction treated as substantial consumption
	SweepWindow          time.Duration
	FlowRefreshInterval  time.Duration
	DetectInterval       time.Duration
	PriceHistorySize     int
}

// DefaultParams returns the built-in tunables. Values are deliberate
// operating constants; do not adjust without re-validating detections.
func DefaultParams() Params {
	return Params{
		NotionalThreshold:    1e8,
		PersistSnapshots:     3,
		SpoofWindow:          3 * time.Second,
		ImpactRatioThreshold: 0.25,
		CVDWindow:            4 * time.Hour,
		PriceTolerance:       0.0005,
		MaxTrackedEntries:    100,
		TopDepthLevels:       50,
		ScoreMargin:          2.0,
		ConsumedRatio:        0.30,
		SweepWindow:          60 * time.Second,
		FlowRefreshInterval:  15 * time.Second,
		DetectInterval:       time.Hour,
		PriceHistorySize:     120,
	}
}

// Overlay applies string-typed KV overrides onto p. Unknown keys and
// unparseable values are ignored so a partially written store cannot
// break detection.
func (p *Params) Overlay(kv map[string]string) {
	f := func(key string, dst *float64) {
		if s, ok := kv[key]; ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				*dst = v
			}
		}
	}
	i := func(key string, dst *int) {
		if s, ok := kv[key]; ok {
			if v, err := strconv.Atoi(s); err == nil {
				*dst = v
			}
		}
	}
	d := func(key string, dst *time.Duration) {
		if s, ok := kv[key]; ok {
			if v, err := time.ParseDuration(s); err == nil {
				*dst = v
			}
		}
	}

	f("notional_threshold", &p.NotionalThreshold)
	i("persist_snapshots", &p.PersistSnapshots)
	d("spoof_window", &p.SpoofWindow)
	f("impact_ratio_threshold", &p.ImpactRatioThreshold)
	d("cvd_window", &p.CVDWindow)
	f("price_tolerance", &p.PriceTolerance)
	i("max_tracked_entries", &p.MaxTrackedEntries)
	i("top_depth_levels", &p.TopDepthLevels)
	f("score_margin", &p.ScoreMargin)
	f("consumed_ratio", &p.ConsumedRatio)
	d("sweep_window", &p.SweepWindow)
	d("flow_refresh_interval", &p.FlowRefreshInterval)
	d("detect_interval", &p.DetectInterval)
	i("price_history_size", &p.PriceHistorySize)
}
