package middleware

import (
	"sync"
	"time"

	domrepo "DepthWatch/internal/domain/repository"
)

// DepthPipeline sits between the feed and the monitors. It rejects
// malformed events and throttles depth snapshots per symbol so a bursty
// feed cannot flood the monitor queues. Trade prints pass unthrottled;
// dropping them would under-count consumption.
type DepthPipeline struct {
	metrics     domrepo.Metrics
	minInterval time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted snapshot
}

type PipelineOption func(*DepthPipeline)

// WithMinSnapshotInterval sets the per-symbol minimum spacing between
// accepted depth snapshots.
func WithMinSnapshotInterval(d time.Duration) PipelineOption {
	return func(p *DepthPipeline) {
		if d > 0 {
			p.minInterval = d
		}
	}
}

func NewDepthPipeline(metrics domrepo.Metrics, opts ...PipelineOption) *DepthPipeline {
	p := &DepthPipeline{
		metrics:     metrics,
		minInterval: 250 * time.Millisecond, // default throttle per symbol
		lastSeen:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Admit reports whether the event should be dispatched.
func (p *DepthPipeline) Admit(ev domrepo.DepthEvent) bool {
	switch {
	case ev.Trade != nil:
		if ev.Trade.Symbol == "" || ev.Trade.Price <= 0 || ev.Trade.Qty <= 0 {
			p.metrics.RecordError("pipeline_invalid_trade")
			return false
		}
		return true

	case ev.Depth != nil:
		d := ev.Depth
		if d.Symbol == "" || (len(d.Bids) == 0 && len(d.Asks) == 0) {
			p.metrics.RecordError("pipeline_invalid_depth")
			return false
		}
		return p.admitSnapshot(d.Symbol)

	default:
		p.metrics.RecordError("pipeline_empty_event")
		return false
	}
}

func (p *DepthPipeline) admitSnapshot(symbol string) bool {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < p.minInterval {
		p.metrics.RecordError("pipeline_throttle_" + symbol)
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
