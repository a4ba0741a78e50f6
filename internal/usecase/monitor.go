package usecase

import (
	"context"
	"fmt"
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/internal/services/analytics"
	"DepthWatch/pkg/logger"
)

// monitorEvent is one item on a monitor's internal queue. Exactly one
// field is set.
type monitorEvent struct {
	depth     *models.DepthSnapshot
	trade     *models.TradePrint
	detectReq *detectRequest
	statusReq *statusRequest
}

type detectRequest struct {
	persist bool
	reply   chan detectReply
}

type detectReply struct {
	snap *models.DetectionSnapshot
	err  error
}

type statusRequest struct {
	reply chan models.MonitorStatus
}

// monitor owns all mutable state for one symbol: the tracked-entry
// set, flow state and price history. A single goroutine consumes feed
// events, timer ticks and on-demand requests from one queue, so every
// mutation is serialized without locks and snapshots apply in arrival
// order.
type monitor struct {
	symbol  string
	params  *Params
	logger  *logger.Logger
	metrics drepo.Metrics

	tracker    *OrderTracker
	classifier *OrderClassifier
	aggregator *SignalAggregator
	trap       *analytics.TrapDetector
	extensions []analytics.Extension

	market drepo.MarketData
	store  drepo.DetectionStore
	pub    drepo.DetectionPublisher

	events chan monitorEvent
	cancel context.CancelFunc
	done   chan struct{}
}

func newMonitor(symbol string, params *Params, deps detectorDeps) *monitor {
	// Snapshot the tunables: runtime overlays only affect monitors
	// started afterwards, so a running goroutine never sees them change.
	p := *params
	return &monitor{
		symbol:     symbol,
		params:     &p,
		logger:     deps.logger,
		metrics:    deps.metrics,
		tracker:    NewOrderTracker(&p),
		classifier: NewOrderClassifier(&p),
		aggregator: NewSignalAggregator(&p),
		trap:       deps.trap,
		extensions: deps.extensions,
		market:     deps.market,
		store:      deps.store,
		pub:        deps.pub,
		events:     make(chan monitorEvent, 256),
		done:       make(chan struct{}),
	}
}

func (m *monitor) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	go m.run(ctx)
}

// stop cancels the loop and waits for it to drain. After stop returns
// no further mutation happens.
func (m *monitor) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// offer enqueues a feed event without blocking the dispatch path.
// Dropped events are counted; the next snapshot supersedes them.
func (m *monitor) offer(ev monitorEvent) {
	select {
	case m.events <- ev:
	default:
		m.metrics.RecordError("monitor_queue_full")
	}
}

func (m *monitor) run(ctx context.Context) {
	defer close(m.done)

	flow := NewFlowState(m.params)
	flowTicker := time.NewTicker(m.params.FlowRefreshInterval)
	defer flowTicker.Stop()
	detectTicker := time.NewTicker(m.params.DetectInterval)
	defer detectTicker.Stop()

	// Near-immediate first runs so a fresh monitor has flow state and
	// a persisted baseline without waiting a full interval.
	first := time.NewTimer(2 * time.Second)
	defer first.Stop()

	for {
		select {
		case <-ctx.Done():
			m.drainRequests()
			return

		case <-first.C:
			m.refreshFlow(ctx, flow)
			m.runDetection(ctx, flow, true)

		case <-flowTicker.C:
			m.refreshFlow(ctx, flow)

		case <-detectTicker.C:
			m.runDetection(ctx, flow, true)

		case ev := <-m.events:
			switch {
			case ev.depth != nil:
				m.handleDepth(ev.depth, flow)
			case ev.trade != nil:
				m.tracker.MarkConsumed(m.symbol, ev.trade.Price, ev.trade.Qty, ev.trade.Side)
			case ev.detectReq != nil:
				snap, err := m.detect(ctx, flow, ev.detectReq.persist)
				ev.detectReq.reply <- detectReply{snap: snap, err: err}
			case ev.statusReq != nil:
				ev.statusReq.reply <- models.MonitorStatus{
					Symbol:       m.symbol,
					IsMonitoring: true,
					Flow:         flow.Status(),
					Tracker:      m.tracker.Stats(m.symbol),
				}
			}
		}
	}
}

// drainRequests fails any still-queued on-demand requests so callers
// never block on a monitor that is shutting down. Feed events are
// simply discarded.
func (m *monitor) drainRequests() {
	for {
		select {
		case ev := <-m.events:
			switch {
			case ev.detectReq != nil:
				ev.detectReq.reply <- detectReply{err: fmt.Errorf("%w: %s", ErrNotMonitored, m.symbol)}
			case ev.statusReq != nil:
				ev.statusReq.reply <- models.MonitorStatus{Symbol: m.symbol}
			}
		default:
			return
		}
	}
}

// handleDepth is the hot path: pure in-memory work, no I/O.
func (m *monitor) handleDepth(snap *models.DepthSnapshot, flow *FlowState) {
	start := time.Now()

	mid := snap.MidPrice()
	if mid <= 0 {
		m.metrics.RecordError("depth_no_mid")
		return
	}
	flow.ApplyPrice(mid)
	m.metrics.RecordMidPrice(m.symbol, mid)

	res, err := m.tracker.Update(m.symbol, snap.Levels(), mid, snap.Timestamp)
	if err != nil {
		// Contract violation from the feed adapter; the tracker kept
		// its last-good state.
		m.logger.Error("tracker update failed",
			logger.String("symbol", m.symbol), logger.Error(err))
		m.metrics.RecordError("tracker_update")
		return
	}

	m.applyImpactRatios(snap)
	m.classifier.ClassifyBatch(m.tracker.TrackedEntries(m.symbol))

	if len(res.NewEntries) > 0 || len(res.CanceledEntries) > 0 {
		m.logger.Debug("tracked set changed",
			logger.String("symbol", m.symbol),
			logger.Int("new", len(res.NewEntries)),
			logger.Int("canceled", len(res.CanceledEntries)),
			logger.Int("total", res.TotalTracked))
	}

	m.metrics.RecordSnapshot(m.symbol)
	m.metrics.RecordTrackedEntries(m.symbol, res.TotalTracked)
	m.metrics.RecordLatency("depth_update", time.Since(start).Seconds())
}

// applyImpactRatios recomputes each active entry's notional share of
// the top-N depth on its side.
func (m *monitor) applyImpactRatios(snap *models.DepthSnapshot) {
	topN := func(levels []models.BookLevel) float64 {
		sum := 0.0
		for i, lv := range levels {
			if i >= m.params.TopDepthLevels {
				break
			}
			sum += lv.Price * lv.Qty
		}
		return sum
	}
	bidDepth := topN(snap.Bids)
	askDepth := topN(snap.Asks)

	for _, e := range m.tracker.TrackedEntries(m.symbol) {
		depth := askDepth
		if e.Side == models.SideBid {
			depth = bidDepth
		}
		if depth > 0 {
			e.ImpactRatio = e.Notional / depth
		} else {
			e.ImpactRatio = 0
		}
	}
}

// refreshFlow pulls the latest kline and OI readings. Failures leave
// the previous flow state intact and are retried on the next tick.
func (m *monitor) refreshFlow(ctx context.Context, flow *FlowState) {
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	klines, err := m.market.Klines(rctx, m.symbol, "15m", 4)
	if err != nil {
		m.logger.Warn("kline refresh failed",
			logger.String("symbol", m.symbol), logger.Error(err))
		m.metrics.RecordError("flow_klines")
	} else if len(klines) > 0 {
		flow.ApplyKline(klines[len(klines)-1], time.Now())
	}

	oi, err := m.market.OpenInterest(rctx, m.symbol)
	if err != nil {
		m.logger.Warn("open interest refresh failed",
			logger.String("symbol", m.symbol), logger.Error(err))
		m.metrics.RecordError("flow_oi")
		return
	}
	flow.ApplyOI(oi)
}

// runDetection is the periodic detect-and-persist cycle. Errors are
// isolated to this symbol and cycle.
func (m *monitor) runDetection(ctx context.Context, flow *FlowState, persist bool) {
	if _, err := m.detect(ctx, flow, persist); err != nil {
		m.logger.Error("detection cycle failed",
			logger.String("symbol", m.symbol), logger.Error(err))
		m.metrics.RecordError("detect_cycle")
	}
}

// detect builds one point-in-time detection snapshot: classify,
// aggregate, run the trap validator, then persist and publish when
// asked. Persistence failures are logged and swallowed; the snapshot
// is still returned.
func (m *monitor) detect(ctx context.Context, flow *FlowState, persist bool) (*models.DetectionSnapshot, error) {
	start := time.Now()
	entries := m.tracker.TrackedEntries(m.symbol)
	m.classifier.ClassifyBatch(entries)

	oi, prevOI := flow.OI()
	result := m.aggregator.Aggregate(entries, flow.CVDCum(), oi, prevOI)

	in := analytics.TrapInput{
		Entries:      m.tracker.AllEntries(m.symbol),
		CVDChange:    flow.CVDChange(),
		OIChange:     flow.OIChange(),
		PriceChange:  flow.PriceChange(),
		PriceHistory: flow.PriceHistory(),
		CVDSeries:    flow.CVDHistory(),
		OISeries:     flow.OIHistory(),
		Now:          start,
	}
	trapRes := m.trap.Detect(in)

	snap := &models.DetectionSnapshot{
		SchemaVersion: models.DetectionSchemaVersion,
		Symbol:        m.symbol,
		Timestamp:     start,
		Result:        result,
		Entries:       make([]models.EntrySnapshot, 0, len(entries)),
		Trap:          &trapRes,
	}
	for _, e := range entries {
		snap.Entries = append(snap.Entries, models.SnapshotOf(e))
	}

	for _, ext := range m.extensions {
		if snap.Extensions == nil {
			snap.Extensions = make(map[string]any, len(m.extensions))
		}
		snap.Extensions[ext.Name()] = ext.Evaluate(in)
	}

	m.metrics.RecordVerdict(m.symbol, string(result.Verdict))

	if persist {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := m.store.Save(pctx, snap); err != nil {
			// Telemetry, not a ledger: losing one record is fine.
			m.logger.Error("detection persist failed",
				logger.String("symbol", m.symbol), logger.Error(err))
			m.metrics.RecordError("detect_persist")
		}
		if m.pub != nil {
			if err := m.pub.PublishDetection(pctx, snap); err != nil {
				m.logger.Warn("detection publish failed",
					logger.String("symbol", m.symbol), logger.Error(err))
				m.metrics.RecordError("detect_publish")
			}
		}
	}

	m.metrics.RecordLatency("detect", time.Since(start).Seconds())
	return snap, nil
}
