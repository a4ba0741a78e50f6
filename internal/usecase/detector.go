package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/internal/middleware"
	"DepthWatch/internal/services/analytics"
	"DepthWatch/pkg/logger"
)

// ErrNotMonitored is returned for operations on a symbol that has no
// running monitor.
var ErrNotMonitored = errors.New("detector: symbol is not monitored")

type detectorDeps struct {
	logger     *logger.Logger
	metrics    drepo.Metrics
	trap       *analytics.TrapDetector
	extensions []analytics.Extension
	market     drepo.MarketData
	store      drepo.DetectionStore
	pub        drepo.DetectionPublisher
}

// Detector is the orchestrator: it owns the feed connection, the
// per-symbol monitors and their lifecycle, and routes feed events and
// on-demand requests to the right monitor. A symbol is either
// unmonitored or owned by exactly one monitor goroutine.
type Detector struct {
	params   Params
	stream   drepo.DepthStream
	cfgStore drepo.ConfigStore
	pipeline *middleware.DepthPipeline
	deps     detectorDeps

	mu       sync.RWMutex
	monitors map[string]*monitor
	runCtx   context.Context
	cancel   context.CancelFunc
	started  bool
}

func NewDetector(
	params Params,
	stream drepo.DepthStream,
	market drepo.MarketData,
	store drepo.DetectionStore,
	pub drepo.DetectionPublisher,
	cfgStore drepo.ConfigStore,
	pipeline *middleware.DepthPipeline,
	trap *analytics.TrapDetector,
	metrics drepo.Metrics,
	l *logger.Logger,
) *Detector {
	return &Detector{
		params:   params,
		stream:   stream,
		cfgStore: cfgStore,
		pipeline: pipeline,
		deps: detectorDeps{
			logger:  l,
			metrics: metrics,
			trap:    trap,
			market:  market,
			store:   store,
			pub:     pub,
		},
		monitors: make(map[string]*monitor),
	}
}

// RegisterExtension attaches an out-of-pipeline detector. Its result is
// carried in the extension fields of every snapshot produced by monitors
// started after registration.
func (d *Detector) RegisterExtension(ext analytics.Extension) {
	if ext == nil {
		return
	}
	d.mu.Lock()
	d.deps.extensions = append(d.deps.extensions, ext)
	d.mu.Unlock()
}

// Start loads runtime overrides, connects the feed and begins
// monitoring the given symbols. It returns once the feed loop is
// running; the loop itself lives until ctx is canceled or StopAll.
func (d *Detector) Start(ctx context.Context, symbols []string) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.runCtx, d.cancel = context.WithCancel(ctx)
	d.started = true
	d.mu.Unlock()

	d.LoadConfig(ctx)

	if err := d.stream.Connect(ctx); err != nil {
		return fmt.Errorf("detector: feed connect: %w", err)
	}

	collector := NewDepthCollector(d.stream, d.pipeline, d.dispatch, d.deps.metrics, d.deps.logger)
	go collector.Run(d.runCtx)

	for _, symbol := range symbols {
		if err := d.StartMonitoring(ctx, symbol); err != nil {
			return err
		}
	}
	d.deps.logger.Info("detector started", logger.Int("symbols", len(symbols)))
	return nil
}

// LoadConfig overlays KV overrides from the config store onto the
// built-in defaults. A failed load is logged and leaves defaults in
// place; it never blocks startup. Monitors snapshot the parameters at
// creation, so overrides only reach monitors started afterwards.
func (d *Detector) LoadConfig(ctx context.Context) {
	if d.cfgStore == nil {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	kv, err := d.cfgStore.Load(lctx)
	if err != nil {
		d.deps.logger.Warn("config overlay load failed, using defaults", logger.Error(err))
		return
	}
	d.mu.Lock()
	d.params.Overlay(kv)
	d.mu.Unlock()
	d.deps.logger.Info("config overlay applied", logger.Int("keys", len(kv)))
}

// StartMonitoring spins up a monitor for symbol and subscribes the
// feed. Starting an already-monitored symbol is a no-op.
func (d *Detector) StartMonitoring(ctx context.Context, symbol string) error {
	if symbol == "" {
		return fmt.Errorf("detector: empty symbol")
	}

	d.mu.Lock()
	if _, ok := d.monitors[symbol]; ok {
		d.mu.Unlock()
		return nil
	}
	m := newMonitor(symbol, &d.params, d.deps)
	d.monitors[symbol] = m
	runCtx := d.runCtx
	d.mu.Unlock()

	if runCtx == nil {
		runCtx = context.Background()
	}
	m.start(runCtx)

	if err := d.stream.Subscribe(ctx, []string{symbol}); err != nil {
		m.stop()
		d.mu.Lock()
		delete(d.monitors, symbol)
		d.mu.Unlock()
		return fmt.Errorf("detector: subscribe %s: %w", symbol, err)
	}

	d.deps.logger.Info("monitoring started", logger.String("symbol", symbol))
	return nil
}

// StopMonitoring tears down the symbol's monitor. When it returns the
// monitor goroutine has exited and no further state mutation happens.
func (d *Detector) StopMonitoring(symbol string) error {
	d.mu.Lock()
	m, ok := d.monitors[symbol]
	if ok {
		delete(d.monitors, symbol)
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMonitored, symbol)
	}

	m.stop()
	if err := d.stream.Unsubscribe(context.Background(), []string{symbol}); err != nil {
		// The feed keeps sending; dispatch drops the frames.
		d.deps.logger.Warn("feed unsubscribe failed",
			logger.String("symbol", symbol), logger.Error(err))
	}
	d.deps.logger.Info("monitoring stopped", logger.String("symbol", symbol))
	return nil
}

// StopAll stops every monitor and the feed loop.
func (d *Detector) StopAll() {
	d.mu.Lock()
	monitors := make([]*monitor, 0, len(d.monitors))
	for _, m := range d.monitors {
		monitors = append(monitors, m)
	}
	d.monitors = make(map[string]*monitor)
	cancel := d.cancel
	d.started = false
	d.mu.Unlock()

	for _, m := range monitors {
		m.stop()
	}
	if cancel != nil {
		cancel()
	}
	if err := d.stream.Close(); err != nil {
		d.deps.logger.Warn("feed close failed", logger.Error(err))
	}
	d.deps.logger.Info("detector stopped", logger.Int("monitors", len(monitors)))
}

// Detect runs an on-demand detection cycle for symbol on its monitor
// goroutine, so it observes a consistent point-in-time state.
func (d *Detector) Detect(ctx context.Context, symbol string, persist bool) (*models.DetectionSnapshot, error) {
	d.mu.RLock()
	m, ok := d.monitors[symbol]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMonitored, symbol)
	}

	req := &detectRequest{persist: persist, reply: make(chan detectReply, 1)}
	select {
	case m.events <- monitorEvent{detectReq: req}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, fmt.Errorf("%w: %s", ErrNotMonitored, symbol)
	}

	select {
	case rep := <-req.reply:
		return rep.snap, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		// The loop may have replied just before exiting.
		select {
		case rep := <-req.reply:
			return rep.snap, rep.err
		default:
			return nil, fmt.Errorf("%w: %s", ErrNotMonitored, symbol)
		}
	}
}

// MonitoringStatus reports every monitored symbol's state. Each status
// is read on the owning goroutine for a consistent view.
func (d *Detector) MonitoringStatus(ctx context.Context) []models.MonitorStatus {
	d.mu.RLock()
	monitors := make([]*monitor, 0, len(d.monitors))
	for _, m := range d.monitors {
		monitors = append(monitors, m)
	}
	d.mu.RUnlock()

	out := make([]models.MonitorStatus, 0, len(monitors))
	for _, m := range monitors {
		req := &statusRequest{reply: make(chan models.MonitorStatus, 1)}
		select {
		case m.events <- monitorEvent{statusReq: req}:
		case <-ctx.Done():
			return out
		case <-m.done:
			continue
		}
		select {
		case st := <-req.reply:
			out = append(out, st)
		case <-ctx.Done():
			return out
		case <-m.done:
			select {
			case st := <-req.reply:
				out = append(out, st)
			default:
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// MonitoredSymbols lists currently monitored symbols, sorted.
func (d *Detector) MonitoredSymbols() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.monitors))
	for s := range d.monitors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// dispatch routes one feed event to the owning monitor. Events for
// unmonitored symbols are dropped.
func (d *Detector) dispatch(ev drepo.DepthEvent) {
	var symbol string
	switch {
	case ev.Depth != nil:
		symbol = ev.Depth.Symbol
	case ev.Trade != nil:
		symbol = ev.Trade.Symbol
	default:
		return
	}

	d.mu.RLock()
	m, ok := d.monitors[symbol]
	d.mu.RUnlock()
	if !ok {
		return
	}
	m.offer(monitorEvent{depth: ev.Depth, trade: ev.Trade})
}
