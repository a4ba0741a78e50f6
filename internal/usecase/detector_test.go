package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/internal/middleware"
	"DepthWatch/internal/services/analytics"
)

type fakeStream struct {
	mu           sync.Mutex
	connected    bool
	subscribed   []string
	unsubscribed []string
	subscribeErr error
	events       chan drepo.DepthEvent
	errs         chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan drepo.DepthEvent, 16),
		errs:   make(chan error, 1),
	}
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeStream) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, symbols...)
	return nil
}

func (f *fakeStream) Unsubscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbols...)
	return nil
}

func (f *fakeStream) Read(ctx context.Context) (<-chan drepo.DepthEvent, <-chan error) {
	return f.events, f.errs
}

func (f *fakeStream) Reconnect(ctx context.Context) error { return nil }
func (f *fakeStream) Close() error                        { return nil }

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

func (f *fakeStream) unsubscribedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribed...)
}

type fakeMarket struct{}

func (fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]drepo.Kline, error) {
	return []drepo.Kline{{OpenTime: time.Now(), Open: 100, Close: 101, Volume: 10}}, nil
}

func (fakeMarket) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	return 1000, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*models.DetectionSnapshot
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }

func (f *fakeStore) Save(ctx context.Context, snap *models.DetectionSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeStore) QueryRange(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DetectionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.DetectionSnapshot(nil), f.saved...), nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                     { return nil }

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeMetrics struct{}

func (fakeMetrics) RecordSnapshot(string)            {}
func (fakeMetrics) RecordError(string)               {}
func (fakeMetrics) RecordMidPrice(string, float64)   {}
func (fakeMetrics) RecordTrackedEntries(string, int) {}
func (fakeMetrics) RecordVerdict(string, string)     {}
func (fakeMetrics) RecordLatency(string, float64)    {}

func newTestDetector(t *testing.T, stream drepo.DepthStream, store drepo.DetectionStore) *Detector {
	t.Helper()
	params := *testParams()
	return NewDetector(
		params,
		stream,
		fakeMarket{},
		store,
		nil, // no publisher
		nil, // no config store
		middleware.NewDepthPipeline(fakeMetrics{}),
		analytics.NewTrapDetector(analytics.DefaultTrapParams()),
		fakeMetrics{},
		testLogger(),
	)
}

func TestDetectorStartMonitoringIdempotent(t *testing.T) {
	stream := newFakeStream()
	d := newTestDetector(t, stream, &fakeStore{})
	defer d.StopAll()
	ctx := context.Background()

	if err := d.StartMonitoring(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.StartMonitoring(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if got := d.MonitoredSymbols(); len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("expected single monitored symbol, got %v", got)
	}
	if stream.subscribeCount() != 1 {
		t.Fatalf("duplicate start must not resubscribe, got %d", stream.subscribeCount())
	}
}

func TestDetectorStopMonitoringUnknown(t *testing.T) {
	d := newTestDetector(t, newFakeStream(), &fakeStore{})
	defer d.StopAll()

	err := d.StopMonitoring("DOGEUSDT")
	if !errors.Is(err, ErrNotMonitored) {
		t.Fatalf("expected ErrNotMonitored, got %v", err)
	}
}

func TestDetectorDetectUnmonitored(t *testing.T) {
	d := newTestDetector(t, newFakeStream(), &fakeStore{})
	defer d.StopAll()

	_, err := d.Detect(context.Background(), "DOGEUSDT", false)
	if !errors.Is(err, ErrNotMonitored) {
		t.Fatalf("expected ErrNotMonitored, got %v", err)
	}
}

func TestDetectorSubscribeFailureRollsBack(t *testing.T) {
	stream := newFakeStream()
	stream.subscribeErr = errors.New("boom")
	d := newTestDetector(t, stream, &fakeStore{})
	defer d.StopAll()

	if err := d.StartMonitoring(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected subscribe failure to propagate")
	}
	if got := d.MonitoredSymbols(); len(got) != 0 {
		t.Fatalf("failed start must not leave a monitor behind: %v", got)
	}
}

func TestDetectorDetectPersists(t *testing.T) {
	stream := newFakeStream()
	store := &fakeStore{}
	d := newTestDetector(t, stream, store)
	defer d.StopAll()
	ctx := context.Background()

	if err := d.StartMonitoring(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := d.Detect(ctx, "BTCUSDT", true)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if snap.Symbol != "BTCUSDT" || snap.SchemaVersion != models.DetectionSchemaVersion {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}
	if snap.Result.Verdict != models.VerdictUnknown {
		t.Fatalf("no entries should verdict UNKNOWN, got %s", snap.Result.Verdict)
	}
	if snap.Trap == nil || snap.Trap.Type != models.TrapNone {
		t.Fatalf("empty book should report no trap: %+v", snap.Trap)
	}
	if store.savedCount() != 1 {
		t.Fatalf("expected one persisted record, got %d", store.savedCount())
	}

	if _, err := d.Detect(ctx, "BTCUSDT", false); err != nil {
		t.Fatalf("detect without persist: %v", err)
	}
	if store.savedCount() != 1 {
		t.Fatalf("persist=false must not write, got %d records", store.savedCount())
	}
}

// blockingStore parks Save until its context is canceled, signalling
// entry so tests can line up concurrent requests.
type blockingStore struct {
	fakeStore
	entered chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, snap *models.DetectionSnapshot) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestDetectorQueuedDetectUnblocksOnStop(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}, 1)}
	d := newTestDetector(t, newFakeStream(), store)
	ctx := context.Background()

	if err := d.StartMonitoring(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// First request occupies the monitor loop inside Save.
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		d.Detect(ctx, "BTCUSDT", true)
	}()
	<-store.entered

	// Second request sits on the queue behind it.
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		d.Detect(ctx, "BTCUSDT", false)
	}()
	time.Sleep(50 * time.Millisecond)

	d.StopAll()

	for name, ch := range map[string]chan struct{}{"first": firstDone, "second": secondDone} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s detect still blocked after StopAll", name)
		}
	}
}

func TestDetectorStopMonitoringUnsubscribes(t *testing.T) {
	stream := newFakeStream()
	d := newTestDetector(t, stream, &fakeStore{})
	defer d.StopAll()
	ctx := context.Background()

	if err := d.StartMonitoring(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.StopMonitoring("BTCUSDT"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := stream.unsubscribedSymbols()
	if len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("expected feed unsubscribe for BTCUSDT, got %v", got)
	}
}

func TestMonitorSnapshotsParams(t *testing.T) {
	p := testParams()
	m := newMonitor("BTCUSDT", p, detectorDeps{
		logger:  testLogger(),
		metrics: fakeMetrics{},
		trap:    analytics.NewTrapDetector(analytics.DefaultTrapParams()),
		market:  fakeMarket{},
		store:   &fakeStore{},
	})

	p.NotionalThreshold = 42
	if m.params.NotionalThreshold == 42 {
		t.Fatalf("monitor must snapshot params at creation")
	}
}

type fakeExtension struct{}

func (fakeExtension) Name() string                        { return "echo" }
func (fakeExtension) Evaluate(in analytics.TrapInput) any { return len(in.Entries) }

func TestDetectorExtensionResults(t *testing.T) {
	d := newTestDetector(t, newFakeStream(), &fakeStore{})
	defer d.StopAll()
	ctx := context.Background()

	d.RegisterExtension(fakeExtension{})
	if err := d.StartMonitoring(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := d.Detect(ctx, "BTCUSDT", false)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got, ok := snap.Extensions["echo"]; !ok || got != 0 {
		t.Fatalf("expected extension result under its name, got %v", snap.Extensions)
	}
}

func TestDetectorStatusAndStop(t *testing.T) {
	stream := newFakeStream()
	d := newTestDetector(t, stream, &fakeStore{})
	defer d.StopAll()
	ctx := context.Background()

	for _, s := range []string{"ETHUSDT", "BTCUSDT"} {
		if err := d.StartMonitoring(ctx, s); err != nil {
			t.Fatalf("start %s: %v", s, err)
		}
	}

	statuses := d.MonitoringStatus(ctx)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Symbol != "BTCUSDT" || statuses[1].Symbol != "ETHUSDT" {
		t.Fatalf("statuses not sorted by symbol: %+v", statuses)
	}
	if !statuses[0].IsMonitoring {
		t.Fatalf("monitored symbol should report IsMonitoring")
	}

	if err := d.StopMonitoring("BTCUSDT"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := d.MonitoredSymbols(); len(got) != 1 || got[0] != "ETHUSDT" {
		t.Fatalf("expected only ETHUSDT left, got %v", got)
	}
}
