package middleware

import (
	"testing"
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
)

type recordingMetrics struct {
	errors map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordSnapshot(string)            {}
func (m *recordingMetrics) RecordError(kind string)          { m.errors[kind]++ }
func (m *recordingMetrics) RecordMidPrice(string, float64)   {}
func (m *recordingMetrics) RecordTrackedEntries(string, int) {}
func (m *recordingMetrics) RecordVerdict(string, string)     {}
func (m *recordingMetrics) RecordLatency(string, float64)    {}

func depthEvent(symbol string) drepo.DepthEvent {
	return drepo.DepthEvent{Depth: &models.DepthSnapshot{
		Symbol:    symbol,
		Bids:      []models.BookLevel{{Side: models.SideBid, Price: 100, Qty: 1}},
		Asks:      []models.BookLevel{{Side: models.SideAsk, Price: 101, Qty: 1}},
		Timestamp: time.Now(),
	}}
}

func tradeEvent(symbol string, price, qty float64) drepo.DepthEvent {
	return drepo.DepthEvent{Trade: &models.TradePrint{
		Symbol: symbol, Side: models.SideBid, Price: price, Qty: qty, Timestamp: time.Now(),
	}}
}

func TestPipelineRejectsMalformed(t *testing.T) {
	m := newRecordingMetrics()
	p := NewDepthPipeline(m)

	if p.Admit(tradeEvent("", 100, 1)) {
		t.Fatalf("trade without symbol must be rejected")
	}
	if p.Admit(tradeEvent("BTCUSDT", 0, 1)) {
		t.Fatalf("trade with zero price must be rejected")
	}
	if p.Admit(tradeEvent("BTCUSDT", 100, -1)) {
		t.Fatalf("trade with negative qty must be rejected")
	}
	if m.errors["pipeline_invalid_trade"] != 3 {
		t.Fatalf("expected 3 invalid-trade errors, got %d", m.errors["pipeline_invalid_trade"])
	}

	if p.Admit(drepo.DepthEvent{Depth: &models.DepthSnapshot{Symbol: ""}}) {
		t.Fatalf("depth without symbol must be rejected")
	}
	if p.Admit(drepo.DepthEvent{Depth: &models.DepthSnapshot{Symbol: "BTCUSDT"}}) {
		t.Fatalf("depth with no levels must be rejected")
	}
	if m.errors["pipeline_invalid_depth"] != 2 {
		t.Fatalf("expected 2 invalid-depth errors, got %d", m.errors["pipeline_invalid_depth"])
	}

	if p.Admit(drepo.DepthEvent{}) {
		t.Fatalf("empty event must be rejected")
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	m := newRecordingMetrics()
	p := NewDepthPipeline(m, WithMinSnapshotInterval(time.Hour))

	if !p.Admit(depthEvent("BTCUSDT")) {
		t.Fatalf("first snapshot must be admitted")
	}
	if p.Admit(depthEvent("BTCUSDT")) {
		t.Fatalf("second snapshot inside the interval must be throttled")
	}
	// Another symbol has its own window.
	if !p.Admit(depthEvent("ETHUSDT")) {
		t.Fatalf("throttle must be per symbol")
	}
	if m.errors["pipeline_throttle_BTCUSDT"] != 1 {
		t.Fatalf("expected throttle metric for BTCUSDT, got %v", m.errors)
	}
}

func TestPipelineAdmitsAfterInterval(t *testing.T) {
	p := NewDepthPipeline(newRecordingMetrics(), WithMinSnapshotInterval(5*time.Millisecond))

	if !p.Admit(depthEvent("BTCUSDT")) {
		t.Fatalf("first snapshot must be admitted")
	}
	time.Sleep(10 * time.Millisecond)
	if !p.Admit(depthEvent("BTCUSDT")) {
		t.Fatalf("snapshot after the interval must be admitted")
	}
}

func TestPipelineTradesUnthrottled(t *testing.T) {
	p := NewDepthPipeline(newRecordingMetrics(), WithMinSnapshotInterval(time.Hour))

	for i := 0; i < 5; i++ {
		if !p.Admit(tradeEvent("BTCUSDT", 100, 1)) {
			t.Fatalf("trade %d must pass unthrottled", i)
		}
	}
}
