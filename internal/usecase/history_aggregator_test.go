package usecase

import (
	"testing"
	"time"

	"DepthWatch/internal/domain/models"
	"DepthWatch/pkg/logger"
)

func testLogger() *logger.Logger {
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		panic(err)
	}
	return l
}

func historyRecord(symbol string, ts time.Time, entries ...models.EntrySnapshot) *models.DetectionSnapshot {
	return &models.DetectionSnapshot{
		SchemaVersion: models.DetectionSchemaVersion,
		Symbol:        symbol,
		Timestamp:     ts,
		Entries:       entries,
	}
}

func snapAt(side models.Side, price, notional float64) models.EntrySnapshot {
	return models.EntrySnapshot{
		Side:     side,
		Price:    price,
		Qty:      notional / price,
		Notional: notional,
	}
}

func TestHistoryRollupByPriceLevel(t *testing.T) {
	h := NewHistoryAggregator(nil, testLogger())
	now := time.Now()

	// The same bid level appears in three records with a growing size.
	records := []*models.DetectionSnapshot{
		historyRecord("BTCUSDT", now.Add(-3*time.Hour), snapAt(models.SideBid, 50_000, 2e8)),
		historyRecord("BTCUSDT", now.Add(-2*time.Hour), snapAt(models.SideBid, 50_000, 3e8)),
		historyRecord("BTCUSDT", now.Add(-time.Minute), snapAt(models.SideBid, 50_000, 2.5e8)),
	}
	agg := h.AggregateOrders(records, "BTCUSDT", 0, now)

	if len(agg.Orders) != 1 {
		t.Fatalf("expected one rolled-up level, got %d", len(agg.Orders))
	}
	o := agg.Orders[0]
	if o.MaxNotional != 3e8 {
		t.Fatalf("expected max notional kept, got %v", o.MaxNotional)
	}
	if o.Appearances != 3 {
		t.Fatalf("expected 3 appearances, got %d", o.Appearances)
	}
	if !o.FirstSeen.Equal(now.Add(-3 * time.Hour)) {
		t.Fatalf("wrong firstSeen %v", o.FirstSeen)
	}
	if !o.LastSeen.Equal(now.Add(-time.Minute)) {
		t.Fatalf("wrong lastSeen %v", o.LastSeen)
	}
	if o.IsNew {
		t.Fatalf("level first seen 3h ago must not be new")
	}
	if !o.IsActive {
		t.Fatalf("level seen a minute ago must be active")
	}
}

func TestHistoryMinNotionalFilter(t *testing.T) {
	h := NewHistoryAggregator(nil, testLogger())
	now := time.Now()

	records := []*models.DetectionSnapshot{
		historyRecord("BTCUSDT", now,
			snapAt(models.SideBid, 50_000, 5e8),
			snapAt(models.SideAsk, 50_100, 1e7)),
	}
	agg := h.AggregateOrders(records, "BTCUSDT", 1e8, now)

	if len(agg.Orders) != 1 {
		t.Fatalf("expected small order filtered out, got %d orders", len(agg.Orders))
	}
	if agg.Orders[0].Side != models.SideBid {
		t.Fatalf("wrong surviving order: %+v", agg.Orders[0])
	}
}

func TestHistorySortedByMaxNotionalDesc(t *testing.T) {
	h := NewHistoryAggregator(nil, testLogger())
	now := time.Now()

	records := []*models.DetectionSnapshot{
		historyRecord("BTCUSDT", now,
			snapAt(models.SideBid, 50_000, 1e8),
			snapAt(models.SideAsk, 50_100, 4e8),
			snapAt(models.SideBid, 49_900, 2e8)),
	}
	agg := h.AggregateOrders(records, "BTCUSDT", 0, now)

	for i := 1; i < len(agg.Orders); i++ {
		if agg.Orders[i].MaxNotional > agg.Orders[i-1].MaxNotional {
			t.Fatalf("orders not sorted by max notional desc: %+v", agg.Orders)
		}
	}
}

func TestHistoryStats(t *testing.T) {
	h := NewHistoryAggregator(nil, testLogger())
	now := time.Now()

	records := []*models.DetectionSnapshot{
		historyRecord("BTCUSDT", now.Add(-30*time.Minute),
			snapAt(models.SideBid, 50_000, 3e8),
			snapAt(models.SideAsk, 50_100, 1e8)),
	}
	agg := h.AggregateOrders(records, "BTCUSDT", 0, now)

	s := agg.Stats
	if s.TotalOrders != 2 || s.BuyOrders != 1 || s.SellOrders != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.TotalValue != 4e8 || s.BuyValue != 3e8 || s.SellValue != 1e8 {
		t.Fatalf("unexpected values %+v", s)
	}
	if s.BuyValueRatio != 75 {
		t.Fatalf("expected buy value ratio 75, got %v", s.BuyValueRatio)
	}
	if s.NewOrders != 2 {
		t.Fatalf("levels first seen 30m ago are new, got %d", s.NewOrders)
	}
	if s.ActiveOrders != 0 {
		t.Fatalf("levels last seen 30m ago are not active, got %d", s.ActiveOrders)
	}
}

func TestHistorySkipsForeignSymbols(t *testing.T) {
	h := NewHistoryAggregator(nil, testLogger())
	now := time.Now()

	records := []*models.DetectionSnapshot{
		historyRecord("ETHUSDT", now, snapAt(models.SideBid, 3_000, 5e8)),
		nil,
	}
	agg := h.AggregateOrders(records, "BTCUSDT", 0, now)
	if len(agg.Orders) != 0 {
		t.Fatalf("records for other symbols must be ignored: %+v", agg.Orders)
	}
}
