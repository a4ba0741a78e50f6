package usecase

import (
	"errors"
	"testing"
	"time"

	"DepthWatch/internal/domain/models"
)

func testParams() *Params {
	p := DefaultParams()
	p.NotionalThreshold = 1_000_000
	p.PersistSnapshots = 3
	p.SpoofWindow = 3 * time.Second
	p.MaxTrackedEntries = 5
	return &p
}

func bidLevel(price, qty float64) models.BookLevel {
	return models.BookLevel{Side: models.SideBid, Price: price, Qty: qty}
}

func askLevel(price, qty float64) models.BookLevel {
	return models.BookLevel{Side: models.SideAsk, Price: price, Qty: qty}
}

func TestTrackerCreatesEntryAboveThreshold(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	res, err := tr.Update("BTCUSDT", []models.BookLevel{
		bidLevel(50_000, 100), // 5M notional
		bidLevel(50_001, 1),   // 50k, below threshold
	}, 50_000, ts)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.NewEntries) != 1 {
		t.Fatalf("expected 1 new entry, got %d", len(res.NewEntries))
	}
	e := res.NewEntries[0]
	if e.Side != models.SideBid || e.Price != 50_000 || e.SeenCount != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Notional != 100*50_000 {
		t.Fatalf("unexpected notional %v", e.Notional)
	}
}

func TestTrackerPersistenceAfterRepeatedSnapshots(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()
	levels := []models.BookLevel{askLevel(50_100, 100)}

	for i := 0; i < 3; i++ {
		if _, err := tr.Update("BTCUSDT", levels, 50_000, ts.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	entries := tr.TrackedEntries("BTCUSDT")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].IsPersistent {
		t.Fatalf("entry should be persistent after 3 snapshots")
	}
	if entries[0].SeenCount != 3 {
		t.Fatalf("expected seenCount 3, got %d", entries[0].SeenCount)
	}
}

func TestTrackerSpoofOnFastCancel(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	if _, err := tr.Update("BTCUSDT", []models.BookLevel{bidLevel(49_900, 100)}, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Wall vanishes 1s later, under the spoof window.
	res, err := tr.Update("BTCUSDT", nil, 50_000, ts.Add(time.Second))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.CanceledEntries) != 1 {
		t.Fatalf("expected 1 canceled entry, got %d", len(res.CanceledEntries))
	}
	e := res.CanceledEntries[0]
	if !e.IsSpoof {
		t.Fatalf("fast cancel should be flagged spoof")
	}
	if e.Classification != models.ClassSpoof {
		t.Fatalf("expected SPOOF classification, got %s", e.Classification)
	}
	if e.Active() {
		t.Fatalf("canceled entry should not be active")
	}
}

func TestTrackerNoSpoofWhenPersistent(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()
	levels := []models.BookLevel{bidLevel(49_900, 100)}

	// Three fast snapshots make it persistent inside the spoof window.
	for i := 0; i < 3; i++ {
		if _, err := tr.Update("BTCUSDT", levels, 50_000, ts.Add(time.Duration(i)*500*time.Millisecond)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	res, err := tr.Update("BTCUSDT", nil, 50_000, ts.Add(2*time.Second))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.CanceledEntries) != 1 {
		t.Fatalf("expected 1 canceled entry")
	}
	if res.CanceledEntries[0].IsSpoof {
		t.Fatalf("persistent wall must not be flagged spoof even on fast cancel")
	}
}

func TestTrackerRecreateAfterCancelKeepsOneActivePerKey(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()
	levels := []models.BookLevel{bidLevel(49_900, 100)}

	if _, err := tr.Update("BTCUSDT", levels, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := tr.Update("BTCUSDT", nil, 50_000, ts.Add(time.Second)); err != nil {
		t.Fatalf("update: %v", err)
	}
	res, err := tr.Update("BTCUSDT", levels, 50_000, ts.Add(2*time.Second))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.NewEntries) != 1 {
		t.Fatalf("reappearing key after cancel should create a fresh entry")
	}
	active := 0
	for _, e := range tr.TrackedEntries("BTCUSDT") {
		if e.Active() {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active entry per key, got %d", active)
	}
}

func TestTrackerKeepsCanceledRecordWhenKeyReused(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()
	levels := []models.BookLevel{bidLevel(49_900, 100)}

	if _, err := tr.Update("BTCUSDT", levels, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Flash cancel, then the same wall comes back one second later.
	if _, err := tr.Update("BTCUSDT", nil, 50_000, ts.Add(time.Second)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := tr.Update("BTCUSDT", levels, 50_000, ts.Add(2*time.Second)); err != nil {
		t.Fatalf("update: %v", err)
	}

	all := tr.AllEntries("BTCUSDT")
	if len(all) != 2 {
		t.Fatalf("canceled record must survive key reuse, got %d entries", len(all))
	}
	spoofs := 0
	for _, e := range all {
		if e.IsSpoof {
			spoofs++
		}
	}
	if spoofs != 1 {
		t.Fatalf("expected the flash cancel retained as spoof evidence, got %d", spoofs)
	}
	if s := tr.Stats("BTCUSDT"); s.Total != 2 || s.Active != 1 || s.Spoof != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestTrackerMarkConsumed(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	if _, err := tr.Update("BTCUSDT", []models.BookLevel{bidLevel(50_000, 100)}, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Within tolerance (0.0005 of 50000 = 25).
	tr.MarkConsumed("BTCUSDT", 50_010, 40, models.SideBid)
	e := tr.TrackedEntries("BTCUSDT")[0]
	if !e.WasConsumed || e.FilledVolumeObserved != 40 {
		t.Fatalf("expected consumption recorded, got %+v", e)
	}

	// Wrong side must not match.
	tr.MarkConsumed("BTCUSDT", 50_000, 10, models.SideAsk)
	if e.FilledVolumeObserved != 40 {
		t.Fatalf("ask print must not fill a bid entry")
	}

	// Outside tolerance must not match.
	tr.MarkConsumed("BTCUSDT", 50_100, 10, models.SideBid)
	if e.FilledVolumeObserved != 40 {
		t.Fatalf("out-of-tolerance print must not match")
	}

	// Fill volume is capped at entry quantity.
	tr.MarkConsumed("BTCUSDT", 50_000, 500, models.SideBid)
	if e.FilledVolumeObserved != e.Qty {
		t.Fatalf("filled volume should cap at qty, got %v", e.FilledVolumeObserved)
	}
	if e.FilledRatio() != 1 {
		t.Fatalf("expected filled ratio 1, got %v", e.FilledRatio())
	}
}

func TestTrackerMalformedSnapshot(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	if _, err := tr.Update("", nil, 50_000, ts); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("empty symbol: expected ErrMalformedSnapshot, got %v", err)
	}
	if _, err := tr.Update("BTCUSDT", nil, 0, ts); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("zero ref price: expected ErrMalformedSnapshot, got %v", err)
	}
	if _, err := tr.Update("BTCUSDT", []models.BookLevel{{Side: "mid", Price: 1, Qty: 1}}, 50_000, ts); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("bad side: expected ErrInvalidSide, got %v", err)
	}
	if _, err := tr.Update("BTCUSDT", []models.BookLevel{bidLevel(-1, 10)}, 50_000, ts); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("negative price: expected ErrMalformedSnapshot, got %v", err)
	}
}

func TestTrackerEvictsOldestOverCap(t *testing.T) {
	p := testParams()
	p.MaxTrackedEntries = 3
	tr := NewOrderTracker(p)
	ts := time.Now()

	levels := []models.BookLevel{
		bidLevel(100, 100_000),
		bidLevel(101, 100_000),
		bidLevel(102, 100_000),
		bidLevel(103, 100_000),
		bidLevel(104, 100_000),
	}
	// Stagger lastSeenAt: each snapshot refreshes one more level.
	for i := 1; i <= len(levels); i++ {
		if _, err := tr.Update("BTCUSDT", levels[:i], 100, ts.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	all := tr.AllEntries("BTCUSDT")
	if len(all) != 3 {
		t.Fatalf("expected cap of 3 entries, got %d", len(all))
	}
}

func TestTrackerPrunesCanceledPastRetention(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	if _, err := tr.Update("BTCUSDT", []models.BookLevel{bidLevel(49_900, 100)}, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := tr.Update("BTCUSDT", nil, 50_000, ts.Add(time.Second)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(tr.AllEntries("BTCUSDT")) != 1 {
		t.Fatalf("canceled entry should be retained initially")
	}

	// Two hours later the canceled entry ages out.
	if _, err := tr.Update("BTCUSDT", nil, 50_000, ts.Add(2*time.Hour)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(tr.AllEntries("BTCUSDT")) != 0 {
		t.Fatalf("canceled entry should be pruned after retention")
	}
}

func TestTrackerStatsAndClear(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	if _, err := tr.Update("BTCUSDT", []models.BookLevel{bidLevel(49_900, 100), askLevel(50_100, 100)}, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}
	s := tr.Stats("BTCUSDT")
	if s.Total != 2 || s.Active != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}

	tr.Clear("BTCUSDT")
	if s := tr.Stats("BTCUSDT"); s.Total != 0 {
		t.Fatalf("clear should drop all state, got %+v", s)
	}
}

func TestTrackerEntriesSortedByNotional(t *testing.T) {
	tr := NewOrderTracker(testParams())
	ts := time.Now()

	if _, err := tr.Update("BTCUSDT", []models.BookLevel{
		bidLevel(49_900, 50),
		bidLevel(49_800, 200),
		askLevel(50_100, 100),
	}, 50_000, ts); err != nil {
		t.Fatalf("update: %v", err)
	}
	entries := tr.TrackedEntries("BTCUSDT")
	for i := 1; i < len(entries); i++ {
		if entries[i].Notional > entries[i-1].Notional {
			t.Fatalf("entries not sorted by notional desc")
		}
	}
}
