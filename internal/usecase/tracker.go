package usecase

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"DepthWatch/internal/domain/models"
)

// Retention for canceled entries before they are pruned from memory.
const canceledRetention = time.Hour

// Contract violations surfaced by Update. Transient feed problems are
// handled upstream; these indicate a malformed snapshot and must reach
// the caller.
var (
	ErrInvalidSide       = errors.New("tracker: invalid side")
	ErrMalformedSnapshot = errors.New("tracker: malformed snapshot")
)

// UpdateResult reports what one snapshot did to the tracked set.
type UpdateResult struct {
	NewEntries      []*models.TrackedEntry
	UpdatedEntries  []*models.TrackedEntry
	CanceledEntries []*models.TrackedEntry
	TotalTracked    int
}

// symbolBook holds one symbol's tracked set. Active entries are keyed
// by (side,price); canceled entries move to a side list so a reused key
// does not erase the cancellation evidence before retention expires.
type symbolBook struct {
	active   map[string]*models.TrackedEntry
	canceled []*models.TrackedEntry
}

func (b *symbolBook) size() int { return len(b.active) + len(b.canceled) }

func (b *symbolBook) all() []*models.TrackedEntry {
	out := make([]*models.TrackedEntry, 0, b.size())
	for _, e := range b.active {
		out = append(out, e)
	}
	return append(out, b.canceled...)
}

func (b *symbolBook) remove(target *models.TrackedEntry) {
	if target.Active() {
		delete(b.active, target.Key)
		return
	}
	for i, e := range b.canceled {
		if e == target {
			b.canceled = append(b.canceled[:i], b.canceled[i+1:]...)
			return
		}
	}
}

// OrderTracker follows the lifecycle of large resting orders across
// successive depth snapshots: creation, persistence, cancellation,
// consumption. Pure in-memory state, no I/O; the owning monitor
// serializes all calls, so no internal locking.
type OrderTracker struct {
	params *Params
	books  map[string]*symbolBook
}

func NewOrderTracker(params *Params) *OrderTracker {
	return &OrderTracker{
		params: params,
		books:  make(map[string]*symbolBook),
	}
}

// Update reconciles one depth snapshot against the tracked set.
// Levels whose notional clears the threshold are created or refreshed;
// previously active keys absent from the snapshot are canceled, and
// short-lived non-persistent cancels are flagged as spoofs. Canceled
// entries older than the retention are pruned and the live set is
// capped by evicting oldest-by-lastSeenAt.
func (t *OrderTracker) Update(symbol string, levels []models.BookLevel, refPrice float64, ts time.Time) (UpdateResult, error) {
	var res UpdateResult
	if symbol == "" || refPrice <= 0 || math.IsNaN(refPrice) {
		return res, fmt.Errorf("%w: symbol=%q refPrice=%v", ErrMalformedSnapshot, symbol, refPrice)
	}

	book := t.book(symbol)
	seen := make(map[string]struct{})

	for _, lv := range levels {
		if !lv.Side.Valid() {
			return res, fmt.Errorf("%w: %q", ErrInvalidSide, lv.Side)
		}
		if lv.Price <= 0 || lv.Qty < 0 || math.IsNaN(lv.Price) || math.IsNaN(lv.Qty) {
			return res, fmt.Errorf("%w: price=%v qty=%v", ErrMalformedSnapshot, lv.Price, lv.Qty)
		}
		notional := lv.Qty * refPrice
		if notional < t.params.NotionalThreshold {
			continue
		}

		key := models.EntryKey(lv.Side, lv.Price)
		seen[key] = struct{}{}

		if e, ok := book.active[key]; ok {
			e.Qty = lv.Qty
			e.Notional = notional
			e.LastSeenAt = ts
			e.SeenCount++
			if e.SeenCount >= t.params.PersistSnapshots {
				e.IsPersistent = true
			}
			res.UpdatedEntries = append(res.UpdatedEntries, e)
			continue
		}

		e := &models.TrackedEntry{
			Key:            key,
			Symbol:         symbol,
			Side:           lv.Side,
			Price:          lv.Price,
			Qty:            lv.Qty,
			Notional:       notional,
			CreatedAt:      ts,
			LastSeenAt:     ts,
			SeenCount:      1,
			Classification: models.ClassUnknown,
		}
		book.active[key] = e
		res.NewEntries = append(res.NewEntries, e)
	}

	// Keys that vanished were either pulled or eaten; either way the
	// resting order is gone. The record moves to the canceled list and
	// survives until retention even if the key reappears.
	for key, e := range book.active {
		if _, ok := seen[key]; ok {
			continue
		}
		canceled := ts
		e.CanceledAt = &canceled
		if e.Lifespan(ts) < t.params.SpoofWindow && !e.IsPersistent {
			e.IsSpoof = true
			e.Classification = models.ClassSpoof
		}
		delete(book.active, key)
		book.canceled = append(book.canceled, e)
		res.CanceledEntries = append(res.CanceledEntries, e)
	}

	t.prune(symbol, ts)
	res.TotalTracked = t.book(symbol).size()
	return res, nil
}

// MarkConsumed reconciles a trade print against active entries on the
// same side within the price tolerance.
func (t *OrderTracker) MarkConsumed(symbol string, price, qty float64, side models.Side) {
	if qty <= 0 || price <= 0 {
		return
	}
	for _, e := range t.book(symbol).active {
		if e.Side != side {
			continue
		}
		if math.Abs(e.Price-price)/e.Price > t.params.PriceTolerance {
			continue
		}
		e.FilledVolumeObserved += qty
		if e.FilledVolumeObserved > e.Qty {
			e.FilledVolumeObserved = e.Qty
		}
		e.WasConsumed = true
	}
}

// TrackedEntries returns the active entries for symbol, largest
// notional first.
func (t *OrderTracker) TrackedEntries(symbol string) []*models.TrackedEntry {
	book := t.book(symbol)
	out := make([]*models.TrackedEntry, 0, len(book.active))
	for _, e := range book.active {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Notional > out[j].Notional })
	return out
}

// AllEntries returns every tracked entry for symbol including canceled
// ones, most recently seen first.
func (t *OrderTracker) AllEntries(symbol string) []*models.TrackedEntry {
	out := t.book(symbol).all()
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out
}

// Stats summarizes the tracked set for symbol.
func (t *OrderTracker) Stats(symbol string) models.TrackerStats {
	var s models.TrackerStats
	for _, e := range t.book(symbol).all() {
		s.Total++
		if e.Active() {
			s.Active++
		}
		if e.IsPersistent {
			s.Persistent++
		}
		if e.IsSpoof {
			s.Spoof++
		}
		if e.WasConsumed {
			s.Consumed++
		}
	}
	return s
}

// Clear drops all state for symbol.
func (t *OrderTracker) Clear(symbol string) {
	delete(t.books, symbol)
}

func (t *OrderTracker) book(symbol string) *symbolBook {
	book, ok := t.books[symbol]
	if !ok {
		book = &symbolBook{active: make(map[string]*models.TrackedEntry)}
		t.books[symbol] = book
	}
	return book
}

// prune removes canceled entries past retention, then enforces the
// size cap by evicting oldest-by-lastSeenAt.
func (t *OrderTracker) prune(symbol string, now time.Time) {
	book := t.book(symbol)
	kept := book.canceled[:0]
	for _, e := range book.canceled {
		if now.Sub(*e.CanceledAt) <= canceledRetention {
			kept = append(kept, e)
		}
	}
	book.canceled = kept

	over := book.size() - t.params.MaxTrackedEntries
	if over <= 0 {
		return
	}
	entries := book.all()
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastSeenAt.Before(entries[j].LastSeenAt) })
	for _, e := range entries[:over] {
		book.remove(e)
	}
}
