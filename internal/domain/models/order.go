package models

import (
	"fmt"
	"time"
)

// Side is the resting side of an order-book level.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideBid || s == SideAsk }

// BookLevel is one normalized depth level.
type BookLevel struct {
	Side  Side    `json:"side"`
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// DepthSnapshot is a normalized order-book snapshot. Bids and Asks are
// ordered best-first. The feed adapter is responsible for producing this
// shape; nothing downstream parses exchange wire formats.
type DepthSnapshot struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// Levels returns all levels of the snapshot, bids then asks.
func (d *DepthSnapshot) Levels() []BookLevel {
	out := make([]BookLevel, 0, len(d.Bids)+len(d.Asks))
	out = append(out, d.Bids...)
	return append(out, d.Asks...)
}

// MidPrice returns the mid of best bid and best ask, or 0 when either
// side is empty.
func (d *DepthSnapshot) MidPrice() float64 {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0
	}
	return (d.Bids[0].Price + d.Asks[0].Price) / 2
}

// TradePrint is a single executed trade observed on the feed. Side is
// the resting side that got hit (bid for sells into the book, ask for
// buys lifting the offer).
type TradePrint struct {
	Symbol    string
	Side      Side
	Price     float64
	Qty       float64
	Timestamp time.Time
}

// TrackedEntry is the lifecycle state of one large resting order,
// keyed by (side, price) within a symbol. At most one non-canceled
// entry exists per key.
type TrackedEntry struct {
	Key      string  `json:"key"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Qty      float64 `json:"qty"`
	Notional float64 `json:"notional"`

	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt time.Time  `json:"lastSeenAt"`
	CanceledAt *time.Time `json:"canceledAt,omitempty"`

	SeenCount            int     `json:"seenCount"`
	FilledVolumeObserved float64 `json:"filledVolumeObserved"`
	ImpactRatio          float64 `json:"impactRatio"`

	Classification Classification `json:"classification"`
	IsPersistent   bool           `json:"isPersistent"`
	IsSpoof        bool           `json:"isSpoof"`
	WasConsumed    bool           `json:"wasConsumed"`
}

// EntryKey builds the tracked-entry map key for a side and price.
func EntryKey(side Side, price float64) string {
	return fmt.Sprintf("%s@%g", side, price)
}

// Active reports whether the entry has not been canceled yet.
func (e *TrackedEntry) Active() bool { return e.CanceledAt == nil }

// Lifespan is the time between creation and cancellation, or until now
// for an active entry.
func (e *TrackedEntry) Lifespan(now time.Time) time.Duration {
	if e.CanceledAt != nil {
		return e.CanceledAt.Sub(e.CreatedAt)
	}
	return now.Sub(e.CreatedAt)
}

// FilledRatio is the observed filled volume as a fraction of quantity.
func (e *TrackedEntry) FilledRatio() float64 {
	if e.Qty <= 0 {
		return 0
	}
	return e.FilledVolumeObserved / e.Qty
}
