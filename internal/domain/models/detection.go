package models

import "time"

// DetectionSchemaVersion is bumped when the persisted snapshot contract
// gains fields. Changes must stay additive; readers tolerate unknown
// fields.
const DetectionSchemaVersion = 1

// AggregateResult is the instrument-level verdict produced by the
// signal aggregator.
type AggregateResult struct {
	Verdict             Verdict `json:"finalAction"`
	BuyScore            float64 `json:"buyScore"`
	SellScore           float64 `json:"sellScore"`
	CVDCum              float64 `json:"cvdCum"`
	OI                  float64 `json:"oi"`
	OIChangePct         float64 `json:"oiChangePct"`
	SpoofCount          int     `json:"spoofCount"`
	TrackedEntriesCount int     `json:"trackedEntriesCount"`
}

// TrapIndicators is the evidence bundle behind a trap verdict.
type TrapIndicators struct {
	AvgDuration     time.Duration `json:"avgDuration"`
	PersistentCount int           `json:"persistentCount"`
	FlashCount      int           `json:"flashCount"`
	FlashRatio      float64       `json:"flashRatio"`
	FilledRatio     float64       `json:"filledRatio"`
	CancelRatio     float64       `json:"cancelRatio"`
	CVDAligned      bool          `json:"cvdAligned"`
	OIAligned       bool          `json:"oiAligned"`
	PriceAligned    bool          `json:"priceAligned"`
	Synchronized    bool          `json:"synchronized"`
	SpikeDetected   bool          `json:"spikeDetected"`
}

// TrapResult is the trap-detector output for one detection cycle.
type TrapResult struct {
	Detected   bool            `json:"detected"`
	Type       TrapType        `json:"type"`
	Confidence float64         `json:"confidence"`
	Indicators *TrapIndicators `json:"indicators,omitempty"`
}

// EntrySnapshot is the per-entry portion of a persisted detection
// record. It is the only shape the query layer and the history
// aggregator depend on, so fields are only ever added.
type EntrySnapshot struct {
	Side           Side           `json:"side"`
	Price          float64        `json:"price"`
	Qty            float64        `json:"qty"`
	Notional       float64        `json:"notional"`
	ImpactRatio    float64        `json:"impactRatio"`
	Classification Classification `json:"classification"`
	IsPersistent   bool           `json:"isPersistent"`
	IsSpoof        bool           `json:"isSpoof"`
	WasConsumed    bool           `json:"wasConsumed"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastSeenAt     time.Time      `json:"lastSeenAt"`
}

// SnapshotOf captures the persisted view of a tracked entry.
func SnapshotOf(e *TrackedEntry) EntrySnapshot {
	return EntrySnapshot{
		Side:           e.Side,
		Price:          e.Price,
		Qty:            e.Qty,
		Notional:       e.Notional,
		ImpactRatio:    e.ImpactRatio,
		Classification: e.Classification,
		IsPersistent:   e.IsPersistent,
		IsSpoof:        e.IsSpoof,
		WasConsumed:    e.WasConsumed,
		CreatedAt:      e.CreatedAt,
		LastSeenAt:     e.LastSeenAt,
	}
}

// DetectionSnapshot is one persisted detection cycle.
type DetectionSnapshot struct {
	SchemaVersion int             `json:"schemaVersion"`
	Symbol        string          `json:"symbol"`
	Timestamp     time.Time       `json:"timestamp"`
	Result        AggregateResult `json:"result"`
	Entries       []EntrySnapshot `json:"trackedEntries"`
	Trap          *TrapResult     `json:"trap,omitempty"`

	// Extension fields from detectors outside the core pipeline,
	// keyed by detector name.
	Extensions map[string]any `json:"extensions,omitempty"`
}
