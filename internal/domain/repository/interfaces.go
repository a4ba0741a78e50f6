package repository

import (
	"context"
	"time"

	"DepthWatch/internal/domain/models"
)

// DepthEvent is one message from the market feed: either a depth
// snapshot or a trade print, never both.
type DepthEvent struct {
	Depth *models.DepthSnapshot
	Trade *models.TradePrint
}

// DepthStream is the live feed boundary. Implementations normalize
// exchange wire formats into DepthEvents; nothing downstream sees raw
// frames.
type DepthStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan DepthEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Kline is one candle used for the CVD approximation.
type Kline struct {
	OpenTime time.Time
	Open     float64
	Close    float64
	Volume   float64
}

// MarketData fetches the slow-path flow inputs over REST.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	OpenInterest(ctx context.Context, symbol string) (float64, error)
}

// DetectionStore persists one record per detection cycle and serves
// the multi-day range reads behind the history aggregator.
type DetectionStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, snap *models.DetectionSnapshot) error
	QueryRange(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DetectionSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// DetectionPublisher fans detection snapshots out to downstream
// consumers. Publish failures are telemetry loss, not detection loss.
type DetectionPublisher interface {
	PublishDetection(ctx context.Context, snap *models.DetectionSnapshot) error
	Close() error
}

// ConfigStore is the key/value source of runtime-tunable detection
// parameters. A failed Load leaves built-in defaults in place.
type ConfigStore interface {
	Load(ctx context.Context) (map[string]string, error)
}

// Metrics is the domain-facing metrics recorder.
type Metrics interface {
	RecordSnapshot(symbol string)
	RecordError(kind string)
	RecordMidPrice(symbol string, price float64)
	RecordTrackedEntries(symbol string, n int)
	RecordVerdict(symbol, verdict string)
	RecordLatency(op string, seconds float64)
}
