package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"DepthWatch/internal/domain/models"
	domrepo "DepthWatch/internal/domain/repository"
	pkgch "DepthWatch/pkg/clickhouse"
	applogger "DepthWatch/pkg/logger"
)

const detectionsTable = "depthwatch_detections"

var detectionSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + detectionsTable + ` (
        ts              DateTime64(3),
        symbol          String,
        schema_version  UInt8,
        verdict         String,
        buy_score       Float64,
        sell_score      Float64,
        cvd_cum         Float64,
        oi              Float64,
        oi_change_pct   Float64,
        spoof_count     UInt32,
        tracked_count   UInt32,
        trap_type       String,
        trap_confidence Float64,
        tracked_entries String,
        extensions      String
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (symbol, ts)
    TTL toDateTime(ts) + INTERVAL 90 DAY`,
}

// CHDetectionStore implements DetectionStore backed by ClickHouse.
// Scalar verdict fields get their own columns for cheap filtering; the
// per-entry detail and extension payloads are stored as JSON strings so
// the schema only ever grows.
type CHDetectionStore struct {
	db *sql.DB
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHDetectionStore(ch *pkgch.Client, l *applogger.Logger) *CHDetectionStore {
	return &CHDetectionStore{db: ch.DB(), ch: ch, l: l}
}

func (s *CHDetectionStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, detectionSchema)
}

func (s *CHDetectionStore) Save(ctx context.Context, snap *models.DetectionSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return fmt.Errorf("detection store: empty snapshot")
	}

	entries, err := json.Marshal(snap.Entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	extensions := []byte("{}")
	if len(snap.Extensions) > 0 {
		extensions, err = json.Marshal(snap.Extensions)
		if err != nil {
			return fmt.Errorf("marshal extensions: %w", err)
		}
	}

	var trapType string
	var trapConfidence float64
	if snap.Trap != nil {
		trapType = string(snap.Trap.Type)
		trapConfidence = snap.Trap.Confidence
	}

	q := `INSERT INTO ` + detectionsTable + ` (
        ts, symbol, schema_version, verdict, buy_score, sell_score,
        cvd_cum, oi, oi_change_pct, spoof_count, tracked_count,
        trap_type, trap_confidence, tracked_entries, extensions
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err = s.db.ExecContext(ctx, q,
		snap.Timestamp,
		snap.Symbol,
		uint8(snap.SchemaVersion),
		string(snap.Result.Verdict),
		snap.Result.BuyScore,
		snap.Result.SellScore,
		snap.Result.CVDCum,
		snap.Result.OI,
		snap.Result.OIChangePct,
		uint32(snap.Result.SpoofCount),
		uint32(snap.Result.TrackedEntriesCount),
		trapType,
		trapConfidence,
		string(entries),
		string(extensions),
	)
	if err != nil {
		s.l.Error("clickhouse detection insert error",
			applogger.String("symbol", snap.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("insert detection: %w", err)
	}
	s.l.Debug("clickhouse detection insert ok",
		applogger.String("symbol", snap.Symbol),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// QueryRange returns persisted detections for symbol in [from, to],
// newest first. limit <= 0 means no limit.
func (s *CHDetectionStore) QueryRange(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DetectionSnapshot, error) {
	q := `SELECT ts, symbol, schema_version, verdict, buy_score, sell_score,
        cvd_cum, oi, oi_change_pct, spoof_count, tracked_count,
        trap_type, trap_confidence, tracked_entries
    FROM ` + detectionsTable + `
    WHERE symbol = ? AND ts >= ? AND ts <= ?
    ORDER BY ts DESC`
	args := []interface{}{symbol, from, to}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse detection query error",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []*models.DetectionSnapshot
	for rows.Next() {
		var (
			snap           models.DetectionSnapshot
			schemaVersion  uint8
			verdict        string
			spoofCount     uint32
			trackedCount   uint32
			trapType       string
			trapConfidence float64
			entriesJSON    string
		)
		if err := rows.Scan(
			&snap.Timestamp,
			&snap.Symbol,
			&schemaVersion,
			&verdict,
			&snap.Result.BuyScore,
			&snap.Result.SellScore,
			&snap.Result.CVDCum,
			&snap.Result.OI,
			&snap.Result.OIChangePct,
			&spoofCount,
			&trackedCount,
			&trapType,
			&trapConfidence,
			&entriesJSON,
		); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		snap.SchemaVersion = int(schemaVersion)
		snap.Result.Verdict = models.Verdict(verdict)
		snap.Result.SpoofCount = int(spoofCount)
		snap.Result.TrackedEntriesCount = int(trackedCount)
		if trapType != "" {
			snap.Trap = &models.TrapResult{
				Detected:   trapType != string(models.TrapNone),
				Type:       models.TrapType(trapType),
				Confidence: trapConfidence,
			}
		}
		// Tolerate malformed entry JSON from older rows.
		if entriesJSON != "" {
			_ = json.Unmarshal([]byte(entriesJSON), &snap.Entries)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

func (s *CHDetectionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHDetectionStore) Close() error {
	return nil // connection pool managed by pkg client
}

var _ domrepo.DetectionStore = (*CHDetectionStore)(nil)
