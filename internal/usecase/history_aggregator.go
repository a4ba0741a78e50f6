package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/pkg/logger"
	"DepthWatch/pkg/util"
)

// Roll-up freshness windows.
const (
	historyNewWindow    = time.Hour
	historyActiveWindow = 15 * time.Minute
)

// HistoryAggregator rolls multi-day persisted detection records up
// into per-price-level statistics. It only summarizes what was already
// persisted; it never replays detection.
type HistoryAggregator struct {
	store  drepo.DetectionStore
	logger *logger.Logger
}

func NewHistoryAggregator(store drepo.DetectionStore, l *logger.Logger) *HistoryAggregator {
	return &HistoryAggregator{store: store, logger: l}
}

// AggregateOrders replays the serialized entry snapshots of the given
// records, keyed by (side, price), keeping max notional, first/last
// seen and appearance count. Orders below minNotional are skipped.
// Results are sorted by max notional descending.
func (h *HistoryAggregator) AggregateOrders(records []*models.DetectionSnapshot, symbol string, minNotional float64, now time.Time) models.HistoryAggregate {
	type lifecycle struct {
		side        models.Side
		price       float64
		maxNotional float64
		firstSeen   time.Time
		lastSeen    time.Time
		appearances int
	}

	byKey := make(map[string]*lifecycle)
	for _, rec := range records {
		if rec == nil || rec.Symbol != symbol {
			continue
		}
		for _, e := range rec.Entries {
			if e.Notional < minNotional {
				continue
			}
			key := models.EntryKey(e.Side, e.Price)
			lc, ok := byKey[key]
			if !ok {
				byKey[key] = &lifecycle{
					side:        e.Side,
					price:       e.Price,
					maxNotional: e.Notional,
					firstSeen:   rec.Timestamp,
					lastSeen:    rec.Timestamp,
					appearances: 1,
				}
				continue
			}
			if e.Notional > lc.maxNotional {
				lc.maxNotional = e.Notional
			}
			if rec.Timestamp.Before(lc.firstSeen) {
				lc.firstSeen = rec.Timestamp
			}
			if rec.Timestamp.After(lc.lastSeen) {
				lc.lastSeen = rec.Timestamp
			}
			lc.appearances++
		}
	}

	agg := models.HistoryAggregate{Symbol: symbol}
	for _, lc := range byKey {
		o := models.HistoryOrder{
			Symbol:      symbol,
			Side:        lc.side,
			Price:       lc.price,
			MaxNotional: lc.maxNotional,
			FirstSeen:   lc.firstSeen,
			LastSeen:    lc.lastSeen,
			Appearances: lc.appearances,
			IsNew:       now.Sub(lc.firstSeen) < historyNewWindow,
			IsActive:    now.Sub(lc.lastSeen) < historyActiveWindow,
		}
		agg.Orders = append(agg.Orders, o)

		agg.Stats.TotalOrders++
		agg.Stats.TotalValue += o.MaxNotional
		if o.Side == models.SideBid {
			agg.Stats.BuyOrders++
			agg.Stats.BuyValue += o.MaxNotional
		} else {
			agg.Stats.SellOrders++
			agg.Stats.SellValue += o.MaxNotional
		}
		if o.IsActive {
			agg.Stats.ActiveOrders++
		}
		if o.IsNew {
			agg.Stats.NewOrders++
		}
	}
	if agg.Stats.TotalValue > 0 {
		agg.Stats.BuyValueRatio = agg.Stats.BuyValue / agg.Stats.TotalValue * 100
	}

	sort.Slice(agg.Orders, func(i, j int) bool {
		return agg.Orders[i].MaxNotional > agg.Orders[j].MaxNotional
	})
	return agg
}

// AggregateMultipleSymbols runs the roll-up per symbol over the `days`
// before the anchor time. A failing symbol is logged and skipped; the
// rest still aggregate.
func (h *HistoryAggregator) AggregateMultipleSymbols(ctx context.Context, symbols []string, days int, minNotional float64, now time.Time) ([]models.HistoryAggregate, error) {
	if days <= 0 {
		return nil, fmt.Errorf("history: days must be positive, got %d", days)
	}
	if now.IsZero() {
		now = time.Now()
	}
	from, to := util.AlignFromTo(now.AddDate(0, 0, -days), now, "1m")

	out := make([]models.HistoryAggregate, 0, len(symbols))
	for _, symbol := range symbols {
		records, err := h.store.QueryRange(ctx, symbol, from, to, 0)
		if err != nil {
			h.logger.Error("history query failed",
				logger.String("symbol", symbol), logger.Error(err))
			continue
		}
		out = append(out, h.AggregateOrders(records, symbol, minNotional, now))
	}
	return out, nil
}
