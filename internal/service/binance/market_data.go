package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/internal/service/ratelimit"
	pkghttp "DepthWatch/pkg/http"
)

// MarketData implements the REST flow inputs against the Binance
// futures API. All calls go through a token bucket so flow refreshes
// across many symbols stay under the venue's request weight limit.
type MarketData struct {
	baseURL string
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	rps     float64
}

func NewMarketData(baseURL string, client *pkghttp.Client, limiter *ratelimit.Limiter, rps int) drepo.MarketData {
	if rps <= 0 {
		rps = 5
	}
	return &MarketData{
		baseURL: baseURL,
		client:  client,
		limiter: limiter,
		rps:     float64(rps),
	}
}

// acquire blocks until a token is available or ctx ends.
func (m *MarketData) acquire(ctx context.Context, key string) error {
	for !m.limiter.Allow(key, m.rps, m.rps) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// Klines fetches recent candles. The wire format is a row-per-candle
// array: [openTime, open, high, low, close, volume, ...] with numeric
// fields as strings.
func (m *MarketData) Klines(ctx context.Context, symbol, interval string, limit int) ([]drepo.Kline, error) {
	if err := m.acquire(ctx, "klines"); err != nil {
		return nil, err
	}

	var rows [][]any
	err := m.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    m.baseURL + "/fapi/v1/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {interval},
			"limit":    {strconv.Itoa(limit)},
		},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	out := make([]drepo.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		open, err1 := fieldFloat(row[1])
		close_, err2 := fieldFloat(row[4])
		volume, err3 := fieldFloat(row[5])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		out = append(out, drepo.Kline{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     open,
			Close:    close_,
			Volume:   volume,
		})
	}
	return out, nil
}

// OpenInterest fetches the current open interest for symbol.
func (m *MarketData) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	if err := m.acquire(ctx, "open_interest"); err != nil {
		return 0, err
	}

	var resp struct {
		OpenInterest string `json:"openInterest"`
		Symbol       string `json:"symbol"`
	}
	err := m.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    m.baseURL + "/fapi/v1/openInterest",
		QueryParams: map[string][]string{
			"symbol": {symbol},
		},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("binance open interest %s: %w", symbol, err)
	}
	return strconv.ParseFloat(resp.OpenInterest, 64)
}

func fieldFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
}
