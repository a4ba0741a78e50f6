package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"DepthWatch/internal/domain/models"
	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a DepthStream backed by the Binance futures
// combined WebSocket. Each subscribed symbol gets a partial-depth
// stream plus an aggTrade stream; raw frames are normalized into
// DepthEvents before anything downstream sees them.
type Stream struct {
	websocketURL   string
	depthLevels    int
	depthInterval  string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	symbols   []string // lowercased, for resubscription after reconnect
	subID     int
}

func NewStream(websocketURL string, depthLevels int, depthInterval string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) drepo.DepthStream {
	if depthLevels <= 0 {
		depthLevels = 20
	}
	if depthInterval == "" {
		depthInterval = "500ms"
	}
	return &Stream{
		websocketURL:   websocketURL,
		depthLevels:    depthLevels,
		depthInterval:  depthInterval,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         l,
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.logger.Info("binance: connected", logger.String("url", s.websocketURL))
	return nil
}

// Subscribe adds live subscriptions for the given symbols. Already
// subscribed symbols are skipped.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("binance not connected")
	}

	var fresh []string
	for _, sym := range symbols {
		lc := strings.ToLower(sym)
		known := false
		for _, have := range s.symbols {
			if have == lc {
				known = true
				break
			}
		}
		if !known {
			fresh = append(fresh, lc)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := s.sendSubscribe(fresh); err != nil {
		return err
	}
	s.symbols = append(s.symbols, fresh...)
	return nil
}

// Unsubscribe removes live subscriptions so the exchange stops sending
// frames for the given symbols. Unknown symbols are skipped.
func (s *Stream) Unsubscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("binance not connected")
	}

	var gone []string
	for _, sym := range symbols {
		lc := strings.ToLower(sym)
		for i, have := range s.symbols {
			if have == lc {
				s.symbols = append(s.symbols[:i], s.symbols[i+1:]...)
				gone = append(gone, lc)
				break
			}
		}
	}
	if len(gone) == 0 {
		return nil
	}

	params := s.streamNames(gone)
	s.subID++
	msg := map[string]any{"method": "UNSUBSCRIBE", "params": params, "id": s.subID}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("binance unsubscribe: %w", err)
	}
	s.logger.Info("binance: unsubscribed", logger.Strings("streams", params))
	return nil
}

// streamNames maps lowercased symbols to their combined-stream names.
func (s *Stream) streamNames(symbols []string) []string {
	params := make([]string, 0, 2*len(symbols))
	for _, sym := range symbols {
		params = append(params,
			fmt.Sprintf("%s@depth%d@%s", sym, s.depthLevels, s.depthInterval),
			fmt.Sprintf("%s@aggTrade", sym),
		)
	}
	return params
}

// sendSubscribe writes one SUBSCRIBE frame. Caller holds the lock.
func (s *Stream) sendSubscribe(symbols []string) error {
	params := s.streamNames(symbols)
	s.subID++
	msg := map[string]any{"method": "SUBSCRIBE", "params": params, "id": s.subID}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	s.logger.Info("binance: subscribed", logger.Strings("streams", params))
	return nil
}

// Combined stream envelope and payloads. Prices and quantities arrive
// as strings on the wire.
type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsDepth struct {
	Event  string      `json:"e"`
	Symbol string      `json:"s"`
	TimeMs int64       `json:"T"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
}

type wsAggTrade struct {
	Event      string `json:"e"`
	Symbol     string `json:"s"`
	Price      string `json:"p"`
	Qty        string `json:"q"`
	TimeMs     int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
}

// Read streams normalized DepthEvents and errors until the connection
// breaks or ctx ends.
func (s *Stream) Read(ctx context.Context) (<-chan drepo.DepthEvent, <-chan error) {
	events := make(chan drepo.DepthEvent, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.conn != nil {
					_ = s.conn.WriteMessage(websocket.PingMessage, nil)
				}
				s.mu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}
				ev, ok := s.parse(b)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return events, errs
}

// parse normalizes one combined-stream frame. Non-market frames such
// as subscribe acks return ok=false.
func (s *Stream) parse(b []byte) (drepo.DepthEvent, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(b, &env); err != nil || len(env.Data) == 0 {
		return drepo.DepthEvent{}, false
	}

	switch {
	case strings.Contains(env.Stream, "@depth"):
		var d wsDepth
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Symbol == "" {
			return drepo.DepthEvent{}, false
		}
		snap := &models.DepthSnapshot{
			Symbol:    d.Symbol,
			Timestamp: time.UnixMilli(d.TimeMs),
		}
		for _, lv := range d.Bids {
			if bl, ok := parseLevel(models.SideBid, lv); ok {
				snap.Bids = append(snap.Bids, bl)
			}
		}
		for _, lv := range d.Asks {
			if bl, ok := parseLevel(models.SideAsk, lv); ok {
				snap.Asks = append(snap.Asks, bl)
			}
		}
		return drepo.DepthEvent{Depth: snap}, true

	case strings.Contains(env.Stream, "@aggTrade"):
		var t wsAggTrade
		if err := json.Unmarshal(env.Data, &t); err != nil || t.Symbol == "" {
			return drepo.DepthEvent{}, false
		}
		price, err1 := strconv.ParseFloat(t.Price, 64)
		qty, err2 := strconv.ParseFloat(t.Qty, 64)
		if err1 != nil || err2 != nil {
			return drepo.DepthEvent{}, false
		}
		// Buyer-is-maker means an aggressive sell hit the resting bid.
		side := models.SideAsk
		if t.BuyerMaker {
			side = models.SideBid
		}
		return drepo.DepthEvent{Trade: &models.TradePrint{
			Symbol:    t.Symbol,
			Side:      side,
			Price:     price,
			Qty:       qty,
			Timestamp: time.UnixMilli(t.TimeMs),
		}}, true
	}
	return drepo.DepthEvent{}, false
}

func parseLevel(side models.Side, lv [2]string) (models.BookLevel, bool) {
	price, err1 := strconv.ParseFloat(lv[0], 64)
	qty, err2 := strconv.ParseFloat(lv[1], 64)
	if err1 != nil || err2 != nil || price <= 0 {
		return models.BookLevel{}, false
	}
	return models.BookLevel{Side: side, Price: price, Qty: qty}, true
}

// Reconnect closes and reconnects, then restores subscriptions.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.symbols) == 0 {
		return nil
	}
	return s.sendSubscribe(s.symbols)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
