package binance

import (
	"testing"

	"DepthWatch/internal/domain/models"
)

func TestParseDepthFrame(t *testing.T) {
	s := &Stream{}
	frame := []byte(`{
		"stream": "btcusdt@depth20@500ms",
		"data": {
			"e": "depthUpdate",
			"s": "BTCUSDT",
			"T": 1700000000000,
			"b": [["50000.10", "2.5"], ["49999.90", "1.0"]],
			"a": [["50000.50", "3.0"]]
		}
	}`)

	ev, ok := s.parse(frame)
	if !ok {
		t.Fatalf("expected frame to parse")
	}
	if ev.Depth == nil || ev.Trade != nil {
		t.Fatalf("expected a depth event, got %+v", ev)
	}
	d := ev.Depth
	if d.Symbol != "BTCUSDT" {
		t.Fatalf("wrong symbol %q", d.Symbol)
	}
	if len(d.Bids) != 2 || len(d.Asks) != 1 {
		t.Fatalf("wrong level counts: %d bids %d asks", len(d.Bids), len(d.Asks))
	}
	if d.Bids[0].Price != 50000.10 || d.Bids[0].Qty != 2.5 || d.Bids[0].Side != models.SideBid {
		t.Fatalf("wrong best bid %+v", d.Bids[0])
	}
	if d.Asks[0].Side != models.SideAsk {
		t.Fatalf("wrong ask side %+v", d.Asks[0])
	}
	if d.Timestamp.UnixMilli() != 1700000000000 {
		t.Fatalf("wrong timestamp %v", d.Timestamp)
	}
}

func TestParseAggTradeFrame(t *testing.T) {
	s := &Stream{}

	// Buyer-is-maker: an aggressive sell hit the resting bid.
	ev, ok := s.parse([]byte(`{
		"stream": "btcusdt@aggTrade",
		"data": {"e": "aggTrade", "s": "BTCUSDT", "p": "50000.25", "q": "0.8", "T": 1700000000500, "m": true}
	}`))
	if !ok || ev.Trade == nil {
		t.Fatalf("expected a trade event, got %+v", ev)
	}
	if ev.Trade.Side != models.SideBid {
		t.Fatalf("buyer-maker trade should hit the bid, got %s", ev.Trade.Side)
	}
	if ev.Trade.Price != 50000.25 || ev.Trade.Qty != 0.8 {
		t.Fatalf("wrong trade fields %+v", ev.Trade)
	}

	// Buyer lifts the offer.
	ev, ok = s.parse([]byte(`{
		"stream": "btcusdt@aggTrade",
		"data": {"e": "aggTrade", "s": "BTCUSDT", "p": "50001.00", "q": "1.2", "T": 1700000001000, "m": false}
	}`))
	if !ok || ev.Trade.Side != models.SideAsk {
		t.Fatalf("taker-buy trade should hit the ask, got %+v", ev.Trade)
	}
}

func TestParseRejectsNonMarketFrames(t *testing.T) {
	s := &Stream{}

	cases := [][]byte{
		[]byte(`{"result": null, "id": 1}`),                       // subscribe ack
		[]byte(`not json`),                                        //
		[]byte(`{"stream": "btcusdt@depth20@500ms", "data": {}}`), // no symbol
		[]byte(`{"stream": "btcusdt@markPrice", "data": {"s": "BTCUSDT"}}`),
	}
	for i, b := range cases {
		if _, ok := s.parse(b); ok {
			t.Fatalf("case %d should not parse: %s", i, b)
		}
	}
}

func TestParseSkipsBadLevels(t *testing.T) {
	s := &Stream{}
	ev, ok := s.parse([]byte(`{
		"stream": "btcusdt@depth20@500ms",
		"data": {"e": "depthUpdate", "s": "BTCUSDT", "T": 1, "b": [["oops", "1"], ["50000", "2"]], "a": []}
	}`))
	if !ok {
		t.Fatalf("frame with one bad level should still parse")
	}
	if len(ev.Depth.Bids) != 1 || ev.Depth.Bids[0].Price != 50000 {
		t.Fatalf("bad level should be skipped, got %+v", ev.Depth.Bids)
	}
}
