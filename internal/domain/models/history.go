package models

import "time"

// HistoryOrder is one price level rolled up from multi-day detection
// records, keyed by (side, price).
type HistoryOrder struct {
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	MaxNotional float64   `json:"maxNotional"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
	Appearances int       `json:"appearances"`
	IsNew       bool      `json:"isNew"`
	IsActive    bool      `json:"isActive"`
}

// HistoryStats summarizes one symbol's rolled-up orders.
type HistoryStats struct {
	TotalOrders   int     `json:"totalOrders"`
	BuyOrders     int     `json:"buyOrders"`
	SellOrders    int     `json:"sellOrders"`
	ActiveOrders  int     `json:"activeOrders"`
	NewOrders     int     `json:"newOrders"`
	TotalValue    float64 `json:"totalValue"`
	BuyValue      float64 `json:"buyValue"`
	SellValue     float64 `json:"sellValue"`
	BuyValueRatio float64 `json:"buyValueRatio"`
}

// HistoryAggregate is the per-symbol result of a history roll-up.
type HistoryAggregate struct {
	Symbol string         `json:"symbol"`
	Stats  HistoryStats   `json:"stats"`
	Orders []HistoryOrder `json:"orders"`
}
