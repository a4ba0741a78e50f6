package models

// FlowStatus is the externally visible flow-state summary for one
// symbol.
type FlowStatus struct {
	CVDCum  float64 `json:"cvdCum"`
	OI      float64 `json:"oi"`
	PrevOI  float64 `json:"prevOi"`
	Samples int     `json:"samples"`
}

// MonitorStatus reports one symbol's monitoring state.
type MonitorStatus struct {
	Symbol       string       `json:"symbol"`
	IsMonitoring bool         `json:"isMonitoring"`
	Flow         FlowStatus   `json:"flow"`
	Tracker      TrackerStats `json:"tracker"`
}

// TrackerStats mirrors the tracker's per-symbol summary for status
// reporting.
type TrackerStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Persistent int `json:"persistent"`
	Spoof      int `json:"spoof"`
	Consumed   int `json:"consumed"`
}
