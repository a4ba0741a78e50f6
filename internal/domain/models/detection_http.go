package models

// Requests for the detection HTTP endpoints. Defined in domain for consistency and reuse.

type DetectRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type StatusRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type StartMonitorRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
}

type StopMonitorRequest struct {
	// Empty symbol stops all monitored symbols.
	Symbol string `json:"symbol"`
}

type HistoryRequest struct {
	Symbols     string  `query:"symbols" json:"symbols" validate:"required"`
	Days        int     `query:"days" json:"days" default:"7" validate:"gte=1,lte=30"`
	MinNotional float64 `query:"min_notional" json:"min_notional" default:"10000000" validate:"gte=0"`
}
