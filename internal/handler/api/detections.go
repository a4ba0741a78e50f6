package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	models "DepthWatch/internal/domain/models"
	icache "DepthWatch/internal/service/cache"
	"DepthWatch/internal/usecase"
	xhttp "DepthWatch/pkg/http"
	xlogger "DepthWatch/pkg/logger"

	"github.com/labstack/echo/v4"
)

const historyCacheTTL = 60 * time.Second

// DetectionsHandler exposes the detection pipeline over HTTP: on-demand
// detection, monitor lifecycle and multi-day history roll-ups.
type DetectionsHandler struct {
	logger   *xlogger.Logger
	detector *usecase.Detector
	history  *usecase.HistoryAggregator
	cache    icache.BytesCache
}

func NewDetectionsHandler(logger *xlogger.Logger, detector *usecase.Detector, history *usecase.HistoryAggregator) *DetectionsHandler {
	return &DetectionsHandler{logger: logger, detector: detector, history: history}
}

// SetCache injects a response cache for the history endpoint.
func (h *DetectionsHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *DetectionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/detect", h.Detect)
	g.GET("/status", h.Status)
	g.POST("/monitor/start", h.StartMonitor)
	g.POST("/monitor/stop", h.StopMonitor)
	g.GET("/history", h.History)
}

// Detect runs one on-demand detection cycle for a symbol without
// persisting it.
func (h *DetectionsHandler) Detect(c echo.Context) error {
	req := &models.DetectRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.detector.Detect(c.Request().Context(), req.Symbol, false)
	if err != nil {
		if errors.Is(err, usecase.ErrNotMonitored) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"ERR_NOT_MONITORED", "symbol", err.Error(), http.StatusNotFound).WithError(err))
		}
		h.logger.Error("detect usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, snap)
}

// Status reports monitoring state, either for one symbol or all.
func (h *DetectionsHandler) Status(c echo.Context) error {
	req := &models.StatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	statuses := h.detector.MonitoringStatus(c.Request().Context())
	if req.Symbol == "" {
		return xhttp.SuccessResponse(c, statuses)
	}
	for _, st := range statuses {
		if st.Symbol == req.Symbol {
			return xhttp.SuccessResponse(c, st)
		}
	}
	return xhttp.NotFoundResponse(c, models.MonitorStatus{Symbol: req.Symbol, IsMonitoring: false})
}

// StartMonitor begins monitoring the requested symbols. Already
// monitored symbols are skipped.
func (h *DetectionsHandler) StartMonitor(c echo.Context) error {
	req := &models.StartMonitorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	for _, symbol := range req.Symbols {
		if err := h.detector.StartMonitoring(c.Request().Context(), symbol); err != nil {
			h.logger.Error("start monitoring error",
				xlogger.String("symbol", symbol), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"monitoring": h.detector.MonitoredSymbols(),
	})
}

// StopMonitor stops one symbol, or everything when no symbol is given.
func (h *DetectionsHandler) StopMonitor(c echo.Context) error {
	req := &models.StopMonitorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Symbol == "" {
		h.detector.StopAll()
		return xhttp.SuccessResponse(c, map[string]any{"monitoring": []string{}})
	}
	if err := h.detector.StopMonitoring(req.Symbol); err != nil {
		if errors.Is(err, usecase.ErrNotMonitored) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"ERR_NOT_MONITORED", "symbol", err.Error(), http.StatusNotFound).WithError(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"monitoring": h.detector.MonitoredSymbols(),
	})
}

// History serves the multi-day roll-up of persisted detections.
// Responses are cached briefly; the underlying data only changes once
// per detection interval.
func (h *DetectionsHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := splitSymbols(req.Symbols)
	if len(symbols) == 0 {
		return xhttp.BadRequestResponse(c, "symbols required")
	}

	cacheKey := fmt.Sprintf("history:%s:%d:%g", strings.Join(symbols, ","), req.Days, req.MinNotional)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
			h.logger.Warn("history cache_get_error", xlogger.Error(err))
		} else if ok {
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	// Optional anchor lets clients replay a historical window.
	anchor := xhttp.ParseTimeDefault(c.QueryParam("to"), time.Now())
	aggs, err := h.history.AggregateMultipleSymbols(c.Request().Context(), symbols, req.Days, req.MinNotional, anchor)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	resp := xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    aggs,
	}
	if h.cache != nil {
		if b, err := json.Marshal(resp); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, historyCacheTTL); err != nil {
				h.logger.Warn("history cache_set_error", xlogger.Error(err))
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func splitSymbols(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
