package handlers

import (
	"context"
	"errors"
	"net/http"

	"cyclebot/internal/bot"
	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// EngineController - управление движком торгового цикла
type EngineController interface {
	Start(ctx context.Context, cfg models.EngineConfig) error
	Stop()
	Status() models.EngineStatus
	Stats() models.PerformanceStats
	Trades() []models.TradeRecord
	Cycles() []*models.TradeCycle
	Config() models.EngineConfig
	LastError() error
}

// EngineHandler обрабатывает HTTP запросы управления движком.
//
// Endpoints:
// - POST /api/v1/engine/start - запустить цикл
// - POST /api/v1/engine/stop - остановить
// - GET /api/v1/engine/status - снимок состояния
// - GET /api/v1/engine/cycles - последние циклы
// - GET /api/v1/engine/trades - сделки текущей сессии
type EngineHandler struct {
	engine   EngineController
	defaults models.EngineConfig
}

// NewEngineHandler создает handler; defaults дополняют тело запроса start
func NewEngineHandler(engine EngineController, defaults models.EngineConfig) *EngineHandler {
	return &EngineHandler{engine: engine, defaults: defaults}
}

// StatusResponse - состояние движка и последняя ошибка
type StatusResponse struct {
	models.EngineStatus
	LastError string `json:"last_error,omitempty"`
}

// Start запускает цикл.
//
// POST /api/v1/engine/start
//
// Request (все поля необязательны, пропущенные берутся из конфигурации):
//
//	{"pair": "BTCTRY", "target_profit_pct": 2, "stop_loss_pct": -5,
//	 "trade_amount": 1000, "check_interval_ms": 1000, "continuous": true}
//
// Response 202 Accepted: StatusResponse
// Response 400: ошибка конфигурации (fields - по полям)
// Response 409: цикл уже запущен
// Response 422: вето риск-менеджера
// Response 502: ошибка биржи при проверке баланса
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	cfg := h.defaults
	if err := decodeJSON(r, &cfg); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "invalid request body", err.Error())
		return
	}

	err := h.engine.Start(r.Context(), cfg)
	if err != nil {
		h.respondStartError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, h.status())
}

func (h *EngineHandler) respondStartError(w http.ResponseWriter, err error) {
	var verrs utils.ValidationErrors
	var riskErr *bot.RiskError

	switch {
	case errors.As(err, &verrs):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "invalid engine config",
			Code:   "validation",
			Fields: verrs,
		})
	case errors.Is(err, bot.ErrAlreadyRunning):
		respondWithError(w, http.StatusConflict, "already_running", "cycle already running", "")
	case errors.As(err, &riskErr):
		respondWithError(w, http.StatusUnprocessableEntity, "risk_rejected", "risk limit exceeded", riskErr.Reason)
	case errors.Is(err, bot.ErrEngineClosed):
		respondWithError(w, http.StatusServiceUnavailable, "closed", "engine closed", "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusRequestTimeout, "cancelled", "start cancelled", err.Error())
	default:
		respondWithError(w, http.StatusBadGateway, "gateway", "failed to start cycle", err.Error())
	}
}

// Stop останавливает движок и ждёт завершения рабочей горутины.
//
// POST /api/v1/engine/stop
//
// Уже размещённые на бирже ордера не отменяются.
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	respondWithJSON(w, http.StatusOK, h.status())
}

// Status возвращает снимок состояния.
//
// GET /api/v1/engine/status
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.status())
}

// Cycles - последние завершённые циклы, новые в конце.
//
// GET /api/v1/engine/cycles
func (h *EngineHandler) Cycles(w http.ResponseWriter, r *http.Request) {
	cycles := h.engine.Cycles()
	if cycles == nil {
		cycles = []*models.TradeCycle{}
	}
	respondWithJSON(w, http.StatusOK, cycles)
}

// Trades - сделки текущей сессии.
//
// GET /api/v1/engine/trades
func (h *EngineHandler) Trades(w http.ResponseWriter, r *http.Request) {
	trades := h.engine.Trades()
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// Config - параметры текущего (или последнего) запуска.
//
// GET /api/v1/engine/config
func (h *EngineHandler) Config(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.Config())
}

func (h *EngineHandler) status() StatusResponse {
	resp := StatusResponse{EngineStatus: h.engine.Status()}
	if err := h.engine.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}
