package handlers

import (
	"context"
	"net/http"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

// LedgerStatsProvider - статистика постоянного журнала
type LedgerStatsProvider interface {
	Snapshot(ctx context.Context) (models.LedgerStats, error)
	Recent(ctx context.Context, limit int) ([]models.TradeRecord, error)
}

// SessionStats - статистика текущей сессии движка
type SessionStats interface {
	Stats() models.PerformanceStats
	Trades() []models.TradeRecord
}

// RiskSource - дневное состояние риск-менеджера
type RiskSource interface {
	State() models.RiskState
}

// BalanceSource - последние балансы, прочитанные движком
type BalanceSource interface {
	LastBalances() (balances map[string]exchange.Balance, observedAt time.Time, ok bool)
}

// StatsHandler обрабатывает HTTP запросы статистики.
//
// Endpoints:
// - GET /api/v1/stats - статистика сессии и журнала
// - GET /api/v1/trades?limit=N - последние записи журнала
// - GET /api/v1/risk - дневной учёт риск-менеджера
// - GET /api/v1/balances - последние балансы, прочитанные движком
//
// Без журнала (ledger == nil) отдаётся только статистика сессии.
type StatsHandler struct {
	session  SessionStats
	ledger   LedgerStatsProvider
	risk     RiskSource
	balances BalanceSource
}

// NewStatsHandler создает StatsHandler; ledger и balances могут быть nil
func NewStatsHandler(session SessionStats, ledger LedgerStatsProvider, risk RiskSource, balances BalanceSource) *StatsHandler {
	return &StatsHandler{session: session, ledger: ledger, risk: risk, balances: balances}
}

// StatsResponse - статистика сессии и (если есть журнал) между сессиями
type StatsResponse struct {
	Session models.PerformanceStats `json:"session"`
	Ledger  *models.LedgerStats     `json:"ledger,omitempty"`
}

// GetStats возвращает статистику.
//
// GET /api/v1/stats
//
// Response 200 OK:
//
//	{
//	  "session": {"total_trades": 3, "profitable_trades": 2, "loss_trades": 1,
//	              "average_profit": 0.8, "total_profit": 2.4, "win_rate": 66.7},
//	  "ledger": {"overall": {...}, "today": {"trades": 1, "profit_pct": 2},
//	             "week": {...}, "stop_losses": 1,
//	             "by_pair": [{"pair": "BTCTRY", "trades": 3, "profit_pct": 2.4}]}
//	}
//
// Response 500: {"error": "failed to get stats", "details": "..."}
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Session: h.session.Stats()}

	if h.ledger != nil {
		ledger, err := h.ledger.Snapshot(r.Context())
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "ledger", "failed to get stats", err.Error())
			return
		}
		resp.Ledger = &ledger
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GetTrades возвращает последние записи журнала, новые первыми.
//
// GET /api/v1/trades?limit=50 (по умолчанию 100, максимум 1000)
//
// Без журнала отдаются сделки текущей сессии.
func (h *StatsHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100, 1000)

	var trades []models.TradeRecord
	if h.ledger != nil {
		var err error
		trades, err = h.ledger.Recent(r.Context(), limit)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "ledger", "failed to get trades", err.Error())
			return
		}
	} else {
		session := h.session.Trades()
		for i := len(session) - 1; i >= 0 && len(trades) < limit; i-- {
			trades = append(trades, session[i])
		}
	}

	if trades == nil {
		trades = []models.TradeRecord{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// GetRisk возвращает дневное состояние риск-менеджера.
//
// GET /api/v1/risk
func (h *StatsHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.risk.State())
}

// BalancesResponse - снимок балансов и время его чтения
type BalancesResponse struct {
	Balances   map[string]exchange.Balance `json:"balances"`
	ObservedAt time.Time                   `json:"observed_at"`
}

// GetBalances отдаёт последний снимок балансов движка.
// Биржа из обработчика не вызывается.
//
// GET /api/v1/balances
//
// Response 503: движок ещё не читал балансы
func (h *StatsHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		respondWithError(w, http.StatusServiceUnavailable, "no_exchange", "exchange not connected", "")
		return
	}
	balances, at, ok := h.balances.LastBalances()
	if !ok {
		respondWithError(w, http.StatusServiceUnavailable, "no_balances", "balances not observed yet", "start the engine to read balances")
		return
	}
	respondWithJSON(w, http.StatusOK, BalancesResponse{Balances: balances, ObservedAt: at})
}
