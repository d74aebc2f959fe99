package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cyclebot/internal/api/handlers"
	"cyclebot/internal/api/middleware"
	"cyclebot/internal/models"
	"cyclebot/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
//
// Engine и Risk обязательны; Ledger, Balances и Hub - если настроены.
type Dependencies struct {
	Engine   handlers.EngineController
	Session  handlers.SessionStats
	Risk     handlers.RiskSource
	Ledger   handlers.LedgerStatsProvider
	Balances handlers.BalanceSource
	Hub      *websocket.Hub

	// Defaults - параметры цикла, если тело start их не задаёт
	Defaults models.EngineConfig

	// TokenHash - bcrypt-хеш токена API; пусто - без проверки
	TokenHash   string
	CORSOrigins []string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /engine/
//	│   ├── POST /start - запустить цикл
//	│   ├── POST /stop - остановить
//	│   ├── GET /status - снимок состояния
//	│   ├── GET /config - параметры запуска
//	│   ├── GET /cycles - последние циклы
//	│   └── GET /trades - сделки сессии
//	├── GET /stats - статистика сессии и журнала
//	├── GET /trades - журнал сделок
//	├── GET /risk - дневной учёт риск-менеджера
//	└── GET /balances - последние балансы, прочитанные движком
//
// /ws/stream - WebSocket поток событий движка
// /metrics - Prometheus
// /health - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (/api/v1 и /ws)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.CORSOrigins))

	auth := middleware.NewTokenAuth(deps.TokenHash)

	session := deps.Session
	if session == nil {
		session = deps.Engine
	}
	engineHandler := handlers.NewEngineHandler(deps.Engine, deps.Defaults)
	statsHandler := handlers.NewStatsHandler(session, deps.Ledger, deps.Risk, deps.Balances)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware)

	api.HandleFunc("/engine/start", engineHandler.Start).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/engine/stop", engineHandler.Stop).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/engine/status", engineHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/engine/config", engineHandler.Config).Methods(http.MethodGet)
	api.HandleFunc("/engine/cycles", engineHandler.Cycles).Methods(http.MethodGet)
	api.HandleFunc("/engine/trades", engineHandler.Trades).Methods(http.MethodGet)

	api.HandleFunc("/stats", statsHandler.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/trades", statsHandler.GetTrades).Methods(http.MethodGet)
	api.HandleFunc("/risk", statsHandler.GetRisk).Methods(http.MethodGet)
	api.HandleFunc("/balances", statsHandler.GetBalances).Methods(http.MethodGet)

	// WebSocket route
	if deps.Hub != nil {
		router.Handle("/ws/stream", auth.Middleware(http.HandlerFunc(deps.Hub.ServeWS))).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
