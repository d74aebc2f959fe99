package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики движка циклов
// ============================================================
//
// Экспортируются через /metrics (promhttp) в internal/api.

const metricsNamespace = "cyclebot"

// ============ Латентность ============

// OrderLatency - время ответа биржи на размещение ордера
var OrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "order_latency_ms",
		Help:      "Order submission round trip in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"side"},
)

// FillWaitDuration - время от покупки до подтверждения балансом
var FillWaitDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "cycle",
		Name:      "buy_fill_wait_seconds",
		Help:      "Time until a buy fill is confirmed by a balance increase",
		Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
	},
)

// ============ Счётчики ============

// EventsProcessed - обработанные события по типам
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "events_processed_total",
		Help:      "Total number of processed events",
	},
	[]string{"type"}, // price_tick, fill_poll, status, trade
)

// CyclesTotal - завершённые циклы по результату
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cycle",
		Name:      "cycles_total",
		Help:      "Total number of finished trade cycles",
	},
	[]string{"pair", "result"}, // result: completed, aborted
)

// ExitsTotal - закрытия позиций по причине
var ExitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cycle",
		Name:      "exits_total",
		Help:      "Position exits by reason",
	},
	[]string{"pair", "reason"}, // target, stoploss, trend-reversal
)

// RealizedProfitPct - сумма зафиксированной прибыли в процентах
var RealizedProfitPct = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cycle",
		Name:      "realized_profit_pct_total",
		Help:      "Sum of realized profit percentages of completed cycles (losses counted separately)",
	},
	[]string{"pair", "sign"}, // gain, loss
)

// RiskRejections - отказы риск-менеджера
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Trades vetoed by the risk gate",
	},
	[]string{"reason"},
)

// GatewayErrors - транзиентные ошибки биржи (повторённые запросы)
var GatewayErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "gateway_errors_total",
		Help:      "Transient gateway errors retried inside monitoring loops",
	},
	[]string{"op"},
)

// OrderRetries - повторы покупки после отмены открытых ордеров
var OrderRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "order_retries_total",
		Help:      "Buy orders retried after cancelling open orders",
	},
	[]string{"pair"},
)

// BufferOverflows - переполнения буферов событий
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "buffer_overflows_total",
		Help:      "Number of event buffer overflows (events dropped)",
	},
	[]string{"buffer"},
)

// SinkErrors - ошибки записи в журнал сделок
var SinkErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "ledger",
		Name:      "append_errors_total",
		Help:      "Failed trade ledger appends",
	},
)

// ============ Состояние ============

// EngineRunning - 1 если движок запущен
var EngineRunning = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "running",
		Help:      "Engine running flag (1=running, 0=stopped)",
	},
)

// CycleStateGauge - текущее состояние цикла (1 у активного состояния)
var CycleStateGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "cycle",
		Name:      "state",
		Help:      "Current trade cycle state (1 for the active state)",
	},
	[]string{"state"},
)

// LastPrice - последняя цена пары
var LastPrice = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "market",
		Name:      "last_price",
		Help:      "Last observed price",
	},
	[]string{"pair"},
)

// BufferBacklog - заполненность буфера событий
var BufferBacklog = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "buffer_backlog_ratio",
		Help:      "Event buffer fill ratio at the time of overflow",
	},
	[]string{"buffer"},
)

// ============ Вспомогательные функции ============

// RecordEvent увеличивает счётчик событий
func RecordEvent(kind string) {
	EventsProcessed.WithLabelValues(kind).Inc()
}

// RecordPrice записывает тик цены
func RecordPrice(pair string, price float64) {
	LastPrice.WithLabelValues(pair).Set(price)
	EventsProcessed.WithLabelValues("price_tick").Inc()
}

// RecordCycle записывает итог цикла
func RecordCycle(pair, result, reason string, profitPct float64) {
	CyclesTotal.WithLabelValues(pair, result).Inc()
	if result != "completed" {
		return
	}
	ExitsTotal.WithLabelValues(pair, reason).Inc()
	if profitPct >= 0 {
		RealizedProfitPct.WithLabelValues(pair, "gain").Add(profitPct)
	} else {
		RealizedProfitPct.WithLabelValues(pair, "loss").Add(-profitPct)
	}
}

// RecordRiskRejection записывает вето риск-менеджера
func RecordRiskRejection(reason string) {
	RiskRejections.WithLabelValues(reason).Inc()
}

// RecordGatewayError записывает повторённую ошибку шлюза
func RecordGatewayError(op string) {
	GatewayErrors.WithLabelValues(op).Inc()
}

// RecordOrderRetry записывает повтор покупки
func RecordOrderRetry(pair string) {
	OrderRetries.WithLabelValues(pair).Inc()
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// RecordBufferBacklog записывает заполненность буфера
func RecordBufferBacklog(bufferName string, capacity, length int) {
	if capacity <= 0 {
		return
	}
	BufferBacklog.WithLabelValues(bufferName).Set(float64(length) / float64(capacity))
}

// SetCycleState отмечает активное состояние цикла
func SetCycleState(active string, states []string) {
	for _, s := range states {
		if s == active {
			CycleStateGauge.WithLabelValues(s).Set(1)
		} else {
			CycleStateGauge.WithLabelValues(s).Set(0)
		}
	}
}

// SetEngineRunning обновляет флаг работы движка
func SetEngineRunning(running bool) {
	if running {
		EngineRunning.Set(1)
	} else {
		EngineRunning.Set(0)
	}
}
