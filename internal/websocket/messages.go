package websocket

import (
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePrice - очередная цена пары и текущая прибыль позиции
	// Отправляется на каждом тике монитора цены
	MessageTypePrice MessageType = "price"

	// MessageTypeStatus - текстовый статус движка
	// Отправляется при переходах цикла и во время ожидания исполнения
	MessageTypeStatus MessageType = "status"

	// MessageTypeTrade - новая запись журнала сделок (покупка или продажа)
	MessageTypeTrade MessageType = "trade"

	// MessageTypeEngine - снимок состояния движка
	MessageTypeEngine MessageType = "engine"

	// MessageTypeStats - статистика журнала
	// Отправляется после каждой продажи
	MessageTypeStats MessageType = "stats"

	// MessageTypeBalances - балансы аккаунта
	MessageTypeBalances MessageType = "balances"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC()}
}

// PriceMessage - цена и нереализованная прибыль в процентах
type PriceMessage struct {
	BaseMessage
	Price     float64 `json:"price"`
	ProfitPct float64 `json:"profit_pct"`
}

// StatusMessage - строка статуса движка
type StatusMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// TradeMessage - запись журнала сделок
type TradeMessage struct {
	BaseMessage
	Trade models.TradeRecord `json:"trade"`
}

// EngineMessage - снимок состояния движка
type EngineMessage struct {
	BaseMessage
	Status models.EngineStatus `json:"status"`
}

// StatsMessage - статистика журнала сделок
type StatsMessage struct {
	BaseMessage
	Stats models.LedgerStats `json:"stats"`
}

// BalancesMessage - балансы по активам
type BalancesMessage struct {
	BaseMessage
	Balances map[string]exchange.Balance `json:"balances"`
}

// ============ Фабричные функции для создания сообщений ============

// NewPriceMessage создает сообщение цены
func NewPriceMessage(price, profitPct float64) *PriceMessage {
	return &PriceMessage{BaseMessage: newBase(MessageTypePrice), Price: price, ProfitPct: profitPct}
}

// NewStatusMessage создает сообщение статуса
func NewStatusMessage(msg string) *StatusMessage {
	return &StatusMessage{BaseMessage: newBase(MessageTypeStatus), Message: msg}
}

// NewTradeMessage создает сообщение о сделке
func NewTradeMessage(rec models.TradeRecord) *TradeMessage {
	return &TradeMessage{BaseMessage: newBase(MessageTypeTrade), Trade: rec}
}

// NewEngineMessage создает сообщение со снимком движка
func NewEngineMessage(status models.EngineStatus) *EngineMessage {
	return &EngineMessage{BaseMessage: newBase(MessageTypeEngine), Status: status}
}

// NewStatsMessage создает сообщение статистики
func NewStatsMessage(stats models.LedgerStats) *StatsMessage {
	return &StatsMessage{BaseMessage: newBase(MessageTypeStats), Stats: stats}
}

// NewBalancesMessage создает сообщение с балансами
func NewBalancesMessage(balances map[string]exchange.Balance) *BalancesMessage {
	return &BalancesMessage{BaseMessage: newBase(MessageTypeBalances), Balances: balances}
}
