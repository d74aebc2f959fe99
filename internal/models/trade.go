package models

import "time"

// TradeType - сторона записи в журнале сделок
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// TradeRecord - неизменяемая запись журнала сделок
//
// Формат JSON совпадает с файлом истории: type, price, amount, profit, timestamp.
type TradeRecord struct {
	ID        string    `json:"id" db:"id"`
	CycleID   string    `json:"cycle_id" db:"cycle_id"`
	Pair      string    `json:"pair" db:"pair"`
	Type      TradeType `json:"type" db:"type"`
	Price     float64   `json:"price" db:"price"`
	Amount    float64   `json:"amount" db:"amount"`     // количество базового актива
	ProfitPct float64   `json:"profit" db:"profit_pct"` // для покупки всегда 0
	Reason    string    `json:"reason,omitempty" db:"reason"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// PricePoint - наблюдение цены
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Trend - направление тренда
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)
