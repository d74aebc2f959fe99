package models

// Лимиты риска по умолчанию
const (
	DefaultMaxDailyLossPct    = 5.0
	DefaultMaxPositionSizePct = 20.0
	DefaultMaxTradesPerDay    = 10
)

// RiskLimits - пороги риск-менеджера
type RiskLimits struct {
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	MaxTradesPerDay    int     `json:"max_trades_per_day" yaml:"max_trades_per_day"`
}

// DefaultRiskLimits - 5% дневного убытка, 20% баланса на сделку, 10 сделок в день
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDailyLossPct:    DefaultMaxDailyLossPct,
		MaxPositionSizePct: DefaultMaxPositionSizePct,
		MaxTradesPerDay:    DefaultMaxTradesPerDay,
	}
}

// RiskState - дневное состояние риск-менеджера на момент снимка
type RiskState struct {
	DailyProfitLossPct float64    `json:"daily_profit_loss_pct"`
	TradeCountToday    int        `json:"trade_count_today"`
	LastResetDate      string     `json:"last_reset_date"` // 2006-01-02
	Limits             RiskLimits `json:"limits"`
}
