package models

import "time"

// PerformanceStats - итоги по закрытым циклам (записи продажи)
type PerformanceStats struct {
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	LossTrades       int     `json:"loss_trades"`
	AverageProfit    float64 `json:"average_profit"` // % на сделку
	TotalProfit      float64 `json:"total_profit"`   // сумма %
	WinRate          float64 `json:"win_rate"`       // % прибыльных
}

// ComputePerformance считает статистику по записям продажи
func ComputePerformance(records []TradeRecord) PerformanceStats {
	var s PerformanceStats
	for _, r := range records {
		if r.Type != TradeSell {
			continue
		}
		s.TotalTrades++
		s.TotalProfit += r.ProfitPct
		// нулевой результат - тоже убыток
		if r.ProfitPct > 0 {
			s.ProfitableTrades++
		} else {
			s.LossTrades++
		}
	}
	if s.TotalTrades > 0 {
		s.AverageProfit = s.TotalProfit / float64(s.TotalTrades)
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades) * 100
	}
	return s
}

// PeriodStats - статистика журнала за период
type PeriodStats struct {
	Trades    int     `json:"trades"`
	ProfitPct float64 `json:"profit_pct"`
}

// LedgerStats - статистика между сессиями из постоянного журнала
type LedgerStats struct {
	Overall    PerformanceStats `json:"overall"`
	Today      PeriodStats      `json:"today"`
	Week       PeriodStats      `json:"week"`
	StopLosses int              `json:"stop_losses"`
	ByPair     []PairStat       `json:"by_pair"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// PairStat - итог по паре
type PairStat struct {
	Pair      string  `json:"pair"`
	Trades    int     `json:"trades"`
	ProfitPct float64 `json:"profit_pct"`
}
